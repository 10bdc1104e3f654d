package dataset

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbench/habmap/pkg/errors"
)

const samplePoints = `easting,northing,kelp,depth,slope,holdout
100.0,200.0,1,-12.5,3.0,0
101.0,201.0,0,-15.0,1.5,0
102.0,202.0,NA,-20.0,2.0,0
103.0,203.0,1,-8.0,4.5,1
104.0,204.0,,-11.0,0.5,1
105.0,205.0,0,-25.0,2.5,0
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "points.csv")
	require.NoError(t, os.WriteFile(path, []byte(samplePoints), 0o644))
	return path
}

func sampleSchema() Schema {
	return Schema{
		XCol:          "easting",
		YCol:          "northing",
		ResponseCol:   "kelp",
		PredictorCols: []string{"depth", "slope"},
		ValidationCol: "holdout",
	}
}

func TestLoadCSV(t *testing.T) {
	table, err := LoadCSV(writeSample(t), sampleSchema())
	require.NoError(t, err)

	assert.Equal(t, 6, table.Len())
	assert.Equal(t, []string{"depth", "slope"}, table.PredictorNames)

	first := table.Records[0]
	assert.Equal(t, 100.0, first.X)
	assert.Equal(t, 1.0, first.Response)
	assert.Equal(t, []float64{-12.5, 3.0}, first.Predictors)
	assert.False(t, first.Validation)
	assert.True(t, table.Records[3].Validation)

	assert.True(t, math.IsNaN(table.Records[2].Response), "NA parses as missing")
	assert.True(t, math.IsNaN(table.Records[4].Response), "empty parses as missing")
}

func TestLoadCSVSchemaErrors(t *testing.T) {
	path := writeSample(t)

	tests := []struct {
		name   string
		mutate func(s *Schema)
	}{
		{"missing response column", func(s *Schema) { s.ResponseCol = "seagrass" }},
		{"missing predictor column", func(s *Schema) { s.PredictorCols = []string{"depth", "rugosity"} }},
		{"duplicate predictor", func(s *Schema) { s.PredictorCols = []string{"depth", "depth"} }},
		{"no predictors", func(s *Schema) { s.PredictorCols = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema := sampleSchema()
			tt.mutate(&schema)
			_, err := LoadCSV(path, schema)
			require.Error(t, err)

			var schemaErr *errors.SchemaError
			assert.True(t, errors.As(err, &schemaErr), "want SchemaError, got %v", err)
		})
	}
}

func TestDropMissingResponseDeterministic(t *testing.T) {
	table, err := LoadCSV(writeSample(t), sampleSchema())
	require.NoError(t, err)

	once := table.DropMissingResponse()
	twice := once.DropMissingResponse()

	assert.Equal(t, 4, once.Len())
	assert.Equal(t, once.Records, twice.Records, "filter must be idempotent")
}

func TestSplitDisjointAndIdempotent(t *testing.T) {
	table, err := LoadCSV(writeSample(t), sampleSchema())
	require.NoError(t, err)

	cal, val := Split(table)
	assert.Equal(t, 3, cal.Len(), "rows 1,2,6 (missing responses dropped)")
	assert.Equal(t, 1, val.Len(), "row 4; row 5 has a missing response")

	for _, rec := range cal.Records {
		assert.False(t, rec.Validation)
	}
	for _, rec := range val.Records {
		assert.True(t, rec.Validation)
	}

	// Splitting the calibration side again reproduces the same partition.
	calAgain, valAgain := Split(cal)
	assert.Equal(t, cal.Records, calAgain.Records)
	assert.Zero(t, valAgain.Len())
}

func TestSplitFilesDropsMissingResponses(t *testing.T) {
	table, err := LoadCSV(writeSample(t), sampleSchema())
	require.NoError(t, err)

	// Pretend the two sides arrived as separate files.
	calFile := table.Subset([]int{0, 1, 2, 5})
	valFile := table.Subset([]int{3, 4})

	cal, val := SplitFiles(calFile, valFile)
	assert.Equal(t, 3, cal.Len(), "row 3 has a missing response")
	assert.Equal(t, 1, val.Len(), "row 5 has a missing response")
	for _, tbl := range []*Table{cal, val} {
		for _, rec := range tbl.Records {
			assert.False(t, math.IsNaN(rec.Response))
		}
	}
	assert.Equal(t, 103.0, val.Records[0].X)
}

func TestMatrixShape(t *testing.T) {
	table, err := LoadCSV(writeSample(t), sampleSchema())
	require.NoError(t, err)

	cal, _ := Split(table)
	X, y := cal.Matrix()
	rows, cols := X.Dims()
	assert.Equal(t, cal.Len(), rows)
	assert.Equal(t, 2, cols)
	assert.Len(t, y, cal.Len())
	assert.Equal(t, -12.5, X.At(0, 0))
}

func TestSubsetPreservesOrder(t *testing.T) {
	table, err := LoadCSV(writeSample(t), sampleSchema())
	require.NoError(t, err)

	sub := table.Subset([]int{5, 0, 0})
	require.Equal(t, 3, sub.Len())
	assert.Equal(t, 105.0, sub.Records[0].X)
	assert.Equal(t, 100.0, sub.Records[1].X)
	assert.Equal(t, 100.0, sub.Records[2].X, "repeated indices allowed for bootstrap resamples")
}
