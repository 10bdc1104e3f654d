// Package dataset loads and partitions the labeled survey points the
// pipeline trains on. Columns are always addressed by name against a schema
// validated at load time, never by position.
package dataset

import (
	"encoding/csv"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/oceanbench/habmap/pkg/errors"
)

// Record is one geospatial sample: coordinates, a response value (NaN when
// missing), the named predictor values in table order, and the optional
// held-out flag.
type Record struct {
	X          float64
	Y          float64
	Response   float64
	Predictors []float64
	Validation bool
}

// Table is an ordered set of records sharing one schema.
type Table struct {
	ResponseName   string
	PredictorNames []string
	Records        []Record
}

// Schema names the columns a point file must provide.
type Schema struct {
	XCol          string
	YCol          string
	ResponseCol   string
	PredictorCols []string

	// ValidationCol, when non-empty, names a column whose truthy values
	// ("1", "true", "yes") flag held-out validation records.
	ValidationCol string
}

// LoadCSV reads a point table, validating the schema against the header
// before any row is parsed. Empty and "NA" response cells become NaN.
func LoadCSV(path string, schema Schema) (*Table, error) {
	if err := schema.validate(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open point table")
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "read point table")
	}
	if len(rows) == 0 {
		return nil, errors.ErrEmptyData
	}

	index := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		name = strings.TrimSpace(name)
		if _, dup := index[name]; dup {
			return nil, errors.NewSchemaError(path, name, "duplicate column")
		}
		index[name] = i
	}

	col := func(name string) (int, error) {
		i, ok := index[name]
		if !ok {
			return 0, errors.NewSchemaError(path, name, "column not found")
		}
		return i, nil
	}

	xIdx, err := col(schema.XCol)
	if err != nil {
		return nil, err
	}
	yIdx, err := col(schema.YCol)
	if err != nil {
		return nil, err
	}
	respIdx, err := col(schema.ResponseCol)
	if err != nil {
		return nil, err
	}
	predIdx := make([]int, len(schema.PredictorCols))
	for i, name := range schema.PredictorCols {
		predIdx[i], err = col(name)
		if err != nil {
			return nil, err
		}
	}
	valIdx := -1
	if schema.ValidationCol != "" {
		valIdx, err = col(schema.ValidationCol)
		if err != nil {
			return nil, err
		}
	}

	table := &Table{
		ResponseName:   schema.ResponseCol,
		PredictorNames: append([]string(nil), schema.PredictorCols...),
	}

	for rowNum, row := range rows[1:] {
		rec := Record{Predictors: make([]float64, len(predIdx))}

		rec.X, err = parseCell(row[xIdx])
		if err != nil {
			return nil, errors.Wrapf(err, "%s row %d column %s", path, rowNum+2, schema.XCol)
		}
		rec.Y, err = parseCell(row[yIdx])
		if err != nil {
			return nil, errors.Wrapf(err, "%s row %d column %s", path, rowNum+2, schema.YCol)
		}
		rec.Response = parseResponse(row[respIdx])
		for i, c := range predIdx {
			rec.Predictors[i], err = parseCell(row[c])
			if err != nil {
				return nil, errors.Wrapf(err, "%s row %d column %s", path, rowNum+2, schema.PredictorCols[i])
			}
		}
		if valIdx >= 0 {
			rec.Validation = truthy(row[valIdx])
		}

		table.Records = append(table.Records, rec)
	}

	return table, nil
}

func (s Schema) validate(path string) error {
	if s.XCol == "" || s.YCol == "" || s.ResponseCol == "" {
		return errors.NewSchemaError(path, "", "coordinate and response columns must be named")
	}
	if len(s.PredictorCols) == 0 {
		return errors.NewSchemaError(path, "", "at least one predictor column required")
	}
	seen := make(map[string]bool, len(s.PredictorCols))
	for _, name := range s.PredictorCols {
		if seen[name] {
			return errors.NewSchemaError(path, name, "duplicate predictor name")
		}
		seen[name] = true
	}
	return nil
}

func parseCell(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func parseResponse(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "na") || strings.EqualFold(s, "nan") {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

// Len returns the number of records.
func (t *Table) Len() int {
	return len(t.Records)
}

// DropMissingResponse returns a new table without the records whose response
// is missing. Record order is preserved, so the filter is deterministic.
func (t *Table) DropMissingResponse() *Table {
	out := &Table{
		ResponseName:   t.ResponseName,
		PredictorNames: t.PredictorNames,
	}
	for _, rec := range t.Records {
		if !math.IsNaN(rec.Response) {
			out.Records = append(out.Records, rec)
		}
	}
	return out
}

// Matrix returns the predictor matrix and response vector.
func (t *Table) Matrix() (*mat.Dense, []float64) {
	rows := len(t.Records)
	cols := len(t.PredictorNames)
	X := mat.NewDense(rows, cols, nil)
	y := make([]float64, rows)
	for i, rec := range t.Records {
		for j, v := range rec.Predictors {
			X.Set(i, j, v)
		}
		y[i] = rec.Response
	}
	return X, y
}

// Classes returns the responses as integer class labels.
func (t *Table) Classes() []int {
	out := make([]int, len(t.Records))
	for i, rec := range t.Records {
		out[i] = int(math.Round(rec.Response))
	}
	return out
}

// Subset returns a new table with the records at the given indices, in the
// given order.
func (t *Table) Subset(indices []int) *Table {
	out := &Table{
		ResponseName:   t.ResponseName,
		PredictorNames: t.PredictorNames,
		Records:        make([]Record, len(indices)),
	}
	for i, idx := range indices {
		out.Records[i] = t.Records[idx]
	}
	return out
}
