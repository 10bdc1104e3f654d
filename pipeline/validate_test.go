package pipeline

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbench/habmap/dataset"
	"github.com/oceanbench/habmap/pkg/errors"
)

func validationTable(points []dataset.Record) *dataset.Table {
	return &dataset.Table{
		ResponseName:   "presence",
		PredictorNames: []string{"depth"},
		Records:        points,
	}
}

func TestEvaluateContinuous(t *testing.T) {
	// 1x4 surface with probabilities matching the observed pattern well.
	surface := fillGrid(1, 4, func(r, c int) float64 {
		return []float64{0.1, 0.2, 0.8, 0.9}[c]
	})

	points := []dataset.Record{
		{X: 0.5, Y: 0.5, Response: 0},
		{X: 1.5, Y: 0.5, Response: 0},
		{X: 2.5, Y: 0.5, Response: 1},
		{X: 3.5, Y: 0.5, Response: 1},
		{X: 99, Y: 99, Response: 1}, // off the grid, skipped
	}

	report, err := EvaluateContinuous(validationTable(points), surface)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Points)
	assert.Equal(t, 1, report.Skipped)
	assert.InDelta(t, 1, report.AUC, 1e-9)
	assert.InDelta(t, 0, report.Bias, 1e-9)
	assert.InDelta(t, 0.15, report.MAE, 1e-9)
	assert.Greater(t, report.PDE, 0.0)
}

func TestEvaluateContinuousNoUsablePoints(t *testing.T) {
	surface := fillGrid(1, 1, func(r, c int) float64 { return 0.5 })
	points := []dataset.Record{{X: 50, Y: 50, Response: 1}}
	_, err := EvaluateContinuous(validationTable(points), surface)
	assert.ErrorIs(t, err, errors.ErrNoValidCells)
}

func TestEvaluateCategoricalExactMatch(t *testing.T) {
	// Every buffer holds exactly one predicted class equal to the
	// observed class, so both policies agree at 100%.
	classMap := fillGrid(2, 2, func(r, c int) float64 {
		return float64(r*2 + c + 1)
	})
	points := []dataset.Record{
		{X: 0.5, Y: 1.5, Response: 1},
		{X: 1.5, Y: 1.5, Response: 2},
		{X: 0.5, Y: 0.5, Response: 3},
		{X: 1.5, Y: 0.5, Response: 4},
	}

	report, err := EvaluateCategorical(validationTable(points), classMap, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Points)
	assert.InDelta(t, 1, report.PolicyA.Accuracy, 1e-9)
	assert.InDelta(t, 1, report.PolicyB.Accuracy, 1e-9)
}

func TestEvaluateCategoricalPoliciesDiverge(t *testing.T) {
	// A 3x3 buffer around the site holds one cell of the observed class
	// 2 among eight cells of class 1: the modal class is 1, so Policy A
	// scores the site wrong while Policy B accepts the in-buffer match.
	classMap := fillGrid(3, 3, func(r, c int) float64 {
		if r == 0 && c == 0 {
			return 2
		}
		return 1
	})
	points := []dataset.Record{{X: 1.5, Y: 1.5, Response: 2}}

	report, err := EvaluateCategorical(validationTable(points), classMap, 1.5)
	require.NoError(t, err)
	assert.InDelta(t, 0, report.PolicyA.Accuracy, 1e-9)
	assert.InDelta(t, 1, report.PolicyB.Accuracy, 1e-9)

	// Policy A records the modal class as the (incorrect) prediction.
	assert.Equal(t, []int{1, 2}, report.PolicyA.Matrix.Classes)
}

func TestEvaluateCategoricalSkipsNoData(t *testing.T) {
	classMap := fillGrid(1, 2, func(r, c int) float64 { return 1 })
	classMap.SetNoData(0, 0)
	points := []dataset.Record{
		{X: 0.5, Y: 0.5, Response: 1}, // NoData cell, zero buffer
		{X: 1.5, Y: 0.5, Response: 1},
	}

	report, err := EvaluateCategorical(validationTable(points), classMap, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Points)
	assert.Equal(t, 1, report.Skipped)
}

func TestContinuousReportMarshalsUndefinedStats(t *testing.T) {
	r := &ContinuousReport{Points: 3, AUC: math.NaN(), PDE: math.NaN(), MAE: 0.2}
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"auc":null`)
	assert.Contains(t, string(data), `"pde":null`)
	assert.Contains(t, string(data), `"mae":0.2`)
}

func TestModalClassTieGoesToLowestLabel(t *testing.T) {
	assert.Equal(t, 2, modalClass(map[int]int{5: 3, 2: 3, 7: 1}))
}
