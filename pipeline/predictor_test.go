package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanbench/habmap/grid"
	"github.com/oceanbench/habmap/pkg/errors"
)

func testExtent() grid.Extent {
	return grid.Extent{XMin: 0, YMin: 0, CellSize: 1}
}

// fillGrid builds a rows x cols grid where cell (r, c) holds fn(r, c).
func fillGrid(rows, cols int, fn func(r, c int) float64) *grid.Grid {
	g := grid.New(rows, cols, testExtent(), -9999)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			g.Set(r, c, fn(r, c))
		}
	}
	return g
}

func TestAggregate(t *testing.T) {
	a := fillGrid(2, 2, func(r, c int) float64 { return 1 })
	b := fillGrid(2, 2, func(r, c int) float64 { return 3 })
	b.SetNoData(1, 1)

	s, err := Aggregate([]*grid.Grid{a, b})
	require.NoError(t, err)

	assert.InDelta(t, 2, s.Mean.At(0, 0), 1e-9)
	// Sample standard deviation of {1, 3}.
	assert.InDelta(t, 1.4142135623730951, s.SD.At(0, 0), 1e-9)
	assert.InDelta(t, 70.71067811865476, s.CoV.At(0, 0), 1e-9)

	// NoData in any member blanks the cell in every surface.
	assert.True(t, s.Mean.IsNoData(1, 1))
	assert.True(t, s.SD.IsNoData(1, 1))
	assert.True(t, s.CoV.IsNoData(1, 1))
}

func TestAggregateConstantMembers(t *testing.T) {
	grids := []*grid.Grid{
		fillGrid(1, 2, func(r, c int) float64 { return 0.4 }),
		fillGrid(1, 2, func(r, c int) float64 { return 0.4 }),
		fillGrid(1, 2, func(r, c int) float64 { return 0.4 }),
	}
	s, err := Aggregate(grids)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, s.Mean.At(0, 0), 1e-9)
	assert.InDelta(t, 0, s.SD.At(0, 0), 1e-9)
	assert.InDelta(t, 0, s.CoV.At(0, 0), 1e-9)
}

func TestAggregateZeroMean(t *testing.T) {
	grids := []*grid.Grid{
		fillGrid(1, 1, func(r, c int) float64 { return 0 }),
		fillGrid(1, 1, func(r, c int) float64 { return 0 }),
	}
	s, err := Aggregate(grids)
	require.NoError(t, err)
	assert.InDelta(t, 0, s.Mean.At(0, 0), 1e-9)
	// CoV is undefined at a zero mean; the cell stays NoData.
	assert.True(t, s.CoV.IsNoData(0, 0))
}

func TestAggregateManyRows(t *testing.T) {
	// Enough rows that the work is split across several chunks; every
	// cell must still land in its own slot.
	value := func(r, c int) float64 { return float64(r*37+c) + 1 }
	grids := []*grid.Grid{
		fillGrid(64, 5, value),
		fillGrid(64, 5, value),
	}
	grids[1].SetNoData(63, 4)

	s, err := Aggregate(grids)
	require.NoError(t, err)
	for r := 0; r < 64; r++ {
		for c := 0; c < 5; c++ {
			if r == 63 && c == 4 {
				require.True(t, s.Mean.IsNoData(r, c))
				continue
			}
			require.InDelta(t, value(r, c), s.Mean.At(r, c), 1e-9, "cell %d,%d", r, c)
			require.InDelta(t, 0, s.SD.At(r, c), 1e-9, "cell %d,%d", r, c)
		}
	}
}

func TestAggregateErrors(t *testing.T) {
	if _, err := Aggregate(nil); !errors.Is(err, errors.ErrEmptyData) {
		t.Errorf("empty input: got %v", err)
	}
	a := fillGrid(2, 2, func(r, c int) float64 { return 1 })
	b := fillGrid(3, 2, func(r, c int) float64 { return 1 })
	var dimErr *errors.DimensionError
	if _, err := Aggregate([]*grid.Grid{a, b}); !errors.As(err, &dimErr) {
		t.Errorf("shape mismatch: got %v", err)
	}
}

func TestSpatialPredictorAlignsStack(t *testing.T) {
	stack := grid.NewStack()
	require.NoError(t, stack.Add("depth", fillGrid(2, 3, func(r, c int) float64 { return float64(c) })))
	require.NoError(t, stack.Add("slope", fillGrid(2, 3, func(r, c int) float64 { return float64(r) })))

	_, err := NewSpatialPredictor(stack, []string{"depth", "rugosity"}, 1)
	var alignErr *errors.AlignmentError
	require.ErrorAs(t, err, &alignErr)
}

func TestSpatialPredictorNoDataPropagation(t *testing.T) {
	depth := fillGrid(2, 3, func(r, c int) float64 { return float64(c) })
	depth.SetNoData(0, 1)
	stack := grid.NewStack()
	require.NoError(t, stack.Add("depth", depth))

	p, err := NewSpatialPredictor(stack, []string{"depth"}, 1)
	require.NoError(t, err)

	out, err := p.predict(func(features []float64) (float64, error) {
		return features[0] + 1, nil
	})
	require.NoError(t, err)
	assert.InDelta(t, 1, out.At(0, 0), 1e-9)
	assert.True(t, out.IsNoData(0, 1))
	assert.InDelta(t, 3, out.At(1, 2), 1e-9)
}
