package pipeline

import (
	"log/slog"

	"gonum.org/v1/gonum/stat"

	"github.com/oceanbench/habmap/core/parallel"
	"github.com/oceanbench/habmap/gbm"
	"github.com/oceanbench/habmap/grid"
	"github.com/oceanbench/habmap/pkg/errors"
	"github.com/oceanbench/habmap/pkg/log"
)

// SpatialPredictor applies fitted models to every cell of an aligned
// predictor stack. Cells missing any predictor value stay NoData in
// every output surface.
type SpatialPredictor struct {
	layers   []*grid.Grid
	template *grid.Grid
	workers  int
	logger   *slog.Logger
}

// NewSpatialPredictor aligns the stack to the model's predictor order.
// A missing or extra layer is a pipeline-level failure.
func NewSpatialPredictor(stack *grid.Stack, predictors []string, workers int) (*SpatialPredictor, error) {
	layers, err := stack.Align(predictors)
	if err != nil {
		return nil, err
	}
	template, err := stack.Template()
	if err != nil {
		return nil, err
	}
	return &SpatialPredictor{
		layers:   layers,
		template: template,
		workers:  workers,
		logger:   log.GetLoggerWithName("predictor"),
	}, nil
}

// PredictProbability maps a presence model over the stack, producing a
// probability surface.
func (p *SpatialPredictor) PredictProbability(m *gbm.Model) (*grid.Grid, error) {
	return p.predict(func(features []float64) (float64, error) {
		return m.Predict(features)
	})
}

// PredictClass maps a habitat classifier over the stack, producing a
// class map.
func (p *SpatialPredictor) PredictClass(c *gbm.Classifier) (*grid.Grid, error) {
	return p.predict(func(features []float64) (float64, error) {
		class, err := c.PredictClass(features)
		return float64(class), err
	})
}

func (p *SpatialPredictor) predict(cell func(features []float64) (float64, error)) (*grid.Grid, error) {
	out := grid.New(p.template.Rows, p.template.Cols, p.template.Extent, p.template.NoData)

	taskErrs := parallel.RunOrdered(p.template.Rows, p.workers, func(row int) error {
		features := make([]float64, len(p.layers))
		for col := 0; col < p.template.Cols; col++ {
			if !grid.VectorAt(p.layers, row, col, features) {
				out.SetNoData(row, col)
				continue
			}
			v, err := cell(features)
			if err != nil {
				return err
			}
			out.Set(row, col, v)
		}
		return nil
	})
	for _, err := range taskErrs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Surfaces is the uncertainty triple from a bootstrap ensemble.
type Surfaces struct {
	Mean *grid.Grid
	SD   *grid.Grid
	CoV  *grid.Grid
}

// PredictEnsemble maps every member over the stack and aggregates the
// per-cell distribution of predictions.
func (p *SpatialPredictor) PredictEnsemble(members []*Fit) (*Surfaces, error) {
	if len(members) == 0 {
		return nil, errors.ErrEmptyData
	}
	p.logger.Info("predicting ensemble surfaces",
		slog.Int("members", len(members)),
		slog.Int(log.CellsKey, p.template.Rows*p.template.Cols))

	grids := make([]*grid.Grid, len(members))
	for i, member := range members {
		var (
			g   *grid.Grid
			err error
		)
		if member.Classifier != nil {
			g, err = p.PredictClass(member.Classifier)
		} else {
			g, err = p.PredictProbability(member.Model)
		}
		if err != nil {
			return nil, err
		}
		grids[i] = g
	}
	return Aggregate(grids)
}

// Aggregate reduces index-aligned prediction grids to their per-cell
// mean, sample standard deviation and coefficient of variation (percent
// of the mean). Cells that are NoData in any member stay NoData
// everywhere; a zero mean leaves the CoV cell NoData rather than
// dividing by zero.
func Aggregate(grids []*grid.Grid) (*Surfaces, error) {
	if len(grids) == 0 {
		return nil, errors.ErrEmptyData
	}
	first := grids[0]
	for _, g := range grids[1:] {
		if !first.SameShape(g) {
			return nil, errors.NewDimensionError("Aggregate", first.Rows*first.Cols, g.Rows*g.Cols, 0)
		}
	}

	s := &Surfaces{
		Mean: grid.New(first.Rows, first.Cols, first.Extent, first.NoData),
		SD:   grid.New(first.Rows, first.Cols, first.Extent, first.NoData),
		CoV:  grid.New(first.Rows, first.Cols, first.Extent, first.NoData),
	}

	// Chunked over rows: goroutines write disjoint cells, each with a
	// private member-value buffer.
	parallel.Parallelize(first.Rows, func(startRow, endRow int) {
		values := make([]float64, len(grids))
		for row := startRow; row < endRow; row++ {
		cells:
			for col := 0; col < first.Cols; col++ {
				for i, g := range grids {
					if g.IsNoData(row, col) {
						s.Mean.SetNoData(row, col)
						s.SD.SetNoData(row, col)
						s.CoV.SetNoData(row, col)
						continue cells
					}
					values[i] = g.At(row, col)
				}

				mean, sd := stat.MeanStdDev(values, nil)
				if len(values) < 2 {
					sd = 0
				}

				s.Mean.Set(row, col, mean)
				s.SD.Set(row, col, sd)
				if mean == 0 {
					s.CoV.SetNoData(row, col)
				} else {
					s.CoV.Set(row, col, sd/mean*100)
				}
			}
		}
	})
	return s, nil
}
