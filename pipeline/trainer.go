package pipeline

import (
	"log/slog"

	"github.com/oceanbench/habmap/core/parallel"
	"github.com/oceanbench/habmap/dataset"
	"github.com/oceanbench/habmap/gbm"
	"github.com/oceanbench/habmap/pkg/errors"
	"github.com/oceanbench/habmap/pkg/log"
)

// Modes select the workflow a run executes.
const (
	ModePresence = "presence"
	ModeClass    = "class"
)

// Fit is one converged model with its cross-validation statistics.
// Model is set in presence mode, Classifier in class mode.
type Fit struct {
	Model      *gbm.Model
	Classifier *gbm.Classifier
	Stats      *gbm.FitStats
}

// Score is the selection criterion for a fit: percent deviance explained
// in presence mode, cross-validated accuracy in class mode.
func (f *Fit) Score(mode string) float64 {
	if mode == ModeClass {
		return f.Stats.CVAccuracy
	}
	return f.Stats.PercentDevianceExplained()
}

// TuningRow is one line of the tuning table: a grid cell and either its
// fit statistics or its failure reason. Failed cells stay in the table
// so non-convergence can be audited.
type TuningRow struct {
	Index         int             `json:"index"`
	HP            Hyperparameters `json:"hp"`
	Converged     bool            `json:"converged"`
	FailureReason string          `json:"failure_reason,omitempty"`
	Stats         *gbm.FitStats   `json:"stats,omitempty"`
}

// FitFunc runs one cross-validated fit of a grid cell. The seed makes
// the fit reproducible; retries pass a fresh seed.
type FitFunc func(tbl *dataset.Table, hp Hyperparameters, seed int64) (*Fit, error)

// Trainer runs the hyperparameter sweep: every grid cell is fitted with
// k-fold cross-validation on the calibration set, failures retried once,
// and both outcomes recorded.
type Trainer struct {
	Mode         string
	Folds        int
	MinObsInNode int
	MaxTrees     int
	Workers      int
	Seed         uint64

	// FitFn overrides the fit implementation; nil uses the gbm engine.
	FitFn FitFunc

	logger *slog.Logger
}

// NewTrainer wires a Trainer for the given mode with the engine-backed
// fit function.
func NewTrainer(mode string, folds, minObs, maxTrees, workers int, seed uint64) *Trainer {
	t := &Trainer{
		Mode:         mode,
		Folds:        folds,
		MinObsInNode: minObs,
		MaxTrees:     maxTrees,
		Workers:      workers,
		Seed:         seed,
		logger:       log.GetLoggerWithName("trainer"),
	}
	t.FitFn = t.engineFit
	return t
}

// retrySeedOffset keeps retry draws disjoint from first-attempt draws.
const retrySeedOffset = 7919

// Tune fits every cell of the grid against the calibration table and
// returns the tuning table plus the index-aligned fits (nil where the
// cell failed both attempts).
func (t *Trainer) Tune(calibration *dataset.Table, grid Grid) ([]TuningRow, []*Fit, error) {
	cells, err := grid.Enumerate()
	if err != nil {
		return nil, nil, err
	}
	if calibration.Len() == 0 {
		return nil, nil, errors.ErrEmptyData
	}

	t.logger.Info("tuning hyperparameters",
		slog.Int("cells", len(cells)),
		slog.Int(log.RowsKey, calibration.Len()),
		slog.Int("folds", t.Folds),
		slog.Uint64(log.SeedKey, t.Seed))

	fits := make([]*Fit, len(cells))
	taskErrs := parallel.RunOrdered(len(cells), t.Workers, func(i int) error {
		fit, err := t.fitWithRetry("tuning", calibration, cells[i], i)
		if err != nil {
			return err
		}
		fits[i] = fit
		return nil
	})

	rows := make([]TuningRow, len(cells))
	for i, hp := range cells {
		row := TuningRow{Index: i, HP: hp}
		if taskErrs[i] != nil {
			row.FailureReason = taskErrs[i].Error()
			t.logger.Warn("grid cell did not converge",
				slog.Int(log.GridIndexKey, i),
				slog.String("hp", hp.String()),
				log.ErrAttr(taskErrs[i]))
		} else {
			row.Converged = true
			row.Stats = fits[i].Stats
		}
		rows[i] = row
	}
	return rows, fits, nil
}

// fitWithRetry attempts a fit twice before declaring non-convergence.
func (t *Trainer) fitWithRetry(stage string, tbl *dataset.Table, hp Hyperparameters, index int) (*Fit, error) {
	seed := int64(t.Seed) + int64(index)*2
	fit, err := t.FitFn(tbl, hp, seed)
	if err == nil {
		return fit, nil
	}
	first := err

	fit, err = t.FitFn(tbl, hp, seed+retrySeedOffset)
	if err == nil {
		t.logger.Debug("fit converged on retry",
			slog.String(log.StageKey, stage),
			slog.Int(log.GridIndexKey, index))
		return fit, nil
	}
	return nil, errors.NewConvergenceError(stage, index, 2,
		first.Error()+"; retry: "+err.Error())
}

func (t *Trainer) engineFit(tbl *dataset.Table, hp Hyperparameters, seed int64) (*Fit, error) {
	params := gbm.Params{
		LearningRate:   hp.LearningRate,
		BagFraction:    hp.BagFraction,
		TreeComplexity: hp.TreeComplexity,
		MinObsInNode:   t.MinObsInNode,
		NTrees:         t.MaxTrees,
		Seed:           seed,
	}
	X, y := tbl.Matrix()

	if t.Mode == ModeClass {
		params.Distribution = "bernoulli"
		clf, stats, err := gbm.FitClassifierCV(X, tbl.Classes(), t.Folds, params)
		if err != nil {
			return nil, err
		}
		return &Fit{Classifier: clf, Stats: stats}, nil
	}

	params.Distribution = "bernoulli"
	trainer, err := gbm.NewTrainer(params)
	if err != nil {
		return nil, err
	}
	model, stats, err := trainer.FitCV(X, y, t.Folds)
	if err != nil {
		return nil, err
	}
	model.PredictorNames = tbl.PredictorNames
	return &Fit{Model: model, Stats: stats}, nil
}
