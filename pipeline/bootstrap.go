package pipeline

import (
	"log/slog"
	"math/rand/v2"

	"github.com/oceanbench/habmap/core/parallel"
	"github.com/oceanbench/habmap/dataset"
	"github.com/oceanbench/habmap/gbm"
	"github.com/oceanbench/habmap/pkg/errors"
	"github.com/oceanbench/habmap/pkg/log"
)

// Ensemble is the outcome of a bootstrap build: converged members in
// draw order, plus the indices of members that failed both fit attempts.
type Ensemble struct {
	Members []*Fit
	Failed  []int
}

// MemberFitFunc fits one ensemble member on a resampled table with a
// fixed tree count.
type MemberFitFunc func(resample *dataset.Table, seed int64) (*Fit, error)

// EnsembleBuilder refits the selected hyperparameters on resamples of
// the calibration set to quantify prediction uncertainty.
type EnsembleBuilder struct {
	Mode         string
	Replicates   int
	MinObsInNode int
	Workers      int
	Seed         uint64

	// FitFn overrides the member fit; nil uses the gbm engine.
	FitFn MemberFitFunc

	logger *slog.Logger
}

// NewEnsembleBuilder wires a builder with the engine-backed member fit.
func NewEnsembleBuilder(mode string, replicates, minObs, workers int, seed uint64) *EnsembleBuilder {
	return &EnsembleBuilder{
		Mode:         mode,
		Replicates:   replicates,
		MinObsInNode: minObs,
		Workers:      workers,
		Seed:         seed,
		logger:       log.GetLoggerWithName("bootstrap"),
	}
}

// Samples draws n bootstrap index sets of the given size, each drawn
// with replacement. The full sequence is a deterministic function of the
// seed alone, independent of worker scheduling.
func Samples(n, size int, seed uint64) [][]int {
	rng := rand.New(rand.NewPCG(seed, seed))
	out := make([][]int, n)
	for i := range out {
		sample := make([]int, size)
		for j := range sample {
			sample[j] = rng.IntN(size)
		}
		out[i] = sample
	}
	return out
}

// Build fits Replicates members of the ensemble, resampling the
// calibration set with replacement for each. Hyperparameters and the
// tree count come from the selected model; member fits run no further
// cross-validation. Failed members are warned about and skipped, never
// fabricated.
func (b *EnsembleBuilder) Build(calibration *dataset.Table, hp Hyperparameters, trees int) (*Ensemble, error) {
	if calibration.Len() == 0 {
		return nil, errors.ErrEmptyData
	}
	if trees < 1 {
		return nil, errors.NewValueError("EnsembleBuilder", "tree count must be >= 1")
	}

	fitFn := b.FitFn
	if fitFn == nil {
		fitFn = b.engineFit(hp, trees)
	}

	samples := Samples(b.Replicates, calibration.Len(), b.Seed)
	b.logger.Info("building bootstrap ensemble",
		slog.Int("replicates", b.Replicates),
		slog.Int(log.RowsKey, calibration.Len()),
		slog.String("hp", hp.String()),
		slog.Int("trees", trees),
		slog.Uint64(log.SeedKey, b.Seed))

	fits := make([]*Fit, b.Replicates)
	taskErrs := parallel.RunOrdered(b.Replicates, b.Workers, func(i int) error {
		resample := calibration.Subset(samples[i])
		seed := int64(b.Seed) + int64(i)*2 + 1
		fit, err := fitFn(resample, seed)
		if err == nil {
			fits[i] = fit
			return nil
		}
		first := err
		fit, err = fitFn(resample, seed+retrySeedOffset)
		if err == nil {
			fits[i] = fit
			return nil
		}
		return errors.NewConvergenceError("bootstrap", i, 2,
			first.Error()+"; retry: "+err.Error())
	})

	ens := &Ensemble{Members: make([]*Fit, 0, b.Replicates)}
	for i, fit := range fits {
		if taskErrs[i] != nil {
			ens.Failed = append(ens.Failed, i)
			b.logger.Warn("bootstrap member skipped",
				slog.Int(log.MemberKey, i),
				log.ErrAttr(taskErrs[i]))
			continue
		}
		ens.Members = append(ens.Members, fit)
	}
	if len(ens.Members) == 0 && b.Replicates > 0 {
		return nil, errors.NewSelectionError(b.Replicates, len(ens.Failed))
	}
	return ens, nil
}

func (b *EnsembleBuilder) engineFit(hp Hyperparameters, trees int) MemberFitFunc {
	return func(resample *dataset.Table, seed int64) (*Fit, error) {
		params := gbm.Params{
			Distribution:   "bernoulli",
			LearningRate:   hp.LearningRate,
			BagFraction:    hp.BagFraction,
			TreeComplexity: hp.TreeComplexity,
			MinObsInNode:   b.MinObsInNode,
			NTrees:         trees,
			Seed:           seed,
		}
		X, y := resample.Matrix()

		if b.Mode == ModeClass {
			clf, err := gbm.FitClassifier(X, resample.Classes(), params)
			if err != nil {
				return nil, err
			}
			return &Fit{Classifier: clf}, nil
		}

		trainer, err := gbm.NewTrainer(params)
		if err != nil {
			return nil, err
		}
		model, err := trainer.Fit(X, y)
		if err != nil {
			return nil, err
		}
		model.PredictorNames = resample.PredictorNames
		return &Fit{Model: model}, nil
	}
}
