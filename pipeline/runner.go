package pipeline

import (
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/oceanbench/habmap/cluster"
	"github.com/oceanbench/habmap/config"
	"github.com/oceanbench/habmap/dataset"
	"github.com/oceanbench/habmap/grid"
	"github.com/oceanbench/habmap/pkg/errors"
	"github.com/oceanbench/habmap/pkg/log"
)

// Runner executes a full habitat-mapping run from configuration to
// artifacts, checkpointing state after each stage.
type Runner struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewRunner builds a Runner for the given configuration.
func NewRunner(cfg *config.Config) *Runner {
	return &Runner{cfg: cfg, logger: log.GetLoggerWithName("runner")}
}

// Run executes every stage in order. Per-task failures inside a stage
// are recorded and skipped; pipeline-level failures abort the run.
func (r *Runner) Run() error {
	start := time.Now()
	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return errors.Wrap(err, "creating output directory")
	}

	state := NewState(r.cfg.Region, r.cfg.Mode, r.cfg.Seed)
	statePath := r.artifact("state.json")
	r.logger.Info("starting run",
		slog.String(log.RunIDKey, state.RunID),
		slog.String(log.RegionKey, r.cfg.Region),
		slog.String("mode", r.cfg.Mode))

	calibration, validation, stack, err := r.load()
	if err != nil {
		return err
	}
	state.Advance(StageLoad)
	if err := state.Save(statePath); err != nil {
		return err
	}

	if calibration.Len() == 0 {
		return errors.ErrEmptyData
	}
	state.CalibrationRows = calibration.Len()
	state.ValidationRows = validation.Len()
	state.Advance(StageSplit)
	if err := state.Save(statePath); err != nil {
		return err
	}
	r.logger.Info("split points",
		slog.Int("calibration", calibration.Len()),
		slog.Int("validation", validation.Len()))

	trainer := NewTrainer(r.cfg.Mode, r.cfg.Folds, r.cfg.MinObsInNode,
		r.cfg.MaxTrees, r.cfg.EffectiveWorkers(), r.cfg.Seed)
	rows, fits, err := trainer.Tune(calibration, Grid{
		LearningRates:    r.cfg.LearningRates,
		BagFractions:     r.cfg.BagFractions,
		TreeComplexities: r.cfg.TreeComplexities,
	})
	if err != nil {
		return err
	}
	if err := WriteTuningCSV(r.artifact("tuning.csv"), rows); err != nil {
		return err
	}
	state.TuningRows = rows
	state.Advance(StageTune)
	if err := state.Save(statePath); err != nil {
		return err
	}

	best, err := SelectBest(rows, fits, r.cfg.Mode)
	if err != nil {
		return err
	}
	if err := WriteJSON(r.artifact("best_hp.json"), best); err != nil {
		return err
	}
	state.Best = best
	state.Advance(StageSelect)
	if err := state.Save(statePath); err != nil {
		return err
	}

	var ensemble *Ensemble
	if r.cfg.Bootstraps > 0 {
		builder := NewEnsembleBuilder(r.cfg.Mode, r.cfg.Bootstraps,
			r.cfg.MinObsInNode, r.cfg.EffectiveWorkers(), r.cfg.Seed)
		ensemble, err = builder.Build(calibration, best.HP, best.Fit.Stats.BestTrees)
		if err != nil {
			return err
		}
		state.EnsembleMembers = len(ensemble.Members)
		state.EnsembleFailed = ensemble.Failed
	}
	state.Advance(StageBootstrap)
	if err := state.Save(statePath); err != nil {
		return err
	}

	predictor, err := NewSpatialPredictor(stack, r.cfg.Predictors, r.cfg.EffectiveWorkers())
	if err != nil {
		return err
	}
	classMap, meanSurface, err := r.predict(predictor, best, ensemble)
	if err != nil {
		return err
	}
	state.Advance(StagePredict)
	if err := state.Save(statePath); err != nil {
		return err
	}

	if validation.Len() > 0 {
		if err := r.validate(validation, classMap, meanSurface); err != nil {
			return err
		}
	} else {
		r.logger.Warn("no held-out points; skipping validation")
	}
	state.Advance(StageValidate)
	if err := state.Save(statePath); err != nil {
		return err
	}

	if err := r.writeImportance(best, ensemble); err != nil {
		return err
	}

	state.Advance(StageDone)
	if err := state.Save(statePath); err != nil {
		return err
	}
	r.logger.Info("run complete",
		slog.String(log.RunIDKey, state.RunID),
		slog.Int64(log.DurationMsKey, time.Since(start).Milliseconds()))
	return nil
}

// load reads the survey points and the predictor rasters, returning the
// calibration/validation pair. With a single points file the split follows
// the per-record validation flag; with a calibration/validation file pair
// the file boundary is the split. In class mode with cover columns
// configured, sites are clustered on cover and the cluster labels replace
// the response.
func (r *Runner) load() (calibration, validation *dataset.Table, stack *grid.Stack, err error) {
	if r.cfg.CalibrationPath != "" {
		calibration, validation, err = r.loadSplitFiles()
	} else {
		calibration, validation, err = r.loadPoints()
	}
	if err != nil {
		return nil, nil, nil, err
	}

	stack = grid.NewStack()
	for _, name := range r.cfg.Predictors {
		g, err := grid.ReadASC(filepath.Join(r.cfg.PredictorDir, name+".asc"))
		if err != nil {
			return nil, nil, nil, err
		}
		if err := stack.Add(name, g); err != nil {
			return nil, nil, nil, err
		}
	}
	r.logger.Info("loaded predictor stack",
		slog.Int(log.PredictorsKey, len(stack.Names())),
		slog.Int(log.CellsKey, stack.Rows()*stack.Cols()))
	return calibration, validation, stack, nil
}

func (r *Runner) loadPoints() (*dataset.Table, *dataset.Table, error) {
	schema := dataset.Schema{
		XCol:          "x",
		YCol:          "y",
		ResponseCol:   r.cfg.Response,
		PredictorCols: r.cfg.Predictors,
		ValidationCol: "validation",
	}
	table, err := dataset.LoadCSV(r.cfg.PointsPath, schema)
	if err != nil {
		return nil, nil, err
	}
	r.logger.Info("loaded points",
		slog.Int(log.RowsKey, table.Len()),
		slog.Int(log.PredictorsKey, len(table.PredictorNames)))

	if r.cfg.Mode == ModeClass && len(r.cfg.CoverColumns) > 0 {
		if err := r.clusterCover(table); err != nil {
			return nil, nil, err
		}
	}
	calibration, validation := dataset.Split(table)
	return calibration, validation, nil
}

func (r *Runner) loadSplitFiles() (*dataset.Table, *dataset.Table, error) {
	schema := dataset.Schema{
		XCol:          "x",
		YCol:          "y",
		ResponseCol:   r.cfg.Response,
		PredictorCols: r.cfg.Predictors,
	}
	calibration, err := dataset.LoadCSV(r.cfg.CalibrationPath, schema)
	if err != nil {
		return nil, nil, err
	}
	validation, err := dataset.LoadCSV(r.cfg.ValidationPath, schema)
	if err != nil {
		return nil, nil, err
	}
	calibration, validation = dataset.SplitFiles(calibration, validation)
	r.logger.Info("loaded pre-split points",
		slog.Int("calibration", calibration.Len()),
		slog.Int("validation", validation.Len()))
	return calibration, validation, nil
}

// clusterCover derives habitat classes from the species cover columns
// and writes them over the response.
func (r *Runner) clusterCover(table *dataset.Table) error {
	coverSchema := dataset.Schema{
		XCol:          "x",
		YCol:          "y",
		ResponseCol:   r.cfg.Response,
		PredictorCols: r.cfg.CoverColumns,
		ValidationCol: "validation",
	}
	cover, err := dataset.LoadCSV(r.cfg.PointsPath, coverSchema)
	if err != nil {
		return err
	}
	data := make([][]float64, cover.Len())
	for i, rec := range cover.Records {
		data[i] = rec.Predictors
	}

	dend, err := cluster.Agglomerate(data)
	if err != nil {
		return err
	}
	labels, err := dend.CutK(r.cfg.Clusters)
	if err != nil {
		return err
	}
	for i := range table.Records {
		table.Records[i].Response = float64(labels[i])
	}
	r.logger.Info("clustered cover into habitat classes",
		slog.Int("classes", r.cfg.Clusters),
		slog.Int(log.RowsKey, len(labels)))
	return nil
}

// predict writes the prediction grids. Presence runs produce the
// mean/sd/cov triple when an ensemble exists, otherwise a single
// probability surface; class runs produce the class map from the
// selected model.
func (r *Runner) predict(predictor *SpatialPredictor, best *Selection, ensemble *Ensemble) (classMap, meanSurface *grid.Grid, err error) {
	if r.cfg.Mode == ModeClass {
		classMap, err = predictor.PredictClass(best.Fit.Classifier)
		if err != nil {
			return nil, nil, err
		}
		return classMap, nil, classMap.WriteASC(r.artifact("class_map.asc"))
	}

	if ensemble != nil {
		surfaces, err := predictor.PredictEnsemble(ensemble.Members)
		if err != nil {
			return nil, nil, err
		}
		if err := surfaces.Mean.WriteASC(r.artifact("probability_mean.asc")); err != nil {
			return nil, nil, err
		}
		if err := surfaces.SD.WriteASC(r.artifact("probability_sd.asc")); err != nil {
			return nil, nil, err
		}
		if err := surfaces.CoV.WriteASC(r.artifact("probability_cov.asc")); err != nil {
			return nil, nil, err
		}
		return nil, surfaces.Mean, nil
	}

	meanSurface, err = predictor.PredictProbability(best.Fit.Model)
	if err != nil {
		return nil, nil, err
	}
	return nil, meanSurface, meanSurface.WriteASC(r.artifact("probability.asc"))
}

func (r *Runner) validate(validation *dataset.Table, classMap, meanSurface *grid.Grid) error {
	if r.cfg.Mode == ModeClass {
		report, err := EvaluateCategorical(validation, classMap, r.cfg.BufferDistance)
		if err != nil {
			return err
		}
		return WriteJSON(r.artifact("validation.json"), report)
	}
	report, err := EvaluateContinuous(validation, meanSurface)
	if err != nil {
		return err
	}
	return WriteJSON(r.artifact("validation.json"), report)
}

func (r *Runner) writeImportance(best *Selection, ensemble *Ensemble) error {
	var selected []float64
	if r.cfg.Mode == ModeClass {
		selected = best.Fit.Classifier.RelativeInfluence()
	} else {
		selected = best.Fit.Model.RelativeInfluence()
	}
	if allZero(selected) {
		r.logger.Warn("selected model reports no split gain")
	}

	var members [][]float64
	if ensemble != nil {
		for _, m := range ensemble.Members {
			if m.Classifier != nil {
				members = append(members, m.Classifier.RelativeInfluence())
			} else {
				members = append(members, m.Model.RelativeInfluence())
			}
		}
	}
	return WriteImportanceCSV(r.artifact("importance.csv"), r.cfg.Predictors, selected, members)
}

func (r *Runner) artifact(name string) string {
	return filepath.Join(r.cfg.OutputDir, r.cfg.OutputLabel+"_"+name)
}

func allZero(values []float64) bool {
	for _, v := range values {
		if v != 0 && !math.IsNaN(v) {
			return false
		}
	}
	return true
}
