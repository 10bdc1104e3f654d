// Package config defines the run configuration for the habitat-mapping
// pipeline and loads it by layering defaults, an optional YAML file and
// environment variables.
package config

import (
	"runtime"
)

// Config holds every recognized option for one pipeline run.
type Config struct {
	// Region labels the run; it appears in logs and artifact metadata
	// but carries no semantics.
	Region string `koanf:"region"`

	// Response names the response column in the points file.
	Response string `koanf:"response"`

	// OutputLabel prefixes artifact file names.
	OutputLabel string `koanf:"output_label"`

	// Mode selects the workflow: "presence" fits a Bernoulli presence
	// model, "class" fits a multi-class habitat model.
	Mode string `koanf:"mode"`

	// PointsPath is the CSV of survey points, with a truthy "validation"
	// column flagging held-out records.
	PointsPath string `koanf:"points_path"`

	// CalibrationPath and ValidationPath name a pre-split pair of point
	// files and replace PointsPath when both are set. No validation
	// column is needed; the file boundary is the split.
	CalibrationPath string `koanf:"calibration_path"`
	ValidationPath  string `koanf:"validation_path"`

	// PredictorDir holds one ESRI ASCII grid per predictor, named
	// <predictor>.asc.
	PredictorDir string `koanf:"predictor_dir"`

	// Predictors lists the predictor layers, in model column order.
	Predictors []string `koanf:"predictors"`

	// CoverColumns names species cover columns in the points file. When
	// set in class mode, sites are clustered on these columns into
	// Clusters habitat classes and the cluster labels become the
	// response.
	CoverColumns []string `koanf:"cover_columns"`

	// OutputDir receives all artifacts.
	OutputDir string `koanf:"output_dir"`

	// Candidate hyperparameter lists for the tuning grid.
	LearningRates    []float64 `koanf:"learning_rates"`
	BagFractions     []float64 `koanf:"bag_fractions"`
	TreeComplexities []int     `koanf:"tree_complexities"`
	MinObsInNode     int       `koanf:"min_obs_in_node"`
	MaxTrees         int       `koanf:"max_trees"`

	// Folds is the cross-validation fold count used during tuning.
	Folds int `koanf:"folds"`

	// Bootstraps is the number of bootstrap ensemble members.
	Bootstraps int `koanf:"bootstraps"`

	// BufferDistance is the validation match radius, in grid units,
	// covering positional uncertainty of the survey points.
	BufferDistance float64 `koanf:"buffer_distance"`

	// Clusters is the habitat class count for the class workflow.
	Clusters int `koanf:"clusters"`

	// Seed drives every random draw in the run.
	Seed uint64 `koanf:"seed"`

	// Workers bounds the fit worker pool; 0 means cores minus one.
	Workers int `koanf:"workers"`

	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Region:           "region",
		Response:         "presence",
		OutputLabel:      "habmap",
		Mode:             "presence",
		OutputDir:        "out",
		LearningRates:    []float64{0.01, 0.005},
		BagFractions:     []float64{0.5, 0.75},
		TreeComplexities: []int{1, 2, 3},
		MinObsInNode:     10,
		MaxTrees:         2000,
		Folds:            10,
		Bootstraps:       100,
		BufferDistance:   25,
		Clusters:         7,
		Seed:             1,
		Workers:          0,
		LogLevel:         "info",
	}
}

// EffectiveWorkers resolves Workers to a concrete pool size.
func (c *Config) EffectiveWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}
