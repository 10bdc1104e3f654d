package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/oceanbench/habmap/pkg/errors"
)

// Load builds a Config by layering sources, low to high precedence:
//  1. defaults (New)
//  2. YAML file named by HABMAP_CONFIG, if set
//  3. environment variables with the HABMAP_ prefix
//
// HABMAP_POINTS_PATH maps to points_path, and so on for the other flat
// keys.
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv("HABMAP_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "loading config file %s", path)
		}
	}

	envProvider := env.Provider("HABMAP_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "habmap_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, errors.Wrap(err, "loading environment")
	}

	cfg := *New()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, errors.Wrap(err, "unmarshaling config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations no pipeline run could execute.
func (c *Config) Validate() error {
	switch c.Mode {
	case "presence", "class":
	default:
		return errors.NewValueError("config", "mode must be presence or class")
	}
	if (c.CalibrationPath == "") != (c.ValidationPath == "") {
		return errors.NewValueError("config", "calibration_path and validation_path must be set together")
	}
	if c.PointsPath == "" && c.CalibrationPath == "" {
		return errors.NewValueError("config", "either points_path or a calibration/validation file pair is required")
	}
	if c.CalibrationPath != "" && len(c.CoverColumns) > 0 {
		return errors.NewValueError("config", "cover columns require a single points file with a validation column")
	}
	if len(c.Predictors) == 0 {
		return errors.NewValueError("config", "at least one predictor is required")
	}
	if len(c.LearningRates) == 0 || len(c.BagFractions) == 0 || len(c.TreeComplexities) == 0 {
		return errors.NewValueError("config", "every hyperparameter candidate list must be non-empty")
	}
	for _, lr := range c.LearningRates {
		if lr <= 0 || lr > 1 {
			return errors.NewValueError("config", "learning rates must be in (0, 1]")
		}
	}
	for _, bf := range c.BagFractions {
		if bf <= 0 || bf > 1 {
			return errors.NewValueError("config", "bag fractions must be in (0, 1]")
		}
	}
	for _, tc := range c.TreeComplexities {
		if tc < 1 {
			return errors.NewValueError("config", "tree complexities must be >= 1")
		}
	}
	if c.Folds < 2 {
		return errors.NewValueError("config", "folds must be >= 2")
	}
	if c.MaxTrees < 1 {
		return errors.NewValueError("config", "max_trees must be >= 1")
	}
	if c.Bootstraps < 0 {
		return errors.NewValueError("config", "bootstraps must be >= 0")
	}
	if c.BufferDistance < 0 {
		return errors.NewValueError("config", "buffer_distance must be >= 0")
	}
	if c.Mode == "class" && c.Clusters < 2 {
		return errors.NewValueError("config", "clusters must be >= 2 for the class workflow")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.NewValueError("config", "log_level must be debug, info, warn or error")
	}
	return nil
}
