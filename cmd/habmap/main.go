// Command habmap runs the full habitat-mapping pipeline: point loading,
// hyperparameter tuning, bootstrap uncertainty and grid prediction.
// Configuration layers defaults, an optional YAML file (HABMAP_CONFIG)
// and HABMAP_-prefixed environment variables.
package main

import (
	"os"

	"github.com/oceanbench/habmap/config"
	"github.com/oceanbench/habmap/pipeline"
	"github.com/oceanbench/habmap/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("habmap: invalid configuration: " + err.Error() + "\n")
		os.Exit(2)
	}

	log.SetupLogger(cfg.LogLevel)
	logger := log.GetLogger()

	if err := pipeline.NewRunner(cfg).Run(); err != nil {
		logger.Error("run failed", log.ErrAttr(err))
		os.Exit(1)
	}
}
