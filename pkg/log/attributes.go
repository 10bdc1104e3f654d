package log

// Standard attribute keys used across pipeline logging. Keys follow a
// hierarchical naming convention ("run.id", "data.rows") so downstream log
// analysis can filter on them.
const (
	// ComponentKey identifies the package or component emitting the record.
	ComponentKey = "component"

	// RunIDKey carries the UUID of the pipeline run.
	RunIDKey = "run.id"

	// StageKey names the pipeline stage: "split", "tuning", "selection",
	// "bootstrap", "predict", "validate".
	StageKey = "run.stage"

	// RegionKey carries the configured region label.
	RegionKey = "run.region"

	// RowsKey is the number of point records involved in an operation.
	RowsKey = "data.rows"

	// PredictorsKey is the number of predictor columns.
	PredictorsKey = "data.predictors"

	// CellsKey is the number of raster cells processed.
	CellsKey = "data.cells"

	// GridIndexKey is the hyperparameter grid cell index of a fit task.
	GridIndexKey = "fit.grid_index"

	// MemberKey is the bootstrap member index of a fit task.
	MemberKey = "fit.member"

	// SeedKey is the random seed driving a stage.
	SeedKey = "fit.seed"

	// DurationMsKey is elapsed wall time in milliseconds.
	DurationMsKey = "duration_ms"
)
