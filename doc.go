// Package habmap maps marine habitat from survey points and
// environmental raster layers using boosted tree models.
//
// The repository implements two workflows. A presence workflow fits a
// boosted regression tree to presence/absence points and predicts a
// probability surface with bootstrap uncertainty. A class workflow
// clusters species cover into habitat classes and fits a boosted
// classification tree that predicts a habitat class map.
//
// Both run the same pipeline: load points and predictor rasters, split
// calibration from held-out validation points, tune hyperparameters over
// a cross-validated grid sweep, select the best candidate, refit on
// bootstrap resamples for uncertainty, predict over the raster stack and
// validate against the held-out points.
//
// # Packages
//
//   - dataset: point tables, CSV schemas, calibration/validation splits
//   - grid: in-memory rasters, ESRI ASCII grid I/O, layer stacks
//   - gbm: the gradient-boosted tree engine and its cross-validation
//   - cluster: agglomerative clustering of sites into habitat classes
//   - metrics: validation statistics, from AUC to Moran's I
//   - pipeline: the staged run, its artifacts and checkpoints
//   - config: koanf-layered run configuration
//
// The habmap command under cmd/habmap executes a full run from
// configuration to artifacts.
package habmap
