// Package metrics computes the validation statistics the pipeline reports:
// continuous accuracy measures for presence models, confusion-matrix
// statistics for habitat-class models, and Moran's I for spatial
// autocorrelation of residuals.
package metrics

import (
	"math"

	"github.com/oceanbench/habmap/pkg/errors"
)

// Bias is mean(observed - predicted). Positive bias means the model
// underpredicts.
func Bias(observed, predicted []float64) (float64, error) {
	if err := checkPaired("Bias", observed, predicted); err != nil {
		return 0, err
	}
	sum := 0.0
	for i := range observed {
		sum += observed[i] - predicted[i]
	}
	return sum / float64(len(observed)), nil
}

// MAE is the mean absolute error.
func MAE(observed, predicted []float64) (float64, error) {
	if err := checkPaired("MAE", observed, predicted); err != nil {
		return 0, err
	}
	sum := 0.0
	for i := range observed {
		sum += math.Abs(observed[i] - predicted[i])
	}
	return sum / float64(len(observed)), nil
}

// RMSE is the root mean squared error.
func RMSE(observed, predicted []float64) (float64, error) {
	if err := checkPaired("RMSE", observed, predicted); err != nil {
		return 0, err
	}
	sum := 0.0
	for i := range observed {
		d := observed[i] - predicted[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(observed))), nil
}

// BernoulliPDE is percent deviance explained for a presence/absence
// validation set, computed against that set's own total deviance (the
// deviance of its observed prevalence). Predictions are probabilities.
func BernoulliPDE(observed, predicted []float64) (float64, error) {
	if err := checkPaired("BernoulliPDE", observed, predicted); err != nil {
		return 0, err
	}

	prevalence := 0.0
	for _, o := range observed {
		prevalence += o
	}
	prevalence /= float64(len(observed))
	if prevalence <= 0 || prevalence >= 1 {
		return 0, errors.NewValueError("BernoulliPDE", "validation response has a single observed class")
	}

	total := 0.0
	resid := 0.0
	for i := range observed {
		total += bernoulliDeviance(observed[i], prevalence)
		resid += bernoulliDeviance(observed[i], predicted[i])
	}
	if total == 0 {
		return 0, errors.NewValueError("BernoulliPDE", "zero total deviance")
	}
	return (total - resid) / total * 100, nil
}

const devianceProbEps = 1e-12

func bernoulliDeviance(observed, p float64) float64 {
	if p < devianceProbEps {
		p = devianceProbEps
	}
	if p > 1-devianceProbEps {
		p = 1 - devianceProbEps
	}
	return -2 * (observed*math.Log(p) + (1-observed)*math.Log(1-p))
}

func checkPaired(op string, observed, predicted []float64) error {
	if len(observed) == 0 {
		return errors.ErrEmptyData
	}
	if len(observed) != len(predicted) {
		return errors.NewDimensionError(op, len(observed), len(predicted), 0)
	}
	return nil
}
