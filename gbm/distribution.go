// Package gbm implements gradient-boosted regression and classification
// trees for habitat modelling: an additive ensemble of small regression
// trees, each fit to the gradient of the deviance of the current ensemble,
// with stochastic bag-fraction subsampling and shrinkage.
package gbm

import (
	"math"

	"github.com/oceanbench/habmap/pkg/errors"
)

// Distribution defines the response family for boosting. Implementations
// supply the per-observation gradient and hessian of the deviance with
// respect to the raw score, the intercept-only starting score, the deviance
// itself, and the link from raw score to the response scale.
type Distribution interface {
	// Gradient returns the negative gradient (working residual) for one
	// observation at the current raw score.
	Gradient(score, target float64) float64

	// Hessian returns the second derivative of the deviance for one
	// observation at the current raw score.
	Hessian(score, target float64) float64

	// Deviance returns the per-observation deviance at the current raw score.
	Deviance(score, target float64) float64

	// InitScore returns the raw score of the intercept-only model.
	InitScore(targets []float64) (float64, error)

	// Link converts a raw score to the response scale.
	Link(score float64) float64

	// Name returns the family name.
	Name() string
}

// NewDistribution returns the Distribution for a family name.
func NewDistribution(name string) (Distribution, error) {
	switch name {
	case "bernoulli":
		return Bernoulli{}, nil
	case "gaussian":
		return Gaussian{}, nil
	default:
		return nil, errors.NewValueError("NewDistribution", "unknown distribution: "+name)
	}
}

const probEps = 1e-12

func clampProb(p float64) float64 {
	if p < probEps {
		return probEps
	}
	if p > 1-probEps {
		return 1 - probEps
	}
	return p
}

func sigmoid(score float64) float64 {
	return 1.0 / (1.0 + math.Exp(-score))
}

// Bernoulli is the presence/absence family. Raw scores are on the logit
// scale; Link applies the logistic function.
type Bernoulli struct{}

func (Bernoulli) Gradient(score, target float64) float64 {
	return target - sigmoid(score)
}

func (Bernoulli) Hessian(score, target float64) float64 {
	p := sigmoid(score)
	return p * (1 - p)
}

func (Bernoulli) Deviance(score, target float64) float64 {
	p := clampProb(sigmoid(score))
	return -2 * (target*math.Log(p) + (1-target)*math.Log(1-p))
}

// InitScore returns the log-odds of the observed prevalence. A response with
// a single observed class has no finite log-odds; that is reported as an
// error and surfaces downstream as a non-convergent fit.
func (Bernoulli) InitScore(targets []float64) (float64, error) {
	if len(targets) == 0 {
		return 0, errors.ErrEmptyData
	}
	sum := 0.0
	for _, t := range targets {
		sum += t
	}
	p := sum / float64(len(targets))
	if p <= 0 || p >= 1 {
		return 0, errors.NewValueError("Bernoulli.InitScore", "response has a single observed class")
	}
	return math.Log(p / (1 - p)), nil
}

func (Bernoulli) Link(score float64) float64 {
	return sigmoid(score)
}

func (Bernoulli) Name() string { return "bernoulli" }

// Gaussian is the continuous-response family with squared-error deviance.
type Gaussian struct{}

func (Gaussian) Gradient(score, target float64) float64 {
	return target - score
}

func (Gaussian) Hessian(score, target float64) float64 {
	return 1.0
}

func (Gaussian) Deviance(score, target float64) float64 {
	d := target - score
	return d * d
}

func (Gaussian) InitScore(targets []float64) (float64, error) {
	if len(targets) == 0 {
		return 0, errors.ErrEmptyData
	}
	sum := 0.0
	for _, t := range targets {
		sum += t
	}
	return sum / float64(len(targets)), nil
}

func (Gaussian) Link(score float64) float64 { return score }

func (Gaussian) Name() string { return "gaussian" }

// meanDeviance returns the mean per-observation deviance of scores against
// targets for the given subset of indices.
func meanDeviance(dist Distribution, scores, targets []float64, indices []int) float64 {
	if len(indices) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, i := range indices {
		sum += dist.Deviance(scores[i], targets[i])
	}
	return sum / float64(len(indices))
}
