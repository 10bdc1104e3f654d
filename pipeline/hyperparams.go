// Package pipeline sequences the habitat-mapping run: split the points,
// tune hyperparameters over a grid of cross-validated fits, select the
// best candidate, build a bootstrap ensemble, predict over the raster
// stack and validate against the held-out points.
package pipeline

import (
	"fmt"

	"github.com/oceanbench/habmap/pkg/errors"
)

// Hyperparameters identifies one tuning grid cell. Immutable once
// constructed.
type Hyperparameters struct {
	LearningRate   float64 `json:"learning_rate"`
	BagFraction    float64 `json:"bag_fraction"`
	TreeComplexity int     `json:"tree_complexity"`
}

func (h Hyperparameters) String() string {
	return fmt.Sprintf("lr=%g bf=%g tc=%d", h.LearningRate, h.BagFraction, h.TreeComplexity)
}

// Grid holds the candidate values for each tuned hyperparameter.
type Grid struct {
	LearningRates    []float64
	BagFractions     []float64
	TreeComplexities []int
}

// Enumerate expands the Cartesian product in a fixed order: learning
// rate varies slowest, tree complexity fastest. The order is part of the
// contract; tuning rows and selection indices refer to it.
func (g Grid) Enumerate() ([]Hyperparameters, error) {
	if len(g.LearningRates) == 0 || len(g.BagFractions) == 0 || len(g.TreeComplexities) == 0 {
		return nil, errors.NewValueError("Grid", "every candidate list must be non-empty")
	}
	out := make([]Hyperparameters, 0, len(g.LearningRates)*len(g.BagFractions)*len(g.TreeComplexities))
	for _, lr := range g.LearningRates {
		for _, bf := range g.BagFractions {
			for _, tc := range g.TreeComplexities {
				out = append(out, Hyperparameters{
					LearningRate:   lr,
					BagFraction:    bf,
					TreeComplexity: tc,
				})
			}
		}
	}
	return out, nil
}
