package metrics

import (
	"math"
	"sort"

	"github.com/oceanbench/habmap/pkg/errors"
)

// AUC is the area under the ROC curve, computed from the rank-sum
// formulation (Mann-Whitney U). Ties in the predicted scores receive
// their average rank. Observed values are presence (1) or absence (0).
//
// When the observed validation set holds a single class the statistic is
// undefined: AUC emits an UndefinedMetricWarning and returns NaN.
func AUC(observed, predicted []float64) (float64, error) {
	if err := checkPaired("AUC", observed, predicted); err != nil {
		return 0, err
	}

	positives := 0
	for _, o := range observed {
		if o > 0.5 {
			positives++
		}
	}
	negatives := len(observed) - positives
	if positives == 0 || negatives == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("AUC", "single observed class in validation set", math.NaN()))
		return math.NaN(), nil
	}

	idx := make([]int, len(predicted))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return predicted[idx[a]] < predicted[idx[b]] })

	// Average ranks over tied scores, then sum the positive ranks.
	ranks := make([]float64, len(predicted))
	for i := 0; i < len(idx); {
		j := i
		for j < len(idx) && predicted[idx[j]] == predicted[idx[i]] {
			j++
		}
		avg := float64(i+j+1) / 2 // ranks are 1-based
		for k := i; k < j; k++ {
			ranks[idx[k]] = avg
		}
		i = j
	}

	rankSum := 0.0
	for i, o := range observed {
		if o > 0.5 {
			rankSum += ranks[i]
		}
	}
	np := float64(positives)
	nn := float64(negatives)
	return (rankSum - np*(np+1)/2) / (np * nn), nil
}
