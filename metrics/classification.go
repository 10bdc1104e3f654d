package metrics

import (
	"sort"

	"github.com/oceanbench/habmap/pkg/errors"
)

// ConfusionMatrix tabulates observed against predicted class labels.
// Rows are observed classes, columns predicted, both in Classes order.
type ConfusionMatrix struct {
	Classes []int   `json:"classes"`
	Counts  [][]int `json:"counts"`
}

// NewConfusionMatrix builds a matrix over the union of labels seen in
// either slice.
func NewConfusionMatrix(observed, predicted []int) (*ConfusionMatrix, error) {
	if len(observed) == 0 {
		return nil, errors.ErrEmptyData
	}
	if len(observed) != len(predicted) {
		return nil, errors.NewDimensionError("NewConfusionMatrix", len(observed), len(predicted), 0)
	}

	seen := make(map[int]bool)
	for _, c := range observed {
		seen[c] = true
	}
	for _, c := range predicted {
		seen[c] = true
	}
	classes := make([]int, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	index := make(map[int]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	counts := make([][]int, len(classes))
	for i := range counts {
		counts[i] = make([]int, len(classes))
	}
	for i := range observed {
		counts[index[observed[i]]][index[predicted[i]]]++
	}
	return &ConfusionMatrix{Classes: classes, Counts: counts}, nil
}

// Total is the number of tabulated observations.
func (m *ConfusionMatrix) Total() int {
	n := 0
	for _, row := range m.Counts {
		for _, c := range row {
			n += c
		}
	}
	return n
}

// Accuracy is the fraction of observations on the diagonal.
func (m *ConfusionMatrix) Accuracy() float64 {
	total := m.Total()
	if total == 0 {
		return 0
	}
	diag := 0
	for i := range m.Counts {
		diag += m.Counts[i][i]
	}
	return float64(diag) / float64(total)
}

// Kappa is Cohen's kappa, chance-corrected agreement. Perfect expected
// agreement yields 0.
func (m *ConfusionMatrix) Kappa() float64 {
	total := float64(m.Total())
	if total == 0 {
		return 0
	}
	po := m.Accuracy()
	pe := 0.0
	for i := range m.Classes {
		rowSum := 0
		colSum := 0
		for j := range m.Classes {
			rowSum += m.Counts[i][j]
			colSum += m.Counts[j][i]
		}
		pe += float64(rowSum) / total * float64(colSum) / total
	}
	if pe == 1 {
		return 0
	}
	return (po - pe) / (1 - pe)
}

// ClassStats holds per-class agreement statistics. Precision, recall and
// F1 are 0 when their denominators are zero; each such case raises an
// UndefinedMetricWarning.
type ClassStats struct {
	Class     int     `json:"class"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// PerClass returns one ClassStats per class, in Classes order.
func (m *ConfusionMatrix) PerClass() []ClassStats {
	stats := make([]ClassStats, len(m.Classes))
	for i, class := range m.Classes {
		tp := m.Counts[i][i]
		observed := 0
		predicted := 0
		for j := range m.Classes {
			observed += m.Counts[i][j]
			predicted += m.Counts[j][i]
		}
		s := ClassStats{Class: class, Support: observed}
		if predicted > 0 {
			s.Precision = float64(tp) / float64(predicted)
		} else {
			errors.Warn(errors.NewUndefinedMetricWarning("precision", "class never predicted", 0))
		}
		if observed > 0 {
			s.Recall = float64(tp) / float64(observed)
		} else {
			errors.Warn(errors.NewUndefinedMetricWarning("recall", "class never observed", 0))
		}
		if s.Precision+s.Recall > 0 {
			s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
		} else {
			errors.Warn(errors.NewUndefinedMetricWarning("f1", "precision and recall both zero", 0))
		}
		stats[i] = s
	}
	return stats
}
