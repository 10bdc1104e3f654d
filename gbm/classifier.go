package gbm

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/oceanbench/habmap/pkg/errors"
)

// Classifier predicts a categorical habitat class with one bernoulli
// ensemble per class (one-vs-rest); the predicted class is the one with the
// largest probability. The multinomial family of the boosting literature is
// deliberately not used here; the one-vs-rest decomposition keeps every
// member a plain bernoulli fit with the same tuning surface as the
// presence models.
type Classifier struct {
	Classes []int    `json:"classes"` // sorted observed class labels
	Models  []*Model `json:"models"`  // index-aligned with Classes
}

// ClassLabels returns the distinct labels observed in y, sorted ascending.
func ClassLabels(y []int) []int {
	seen := make(map[int]bool)
	for _, c := range y {
		seen[c] = true
	}
	labels := make([]int, 0, len(seen))
	for c := range seen {
		labels = append(labels, c)
	}
	sort.Ints(labels)
	return labels
}

// FitClassifier trains one bernoulli ensemble per observed class. The
// Distribution field of params is ignored; every member is bernoulli.
func FitClassifier(X mat.Matrix, y []int, params Params) (*Classifier, error) {
	rows, _ := X.Dims()
	if rows == 0 {
		return nil, errors.ErrEmptyData
	}
	if len(y) != rows {
		return nil, errors.NewDimensionError("FitClassifier", rows, len(y), 0)
	}

	labels := ClassLabels(y)
	if len(labels) < 2 {
		return nil, errors.NewValueError("FitClassifier", "need at least two classes")
	}

	params.Distribution = "bernoulli"
	clf := &Classifier{Classes: labels, Models: make([]*Model, len(labels))}

	binY := make([]float64, rows)
	for k, label := range labels {
		for i, c := range y {
			if c == label {
				binY[i] = 1
			} else {
				binY[i] = 0
			}
		}
		memberParams := params
		memberParams.Seed = params.Seed + int64(k)
		trainer, err := NewTrainer(memberParams)
		if err != nil {
			return nil, err
		}
		model, err := trainer.Fit(X, binY)
		if err != nil {
			return nil, errors.Wrapf(err, "class %d", label)
		}
		clf.Models[k] = model
	}
	return clf, nil
}

// PredictProba returns the per-class probabilities (one-vs-rest scores
// normalized to sum to one), index-aligned with Classes.
func (c *Classifier) PredictProba(features []float64) ([]float64, error) {
	probs := make([]float64, len(c.Models))
	total := 0.0
	for k, m := range c.Models {
		p, err := m.Predict(features)
		if err != nil {
			return nil, err
		}
		probs[k] = p
		total += p
	}
	if total > 0 {
		for k := range probs {
			probs[k] /= total
		}
	}
	return probs, nil
}

// PredictClass returns the class label with the largest probability. Ties
// resolve to the lowest label, keeping prediction deterministic.
func (c *Classifier) PredictClass(features []float64) (int, error) {
	probs, err := c.PredictProba(features)
	if err != nil {
		return 0, err
	}
	best := 0
	for k := 1; k < len(probs); k++ {
		if probs[k] > probs[best] {
			best = k
		}
	}
	return c.Classes[best], nil
}

// RelativeInfluence averages the per-class relative influence across all
// member models.
func (c *Classifier) RelativeInfluence() []float64 {
	if len(c.Models) == 0 {
		return nil
	}
	out := make([]float64, len(c.Models[0].Importance))
	for _, m := range c.Models {
		for i, v := range m.RelativeInfluence() {
			out[i] += v
		}
	}
	for i := range out {
		out[i] /= float64(len(c.Models))
	}
	return out
}

// FitClassifierCV estimates held-out accuracy and kappa by k-fold
// cross-validation with the tree count fixed at params.NTrees, then fits the
// final classifier on all rows. Tuning the tree count by deviance is a
// per-member concern the one-vs-rest decomposition does not expose, so the
// tree count stays pinned for every member.
func FitClassifierCV(X mat.Matrix, y []int, folds int, params Params) (*Classifier, *FitStats, error) {
	rows, _ := X.Dims()
	if rows == 0 {
		return nil, nil, errors.ErrEmptyData
	}
	if folds < 2 || folds > rows {
		return nil, nil, errors.NewValueError("FitClassifierCV", "folds must be in [2, rows]")
	}

	params = params.withDefaults()
	assignment := foldAssignment(rows, folds, params.Seed)

	observed := make([]int, 0, rows)
	predicted := make([]int, 0, rows)
	features := make([]float64, colsOf(X))

	for f := 0; f < folds; f++ {
		trainIdx, testIdx := splitFold(assignment, f)

		trainX, _ := subset(X, make([]float64, rows), trainIdx)
		trainY := make([]int, len(trainIdx))
		for i, idx := range trainIdx {
			trainY[i] = y[idx]
		}

		clf, err := FitClassifier(trainX, trainY, params)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "cv fold %d", f)
		}

		for _, idx := range testIdx {
			rowInto(X, idx, features)
			pred, err := clf.PredictClass(features)
			if err != nil {
				return nil, nil, err
			}
			observed = append(observed, y[idx])
			predicted = append(predicted, pred)
		}
	}

	accuracy, kappa := agreement(observed, predicted)

	final, err := FitClassifier(X, y, params)
	if err != nil {
		return nil, nil, errors.Wrap(err, "final fit")
	}

	stats := &FitStats{
		BestTrees:  params.NTrees,
		CVAccuracy: accuracy,
		CVKappa:    kappa,
	}
	return final, stats, nil
}

func colsOf(X mat.Matrix) int {
	_, cols := X.Dims()
	return cols
}

// agreement computes overall accuracy and Cohen's kappa for paired label
// slices.
func agreement(observed, predicted []int) (accuracy, kappa float64) {
	n := len(observed)
	if n == 0 {
		return 0, 0
	}

	correct := 0
	obsCount := make(map[int]int)
	predCount := make(map[int]int)
	for i := range observed {
		if observed[i] == predicted[i] {
			correct++
		}
		obsCount[observed[i]]++
		predCount[predicted[i]]++
	}
	accuracy = float64(correct) / float64(n)

	expected := 0.0
	for label, oc := range obsCount {
		expected += float64(oc) * float64(predCount[label]) / float64(n) / float64(n)
	}
	if expected >= 1 {
		return accuracy, 0
	}
	kappa = (accuracy - expected) / (1 - expected)
	return accuracy, kappa
}
