package gbm

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/oceanbench/habmap/pkg/errors"
)

// FitStats are the derived statistics of one tuned fit. CVMeanDeviance and
// CVSEDeviance come from held-out folds, which is what model selection
// scores on; MeanResidDeviance is the training deviance of the final refit.
type FitStats struct {
	MeanTotalDeviance float64 `json:"mean_total_deviance"`
	MeanResidDeviance float64 `json:"mean_resid_deviance"`
	CVMeanDeviance    float64 `json:"cv_mean_deviance"`
	CVSEDeviance      float64 `json:"cv_se_deviance"`
	BestTrees         int     `json:"best_trees"`

	// Classification-only statistics from held-out folds.
	CVAccuracy float64 `json:"cv_accuracy,omitempty"`
	CVKappa    float64 `json:"cv_kappa,omitempty"`
}

// PercentDevianceExplained is (total - cv) / total x 100, using the
// cross-validated deviance so the score is not inflated by overfitting.
func (s *FitStats) PercentDevianceExplained() float64 {
	if s.MeanTotalDeviance == 0 {
		return math.NaN()
	}
	return (s.MeanTotalDeviance - s.CVMeanDeviance) / s.MeanTotalDeviance * 100
}

// FitCV tunes the tree count by k-fold cross-validation and refits on the
// full data at the optimal count. For each fold it boosts the full NTrees
// iterations while tracking held-out deviance per iteration; the optimal
// count is the iteration with the smallest mean held-out deviance across
// folds. The returned model is trained on all rows with exactly that many
// trees.
func (t *Trainer) FitCV(X mat.Matrix, y []float64, folds int) (*Model, *FitStats, error) {
	rows, _ := X.Dims()
	if rows == 0 {
		return nil, nil, errors.ErrEmptyData
	}
	if folds < 2 {
		return nil, nil, errors.NewValueError("FitCV", "folds must be >= 2")
	}
	if folds > rows {
		return nil, nil, errors.NewValueError("FitCV", "more folds than rows")
	}

	assignment := foldAssignment(rows, folds, t.params.Seed)

	// foldDev[f][iter] is fold f's held-out mean deviance after iter+1 trees.
	foldDev := make([][]float64, folds)
	for f := 0; f < folds; f++ {
		trainIdx, testIdx := splitFold(assignment, f)

		trainX, trainY := subset(X, y, trainIdx)
		testX, testY := subset(X, y, testIdx)

		foldTrainer, err := NewTrainer(t.params)
		if err != nil {
			return nil, nil, err
		}
		_, dev, err := foldTrainer.fitBoost(trainX, trainY, testX, testY)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "cv fold %d", f)
		}
		foldDev[f] = dev
	}

	nIter := t.params.NTrees
	bestIter := 0
	bestMean := math.Inf(1)
	var bestSE float64
	for iter := 0; iter < nIter; iter++ {
		mean, se := meanAndSE(foldDev, iter)
		if mean < bestMean {
			bestMean = mean
			bestSE = se
			bestIter = iter
		}
	}

	if !errors.AllFinite(bestMean, bestSE) {
		return nil, nil, errors.NewValueError("FitCV", "non-finite cross-validated deviance")
	}

	totalDev, err := t.totalDeviance(y)
	if err != nil {
		return nil, nil, errors.Wrap(err, "total deviance")
	}

	finalParams := t.params
	finalParams.NTrees = bestIter + 1
	finalTrainer, err := NewTrainer(finalParams)
	if err != nil {
		return nil, nil, err
	}
	model, err := finalTrainer.Fit(X, y)
	if err != nil {
		return nil, nil, errors.Wrap(err, "final refit")
	}

	residDev := 0.0
	features := make([]float64, model.NumPredictor)
	for i := 0; i < rows; i++ {
		rowInto(X, i, features)
		score, perr := model.PredictRaw(features)
		if perr != nil {
			return nil, nil, perr
		}
		residDev += t.dist.Deviance(score, y[i])
	}
	residDev /= float64(rows)

	stats := &FitStats{
		MeanTotalDeviance: totalDev,
		MeanResidDeviance: residDev,
		CVMeanDeviance:    bestMean,
		CVSEDeviance:      bestSE,
		BestTrees:         bestIter + 1,
	}
	if err := errors.CheckFinite("FitCV", stats.MeanTotalDeviance, stats.MeanResidDeviance); err != nil {
		return nil, nil, err
	}
	return model, stats, nil
}

// foldAssignment shuffles row indices with the seeded generator and deals
// them round-robin into folds, so the assignment is reproducible per seed.
func foldAssignment(rows, folds int, seed int64) []int {
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)+1))
	perm := rng.Perm(rows)
	assignment := make([]int, rows)
	for pos, idx := range perm {
		assignment[idx] = pos % folds
	}
	return assignment
}

func splitFold(assignment []int, fold int) (train, test []int) {
	for i, f := range assignment {
		if f == fold {
			test = append(test, i)
		} else {
			train = append(train, i)
		}
	}
	return train, test
}

func subset(X mat.Matrix, y []float64, indices []int) (*mat.Dense, []float64) {
	_, cols := X.Dims()
	sub := mat.NewDense(len(indices), cols, nil)
	subY := make([]float64, len(indices))
	for i, idx := range indices {
		for j := 0; j < cols; j++ {
			sub.Set(i, j, X.At(idx, j))
		}
		subY[i] = y[idx]
	}
	return sub, subY
}

// meanAndSE returns the mean and standard error of foldDev[*][iter].
func meanAndSE(foldDev [][]float64, iter int) (float64, float64) {
	n := len(foldDev)
	sum := 0.0
	for _, dev := range foldDev {
		sum += dev[iter]
	}
	mean := sum / float64(n)

	if n < 2 {
		return mean, 0
	}
	ss := 0.0
	for _, dev := range foldDev {
		d := dev[iter] - mean
		ss += d * d
	}
	sd := math.Sqrt(ss / float64(n-1))
	return mean, sd / math.Sqrt(float64(n))
}
