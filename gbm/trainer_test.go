package gbm

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// separableData builds a two-predictor presence/absence set where presence
// depends only on the first predictor.
func separableData(n int) (*mat.Dense, []float64) {
	X := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x1 := float64(i) / float64(n)
		x2 := float64(i%7) / 7.0
		X.Set(i, 0, x1)
		X.Set(i, 1, x2)
		if x1 > 0.5 {
			y[i] = 1
		}
	}
	return X, y
}

func TestFitBernoulliSeparable(t *testing.T) {
	X, y := separableData(200)

	trainer, err := NewTrainer(Params{
		Distribution:   "bernoulli",
		LearningRate:   0.1,
		BagFraction:    0.75,
		TreeComplexity: 2,
		MinObsInNode:   5,
		NTrees:         50,
		Seed:           11,
	})
	if err != nil {
		t.Fatalf("NewTrainer: %v", err)
	}

	model, err := trainer.Fit(X, y)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if model.NumTrees() != 50 {
		t.Errorf("NumTrees = %d, want 50", model.NumTrees())
	}

	pLow, err := model.Predict([]float64{0.1, 0.3})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	pHigh, err := model.Predict([]float64{0.9, 0.3})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if pLow >= 0.5 {
		t.Errorf("absence-side probability = %f, want < 0.5", pLow)
	}
	if pHigh <= 0.5 {
		t.Errorf("presence-side probability = %f, want > 0.5", pHigh)
	}
}

func TestFitGaussianReducesDeviance(t *testing.T) {
	n := 150
	X := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x1 := float64(i) / 15.0
		x2 := float64(i%5) / 5.0
		X.Set(i, 0, x1)
		X.Set(i, 1, x2)
		y[i] = 2*x1 + 3*x2
	}

	trainer, err := NewTrainer(Params{
		Distribution:   "gaussian",
		LearningRate:   0.1,
		BagFraction:    1.0,
		TreeComplexity: 3,
		MinObsInNode:   5,
		NTrees:         100,
		Seed:           3,
	})
	if err != nil {
		t.Fatalf("NewTrainer: %v", err)
	}
	model, err := trainer.Fit(X, y)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	total, err := trainer.totalDeviance(y)
	if err != nil {
		t.Fatalf("totalDeviance: %v", err)
	}

	preds, err := model.PredictMatrix(X)
	if err != nil {
		t.Fatalf("PredictMatrix: %v", err)
	}
	resid := 0.0
	for i := range preds {
		d := y[i] - preds[i]
		resid += d * d
	}
	resid /= float64(n)

	if resid >= total/2 {
		t.Errorf("training deviance %f should be well below intercept-only %f", resid, total)
	}
}

func TestFitSingleClassFails(t *testing.T) {
	X := mat.NewDense(30, 1, nil)
	y := make([]float64, 30) // all zeros: no finite log-odds
	for i := 0; i < 30; i++ {
		X.Set(i, 0, float64(i))
	}

	trainer, err := NewTrainer(Params{Distribution: "bernoulli", NTrees: 10, MinObsInNode: 2})
	if err != nil {
		t.Fatalf("NewTrainer: %v", err)
	}
	if _, err := trainer.Fit(X, y); err == nil {
		t.Error("fit on single-class response should fail, not fabricate a model")
	}
}

func TestFitReproducibleBySeed(t *testing.T) {
	X, y := separableData(120)
	params := Params{
		Distribution:   "bernoulli",
		LearningRate:   0.1,
		BagFraction:    0.5,
		TreeComplexity: 2,
		MinObsInNode:   4,
		NTrees:         30,
		Seed:           99,
	}

	fit := func() []float64 {
		trainer, err := NewTrainer(params)
		if err != nil {
			t.Fatalf("NewTrainer: %v", err)
		}
		model, err := trainer.Fit(X, y)
		if err != nil {
			t.Fatalf("Fit: %v", err)
		}
		preds, err := model.PredictMatrix(X)
		if err != nil {
			t.Fatalf("PredictMatrix: %v", err)
		}
		return preds
	}

	first := fit()
	second := fit()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("prediction %d differs across identically seeded fits: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestTreeComplexityBudget(t *testing.T) {
	X, y := separableData(200)
	trainer, err := NewTrainer(Params{
		Distribution:   "bernoulli",
		LearningRate:   0.1,
		TreeComplexity: 3,
		MinObsInNode:   5,
		NTrees:         20,
		Seed:           5,
	})
	if err != nil {
		t.Fatalf("NewTrainer: %v", err)
	}
	model, err := trainer.Fit(X, y)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	for ti, tree := range model.Trees {
		splits := 0
		for _, node := range tree.Nodes {
			if node.NodeType == SplitNode {
				splits++
			}
		}
		if splits > 3 {
			t.Errorf("tree %d has %d splits, budget is 3", ti, splits)
		}
	}
}

func TestFitCVStats(t *testing.T) {
	X, y := separableData(200)
	trainer, err := NewTrainer(Params{
		Distribution:   "bernoulli",
		LearningRate:   0.1,
		BagFraction:    0.75,
		TreeComplexity: 2,
		MinObsInNode:   4,
		NTrees:         40,
		Seed:           7,
	})
	if err != nil {
		t.Fatalf("NewTrainer: %v", err)
	}

	model, stats, err := trainer.FitCV(X, y, 10)
	if err != nil {
		t.Fatalf("FitCV: %v", err)
	}

	if stats.BestTrees < 1 || stats.BestTrees > 40 {
		t.Errorf("BestTrees = %d, want within [1, 40]", stats.BestTrees)
	}
	if model.NumTrees() != stats.BestTrees {
		t.Errorf("final model has %d trees, stats say %d", model.NumTrees(), stats.BestTrees)
	}
	for name, v := range map[string]float64{
		"total": stats.MeanTotalDeviance,
		"resid": stats.MeanResidDeviance,
		"cv":    stats.CVMeanDeviance,
		"se":    stats.CVSEDeviance,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("%s deviance is not finite: %v", name, v)
		}
	}

	pde := stats.PercentDevianceExplained()
	if pde <= 0 || pde > 100 {
		t.Errorf("separable data should have positive percent deviance explained, got %f", pde)
	}
}

func TestRelativeInfluence(t *testing.T) {
	X, y := separableData(200)
	trainer, err := NewTrainer(Params{
		Distribution:   "bernoulli",
		LearningRate:   0.1,
		TreeComplexity: 2,
		MinObsInNode:   5,
		NTrees:         30,
		Seed:           2,
	})
	if err != nil {
		t.Fatalf("NewTrainer: %v", err)
	}
	model, err := trainer.Fit(X, y)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	ri := model.RelativeInfluence()
	sum := 0.0
	for _, v := range ri {
		sum += v
	}
	if math.Abs(sum-100) > 1e-9 {
		t.Errorf("relative influence sums to %f, want 100", sum)
	}
	if ri[0] <= ri[1] {
		t.Errorf("informative predictor should dominate: got %v", ri)
	}
}

func TestModelJSONRoundTrip(t *testing.T) {
	X, y := separableData(100)
	trainer, err := NewTrainer(Params{
		Distribution:   "bernoulli",
		LearningRate:   0.1,
		TreeComplexity: 2,
		MinObsInNode:   5,
		NTrees:         10,
		Seed:           1,
	})
	if err != nil {
		t.Fatalf("NewTrainer: %v", err)
	}
	model, err := trainer.Fit(X, y)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	path := t.TempDir() + "/model.json"
	if err := model.SaveJSON(path); err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}
	loaded, err := LoadJSON(path)
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}

	want, err := model.Predict([]float64{0.8, 0.2})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	got, err := loaded.Predict([]float64{0.8, 0.2})
	if err != nil {
		t.Fatalf("Predict(loaded): %v", err)
	}
	if want != got {
		t.Errorf("loaded model predicts %v, original %v", got, want)
	}
}

func TestPredictDimensionMismatch(t *testing.T) {
	X, y := separableData(100)
	trainer, _ := NewTrainer(Params{Distribution: "bernoulli", NTrees: 5, MinObsInNode: 5, TreeComplexity: 2, LearningRate: 0.1})
	model, err := trainer.Fit(X, y)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if _, err := model.Predict([]float64{0.5}); err == nil {
		t.Error("expected dimension error for short feature vector")
	}
}
