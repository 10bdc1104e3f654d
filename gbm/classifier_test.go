package gbm

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// threeClassData builds a well-separated three-class habitat set keyed on
// the first predictor.
func threeClassData(n int) (*mat.Dense, []int) {
	X := mat.NewDense(n, 2, nil)
	y := make([]int, n)
	for i := 0; i < n; i++ {
		x1 := float64(i) / float64(n) * 3.0
		X.Set(i, 0, x1)
		X.Set(i, 1, float64(i%4)/4.0)
		y[i] = 1 + int(x1) // classes 1, 2, 3
		if y[i] > 3 {
			y[i] = 3
		}
	}
	return X, y
}

func TestClassLabels(t *testing.T) {
	labels := ClassLabels([]int{3, 1, 2, 1, 3, 3})
	want := []int{1, 2, 3}
	if len(labels) != len(want) {
		t.Fatalf("labels = %v, want %v", labels, want)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Errorf("labels = %v, want %v", labels, want)
			break
		}
	}
}

func TestFitClassifierSeparable(t *testing.T) {
	X, y := threeClassData(240)

	clf, err := FitClassifier(X, y, Params{
		LearningRate:   0.1,
		BagFraction:    0.75,
		TreeComplexity: 2,
		MinObsInNode:   5,
		NTrees:         40,
		Seed:           17,
	})
	if err != nil {
		t.Fatalf("FitClassifier: %v", err)
	}
	if len(clf.Models) != 3 {
		t.Fatalf("expected 3 one-vs-rest members, got %d", len(clf.Models))
	}

	correct := 0
	features := make([]float64, 2)
	for i := 0; i < 240; i++ {
		rowInto(X, i, features)
		pred, err := clf.PredictClass(features)
		if err != nil {
			t.Fatalf("PredictClass: %v", err)
		}
		if pred == y[i] {
			correct++
		}
	}
	if acc := float64(correct) / 240.0; acc < 0.9 {
		t.Errorf("training accuracy %f too low for separable classes", acc)
	}
}

func TestPredictProbaNormalized(t *testing.T) {
	X, y := threeClassData(180)
	clf, err := FitClassifier(X, y, Params{
		LearningRate:   0.1,
		TreeComplexity: 2,
		MinObsInNode:   5,
		NTrees:         20,
		Seed:           4,
	})
	if err != nil {
		t.Fatalf("FitClassifier: %v", err)
	}

	probs, err := clf.PredictProba([]float64{1.5, 0.25})
	if err != nil {
		t.Fatalf("PredictProba: %v", err)
	}
	sum := 0.0
	for _, p := range probs {
		if p < 0 || p > 1 {
			t.Errorf("probability out of range: %v", probs)
		}
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("probabilities sum to %f, want 1", sum)
	}
}

func TestFitClassifierSingleClassFails(t *testing.T) {
	X := mat.NewDense(40, 1, nil)
	y := make([]int, 40)
	for i := range y {
		X.Set(i, 0, float64(i))
		y[i] = 2
	}
	if _, err := FitClassifier(X, y, Params{NTrees: 5}); err == nil {
		t.Error("single-class response should be rejected")
	}
}

func TestFitClassifierCV(t *testing.T) {
	X, y := threeClassData(240)

	clf, stats, err := FitClassifierCV(X, y, 5, Params{
		LearningRate:   0.1,
		BagFraction:    0.75,
		TreeComplexity: 2,
		MinObsInNode:   5,
		NTrees:         30,
		Seed:           9,
	})
	if err != nil {
		t.Fatalf("FitClassifierCV: %v", err)
	}
	if clf == nil {
		t.Fatal("nil classifier")
	}
	if stats.CVAccuracy < 0.8 {
		t.Errorf("cv accuracy %f too low for separable classes", stats.CVAccuracy)
	}
	if stats.CVKappa <= 0 {
		t.Errorf("cv kappa %f should be positive when accuracy beats chance", stats.CVKappa)
	}
	if stats.BestTrees != 30 {
		t.Errorf("classifier tree count should stay pinned at 30, got %d", stats.BestTrees)
	}
}

func TestAgreement(t *testing.T) {
	tests := []struct {
		name      string
		observed  []int
		predicted []int
		wantAcc   float64
		wantKappa float64
	}{
		{
			name:      "perfect",
			observed:  []int{1, 2, 1, 2},
			predicted: []int{1, 2, 1, 2},
			wantAcc:   1.0,
			wantKappa: 1.0,
		},
		{
			name:      "half right balanced",
			observed:  []int{1, 1, 2, 2},
			predicted: []int{1, 2, 1, 2},
			wantAcc:   0.5,
			wantKappa: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc, kappa := agreement(tt.observed, tt.predicted)
			if math.Abs(acc-tt.wantAcc) > 1e-12 {
				t.Errorf("accuracy = %f, want %f", acc, tt.wantAcc)
			}
			if math.Abs(kappa-tt.wantKappa) > 1e-12 {
				t.Errorf("kappa = %f, want %f", kappa, tt.wantKappa)
			}
		})
	}
}
