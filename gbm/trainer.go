package gbm

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/oceanbench/habmap/pkg/errors"
)

// Params are the boosting hyperparameters. A Params value uniquely
// identifies one cell of a tuning grid.
type Params struct {
	// Distribution selects the response family: "bernoulli" or "gaussian".
	Distribution string

	// LearningRate is the shrinkage applied to each tree's contribution.
	LearningRate float64

	// BagFraction is the fraction of calibration rows drawn (without
	// replacement) to fit each tree.
	BagFraction float64

	// TreeComplexity is the number of splits per tree.
	TreeComplexity int

	// MinObsInNode is the minimum number of observations in a terminal node.
	MinObsInNode int

	// NTrees is the number of boosting iterations.
	NTrees int

	// Seed drives bag sampling and cross-validation fold assignment, making
	// a fit reproducible end to end.
	Seed int64
}

func (p Params) withDefaults() Params {
	if p.Distribution == "" {
		p.Distribution = "bernoulli"
	}
	if p.LearningRate == 0 {
		p.LearningRate = 0.01
	}
	if p.BagFraction == 0 {
		p.BagFraction = 0.75
	}
	if p.TreeComplexity == 0 {
		p.TreeComplexity = 3
	}
	if p.MinObsInNode == 0 {
		p.MinObsInNode = 10
	}
	if p.NTrees == 0 {
		p.NTrees = 1000
	}
	return p
}

// Trainer fits one boosted-tree model for one Params value.
type Trainer struct {
	params Params
	dist   Distribution
}

// NewTrainer creates a trainer, applying defaults and resolving the
// distribution family.
func NewTrainer(params Params) (*Trainer, error) {
	params = params.withDefaults()
	if params.LearningRate <= 0 || params.LearningRate > 1 {
		return nil, errors.NewValueError("NewTrainer", "learning rate must be in (0, 1]")
	}
	if params.BagFraction <= 0 || params.BagFraction > 1 {
		return nil, errors.NewValueError("NewTrainer", "bag fraction must be in (0, 1]")
	}
	if params.TreeComplexity < 1 {
		return nil, errors.NewValueError("NewTrainer", "tree complexity must be >= 1")
	}
	dist, err := NewDistribution(params.Distribution)
	if err != nil {
		return nil, err
	}
	return &Trainer{params: params, dist: dist}, nil
}

// Params returns the trainer's resolved hyperparameters.
func (t *Trainer) Params() Params {
	return t.params
}

// Fit trains the full ensemble on X and y and returns the fitted model.
func (t *Trainer) Fit(X mat.Matrix, y []float64) (*Model, error) {
	model, _, err := t.fitBoost(X, y, nil, nil)
	return model, err
}

// fitBoost runs the boosting loop. When evalX/evalY are provided it also
// returns the mean held-out deviance after each iteration, which is what the
// cross-validation path consumes.
func (t *Trainer) fitBoost(X mat.Matrix, y []float64, evalX mat.Matrix, evalY []float64) (*Model, []float64, error) {
	rows, cols := X.Dims()
	if rows == 0 {
		return nil, nil, errors.ErrEmptyData
	}
	if len(y) != rows {
		return nil, nil, errors.NewDimensionError("gbm.Fit", rows, len(y), 0)
	}

	initScore, err := t.dist.InitScore(y)
	if err != nil {
		return nil, nil, errors.Wrap(err, "intercept-only fit")
	}

	rng := rand.New(rand.NewPCG(uint64(t.params.Seed), uint64(t.params.Seed)))

	scores := make([]float64, rows)
	for i := range scores {
		scores[i] = initScore
	}

	var evalScores []float64
	var evalDev []float64
	evalRows := 0
	if evalX != nil {
		evalRows, _ = evalX.Dims()
		evalScores = make([]float64, evalRows)
		for i := range evalScores {
			evalScores[i] = initScore
		}
		evalDev = make([]float64, 0, t.params.NTrees)
	}

	gradients := make([]float64, rows)
	hessians := make([]float64, rows)
	importance := make([]float64, cols)
	trees := make([]Tree, 0, t.params.NTrees)

	bagSize := int(t.params.BagFraction * float64(rows))
	if bagSize < 1 {
		bagSize = 1
	}

	features := make([]float64, cols)
	allEval := evalIndices(evalRows)

	for iter := 0; iter < t.params.NTrees; iter++ {
		bag := rng.Perm(rows)[:bagSize]

		for _, i := range bag {
			gradients[i] = t.dist.Gradient(scores[i], y[i])
			hessians[i] = t.dist.Hessian(scores[i], y[i])
		}

		builder := &treeBuilder{
			X:          X,
			gradients:  gradients,
			hessians:   hessians,
			complexity: t.params.TreeComplexity,
			minObs:     t.params.MinObsInNode,
		}
		tree := builder.build(bag)
		trees = append(trees, tree)

		for _, node := range tree.Nodes {
			if node.NodeType == SplitNode {
				importance[node.SplitPredictor] += node.Gain
			}
		}

		for i := 0; i < rows; i++ {
			rowInto(X, i, features)
			scores[i] += t.params.LearningRate * tree.Predict(features)
		}

		if evalX != nil {
			for i := 0; i < evalRows; i++ {
				rowInto(evalX, i, features)
				evalScores[i] += t.params.LearningRate * tree.Predict(features)
			}
			evalDev = append(evalDev, meanDeviance(t.dist, evalScores, evalY, allEval))
		}
	}

	residDev := meanDeviance(t.dist, scores, y, evalIndices(rows))
	if !errors.AllFinite(residDev) {
		return nil, nil, errors.NewValueError("gbm.Fit", "non-finite training deviance")
	}

	model := &Model{
		Distribution: t.params.Distribution,
		InitScore:    initScore,
		LearningRate: t.params.LearningRate,
		Trees:        trees,
		Importance:   importance,
		NumPredictor: cols,
	}
	return model, evalDev, nil
}

// totalDeviance is the mean deviance of the intercept-only model, the
// baseline for percent deviance explained.
func (t *Trainer) totalDeviance(y []float64) (float64, error) {
	initScore, err := t.dist.InitScore(y)
	if err != nil {
		return 0, err
	}
	scores := make([]float64, len(y))
	for i := range scores {
		scores[i] = initScore
	}
	return meanDeviance(t.dist, scores, y, evalIndices(len(y))), nil
}

func evalIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func rowInto(X mat.Matrix, i int, dst []float64) {
	for j := range dst {
		dst[j] = X.At(i, j)
	}
}
