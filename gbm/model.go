package gbm

import (
	"encoding/json"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/oceanbench/habmap/pkg/errors"
)

// Model is a fitted boosted-tree ensemble. It is write-once: created by a
// Trainer, read-only thereafter.
type Model struct {
	Distribution string    `json:"distribution"`
	InitScore    float64   `json:"init_score"`
	LearningRate float64   `json:"learning_rate"`
	Trees        []Tree    `json:"trees"`
	Importance   []float64 `json:"importance"` // accumulated split gain per predictor
	NumPredictor int       `json:"num_predictor"`

	// PredictorNames, when set, names the columns the model was trained on
	// and is what prediction-time layer alignment is checked against.
	PredictorNames []string `json:"predictor_names,omitempty"`
}

// NumTrees returns the number of trees in the ensemble.
func (m *Model) NumTrees() int {
	return len(m.Trees)
}

// PredictRaw returns the raw (link-scale) score for one predictor vector.
func (m *Model) PredictRaw(features []float64) (float64, error) {
	if len(m.Trees) == 0 {
		return 0, errors.NewNotFittedError("gbm.Model", "PredictRaw")
	}
	if len(features) != m.NumPredictor {
		return 0, errors.NewDimensionError("gbm.Model.PredictRaw", m.NumPredictor, len(features), 1)
	}
	score := m.InitScore
	for i := range m.Trees {
		score += m.LearningRate * m.Trees[i].Predict(features)
	}
	return score, nil
}

// Predict returns the response-scale prediction for one predictor vector:
// a probability for bernoulli models, the raw value for gaussian models.
func (m *Model) Predict(features []float64) (float64, error) {
	score, err := m.PredictRaw(features)
	if err != nil {
		return 0, err
	}
	dist, err := NewDistribution(m.Distribution)
	if err != nil {
		return 0, err
	}
	return dist.Link(score), nil
}

// PredictMatrix returns response-scale predictions for every row of X.
func (m *Model) PredictMatrix(X mat.Matrix) ([]float64, error) {
	rows, cols := X.Dims()
	if cols != m.NumPredictor {
		return nil, errors.NewDimensionError("gbm.Model.PredictMatrix", m.NumPredictor, cols, 1)
	}
	if len(m.Trees) == 0 {
		return nil, errors.NewNotFittedError("gbm.Model", "PredictMatrix")
	}
	dist, err := NewDistribution(m.Distribution)
	if err != nil {
		return nil, err
	}

	out := make([]float64, rows)
	features := make([]float64, cols)
	for i := 0; i < rows; i++ {
		rowInto(X, i, features)
		score := m.InitScore
		for t := range m.Trees {
			score += m.LearningRate * m.Trees[t].Predict(features)
		}
		out[i] = dist.Link(score)
	}
	return out, nil
}

// RelativeInfluence returns per-predictor relative influence: accumulated
// split gain normalized to sum to 100. A model whose trees never split
// returns all zeros.
func (m *Model) RelativeInfluence() []float64 {
	out := make([]float64, len(m.Importance))
	total := 0.0
	for _, g := range m.Importance {
		total += g
	}
	if total <= 0 {
		return out
	}
	for i, g := range m.Importance {
		out[i] = g / total * 100
	}
	return out
}

// SaveJSON writes the model to a JSON file.
func (m *Model) SaveJSON(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal model")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "write model file")
	}
	return nil
}

// LoadJSON reads a model previously written by SaveJSON.
func LoadJSON(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read model file")
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "unmarshal model")
	}
	return &m, nil
}
