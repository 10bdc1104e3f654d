package pipeline

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/oceanbench/habmap/pkg/errors"
)

// Stage names, in run order.
const (
	StageLoad      = "load"
	StageSplit     = "split"
	StageTune      = "tune"
	StageSelect    = "select"
	StageBootstrap = "bootstrap"
	StagePredict   = "predict"
	StageValidate  = "validate"
	StageDone      = "done"
)

// State is the run checkpoint written after each stage: enough to audit
// a finished run or see where an aborted one stopped.
type State struct {
	RunID     string    `json:"run_id"`
	Region    string    `json:"region"`
	Mode      string    `json:"mode"`
	Seed      uint64    `json:"seed"`
	Stage     string    `json:"stage"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`

	CalibrationRows int `json:"calibration_rows,omitempty"`
	ValidationRows  int `json:"validation_rows,omitempty"`

	TuningRows []TuningRow `json:"tuning_rows,omitempty"`
	Best       *Selection  `json:"best,omitempty"`

	EnsembleMembers int   `json:"ensemble_members,omitempty"`
	EnsembleFailed  []int `json:"ensemble_failed,omitempty"`
}

// NewState opens a run record with a fresh run ID.
func NewState(region, mode string, seed uint64) *State {
	now := time.Now().UTC()
	return &State{
		RunID:     uuid.NewString(),
		Region:    region,
		Mode:      mode,
		Seed:      seed,
		Stage:     StageLoad,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Advance marks the run as having completed the given stage.
func (s *State) Advance(stage string) {
	s.Stage = stage
	s.UpdatedAt = time.Now().UTC()
}

// Save writes the checkpoint atomically via a rename.
func (s *State) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling run state")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "writing run state")
	}
	return errors.Wrap(os.Rename(tmp, path), "replacing run state")
}

// LoadState reads a previously saved checkpoint.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading run state")
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "parsing run state")
	}
	return &s, nil
}
