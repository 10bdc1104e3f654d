package pipeline

import (
	"log/slog"

	"github.com/oceanbench/habmap/pkg/errors"
	"github.com/oceanbench/habmap/pkg/log"
)

// Selection is the winning grid cell of a tuning run.
type Selection struct {
	Index int             `json:"index"`
	HP    Hyperparameters `json:"hp"`
	Score float64         `json:"score"`
	Fit   *Fit            `json:"-"`
}

// SelectBest picks the converged fit with the highest score: percent
// deviance explained in presence mode, cross-validated accuracy in class
// mode with kappa breaking ties. Remaining ties go to the earlier grid
// cell so selection is reproducible. When every cell failed it returns a
// SelectionError.
func SelectBest(rows []TuningRow, fits []*Fit, mode string) (*Selection, error) {
	if len(rows) == 0 {
		return nil, errors.ErrEmptyData
	}

	best := -1
	failed := 0
	for i, row := range rows {
		if !row.Converged || fits[i] == nil {
			failed++
			continue
		}
		if best == -1 || better(fits[i], fits[best], mode) {
			best = i
		}
	}
	if best == -1 {
		return nil, errors.NewSelectionError(len(rows), failed)
	}

	sel := &Selection{
		Index: best,
		HP:    rows[best].HP,
		Score: fits[best].Score(mode),
		Fit:   fits[best],
	}
	log.GetLoggerWithName("selector").Info("selected best hyperparameters",
		slog.Int(log.GridIndexKey, sel.Index),
		slog.String("hp", sel.HP.String()),
		slog.Float64("score", sel.Score),
		slog.Int("best_trees", sel.Fit.Stats.BestTrees))
	return sel, nil
}

func better(a, b *Fit, mode string) bool {
	sa, sb := a.Score(mode), b.Score(mode)
	if sa != sb {
		return sa > sb
	}
	if mode == ModeClass && a.Stats.CVKappa != b.Stats.CVKappa {
		return a.Stats.CVKappa > b.Stats.CVKappa
	}
	return false
}
