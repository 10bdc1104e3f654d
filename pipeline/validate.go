package pipeline

import (
	"encoding/json"
	"log/slog"
	"math"
	"sort"

	"github.com/oceanbench/habmap/dataset"
	"github.com/oceanbench/habmap/grid"
	"github.com/oceanbench/habmap/metrics"
	"github.com/oceanbench/habmap/pkg/errors"
	"github.com/oceanbench/habmap/pkg/log"
)

// ContinuousReport holds the presence-model validation statistics.
type ContinuousReport struct {
	Points  int                  `json:"points"`
	Skipped int                  `json:"skipped"`
	AUC     float64              `json:"auc"`
	Bias    float64              `json:"bias"`
	MAE     float64              `json:"mae"`
	RMSE    float64              `json:"rmse"`
	PDE     float64              `json:"pde"`
	Moran   *metrics.MoranResult `json:"moran"`
}

// MarshalJSON emits null for statistics left undefined (NaN) by a
// degenerate validation set, which plain float64 marshaling rejects.
func (r *ContinuousReport) MarshalJSON() ([]byte, error) {
	type alias ContinuousReport
	return json.Marshal(struct {
		*alias
		AUC any `json:"auc"`
		PDE any `json:"pde"`
	}{
		alias: (*alias)(r),
		AUC:   nullIfNaN(r.AUC),
		PDE:   nullIfNaN(r.PDE),
	})
}

func nullIfNaN(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

// PolicyReport is one confusion-matrix evaluation of the class map.
type PolicyReport struct {
	Matrix   *metrics.ConfusionMatrix `json:"matrix"`
	Accuracy float64                  `json:"accuracy"`
	Kappa    float64                  `json:"kappa"`
	PerClass []metrics.ClassStats     `json:"per_class"`
}

// CategoricalReport holds both buffer-match policies. Policy A requires
// the modal predicted class within the buffer to equal the observed
// class; Policy B accepts the observed class appearing anywhere in the
// buffer. Neither is authoritative; both are always reported.
type CategoricalReport struct {
	Points         int           `json:"points"`
	Skipped        int           `json:"skipped"`
	BufferDistance float64       `json:"buffer_distance"`
	PolicyA        *PolicyReport `json:"policy_a"`
	PolicyB        *PolicyReport `json:"policy_b"`
}

// EvaluateContinuous scores a probability surface against held-out
// presence/absence points. Points falling outside the grid or on NoData
// cells are skipped and counted.
func EvaluateContinuous(validation *dataset.Table, surface *grid.Grid) (*ContinuousReport, error) {
	if validation.Len() == 0 {
		return nil, errors.ErrEmptyData
	}

	var observed, predicted, xs, ys []float64
	skipped := 0
	for _, rec := range validation.Records {
		row, col, ok := surface.CellAt(rec.X, rec.Y)
		if !ok || surface.IsNoData(row, col) {
			skipped++
			continue
		}
		observed = append(observed, rec.Response)
		predicted = append(predicted, surface.At(row, col))
		xs = append(xs, rec.X)
		ys = append(ys, rec.Y)
	}
	if len(observed) == 0 {
		return nil, errors.ErrNoValidCells
	}

	report := &ContinuousReport{Points: len(observed), Skipped: skipped}
	var err error
	if report.AUC, err = metrics.AUC(observed, predicted); err != nil {
		return nil, err
	}
	if report.Bias, err = metrics.Bias(observed, predicted); err != nil {
		return nil, err
	}
	if report.MAE, err = metrics.MAE(observed, predicted); err != nil {
		return nil, err
	}
	if report.RMSE, err = metrics.RMSE(observed, predicted); err != nil {
		return nil, err
	}
	if report.PDE, err = metrics.BernoulliPDE(observed, predicted); err != nil {
		// A single observed class leaves PDE undefined, like AUC.
		log.GetLoggerWithName("validator").Warn("deviance explained undefined", log.ErrAttr(err))
		report.PDE = math.NaN()
	}

	residuals := make([]float64, len(observed))
	for i := range observed {
		residuals[i] = observed[i] - predicted[i]
	}
	report.Moran, err = metrics.MoranI(xs, ys, residuals)
	if err != nil {
		// Degenerate geometry leaves the spatial test unreported but
		// does not void the other statistics.
		log.GetLoggerWithName("validator").Warn("spatial autocorrelation test skipped", log.ErrAttr(err))
		report.Moran = nil
	}

	log.GetLoggerWithName("validator").Info("continuous validation complete",
		slog.Int("points", report.Points),
		slog.Int("skipped", report.Skipped),
		slog.Float64("auc", report.AUC))
	return report, nil
}

// EvaluateCategorical scores a class map against held-out class points
// under both buffer policies. The buffer is a radius in grid coordinate
// units around each validation site, covering positional uncertainty.
func EvaluateCategorical(validation *dataset.Table, classMap *grid.Grid, buffer float64) (*CategoricalReport, error) {
	if validation.Len() == 0 {
		return nil, errors.ErrEmptyData
	}

	var observedA, predictedA, observedB, predictedB []int
	skipped := 0
	for _, rec := range validation.Records {
		classes := bufferClasses(classMap, rec.X, rec.Y, buffer)
		if len(classes) == 0 {
			skipped++
			continue
		}
		observed := int(math.Round(rec.Response))
		modal := modalClass(classes)

		observedA = append(observedA, observed)
		predictedA = append(predictedA, modal)

		observedB = append(observedB, observed)
		if classes[observed] > 0 {
			predictedB = append(predictedB, observed)
		} else {
			predictedB = append(predictedB, modal)
		}
	}
	if len(observedA) == 0 {
		return nil, errors.ErrNoValidCells
	}

	a, err := policyReport(observedA, predictedA)
	if err != nil {
		return nil, err
	}
	b, err := policyReport(observedB, predictedB)
	if err != nil {
		return nil, err
	}
	report := &CategoricalReport{
		Points:         len(observedA),
		Skipped:        skipped,
		BufferDistance: buffer,
		PolicyA:        a,
		PolicyB:        b,
	}
	log.GetLoggerWithName("validator").Info("categorical validation complete",
		slog.Int("points", report.Points),
		slog.Int("skipped", report.Skipped),
		slog.Float64("accuracy_policy_a", a.Accuracy),
		slog.Float64("accuracy_policy_b", b.Accuracy))
	return report, nil
}

func policyReport(observed, predicted []int) (*PolicyReport, error) {
	m, err := metrics.NewConfusionMatrix(observed, predicted)
	if err != nil {
		return nil, err
	}
	return &PolicyReport{
		Matrix:   m,
		Accuracy: m.Accuracy(),
		Kappa:    m.Kappa(),
		PerClass: m.PerClass(),
	}, nil
}

// bufferClasses tallies the predicted classes of every valid cell whose
// center lies within the buffer radius of (x, y). A zero buffer reduces
// to the single containing cell.
func bufferClasses(classMap *grid.Grid, x, y, buffer float64) map[int]int {
	counts := make(map[int]int)
	row, col, ok := classMap.CellAt(x, y)
	if !ok {
		return counts
	}

	reach := int(math.Ceil(buffer / classMap.Extent.CellSize))
	for dr := -reach; dr <= reach; dr++ {
		for dc := -reach; dc <= reach; dc++ {
			r, c := row+dr, col+dc
			if r < 0 || r >= classMap.Rows || c < 0 || c >= classMap.Cols {
				continue
			}
			if classMap.IsNoData(r, c) {
				continue
			}
			cx, cy := classMap.CellCenter(r, c)
			if math.Hypot(cx-x, cy-y) > buffer && !(dr == 0 && dc == 0) {
				continue
			}
			counts[int(math.Round(classMap.At(r, c)))]++
		}
	}
	return counts
}

// modalClass returns the most frequent class; frequency ties go to the
// lowest label.
func modalClass(counts map[int]int) int {
	labels := make([]int, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Ints(labels)
	best := labels[0]
	for _, l := range labels[1:] {
		if counts[l] > counts[best] {
			best = l
		}
	}
	return best
}
