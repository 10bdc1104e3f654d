package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"strconv"

	"github.com/oceanbench/habmap/pkg/errors"
)

// WriteTuningCSV writes the full tuning table, one row per grid cell in
// grid order. Non-converged cells keep their row with empty statistics
// and a failure reason so the sweep can be audited.
func WriteTuningCSV(path string, rows []TuningRow) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating tuning table")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"index", "learning_rate", "bag_fraction", "tree_complexity",
		"converged", "best_trees",
		"mean_total_deviance", "mean_resid_deviance",
		"cv_mean_deviance", "cv_se_deviance", "pde",
		"cv_accuracy", "cv_kappa", "failure_reason",
	}
	if err := w.Write(header); err != nil {
		return errors.Wrap(err, "writing tuning table header")
	}

	for _, row := range rows {
		record := []string{
			strconv.Itoa(row.Index),
			formatFloat(row.HP.LearningRate),
			formatFloat(row.HP.BagFraction),
			strconv.Itoa(row.HP.TreeComplexity),
			strconv.FormatBool(row.Converged),
		}
		if row.Converged {
			record = append(record,
				strconv.Itoa(row.Stats.BestTrees),
				formatFloat(row.Stats.MeanTotalDeviance),
				formatFloat(row.Stats.MeanResidDeviance),
				formatFloat(row.Stats.CVMeanDeviance),
				formatFloat(row.Stats.CVSEDeviance),
				formatFloat(row.Stats.PercentDevianceExplained()),
				formatFloat(row.Stats.CVAccuracy),
				formatFloat(row.Stats.CVKappa),
				"")
		} else {
			record = append(record, "", "", "", "", "", "", "", "", row.FailureReason)
		}
		if err := w.Write(record); err != nil {
			return errors.Wrap(err, "writing tuning table row")
		}
	}
	w.Flush()
	return errors.Wrap(w.Error(), "flushing tuning table")
}

// WriteImportanceCSV writes the predictor importance ranking: the
// selected model's relative influence plus one column per converged
// bootstrap member for variance display.
func WriteImportanceCSV(path string, predictors []string, selected []float64, members [][]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating importance table")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"predictor", "selected"}
	for i := range members {
		header = append(header, "member_"+strconv.Itoa(i))
	}
	if err := w.Write(header); err != nil {
		return errors.Wrap(err, "writing importance header")
	}

	for p, name := range predictors {
		record := []string{name, formatFloat(selected[p])}
		for _, m := range members {
			record = append(record, formatFloat(m[p]))
		}
		if err := w.Write(record); err != nil {
			return errors.Wrap(err, "writing importance row")
		}
	}
	w.Flush()
	return errors.Wrap(w.Error(), "flushing importance table")
}

// WriteJSON writes an artifact as indented JSON.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling artifact")
	}
	return errors.Wrap(os.WriteFile(path, data, 0o644), "writing artifact")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
