package dataset

// Split partitions a table into calibration and independent validation
// subsets using the per-record validation flag, dropping missing-response
// records from both sides. The two subsets are disjoint by construction and
// the operation is idempotent: splitting a calibration subset again returns
// the same records and an empty validation side.
func Split(t *Table) (calibration, validation *Table) {
	calibration = &Table{ResponseName: t.ResponseName, PredictorNames: t.PredictorNames}
	validation = &Table{ResponseName: t.ResponseName, PredictorNames: t.PredictorNames}

	for _, rec := range t.DropMissingResponse().Records {
		if rec.Validation {
			validation.Records = append(validation.Records, rec)
		} else {
			calibration.Records = append(calibration.Records, rec)
		}
	}
	return calibration, validation
}

// SplitFiles is the pre-split variant: both tables were loaded from separate
// files and only need missing-response cleaning.
func SplitFiles(calibration, validation *Table) (*Table, *Table) {
	return calibration.DropMissingResponse(), validation.DropMissingResponse()
}
