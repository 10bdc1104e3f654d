package errors

import (
	"math"
)

// CheckFinite returns a ValueError if any value is NaN or infinite. Fit
// statistics that fail this check mark the fit as non-convergent.
func CheckFinite(op string, values ...float64) error {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewValueError(op, "non-finite statistic")
		}
	}
	return nil
}

// AllFinite reports whether every value is finite.
func AllFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
