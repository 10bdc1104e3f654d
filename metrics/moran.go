package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/oceanbench/habmap/pkg/errors"
)

// MoranResult is the global Moran's I statistic for a set of residuals at
// point locations, with a two-sided p-value under the normality
// assumption.
type MoranResult struct {
	I              float64 `json:"i"`
	Expected       float64 `json:"expected"`
	Variance       float64 `json:"variance"`
	PValue         float64 `json:"p_value"`
	Autocorrelated bool    `json:"autocorrelated"`
}

// MoranI computes global Moran's I over residuals at coordinates (x, y)
// using inverse-distance weights. Coincident point pairs get weight
// zero. Significance is judged at p <= 0.05.
func MoranI(x, y, residuals []float64) (*MoranResult, error) {
	n := len(residuals)
	if n == 0 {
		return nil, errors.ErrEmptyData
	}
	if len(x) != n || len(y) != n {
		return nil, errors.NewDimensionError("MoranI", n, len(x), 0)
	}
	if n < 3 {
		return nil, errors.NewValueError("MoranI", "need at least 3 locations")
	}

	mean := 0.0
	for _, r := range residuals {
		mean += r
	}
	mean /= float64(n)

	z := make([]float64, n)
	sumSq := 0.0
	for i, r := range residuals {
		z[i] = r - mean
		sumSq += z[i] * z[i]
	}
	if sumSq == 0 {
		return nil, errors.NewValueError("MoranI", "residuals are constant")
	}

	w := make([][]float64, n)
	for i := range w {
		w[i] = make([]float64, n)
	}
	s0 := 0.0
	cross := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			dx := x[i] - x[j]
			dy := y[i] - y[j]
			d := math.Hypot(dx, dy)
			if d == 0 {
				continue
			}
			wij := 1 / d
			w[i][j] = wij
			s0 += wij
			cross += wij * z[i] * z[j]
		}
	}
	if s0 == 0 {
		return nil, errors.NewValueError("MoranI", "all locations coincide")
	}

	nf := float64(n)
	observed := nf / s0 * cross / sumSq
	expected := -1 / (nf - 1)

	s1 := 0.0
	s2 := 0.0
	for i := 0; i < n; i++ {
		rowSum := 0.0
		colSum := 0.0
		for j := 0; j < n; j++ {
			sym := w[i][j] + w[j][i]
			s1 += sym * sym
			rowSum += w[i][j]
			colSum += w[j][i]
		}
		s2 += (rowSum + colSum) * (rowSum + colSum)
	}
	s1 /= 2

	variance := (nf*nf*s1-nf*s2+3*s0*s0)/(s0*s0*(nf*nf-1)) - expected*expected
	if variance <= 0 {
		return nil, errors.NewValueError("MoranI", "non-positive variance under normality")
	}

	score := (observed - expected) / math.Sqrt(variance)
	p := 2 * distuv.UnitNormal.Survival(math.Abs(score))

	return &MoranResult{
		I:              observed,
		Expected:       expected,
		Variance:       variance,
		PValue:         p,
		Autocorrelated: p <= 0.05,
	}, nil
}
