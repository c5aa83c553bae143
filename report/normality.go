// Package report renders a cross validation Summary as text, CSV, JSON and
// an RMSE histogram, and checks whether the fold RMSEs look normal.
package report

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/lurcv/pkg/errors"
)

// Normality summarizes the shape of a sample against a normal distribution.
type Normality struct {
	N              int     `json:"n"`
	Skewness       float64 `json:"skewness"`
	ExcessKurtosis float64 `json:"excess_kurtosis"`
	// JarqueBera is n/6·(S² + K²/4), asymptotically χ² with 2 degrees of
	// freedom under normality.
	JarqueBera float64 `json:"jarque_bera"`
	PValue     float64 `json:"p_value"`
}

// Normal reports whether normality is not rejected at level alpha.
func (n Normality) Normal(alpha float64) bool {
	return n.PValue >= alpha
}

// NormalityOf tests the non-NaN values of x. It needs at least four values.
func NormalityOf(x []float64) (Normality, error) {
	vals := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	if len(vals) < 4 {
		return Normality{N: len(vals)}, errors.NewInsufficientDataError("report.NormalityOf", 4, len(vals))
	}
	if stat.Variance(vals, nil) == 0 {
		return Normality{N: len(vals)}, errors.NewValueError("report.NormalityOf", "constant sample")
	}

	s := stat.Skew(vals, nil)
	k := stat.ExKurtosis(vals, nil)
	n := float64(len(vals))
	jb := n / 6 * (s*s + k*k/4)
	return Normality{
		N:              len(vals),
		Skewness:       s,
		ExcessKurtosis: k,
		JarqueBera:     jb,
		PValue:         distuv.ChiSquared{K: 2}.Survival(jb),
	}, nil
}
