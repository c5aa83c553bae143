package metrics

import (
	"math"

	"github.com/YuminosukeSato/lurcv/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Family is the error distribution used for deviance.
type Family string

const (
	Gaussian Family = "gaussian"
	Gamma    Family = "gamma"
)

// AdjustedR2 penalizes r2 for the number of predictors p fitted on n samples:
//
//	1 − (1−R²)(n−1)/(n−p−1)
//
// It is undefined when n−p−1 <= 0.
func AdjustedR2(r2 float64, n, p int) (float64, error) {
	if p < 0 {
		return 0, errors.NewValueError("AdjustedR2", "negative feature count")
	}
	dof := n - p - 1
	if dof <= 0 {
		return math.NaN(), errors.NewUndefinedMetricWarning("adj_r2", "n - p - 1 <= 0", math.NaN())
	}
	return 1 - (1-r2)*float64(n-1)/float64(dof), nil
}

// FAC2 returns the percentage of predictions within a factor of two of the
// measurement, i.e. 0.5 <= yTrue/yPred <= 2. A zero prediction never counts.
func FAC2(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("FAC2", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	within := 0
	for i := 0; i < n; i++ {
		ratio := yTrue.AtVec(i) / yPred.AtVec(i)
		if ratio >= 0.5 && ratio <= 2 {
			within++
		}
	}
	return float64(within) / float64(n) * 100, nil
}

// R2Val is the R² of the least squares line measured ~ predicted, which for a
// single predictor equals the squared Pearson correlation.
func R2Val(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("R2Val", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if n < 2 {
		return math.NaN(), errors.NewUndefinedMetricWarning("r2val", "fewer than two samples", math.NaN())
	}

	a := mat.Col(nil, 0, yTrue)
	b := mat.Col(nil, 0, yPred)
	if stat.Variance(a, nil) == 0 || stat.Variance(b, nil) == 0 {
		return math.NaN(), errors.NewUndefinedMetricWarning("r2val", "constant measurements or predictions", math.NaN())
	}
	r := stat.Correlation(a, b, nil)
	return r * r, nil
}

// Deviance returns the deviance of yPred under family.
//
//	gaussian: Σ(y−μ)²
//	gamma:    2·Σ(−log(y/μ) + (y−μ)/μ), y and μ strictly positive
func Deviance(yTrue, yPred *mat.VecDense, family Family) (float64, error) {
	n, err := checkPair("Deviance", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	var d float64
	switch family {
	case Gaussian:
		for i := 0; i < n; i++ {
			diff := yTrue.AtVec(i) - yPred.AtVec(i)
			d += diff * diff
		}
	case Gamma:
		for i := 0; i < n; i++ {
			y, mu := yTrue.AtVec(i), yPred.AtVec(i)
			if y <= 0 || mu <= 0 {
				return math.NaN(), errors.NewUndefinedMetricWarning("dev_expl", "gamma deviance needs positive values", math.NaN())
			}
			d += -math.Log(y/mu) + (y-mu)/mu
		}
		d *= 2
	default:
		return 0, errors.NewValueError("Deviance", "unknown family "+string(family))
	}
	return d, nil
}

// DevianceExplained is 1 − D(model)/D(null), where the null model predicts the
// mean of yTrue.
func DevianceExplained(yTrue, yPred *mat.VecDense, family Family) (float64, error) {
	n, err := checkPair("DevianceExplained", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	dev, err := Deviance(yTrue, yPred, family)
	if err != nil {
		return math.NaN(), err
	}

	mean := stat.Mean(mat.Col(nil, 0, yTrue), nil)
	null := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		null.SetVec(i, mean)
	}
	nullDev, err := Deviance(yTrue, null, family)
	if err != nil {
		return math.NaN(), err
	}
	if nullDev == 0 {
		return math.NaN(), errors.NewUndefinedMetricWarning("dev_expl", "null deviance is zero", math.NaN())
	}
	return 1 - dev/nullDev, nil
}

// DropNaN returns copies of yTrue and yPred without the pairs in which either
// value is NaN. The result vectors may be empty.
func DropNaN(yTrue, yPred []float64) ([]float64, []float64) {
	n := len(yTrue)
	if len(yPred) < n {
		n = len(yPred)
	}
	t := make([]float64, 0, n)
	p := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(yTrue[i]) || math.IsNaN(yPred[i]) {
			continue
		}
		t = append(t, yTrue[i])
		p = append(p, yPred[i])
	}
	return t, p
}

// IsUndefined reports whether err only signals an undefined score.
func IsUndefined(err error) bool {
	var w *errors.UndefinedMetricWarning
	return errors.As(err, &w)
}

// Scores computes every fold score from scored pairs. p is the number of
// predictors used for the adjusted R². Undefined scores are NaN; their
// warnings are returned alongside.
func Scores(yTrue, yPred []float64, p int) (map[string]float64, []error, error) {
	if len(yTrue) == 0 {
		return nil, nil, errors.NewInsufficientDataError("metrics.Scores", 1, 0)
	}
	if len(yPred) != len(yTrue) {
		return nil, nil, errors.NewDimensionError("metrics.Scores", len(yTrue), len(yPred), 0)
	}

	t := mat.NewVecDense(len(yTrue), yTrue)
	pr := mat.NewVecDense(len(yPred), yPred)
	scores := map[string]float64{"n_test": float64(len(yTrue))}
	var warnings []error

	record := func(name string, v float64, err error) error {
		if err != nil {
			if !IsUndefined(err) {
				return err
			}
			warnings = append(warnings, err)
			v = math.NaN()
		}
		scores[name] = v
		return nil
	}

	rmse, err := RMSE(t, pr)
	if err := record("rmse", rmse, err); err != nil {
		return nil, nil, err
	}
	r2, err := R2Score(t, pr)
	if err := record("r2", r2, err); err != nil {
		return nil, nil, err
	}
	adj := math.NaN()
	if !math.IsNaN(r2) {
		adj, err = AdjustedR2(r2, len(yTrue), p)
		if err := record("adj_r2", adj, err); err != nil {
			return nil, nil, err
		}
	} else {
		scores["adj_r2"] = adj
	}
	fac2, err := FAC2(t, pr)
	if err := record("fac2", fac2, err); err != nil {
		return nil, nil, err
	}
	r2val, err := R2Val(t, pr)
	if err := record("r2val", r2val, err); err != nil {
		return nil, nil, err
	}
	devExpl, err := DevianceExplained(t, pr, Gamma)
	if err := record("dev_expl", devExpl, err); err != nil {
		return nil, nil, err
	}
	return scores, warnings, nil
}
