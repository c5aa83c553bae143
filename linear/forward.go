package linear

import (
	"context"
	"math"
	"strconv"

	"github.com/YuminosukeSato/lurcv/core/model"
	"github.com/YuminosukeSato/lurcv/metrics"
	"github.com/YuminosukeSato/lurcv/pkg/errors"
	"github.com/YuminosukeSato/lurcv/pkg/log"
	"gonum.org/v1/gonum/mat"
)

// ForwardRegression は貪欲な前向き特徴量選択付きの線形回帰
//
// 各ステップで未選択の特徴量を1つずつ追加して OLS を学習し、訓練データ上の R² が
// 最大となる特徴量を選ぶ。改善幅が threshold 以下になったら停止する。
// 停止判定は訓練データ上の R² だけを見る。
type ForwardRegression struct {
	model.BaseEstimator

	threshold float64
	names     []string
	logger    log.Logger

	nFeatures int
	chosen    []int
	history   []float64
	final     *LinearRegression
}

// NewForwardRegression creates a selector with DefaultThreshold.
func NewForwardRegression(opts ...SelectorOption) *ForwardRegression {
	fr := &ForwardRegression{threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(fr)
	}
	if fr.logger == nil {
		fr.logger = log.GetLogger()
	}
	return fr
}

// Fit selects features on X, y and fits the final OLS on the chosen columns.
func (fr *ForwardRegression) Fit(X, y mat.Matrix) error {
	return fr.FitContext(context.Background(), X, y)
}

// FitContext is Fit with cancellation between selection steps.
func (fr *ForwardRegression) FitContext(ctx context.Context, X, y mat.Matrix) error {
	r, c := X.Dims()
	ry, _ := y.Dims()
	if r == 0 {
		return errors.NewModelError("ForwardRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if ry != r {
		return errors.NewDimensionError("ForwardRegression.Fit", r, ry, 0)
	}
	if fr.names != nil && len(fr.names) != c {
		return errors.NewDimensionError("ForwardRegression.Fit", len(fr.names), c, 1)
	}

	fr.Reset()
	fr.nFeatures = c
	logger := fr.logger.With(log.ComponentKey, "linear.ForwardRegression")

	score := func(cols []int) (float64, error) {
		if err := ctx.Err(); err != nil {
			return 0, errors.WithStack(err)
		}
		lr := NewLinearRegression()
		Xs := project(X, cols)
		if err := lr.Fit(Xs, y); err != nil {
			return 0, err
		}
		return lr.Score(Xs, y)
	}

	chosen, history, err := selectFeatures(c, fr.threshold, score, func(step, feature int, r2 float64, skipErr error) {
		if skipErr != nil {
			logger.Debug("candidate skipped", "candidate", fr.featureName(feature), "reason", skipErr.Error())
			return
		}
		logger.Debug("feature selected",
			log.SelectionStepKey, step,
			log.SelectedFeatureKey, fr.featureName(feature),
			log.R2ScoreKey, r2,
		)
	})
	if err != nil {
		return err
	}

	final := NewLinearRegression()
	if err := final.Fit(project(X, chosen), y); err != nil {
		return errors.Wrap(err, "final fit on selected features")
	}

	fr.chosen = chosen
	fr.history = history
	fr.final = final
	fr.SetFitted()
	return nil
}

// selectFeatures runs the greedy loop. score fits a model on the given
// columns and returns its in-sample R²; a score error skips the candidate
// unless it is a context error. trace receives accepted steps and skipped
// candidates.
func selectFeatures(
	nFeatures int,
	threshold float64,
	score func(cols []int) (float64, error),
	trace func(step, feature int, r2 float64, skipErr error),
) ([]int, []float64, error) {
	available := make([]int, nFeatures)
	for i := range available {
		available[i] = i
	}

	var chosen []int
	var history []float64
	prev := 0.0

	for len(available) > 0 {
		best, bestPos := math.Inf(-1), -1
		for pos, f := range available {
			cols := append(append(make([]int, 0, len(chosen)+1), chosen...), f)
			r2, err := score(cols)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil, nil, err
				}
				if trace != nil {
					trace(len(chosen)+1, f, 0, err)
				}
				continue
			}
			if math.IsNaN(r2) {
				continue
			}
			// strictly greater keeps the first feature on ties
			if r2 > best {
				best, bestPos = r2, pos
			}
		}

		if bestPos < 0 || best-prev <= threshold+gainTolerance {
			break
		}

		f := available[bestPos]
		chosen = append(chosen, f)
		history = append(history, best)
		available = append(available[:bestPos], available[bestPos+1:]...)
		prev = best
		if trace != nil {
			trace(len(chosen), f, best, nil)
		}
	}
	return chosen, history, nil
}

// gainTolerance absorbs float rounding in the gain, so that 0.53-0.52 does
// not pass a 0.01 threshold.
const gainTolerance = 1e-12

// project returns the columns cols of X.
func project(X mat.Matrix, cols []int) mat.Matrix {
	r, _ := X.Dims()
	if len(cols) == 0 {
		return emptyColumns{rows: r}
	}
	out := mat.NewDense(r, len(cols), nil)
	for i := 0; i < r; i++ {
		for k, j := range cols {
			out.Set(i, k, X.At(i, j))
		}
	}
	return out
}

// emptyColumns is an r×0 matrix; gonum cannot allocate one.
type emptyColumns struct{ rows int }

func (e emptyColumns) Dims() (int, int)    { return e.rows, 0 }
func (e emptyColumns) At(i, j int) float64 { panic(mat.ErrIndexOutOfRange) }
func (e emptyColumns) T() mat.Matrix       { return mat.Transpose{Matrix: e} }

// input projects X onto the chosen features when it has the original width
// and uses it as is when it already has len(chosen) columns.
func (fr *ForwardRegression) input(op string, X mat.Matrix) (mat.Matrix, error) {
	if !fr.IsFitted() {
		return nil, errors.NewNotFittedError("ForwardRegression", op)
	}
	_, c := X.Dims()
	switch c {
	case fr.nFeatures:
		return project(X, fr.chosen), nil
	case len(fr.chosen):
		return X, nil
	default:
		return nil, errors.NewDimensionError("ForwardRegression."+op, fr.nFeatures, c, 1)
	}
}

// Predict predicts with the final model.
func (fr *ForwardRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	Xs, err := fr.input("Predict", X)
	if err != nil {
		return nil, err
	}
	return fr.final.Predict(Xs)
}

// Score returns R² of the final model on X, y.
func (fr *ForwardRegression) Score(X, y mat.Matrix) (float64, error) {
	Xs, err := fr.input("Score", X)
	if err != nil {
		return 0, err
	}
	return fr.final.Score(Xs, y)
}

// AdjustedScore returns the adjusted R² with p = number of chosen features.
func (fr *ForwardRegression) AdjustedScore(X, y mat.Matrix) (float64, error) {
	r2, err := fr.Score(X, y)
	if err != nil {
		return r2, err
	}
	n, _ := y.Dims()
	return metrics.AdjustedR2(r2, n, len(fr.chosen))
}

// Chosen returns the indices of the selected features in selection order.
func (fr *ForwardRegression) Chosen() []int {
	return append([]int(nil), fr.chosen...)
}

// ChosenNames returns the names of the selected features when names were set.
func (fr *ForwardRegression) ChosenNames() []string {
	names := make([]string, len(fr.chosen))
	for i, f := range fr.chosen {
		names[i] = fr.featureName(f)
	}
	return names
}

// History returns the accepted in-sample R² after each selection step.
func (fr *ForwardRegression) History() []float64 {
	return append([]float64(nil), fr.history...)
}

// NumFeatures implements model.FeatureCounter.
func (fr *ForwardRegression) NumFeatures() int {
	return len(fr.chosen)
}

// Describe implements model.Model.
func (fr *ForwardRegression) Describe() map[string]any {
	d := map[string]any{
		"estimator": "forward_regression",
		"threshold": fr.threshold,
		"state":     fr.State().String(),
	}
	if fr.IsFitted() {
		d["features"] = fr.ChosenNames()
		d["r2_history"] = fr.History()
		d["intercept"] = fr.final.GetIntercept()
		d["coefficients"] = fr.final.GetWeights()
	}
	return d
}

func (fr *ForwardRegression) featureName(f int) string {
	if f < len(fr.names) {
		return fr.names[f]
	}
	return "x" + strconv.Itoa(f)
}
