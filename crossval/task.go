package crossval

import (
	"context"
	"math"
	"time"

	"github.com/YuminosukeSato/lurcv/core/model"
	"github.com/YuminosukeSato/lurcv/dataset"
	"github.com/YuminosukeSato/lurcv/metrics"
	"github.com/YuminosukeSato/lurcv/pkg/errors"
	"github.com/YuminosukeSato/lurcv/pkg/log"
)

// Record is the outcome of one fold task.
type Record struct {
	Iteration int                `json:"iteration"`
	Fold      int                `json:"fold"`
	Scores    map[string]float64 `json:"scores,omitempty"`
	Model     map[string]any     `json:"model,omitempty"`
	Duration  time.Duration      `json:"duration"`
	Err       error              `json:"-"`
}

// OK reports whether the task produced scores.
func (r Record) OK() bool { return r.Err == nil }

// Task fits and scores one strategy instance on one partition.
type Task struct {
	Partition
	Factory  Factory
	Features []string
	Target   string
	Seed     uint64
	Logger   log.Logger
}

// Evaluate runs the task. A panic in the strategy is returned as an error.
func (t *Task) Evaluate(ctx context.Context) (rec Record, err error) {
	defer errors.Recover(&err, "crossval.Task.Evaluate")

	start := time.Now()
	logger := t.Logger
	if logger == nil {
		logger = log.GetLogger()
	}
	logger = logger.With(log.IterationKey, t.Iteration, log.FoldKey, t.Fold)
	env := Env{Seed: t.Seed, Features: t.Features, Logger: logger}

	rec = Record{Iteration: t.Iteration, Fold: t.Fold}
	switch {
	case t.Factory.Metrics != nil:
		rec.Scores, rec.Model, err = t.Factory.Metrics(env).Evaluate(ctx, t.Train, t.Test, t.Inference)
	case t.Factory.Model != nil:
		rec.Scores, rec.Model, err = t.evaluateModel(ctx, t.Factory.Model(env))
	default:
		err = errors.NewConfigurationError("strategy", "factory has no constructor", t.Factory.Name)
	}
	rec.Duration = time.Since(start)
	if err != nil {
		rec.Err = err
		return rec, err
	}

	logger.Debug("fold scored",
		log.RMSEKey, rec.Scores["rmse"],
		log.R2ScoreKey, rec.Scores["r2"],
		log.FAC2Key, rec.Scores["fac2"],
		log.DurationMsKey, rec.Duration.Milliseconds(),
	)
	return rec, nil
}

func (t *Task) evaluateModel(ctx context.Context, strategy model.Strategy) (map[string]float64, map[string]any, error) {
	cols := append(append([]string(nil), t.Features...), t.Target)
	train, err := t.Train.DropNaN(cols)
	if err != nil {
		return nil, nil, err
	}
	if train.Len() == 0 {
		return nil, nil, errors.NewInsufficientDataError("crossval.Task", 1, 0)
	}
	X, err := train.Matrix(t.Features)
	if err != nil {
		return nil, nil, err
	}
	y, err := train.Vector(t.Target)
	if err != nil {
		return nil, nil, err
	}

	m, err := strategy.Train(ctx, X, y)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "%s training failed", strategy.Name())
	}

	yTrue, yPred, err := t.predict(m)
	if err != nil {
		return nil, nil, err
	}
	yTrue, yPred = metrics.DropNaN(yTrue, yPred)

	p := len(t.Features)
	if fc, ok := m.(model.FeatureCounter); ok {
		p = fc.NumFeatures()
	}
	scores, warnings, err := metrics.Scores(yTrue, yPred, p)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range warnings {
		errors.Warn(w)
	}
	return scores, m.Describe(), nil
}

// predict returns measured and predicted values for every test row. Without
// a superset the test rows are predicted directly; with one the inference
// rows are predicted and matched to the test rows by key. Rows that cannot be
// predicted get NaN.
func (t *Task) predict(m model.Model) ([]float64, []float64, error) {
	yTrue, err := t.Test.Column(t.Target)
	if err != nil {
		return nil, nil, err
	}
	yPred := make([]float64, len(yTrue))
	for i := range yPred {
		yPred[i] = math.NaN()
	}

	source := t.Test
	if t.Inference != nil {
		source = t.Inference
	}
	rows := make([]int, 0, source.Len())
	for i := 0; i < source.Len(); i++ {
		if t.complete(source, i) {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		return yTrue, yPred, nil
	}

	X, err := source.Take(rows).Matrix(t.Features)
	if err != nil {
		return nil, nil, err
	}
	pred, err := m.Predict(X)
	if err != nil {
		return nil, nil, errors.Wrap(err, "predict")
	}

	if t.Inference == nil {
		for k, i := range rows {
			yPred[i] = pred.At(k, 0)
		}
		return yTrue, yPred, nil
	}

	sourceKeys, err := source.Keys()
	if err != nil {
		return nil, nil, err
	}
	byKey := make(map[dataset.Key]float64, len(rows))
	for k, i := range rows {
		byKey[sourceKeys[i]] = pred.At(k, 0)
	}
	testKeys, err := t.Test.Keys()
	if err != nil {
		return nil, nil, err
	}
	for i, key := range testKeys {
		if v, ok := byKey[key]; ok {
			yPred[i] = v
		}
	}
	return yTrue, yPred, nil
}

func (t *Task) complete(f *dataset.Frame, i int) bool {
	for _, c := range t.Features {
		if v, err := f.At(i, c); err != nil || math.IsNaN(v) {
			return false
		}
	}
	return true
}
