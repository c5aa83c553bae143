package crossval

import (
	"context"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/lurcv/core/model"
	"github.com/YuminosukeSato/lurcv/dataset"
	"github.com/YuminosukeSato/lurcv/gam"
	"github.com/YuminosukeSato/lurcv/pkg/errors"
	"github.com/YuminosukeSato/lurcv/pkg/log"
	"github.com/YuminosukeSato/lurcv/search"
)

var features = []string{"a", "b", "c"}

// lurFrame builds n measurement sites on a grid with target 50 + 4a + 2b.
func lurFrame(t *testing.T, n int, seed uint64) *dataset.Frame {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, 3))
	rows := make([][]float64, n)
	for i := range rows {
		a, b, c := rng.Float64()*10, rng.Float64()*10, rng.Float64()*10
		rows[i] = []float64{float64(i % 20), float64(i / 20), 50 + 4*a + 2*b + rng.NormFloat64(), a, b, c}
	}
	f, err := dataset.NewFrame([]string{"x", "y", "pm", "a", "b", "c"}, rows)
	require.NoError(t, err)
	return f
}

func quietLogger() log.Logger {
	l, _ := log.NewTestLogger(log.LevelWarn)
	return l
}

func TestOrchestratorForwardSelection(t *testing.T) {
	data := lurFrame(t, 100, 1)

	summary, err := NewOrchestrator(ForwardSelection(0.01),
		WithIterations(3),
		WithFolds(5),
		WithParallelism(4),
		WithSeed(1),
		WithLogger(quietLogger()),
	).Run(context.Background(), data, features, "pm")
	require.NoError(t, err)

	assert.Equal(t, 15, summary.Tasks)
	assert.Len(t, summary.Records, 15)
	assert.Equal(t, 15, summary.Completed)
	assert.Zero(t, summary.Failed)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, "forward_selection", summary.Strategy)

	seen := map[[2]int]bool{}
	for _, r := range summary.Records {
		seen[[2]int{r.Iteration, r.Fold}] = true
		assert.Equal(t, 20.0, r.Scores["n_test"])
		assert.Contains(t, r.Model["features"], "a")
	}
	assert.Len(t, seen, 15)

	rmse := summary.Stats["rmse"]
	assert.Equal(t, 15, rmse.N)
	assert.InDelta(t, 1, rmse.Mean, 0.4)
	assert.Greater(t, summary.Stats["r2"].Mean, 0.9)
	for _, name := range []string{"rmse", "r2", "adj_r2", "fac2", "r2val", "dev_expl", "n_test"} {
		assert.Contains(t, summary.Metrics(), name)
	}
}

func TestOrchestratorStableAcrossSeeds(t *testing.T) {
	data := lurFrame(t, 120, 2)
	run := func(seed uint64) float64 {
		s, err := NewOrchestrator(ForwardSelection(0.01),
			WithIterations(4), WithFolds(5), WithSeed(seed), WithLogger(quietLogger()),
		).Run(context.Background(), data, features, "pm")
		require.NoError(t, err)
		return s.Stats["rmse"].Mean
	}
	a, b := run(1), run(99)
	assert.InDelta(t, a, b, 0.25*a)
	assert.Equal(t, a, run(1))
}

func TestOrchestratorIsolatesFailures(t *testing.T) {
	data := lurFrame(t, 40, 3)
	var calls atomic.Int32

	factory := Factory{
		Name: "flaky",
		Model: func(env Env) model.Strategy {
			return model.StrategyFunc{
				StrategyName: "flaky",
				TrainFunc: func(ctx context.Context, X, y mat.Matrix) (model.Model, error) {
					switch calls.Add(1) {
					case 1:
						panic("boom")
					case 2:
						return nil, errors.New("fit failed")
					}
					return meanModel{mean: mat.Sum(y) / float64(y.(*mat.VecDense).Len())}, nil
				},
			}
		},
	}

	summary, err := NewOrchestrator(factory,
		WithIterations(2), WithFolds(4), WithParallelism(1), WithLogger(quietLogger()),
	).Run(context.Background(), data, features, "pm")
	require.NoError(t, err)
	assert.Equal(t, 8, summary.Tasks)
	assert.Equal(t, 6, summary.Completed)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 6, summary.Stats["rmse"].N)

	var panicErr *errors.PanicError
	failed := 0
	for _, r := range summary.Records {
		if !r.OK() {
			failed++
			if errors.As(r.Err, &panicErr) {
				assert.Equal(t, "boom", panicErr.PanicValue)
			}
		}
	}
	assert.Equal(t, 2, failed)
	require.NotNil(t, panicErr)
}

func TestOrchestratorAllTasksFail(t *testing.T) {
	data := lurFrame(t, 30, 4)
	_, err := NewOrchestrator(RandomSearch(search.Config{Budget: 0, Space: search.DefaultSpace()}),
		WithIterations(1), WithFolds(3), WithLogger(quietLogger()),
	).Run(context.Background(), data, features, "pm")
	require.Error(t, err)
	assert.True(t, errors.IsNoCandidate(err))
}

func TestOrchestratorRandomSearch(t *testing.T) {
	data := lurFrame(t, 60, 5)
	cfg := search.Config{
		Budget: 100 * time.Millisecond,
		Space:  search.Space{NEstimators: search.IntRange{1, 5}, Bootstrap: true},
	}
	summary, err := NewOrchestrator(RandomSearch(cfg),
		WithIterations(1), WithFolds(3), WithParallelism(3), WithLogger(quietLogger()),
	).Run(context.Background(), data, features, "pm")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Completed)
	for _, r := range summary.Records {
		assert.GreaterOrEqual(t, r.Model["candidates"], 1)
	}
}

func TestOrchestratorValidation(t *testing.T) {
	data := lurFrame(t, 20, 6)
	dup, err := dataset.NewFrame([]string{"x", "y", "a", "b", "c"}, [][]float64{{0, 0, 1, 1, 1}, {0, 0, 2, 2, 2}})
	require.NoError(t, err)
	noKeys, err := dataset.NewFrame([]string{"a", "b", "c"}, [][]float64{{1, 1, 1}})
	require.NoError(t, err)

	tests := []struct {
		name     string
		opts     []Option
		features []string
		target   string
	}{
		{"zero iterations", []Option{WithIterations(0)}, features, "pm"},
		{"one fold", []Option{WithFolds(1)}, features, "pm"},
		{"more folds than rows", []Option{WithFolds(21)}, features, "pm"},
		{"missing feature", nil, []string{"a", "nope"}, "pm"},
		{"missing target", nil, features, "no2"},
		{"no features", nil, nil, "pm"},
		{"target as feature", nil, []string{"a", "pm"}, "pm"},
		{"duplicate superset keys", []Option{WithSuperset(dup)}, features, "pm"},
		{"superset without keys", []Option{WithSuperset(noKeys)}, features, "pm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]Option{WithLogger(quietLogger())}, tt.opts...)
			_, err := NewOrchestrator(ForwardSelection(0.01), opts...).
				Run(context.Background(), data, tt.features, tt.target)
			require.Error(t, err)
			assert.True(t, errors.IsConfiguration(err), "got %v", err)
		})
	}
}

func TestOrchestratorSuperset(t *testing.T) {
	data := lurFrame(t, 60, 7)

	// the superset holds every measurement site plus unmeasured ones
	var rows [][]float64
	for i := 0; i < data.Len(); i++ {
		row := make([]float64, 5)
		for j, c := range []string{"x", "y", "a", "b", "c"} {
			row[j], _ = data.At(i, c)
		}
		rows = append(rows, row)
	}
	rows = append(rows, []float64{100, 100, 1, 1, 1}, []float64{101, 100, 2, 2, 2})
	superset, err := dataset.NewFrame([]string{"x", "y", "a", "b", "c"}, rows)
	require.NoError(t, err)

	summary, err := NewOrchestrator(ForwardSelection(0.01),
		WithIterations(2), WithFolds(3), WithSuperset(superset), WithLogger(quietLogger()),
	).Run(context.Background(), data, features, "pm")
	require.NoError(t, err)
	assert.Equal(t, 6, summary.Completed)
	for _, r := range summary.Records {
		assert.Equal(t, 20.0, r.Scores["n_test"])
	}

	parts, err := Partitions(data, superset, 1, 3, 0)
	require.NoError(t, err)
	for _, p := range parts {
		// unmeasured sites plus the test rows
		assert.Equal(t, p.Test.Len()+2, p.Inference.Len())
	}
}

func TestOrchestratorSupersetWithoutMatches(t *testing.T) {
	data := lurFrame(t, 20, 8)
	superset, err := dataset.NewFrame([]string{"x", "y", "a", "b", "c"}, [][]float64{{500, 500, 1, 1, 1}})
	require.NoError(t, err)

	_, err = NewOrchestrator(ForwardSelection(0.01),
		WithIterations(1), WithFolds(2), WithSuperset(superset), WithLogger(quietLogger()),
	).Run(context.Background(), data, features, "pm")
	require.Error(t, err)
	assert.True(t, errors.IsInsufficientData(err), "got %v", err)
}

type stubEngine struct{}

func (stubEngine) Name() string { return "stub" }

func (stubEngine) Fit(_ context.Context, req *gam.Request) (*gam.Response, error) {
	pred := make([]gam.Value, len(req.Newdata.Rows))
	for i := range pred {
		pred[i] = 60
	}
	return &gam.Response{Predictions: pred, RSq: 0.5, DevExpl: 0.4}, nil
}

func TestOrchestratorExternalGAM(t *testing.T) {
	data := lurFrame(t, 40, 9)
	cfg := gam.Config{Target: "pm", Terms: []gam.Term{gam.Smooth("a"), gam.Linear("b")}, Family: "Gamma", Link: "log"}

	summary, err := NewOrchestrator(ExternalGAM(cfg, stubEngine{}),
		WithIterations(2), WithFolds(4), WithLogger(quietLogger()),
	).Run(context.Background(), data, cfg.Columns(), "pm")
	require.NoError(t, err)
	assert.Equal(t, 8, summary.Completed)
	assert.InDelta(t, 0.5, summary.Stats["r2"].Mean, 1e-12)
	assert.InDelta(t, 0.4, summary.Stats["dev_expl"].Mean, 1e-12)
	assert.Equal(t, "gam", summary.Records[0].Model["estimator"])
}

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector("forward_selection", reg)
	require.NoError(t, err)

	data := lurFrame(t, 30, 10)
	_, err = NewOrchestrator(ForwardSelection(0.01),
		WithIterations(2), WithFolds(3), WithObserver(c), WithLogger(quietLogger()),
	).Run(context.Background(), data, features, "pm")
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	got := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				got[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				got[mf.GetName()] += float64(m.GetHistogram().GetSampleCount())
			case m.GetGauge() != nil:
				got[mf.GetName()] = m.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, 6.0, got["lurcv_cv_tasks_total"])
	assert.Equal(t, 6.0, got["lurcv_cv_task_duration_seconds"])
	assert.Equal(t, 0.0, got["lurcv_cv_tasks_running"])

	_, err = NewCollector("forward_selection", reg)
	assert.Error(t, err)
}

func TestAggregate(t *testing.T) {
	records := []Record{
		{Scores: map[string]float64{"rmse": 1, "r2": math.NaN()}},
		{Scores: map[string]float64{"rmse": 3, "r2": 0.5}},
		{Scores: map[string]float64{"rmse": 100}, Err: errors.New("failed")},
	}
	stats := Aggregate(records)
	assert.Equal(t, Stat{Mean: 2, Std: math.Sqrt2, N: 2}, stats["rmse"])
	assert.Equal(t, Stat{Mean: 0.5, Std: 0, N: 1}, stats["r2"])
}

type meanModel struct{ mean float64 }

func (m meanModel) Predict(X mat.Matrix) (mat.Matrix, error) {
	r, _ := X.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, m.mean)
	}
	return out, nil
}

func (m meanModel) Describe() map[string]any { return map[string]any{"mean": m.mean} }

// frameRows copies the cells of f in column order so tests can alter them.
func frameRows(t *testing.T, f *dataset.Frame) [][]float64 {
	t.Helper()
	rows := make([][]float64, f.Len())
	for i := range rows {
		rows[i] = make([]float64, len(f.Columns()))
		for j, c := range f.Columns() {
			v, err := f.At(i, c)
			require.NoError(t, err)
			rows[i][j] = v
		}
	}
	return rows
}

func TestOrchestratorDropsNaNRows(t *testing.T) {
	clean := lurFrame(t, 100, 11)
	rows := frameRows(t, clean)
	// columns: x, y, pm, a, b, c
	for i := 0; i < 4; i++ {
		rows[i][2] = math.NaN()
	}
	for i := 4; i < 8; i++ {
		rows[i][5] = math.NaN()
	}
	data, err := dataset.NewFrame(clean.Columns(), rows)
	require.NoError(t, err)

	summary, err := NewOrchestrator(ForwardSelection(0.01),
		WithIterations(2), WithFolds(5), WithSeed(3), WithLogger(quietLogger()),
	).Run(context.Background(), data, features, "pm")
	require.NoError(t, err)
	assert.Equal(t, 10, summary.Completed)
	assert.Zero(t, summary.Failed)

	for _, name := range []string{"rmse", "r2", "fac2", "n_test"} {
		st := summary.Stats[name]
		assert.Equal(t, 10, st.N, name)
		assert.False(t, math.IsNaN(st.Mean) || math.IsInf(st.Mean, 0), "%s mean %v", name, st.Mean)
	}
	// 8 of 100 rows cannot be scored in each iteration
	assert.InDelta(t, 18.4, summary.Stats["n_test"].Mean, 1e-9)
	perIteration := map[int]float64{}
	for _, r := range summary.Records {
		perIteration[r.Iteration] += r.Scores["n_test"]
	}
	assert.Equal(t, map[int]float64{0: 92, 1: 92}, perIteration)
}

func TestOrchestratorRejectsNonFiniteKeys(t *testing.T) {
	clean := lurFrame(t, 20, 12)
	rows := frameRows(t, clean)
	rows[3][0] = math.NaN()
	badData, err := dataset.NewFrame(clean.Columns(), rows)
	require.NoError(t, err)

	supersetRows := [][]float64{{0, 0, 1, 1, 1}, {math.Inf(1), 0, 1, 1, 1}}
	badSuperset, err := dataset.NewFrame([]string{"x", "y", "a", "b", "c"}, supersetRows)
	require.NoError(t, err)
	goodSuperset, err := dataset.NewFrame([]string{"x", "y", "a", "b", "c"}, [][]float64{{0, 0, 1, 1, 1}})
	require.NoError(t, err)

	tests := []struct {
		name     string
		data     *dataset.Frame
		superset *dataset.Frame
	}{
		{"NaN x in data", badData, goodSuperset},
		{"Inf x in superset", clean, badSuperset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() {
				_, err = NewOrchestrator(ForwardSelection(0.01),
					WithIterations(1), WithFolds(2), WithSuperset(tt.superset), WithLogger(quietLogger()),
				).Run(context.Background(), tt.data, features, "pm")
			})
			require.Error(t, err)
			assert.True(t, errors.IsConfiguration(err), "got %v", err)
		})
	}
}

func TestOrchestratorReportsCancellation(t *testing.T) {
	data := lurFrame(t, 40, 13)
	slow := Factory{
		Name: "slow",
		Model: func(env Env) model.Strategy {
			return model.StrategyFunc{
				StrategyName: "slow",
				TrainFunc: func(ctx context.Context, X, y mat.Matrix) (model.Model, error) {
					select {
					case <-time.After(20 * time.Millisecond):
					case <-ctx.Done():
						return nil, errors.WithStack(ctx.Err())
					}
					return meanModel{mean: mat.Sum(y) / float64(y.(*mat.VecDense).Len())}, nil
				},
			}
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	summary, err := NewOrchestrator(slow,
		WithIterations(4), WithFolds(10), WithParallelism(1), WithLogger(quietLogger()),
	).Run(ctx, data, features, "pm")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NotNil(t, summary)
	assert.Less(t, summary.Completed, summary.Tasks)
	assert.Equal(t, summary.Tasks, summary.Completed+summary.Failed)
	seen := map[[2]int]bool{}
	for _, r := range summary.Records {
		seen[[2]int{r.Iteration, r.Fold}] = true
	}
	assert.Len(t, seen, 40, "every record keeps its own iteration and fold")
}
