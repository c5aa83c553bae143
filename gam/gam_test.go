package gam

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/lurcv/dataset"
	"github.com/YuminosukeSato/lurcv/pkg/errors"
)

// fakeEngine predicts the first feature column times scale.
type fakeEngine struct {
	scale   float64
	resp    *Response
	err     error
	lastReq *Request
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Fit(_ context.Context, req *Request) (*Response, error) {
	f.lastReq = req
	if f.err != nil || f.resp != nil {
		return f.resp, f.err
	}
	col := 0
	for i, c := range req.Newdata.Columns {
		if c == "a" {
			col = i
		}
	}
	pred := make([]Value, len(req.Newdata.Rows))
	for i, row := range req.Newdata.Rows {
		pred[i] = Value(float64(row[col]) * f.scale)
	}
	return &Response{Predictions: pred, RSq: 0.7, DevExpl: 0.65}, nil
}

func testConfig() Config {
	return Config{
		Target: "pm",
		Terms:  []Term{Smooth("a"), Linear("b")},
		Family: "Gamma",
		Link:   "log",
	}
}

func frame(t *testing.T, cols []string, rows [][]float64) *dataset.Frame {
	t.Helper()
	f, err := dataset.NewFrame(cols, rows)
	require.NoError(t, err)
	return f
}

func TestFormula(t *testing.T) {
	assert.Equal(t, `pm~s(a,bs="cr",k=3)+b`, testConfig().Formula())
	assert.Equal(t,
		`pm_measurement~s(industry,bs="cr",k=3)+s(floorlevel,bs="cr",k=3)+s(elevation,bs="cr",k=3)`+
			`+s(slope,bs="cr",k=3)+s(expo,bs="cr",k=3)+streetsize+s(traffic_tot,bs="cr",k=3)+s(streetdist_l,bs="cr",k=3)`,
		DefaultConfig().Formula())
	assert.Equal(t, "s(a)", Term{Column: "a", Smooth: true}.String())
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no target", func(c *Config) { c.Target = "" }},
		{"no terms", func(c *Config) { c.Terms = nil }},
		{"duplicate term", func(c *Config) { c.Terms = append(c.Terms, Linear("a")) }},
		{"target as term", func(c *Config) { c.Terms = append(c.Terms, Linear("pm")) }},
		{"unknown family", func(c *Config) { c.Family = "tweedie" }},
		{"no link", func(c *Config) { c.Link = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			assert.True(t, errors.IsConfiguration(cfg.Validate()))
		})
	}
}

func TestEvaluateOnTestFold(t *testing.T) {
	cols := []string{"x", "y", "pm", "a", "b"}
	train := frame(t, cols, [][]float64{{0, 0, 10, 10, 1}, {0, 1, 20, 20, 2}})
	test := frame(t, cols, [][]float64{
		{1, 0, 10, 10, 1},
		{1, 1, 20, 20, 1},
		{1, 2, 30, 30, 1},
		{1, 3, 40, math.NaN(), 1},
	})

	engine := &fakeEngine{scale: 1}
	m, err := NewStrategy(testConfig(), engine, nil).Evaluate(context.Background(), train, test, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"pm", "a", "b"}, engine.lastReq.Train.Columns)
	assert.Equal(t, []string{"x", "y", "a", "b"}, engine.lastReq.Newdata.Columns)
	assert.Equal(t, 3, m.N)
	assert.InDelta(t, 0, m.RMSE, 1e-12)
	assert.InDelta(t, 100, m.FAC2, 1e-12)
	assert.InDelta(t, 1, m.R2Val, 1e-12)
	assert.Equal(t, 0.7, m.R2)
	assert.Equal(t, 0.65, m.DevExpl)
	assert.Equal(t, 3.0, m.Scores()["n_test"])
}

func TestEvaluateJoinsInferenceByKey(t *testing.T) {
	cols := []string{"x", "y", "pm", "a", "b"}
	train := frame(t, cols, [][]float64{{0, 0, 10, 10, 1}, {0, 1, 20, 20, 2}})
	test := frame(t, cols, [][]float64{
		{5, 5, 8, 0, 0},
		{6, 6, 12, 0, 0},
		{7, 7, 99, 0, 0}, // not in the superset
	})
	inference := frame(t, []string{"x", "y", "a", "b"}, [][]float64{
		{9, 9, 1, 0},
		{6, 6, 6, 0},
		{5.0000000001, 5, 4, 0},
	})

	engine := &fakeEngine{scale: 2}
	m, err := NewStrategy(testConfig(), engine, nil).Evaluate(context.Background(), train, test, inference)
	require.NoError(t, err)

	// pairs (8, 8) and (12, 12)
	assert.Equal(t, 2, m.N)
	assert.InDelta(t, 0, m.RMSE, 1e-12)
	assert.Len(t, engine.lastReq.Newdata.Rows, 3)
}

func TestEvaluateDelegationFailures(t *testing.T) {
	cols := []string{"x", "y", "pm", "a", "b"}
	train := frame(t, cols, [][]float64{{0, 0, 10, 10, 1}})
	test := frame(t, cols, [][]float64{{1, 0, 10, 10, 1}, {1, 1, 20, 20, 1}})

	tests := []struct {
		name   string
		engine *fakeEngine
	}{
		{"engine error", &fakeEngine{err: errors.New("R crashed")}},
		{"prediction count", &fakeEngine{resp: &Response{Predictions: []Value{1}, RSq: 0.5, DevExpl: 0.5}}},
		{"non-finite summary", &fakeEngine{resp: &Response{Predictions: []Value{1, 2}, RSq: Value(math.NaN()), DevExpl: 0.5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStrategy(testConfig(), tt.engine, nil)
			_, err := s.Evaluate(context.Background(), train, test, nil)
			require.Error(t, err)
			assert.True(t, errors.IsStrategyDelegation(err), "got %v", err)
		})
	}
}

func TestEvaluateNonFiniteSummary(t *testing.T) {
	cols := []string{"x", "y", "pm", "a", "b"}
	train := frame(t, cols, [][]float64{{0, 0, 10, 10, 1}})
	test := frame(t, cols, [][]float64{{1, 0, 10, 10, 1}, {1, 1, 20, 20, 1}})

	for name, resp := range map[string]*Response{
		"r_sq":     {Predictions: []Value{1, 2}, RSq: Value(math.Inf(1)), DevExpl: 0.5},
		"dev_expl": {Predictions: []Value{1, 2}, RSq: 0.5, DevExpl: Value(math.NaN())},
	} {
		t.Run(name, func(t *testing.T) {
			s := NewStrategy(testConfig(), &fakeEngine{resp: resp}, nil)
			_, err := s.Evaluate(context.Background(), train, test, nil)
			require.Error(t, err)
			assert.True(t, errors.IsStrategyDelegation(err), "got %v", err)

			var numErr *errors.NumericalInstabilityError
			require.True(t, errors.As(err, &numErr), "got %v", err)
			assert.Equal(t, "gam."+name, numErr.Operation)
		})
	}
}

func TestRscriptEngineMissingBinary(t *testing.T) {
	_, err := NewRscriptEngine("/nonexistent/Rscript").Fit(context.Background(), &Request{})
	require.Error(t, err)
	assert.True(t, errors.IsStrategyDelegation(err))
}

func TestValueJSON(t *testing.T) {
	b, err := json.Marshal([]Value{1.5, Value(math.NaN())})
	require.NoError(t, err)
	assert.JSONEq(t, `[1.5, null]`, string(b))

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(`{"predictions":[2,null],"r_sq":0.4,"dev_expl":0.5}`), &resp))
	assert.Equal(t, Value(2), resp.Predictions[0])
	assert.True(t, math.IsNaN(float64(resp.Predictions[1])))
}
