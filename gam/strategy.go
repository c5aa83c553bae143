package gam

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/lurcv/dataset"
	"github.com/YuminosukeSato/lurcv/metrics"
	"github.com/YuminosukeSato/lurcv/pkg/errors"
	"github.com/YuminosukeSato/lurcv/pkg/log"
)

// Metrics are the fold scores of one delegated fit.
type Metrics struct {
	RMSE float64
	// R2 and DevExpl come from the engine's model summary.
	R2      float64
	R2Val   float64
	DevExpl float64
	FAC2    float64
	N       int
}

// Scores returns the metrics under their record names.
func (m Metrics) Scores() map[string]float64 {
	return map[string]float64{
		"rmse":     m.RMSE,
		"r2":       m.R2,
		"r2val":    m.R2Val,
		"dev_expl": m.DevExpl,
		"fac2":     m.FAC2,
		"n_test":   float64(m.N),
	}
}

// Strategy fits one GAM per call through an Engine and scores it on the
// test fold.
type Strategy struct {
	cfg    Config
	engine Engine
	logger log.Logger
}

// NewStrategy creates the strategy. A nil logger uses log.GetLogger().
func NewStrategy(cfg Config, engine Engine, logger log.Logger) *Strategy {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Strategy{cfg: cfg, engine: engine, logger: logger}
}

// Name returns the strategy name.
func (s *Strategy) Name() string { return "external_gam" }

// Config returns the model configuration.
func (s *Strategy) Config() Config { return s.cfg }

// Evaluate fits on train and predicts inference when it is given, else test.
// Predictions on inference rows are matched to test rows by spatial key; test
// rows without a match or with NaN are not scored.
func (s *Strategy) Evaluate(ctx context.Context, train, test, inference *dataset.Frame) (Metrics, error) {
	if err := s.cfg.Validate(); err != nil {
		return Metrics{}, err
	}
	features := s.cfg.Columns()

	trainTable, err := table(train, append([]string{s.cfg.Target}, features...))
	if err != nil {
		return Metrics{}, err
	}
	newdata := test
	if inference != nil {
		newdata = inference
	}
	newCols := features
	if newdata.HasKeys() {
		newCols = append([]string{dataset.XColumn, dataset.YColumn}, features...)
	}
	newTable, err := table(newdata, newCols)
	if err != nil {
		return Metrics{}, err
	}

	resp, err := s.engine.Fit(ctx, &Request{
		Formula: s.cfg.Formula(),
		Family:  s.cfg.Family,
		Link:    s.cfg.Link,
		Train:   trainTable,
		Newdata: newTable,
	})
	if err != nil {
		if ctx.Err() != nil {
			return Metrics{}, errors.WithStack(ctx.Err())
		}
		if errors.IsStrategyDelegation(err) {
			return Metrics{}, err
		}
		return Metrics{}, errors.NewStrategyDelegationError(s.engine.Name(), "fit failed", err)
	}
	if err := s.checkResponse(resp, newdata.Len()); err != nil {
		return Metrics{}, err
	}

	yTrue, yPred, err := s.pairs(test, newdata, inference != nil, resp.Predictions)
	if err != nil {
		return Metrics{}, err
	}
	yTrue, yPred = metrics.DropNaN(yTrue, yPred)
	if len(yTrue) == 0 {
		return Metrics{}, errors.NewInsufficientDataError("gam.Evaluate", 1, 0)
	}

	t := mat.NewVecDense(len(yTrue), yTrue)
	p := mat.NewVecDense(len(yPred), yPred)
	m := Metrics{R2: float64(resp.RSq), DevExpl: float64(resp.DevExpl), N: len(yTrue)}
	if m.RMSE, err = metrics.RMSE(t, p); err != nil {
		return Metrics{}, err
	}
	if m.FAC2, err = metrics.FAC2(t, p); err != nil {
		return Metrics{}, err
	}
	if m.R2Val, err = metrics.R2Val(t, p); err != nil {
		if !metrics.IsUndefined(err) {
			return Metrics{}, err
		}
		errors.Warn(err)
		m.R2Val = math.NaN()
	}

	s.logger.Debug("gam fold scored",
		log.EngineKey, s.engine.Name(),
		log.RMSEKey, m.RMSE,
		log.R2ScoreKey, m.R2,
		log.TestSizeKey, m.N,
	)
	return m, nil
}

func (s *Strategy) checkResponse(resp *Response, rows int) error {
	if resp == nil {
		return errors.NewStrategyDelegationError(s.engine.Name(), "empty response", nil)
	}
	if len(resp.Predictions) != rows {
		return errors.NewStrategyDelegationError(s.engine.Name(), "prediction count mismatch",
			errors.NewDimensionError("gam.Evaluate", rows, len(resp.Predictions), 0))
	}
	if err := errors.CheckScalar("gam.r_sq", float64(resp.RSq), 0); err != nil {
		return errors.NewStrategyDelegationError(s.engine.Name(), "non-finite model summary", err)
	}
	if err := errors.CheckScalar("gam.dev_expl", float64(resp.DevExpl), 0); err != nil {
		return errors.NewStrategyDelegationError(s.engine.Name(), "non-finite model summary", err)
	}
	return nil
}

// pairs lines up measured and predicted values for every test row.
func (s *Strategy) pairs(test, newdata *dataset.Frame, byKey bool, pred []Value) ([]float64, []float64, error) {
	yTrue, err := test.Column(s.cfg.Target)
	if err != nil {
		return nil, nil, err
	}
	yPred := make([]float64, len(yTrue))
	if !byKey {
		for i := range yPred {
			yPred[i] = float64(pred[i])
		}
		return yTrue, yPred, nil
	}

	index, err := newdata.KeyIndex()
	if err != nil {
		return nil, nil, err
	}
	keys, err := test.Keys()
	if err != nil {
		return nil, nil, err
	}
	for i, k := range keys {
		yPred[i] = math.NaN()
		if row, ok := index[k]; ok {
			yPred[i] = float64(pred[row])
		}
	}
	return yTrue, yPred, nil
}

func table(f *dataset.Frame, columns []string) (Table, error) {
	t := Table{Columns: columns, Rows: make([][]Value, f.Len())}
	for i := range t.Rows {
		row := make([]Value, len(columns))
		for j, c := range columns {
			v, err := f.At(i, c)
			if err != nil {
				return Table{}, err
			}
			row[j] = Value(v)
		}
		t.Rows[i] = row
	}
	return t, nil
}
