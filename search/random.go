// Package search implements the time-bounded random hyperparameter search
// over random forest regressors.
package search

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/YuminosukeSato/lurcv/core/model"
	"github.com/YuminosukeSato/lurcv/ensemble"
	"github.com/YuminosukeSato/lurcv/metrics"
	"github.com/YuminosukeSato/lurcv/pkg/errors"
	"github.com/YuminosukeSato/lurcv/pkg/log"
	"gonum.org/v1/gonum/mat"
)

// DefaultHoldout is the share of the training rows held out for validation.
const DefaultHoldout = 1.0 / 3

// Config holds the search settings. A Config is read-only once handed to
// NewRandomSearch.
type Config struct {
	// Budget bounds the wall-clock time spent sampling candidates.
	Budget time.Duration
	// Refit refits the best parameters on all training rows.
	Refit bool
	// Holdout is the validation share in (0, 1); zero means DefaultHoldout.
	Holdout float64
	Space   Space
	Seed    uint64
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Budget < 0 {
		return errors.NewConfigurationError("time_budget", "must be >= 0", c.Budget)
	}
	if c.Holdout < 0 || c.Holdout >= 1 {
		return errors.NewConfigurationError("holdout", "must be in (0, 1)", c.Holdout)
	}
	return c.Space.Validate()
}

// RandomSearch is a model.Strategy that samples forests until its budget is
// spent and keeps the one with the lowest validation RMSE.
type RandomSearch struct {
	cfg    Config
	logger log.Logger
}

// Option configures a RandomSearch.
type Option func(*RandomSearch)

// WithLogger sets the logger for candidate results.
func WithLogger(logger log.Logger) Option {
	return func(rs *RandomSearch) {
		rs.logger = logger
	}
}

// NewRandomSearch creates the strategy.
func NewRandomSearch(cfg Config, opts ...Option) *RandomSearch {
	if cfg.Holdout == 0 {
		cfg.Holdout = DefaultHoldout
	}
	rs := &RandomSearch{cfg: cfg}
	for _, opt := range opts {
		opt(rs)
	}
	if rs.logger == nil {
		rs.logger = log.GetLogger()
	}
	return rs
}

// Name implements model.Strategy.
func (rs *RandomSearch) Name() string { return "random_search" }

// Config returns the search settings.
func (rs *RandomSearch) Config() Config { return rs.cfg }

// Train implements model.Strategy.
//
// Candidates are drawn while less than Budget has elapsed since Train
// started. Every fit runs under a context that expires at the end of the
// budget; a fit cut short by it is discarded. Without a finished candidate
// Train returns a NoCandidateError.
func (rs *RandomSearch) Train(ctx context.Context, X, y mat.Matrix) (model.Model, error) {
	if err := rs.cfg.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	logger := rs.logger.With(log.ComponentKey, "search.RandomSearch")

	rng := rand.New(rand.NewPCG(rs.cfg.Seed, 0x5eed))
	split, err := holdout(X, y, rs.cfg.Holdout, rng)
	if err != nil {
		return nil, err
	}

	searchCtx, cancel := context.WithDeadline(ctx, start.Add(rs.cfg.Budget))
	defer cancel()

	var (
		best       Params
		bestModel  *ensemble.RandomForestRegressor
		bestRMSE   = math.Inf(1)
		candidates int
	)
	for time.Since(start) < rs.cfg.Budget {
		params := rs.cfg.Space.Sample(rng)
		rf := params.Forest(rng.Uint64())
		if err := rf.FitContext(searchCtx, split.fitX, split.fitY); err != nil {
			if searchCtx.Err() != nil {
				break
			}
			return nil, errors.Wrapf(err, "candidate %d", candidates+1)
		}
		pred, err := rf.Predict(split.valX)
		if err != nil {
			return nil, err
		}
		rmse, err := metrics.RMSE(split.valY, metrics.ColumnVector(pred))
		if err != nil {
			return nil, err
		}
		candidates++
		logger.Debug("candidate evaluated",
			log.HyperParamsKey, params.Map(),
			log.RMSEKey, rmse,
			log.CandidatesKey, candidates,
		)
		// strictly better keeps the earliest on ties
		if rmse < bestRMSE {
			best, bestModel, bestRMSE = params, rf, rmse
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	if candidates == 0 {
		return nil, errors.NewNoCandidateError(rs.cfg.Budget.String())
	}

	if rs.cfg.Refit {
		bestModel = best.Forest(rs.cfg.Seed)
		if err := bestModel.FitContext(ctx, X, y); err != nil {
			return nil, errors.Wrap(err, "refit best candidate")
		}
	}

	logger.Info("search finished",
		log.HyperParamsKey, best.Map(),
		log.CandidatesKey, candidates,
		log.RMSEKey, bestRMSE,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return &Model{
		forest:     bestModel,
		params:     best,
		candidates: candidates,
		bestRMSE:   bestRMSE,
		refit:      rs.cfg.Refit,
	}, nil
}

type split struct {
	fitX, valX *mat.Dense
	fitY, valY *mat.VecDense
}

// holdout shuffles the rows and moves round(share·n) of them to validation.
// Both parts keep at least one row.
func holdout(X, y mat.Matrix, share float64, rng *rand.Rand) (*split, error) {
	r, c := X.Dims()
	ry, _ := y.Dims()
	if ry != r {
		return nil, errors.NewDimensionError("search.holdout", r, ry, 0)
	}
	nVal := int(math.Round(share * float64(r)))
	if nVal < 1 {
		nVal = 1
	}
	if r-nVal < 1 {
		return nil, errors.NewInsufficientDataError("search.holdout", nVal+1, r)
	}

	perm := rng.Perm(r)
	take := func(idx []int) (*mat.Dense, *mat.VecDense) {
		Xs := mat.NewDense(len(idx), c, nil)
		ys := mat.NewVecDense(len(idx), nil)
		for k, i := range idx {
			for j := 0; j < c; j++ {
				Xs.Set(k, j, X.At(i, j))
			}
			ys.SetVec(k, y.At(i, 0))
		}
		return Xs, ys
	}
	s := &split{}
	s.valX, s.valY = take(perm[:nVal])
	s.fitX, s.fitY = take(perm[nVal:])
	return s, nil
}

// Model is the forest chosen by a search.
type Model struct {
	forest     *ensemble.RandomForestRegressor
	params     Params
	candidates int
	bestRMSE   float64
	refit      bool
}

// Predict implements model.Predictor.
func (m *Model) Predict(X mat.Matrix) (mat.Matrix, error) {
	return m.forest.Predict(X)
}

// Params returns the winning hyperparameters.
func (m *Model) Params() Params { return m.params }

// Candidates returns how many candidates finished within the budget.
func (m *Model) Candidates() int { return m.candidates }

// BestRMSE returns the validation RMSE of the winning candidate.
func (m *Model) BestRMSE() float64 { return m.bestRMSE }

// Describe implements model.Model.
func (m *Model) Describe() map[string]any {
	return map[string]any{
		"estimator":  "random_forest",
		"params":     m.params.Map(),
		"candidates": m.candidates,
		"best_rmse":  m.bestRMSE,
		"refit":      m.refit,
	}
}
