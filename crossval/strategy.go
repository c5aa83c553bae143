package crossval

import (
	"context"

	"github.com/YuminosukeSato/lurcv/core/model"
	"github.com/YuminosukeSato/lurcv/dataset"
	"github.com/YuminosukeSato/lurcv/gam"
	"github.com/YuminosukeSato/lurcv/linear"
	"github.com/YuminosukeSato/lurcv/pkg/log"
	"github.com/YuminosukeSato/lurcv/search"
)

// Env is what a fold task hands to a Factory.
type Env struct {
	Seed     uint64
	Features []string
	Logger   log.Logger
}

// Evaluator is a strategy that fits and scores in one step, producing the
// fold scores itself.
type Evaluator interface {
	Evaluate(ctx context.Context, train, test, inference *dataset.Frame) (scores map[string]float64, describe map[string]any, err error)
}

// Factory creates a fresh strategy instance for every fold task. Exactly one
// of Model and Metrics is set.
type Factory struct {
	Name    string
	Model   func(env Env) model.Strategy
	Metrics func(env Env) Evaluator
}

// ForwardSelection evaluates greedy forward selection over OLS.
func ForwardSelection(threshold float64) Factory {
	return Factory{
		Name: "forward_selection",
		Model: func(env Env) model.Strategy {
			return linear.NewForwardSelection(
				linear.WithThreshold(threshold),
				linear.WithFeatureNames(env.Features),
				linear.WithLogger(env.Logger),
			)
		},
	}
}

// RandomSearch evaluates the time-bounded random forest search. Each task
// searches with its own seed.
func RandomSearch(cfg search.Config) Factory {
	return Factory{
		Name: "random_search",
		Model: func(env Env) model.Strategy {
			c := cfg
			c.Seed = env.Seed
			return search.NewRandomSearch(c, search.WithLogger(env.Logger))
		},
	}
}

// ExternalGAM evaluates a GAM fitted by engine.
func ExternalGAM(cfg gam.Config, engine gam.Engine) Factory {
	return Factory{
		Name: "external_gam",
		Metrics: func(env Env) Evaluator {
			return &gamEvaluator{strategy: gam.NewStrategy(cfg, engine, env.Logger), engine: engine.Name()}
		},
	}
}

type gamEvaluator struct {
	strategy *gam.Strategy
	engine   string
}

func (g *gamEvaluator) Evaluate(ctx context.Context, train, test, inference *dataset.Frame) (map[string]float64, map[string]any, error) {
	m, err := g.strategy.Evaluate(ctx, train, test, inference)
	if err != nil {
		return nil, nil, err
	}
	cfg := g.strategy.Config()
	return m.Scores(), map[string]any{
		"estimator": "gam",
		"formula":   cfg.Formula(),
		"family":    cfg.Family,
		"link":      cfg.Link,
		"engine":    g.engine,
	}, nil
}
