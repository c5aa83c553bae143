package crossval

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/lurcv/core/parallel"
	"github.com/YuminosukeSato/lurcv/dataset"
	"github.com/YuminosukeSato/lurcv/pkg/errors"
	"github.com/YuminosukeSato/lurcv/pkg/log"
)

// Defaults of the evaluation protocol: 40 repetitions of 10-fold CV.
const (
	DefaultIterations = 40
	DefaultFolds      = 10
)

// Orchestrator runs iterations × folds tasks of one strategy.
type Orchestrator struct {
	factory     Factory
	iterations  int
	folds       int
	parallelism int
	seed        uint64
	superset    *dataset.Frame
	logger      log.Logger
	observer    parallel.Observer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithIterations sets how often the k-fold split is repeated.
func WithIterations(n int) Option {
	return func(o *Orchestrator) { o.iterations = n }
}

// WithFolds sets k.
func WithFolds(k int) Option {
	return func(o *Orchestrator) { o.folds = k }
}

// WithParallelism sets the number of concurrent tasks; <= 0 uses all CPUs.
func WithParallelism(n int) Option {
	return func(o *Orchestrator) { o.parallelism = n }
}

// WithSeed sets the run seed all shuffles and strategy seeds derive from.
func WithSeed(seed uint64) Option {
	return func(o *Orchestrator) { o.seed = seed }
}

// WithSuperset sets the inference-only table predictions are made on.
func WithSuperset(f *dataset.Frame) Option {
	return func(o *Orchestrator) { o.superset = f }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithObserver receives task lifecycle events.
func WithObserver(obs parallel.Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// NewOrchestrator creates an orchestrator for factory.
func NewOrchestrator(factory Factory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		factory:    factory,
		iterations: DefaultIterations,
		folds:      DefaultFolds,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = log.GetLogger()
	}
	return o
}

// Run validates the inputs, evaluates every (iteration, fold) task and
// aggregates the scores. Failed tasks are logged and left out of the
// aggregates; if every task fails the first task error is returned.
func (o *Orchestrator) Run(ctx context.Context, data *dataset.Frame, features []string, target string) (*Summary, error) {
	start := time.Now()
	if err := o.validate(data, features, target); err != nil {
		return nil, err
	}
	parts, err := Partitions(data, o.superset, o.iterations, o.folds, o.seed)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	pool := parallel.NewPool(o.parallelism, parallel.WithObserver(o.observer))
	logger := o.logger.With(log.RunIDKey, runID, log.StrategyKey, o.factory.Name)
	logger.Info("cross validation started",
		log.TasksKey, len(parts),
		log.ParallelismKey, pool.Workers(),
		log.SamplesKey, data.Len(),
		log.FeaturesKey, len(features),
	)

	taskSeeds := iterationSeeds(o.seed^0x5deece66d, len(parts))
	records := make([]Record, len(parts))
	errs := pool.Run(ctx, len(parts), func(ctx context.Context, i int) error {
		task := &Task{
			Partition: parts[i],
			Factory:   o.factory,
			Features:  features,
			Target:    target,
			Seed:      taskSeeds[i],
			Logger:    logger,
		}
		rec, err := task.Evaluate(ctx)
		rec.Iteration, rec.Fold = parts[i].Iteration, parts[i].Fold
		records[i] = rec
		return err
	})

	summary := &Summary{
		RunID:      runID,
		Strategy:   o.factory.Name,
		Iterations: o.iterations,
		Folds:      o.folds,
		Tasks:      len(parts),
		Records:    records,
	}
	var firstErr error
	for i, err := range errs {
		if err == nil {
			summary.Completed++
			continue
		}
		// skipped tasks never reach the closure
		records[i].Iteration, records[i].Fold = parts[i].Iteration, parts[i].Fold
		records[i].Err = err
		summary.Failed++
		if firstErr == nil {
			firstErr = err
		}
		logger.Warn("fold failed",
			log.ErrAttrKey, err.Error(),
			log.IterationKey, parts[i].Iteration,
			log.FoldKey, parts[i].Fold,
		)
	}
	summary.Stats = Aggregate(records)
	summary.Duration = time.Since(start)

	if err := ctx.Err(); err != nil {
		logger.Warn("cross validation interrupted",
			"completed", summary.Completed,
			"failed", summary.Failed,
		)
		return summary, errors.Wrapf(err, "interrupted after %d of %d tasks", summary.Completed, summary.Tasks)
	}
	if summary.Completed == 0 {
		return summary, errors.Wrapf(firstErr, "all %d tasks failed", summary.Tasks)
	}
	logger.Info("cross validation finished",
		"completed", summary.Completed,
		"failed", summary.Failed,
		log.RMSEKey, summary.Stats["rmse"].Mean,
		log.R2ScoreKey, summary.Stats["r2"].Mean,
		log.DurationMsKey, summary.Duration.Milliseconds(),
	)
	return summary, nil
}

func (o *Orchestrator) validate(data *dataset.Frame, features []string, target string) error {
	if o.factory.Model == nil && o.factory.Metrics == nil {
		return errors.NewConfigurationError("strategy", "no strategy configured", o.factory.Name)
	}
	if o.iterations < 1 {
		return errors.NewConfigurationError("iterations", "must be >= 1", o.iterations)
	}
	if o.folds < 2 {
		return errors.NewConfigurationError("folds", "must be >= 2", o.folds)
	}
	if data == nil || data.Len() == 0 {
		return errors.NewInsufficientDataError("crossval.Run", o.folds, 0)
	}
	if o.folds > data.Len() {
		return errors.NewConfigurationError("folds", "more folds than rows", o.folds)
	}
	if len(features) == 0 {
		return errors.NewConfigurationError("features", "at least one feature required", features)
	}
	if missing := data.Missing(append(append([]string(nil), features...), target)...); len(missing) > 0 {
		return errors.NewConfigurationError("dataset", "columns missing", missing)
	}
	for _, f := range features {
		if f == target {
			return errors.NewConfigurationError("features", "target used as feature", f)
		}
	}

	if o.superset == nil {
		return nil
	}
	want := append([]string{dataset.XColumn, dataset.YColumn}, features...)
	if missing := o.superset.Missing(want...); len(missing) > 0 {
		return errors.NewConfigurationError("superset", "columns missing", missing)
	}
	if missing := data.Missing(dataset.XColumn, dataset.YColumn); len(missing) > 0 {
		return errors.NewConfigurationError("dataset", "spatial key columns missing", missing)
	}
	if err := data.ValidateKeys(); err != nil {
		return errors.Wrap(err, "dataset")
	}
	if err := o.superset.ValidateKeys(); err != nil {
		return errors.Wrap(err, "superset")
	}
	return nil
}
