// Standard attribute keys. Keys follow a hierarchical "group.name" convention
// so log lines of a run can be filtered by run, iteration or fold.

package log

// Run context
const (
	// RunIDKey identifies one orchestrated evaluation run (a UUID).
	RunIDKey = "cv.run_id"

	// StrategyKey names the modeling strategy under evaluation.
	// Values: "forward_selection", "random_search", "external_gam"
	StrategyKey = "cv.strategy"

	// IterationKey is the 0-based repetition index of the k-fold procedure.
	IterationKey = "cv.iteration"

	// FoldKey is the 0-based fold index within an iteration.
	FoldKey = "cv.fold"

	// TasksKey is the number of (iteration, fold) tasks of a run.
	TasksKey = "cv.tasks"

	// ParallelismKey is the worker count of the pool.
	ParallelismKey = "cv.parallelism"

	// ComponentKey identifies the package emitting the record.
	ComponentKey = "component"

	// OperationKey specifies the operation being performed.
	OperationKey = "operation"

	// ModelNameKey identifies the estimator type.
	ModelNameKey = "model.name"
)

// Data shape
const (
	// SamplesKey is the number of rows involved.
	SamplesKey = "data.samples"

	// FeaturesKey is the number of predictor columns involved.
	FeaturesKey = "data.features"

	// TrainSizeKey and TestSizeKey describe one partition.
	TrainSizeKey = "data.train_size"
	TestSizeKey  = "data.test_size"
)

// Scores and timing
const (
	DurationMsKey = "perf.duration_ms"
	RMSEKey       = "metrics.rmse"
	R2ScoreKey    = "metrics.r2"
	FAC2Key       = "metrics.fac2"
)

// Strategy internals
const (
	// SelectedFeatureKey is the predictor added at a forward selection step.
	SelectedFeatureKey = "selection.feature"

	// SelectionStepKey is the 1-based step of forward selection.
	SelectionStepKey = "selection.step"

	// CandidatesKey is the number of random search candidates that finished.
	CandidatesKey = "search.candidates"

	// HyperParamsKey contains the hyperparameters of a fitted model.
	HyperParamsKey = "model.hyperparams"

	// RandomSeedKey records the seed of a run or iteration.
	RandomSeedKey = "config.random_seed"

	// EngineKey names an external modeling engine.
	EngineKey = "delegate.engine"
)

// Operation values
const (
	OperationFit      = "fit"
	OperationPredict  = "predict"
	OperationEvaluate = "evaluate"
	OperationSummary  = "summarize"
)
