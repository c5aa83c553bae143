// Package ensemble provides the bagged random forest regressor evaluated by the
// random hyperparameter search.
package ensemble

import (
	"context"
	"math/rand/v2"

	"github.com/YuminosukeSato/lurcv/core/model"
	"github.com/YuminosukeSato/lurcv/core/parallel"
	"github.com/YuminosukeSato/lurcv/pkg/errors"
	"github.com/YuminosukeSato/lurcv/tree"
	"gonum.org/v1/gonum/mat"
)

// trees fitted sequentially below this count
const parallelThreshold = 8

// RandomForestRegressor averages the predictions of NEstimators regression
// trees, each grown on a bootstrap sample (or on all rows when Bootstrap is
// false) with MaxFeatures drawn at every split.
type RandomForestRegressor struct {
	model.BaseEstimator

	NEstimators     int
	Bootstrap       bool
	MaxFeatures     float64
	MinSamplesLeaf  int
	MinSamplesSplit int
	MaxDepth        int
	Seed            uint64

	trees     []*tree.DecisionTreeRegressor
	nFeatures int
}

// Option configures a RandomForestRegressor.
type Option func(*RandomForestRegressor)

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) Option {
	return func(rf *RandomForestRegressor) { rf.NEstimators = n }
}

// WithBootstrap toggles bootstrap sampling.
func WithBootstrap(b bool) Option {
	return func(rf *RandomForestRegressor) { rf.Bootstrap = b }
}

// WithMaxFeatures sets the fraction of features tried at each split.
func WithMaxFeatures(f float64) Option {
	return func(rf *RandomForestRegressor) { rf.MaxFeatures = f }
}

// WithMinSamplesLeaf sets the minimum number of samples in a leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(rf *RandomForestRegressor) { rf.MinSamplesLeaf = n }
}

// WithMinSamplesSplit sets the minimum number of samples to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(rf *RandomForestRegressor) { rf.MinSamplesSplit = n }
}

// WithMaxDepth limits tree depth; 0 is unlimited.
func WithMaxDepth(d int) Option {
	return func(rf *RandomForestRegressor) { rf.MaxDepth = d }
}

// WithSeed sets the seed of bootstrap and feature sampling.
func WithSeed(seed uint64) Option {
	return func(rf *RandomForestRegressor) { rf.Seed = seed }
}

// NewRandomForestRegressor creates a forest with 100 bootstrapped trees.
func NewRandomForestRegressor(opts ...Option) *RandomForestRegressor {
	rf := &RandomForestRegressor{
		NEstimators: 100,
		Bootstrap:   true,
		MaxFeatures: 1,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

// Fit fits the forest without a deadline.
func (rf *RandomForestRegressor) Fit(X, y mat.Matrix) error {
	return rf.FitContext(context.Background(), X, y)
}

// FitContext fits the forest. ctx is checked before every tree; when it ends
// the fit is abandoned, the forest stays unfitted and ctx.Err() is returned.
func (rf *RandomForestRegressor) FitContext(ctx context.Context, X, y mat.Matrix) error {
	if rf.NEstimators < 1 {
		return errors.NewValueError("RandomForestRegressor.Fit", "n_estimators must be >= 1")
	}
	params := rf.treeParams()
	if err := params.Validate(); err != nil {
		return err
	}
	data, err := tree.NewData(X, y)
	if err != nil {
		return err
	}

	rf.Reset()
	trees := make([]*tree.DecisionTreeRegressor, rf.NEstimators)
	treeErrs := make([]error, rf.NEstimators)
	n := data.Rows()

	parallel.ParallelizeWithThreshold(rf.NEstimators, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			if ctx.Err() != nil {
				return
			}
			rng := rand.New(rand.NewPCG(rf.Seed, uint64(i)+1))
			idx := make([]int, n)
			for k := range idx {
				if rf.Bootstrap {
					idx[k] = rng.IntN(n)
				} else {
					idx[k] = k
				}
			}
			t := tree.NewDecisionTreeRegressor(params)
			treeErrs[i] = t.FitSample(data, idx, rng)
			trees[i] = t
		}
	})

	if err := ctx.Err(); err != nil {
		return errors.WithStack(err)
	}
	for i, err := range treeErrs {
		if err != nil {
			return errors.Wrapf(err, "tree %d training failed", i)
		}
	}

	rf.trees = trees
	rf.nFeatures = data.Features()
	rf.SetFitted()
	return nil
}

func (rf *RandomForestRegressor) treeParams() tree.Params {
	return tree.Params{
		MaxDepth:        rf.MaxDepth,
		MinSamplesSplit: rf.MinSamplesSplit,
		MinSamplesLeaf:  rf.MinSamplesLeaf,
		MaxFeatures:     rf.MaxFeatures,
	}
}

// Predict averages the tree predictions for every row of X.
func (rf *RandomForestRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !rf.IsFitted() {
		return nil, errors.NewNotFittedError("RandomForestRegressor", "Predict")
	}
	r, c := X.Dims()
	if c != rf.nFeatures {
		return nil, errors.NewDimensionError("RandomForestRegressor.Predict", rf.nFeatures, c, 1)
	}

	out := mat.NewDense(r, 1, nil)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		var sum float64
		for _, t := range rf.trees {
			sum += t.PredictRow(row)
		}
		out.Set(i, 0, sum/float64(len(rf.trees)))
	}
	return out, nil
}

// Params returns the hyperparameters in the naming of the search space.
func (rf *RandomForestRegressor) Params() map[string]any {
	return map[string]any{
		"n_estimators":      rf.NEstimators,
		"bootstrap":         rf.Bootstrap,
		"max_features":      rf.MaxFeatures,
		"min_samples_leaf":  rf.MinSamplesLeaf,
		"min_samples_split": rf.MinSamplesSplit,
		"max_depth":         rf.MaxDepth,
	}
}

// Describe implements model.Model.
func (rf *RandomForestRegressor) Describe() map[string]any {
	d := rf.Params()
	d["estimator"] = "random_forest"
	d["state"] = rf.State().String()
	return d
}
