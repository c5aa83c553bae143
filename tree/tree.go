// Package tree implements a CART regression tree that splits on variance
// reduction.
package tree

import (
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/lurcv/core/model"
	"github.com/YuminosukeSato/lurcv/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Params are the growth limits of a tree. Zero values select the defaults:
// unlimited depth, MinSamplesSplit 2, MinSamplesLeaf 1 and every feature
// considered at each split.
type Params struct {
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	// MaxFeatures is the fraction of features drawn at each split, in (0, 1].
	MaxFeatures float64
}

func (p Params) withDefaults() Params {
	if p.MinSamplesSplit < 2 {
		p.MinSamplesSplit = 2
	}
	if p.MinSamplesLeaf < 1 {
		p.MinSamplesLeaf = 1
	}
	if p.MaxFeatures <= 0 || p.MaxFeatures > 1 {
		p.MaxFeatures = 1
	}
	return p
}

// Validate checks parameter ranges.
func (p Params) Validate() error {
	switch {
	case p.MaxDepth < 0:
		return errors.NewValueError("tree.Params", "max_depth must be >= 0")
	case p.MinSamplesSplit < 0:
		return errors.NewValueError("tree.Params", "min_samples_split must be >= 0")
	case p.MinSamplesLeaf < 0:
		return errors.NewValueError("tree.Params", "min_samples_leaf must be >= 0")
	case p.MaxFeatures < 0 || p.MaxFeatures > 1:
		return errors.NewValueError("tree.Params", "max_features must be in (0, 1]")
	}
	return nil
}

type node struct {
	leaf      bool
	feature   int
	threshold float64
	left      int
	right     int
	value     float64
	samples   int
}

// DecisionTreeRegressor is a binary regression tree stored as a flat node
// slice; node 0 is the root.
type DecisionTreeRegressor struct {
	model.BaseEstimator
	Params

	nodes     []node
	nFeatures int
	depth     int
}

// NewDecisionTreeRegressor creates an unfitted tree.
func NewDecisionTreeRegressor(p Params) *DecisionTreeRegressor {
	return &DecisionTreeRegressor{Params: p}
}

// Fit grows the tree on all rows of X with a fixed seed.
func (t *DecisionTreeRegressor) Fit(X, y mat.Matrix) error {
	data, err := NewData(X, y)
	if err != nil {
		return err
	}
	idx := make([]int, data.Rows())
	for i := range idx {
		idx[i] = i
	}
	return t.FitSample(data, idx, rand.New(rand.NewPCG(0, 0)))
}

// FitSample grows the tree on the rows idx of data (repetitions allowed, as
// for a bootstrap sample). rng draws the features tried at each split.
func (t *DecisionTreeRegressor) FitSample(data *Data, idx []int, rng *rand.Rand) error {
	if err := t.Params.Validate(); err != nil {
		return err
	}
	if len(idx) == 0 {
		return errors.NewModelError("DecisionTreeRegressor.Fit", "empty data", errors.ErrEmptyData)
	}

	t.Reset()
	b := &builder{
		data:   data,
		params: t.Params.withDefaults(),
		rng:    rng,
		order:  make([]int, len(idx)),
	}
	sample := append([]int(nil), idx...)
	b.grow(sample, 0)

	t.nodes = b.nodes
	t.depth = b.maxDepth
	t.nFeatures = data.Features()
	t.SetFitted()
	return nil
}

// Predict returns one prediction per row of X.
func (t *DecisionTreeRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !t.IsFitted() {
		return nil, errors.NewNotFittedError("DecisionTreeRegressor", "Predict")
	}
	r, c := X.Dims()
	if c != t.nFeatures {
		return nil, errors.NewDimensionError("DecisionTreeRegressor.Predict", t.nFeatures, c, 1)
	}
	out := mat.NewDense(r, 1, nil)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		out.Set(i, 0, t.PredictRow(row))
	}
	return out, nil
}

// PredictRow predicts a single sample. The tree must be fitted.
func (t *DecisionTreeRegressor) PredictRow(row []float64) float64 {
	n := t.nodes[0]
	for !n.leaf {
		if row[n.feature] <= n.threshold {
			n = t.nodes[n.left]
		} else {
			n = t.nodes[n.right]
		}
	}
	return n.value
}

// Depth returns the depth of the deepest leaf.
func (t *DecisionTreeRegressor) Depth() int { return t.depth }

// NumLeaves returns the number of leaves.
func (t *DecisionTreeRegressor) NumLeaves() int {
	leaves := 0
	for _, n := range t.nodes {
		if n.leaf {
			leaves++
		}
	}
	return leaves
}

type builder struct {
	data     *Data
	params   Params
	rng      *rand.Rand
	nodes    []node
	order    []int
	maxDepth int
}

func (b *builder) grow(idx []int, depth int) int {
	if depth > b.maxDepth {
		b.maxDepth = depth
	}
	var sum, sumSq float64
	for _, i := range idx {
		v := b.data.y[i]
		sum += v
		sumSq += v * v
	}
	n := float64(len(idx))
	id := len(b.nodes)
	b.nodes = append(b.nodes, node{leaf: true, value: sum / n, samples: len(idx)})

	if len(idx) < b.params.MinSamplesSplit ||
		(b.params.MaxDepth > 0 && depth >= b.params.MaxDepth) ||
		sumSq-sum*sum/n <= 1e-12 {
		return id
	}

	feature, threshold, ok := b.bestSplit(idx, sum)
	if !ok {
		return id
	}

	// partition idx in place: left part <= threshold
	col := b.data.cols[feature]
	sort.Slice(idx, func(a, c int) bool { return col[idx[a]] < col[idx[c]] })
	cut := sort.Search(len(idx), func(k int) bool { return col[idx[k]] > threshold })
	if cut == 0 || cut == len(idx) {
		return id
	}

	left := b.grow(idx[:cut], depth+1)
	right := b.grow(idx[cut:], depth+1)
	b.nodes[id] = node{
		feature:   feature,
		threshold: threshold,
		left:      left,
		right:     right,
		value:     sum / n,
		samples:   len(idx),
	}
	return id
}

// bestSplit maximizes sumL²/nL + sumR²/nR, which is the same as minimizing
// the children's summed squared error.
func (b *builder) bestSplit(idx []int, total float64) (int, float64, bool) {
	features := b.candidateFeatures()
	n := len(idx)
	minLeaf := b.params.MinSamplesLeaf
	parentScore := total * total / float64(n)

	bestScore := parentScore + 1e-12
	bestFeature, bestThreshold, found := -1, 0.0, false

	order := b.order[:n]
	for _, f := range features {
		col := b.data.cols[f]
		copy(order, idx)
		sort.Slice(order, func(a, c int) bool { return col[order[a]] < col[order[c]] })

		var leftSum float64
		for k := 0; k < n-1; k++ {
			leftSum += b.data.y[order[k]]
			nl := k + 1
			if nl < minLeaf || n-nl < minLeaf {
				continue
			}
			lo, hi := col[order[k]], col[order[k+1]]
			if lo == hi {
				continue
			}
			rightSum := total - leftSum
			score := leftSum*leftSum/float64(nl) + rightSum*rightSum/float64(n-nl)
			if score > bestScore {
				bestScore = score
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
				if bestThreshold >= hi {
					bestThreshold = lo
				}
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}

// candidateFeatures draws ceil(MaxFeatures·p) distinct features with a
// partial Fisher-Yates shuffle.
func (b *builder) candidateFeatures() []int {
	p := b.data.Features()
	k := int(b.params.MaxFeatures*float64(p) + 0.999999)
	if k < 1 {
		k = 1
	}
	if k > p {
		k = p
	}
	features := make([]int, p)
	for i := range features {
		features[i] = i
	}
	if k == p {
		return features
	}
	for i := 0; i < k; i++ {
		j := i + b.rng.IntN(p-i)
		features[i], features[j] = features[j], features[i]
	}
	return features[:k]
}
