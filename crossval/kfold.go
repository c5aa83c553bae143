// Package crossval runs repeated k-fold cross validation of a modeling
// strategy over a bounded worker pool and aggregates the fold scores.
package crossval

import (
	"math/rand/v2"

	"github.com/YuminosukeSato/lurcv/pkg/errors"
)

// Fold holds the row indices of one train/test split.
type Fold struct {
	Train []int
	Test  []int
}

// KFold splits rows into NSplits test folds. Fold sizes differ by at most
// one; the first n mod NSplits folds take the extra row.
type KFold struct {
	NSplits int
	Shuffle bool
	Seed    uint64
}

// NewKFold creates a splitter.
func NewKFold(nSplits int, shuffle bool, seed uint64) *KFold {
	return &KFold{NSplits: nSplits, Shuffle: shuffle, Seed: seed}
}

// Split returns NSplits folds over n rows. Every row is in exactly one test
// fold; train indices are in ascending order.
func (kf *KFold) Split(n int) ([]Fold, error) {
	if kf.NSplits < 2 {
		return nil, errors.NewConfigurationError("folds", "must be >= 2", kf.NSplits)
	}
	if kf.NSplits > n {
		return nil, errors.NewConfigurationError("folds", "more folds than rows", kf.NSplits)
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	if kf.Shuffle {
		r := rand.New(rand.NewPCG(kf.Seed, kf.Seed))
		r.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	folds := make([]Fold, kf.NSplits)
	foldSize := n / kf.NSplits
	remainder := n % kf.NSplits
	inTest := make([]bool, n)

	current := 0
	for i := range folds {
		testSize := foldSize
		if i < remainder {
			testSize++
		}
		test := make([]int, testSize)
		copy(test, indices[current:current+testSize])
		for _, idx := range test {
			inTest[idx] = true
		}

		train := make([]int, 0, n-testSize)
		for idx := 0; idx < n; idx++ {
			if !inTest[idx] {
				train = append(train, idx)
			}
		}
		for _, idx := range test {
			inTest[idx] = false
		}

		folds[i] = Fold{Train: train, Test: test}
		current += testSize
	}
	return folds, nil
}
