package crossval

import (
	"math/rand/v2"

	"github.com/YuminosukeSato/lurcv/dataset"
	"github.com/YuminosukeSato/lurcv/pkg/errors"
)

// Partition is the data of one (iteration, fold) task. Train and Test are
// disjoint. Inference is set only with a superset table and holds its rows
// whose spatial key is absent from Train.
type Partition struct {
	Iteration int
	Fold      int
	Train     *dataset.Frame
	Test      *dataset.Frame
	Inference *dataset.Frame
}

// iterationSeeds derives one independent shuffle seed per iteration.
func iterationSeeds(seed uint64, iterations int) []uint64 {
	r := rand.New(rand.NewPCG(seed, 0x9e3779b97f4a7c15))
	seeds := make([]uint64, iterations)
	for i := range seeds {
		seeds[i] = r.Uint64()
	}
	return seeds
}

// Partitions builds iterations × folds partitions of data, iteration-major.
func Partitions(data, superset *dataset.Frame, iterations, folds int, seed uint64) ([]Partition, error) {
	if iterations < 1 {
		return nil, errors.NewConfigurationError("iterations", "must be >= 1", iterations)
	}

	var keys []dataset.Key
	if superset != nil {
		var err error
		if keys, err = data.Keys(); err != nil {
			return nil, err
		}
	}

	parts := make([]Partition, 0, iterations*folds)
	for it, s := range iterationSeeds(seed, iterations) {
		splits, err := NewKFold(folds, true, s).Split(data.Len())
		if err != nil {
			return nil, err
		}
		for f, fold := range splits {
			p := Partition{
				Iteration: it,
				Fold:      f,
				Train:     data.Take(fold.Train),
				Test:      data.Take(fold.Test),
			}
			if p.Test.Len() == 0 {
				return nil, errors.Wrapf(errors.NewInsufficientDataError("crossval.Partitions", 1, 0),
					"iteration %d fold %d: empty test fold", it, f)
			}
			if superset != nil {
				if p.Inference, err = inference(superset, keys, fold); err != nil {
					return nil, errors.Wrapf(err, "iteration %d fold %d", it, f)
				}
			}
			parts = append(parts, p)
		}
	}
	return parts, nil
}

// inference anti-joins the superset with the train keys and checks that at
// least one test row can be scored.
func inference(superset *dataset.Frame, keys []dataset.Key, fold Fold) (*dataset.Frame, error) {
	trainKeys := make([]dataset.Key, len(fold.Train))
	for i, idx := range fold.Train {
		trainKeys[i] = keys[idx]
	}
	inf, err := superset.AntiJoin(trainKeys)
	if err != nil {
		return nil, err
	}

	index, err := inf.KeyIndex()
	if err != nil {
		return nil, err
	}
	for _, idx := range fold.Test {
		if _, ok := index[keys[idx]]; ok {
			return inf, nil
		}
	}
	return nil, errors.Wrap(errors.NewInsufficientDataError("crossval.Partitions", 1, 0),
		"no test row found in the superset")
}
