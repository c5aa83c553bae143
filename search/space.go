package search

import (
	"math/rand/v2"

	"github.com/YuminosukeSato/lurcv/ensemble"
	"github.com/YuminosukeSato/lurcv/pkg/errors"
)

// Range is an open float range (min, max). The zero Range is disabled.
type Range [2]float64

// IntRange is a closed integer range [min, max]. The zero IntRange is disabled.
type IntRange [2]int

// Enabled reports whether the range takes part in sampling.
func (r Range) Enabled() bool { return r != Range{} }

// Enabled reports whether the range takes part in sampling.
func (r IntRange) Enabled() bool { return r != IntRange{} }

func (r Range) sample(rng *rand.Rand) float64 {
	for {
		v := r[0] + (r[1]-r[0])*rng.Float64()
		if v > r[0] {
			return v
		}
	}
}

func (r IntRange) sample(rng *rand.Rand) int {
	return r[0] + rng.IntN(r[1]-r[0]+1)
}

func (r Range) validate(name string) error {
	if r.Enabled() && !(r[0] < r[1]) {
		return errors.NewConfigurationError(name, "empty range", r)
	}
	return nil
}

func (r IntRange) validate(name string, min int) error {
	if r.Enabled() && (r[0] < min || r[0] > r[1]) {
		return errors.NewConfigurationError(name, "invalid range", r)
	}
	return nil
}

// Space declares the hyperparameters the search draws from. Disabled ranges
// leave the forest default in place.
type Space struct {
	NEstimators IntRange
	// Bootstrap draws bootstrap on or off with equal probability; false keeps
	// it on for every candidate.
	Bootstrap       bool
	MaxFeatures     Range
	MinSamplesLeaf  IntRange
	MinSamplesSplit IntRange
}

// DefaultSpace samples the tree count from [1, 1000] and bootstrap from a
// coin flip. The other ranges are declared but disabled.
func DefaultSpace() Space {
	return Space{
		NEstimators: IntRange{1, 1000},
		Bootstrap:   true,
	}
}

// ExtendedSpace is DefaultSpace with every declared range enabled.
func ExtendedSpace() Space {
	s := DefaultSpace()
	s.MaxFeatures = Range{0, 1}
	s.MinSamplesLeaf = IntRange{1, 99}
	s.MinSamplesSplit = IntRange{2, 19}
	return s
}

// Validate checks that every enabled range is non-empty.
func (s Space) Validate() error {
	if !s.NEstimators.Enabled() {
		return errors.NewConfigurationError("n_estimators", "range required", s.NEstimators)
	}
	if err := s.NEstimators.validate("n_estimators", 1); err != nil {
		return err
	}
	if err := s.MaxFeatures.validate("max_features"); err != nil {
		return err
	}
	if s.MaxFeatures.Enabled() && (s.MaxFeatures[0] < 0 || s.MaxFeatures[1] > 1) {
		return errors.NewConfigurationError("max_features", "range must lie within (0, 1)", s.MaxFeatures)
	}
	if err := s.MinSamplesLeaf.validate("min_samples_leaf", 1); err != nil {
		return err
	}
	return s.MinSamplesSplit.validate("min_samples_split", 2)
}

// Params is one sampled candidate.
type Params struct {
	NEstimators     int     `json:"n_estimators"`
	Bootstrap       bool    `json:"bootstrap"`
	MaxFeatures     float64 `json:"max_features,omitempty"`
	MinSamplesLeaf  int     `json:"min_samples_leaf,omitempty"`
	MinSamplesSplit int     `json:"min_samples_split,omitempty"`
}

// Sample draws Params uniformly from the space.
func (s Space) Sample(rng *rand.Rand) Params {
	p := Params{
		NEstimators: s.NEstimators.sample(rng),
		Bootstrap:   true,
	}
	if s.Bootstrap {
		p.Bootstrap = rng.IntN(2) == 0
	}
	if s.MaxFeatures.Enabled() {
		p.MaxFeatures = s.MaxFeatures.sample(rng)
	}
	if s.MinSamplesLeaf.Enabled() {
		p.MinSamplesLeaf = s.MinSamplesLeaf.sample(rng)
	}
	if s.MinSamplesSplit.Enabled() {
		p.MinSamplesSplit = s.MinSamplesSplit.sample(rng)
	}
	return p
}

// Forest builds an unfitted forest with these parameters.
func (p Params) Forest(seed uint64) *ensemble.RandomForestRegressor {
	opts := []ensemble.Option{
		ensemble.WithNEstimators(p.NEstimators),
		ensemble.WithBootstrap(p.Bootstrap),
		ensemble.WithSeed(seed),
	}
	if p.MaxFeatures > 0 {
		opts = append(opts, ensemble.WithMaxFeatures(p.MaxFeatures))
	}
	if p.MinSamplesLeaf > 0 {
		opts = append(opts, ensemble.WithMinSamplesLeaf(p.MinSamplesLeaf))
	}
	if p.MinSamplesSplit > 0 {
		opts = append(opts, ensemble.WithMinSamplesSplit(p.MinSamplesSplit))
	}
	return ensemble.NewRandomForestRegressor(opts...)
}

// Map returns the parameters keyed by their names.
func (p Params) Map() map[string]any {
	m := map[string]any{
		"n_estimators": p.NEstimators,
		"bootstrap":    p.Bootstrap,
	}
	if p.MaxFeatures > 0 {
		m["max_features"] = p.MaxFeatures
	}
	if p.MinSamplesLeaf > 0 {
		m["min_samples_leaf"] = p.MinSamplesLeaf
	}
	if p.MinSamplesSplit > 0 {
		m["min_samples_split"] = p.MinSamplesSplit
	}
	return m
}
