package linear

import "github.com/YuminosukeSato/lurcv/pkg/log"

// DefaultThreshold is the minimum in-sample R² gain for a feature to be added.
const DefaultThreshold = 0.01

// SelectorOption is a function that configures ForwardRegression
type SelectorOption func(*ForwardRegression)

// WithThreshold sets the minimum R² improvement required to add a feature
func WithThreshold(threshold float64) SelectorOption {
	return func(fr *ForwardRegression) {
		fr.threshold = threshold
	}
}

// WithFeatureNames names the columns of X so descriptions and logs use them
func WithFeatureNames(names []string) SelectorOption {
	return func(fr *ForwardRegression) {
		fr.names = append([]string(nil), names...)
	}
}

// WithLogger sets the logger for selection steps
func WithLogger(logger log.Logger) SelectorOption {
	return func(fr *ForwardRegression) {
		fr.logger = logger
	}
}
