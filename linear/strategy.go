package linear

import (
	"context"

	"github.com/YuminosukeSato/lurcv/core/model"
	"gonum.org/v1/gonum/mat"
)

// ForwardSelection is the model.Strategy that trains a fresh
// ForwardRegression on every call.
type ForwardSelection struct {
	opts []SelectorOption
}

// NewForwardSelection captures the options applied to every ForwardRegression
// it trains.
func NewForwardSelection(opts ...SelectorOption) *ForwardSelection {
	return &ForwardSelection{opts: append([]SelectorOption(nil), opts...)}
}

// Name implements model.Strategy.
func (s *ForwardSelection) Name() string {
	return "forward_selection"
}

// Train implements model.Strategy.
func (s *ForwardSelection) Train(ctx context.Context, X, y mat.Matrix) (model.Model, error) {
	fr := NewForwardRegression(s.opts...)
	if err := fr.FitContext(ctx, X, y); err != nil {
		return nil, err
	}
	return fr, nil
}
