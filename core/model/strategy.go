package model

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// Model は学習済みの予測モデル。1つの fold タスクだけが所有する。
type Model interface {
	Predictor

	// Describe はモデルの構成（選択された特徴量、ハイパーパラメータなど）を返す。
	// 値は JSON にそのまま書き出せる型に限る。
	Describe() map[string]any
}

// FeatureCounter is implemented by models that use only a subset of the
// columns they are given. Adjusted R² uses the count as p.
type FeatureCounter interface {
	NumFeatures() int
}

// Strategy は訓練データから Model を作るモデリング戦略。
//
// Train は呼び出しごとに独立したモデルを返し、戦略自身の状態を共有しない。
// ctx がキャンセルされた場合は ctx.Err() をラップして返す。
type Strategy interface {
	Name() string
	Train(ctx context.Context, X, y mat.Matrix) (Model, error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc struct {
	StrategyName string
	TrainFunc    func(ctx context.Context, X, y mat.Matrix) (Model, error)
}

// Name implements Strategy.
func (f StrategyFunc) Name() string { return f.StrategyName }

// Train implements Strategy.
func (f StrategyFunc) Train(ctx context.Context, X, y mat.Matrix) (Model, error) {
	return f.TrainFunc(ctx, X, y)
}
