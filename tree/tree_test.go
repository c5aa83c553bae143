package tree

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/YuminosukeSato/lurcv/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

func TestDecisionTreeStepFunction(t *testing.T) {
	// y = 10 when x0 <= 5, else 20; x1 is noise
	X := mat.NewDense(10, 2, nil)
	y := mat.NewDense(10, 1, nil)
	for i := 0; i < 10; i++ {
		X.Set(i, 0, float64(i+1))
		X.Set(i, 1, float64((i*7)%10))
		if i < 5 {
			y.Set(i, 0, 10)
		} else {
			y.Set(i, 0, 20)
		}
	}

	tree := NewDecisionTreeRegressor(Params{})
	if err := tree.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if tree.Depth() != 1 || tree.NumLeaves() != 2 {
		t.Errorf("expected a single split, got depth %d with %d leaves", tree.Depth(), tree.NumLeaves())
	}

	pred, err := tree.Predict(mat.NewDense(3, 2, []float64{
		2, 9,
		5.4, 0,
		8, 3,
	}))
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{10, 20, 20}
	for i, w := range want {
		if pred.At(i, 0) != w {
			t.Errorf("row %d: got %v, want %v", i, pred.At(i, 0), w)
		}
	}
}

func TestDecisionTreeLimits(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	X := mat.NewDense(200, 3, nil)
	y := mat.NewDense(200, 1, nil)
	for i := 0; i < 200; i++ {
		for j := 0; j < 3; j++ {
			X.Set(i, j, rng.Float64())
		}
		y.Set(i, 0, math.Sin(6*X.At(i, 0))+X.At(i, 1)+0.1*rng.NormFloat64())
	}

	tests := []struct {
		name   string
		params Params
		check  func(t *testing.T, tree *DecisionTreeRegressor)
	}{
		{
			name:   "max depth",
			params: Params{MaxDepth: 3},
			check: func(t *testing.T, tree *DecisionTreeRegressor) {
				if tree.Depth() > 3 {
					t.Errorf("depth %d exceeds 3", tree.Depth())
				}
			},
		},
		{
			name:   "min samples leaf",
			params: Params{MinSamplesLeaf: 20},
			check: func(t *testing.T, tree *DecisionTreeRegressor) {
				for _, n := range tree.nodes {
					if n.leaf && n.samples < 20 {
						t.Fatalf("leaf with %d samples", n.samples)
					}
				}
			},
		},
		{
			name:   "min samples split",
			params: Params{MinSamplesSplit: 50},
			check: func(t *testing.T, tree *DecisionTreeRegressor) {
				for _, n := range tree.nodes {
					if !n.leaf && n.samples < 50 {
						t.Fatalf("split node with %d samples", n.samples)
					}
				}
			},
		},
		{
			name:   "feature subsampling",
			params: Params{MaxFeatures: 0.34},
			check: func(t *testing.T, tree *DecisionTreeRegressor) {
				if tree.NumLeaves() < 2 {
					t.Error("expected the tree to split")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := NewDecisionTreeRegressor(tt.params)
			if err := tree.Fit(X, y); err != nil {
				t.Fatalf("Fit() error = %v", err)
			}
			tt.check(t, tree)
		})
	}
}

func TestDecisionTreeUnlimitedFitsTrainingData(t *testing.T) {
	X := mat.NewDense(6, 1, []float64{1, 2, 3, 4, 5, 6})
	y := mat.NewDense(6, 1, []float64{3, 1, 4, 1, 5, 9})

	tree := NewDecisionTreeRegressor(Params{})
	if err := tree.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	pred, _ := tree.Predict(X)
	for i := 0; i < 6; i++ {
		if pred.At(i, 0) != y.At(i, 0) {
			t.Errorf("row %d: got %v, want %v", i, pred.At(i, 0), y.At(i, 0))
		}
	}
}

func TestDecisionTreeErrors(t *testing.T) {
	if _, err := NewDecisionTreeRegressor(Params{}).Predict(mat.NewDense(1, 1, nil)); err == nil {
		t.Error("expected NotFittedError")
	}

	err := NewDecisionTreeRegressor(Params{MaxFeatures: 1.5}).Fit(
		mat.NewDense(2, 1, []float64{1, 2}), mat.NewDense(2, 1, []float64{1, 2}))
	var valueErr *errors.ValueError
	if !errors.As(err, &valueErr) {
		t.Errorf("expected ValueError for max_features 1.5, got %v", err)
	}

	_, err = NewData(mat.NewDense(2, 1, []float64{1, math.Inf(1)}), mat.NewDense(2, 1, []float64{1, 2}))
	if err == nil {
		t.Error("expected error for Inf input")
	}
}
