package tree

import (
	"github.com/YuminosukeSato/lurcv/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Data is a column-major copy of a training set, shared read-only by the
// trees of an ensemble.
type Data struct {
	cols [][]float64
	y    []float64
}

// NewData copies X (n×p) and y (n×1). NaN or Inf values are rejected.
func NewData(X, y mat.Matrix) (*Data, error) {
	r, c := X.Dims()
	ry, cy := y.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewModelError("tree.NewData", "empty data", errors.ErrEmptyData)
	}
	if ry != r {
		return nil, errors.NewDimensionError("tree.NewData", r, ry, 0)
	}
	if cy != 1 {
		return nil, errors.NewValueError("tree.NewData", "y must be a column vector")
	}
	if err := errors.CheckMatrix("tree.NewData", X, r, c, 0); err != nil {
		return nil, err
	}
	if err := errors.CheckMatrix("tree.NewData", y, r, 1, 0); err != nil {
		return nil, err
	}

	cols := make([][]float64, c)
	for j := range cols {
		cols[j] = mat.Col(nil, j, X)
	}
	return &Data{cols: cols, y: mat.Col(nil, 0, y)}, nil
}

// Rows returns the number of samples.
func (d *Data) Rows() int { return len(d.y) }

// Features returns the number of columns.
func (d *Data) Features() int { return len(d.cols) }
