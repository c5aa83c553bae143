// Package dataset holds the numeric tables a run works on: the measurement
// table with its target column and the optional inference superset, both keyed
// by their spatial (x, y) coordinates.
package dataset

import (
	"math"

	"github.com/YuminosukeSato/lurcv/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Spatial key columns.
const (
	XColumn = "x"
	YColumn = "y"
)

// Frame is an immutable row-oriented table of float64 values with named
// columns. Missing values are NaN.
type Frame struct {
	columns []string
	index   map[string]int
	rows    [][]float64
}

// NewFrame creates a Frame. Column names must be unique and every row must
// have one value per column. rows is not copied.
func NewFrame(columns []string, rows [][]float64) (*Frame, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if c == "" {
			return nil, errors.NewConfigurationError("columns", "empty column name", i)
		}
		if _, dup := index[c]; dup {
			return nil, errors.NewConfigurationError("columns", "duplicate column name", c)
		}
		index[c] = i
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, errors.Wrapf(errors.NewDimensionError("dataset.NewFrame", len(columns), len(row), 1), "row %d", i)
		}
	}
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Frame{columns: cols, index: index, rows: rows}, nil
}

// Columns returns the column names in order.
func (f *Frame) Columns() []string {
	cols := make([]string, len(f.columns))
	copy(cols, f.columns)
	return cols
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.rows)
}

// Has reports whether the column exists.
func (f *Frame) Has(column string) bool {
	_, ok := f.index[column]
	return ok
}

// Missing returns the columns of want that the frame does not have.
func (f *Frame) Missing(want ...string) []string {
	var missing []string
	for _, c := range want {
		if !f.Has(c) {
			missing = append(missing, c)
		}
	}
	return missing
}

// At returns the value of column j in row i.
func (f *Frame) At(i int, column string) (float64, error) {
	j, ok := f.index[column]
	if !ok {
		return 0, errors.NewConfigurationError("column", "not found", column)
	}
	return f.rows[i][j], nil
}

// Column returns a copy of one column.
func (f *Frame) Column(column string) ([]float64, error) {
	j, ok := f.index[column]
	if !ok {
		return nil, errors.NewConfigurationError("column", "not found", column)
	}
	out := make([]float64, len(f.rows))
	for i, row := range f.rows {
		out[i] = row[j]
	}
	return out, nil
}

// Matrix returns the given columns as a dense rows×len(columns) matrix.
func (f *Frame) Matrix(columns []string) (*mat.Dense, error) {
	if len(f.rows) == 0 || len(columns) == 0 {
		return nil, errors.NewModelError("dataset.Frame.Matrix", "empty data", errors.ErrEmptyData)
	}
	idx, err := f.indices(columns)
	if err != nil {
		return nil, err
	}
	data := make([]float64, 0, len(f.rows)*len(idx))
	for _, row := range f.rows {
		for _, j := range idx {
			data = append(data, row[j])
		}
	}
	return mat.NewDense(len(f.rows), len(idx), data), nil
}

// Vector returns one column as a vector.
func (f *Frame) Vector(column string) (*mat.VecDense, error) {
	if len(f.rows) == 0 {
		return nil, errors.NewModelError("dataset.Frame.Vector", "empty data", errors.ErrEmptyData)
	}
	col, err := f.Column(column)
	if err != nil {
		return nil, err
	}
	return mat.NewVecDense(len(col), col), nil
}

// Take returns a new Frame holding copies of the rows at idx, in that order.
func (f *Frame) Take(idx []int) *Frame {
	rows := make([][]float64, len(idx))
	for k, i := range idx {
		row := make([]float64, len(f.columns))
		copy(row, f.rows[i])
		rows[k] = row
	}
	return &Frame{columns: f.columns, index: f.index, rows: rows}
}

// Filter returns the rows for which keep returns true.
func (f *Frame) Filter(keep func(i int) bool) *Frame {
	var idx []int
	for i := range f.rows {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	return f.Take(idx)
}

// DropNaN returns the rows without NaN in any of columns.
func (f *Frame) DropNaN(columns []string) (*Frame, error) {
	idx, err := f.indices(columns)
	if err != nil {
		return nil, err
	}
	return f.Filter(func(i int) bool {
		for _, j := range idx {
			if math.IsNaN(f.rows[i][j]) {
				return false
			}
		}
		return true
	}), nil
}

func (f *Frame) indices(columns []string) ([]int, error) {
	idx := make([]int, len(columns))
	for k, c := range columns {
		j, ok := f.index[c]
		if !ok {
			return nil, errors.NewConfigurationError("columns", "not found", c)
		}
		idx[k] = j
	}
	return idx, nil
}
