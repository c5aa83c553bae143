package dataset

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/YuminosukeSato/lurcv/pkg/errors"
)

// KeyPrecision is the number of decimal places coordinates are rounded to
// before they are compared.
const KeyPrecision = 6

// Key identifies a location by its canonical (x, y) coordinates. Two tables
// written by different tools ("683475.5" and "683475.50000001") map to the
// same Key.
type Key struct {
	X, Y string
}

// KeyOf canonicalizes a coordinate pair. x and y must be finite; Frame.Keys
// checks that before calling it.
func KeyOf(x, y float64) Key {
	return Key{
		X: decimal.NewFromFloat(x).Round(KeyPrecision).String(),
		Y: decimal.NewFromFloat(y).Round(KeyPrecision).String(),
	}
}

// HasKeys reports whether the frame has both spatial key columns.
func (f *Frame) HasKeys() bool {
	return f.Has(XColumn) && f.Has(YColumn)
}

// Keys returns the key of every row.
func (f *Frame) Keys() ([]Key, error) {
	if missing := f.Missing(XColumn, YColumn); len(missing) > 0 {
		return nil, errors.NewConfigurationError("keys", "spatial key columns missing", missing)
	}
	xi, yi := f.index[XColumn], f.index[YColumn]
	keys := make([]Key, len(f.rows))
	for i, row := range f.rows {
		if !finite(row[xi]) || !finite(row[yi]) {
			return nil, errors.NewConfigurationError("keys", "non-finite spatial key", i)
		}
		keys[i] = KeyOf(row[xi], row[yi])
	}
	return keys, nil
}

// KeyIndex maps every key to its row. Duplicate keys are a ConfigurationError.
func (f *Frame) KeyIndex() (map[Key]int, error) {
	keys, err := f.Keys()
	if err != nil {
		return nil, err
	}
	index := make(map[Key]int, len(keys))
	for i, k := range keys {
		if prev, dup := index[k]; dup {
			return nil, errors.NewConfigurationError("keys", "duplicate spatial key", []int{prev, i})
		}
		index[k] = i
	}
	return index, nil
}

// ValidateKeys checks that every row has a unique (x, y) key.
func (f *Frame) ValidateKeys() error {
	_, err := f.KeyIndex()
	return err
}

// AntiJoin returns the rows whose key is not in exclude.
func (f *Frame) AntiJoin(exclude []Key) (*Frame, error) {
	keys, err := f.Keys()
	if err != nil {
		return nil, err
	}
	drop := make(map[Key]struct{}, len(exclude))
	for _, k := range exclude {
		drop[k] = struct{}{}
	}
	return f.Filter(func(i int) bool {
		_, found := drop[keys[i]]
		return !found
	}), nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
