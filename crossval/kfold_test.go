package crossval

import (
	"sort"
	"testing"

	"github.com/YuminosukeSato/lurcv/pkg/errors"
)

func TestKFoldSplit(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		k         int
		shuffle   bool
		wantSizes []int
	}{
		{"even", 10, 5, false, []int{2, 2, 2, 2, 2}},
		{"remainder to first folds", 11, 3, true, []int{4, 4, 3}},
		{"one row per fold", 4, 4, true, []int{1, 1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			folds, err := NewKFold(tt.k, tt.shuffle, 42).Split(tt.n)
			if err != nil {
				t.Fatalf("Split() error = %v", err)
			}
			if len(folds) != tt.k {
				t.Fatalf("got %d folds, want %d", len(folds), tt.k)
			}

			seen := make([]int, tt.n)
			for i, f := range folds {
				if len(f.Test) != tt.wantSizes[i] {
					t.Errorf("fold %d: test size %d, want %d", i, len(f.Test), tt.wantSizes[i])
				}
				if len(f.Train)+len(f.Test) != tt.n {
					t.Errorf("fold %d: train %d + test %d != %d", i, len(f.Train), len(f.Test), tt.n)
				}
				if !sort.IntsAreSorted(f.Train) {
					t.Errorf("fold %d: train indices not sorted", i)
				}
				inTest := map[int]bool{}
				for _, idx := range f.Test {
					seen[idx]++
					inTest[idx] = true
				}
				for _, idx := range f.Train {
					if inTest[idx] {
						t.Errorf("fold %d: row %d in train and test", i, idx)
					}
				}
			}
			for idx, c := range seen {
				if c != 1 {
					t.Errorf("row %d in %d test folds", idx, c)
				}
			}
		})
	}
}

func TestKFoldDeterministic(t *testing.T) {
	a, _ := NewKFold(3, true, 7).Split(30)
	b, _ := NewKFold(3, true, 7).Split(30)
	c, _ := NewKFold(3, true, 8).Split(30)

	same := func(x, y []Fold) bool {
		for i := range x {
			for j := range x[i].Test {
				if x[i].Test[j] != y[i].Test[j] {
					return false
				}
			}
		}
		return true
	}
	if !same(a, b) {
		t.Error("same seed gave different folds")
	}
	if same(a, c) {
		t.Error("different seeds gave identical folds")
	}

	plain, _ := NewKFold(3, false, 7).Split(6)
	if plain[0].Test[0] != 0 || plain[0].Test[1] != 1 || plain[2].Test[1] != 5 {
		t.Errorf("unshuffled folds not contiguous: %v", plain)
	}
}

func TestKFoldInvalid(t *testing.T) {
	for _, tc := range []struct{ k, n int }{{1, 10}, {0, 10}, {11, 10}} {
		_, err := NewKFold(tc.k, true, 0).Split(tc.n)
		if !errors.IsConfiguration(err) {
			t.Errorf("k=%d n=%d: expected ConfigurationError, got %v", tc.k, tc.n, err)
		}
	}
}
