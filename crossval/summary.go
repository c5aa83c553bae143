package crossval

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Stat aggregates one metric over the successful folds.
type Stat struct {
	Mean float64 `json:"mean"`
	// Std is the sample standard deviation; 0 with fewer than two values.
	Std float64 `json:"std"`
	N   int     `json:"n"`
}

// Summary is the result of a run.
type Summary struct {
	RunID      string          `json:"run_id"`
	Strategy   string          `json:"strategy"`
	Iterations int             `json:"iterations"`
	Folds      int             `json:"folds"`
	Tasks      int             `json:"tasks"`
	Completed  int             `json:"completed"`
	Failed     int             `json:"failed"`
	Stats      map[string]Stat `json:"stats"`
	Records    []Record        `json:"records"`
	Duration   time.Duration   `json:"duration"`
}

// Metrics returns the aggregated metric names in sorted order.
func (s *Summary) Metrics() []string {
	names := make([]string, 0, len(s.Stats))
	for name := range s.Stats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Values returns one metric of every successful record in record order, NaN
// included.
func (s *Summary) Values(metric string) []float64 {
	var out []float64
	for _, r := range s.Records {
		if r.OK() {
			if v, ok := r.Scores[metric]; ok {
				out = append(out, v)
			}
		}
	}
	return out
}

// Aggregate computes mean and sample standard deviation of every metric over
// the successful records, ignoring NaN values.
func Aggregate(records []Record) map[string]Stat {
	values := make(map[string][]float64)
	for _, r := range records {
		if !r.OK() {
			continue
		}
		for name, v := range r.Scores {
			if _, ok := values[name]; !ok {
				values[name] = nil
			}
			if !math.IsNaN(v) {
				values[name] = append(values[name], v)
			}
		}
	}

	stats := make(map[string]Stat, len(values))
	for name, vs := range values {
		st := Stat{Mean: math.NaN(), Std: math.NaN(), N: len(vs)}
		switch len(vs) {
		case 0:
		case 1:
			st.Mean, st.Std = vs[0], 0
		default:
			st.Mean, st.Std = stat.MeanStdDev(vs, nil)
		}
		stats[name] = st
	}
	return stats
}
