package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/YuminosukeSato/lurcv/crossval"
	"github.com/YuminosukeSato/lurcv/pkg/errors"
)

// Output file names written by WriteDir.
const (
	RecordsFile   = "records.csv"
	SummaryFile   = "summary.json"
	TextFile      = "summary.txt"
	HistogramFile = "rmse_hist.png"
)

// WriteText prints the aggregated metrics as an aligned table followed by the
// normality check of the fold RMSEs.
func WriteText(w io.Writer, s *crossval.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\n", s.RunID)
	fmt.Fprintf(tw, "strategy\t%s\n", s.Strategy)
	fmt.Fprintf(tw, "tasks\t%d (%d iterations x %d folds), %d completed, %d failed\n",
		s.Tasks, s.Iterations, s.Folds, s.Completed, s.Failed)
	fmt.Fprintf(tw, "duration\t%s\n\n", s.Duration.Round(time.Millisecond))

	fmt.Fprintln(tw, "metric\tmean\tstd\tn")
	for _, name := range s.Metrics() {
		st := s.Stats[name]
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%d\n", name, st.Mean, st.Std, st.N)
	}

	if norm, err := NormalityOf(s.Values("rmse")); err == nil {
		verdict := "consistent with normal"
		if !norm.Normal(0.05) {
			verdict = "not normal"
		}
		fmt.Fprintf(tw, "\nrmse normality\tskew %.3f, excess kurtosis %.3f, JB %.3f, p %.3f (%s)\n",
			norm.Skewness, norm.ExcessKurtosis, norm.JarqueBera, norm.PValue, verdict)
	}
	return tw.Flush()
}

// WriteRecords writes one CSV row per fold task. Failed tasks have empty
// metric cells and their error message.
func WriteRecords(w io.Writer, s *crossval.Summary) error {
	metrics := s.Metrics()
	cw := csv.NewWriter(w)

	header := append([]string{"iteration", "fold", "status", "duration_ms"}, metrics...)
	header = append(header, "error")
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "failed to write header")
	}

	for _, r := range s.Records {
		row := []string{
			strconv.Itoa(r.Iteration),
			strconv.Itoa(r.Fold),
			"ok",
			strconv.FormatInt(r.Duration.Milliseconds(), 10),
		}
		if !r.OK() {
			row[2] = "failed"
		}
		for _, m := range metrics {
			cell := ""
			if v, ok := r.Scores[m]; ok && r.OK() {
				cell = strconv.FormatFloat(v, 'g', -1, 64)
			}
			row = append(row, cell)
		}
		errMsg := ""
		if r.Err != nil {
			errMsg = r.Err.Error()
		}
		row = append(row, errMsg)
		if err := cw.Write(row); err != nil {
			return errors.Wrapf(err, "failed to write record %d/%d", r.Iteration, r.Fold)
		}
	}
	cw.Flush()
	return errors.WithStack(cw.Error())
}

type jsonStat struct {
	Mean *float64 `json:"mean"`
	Std  *float64 `json:"std"`
	N    int      `json:"n"`
}

type jsonRecord struct {
	Iteration  int                 `json:"iteration"`
	Fold       int                 `json:"fold"`
	Scores     map[string]*float64 `json:"scores,omitempty"`
	Model      map[string]any      `json:"model,omitempty"`
	DurationMs int64               `json:"duration_ms"`
	Error      string              `json:"error,omitempty"`
}

type jsonSummary struct {
	RunID      string              `json:"run_id"`
	Strategy   string              `json:"strategy"`
	Iterations int                 `json:"iterations"`
	Folds      int                 `json:"folds"`
	Tasks      int                 `json:"tasks"`
	Completed  int                 `json:"completed"`
	Failed     int                 `json:"failed"`
	DurationMs int64               `json:"duration_ms"`
	Stats      map[string]jsonStat `json:"stats"`
	Normality  *Normality          `json:"rmse_normality,omitempty"`
	Records    []jsonRecord        `json:"records"`
}

// finite maps NaN and ±Inf to JSON null.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// JSON returns the JSON document written to summary.json.
func JSON(s *crossval.Summary) any {
	out := jsonSummary{
		RunID:      s.RunID,
		Strategy:   s.Strategy,
		Iterations: s.Iterations,
		Folds:      s.Folds,
		Tasks:      s.Tasks,
		Completed:  s.Completed,
		Failed:     s.Failed,
		DurationMs: s.Duration.Milliseconds(),
		Stats:      make(map[string]jsonStat, len(s.Stats)),
		Records:    make([]jsonRecord, len(s.Records)),
	}
	for name, st := range s.Stats {
		out.Stats[name] = jsonStat{Mean: finite(st.Mean), Std: finite(st.Std), N: st.N}
	}
	if norm, err := NormalityOf(s.Values("rmse")); err == nil {
		out.Normality = &norm
	}
	for i, r := range s.Records {
		jr := jsonRecord{
			Iteration:  r.Iteration,
			Fold:       r.Fold,
			Model:      r.Model,
			DurationMs: r.Duration.Milliseconds(),
		}
		if r.Err != nil {
			jr.Error = r.Err.Error()
		} else {
			jr.Scores = make(map[string]*float64, len(r.Scores))
			for k, v := range r.Scores {
				jr.Scores[k] = finite(v)
			}
		}
		out.Records[i] = jr
	}
	return out
}

// WriteJSON writes the summary as indented JSON.
func WriteJSON(w io.Writer, s *crossval.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.WithStack(enc.Encode(JSON(s)))
}

// WriteDir writes the text summary, records, JSON summary and, when plot is
// set, the RMSE histogram into dir.
func WriteDir(dir string, s *crossval.Summary, plot bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", dir)
	}
	writers := []struct {
		name  string
		write func(io.Writer, *crossval.Summary) error
	}{
		{TextFile, WriteText},
		{RecordsFile, WriteRecords},
		{SummaryFile, WriteJSON},
	}
	for _, wr := range writers {
		if err := writeFile(filepath.Join(dir, wr.name), s, wr.write); err != nil {
			return err
		}
	}
	if plot {
		return RMSEHistogram(filepath.Join(dir, HistogramFile), s, 0)
	}
	return nil
}

func writeFile(path string, s *crossval.Summary, write func(io.Writer, *crossval.Summary) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	if err := write(f, s); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return errors.WithStack(f.Close())
}
