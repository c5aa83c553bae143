package gam

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"math"
	"os"
	"os/exec"
	"strings"

	"github.com/YuminosukeSato/lurcv/pkg/errors"
)

// Value is a float64 that travels as JSON null when it is NaN.
type Value float64

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(b []byte) error {
	if string(b) == "null" || string(b) == `"NA"` || string(b) == `"NaN"` {
		*v = Value(math.NaN())
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*v = Value(f)
	return nil
}

// Table is a column-named numeric table on the wire.
type Table struct {
	Columns []string  `json:"columns"`
	Rows    [][]Value `json:"rows"`
}

// Request asks the engine to fit Formula on Train and predict Newdata on the
// response scale.
type Request struct {
	Formula string `json:"formula"`
	Family  string `json:"family"`
	Link    string `json:"link"`
	Train   Table  `json:"train"`
	Newdata Table  `json:"newdata"`
}

// Response holds one prediction per Newdata row and the model summary.
type Response struct {
	Predictions []Value `json:"predictions"`
	// RSq is the adjusted R² of the model summary.
	RSq Value `json:"r_sq"`
	// DevExpl is the proportion of null deviance explained.
	DevExpl Value `json:"dev_expl"`
}

// Engine fits a GAM outside the process.
type Engine interface {
	Name() string
	Fit(ctx context.Context, req *Request) (*Response, error)
}

//go:embed mgcv.R
var mgcvScript []byte

// RscriptEngine runs the embedded mgcv program with Rscript. The request is
// written to its stdin and the response read from its stdout as JSON.
type RscriptEngine struct {
	// Path is the Rscript binary; empty means "Rscript" from PATH.
	Path string
}

// NewRscriptEngine creates an engine for the given Rscript binary.
func NewRscriptEngine(path string) *RscriptEngine {
	return &RscriptEngine{Path: path}
}

// Name implements Engine.
func (e *RscriptEngine) Name() string { return "rscript" }

// Fit implements Engine.
func (e *RscriptEngine) Fit(ctx context.Context, req *Request) (*Response, error) {
	path := e.Path
	if path == "" {
		path = "Rscript"
	}
	if _, err := exec.LookPath(path); err != nil {
		return nil, errors.NewStrategyDelegationError(e.Name(), "binary not found", err)
	}

	script, err := os.CreateTemp("", "lurcv-gam-*.R")
	if err != nil {
		return nil, errors.Wrap(err, "error creating script file")
	}
	defer os.Remove(script.Name())
	if _, err := script.Write(mgcvScript); err != nil {
		script.Close()
		return nil, errors.Wrap(err, "error writing script file")
	}
	if err := script.Close(); err != nil {
		return nil, errors.Wrap(err, "error closing script file")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "error encoding request")
	}

	cmd := exec.CommandContext(ctx, path, "--vanilla", script.Name())
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, errors.WithStack(ctx.Err())
		}
		return nil, errors.NewStrategyDelegationError(e.Name(), "engine failed: "+lastLine(stderr.String()), err)
	}

	var resp Response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, errors.NewStrategyDelegationError(e.Name(), "malformed response", err)
	}
	return &resp, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}
