// Package gam delegates generalized additive model fits to an external
// statistical engine (R with mgcv) and scores the predictions it returns.
package gam

import (
	"strconv"
	"strings"

	"github.com/YuminosukeSato/lurcv/pkg/errors"
)

// Term is one right-hand side term of the model formula.
type Term struct {
	Column string `yaml:"column" json:"column"`
	// Smooth renders s(column, bs=Basis, k=K); otherwise the column enters
	// linearly.
	Smooth bool   `yaml:"smooth" json:"smooth"`
	Basis  string `yaml:"basis,omitempty" json:"basis,omitempty"`
	K      int    `yaml:"k,omitempty" json:"k,omitempty"`
}

// Smooth returns a cubic regression spline term with basis dimension 3.
func Smooth(column string) Term {
	return Term{Column: column, Smooth: true, Basis: "cr", K: 3}
}

// Linear returns a parametric term.
func Linear(column string) Term {
	return Term{Column: column}
}

func (t Term) String() string {
	if !t.Smooth {
		return t.Column
	}
	var b strings.Builder
	b.WriteString("s(")
	b.WriteString(t.Column)
	if t.Basis != "" {
		b.WriteString(`,bs="`)
		b.WriteString(t.Basis)
		b.WriteString(`"`)
	}
	if t.K > 0 {
		b.WriteString(",k=")
		b.WriteString(strconv.Itoa(t.K))
	}
	b.WriteString(")")
	return b.String()
}

// Config describes the model handed to the engine.
type Config struct {
	Target string `yaml:"target" json:"target"`
	Terms  []Term `yaml:"terms" json:"terms"`
	Family string `yaml:"family" json:"family"`
	Link   string `yaml:"link" json:"link"`
}

// DefaultConfig is the Hasenfratz particle model: smooth terms for the land
// use covariates, street size as a linear term and a Gamma family with log
// link.
func DefaultConfig() Config {
	return Config{
		Target: "pm_measurement",
		Terms: []Term{
			Smooth("industry"),
			Smooth("floorlevel"),
			Smooth("elevation"),
			Smooth("slope"),
			Smooth("expo"),
			Linear("streetsize"),
			Smooth("traffic_tot"),
			Smooth("streetdist_l"),
		},
		Family: "Gamma",
		Link:   "log",
	}
}

// Formula renders the mgcv formula, e.g. y~s(a,bs="cr",k=3)+b.
func (c Config) Formula() string {
	terms := make([]string, len(c.Terms))
	for i, t := range c.Terms {
		terms[i] = t.String()
	}
	return c.Target + "~" + strings.Join(terms, "+")
}

// Columns returns the feature columns the formula reads.
func (c Config) Columns() []string {
	cols := make([]string, len(c.Terms))
	for i, t := range c.Terms {
		cols[i] = t.Column
	}
	return cols
}

var families = map[string]bool{
	"gaussian": true, "Gamma": true, "poisson": true, "inverse.gaussian": true,
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Target == "" {
		return errors.NewConfigurationError("gam.target", "required", c.Target)
	}
	if len(c.Terms) == 0 {
		return errors.NewConfigurationError("gam.terms", "at least one term required", c.Terms)
	}
	seen := make(map[string]bool, len(c.Terms))
	for _, t := range c.Terms {
		if t.Column == "" || t.Column == c.Target {
			return errors.NewConfigurationError("gam.terms", "invalid column", t.Column)
		}
		if seen[t.Column] {
			return errors.NewConfigurationError("gam.terms", "duplicate column", t.Column)
		}
		seen[t.Column] = true
		if t.K < 0 {
			return errors.NewConfigurationError("gam.terms", "negative basis dimension", t.K)
		}
	}
	if !families[c.Family] {
		return errors.NewConfigurationError("gam.family", "unsupported family", c.Family)
	}
	if c.Link == "" {
		return errors.NewConfigurationError("gam.link", "required", c.Link)
	}
	return nil
}
