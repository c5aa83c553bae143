// Package config loads run settings from defaults, an optional YAML file and
// LURCV_ environment variables, in that order.
package config

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/lurcv/crossval"
	"github.com/YuminosukeSato/lurcv/gam"
	"github.com/YuminosukeSato/lurcv/linear"
	"github.com/YuminosukeSato/lurcv/pkg/errors"
	"github.com/YuminosukeSato/lurcv/pkg/log"
	"github.com/YuminosukeSato/lurcv/search"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "LURCV_"

// Strategy names.
const (
	ForwardSelection = "forward-selection"
	RandomSearch     = "random-search"
	ExternalGAM      = "external-gam"
)

// Config is the complete run configuration.
type Config struct {
	Data     string   `yaml:"data"     env:"DATA"`
	Superset string   `yaml:"superset" env:"SUPERSET"`
	Target   string   `yaml:"target"   env:"TARGET"`
	Features []string `yaml:"features" env:"FEATURES" envSeparator:","`

	Strategy   string `yaml:"strategy"   env:"STRATEGY"`
	Iterations int    `yaml:"iterations" env:"ITERATIONS"`
	Folds      int    `yaml:"folds"      env:"FOLDS"`
	Jobs       int    `yaml:"jobs"       env:"JOBS"`
	Seed       uint64 `yaml:"seed"       env:"SEED"`

	Forward Forward `yaml:"forward_selection" envPrefix:"FORWARD_"`
	Search  Search  `yaml:"random_search"     envPrefix:"SEARCH_"`
	GAM     GAM     `yaml:"external_gam"      envPrefix:"GAM_"`

	Output      Output `yaml:"output" envPrefix:"OUTPUT_"`
	Log         Log    `yaml:"log"    envPrefix:"LOG_"`
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`
}

// Forward configures greedy forward selection.
type Forward struct {
	Threshold float64 `yaml:"threshold" env:"THRESHOLD"`
}

// Search configures the random forest search.
type Search struct {
	TimeBudget time.Duration `yaml:"time_budget"    env:"TIME_BUDGET"`
	Refit      bool          `yaml:"refit"          env:"REFIT"`
	Holdout    float64       `yaml:"holdout"        env:"HOLDOUT"`
	Extended   bool          `yaml:"extended_space" env:"EXTENDED_SPACE"`
}

// GAM configures the external GAM. Empty Terms use the default Hasenfratz
// terms.
type GAM struct {
	Terms   []gam.Term `yaml:"terms"`
	Family  string     `yaml:"family"  env:"FAMILY"`
	Link    string     `yaml:"link"    env:"LINK"`
	Rscript string     `yaml:"rscript" env:"RSCRIPT"`
}

// Output selects the files written after a run.
type Output struct {
	Dir  string `yaml:"dir"  env:"DIR"`
	Plot bool   `yaml:"plot" env:"PLOT"`
}

// Log configures the process logger. Format is console or json (zerolog) or
// cloud (slog JSON in Cloud Logging layout).
type Log struct {
	Level  string `yaml:"level"  env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// Default returns the settings of the reference protocol: 40 × 10-fold CV of
// forward selection on pm_measurement.
func Default() *Config {
	g := gam.DefaultConfig()
	return &Config{
		Target:     g.Target,
		Strategy:   ForwardSelection,
		Iterations: crossval.DefaultIterations,
		Folds:      crossval.DefaultFolds,
		Forward:    Forward{Threshold: linear.DefaultThreshold},
		Search:     Search{TimeBudget: time.Minute, Holdout: search.DefaultHoldout},
		GAM:        GAM{Family: g.Family, Link: g.Link, Rscript: "Rscript"},
		Log:        Log{Level: "info", Format: "console"},
	}
}

// Load reads the configuration and validates it.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read applies the YAML file at path (if any) and the environment on top of
// Default without validating.
func Read(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config %s", path)
		}
		if err := decodeYAML(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config %s", path)
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, errors.Wrap(err, "failed to load environment")
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return errors.WithStack(err)
	}
	return nil
}

// Validate checks every setting a run depends on.
func (c *Config) Validate() error {
	if c.Data == "" {
		return errors.NewConfigurationError("data", "required", c.Data)
	}
	if c.Target == "" {
		return errors.NewConfigurationError("target", "required", c.Target)
	}
	switch c.Strategy {
	case ForwardSelection, RandomSearch, ExternalGAM:
	default:
		return errors.NewConfigurationError("strategy", "unknown strategy", c.Strategy)
	}
	if c.Iterations < 1 {
		return errors.NewConfigurationError("iterations", "must be >= 1", c.Iterations)
	}
	if c.Folds < 2 {
		return errors.NewConfigurationError("folds", "must be >= 2", c.Folds)
	}
	if c.Jobs < 0 {
		return errors.NewConfigurationError("jobs", "must be >= 0", c.Jobs)
	}
	if c.Forward.Threshold < 0 {
		return errors.NewConfigurationError("forward_selection.threshold", "must be >= 0", c.Forward.Threshold)
	}
	if err := c.SearchConfig().Validate(); err != nil {
		return err
	}
	if c.Strategy == ExternalGAM {
		if err := c.GAMConfig().Validate(); err != nil {
			return err
		}
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.NewConfigurationError("log.level", "unknown level", c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json", "cloud":
	default:
		return errors.NewConfigurationError("log.format", "must be console, json or cloud", c.Log.Format)
	}
	return nil
}

// SearchConfig returns the random search settings.
func (c *Config) SearchConfig() search.Config {
	space := search.DefaultSpace()
	if c.Search.Extended {
		space = search.ExtendedSpace()
	}
	return search.Config{
		Budget:  c.Search.TimeBudget,
		Refit:   c.Search.Refit,
		Holdout: c.Search.Holdout,
		Space:   space,
		Seed:    c.Seed,
	}
}

// GAMConfig returns the GAM model for the configured target.
func (c *Config) GAMConfig() gam.Config {
	g := gam.DefaultConfig()
	g.Target = c.Target
	if len(c.GAM.Terms) > 0 {
		g.Terms = c.GAM.Terms
	}
	g.Family = c.GAM.Family
	g.Link = c.GAM.Link
	return g
}

// Factory builds the fold task factory of the configured strategy.
func (c *Config) Factory() (crossval.Factory, error) {
	switch c.Strategy {
	case ForwardSelection:
		return crossval.ForwardSelection(c.Forward.Threshold), nil
	case RandomSearch:
		return crossval.RandomSearch(c.SearchConfig()), nil
	case ExternalGAM:
		return crossval.ExternalGAM(c.GAMConfig(), gam.NewRscriptEngine(c.GAM.Rscript)), nil
	}
	return crossval.Factory{}, errors.NewConfigurationError("strategy", "unknown strategy", c.Strategy)
}
