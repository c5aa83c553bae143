package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/lurcv/pkg/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lurcv.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaultsAndYAML(t *testing.T) {
	path := writeConfig(t, `
data: measurements.csv
superset: grid.csv
features: [industry, elevation]
strategy: random-search
iterations: 5
folds: 4
jobs: 2
seed: 7
random_search:
  time_budget: 90s
  refit: true
  extended_space: true
output:
  dir: out
  plot: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "measurements.csv", cfg.Data)
	assert.Equal(t, "grid.csv", cfg.Superset)
	assert.Equal(t, "pm_measurement", cfg.Target)
	assert.Equal(t, []string{"industry", "elevation"}, cfg.Features)
	assert.Equal(t, RandomSearch, cfg.Strategy)
	assert.Equal(t, 5, cfg.Iterations)
	assert.Equal(t, 0.01, cfg.Forward.Threshold)

	sc := cfg.SearchConfig()
	assert.Equal(t, 90*time.Second, sc.Budget)
	assert.True(t, sc.Refit)
	assert.Equal(t, uint64(7), sc.Seed)
	assert.True(t, sc.Space.MaxFeatures.Enabled())

	f, err := cfg.Factory()
	require.NoError(t, err)
	assert.Equal(t, "random_search", f.Name)
	assert.NotNil(t, f.Model)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "data: a.csv\nfolds: 4\n")
	t.Setenv("LURCV_DATA", "b.csv")
	t.Setenv("LURCV_FOLDS", "6")
	t.Setenv("LURCV_FEATURES", "x1,x2,x3")
	t.Setenv("LURCV_FORWARD_THRESHOLD", "0.05")
	t.Setenv("LURCV_LOG_FORMAT", "json")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "b.csv", cfg.Data)
	assert.Equal(t, 6, cfg.Folds)
	assert.Equal(t, []string{"x1", "x2", "x3"}, cfg.Features)
	assert.Equal(t, 0.05, cfg.Forward.Threshold)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 40, cfg.Iterations)
}

func TestLoadGAM(t *testing.T) {
	path := writeConfig(t, `
data: a.csv
target: no2
strategy: external-gam
external_gam:
  terms:
    - {column: traffic, smooth: true, basis: cr, k: 4}
    - {column: streetsize}
  link: identity
  family: gaussian
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	g := cfg.GAMConfig()
	assert.Equal(t, `no2~s(traffic,bs="cr",k=4)+streetsize`, g.Formula())
	assert.Equal(t, "gaussian", g.Family)

	f, err := cfg.Factory()
	require.NoError(t, err)
	assert.NotNil(t, f.Metrics)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing data", "folds: 4\n"},
		{"unknown strategy", "data: a.csv\nstrategy: lasso\n"},
		{"one fold", "data: a.csv\nfolds: 1\n"},
		{"negative jobs", "data: a.csv\njobs: -1\n"},
		{"negative threshold", "data: a.csv\nforward_selection: {threshold: -1}\n"},
		{"holdout", "data: a.csv\nrandom_search: {holdout: 1.5}\n"},
		{"log level", "data: a.csv\nlog: {level: loud}\n"},
		{"gam family", "data: a.csv\nstrategy: external-gam\nexternal_gam: {family: tweedie}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.True(t, errors.IsConfiguration(err), "got %v", err)
		})
	}

	_, err := Load(writeConfig(t, "data: a.csv\nunknown_key: 1\n"))
	assert.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
