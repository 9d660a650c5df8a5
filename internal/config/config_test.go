package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/segregation/internal/config"
	"github.com/talgya/segregation/internal/schelling"
	"github.com/talgya/segregation/internal/seed"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schelling.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// TestDefault matches the original study and validates.
func TestDefault(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, schelling.DefaultParams(), cfg.Params())
	assert.Equal(t, seed.KindOriginal, cfg.Model.Initial.Kind)

	plan := cfg.Plan()
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, plan.Neighborhoods)
	assert.Equal(t, 100, plan.SampleSize)
	assert.Equal(t, 0.5, plan.Threshold)

	assert.Equal(t, 2000, cfg.API.MaxLineSize)
	assert.Equal(t, 1000, cfg.API.MaxIterations)
	assert.Equal(t, 100, cfg.API.MaxNeighborhood)
	assert.False(t, cfg.API.TrustForwardedFor)
}

// TestLoad_File overlays a partial file on the defaults.
func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
model:
  neighborhood: 2
  threshold: 0.75
experiment:
  neighborhoods: [1, 3]
  sample_size: 10
  initial:
    kind: noise
    size: 50
    seed: 9
storage:
  path: results.db
api:
  max_iterations: 40
  trust_forwarded_for: true
logging:
  level: debug
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, schelling.Params{Neighborhood: 2, Threshold: 0.75, MaxIterations: 5}, cfg.Params())
	plan := cfg.Plan()
	assert.Equal(t, []int{1, 3}, plan.Neighborhoods)
	assert.Equal(t, 10, plan.SampleSize)
	assert.Equal(t, 0.75, plan.Threshold)
	assert.Equal(t, seed.KindNoise, plan.Initial.Kind)
	assert.Equal(t, 50, plan.Initial.Size)
	assert.Equal(t, int64(9), plan.Initial.Seed)
	assert.Equal(t, "results.db", cfg.Storage.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 40, cfg.API.MaxIterations)
	assert.True(t, cfg.API.TrustForwardedFor)
	assert.Equal(t, 8080, cfg.API.Port, "untouched fields keep defaults")
}

// TestLoad_EnvOverrides wins over the file.
func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "model:\n  neighborhood: 2\n")
	t.Setenv("SCHELLING_NEIGHBORHOOD", "3")
	t.Setenv("SCHELLING_THRESHOLD", "0.6")
	t.Setenv("SCHELLING_MAX_ITERATIONS", "12")
	t.Setenv("SCHELLING_SEED", "77")
	t.Setenv("SCHELLING_DB", "/tmp/x.db")
	t.Setenv("SCHELLING_PORT", "9090")
	t.Setenv("SCHELLING_LOG_LEVEL", "warn")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, schelling.Params{Neighborhood: 3, Threshold: 0.6, MaxIterations: 12}, cfg.Params())
	assert.Equal(t, int64(77), cfg.Experiment.Initial.Seed)
	assert.Equal(t, "/tmp/x.db", cfg.Storage.Path)
	assert.Equal(t, 9090, cfg.API.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

// TestLoad_Invalid surfaces parse, override and validation failures.
func TestLoad_Invalid(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = config.Load(writeConfig(t, "model: [unclosed"))
	assert.Error(t, err)

	_, err = config.Load(writeConfig(t, "model:\n  threshold: 1.5\n"))
	assert.ErrorIs(t, err, schelling.ErrInvalidConfiguration)

	_, err = config.Load(writeConfig(t, "experiment:\n  sample_size: 0\n"))
	assert.ErrorIs(t, err, schelling.ErrInvalidConfiguration)

	_, err = config.Load(writeConfig(t, "api:\n  max_iterations: 0\n"))
	assert.Error(t, err)

	_, err = config.Load(writeConfig(t, "logging:\n  level: loud\n"))
	assert.Error(t, err)

	t.Setenv("SCHELLING_NEIGHBORHOOD", "many")
	_, err = config.Load("")
	assert.Error(t, err)
}
