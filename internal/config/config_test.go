package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxop/voxop/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voxop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadLayersOverDefaults(t *testing.T) {
	path := writeConfig(t, `
scheduler:
  concurrency: 5
confirmation:
  timeout: 90s
gui:
  confidence: 0.8
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Scheduler.Concurrency)
	assert.Equal(t, 90*time.Second, cfg.Confirmation.Timeout.Std())
	assert.Equal(t, 0.8, cfg.GUI.Confidence)

	// Untouched settings keep their defaults.
	assert.Equal(t, 2, cfg.GUI.MaxRetries)
	assert.Equal(t, 120*time.Second, cfg.Shell.CommandTimeout.Std())
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_VOXOP_MODEL", "qwen2.5-7b")
	path := writeConfig(t, `
providers:
  language:
    model: ${TEST_VOXOP_MODEL}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5-7b", cfg.Providers.Language.Model)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.True(t, errors.HasCode(err, errors.ErrCodeFileNotFound), "got %v", err)
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Scheduler.Concurrency, "missing file should fall back to defaults")
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, `scheduler: [broken`)
	_, err := Load(path)
	assert.True(t, errors.HasCode(err, errors.ErrCodeFileUnmarshal), "got %v", err)
}

func TestLoadInvalidDuration(t *testing.T) {
	path := writeConfig(t, `
confirmation:
  timeout: ninety seconds
`)
	_, err := Load(path)
	assert.True(t, errors.HasCode(err, errors.ErrCodeFileUnmarshal), "got %v", err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero concurrency", func(c *Config) { c.Scheduler.Concurrency = 0 }},
		{"negative confirmation timeout", func(c *Config) { c.Confirmation.Timeout = -1 }},
		{"zero command timeout", func(c *Config) { c.Shell.CommandTimeout = 0 }},
		{"confidence above one", func(c *Config) { c.GUI.Confidence = 1.5 }},
		{"zero confidence", func(c *Config) { c.GUI.Confidence = 0 }},
		{"negative diff tolerance", func(c *Config) { c.GUI.DiffTolerance = -0.1 }},
		{"negative gui retries", func(c *Config) { c.GUI.MaxRetries = -1 }},
		{"zero verify radius", func(c *Config) { c.GUI.VerifyRadius = 0 }},
		{"zero retry attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"empty library path", func(c *Config) { c.Library.Path = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid), "got %v", err)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VOXOP_CONCURRENCY", "7")
	t.Setenv("VOXOP_CONFIRMATION_TIMEOUT", "2m")
	t.Setenv("VOXOP_LIBRARY_PATH", "/tmp/commands.yaml")
	t.Setenv("VOXOP_LOG_LEVEL", "debug")
	t.Setenv("VOXOP_OTLP_ENDPOINT", "localhost:4318")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Scheduler.Concurrency)
	assert.Equal(t, 2*time.Minute, cfg.Confirmation.Timeout.Std())
	assert.Equal(t, "/tmp/commands.yaml", cfg.Library.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "localhost:4318", cfg.Telemetry.OTLPEndpoint)
}

func TestEnvOverridesBeatFileValues(t *testing.T) {
	t.Setenv("VOXOP_CONCURRENCY", "9")
	path := writeConfig(t, `
scheduler:
  concurrency: 2
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Scheduler.Concurrency, "env override should win over file value")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxop.yaml")
	src := Default()
	src.Scheduler.Concurrency = 4
	require.NoError(t, Save(src, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Scheduler.Concurrency)
	assert.Equal(t, 60*time.Second, loaded.Confirmation.Timeout.Std())
}
