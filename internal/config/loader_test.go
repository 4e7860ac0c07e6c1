package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig installs a config file under an isolated fake home and returns
// its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "instinctd")
	require.NoError(t, os.MkdirAll(dir, 0o700))

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Empty(t, cfg.State.Root)
	assert.Equal(t, 1000, cfg.Events.RolloverThreshold)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "instinctd", cfg.Telemetry.ServiceName)
	assert.Equal(t, 30*time.Second, cfg.Telemetry.ExportInterval.Duration())
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
state:
  root: /var/lib/instinctd
events:
  rollover_threshold: 250
logging:
  level: debug
  format: console
telemetry:
  enabled: true
  endpoint: collector:4317
  export_interval: 10s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/instinctd", cfg.State.Root)
	assert.Equal(t, 250, cfg.Events.RolloverThreshold)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "collector:4317", cfg.Telemetry.Endpoint)
	assert.Equal(t, 10*time.Second, cfg.Telemetry.ExportInterval.Duration())
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
events:
  rollover_threshold: 250
`)

	t.Setenv("INSTINCTD_LOGGING_LEVEL", "warn")
	t.Setenv("INSTINCTD_EVENTS_ROLLOVER_THRESHOLD", "500")
	t.Setenv("INSTINCTD_STATE_ROOT", "/srv/instinct")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 500, cfg.Events.RolloverThreshold)
	assert.Equal(t, "/srv/instinct", cfg.State.Root)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := filepath.Join(home, ".config", "instinctd", "missing.yaml")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_RejectsPathOutsideAllowedDirs(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	outside := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(outside, []byte("logging:\n  level: info\n"), 0o600))

	_, err := Load(outside)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file must be in")
}

func TestLoad_RejectsWorldReadableFile(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: info\n")
	require.NoError(t, os.Chmod(path, 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoad_RejectsInvalidLevel(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: verbose\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid logging level")
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	require.NoError(t, cfg.Validate())

	bad := *cfg
	bad.Events.RolloverThreshold = -1
	require.Error(t, bad.Validate())

	bad = *cfg
	bad.Logging.Format = "xml"
	require.Error(t, bad.Validate())
}
