package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/warden/pkg/warden/logging"
	"github.com/jamesainslie/warden/pkg/warden/policy"
)

// isolate points config loading at an empty temp home so the host's real
// config file never leaks into tests.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, ".config"))
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, 0.8, cfg.Policy.SafetyMargin, 0.001)
	assert.Equal(t, int64(64), cfg.Policy.BaseOverheadMB)
	assert.Equal(t, int64(200), cfg.Policy.PerWorkerMB)
	assert.Equal(t, int64(384), cfg.Policy.MinRAMMB)
	assert.False(t, cfg.Policy.LowMemoryMode)
	assert.Equal(t, 60, cfg.Monitor.WindowSec)
	assert.Equal(t, 3, cfg.Monitor.AlertThreshold)
	assert.Equal(t, "127.0.0.1:9464", cfg.Health.Listen)
	assert.Equal(t, 2, cfg.Matrix.Parallel)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := isolate(t)

	confDir := filepath.Join(dir, ".config", "warden")
	require.NoError(t, os.MkdirAll(confDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(confDir, "config.yaml"), []byte(`
policy:
  min_ram_mb: 512
  low_memory_mode: true
monitor:
  alert_threshold: 5
`), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(512), cfg.Policy.MinRAMMB)
	assert.True(t, cfg.Policy.LowMemoryMode)
	assert.Equal(t, 5, cfg.Monitor.AlertThreshold)
	// Untouched keys keep defaults.
	assert.Equal(t, 60, cfg.Monitor.WindowSec)
}

func TestLoad_PrefixedEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("WARDEN_MONITOR_ALERT_THRESHOLD", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Monitor.AlertThreshold)
}

func TestLoad_BareSupervisorEnvKeys(t *testing.T) {
	isolate(t)
	t.Setenv("LOW_MEMORY_MODE", "true")
	t.Setenv("WORKER_COUNT_OVERRIDE", "2")
	t.Setenv("WORKER_TIMEOUT_OVERRIDE", "45")
	t.Setenv("MIN_RAM_MB", "768")
	t.Setenv("SAFETY_MARGIN", "0.7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Policy.LowMemoryMode)
	assert.Equal(t, 2, cfg.Policy.WorkerCountOverride)
	assert.Equal(t, 45, cfg.Policy.WorkerTimeoutOverride)
	assert.Equal(t, int64(768), cfg.Policy.MinRAMMB)
	assert.InDelta(t, 0.7, cfg.Policy.SafetyMargin, 0.001)
}

func TestLoad_MalformedConfigFile(t *testing.T) {
	dir := isolate(t)

	confDir := filepath.Join(dir, ".config", "warden")
	require.NoError(t, os.MkdirAll(confDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(confDir, "config.yaml"),
		[]byte("policy: [not a map"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestToPolicy(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	pol := cfg.ToPolicy()
	assert.Equal(t, policy.Default(), pol)
}

func TestToRotation(t *testing.T) {
	dir := isolate(t)

	confDir := filepath.Join(dir, ".config", "warden")
	require.NoError(t, os.MkdirAll(confDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(confDir, "config.yaml"), []byte(`
logging:
  rotation:
    max_size: 1MiB
    max_backups: 2
`), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	rot := cfg.ToRotation()
	assert.Equal(t, int64(1<<20), rot.MaxSize)
	assert.Equal(t, 2, rot.MaxBackups)
}

func TestToRotation_MalformedSizeFallsBack(t *testing.T) {
	cfg := &Config{}
	cfg.Logging.Rotation.MaxSize = "plenty"

	rot := cfg.ToRotation()
	assert.Equal(t, logging.DefaultRotationConfig(), rot)
}

func TestPathHelpers(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-config")

	dir, err := ConfigDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/xdg-config/warden", dir)

	assert.Contains(t, DefaultLogPath(), "warden")
	assert.Contains(t, DefaultHistoryPath(), "warden")
}
