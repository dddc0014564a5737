// Package config loads warden configuration from file and environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/jamesainslie/warden/pkg/warden/logging"
	"github.com/jamesainslie/warden/pkg/warden/policy"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// PolicyConfig holds the derivation constants and operator overrides.
type PolicyConfig struct {
	SafetyMargin          float64 `mapstructure:"safety_margin"`
	BaseOverheadMB        int64   `mapstructure:"base_overhead_mb"`
	PerWorkerMB           int64   `mapstructure:"per_worker_mb"`
	MinRAMMB              int64   `mapstructure:"min_ram_mb"`
	LowMemoryMode         bool    `mapstructure:"low_memory_mode"`
	WorkerCountOverride   int     `mapstructure:"worker_count_override"`
	WorkerTimeoutOverride int     `mapstructure:"worker_timeout_override"`
}

// MonitorConfig configures the lifecycle monitor.
type MonitorConfig struct {
	FeedPath          string `mapstructure:"feed_path"`
	WindowSec         int    `mapstructure:"window_s"`
	AlertThreshold    int    `mapstructure:"alert_threshold"`
	PressureWindowSec int    `mapstructure:"pressure_window_s"`
}

// HealthConfig configures the health endpoint.
type HealthConfig struct {
	Listen      string `mapstructure:"listen"`
	IntervalSec int    `mapstructure:"interval_s"`
}

// MatrixConfig configures scenario matrix runs.
type MatrixConfig struct {
	DefinitionPath string `mapstructure:"definition_path"`
	OutputDir      string `mapstructure:"output_dir"`
	Image          string `mapstructure:"image"`
	Parallel       int    `mapstructure:"parallel"`
}

// Config represents the application configuration.
type Config struct {
	Policy  PolicyConfig  `mapstructure:"policy"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Health  HealthConfig  `mapstructure:"health"`
	Matrix  MatrixConfig  `mapstructure:"matrix"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// bareEnvKeys maps config keys to the unprefixed environment variables the
// worker supervisor ecosystem already uses. Both the WARDEN_ prefixed form
// and the bare form work; the bare form matches what operators export today.
var bareEnvKeys = map[string]string{
	"policy.low_memory_mode":         "LOW_MEMORY_MODE",
	"policy.worker_count_override":   "WORKER_COUNT_OVERRIDE",
	"policy.worker_timeout_override": "WORKER_TIMEOUT_OVERRIDE",
	"policy.min_ram_mb":              "MIN_RAM_MB",
	"policy.safety_margin":           "SAFETY_MARGIN",
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/warden/config.yaml
//   - $HOME/.config/warden/config.yaml
//
// Environment variables are prefixed with WARDEN_ (e.g., WARDEN_POLICY_MIN_RAM_MB),
// except for the bare supervisor keys listed in bareEnvKeys.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		v.AddConfigPath(filepath.Join(xdgConfigHome, "warden"))
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}
	v.AddConfigPath(filepath.Join(homeDir, ".config", "warden"))

	v.SetEnvPrefix("WARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, bare := range bareEnvKeys {
		if err := v.BindEnv(key, "WARDEN_"+bare, bare); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", bare, err)
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is acceptable; we use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("policy.safety_margin", policy.DefaultSafetyMargin)
	v.SetDefault("policy.base_overhead_mb", policy.DefaultBaseOverheadBytes>>20)
	v.SetDefault("policy.per_worker_mb", policy.DefaultPerWorkerBytes>>20)
	v.SetDefault("policy.min_ram_mb", policy.DefaultMinRAMMB)
	v.SetDefault("policy.low_memory_mode", false)
	v.SetDefault("policy.worker_count_override", 0)
	v.SetDefault("policy.worker_timeout_override", 0)

	v.SetDefault("monitor.feed_path", "")
	v.SetDefault("monitor.window_s", 60)
	v.SetDefault("monitor.alert_threshold", 3)
	v.SetDefault("monitor.pressure_window_s", 10)

	v.SetDefault("health.listen", "127.0.0.1:9464")
	v.SetDefault("health.interval_s", 15)

	v.SetDefault("matrix.definition_path", "")
	v.SetDefault("matrix.output_dir", "results")
	v.SetDefault("matrix.image", "warden-worker:latest")
	v.SetDefault("matrix.parallel", 2)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // Empty means use DefaultLogPath
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.components", map[string]string{
		"probe":     "info",
		"lifecycle": "info",
		"health":    "info",
		"matrix":    "info",
	})
}

// Policy converts the config section to the calculator's policy value.
func (c *Config) ToPolicy() policy.Policy {
	return policy.Policy{
		SafetyMargin:          c.Policy.SafetyMargin,
		BaseOverheadBytes:     c.Policy.BaseOverheadMB << 20,
		PerWorkerBytes:        c.Policy.PerWorkerMB << 20,
		MinRAMMB:              c.Policy.MinRAMMB,
		LowMemoryMode:         c.Policy.LowMemoryMode,
		WorkerCountOverride:   c.Policy.WorkerCountOverride,
		WorkerTimeoutOverride: c.Policy.WorkerTimeoutOverride,
	}
}

// ToRotation converts the rotation section to the logging package's form.
// The size accepts human figures like "10MB" or "512KiB". A malformed size
// or backup count falls back to the default rather than failing startup.
func (c *Config) ToRotation() logging.RotationConfig {
	rot := logging.DefaultRotationConfig()
	if size, err := humanize.ParseBytes(c.Logging.Rotation.MaxSize); err == nil && size > 0 {
		rot.MaxSize = int64(size)
	}
	if c.Logging.Rotation.MaxBackups > 0 {
		rot.MaxBackups = c.Logging.Rotation.MaxBackups
	}
	return rot
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "warden"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "warden"), nil
}

// DataDir returns $XDG_DATA_HOME/warden/ for the run history database.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "warden")
}

// StateDir returns $XDG_STATE_HOME/warden/ for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "warden")
}

// DefaultHistoryPath returns the default run history database path.
func DefaultHistoryPath() string {
	return filepath.Join(DataDir(), "history")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(StateDir(), "warden.log")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	if err := os.MkdirAll(DataDir(), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}

// EnsureStateDir creates the state directory if it doesn't exist.
func EnsureStateDir() error {
	if err := os.MkdirAll(StateDir(), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	return nil
}
