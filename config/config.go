// Package config loads the hookwatch configuration with Viper.
//
// Sources, in order of precedence: environment variables with the
// HOOKWATCH_ prefix, an optional TOML file (hookwatch.toml in the working
// directory or ~/.config/hookwatch/), then built-in defaults.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hookwatch/hookwatch/errors"
)

// envKeyReplacer maps config keys like scheduler.lock_path to
// HOOKWATCH_SCHEDULER_LOCK_PATH.
var envKeyReplacer = strings.NewReplacer(".", "_")

// Config is the root hookwatch configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	GitHub      GitHubConfig      `mapstructure:"github"`
	Slack       SlackConfig       `mapstructure:"slack"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Addr string `mapstructure:"addr"` // listen address, e.g. ":8710"
}

// DatabaseConfig configures the SQLite job store.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// SchedulerConfig configures the trigger engine, reconciler, and executor.
type SchedulerConfig struct {
	// Enabled gates all scheduling. A disabled process serves the API only
	// and never contends for leadership.
	Enabled bool `mapstructure:"enabled"`

	// Timezone is the reference IANA zone for cron firing and end_date
	// cutoff comparisons.
	Timezone string `mapstructure:"timezone"`

	// ReconcileIntervalSeconds is how often the reconciler re-derives
	// trigger state from the job store. Clamped to [10, 300].
	ReconcileIntervalSeconds int `mapstructure:"reconcile_interval_seconds"`

	// LockPath is the leadership lock file location.
	LockPath string `mapstructure:"lock_path"`

	// LockStaleAfterSeconds is how long a lock may go without a heartbeat
	// before another process may reclaim it.
	LockStaleAfterSeconds int `mapstructure:"lock_stale_after_seconds"`

	// Workers bounds concurrent outbound executions.
	Workers int `mapstructure:"workers"`

	// HTTPTimeoutSeconds bounds each outbound target call.
	HTTPTimeoutSeconds int `mapstructure:"http_timeout_seconds"`

	// StuckExecutionAfterSeconds is the janitor threshold for marking
	// executions abandoned in 'running' (crashed process) as failed.
	// 0 disables the janitor.
	StuckExecutionAfterSeconds int `mapstructure:"stuck_execution_after_seconds"`
}

// GitHubConfig configures workflow-dispatch targets.
type GitHubConfig struct {
	Token   string `mapstructure:"token"`
	BaseURL string `mapstructure:"base_url"` // override for GHES / tests
}

// SlackConfig configures the best-effort Slack reminder integration.
type SlackConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
}

// MaintenanceConfig configures the weekly end-date sweep.
type MaintenanceConfig struct {
	// LookaheadDays is the reminder window for near-expiry jobs (inclusive).
	LookaheadDays int `mapstructure:"lookahead_days"`
}

const (
	minReconcileInterval = 10 * time.Second
	maxReconcileInterval = 300 * time.Second
)

// ReconcileInterval returns the configured reconcile interval clamped to
// the supported range.
func (c SchedulerConfig) ReconcileInterval() time.Duration {
	d := time.Duration(c.ReconcileIntervalSeconds) * time.Second
	if d < minReconcileInterval {
		return minReconcileInterval
	}
	if d > maxReconcileInterval {
		return maxReconcileInterval
	}
	return d
}

// LockStaleAfter returns the staleness threshold as a duration.
func (c SchedulerConfig) LockStaleAfter() time.Duration {
	return time.Duration(c.LockStaleAfterSeconds) * time.Second
}

// HTTPTimeout returns the outbound call timeout as a duration.
func (c SchedulerConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// StuckExecutionAfter returns the janitor threshold; 0 disables it.
func (c SchedulerConfig) StuckExecutionAfter() time.Duration {
	return time.Duration(c.StuckExecutionAfterSeconds) * time.Second
}

// Load reads configuration from the default sources.
func Load() (*Config, error) {
	return LoadWithViper(newViper(""))
}

// LoadFromFile reads configuration from a specific TOML file.
func LoadFromFile(path string) (*Config, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	return LoadWithViper(v)
}

// LoadWithViper unmarshals configuration from a prepared Viper instance.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &cfg, nil
}

func newViper(configFile string) *viper.Viper {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("toml")
	} else {
		v.SetConfigName("hookwatch")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/hookwatch")
		// Missing config file is fine; defaults + env cover everything.
		_ = v.ReadInConfig()
	}

	v.SetEnvPrefix("HOOKWATCH")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	SetDefaults(v)
	return v
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8710")

	v.SetDefault("database.path", "hookwatch.db")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.timezone", "Asia/Tokyo")
	v.SetDefault("scheduler.reconcile_interval_seconds", 60)
	v.SetDefault("scheduler.lock_path", "hookwatch.leader.lock")
	v.SetDefault("scheduler.lock_stale_after_seconds", 120)
	v.SetDefault("scheduler.workers", 8)
	v.SetDefault("scheduler.http_timeout_seconds", 30)
	v.SetDefault("scheduler.stuck_execution_after_seconds", 3600)

	v.SetDefault("github.base_url", "https://api.github.com")

	v.SetDefault("slack.enabled", false)

	v.SetDefault("maintenance.lookahead_days", 30)
}
