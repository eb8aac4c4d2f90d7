package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, ":8710", cfg.Server.Addr)
	assert.Equal(t, "hookwatch.db", cfg.Database.Path)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "Asia/Tokyo", cfg.Scheduler.Timezone)
	assert.Equal(t, 60*time.Second, cfg.Scheduler.ReconcileInterval())
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.LockStaleAfter())
	assert.Equal(t, 8, cfg.Scheduler.Workers)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.HTTPTimeout())
	assert.Equal(t, time.Hour, cfg.Scheduler.StuckExecutionAfter())
	assert.Equal(t, "https://api.github.com", cfg.GitHub.BaseURL)
	assert.False(t, cfg.Slack.Enabled)
	assert.Equal(t, 30, cfg.Maintenance.LookaheadDays)
}

func TestReconcileIntervalClamped(t *testing.T) {
	c := SchedulerConfig{ReconcileIntervalSeconds: 1}
	assert.Equal(t, 10*time.Second, c.ReconcileInterval())

	c.ReconcileIntervalSeconds = 3600
	assert.Equal(t, 300*time.Second, c.ReconcileInterval())

	c.ReconcileIntervalSeconds = 45
	assert.Equal(t, 45*time.Second, c.ReconcileInterval())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hookwatch.toml")
	content := `
[server]
addr = ":9000"

[scheduler]
timezone = "UTC"
reconcile_interval_seconds = 30
workers = 2

[github]
token = "ghp_testtoken"

[slack]
enabled = true
webhook_url = "https://hooks.slack.com/services/T/B/X"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "UTC", cfg.Scheduler.Timezone)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.ReconcileInterval())
	assert.Equal(t, 2, cfg.Scheduler.Workers)
	assert.Equal(t, "ghp_testtoken", cfg.GitHub.Token)
	assert.True(t, cfg.Slack.Enabled)

	// unset keys fall back to defaults
	assert.Equal(t, "hookwatch.db", cfg.Database.Path)
	assert.Equal(t, 30, cfg.Maintenance.LookaheadDays)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("HOOKWATCH_SCHEDULER_WORKERS", "3")
	t.Setenv("HOOKWATCH_SERVER_ADDR", ":7777")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Scheduler.Workers)
	assert.Equal(t, ":7777", cfg.Server.Addr)
}
