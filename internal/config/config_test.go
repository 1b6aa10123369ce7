package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Worker.Concurrency)
	assert.Equal(t, 60, cfg.Worker.JobDeadlineSeconds)
	assert.Equal(t, 3, cfg.Worker.MaxRetries)
	assert.Equal(t, 365, cfg.Retention.CitationsDays)
	assert.Equal(t, 90, cfg.Retention.AlertsDays)
	assert.Equal(t, 30, cfg.Retention.JobsDays)
	assert.Equal(t, 24, cfg.Tracking.IntervalHours)
	assert.Equal(t, "02:00", cfg.Tracking.DailyRunAt)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
worker:
  concurrency: 10
`
	require.NoError(t, os.WriteFile("config.yaml", []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 10, cfg.Worker.Concurrency)
}

func TestLoadProviderConfigs_FromEnv(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("TRACKER_PROVIDER_GEMINI_API_KEY", "secret")
	t.Setenv("TRACKER_PROVIDER_GEMINI_RATE_PER_MIN", "30")

	cfg, err := Load()
	require.NoError(t, err)
	require.Contains(t, cfg.Providers, "gemini")
	assert.Equal(t, "secret", cfg.Providers["gemini"].APIKey)
	assert.Equal(t, 30, cfg.Providers["gemini"].RatePerMin)
	assert.NotContains(t, cfg.Providers, "claude")
}

func TestWorkerConfig_Defaults(t *testing.T) {
	var w WorkerConfig
	assert.Equal(t, 60, int(w.JobDeadline().Seconds()))
	assert.Equal(t, 30, int(w.GraceWindow().Seconds()))
}
