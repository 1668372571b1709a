package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focustrack/internal/infrastructure/logging"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, time.Second, cfg.Timer.TickInterval)
	assert.Equal(t, 30*time.Second, cfg.Timer.FlushInterval)
	assert.Equal(t, 5*time.Second, cfg.Timer.WriteTimeout)
	assert.Equal(t, "127.0.0.1:7420", cfg.HTTP.Addr)
	assert.Equal(t, logging.LevelInfo, cfg.Level())
}

func TestLoadFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	content := "environment: development\nlog_level: debug\ntimer:\n  flush_interval: 1m\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))
	t.Setenv("FOCUSTRACK_TIMER_WRITE_TIMEOUT", "2s")
	t.Setenv("FOCUSTRACK_HTTP_ADDR", ":9000")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, logging.LevelDebug, cfg.Level())
	assert.Equal(t, time.Minute, cfg.Timer.FlushInterval)
	assert.Equal(t, 2*time.Second, cfg.Timer.WriteTimeout)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, time.Second, cfg.Timer.TickInterval)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FOCUSTRACK_ENVIRONMENT", "staging")
	_, err := Load(dir)
	assert.Error(t, err)
}

func TestWriteFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	cfg.Timer.FlushInterval = 45 * time.Second

	path, err := cfg.WriteFile()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), path)

	reloaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg, reloaded)
}

func TestDatabaseAndEngineConfig(t *testing.T) {
	cfg := &Config{
		Environment: "development",
		DataDir:     "/tmp/ft",
		Timer:       TimerConfig{TickInterval: 2 * time.Second, WriteTimeout: 3 * time.Second},
	}
	dbConfig, err := cfg.Database()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/ft", "focustrack_dev.db"), dbConfig.Path)

	engineConfig := cfg.Engine()
	assert.Equal(t, 2*time.Second, engineConfig.TickInterval)
	assert.Equal(t, 3*time.Second, engineConfig.WriteTimeout)
}
