package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 3, cfg.Execution.MaxRetries)
	assert.Equal(t, 3, cfg.Execution.MaxConcurrentTasks)
	assert.Equal(t, 10, cfg.Planning.MaxSubtasks)
	assert.Equal(t, 3, cfg.Planning.MaxReplanningAttempts)
	assert.Equal(t, 30, cfg.Safety.ActionsPerMinute)
	assert.Equal(t, 60, cfg.Safety.APICallsPerMinute)
	assert.Equal(t, 120, cfg.Safety.MemoryWritesPerMinute)
	assert.Equal(t, float64(80), cfg.Safety.CPUPercentLimit)
	assert.Equal(t, float64(1024), cfg.Safety.MemoryLimitMB)
	assert.Equal(t, "weighted_average", cfg.Evaluation.Aggregation)
	assert.Equal(t, 120, cfg.Evaluation.BaselineSeconds)
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
log_level: debug
execution:
  max_retries: 5
safety:
  actions_per_minute: 10
  require_approval_for:
    - system_command
evaluation:
  aggregation: minimum
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5, cfg.Execution.MaxRetries)
	assert.Equal(t, 10, cfg.Safety.ActionsPerMinute)
	assert.Equal(t, []string{"system_command"}, cfg.Safety.RequireApprovalFor)
	assert.Equal(t, "minimum", cfg.Evaluation.Aggregation)

	// Untouched values keep their defaults.
	assert.Equal(t, 60, cfg.Safety.APICallsPerMinute)
	assert.Equal(t, 10, cfg.Planning.MaxSubtasks)
}

func TestLoadConfigMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: [unclosed"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"negative retries", func(c *Config) { c.Execution.MaxRetries = -1 }},
		{"zero concurrency", func(c *Config) { c.Execution.MaxConcurrentTasks = 0 }},
		{"zero task timeout", func(c *Config) { c.Execution.TaskTimeoutSeconds = 0 }},
		{"zero subtasks", func(c *Config) { c.Planning.MaxSubtasks = 0 }},
		{"zero actions rate", func(c *Config) { c.Safety.ActionsPerMinute = 0 }},
		{"cpu limit over 100", func(c *Config) { c.Safety.CPUPercentLimit = 150 }},
		{"bad aggregation", func(c *Config) { c.Evaluation.Aggregation = "median" }},
		{"empty db path", func(c *Config) { c.Memory.DBPath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWatcherDeliversValidUpdates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\n"), 0644))

	w, err := NewWatcher(path)
	require.NoError(t, err)
	defer w.Close()
	w.SetDebounceDelay(10 * time.Millisecond)

	assert.Equal(t, "info", w.Current().LogLevel)

	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0644))

	select {
	case cfg := <-w.Updates():
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, "debug", w.Current().LogLevel)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config update")
	}
}

func TestWatcherKeepsLastGoodConfigOnParseError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\n"), 0644))

	w, err := NewWatcher(path)
	require.NoError(t, err)
	defer w.Close()
	w.SetDebounceDelay(10 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("log_level: [broken"), 0644))

	select {
	case err := <-w.Errors():
		assert.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload error")
	}

	assert.Equal(t, "warn", w.Current().LogLevel)
}
