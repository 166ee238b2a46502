package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestWatcherInitialLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfigFile(t, path, "log_level: debug\n")

	w, err := NewWatcher(path)
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, "debug", w.Current().LogLevel)
}

func TestWatcherDeliversValidUpdate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfigFile(t, path, "log_level: info\n")

	w, err := NewWatcher(path)
	require.NoError(t, err)
	defer w.Close()
	w.SetDebounceDelay(20 * time.Millisecond)

	writeConfigFile(t, path, "log_level: warn\n")

	select {
	case cfg := <-w.Updates():
		assert.Equal(t, "warn", cfg.LogLevel)
		assert.Equal(t, "warn", w.Current().LogLevel)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config update")
	}
}

func TestWatcherKeepsLastGoodConfigOnInvalidChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfigFile(t, path, "log_level: info\n")

	w, err := NewWatcher(path)
	require.NoError(t, err)
	defer w.Close()
	w.SetDebounceDelay(20 * time.Millisecond)

	writeConfigFile(t, path, "log_level: shouting\n")

	select {
	case err := <-w.Errors():
		assert.Error(t, err)
		assert.Equal(t, "info", w.Current().LogLevel)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload error")
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfigFile(t, path, "log_level: info\n")

	w, err := NewWatcher(path)
	require.NoError(t, err)
	defer w.Close()
	w.SetDebounceDelay(20 * time.Millisecond)

	writeConfigFile(t, filepath.Join(dir, "notes.txt"), "unrelated\n")

	select {
	case <-w.Updates():
		t.Fatal("update delivered for unrelated file")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfigFile(t, path, "log_level: info\n")

	w, err := NewWatcher(path)
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}
