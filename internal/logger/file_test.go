package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLoggerWritesToRunFile(t *testing.T) {
	dir := t.TempDir()
	fl, err := NewFileLoggerWithDirAndLevel(dir, "info")
	require.NoError(t, err)

	fl.LogInfo("plan created")
	fl.LogError("task failed")
	require.NoError(t, fl.Close())

	data, err := os.ReadFile(fl.RunFile())
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "Autopilot Run Log")
	assert.Contains(t, content, "[INFO] plan created")
	assert.Contains(t, content, "[ERROR] task failed")
}

func TestFileLoggerFiltersBelowLevel(t *testing.T) {
	dir := t.TempDir()
	fl, err := NewFileLoggerWithDirAndLevel(dir, "warn")
	require.NoError(t, err)

	fl.LogDebug("noise")
	fl.LogInfo("still noise")
	fl.LogWarn("pressure rising")
	require.NoError(t, fl.Close())

	data, err := os.ReadFile(fl.RunFile())
	require.NoError(t, err)
	content := string(data)
	assert.NotContains(t, content, "noise")
	assert.Contains(t, content, "[WARN] pressure rising")
}

func TestFileLoggerMaintainsLatestSymlink(t *testing.T) {
	dir := t.TempDir()
	fl, err := NewFileLoggerWithDirAndLevel(dir, "info")
	require.NoError(t, err)
	defer fl.Close()

	target, err := os.Readlink(filepath.Join(dir, "latest.log"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(fl.RunFile()), target)
}

func TestFileLoggerCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	fl, err := NewFileLoggerWithDirAndLevel(dir, "info")
	require.NoError(t, err)

	require.NoError(t, fl.Close())
	require.NoError(t, fl.Close())

	// Writes after close are dropped without panicking
	fl.LogInfo("ignored")
}
