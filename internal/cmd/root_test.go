package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandHelp(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)

	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "autopilot")
	assert.Contains(t, output, "pursue")
	assert.Contains(t, output, "plan")
	assert.Contains(t, output, "status")
}

func TestRootCommandHasSubcommands(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "autopilot", cmd.Use)

	names := make([]string, 0)
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "pursue")
	assert.Contains(t, names, "plan")
	assert.Contains(t, names, "status")
}

func TestParseContextParams(t *testing.T) {
	params, err := parseContextParams([]string{"env=staging", "region=eu-west-1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"env": "staging", "region": "eu-west-1"}, params)

	params, err = parseContextParams(nil)
	require.NoError(t, err)
	assert.Nil(t, params)

	_, err = parseContextParams([]string{"no-separator"})
	assert.Error(t, err)

	_, err = parseContextParams([]string{"=value"})
	assert.Error(t, err)
}

// writeTestConfig points all file-backed state at a temp directory so
// command runs leave nothing behind in the working directory.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`log_level: error
log_dir: %s
planning:
  playbook_dir: %s
memory:
  db_path: %s
`, filepath.Join(dir, "logs"), filepath.Join(dir, "playbooks"), filepath.Join(dir, "memory.db"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))
	return cfgPath
}

func TestPlanCommandProducesPlan(t *testing.T) {
	cfgPath := writeTestConfig(t)

	cmd := NewRootCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"plan", "analyze the quarterly numbers", "--config", cfgPath})

	err := cmd.Execute()
	require.NoError(t, err)
}

func TestPlanCommandRejectsBadParam(t *testing.T) {
	cfgPath := writeTestConfig(t)

	cmd := NewRootCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"plan", "analyze the numbers", "--config", cfgPath, "--param", "broken"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key=value")
}

func TestStatusCommandOnEmptyStore(t *testing.T) {
	cfgPath := writeTestConfig(t)

	cmd := NewRootCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"status", "--config", cfgPath})

	err := cmd.Execute()
	require.NoError(t, err)
}

func TestPursueCommandAchievesSimpleGoal(t *testing.T) {
	cfgPath := writeTestConfig(t)

	cmd := NewRootCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"pursue", "analyze the quarterly numbers", "--config", cfgPath})

	err := cmd.Execute()
	require.NoError(t, err)
}

func TestBuildEngineBadConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("log_level: [broken"), 0o644))

	cmd := NewRootCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"status", "--config", cfgPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "config"))
}
