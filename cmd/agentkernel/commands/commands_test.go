package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/agentkernel/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with fresh flag values and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	configPath, logLevel, logFormat = "", "", ""
	runGoal, runWorkingPath, runMaxIterations, runOutput = "", "", 0, "text"
	reactWatch, reactDuration = "", 0
	proactiveDir, proactiveDuration = "", 0
	teamOutput, teamConcurrency = "text", 0

	var out, errOut bytes.Buffer

	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)

	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()

	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "agentkernel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	return path
}

func TestRootCommand_ShowsHelpWhenNoSubcommand(t *testing.T) {
	out, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "agentkernel")
}

func TestRootCommand_RejectsUnknownFlags(t *testing.T) {
	_, err := execute(t, "--unknown-flag", "value")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "agentkernel dev")
}

func TestRunCommand_Offline(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "run", "--goal", "build a CLI", "--dir", dir, "--log-level", "error")
	require.NoError(t, err)

	assert.Contains(t, out, "status: completed")
	assert.Contains(t, out, "completed: 5, failed: 0, pending: 0")
	assert.Contains(t, out, "[x] task_1")
}

func TestRunCommand_GoalFromConfig(t *testing.T) {
	cfg := writeConfig(t, "agent:\n  goal: write docs\n  working_path: "+t.TempDir()+"\nlog:\n  level: error\n")

	out, err := execute(t, "run", "-c", cfg, "-o", "json")
	require.NoError(t, err)

	var sn struct {
		Goal   string `json:"goal"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &sn))
	assert.Equal(t, "write docs", sn.Goal)
	assert.Equal(t, "completed", sn.Status)
}

func TestRunCommand_RequiresGoal(t *testing.T) {
	_, err := execute(t, "run", "--dir", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "goal is required")
}

func TestRunCommand_RejectsOutputFormat(t *testing.T) {
	_, err := execute(t, "run", "--goal", "x", "-o", "xml")
	assert.Error(t, err)
}

func TestRunCommand_InvalidConfig(t *testing.T) {
	cfg := writeConfig(t, "model:\n  provider: gemini\n")

	_, err := execute(t, "run", "-c", cfg, "--goal", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model.provider")
}

func TestTeamCommand(t *testing.T) {
	out, err := execute(t, "team", "review a.go", "review b.go", "--log-level", "error")
	require.NoError(t, err)

	assert.Contains(t, out, "== review a.go (score 75)")
	assert.Contains(t, out, "== review b.go (score 75)")
}

func TestTeamCommand_JSON(t *testing.T) {
	out, err := execute(t, "team", "-o", "json", "review a.go", "--log-level", "error")
	require.NoError(t, err)

	var reports []bus.Report
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, "review a.go", reports[0].Task)
}

func TestTeamCommand_TasksFromConfig(t *testing.T) {
	cfg := writeConfig(t, "team:\n  tasks:\n    - review main.go\nlog:\n  level: error\n")

	out, err := execute(t, "team", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "== review main.go")
}

func TestTeamCommand_RequiresTasks(t *testing.T) {
	_, err := execute(t, "team", "--log-level", "error")
	assert.Error(t, err)
}

func TestProactiveCommand_Duration(t *testing.T) {
	out, err := execute(t, "proactive", "--dir", t.TempDir(), "--duration", "200ms", "--log-level", "error")
	require.NoError(t, err)

	assert.Contains(t, out, "status: stopped")
	assert.Contains(t, out, "goal goal_quality:")
}

func TestReactCommand_Duration(t *testing.T) {
	_, err := execute(t, "react", "--watch", t.TempDir(), "--duration", "100ms", "--log-level", "error")
	assert.NoError(t, err)
}
