package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var harnessScenarios = filepath.Join("..", "harness", "testdata")

const flatScenario = `
name: single_flat
description: "One flat record on an empty channel"
channel: ASAR.BHZ
records:
  - record_id: 1
    start: 2024-03-01T00:00:00Z
    end: 2024-03-01T00:05:00Z
    mask_type: 2
assertions:
  - type: outcome
    record: 1
    outcome: created
`

func TestTestCommandMissingArgs(t *testing.T) {
	cmd, _ := newTestCmd(NewTestCommand, "text")
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	cmd, _ := newTestCmd(NewTestCommand, "text")
	cmd.SetArgs([]string{"/nonexistent/scenarios"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	cmd, buf := newTestCmd(NewTestCommand, "text")
	cmd.SetArgs([]string{t.TempDir()})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "No scenarios found.")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	cmd, buf := newTestCmd(NewTestCommand, "json")
	cmd.SetArgs([]string{t.TempDir()})
	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Data.Total)
	assert.Empty(t, resp.Data.Scenarios)
}

func TestTestCommandRunsScenariosAgainstGolden(t *testing.T) {
	cmd, buf := newTestCmd(NewTestCommand, "text")
	cmd.SetArgs([]string{harnessScenarios})

	require.NoError(t, cmd.Execute(), buf.String())
	assert.Contains(t, buf.String(), "✓ gap_fill_and_mask")
	assert.Contains(t, buf.String(), "Test Summary: 3 passed, 0 failed, 3 total")
	assert.Contains(t, buf.String(), "✓ All scenarios passed")
}

func TestTestCommandFilter(t *testing.T) {
	cmd, buf := newTestCmd(NewTestCommand, "json")
	cmd.SetArgs([]string{harnessScenarios, "--filter", "gap_*"})
	require.NoError(t, cmd.Execute())

	var resp struct {
		Data TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "gap_fill_and_mask", resp.Data.Scenarios[0].Name)
	assert.True(t, resp.Data.Scenarios[0].Pass)
}

func TestTestCommandUpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "single_flat.yaml", flatScenario)

	cmd, buf := newTestCmd(NewTestCommand, "text")
	cmd.SetArgs([]string{dir, "--update"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "✓ single_flat (golden updated)")

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "single_flat.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"name":"single_flat"`)

	cmd, _ = newTestCmd(NewTestCommand, "text")
	cmd.SetArgs([]string{dir})
	require.NoError(t, cmd.Execute())

	writeFile(t, dir, "golden/single_flat.golden", `{"name":"single_flat"}`)
	cmd, buf = newTestCmd(NewTestCommand, "text")
	cmd.SetArgs([]string{dir})
	err = cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "✗ single_flat")
	assert.Contains(t, buf.String(), "does not match golden file")
}

func TestTestCommandFailingAssertionJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "wrong.yaml", `
name: wrong
description: "Expects an update where a create happens"
channel: ASAR.BHZ
records:
  - record_id: 1
    start: 2024-03-01T00:00:00Z
    end: 2024-03-01T00:05:00Z
    mask_type: 2
assertions:
  - type: outcome
    record: 1
    outcome: updated
`)

	cmd, buf := newTestCmd(NewTestCommand, "json")
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Scenarios[0].Errors, 1)
	assert.Contains(t, resp.Data.Scenarios[0].Errors[0], "outcome")
}

func TestTestCommandBadScenarioFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.yaml", "name: [unterminated")

	cmd, buf := newTestCmd(NewTestCommand, "text")
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, buf.String(), "✗ broken.yaml")
	assert.Contains(t, buf.String(), "failed to load scenario")
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("scenarios", "golden", "gap_fill.golden"),
		goldenFilePath(filepath.Join("scenarios", "gap_fill.yaml")))
	assert.Equal(t,
		filepath.Join("golden", "x.golden"),
		goldenFilePath("x.yml"))
}
