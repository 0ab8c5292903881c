package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	files, err := FindScenarios("testdata", "")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)
			require.Equal(t, name, scenario.Name, "scenario name must match its file")
			require.NoError(t, RunWithGolden(t, scenario))
		})
	}
}

func TestSnapshot_Deterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "gap_fill_and_mask.yaml"))
	require.NoError(t, err)

	var snapshots []string
	for n := 0; n < 3; n++ {
		result, err := Run(scenario)
		require.NoError(t, err)
		data, err := Snapshot(scenario.Name, result)
		require.NoError(t, err)
		snapshots = append(snapshots, string(data))
	}
	assert.Equal(t, snapshots[0], snapshots[1])
	assert.Equal(t, snapshots[0], snapshots[2])
}

func TestSnapshot_OmitsMasksWithoutDerive(t *testing.T) {
	result, err := Run(mustParse(t, minimalScenario))
	require.NoError(t, err)
	data, err := Snapshot("minimal", result)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"masks"`)
	assert.True(t, strings.HasPrefix(string(data), `{"name":"minimal","segments":[`))
}
