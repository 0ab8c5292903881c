package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type segmentsResponse struct {
	Status string         `json:"status"`
	Data   SegmentsResult `json:"data"`
}

func TestSegmentsCommand(t *testing.T) {
	db := ingestFixture(t)

	out, err := execute(t, "segments", "--db", db, "--channel", "ASAR.BHZ")
	require.NoError(t, err)
	assert.Contains(t, out, "ASAR.BHZ: 2 segment(s)")
	assert.Contains(t, out, "WAVEFORM/FLAT")
	assert.Contains(t, out, "provider record 1")
	assert.NotContains(t, out, "mask(s)")
}

func TestSegmentsCommandJSON(t *testing.T) {
	db := ingestFixture(t)

	out, err := execute(t, "--format", "json", "segments", "--db", db, "--channel", "ASAR.SHZ")
	require.NoError(t, err)

	var resp segmentsResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ASAR.SHZ", resp.Data.Channel)
	require.Len(t, resp.Data.Segments, 1)
	assert.Len(t, resp.Data.Segments[0].Data.Versions, 1)
	assert.Nil(t, resp.Data.Masks)
}

func TestSegmentsCommandEmptyChannel(t *testing.T) {
	db := ingestFixture(t)

	out, err := execute(t, "--format", "json", "segments", "--db", db, "--channel", "FINES.BHZ")
	require.NoError(t, err)

	var resp segmentsResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Empty(t, resp.Data.Segments)
	assert.NotNil(t, resp.Data.Segments)
}

func TestSegmentsCommandMissingDB(t *testing.T) {
	_, err := execute(t, "segments", "--db", filepath.Join(t.TempDir(), "none.db"), "--channel", "ASAR.BHZ")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "cannot open database")
}
