package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qcmask/internal/qc"
)

type ingestResponse struct {
	Status string       `json:"status"`
	Data   IngestResult `json:"data"`
	Error  *CLIError    `json:"error"`
}

func TestIngestCommand(t *testing.T) {
	dir := t.TempDir()
	records := writeFile(t, dir, "records.yaml", recordsYAML)
	db := filepath.Join(dir, "qc.db")

	out, err := execute(t, "ingest", "--db", db, records)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Ingested 3 record(s) into "+db)
	assert.Contains(t, out, "created")

	// A second run finds every record in the ledger.
	out, err = execute(t, "--format", "json", "ingest", "--db", db, records)
	require.NoError(t, err)

	var resp ingestResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, resp.Data.Records)
	assert.Equal(t, map[string]int{"skipped": 3}, resp.Data.Outcomes)
}

func TestIngestCommandJSONReports(t *testing.T) {
	dir := t.TempDir()
	records := writeFile(t, dir, "records.yaml", recordsYAML)

	out, err := execute(t, "--format", "json", "ingest", "--db", filepath.Join(dir, "qc.db"), records)
	require.NoError(t, err)

	var resp ingestResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Reports, 3)
	assert.Equal(t, map[string]int{"created": 3}, resp.Data.Outcomes)

	first := resp.Data.Reports[0]
	assert.Equal(t, int64(1), first.RecordID)
	assert.Equal(t, "ASAR.BHZ", first.Channel)
	require.Len(t, first.Segments, 1)
	require.Len(t, first.Segments[0].Data.Versions, 1)
	assert.Equal(t, qc.CategoryWaveform, first.Segments[0].Data.Versions[0].Data.Category)
}

func TestIngestCommandMetricsFile(t *testing.T) {
	dir := t.TempDir()
	records := writeFile(t, dir, "records.yaml", recordsYAML)
	prom := filepath.Join(dir, "qcmask.prom")

	_, err := execute(t, "ingest", "--db", filepath.Join(dir, "qc.db"), "--metrics-file", prom, records)
	require.NoError(t, err)

	data, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(data), `qcmask_reconcile_outcomes_total{outcome="created"} 3`)
}

func TestIngestCommandReplay(t *testing.T) {
	src := ingestFixture(t)
	dst := filepath.Join(t.TempDir(), "rebuilt.db")

	out, err := execute(t, "--format", "json", "ingest", "--db", dst, "--replay-from", src)
	require.NoError(t, err)

	var resp ingestResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, map[string]int{"created": 3}, resp.Data.Outcomes)
	assert.Equal(t, []int64{1, 2, 3}, []int64{
		resp.Data.Reports[0].RecordID, resp.Data.Reports[1].RecordID, resp.Data.Reports[2].RecordID,
	})
}

func TestIngestCommandSourceErrors(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "qc.db")
	records := writeFile(t, dir, "records.yaml", recordsYAML)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no source", []string{"ingest", "--db", db}, "a records file or --replay-from is required"},
		{"both sources", []string{"ingest", "--db", db, "--replay-from", db, records}, "not both"},
		{"missing file", []string{"ingest", "--db", db, filepath.Join(dir, "nope.yaml")}, "read records"},
		{"missing replay db", []string{"ingest", "--db", db, "--replay-from", filepath.Join(dir, "nope.db")}, "replay database"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error [E011]")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestIngestCommandMalformedRecords(t *testing.T) {
	dir := t.TempDir()
	records := writeFile(t, dir, "records.yaml", strings.Replace(recordsYAML,
		"end: 2024-03-01T00:05:00Z", "end: 2024-02-01T00:05:00Z", 1))

	out, err := execute(t, "ingest", "--db", filepath.Join(dir, "qc.db"), records)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "E011")
}

func TestIngestCommandRequiresDB(t *testing.T) {
	_, err := execute(t, "ingest", "records.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "db" not set`)
}
