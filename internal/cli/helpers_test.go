package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const fkDefs = `
package defs

definition: fk_spectra: {
	operation:       "FK_SPECTRA"
	merge_threshold: "1m"
	allowed: [{category: "WAVEFORM", type: "FLAT"}, {category: "WAVEFORM", type: "SPIKE"}]
}

definition: rotation: {
	operation: "ROTATION"
	allowed: [{category: "LONG_TERM"}]
}
`

// Two flat stretches 10 minutes apart, then a spike on another channel.
const recordsYAML = `
records:
  - record_id: 1
    station: ASAR
    channel: BHZ
    start: 2024-03-01T00:00:00Z
    end: 2024-03-01T00:05:00Z
    sample_rate: 40
    mask_type: 2
    author: analyst
    load_time: 2024-03-02T00:00:00Z
    start_sample: 0
    end_sample: 12000
  - record_id: 2
    station: ASAR
    channel: BHZ
    start: 2024-03-01T00:15:00Z
    end: 2024-03-01T00:20:00Z
    sample_rate: 40
    mask_type: 2
    author: analyst
    load_time: 2024-03-02T01:00:00Z
    start_sample: 36000
    end_sample: 48000
  - record_id: 3
    station: ASAR
    channel: SHZ
    start: 2024-03-01T00:00:00Z
    end: 2024-03-01T00:01:00Z
    sample_rate: 40
    mask_type: 1
    author: analyst
    load_time: 2024-03-02T02:00:00Z
    start_sample: 0
    end_sample: 2400
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs a fresh root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// ingestFixture ingests recordsYAML into a new database and returns its path.
func ingestFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	records := writeFile(t, dir, "records.yaml", recordsYAML)
	db := filepath.Join(dir, "qc.db")
	_, err := execute(t, "ingest", "--db", db, records)
	require.NoError(t, err)
	return db
}

func newTestCmd(run func(*RootOptions) *cobra.Command, format string) (*cobra.Command, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	cmd := run(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	return cmd, buf
}
