package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/qcmask/internal/qc"
	"github.com/roach88/qcmask/internal/testutil"
)

var (
	base = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bhz  = qc.NewChannel("ASAR", "BHZ")
	shz  = qc.NewChannel("ASAR", "SHZ")
)

func at(min int) time.Time {
	return base.Add(time.Duration(min) * time.Minute)
}

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestVersion creates a WAVEFORM/SPIKE version on ch.
func createTestVersion(id uuid.UUID, ch qc.Channel, effective time.Time, from, to int) qc.QcSegmentVersion {
	return qc.QcSegmentVersion{
		ID: qc.VersionID{SegmentID: id, EffectiveAt: effective},
		Data: qc.VersionData{
			Channels: []qc.Channel{ch},
			Waveforms: []qc.WaveformRef{{
				ChannelName:  ch.Name(),
				Start:        at(from),
				End:          at(to),
				SampleRateHz: 40,
				StartSample:  0,
				EndSample:    int64((to - from) * 60 * 40),
				RecordID:     7,
			}},
			CreatedBy: "analyst",
			Rationale: "provider record 7",
			Start:     at(from),
			End:       at(to),
			Category:  qc.CategoryWaveform,
			Type:      qc.TypeSpike,
		},
	}
}

// createTestSegment creates a one-version segment with id SeqID(n).
func createTestSegment(t *testing.T, n uint64, ch qc.Channel, from, to int) qc.QcSegment {
	t.Helper()
	id := testutil.SeqID(n)
	seg, err := qc.NewSegment(id, ch, createTestVersion(id, ch, base, from, to))
	if err != nil {
		t.Fatalf("NewSegment() failed: %v", err)
	}
	return seg
}

func createTestRecord(id int64, ch qc.Channel, from, to int) qc.ProviderRecord {
	return qc.ProviderRecord{
		RecordID:     id,
		Station:      ch.Station,
		Channel:      ch.Code,
		Start:        at(from),
		End:          at(to),
		SampleRateHz: 40,
		MaskTypeCode: 1,
		Author:       "analyst",
		LoadTime:     base.Add(time.Duration(id) * time.Hour),
		StartSample:  0,
		EndSample:    int64((to - from) * 60 * 40),
	}
}
