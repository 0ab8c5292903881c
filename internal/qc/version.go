package qc

import (
	"time"

	"github.com/google/uuid"

	"github.com/roach88/qcmask/internal/interval"
)

// Version is a sealed interface over the two forms of a segment version:
// VersionRef (identity only) and QcSegmentVersion (identity plus data).
type Version interface {
	VersionID() VersionID
	version() // sealed
}

// VersionID identifies one version of one segment.
type VersionID struct {
	SegmentID   uuid.UUID `json:"segment_id"`
	EffectiveAt time.Time `json:"effective_at"`
}

// VersionRef is a version known only by identity.
type VersionRef struct {
	ID VersionID `json:"id"`
}

func (r VersionRef) VersionID() VersionID { return r.ID }
func (VersionRef) version()               {}

// QcSegmentVersion is one immutable revision of a segment's attributes.
type QcSegmentVersion struct {
	ID   VersionID   `json:"id"`
	Data VersionData `json:"data"`
}

func (v QcSegmentVersion) VersionID() VersionID { return v.ID }
func (QcSegmentVersion) version()               {}

// Ref drops the version's data.
func (v QcSegmentVersion) Ref() VersionRef {
	return VersionRef{ID: v.ID}
}

// VersionData holds the attributes of a segment version.
type VersionData struct {
	Channels  []Channel     `json:"channels"`
	Waveforms []WaveformRef `json:"waveforms,omitempty"`
	CreatedBy string        `json:"created_by"`
	Rationale string        `json:"rationale"`
	Start     time.Time     `json:"start"`
	End       time.Time     `json:"end"`
	Rejected  bool          `json:"rejected"`
	Category  Category      `json:"category"`
	Type      Type          `json:"type,omitempty"`
}

// Range returns [Start, End).
func (d VersionData) Range() interval.Interval {
	return interval.New(d.Start, d.End)
}

// Classification returns the version's (category, type) pair.
func (d VersionData) Classification() Classification {
	return Classification{Category: d.Category, Type: d.Type}
}

// ChannelNames returns the distinct canonical names of the version's channels,
// in first-seen order.
func (d VersionData) ChannelNames() []string {
	seen := make(map[string]bool, len(d.Channels))
	names := make([]string, 0, len(d.Channels))
	for _, ch := range d.Channels {
		name := ch.Name()
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// WaveformRef points at the stretch of source waveform a version was derived from.
type WaveformRef struct {
	ChannelName  string    `json:"channel_name"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	SampleRateHz float64   `json:"sample_rate"`
	StartSample  int64     `json:"start_sample"`
	EndSample    int64     `json:"end_sample"`
	RecordID     int64     `json:"record_id"`
}
