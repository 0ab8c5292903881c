package qc

import (
	"slices"

	"github.com/google/uuid"
)

// Segment is a sealed interface over the two forms of a QC segment:
// SegmentRef (identity only) and QcSegment (identity plus data).
type Segment interface {
	SegmentID() uuid.UUID
	segment() // sealed
}

// SegmentRef is a segment known only by identity.
type SegmentRef struct {
	ID uuid.UUID `json:"id"`
}

func (r SegmentRef) SegmentID() uuid.UUID { return r.ID }
func (SegmentRef) segment()               {}

// QcSegment is a time-bounded QC annotation over one channel together with
// its version history.
type QcSegment struct {
	ID   uuid.UUID   `json:"id"`
	Data SegmentData `json:"data"`
}

func (s QcSegment) SegmentID() uuid.UUID { return s.ID }
func (QcSegment) segment()               {}

// SegmentData holds a segment's channel and its versions, ascending by
// effective time.
type SegmentData struct {
	Channel  Channel            `json:"channel"`
	Versions []QcSegmentVersion `json:"versions"`
}

// NewSegment builds a segment from its versions. The versions are sorted by
// effective time; each must belong to id, name the segment's channel, have a
// distinct effective time and satisfy Start <= End.
func NewSegment(id uuid.UUID, channel Channel, versions ...QcSegmentVersion) (QcSegment, error) {
	if len(versions) == 0 {
		return QcSegment{}, NewValidationError(ErrCodeMissingData, "versions", "segment %s has no versions", id)
	}

	sorted := slices.Clone(versions)
	slices.SortStableFunc(sorted, func(a, b QcSegmentVersion) int {
		return a.ID.EffectiveAt.Compare(b.ID.EffectiveAt)
	})

	for i, v := range sorted {
		if err := checkVersion(id, channel, v); err != nil {
			return QcSegment{}, err
		}
		if i > 0 && !v.ID.EffectiveAt.After(sorted[i-1].ID.EffectiveAt) {
			return QcSegment{}, NewValidationError(ErrCodeInvalidRange, "effective_at",
				"segment %s has two versions effective at %s", id, v.ID.EffectiveAt)
		}
	}

	return QcSegment{
		ID:   id,
		Data: SegmentData{Channel: channel, Versions: sorted},
	}, nil
}

func checkVersion(id uuid.UUID, channel Channel, v QcSegmentVersion) error {
	if v.ID.SegmentID != id {
		return NewValidationError(ErrCodeMissingData, "segment_id",
			"version belongs to segment %s, not %s", v.ID.SegmentID, id)
	}
	if v.Data.End.Before(v.Data.Start) {
		return NewValidationError(ErrCodeInvalidRange, "end",
			"version %s@%s ends before it starts", id, v.ID.EffectiveAt)
	}
	names := v.Data.ChannelNames()
	if len(names) != 1 || names[0] != channel.Name() {
		return NewValidationError(ErrCodeChannelMismatch, "channels",
			"version %s@%s names channels %v, segment channel is %s", id, v.ID.EffectiveAt, names, channel.Name())
	}
	return nil
}

// Ref drops the segment's data.
func (s QcSegment) Ref() SegmentRef {
	return SegmentRef{ID: s.ID}
}

// Latest returns the version with the greatest effective time.
// ok is false when the segment has no versions.
func (s QcSegment) Latest() (latest QcSegmentVersion, ok bool) {
	for i, v := range s.Data.Versions {
		if i == 0 || v.ID.EffectiveAt.After(latest.ID.EffectiveAt) {
			latest = v
			ok = true
		}
	}
	return latest, ok
}

// WithVersion returns a copy of s with v appended to its history. v must be
// effective strictly after the current latest version. s is not modified.
func (s QcSegment) WithVersion(v QcSegmentVersion) (QcSegment, error) {
	if err := checkVersion(s.ID, s.Data.Channel, v); err != nil {
		return QcSegment{}, err
	}
	if latest, ok := s.Latest(); ok && !v.ID.EffectiveAt.After(latest.ID.EffectiveAt) {
		return QcSegment{}, NewValidationError(ErrCodeInvalidRange, "effective_at",
			"version effective at %s does not follow latest %s", v.ID.EffectiveAt, latest.ID.EffectiveAt)
	}

	versions := make([]QcSegmentVersion, 0, len(s.Data.Versions)+1)
	versions = append(versions, s.Data.Versions...)
	versions = append(versions, v)
	return QcSegment{
		ID:   s.ID,
		Data: SegmentData{Channel: s.Data.Channel, Versions: versions},
	}, nil
}
