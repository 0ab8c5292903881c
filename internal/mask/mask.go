// Package mask derives processing masks from one channel's QC segment
// versions.
//
// Derive validates its whole input before producing anything, filters the
// versions by a ProcessingMaskDefinition's allowed (category, type) pairs,
// then greedily groups them in time order: a version joins the running group
// while its start is no later than the group's running maximum end plus the
// merge threshold. Each group becomes one ProcessingMask.
package mask

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/roach88/qcmask/internal/classify"
	"github.com/roach88/qcmask/internal/qc"
)

// Deriver turns segment versions into processing masks.
//
// Thread-safety: a Deriver holds no mutable state of its own and is safe for
// concurrent use as long as its IDGenerator and Clock are.
type Deriver struct {
	ids   qc.IDGenerator
	clock qc.Clock
}

// New creates a Deriver that draws mask ids from ids and stamps every mask
// of one Derive call with a single clock.Now() reading.
func New(ids qc.IDGenerator, clock qc.Clock) *Deriver {
	return &Deriver{ids: ids, clock: clock}
}

// ValidateDefinition checks def's threshold, operation and allowed pairs.
func ValidateDefinition(def qc.ProcessingMaskDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	for _, c := range def.AllowedList() {
		if err := classify.Validate(c.Category, c.Type); err != nil {
			return qc.NewValidationError(qc.ErrCodeInvalidDefinition, "allowed",
				"definition %q: allowed pair %s: %v", def.Name, c, err)
		}
	}
	return nil
}

// Derive groups versions into masks for def.Operation.
//
// All versions must be populated QcSegmentVersions with a channel and a
// category, and together they must name exactly one channel. An empty input,
// or one whose versions are all filtered out, yields no masks and no error.
func (d *Deriver) Derive(versions []qc.Version, def qc.ProcessingMaskDefinition) ([]qc.ProcessingMask, error) {
	if err := ValidateDefinition(def); err != nil {
		return nil, err
	}

	populated, err := populate(versions)
	if err != nil {
		return nil, err
	}
	if len(populated) == 0 {
		return []qc.ProcessingMask{}, nil
	}

	channel, err := singleChannel(populated)
	if err != nil {
		return nil, err
	}

	kept := make([]qc.QcSegmentVersion, 0, len(populated))
	for _, v := range populated {
		if def.Allows(v.Data.Classification()) {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return []qc.ProcessingMask{}, nil
	}

	slices.SortFunc(kept, compareVersions)

	now := d.clock.Now()
	groups := group(kept, def)
	masks := make([]qc.ProcessingMask, 0, len(groups))
	for _, g := range groups {
		start, end := g[0].Data.Start, g[0].Data.End
		for _, v := range g[1:] {
			start = minTime(start, v.Data.Start)
			end = maxTime(end, v.Data.End)
		}
		m, err := qc.NewProcessingMask(d.ids.NewID(), channel, now, start, end, def.Operation, g)
		if err != nil {
			return nil, fmt.Errorf("build mask on %s: %w", channel.Name(), err)
		}
		masks = append(masks, m)
	}
	return masks, nil
}

func populate(versions []qc.Version) ([]qc.QcSegmentVersion, error) {
	out := make([]qc.QcSegmentVersion, 0, len(versions))
	for i, v := range versions {
		full, ok := v.(qc.QcSegmentVersion)
		if !ok {
			id := v.VersionID()
			return nil, qc.NewValidationError(qc.ErrCodeMissingData, "versions",
				"version %d (%s@%s) has no data", i, id.SegmentID, id.EffectiveAt)
		}
		if len(full.Data.Channels) == 0 {
			return nil, qc.NewValidationError(qc.ErrCodeMissingData, "channels",
				"version %d (%s@%s) has no channel", i, full.ID.SegmentID, full.ID.EffectiveAt)
		}
		if full.Data.Category == qc.CategoryNone {
			return nil, qc.NewValidationError(qc.ErrCodeMissingCategory, "category",
				"version %d (%s@%s) has no category", i, full.ID.SegmentID, full.ID.EffectiveAt)
		}
		out = append(out, full)
	}
	return out, nil
}

// singleChannel returns the one channel all versions name. The channel value
// is taken from the first version; equality is by canonical name.
func singleChannel(versions []qc.QcSegmentVersion) (qc.Channel, error) {
	var channel qc.Channel
	names := make(map[string]bool)
	for _, v := range versions {
		for _, ch := range v.Data.Channels {
			if len(names) == 0 {
				channel = ch
			}
			names[ch.Name()] = true
		}
	}
	if len(names) != 1 {
		found := make([]string, 0, len(names))
		for n := range names {
			found = append(found, n)
		}
		slices.Sort(found)
		return qc.Channel{}, qc.NewValidationError(qc.ErrCodeChannelCountMismatch, "channels",
			"expected exactly one channel, found %d: %v", len(found), found)
	}
	return channel, nil
}

func group(sorted []qc.QcSegmentVersion, def qc.ProcessingMaskDefinition) [][]qc.QcSegmentVersion {
	var groups [][]qc.QcSegmentVersion
	current := []qc.QcSegmentVersion{sorted[0]}
	runningEnd := sorted[0].Data.End

	for _, v := range sorted[1:] {
		if !v.Data.Start.After(runningEnd.Add(def.MergeThreshold)) {
			current = append(current, v)
			runningEnd = maxTime(runningEnd, v.Data.End)
			continue
		}
		groups = append(groups, current)
		current = []qc.QcSegmentVersion{v}
		runningEnd = v.Data.End
	}
	return append(groups, current)
}

// compareVersions orders by start, then end, then segment id, then effective
// time, so equal inputs always group the same way.
func compareVersions(a, b qc.QcSegmentVersion) int {
	if c := a.Data.Start.Compare(b.Data.Start); c != 0 {
		return c
	}
	if c := a.Data.End.Compare(b.Data.End); c != 0 {
		return c
	}
	if c := cmp.Compare(a.ID.SegmentID.String(), b.ID.SegmentID.String()); c != 0 {
		return c
	}
	return a.ID.EffectiveAt.Compare(b.ID.EffectiveAt)
}

func minTime(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}

func maxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
