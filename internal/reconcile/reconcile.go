package reconcile

import (
	"fmt"
	"math"
	"time"

	"github.com/roach88/qcmask/internal/classify"
	"github.com/roach88/qcmask/internal/interval"
	"github.com/roach88/qcmask/internal/qc"
)

// DefaultMinimumGap is the shortest leftover interval worth its own segment.
// Intervals of exactly this length are dropped.
const DefaultMinimumGap = time.Second

// Outcome names which branch of the algorithm produced a Result.
type Outcome string

const (
	Created   Outcome = "created"
	Unchanged Outcome = "unchanged"
	Updated   Outcome = "updated"
	GapFilled Outcome = "gap_filled"
)

// Result is the set of segments affected by one reconciliation.
//
// Created, Unchanged and Updated carry exactly one segment. GapFilled carries
// zero or more new segments; zero means the record is already covered by
// same-classification segments up to gaps no longer than MinimumGap.
type Result struct {
	Outcome  Outcome
	Segments []qc.QcSegment
}

// Reconciler applies provider records to existing segments.
//
// Thread-safety: a Reconciler holds no mutable state of its own and is safe
// for concurrent use as long as its IDGenerator is.
type Reconciler struct {
	ids        qc.IDGenerator
	minimumGap time.Duration
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithMinimumGap overrides DefaultMinimumGap.
func WithMinimumGap(d time.Duration) Option {
	return func(r *Reconciler) {
		r.minimumGap = d
	}
}

// New creates a Reconciler that draws new segment ids from ids.
func New(ids qc.IDGenerator, opts ...Option) *Reconciler {
	r := &Reconciler{
		ids:        ids,
		minimumGap: DefaultMinimumGap,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MinimumGap returns the configured gap threshold.
func (r *Reconciler) MinimumGap() time.Duration {
	return r.minimumGap
}

type overlap struct {
	segment qc.QcSegment
	latest  qc.QcSegmentVersion
}

// Reconcile merges rec into existing. Segments on other channels, segments
// with no versions and segments whose latest version does not intersect the
// record are ignored. existing is never modified.
func (r *Reconciler) Reconcile(existing []qc.QcSegment, rec qc.ProviderRecord) (Result, error) {
	if err := rec.Validate(); err != nil {
		return Result{}, err
	}

	category, typ := classify.Classify(rec.MaskTypeCode)
	if err := classify.Validate(category, typ); err != nil {
		return Result{}, fmt.Errorf("record %d: %w", rec.RecordID, err)
	}
	class := qc.Classification{Category: category, Type: typ}

	overlaps := findOverlaps(existing, rec)
	if len(overlaps) == 0 {
		seg, err := r.newSegment(rec, class, rec.Range())
		if err != nil {
			return Result{}, err
		}
		return Result{Outcome: Created, Segments: []qc.QcSegment{seg}}, nil
	}

	recRange := rec.Range()
	working := interval.Of(recRange)
	var same []overlap
	enclosed := 0

	for _, o := range overlaps {
		if o.latest.Data.Classification() != class {
			continue
		}
		vr := o.latest.Data.Range()
		if vr.Equal(recRange) {
			return Result{Outcome: Unchanged, Segments: []qc.QcSegment{o.segment}}, nil
		}
		same = append(same, o)
		if recRange.Encloses(vr) {
			enclosed++
		}
		working = working.Subtract(vr)
	}

	switch {
	case len(same) == 0:
		seg, err := r.newSegment(rec, class, recRange)
		if err != nil {
			return Result{}, err
		}
		return Result{Outcome: Created, Segments: []qc.QcSegment{seg}}, nil

	case len(same) == 1 && enclosed == 1:
		seg, err := r.update(same[0], rec, class)
		if err != nil {
			return Result{}, err
		}
		return Result{Outcome: Updated, Segments: []qc.QcSegment{seg}}, nil
	}

	gaps := working.Longer(r.minimumGap).Intervals()
	segs := make([]qc.QcSegment, 0, len(gaps))
	for _, gap := range gaps {
		seg, err := r.newSegment(rec, class, gap)
		if err != nil {
			return Result{}, err
		}
		segs = append(segs, seg)
	}
	return Result{Outcome: GapFilled, Segments: segs}, nil
}

func findOverlaps(existing []qc.QcSegment, rec qc.ProviderRecord) []overlap {
	key := rec.Key().Name()
	recRange := rec.Range()

	var out []overlap
	for _, seg := range existing {
		if seg.Data.Channel.Name() != key {
			continue
		}
		latest, ok := seg.Latest()
		if !ok {
			continue
		}
		// An empty record range meets only an identical empty range.
		if lr := latest.Data.Range(); recRange.Overlaps(lr) || recRange.Equal(lr) {
			out = append(out, overlap{segment: seg, latest: latest})
		}
	}
	return out
}

func (r *Reconciler) newSegment(rec qc.ProviderRecord, class qc.Classification, span interval.Interval) (qc.QcSegment, error) {
	id := r.ids.NewID()
	rationale := rationaleFor(rec)
	if !span.Equal(rec.Range()) {
		rationale += " (gap fill)"
	}
	v := qc.QcSegmentVersion{
		ID:   qc.VersionID{SegmentID: id, EffectiveAt: rec.LoadTime},
		Data: versionData(rec, class, span, rationale),
	}
	seg, err := qc.NewSegment(id, rec.Key(), v)
	if err != nil {
		return qc.QcSegment{}, fmt.Errorf("record %d: %w", rec.RecordID, err)
	}
	return seg, nil
}

func (r *Reconciler) update(o overlap, rec qc.ProviderRecord, class qc.Classification) (qc.QcSegment, error) {
	effective := rec.LoadTime
	if !effective.After(o.latest.ID.EffectiveAt) {
		effective = o.latest.ID.EffectiveAt.Add(time.Nanosecond)
	}
	v := qc.QcSegmentVersion{
		ID:   qc.VersionID{SegmentID: o.segment.ID, EffectiveAt: effective},
		Data: versionData(rec, class, rec.Range(), rationaleFor(rec)),
	}
	seg, err := o.segment.WithVersion(v)
	if err != nil {
		return qc.QcSegment{}, fmt.Errorf("record %d: update segment %s: %w", rec.RecordID, o.segment.ID, err)
	}
	return seg, nil
}

func rationaleFor(rec qc.ProviderRecord) string {
	return fmt.Sprintf("provider record %d", rec.RecordID)
}

func versionData(rec qc.ProviderRecord, class qc.Classification, span interval.Interval, rationale string) qc.VersionData {
	ch := rec.Key()
	return qc.VersionData{
		Channels:  []qc.Channel{ch},
		Waveforms: []qc.WaveformRef{waveformRef(rec, ch, span)},
		CreatedBy: rec.Author,
		Rationale: rationale,
		Start:     span.Start,
		End:       span.End,
		Rejected:  class.Category == qc.CategoryRejected,
		Category:  class.Category,
		Type:      class.Type,
	}
}

// waveformRef crops the record's waveform to span. Sample indices are
// recomputed from the sample rate and clamped to the record's own indices;
// with no sample rate the record's indices are kept.
func waveformRef(rec qc.ProviderRecord, ch qc.Channel, span interval.Interval) qc.WaveformRef {
	ref := qc.WaveformRef{
		ChannelName:  ch.Name(),
		Start:        span.Start,
		End:          span.End,
		SampleRateHz: rec.SampleRateHz,
		StartSample:  rec.StartSample,
		EndSample:    rec.EndSample,
		RecordID:     rec.RecordID,
	}
	if rec.SampleRateHz <= 0 || span.Equal(rec.Range()) {
		return ref
	}
	ref.StartSample = sampleAt(rec, span.Start)
	ref.EndSample = sampleAt(rec, span.End)
	return ref
}

func sampleAt(rec qc.ProviderRecord, t time.Time) int64 {
	offset := int64(math.Round(t.Sub(rec.Start).Seconds() * rec.SampleRateHz))
	idx := rec.StartSample + offset
	return min(max(idx, rec.StartSample), rec.EndSample)
}
