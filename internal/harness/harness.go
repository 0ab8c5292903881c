package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/qcmask/internal/classify"
	"github.com/roach88/qcmask/internal/ingest"
	"github.com/roach88/qcmask/internal/qc"
	"github.com/roach88/qcmask/internal/store"
	"github.com/roach88/qcmask/internal/testutil"
)

// Harness is the scenario execution environment.
type Harness struct {
	store   *store.Store
	service *ingest.Service
	ids     *testutil.SequentialIDs
	clock   *testutil.DeterministicClock
	channel qc.Channel
	logger  *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
//  1. Create fresh in-memory database
//  2. Seed the scenario's segments
//  3. Ingest records in order
//  4. Derive masks if the scenario has a derive block
//  5. Evaluate assertions
//
// A record that fails validation is a scenario outcome, not a Run error.
// Run fails only when the scenario cannot be executed at all.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.OpenMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	channel, ok := qc.ParseChannelName(scenario.Channel)
	if !ok {
		return nil, fmt.Errorf("invalid channel %q", scenario.Channel)
	}

	ids := testutil.NewSequentialIDs()
	clock := testutil.NewFrozenClock(testutil.Epoch)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	opts := []ingest.Option{ingest.WithLogger(logger)}
	if scenario.MinimumGap != "" {
		gap, err := time.ParseDuration(scenario.MinimumGap)
		if err != nil {
			return nil, fmt.Errorf("minimum_gap: %w", err)
		}
		opts = append(opts, ingest.WithMinimumGap(gap))
	}

	h := &Harness{
		store:   st,
		service: ingest.New(st, ids, clock, opts...),
		ids:     ids,
		clock:   clock,
		channel: channel,
		logger:  logger,
	}

	ctx := context.Background()
	result := NewResult()

	if err := h.seed(ctx, scenario.Segments); err != nil {
		return nil, fmt.Errorf("failed to seed segments: %w", err)
	}
	if err := h.ingest(ctx, scenario.Records, result); err != nil {
		return nil, fmt.Errorf("failed to ingest records: %w", err)
	}

	segs, err := st.ListSegments(ctx, channel)
	if err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	result.Segments = segs

	if scenario.Derive != nil {
		masks, err := h.derive(ctx, scenario.Name, scenario.Derive)
		if err != nil {
			return nil, fmt.Errorf("failed to derive masks: %w", err)
		}
		result.Masks = masks
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

// seed stores one single-version segment per spec, effective at the
// clock's instant.
func (h *Harness) seed(ctx context.Context, specs []SegmentSpec) error {
	if len(specs) == 0 {
		return nil
	}
	segs := make([]qc.QcSegment, 0, len(specs))
	for i, spec := range specs {
		if err := classify.Validate(spec.Category, spec.Type); err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
		id := h.ids.NewID()
		seg, err := qc.NewSegment(id, h.channel, qc.QcSegmentVersion{
			ID: qc.VersionID{SegmentID: id, EffectiveAt: h.clock.Now()},
			Data: qc.VersionData{
				Channels:  []qc.Channel{h.channel},
				CreatedBy: "harness",
				Rationale: "seeded",
				Start:     spec.Start,
				End:       spec.End,
				Rejected:  spec.Category == qc.CategoryRejected,
				Category:  spec.Category,
				Type:      spec.Type,
			},
		})
		if err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
		segs = append(segs, seg)
	}
	return h.store.SaveSegments(ctx, segs)
}

// ingest applies the records in order, turning validation failures into
// error steps.
func (h *Harness) ingest(ctx context.Context, specs []RecordSpec, result *Result) error {
	for i, spec := range specs {
		rec := h.record(i, spec)
		report, err := h.service.Ingest(ctx, rec)
		if err != nil {
			code, ok := qc.CodeOf(err)
			if !ok {
				return fmt.Errorf("record %d: %w", rec.RecordID, err)
			}
			result.Steps = append(result.Steps, Step{
				RecordID: rec.RecordID,
				Outcome:  OutcomeError,
				Segments: []uuid.UUID{},
				Error:    string(code),
			})
			h.logger.Info("record rejected", "record_id", rec.RecordID, "code", code)
			continue
		}

		step := Step{
			RecordID: rec.RecordID,
			Outcome:  string(report.Outcome),
			Segments: make([]uuid.UUID, len(report.Segments)),
		}
		for j, seg := range report.Segments {
			step.Segments[j] = seg.ID
		}
		result.Steps = append(result.Steps, step)
	}
	return nil
}

// record fills in the scenario defaults for position i.
func (h *Harness) record(i int, spec RecordSpec) qc.ProviderRecord {
	rec := qc.ProviderRecord{
		RecordID:     spec.RecordID,
		Station:      spec.Station,
		Channel:      spec.Channel,
		Start:        spec.Start,
		End:          spec.End,
		SampleRateHz: spec.SampleRate,
		MaskTypeCode: spec.MaskType,
		Author:       spec.Author,
		LoadTime:     spec.LoadTime,
		StartSample:  spec.StartSample,
		EndSample:    spec.EndSample,
	}
	if rec.Station == "" {
		rec.Station = h.channel.Station
	}
	if rec.Channel == "" {
		rec.Channel = h.channel.Code
	}
	if rec.Author == "" {
		rec.Author = "harness"
	}
	if rec.LoadTime.IsZero() {
		rec.LoadTime = testutil.Epoch.Add(time.Duration(i+1) * time.Hour)
	}
	return rec
}

func (h *Harness) derive(ctx context.Context, name string, spec *DeriveSpec) ([]qc.ProcessingMask, error) {
	var threshold time.Duration
	if spec.MergeThreshold != "" {
		d, err := time.ParseDuration(spec.MergeThreshold)
		if err != nil {
			return nil, fmt.Errorf("merge_threshold: %w", err)
		}
		threshold = d
	}
	if spec.Name != "" {
		name = spec.Name
	}
	def := qc.NewProcessingMaskDefinition(name, threshold, qc.ProcessingOperation(spec.Operation), spec.Allowed...)
	return h.service.Derive(ctx, h.channel, spec.Start, spec.End, def, spec.Save)
}
