package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/qcmask/internal/classify"
	"github.com/roach88/qcmask/internal/mask"
	"github.com/roach88/qcmask/internal/metrics"
	"github.com/roach88/qcmask/internal/qc"
	"github.com/roach88/qcmask/internal/reconcile"
	"github.com/roach88/qcmask/internal/source"
	"github.com/roach88/qcmask/internal/store"
)

// Skipped is the outcome of a record that was already in the ledger.
const Skipped reconcile.Outcome = "skipped"

// Report describes what one Ingest call did.
type Report struct {
	RecordID int64             `json:"record_id"`
	Channel  string            `json:"channel"`
	Outcome  reconcile.Outcome `json:"outcome"`
	Segments []qc.QcSegment    `json:"segments"`

	// Unclassified is true when the record's mask type code is unknown and
	// the record was filed as UNPROCESSED.
	Unclassified bool `json:"unclassified,omitempty"`
}

// Service reconciles provider records into the store and derives masks.
//
// Thread-safety: Ingest and Derive are safe for concurrent use. Records on
// the same channel are applied one at a time.
type Service struct {
	store      *store.Store
	reconciler *reconcile.Reconciler
	deriver    *mask.Deriver
	locks      *keyedMutex
	metrics    *metrics.Metrics
	logger     *slog.Logger
	minGap     time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithMetrics sets the metric set updated by the service.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithMinimumGap overrides reconcile.DefaultMinimumGap.
func WithMinimumGap(d time.Duration) Option {
	return func(s *Service) {
		s.minGap = d
	}
}

// New creates a Service over st. ids supplies new segment and mask ids;
// clock stamps derived masks.
func New(st *store.Store, ids qc.IDGenerator, clock qc.Clock, opts ...Option) *Service {
	s := &Service{
		store:  st,
		locks:  newKeyedMutex(),
		logger: slog.Default(),
		minGap: reconcile.DefaultMinimumGap,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reconciler = reconcile.New(ids, reconcile.WithMinimumGap(s.minGap))
	s.deriver = mask.New(ids, clock)
	return s
}

// Ingest reconciles one provider record and persists the result.
//
// Validation and classification failures are returned unwrapped from the
// qc package so callers can test them with qc.HasCode.
func (s *Service) Ingest(ctx context.Context, rec qc.ProviderRecord) (Report, error) {
	if err := rec.Validate(); err != nil {
		return Report{}, err
	}
	key := rec.Key()
	report := Report{RecordID: rec.RecordID, Channel: key.Name()}

	unlock := s.locks.Lock(key.Name())
	defer unlock()

	seen, err := s.store.HasProviderRecord(ctx, rec.RecordID)
	if err != nil {
		return Report{}, fmt.Errorf("record %d: %w", rec.RecordID, err)
	}
	if seen {
		return s.skip(report), nil
	}

	began := time.Now()

	existing, err := s.store.LoadOverlapping(ctx, key, rec.Start, rec.End)
	if err != nil {
		return Report{}, fmt.Errorf("record %d: %w", rec.RecordID, err)
	}

	res, err := s.reconciler.Reconcile(existing, rec)
	if err != nil {
		return Report{}, err
	}

	inserted, err := s.store.SaveReconciliation(ctx, rec, res.Segments)
	if err != nil {
		return Report{}, fmt.Errorf("record %d: %w", rec.RecordID, err)
	}
	if !inserted {
		// Another writer on the same database ingested it first.
		return s.skip(report), nil
	}

	if !classify.IsKnownCode(rec.MaskTypeCode) {
		report.Unclassified = true
		s.metrics.RecordUnclassified()
		s.logger.Warn("unknown mask type code, filing as unprocessed",
			"record_id", rec.RecordID,
			"channel", report.Channel,
			"mask_type", rec.MaskTypeCode,
		)
	}
	report.Outcome = res.Outcome
	report.Segments = res.Segments
	s.metrics.RecordOutcome(string(res.Outcome), time.Since(began))

	s.logger.Info("record reconciled",
		"record_id", rec.RecordID,
		"channel", report.Channel,
		"outcome", res.Outcome,
		"segments", len(res.Segments),
	)
	for _, seg := range res.Segments {
		s.logger.Debug("segment written",
			"segment_id", seg.ID,
			"versions", len(seg.Data.Versions),
		)
	}

	return report, nil
}

func (s *Service) skip(report Report) Report {
	report.Outcome = Skipped
	report.Segments = []qc.QcSegment{}
	s.metrics.RecordSkipped()
	s.logger.Debug("record already ingested, skipping",
		"record_id", report.RecordID,
		"channel", report.Channel,
	)
	return report
}

// IngestAll ingests every record from src in order and stops at the first
// failure. Reports of the records ingested before the failure are returned
// alongside the error.
func (s *Service) IngestAll(ctx context.Context, src source.Source) ([]Report, error) {
	records, err := src.Records(ctx)
	if err != nil {
		return nil, err
	}

	reports := make([]Report, 0, len(records))
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report, err := s.Ingest(ctx, rec)
		if err != nil {
			return reports, fmt.Errorf("ingest record %d: %w", rec.RecordID, err)
		}
		reports = append(reports, report)
	}

	s.logger.Info("batch ingested", "records", len(reports))
	return reports, nil
}

// Derive builds processing masks for ch over [start, end) from the latest
// version of every segment intersecting the window. A zero start or end
// leaves that side unbounded. When save is true the masks are persisted
// under def.Name.
func (s *Service) Derive(
	ctx context.Context,
	ch qc.Channel,
	start, end time.Time,
	def qc.ProcessingMaskDefinition,
	save bool,
) ([]qc.ProcessingMask, error) {
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return nil, qc.NewValidationError(qc.ErrCodeInvalidRange, "end",
			"window end %s is before start %s",
			end.UTC().Format(time.RFC3339Nano), start.UTC().Format(time.RFC3339Nano))
	}

	latest, err := s.store.LatestVersions(ctx, ch, start, end)
	if err != nil {
		return nil, fmt.Errorf("derive %s: %w", def.Name, err)
	}
	versions := make([]qc.Version, len(latest))
	for i, v := range latest {
		versions[i] = v
	}

	masks, err := s.deriver.Derive(versions, def)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordMasks(string(def.Operation), len(masks))

	if save && len(masks) > 0 {
		if err := s.store.SaveProcessingMasks(ctx, def.Name, masks); err != nil {
			return nil, fmt.Errorf("derive %s: %w", def.Name, err)
		}
	}

	s.logger.Info("masks derived",
		"definition", def.Name,
		"channel", ch.Name(),
		"versions", len(versions),
		"masks", len(masks),
		"saved", save,
	)
	return masks, nil
}
