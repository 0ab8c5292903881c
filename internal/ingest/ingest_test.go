package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qcmask/internal/classify"
	"github.com/roach88/qcmask/internal/metrics"
	"github.com/roach88/qcmask/internal/qc"
	"github.com/roach88/qcmask/internal/reconcile"
	"github.com/roach88/qcmask/internal/store"
	qctest "github.com/roach88/qcmask/internal/testutil"
)

var (
	base = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bhz  = qc.NewChannel("ASAR", "BHZ")
)

func at(min int) time.Time {
	return base.Add(time.Duration(min) * time.Minute)
}

func record(id int64, station, channel string, from, to int, code int) qc.ProviderRecord {
	return qc.ProviderRecord{
		RecordID:     id,
		Station:      station,
		Channel:      channel,
		Start:        at(from),
		End:          at(to),
		SampleRateHz: 40,
		MaskTypeCode: code,
		Author:       "analyst",
		LoadTime:     base.Add(24*time.Hour + time.Duration(id)*time.Second),
		StartSample:  0,
		EndSample:    int64((to - from) * 60 * 40),
	}
}

type fixture struct {
	store   *store.Store
	svc     *Service
	metrics *metrics.Metrics
	logs    *bytes.Buffer
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	m := metrics.New()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	opts = append([]Option{WithMetrics(m), WithLogger(logger)}, opts...)
	svc := New(st, qctest.NewSequentialIDs(), qctest.NewFrozenClock(qctest.Epoch), opts...)
	return &fixture{store: st, svc: svc, metrics: m, logs: &logs}
}

func TestIngest_CreatesAndPersists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report, err := f.svc.Ingest(ctx, record(1, "ASAR", "BHZ", 0, 10, classify.CodeFlat))
	require.NoError(t, err)
	assert.Equal(t, reconcile.Created, report.Outcome)
	assert.Equal(t, "ASAR.BHZ", report.Channel)
	require.Len(t, report.Segments, 1)

	stored, err := f.store.ListSegments(ctx, bhz)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, report.Segments[0].ID, stored[0].ID)

	seen, err := f.store.HasProviderRecord(ctx, 1)
	require.NoError(t, err)
	assert.True(t, seen)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ReconcileOutcomes.WithLabelValues("created")))
	assert.Contains(t, f.logs.String(), "record reconciled")
}

func TestIngest_SkipsLedgeredRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := record(1, "ASAR", "BHZ", 0, 10, classify.CodeFlat)

	_, err := f.svc.Ingest(ctx, rec)
	require.NoError(t, err)

	report, err := f.svc.Ingest(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, Skipped, report.Outcome)
	assert.Empty(t, report.Segments)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RecordsSkipped))

	stored, err := f.store.ListSegments(ctx, bhz)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestIngest_SameRangeNewRecordIsUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Ingest(ctx, record(1, "ASAR", "BHZ", 0, 10, classify.CodeFlat))
	require.NoError(t, err)

	report, err := f.svc.Ingest(ctx, record(2, "ASAR", "BHZ", 0, 10, classify.CodeFlat))
	require.NoError(t, err)
	assert.Equal(t, reconcile.Unchanged, report.Outcome)
	require.Len(t, report.Segments, 1)
	assert.Equal(t, first.Segments[0].ID, report.Segments[0].ID)

	stored, err := f.store.ReadSegment(ctx, first.Segments[0].ID)
	require.NoError(t, err)
	assert.Len(t, stored.Data.Versions, 1)
}

func TestIngest_UpdateAppendsVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Ingest(ctx, record(1, "ASAR", "BHZ", 2, 8, classify.CodeSpike))
	require.NoError(t, err)

	report, err := f.svc.Ingest(ctx, record(2, "ASAR", "BHZ", 0, 10, classify.CodeSpike))
	require.NoError(t, err)
	assert.Equal(t, reconcile.Updated, report.Outcome)

	stored, err := f.store.ReadSegment(ctx, first.Segments[0].ID)
	require.NoError(t, err)
	require.Len(t, stored.Data.Versions, 2)
	latest, ok := stored.Latest()
	require.True(t, ok)
	assert.True(t, latest.Data.Start.Equal(at(0)))
	assert.True(t, latest.Data.End.Equal(at(10)))
}

func TestIngest_GapFillUsesStoredSegments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Ingest(ctx, record(1, "ASAR", "BHZ", 0, 5, classify.CodeFlat))
	require.NoError(t, err)
	_, err = f.svc.Ingest(ctx, record(2, "ASAR", "BHZ", 20, 25, classify.CodeFlat))
	require.NoError(t, err)

	report, err := f.svc.Ingest(ctx, record(3, "ASAR", "BHZ", 0, 25, classify.CodeFlat))
	require.NoError(t, err)
	assert.Equal(t, reconcile.GapFilled, report.Outcome)
	require.Len(t, report.Segments, 1)
	latest, _ := report.Segments[0].Latest()
	assert.True(t, latest.Data.Start.Equal(at(5)))
	assert.True(t, latest.Data.End.Equal(at(20)))

	stored, err := f.store.ListSegments(ctx, bhz)
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestIngest_UnknownCode(t *testing.T) {
	f := newFixture(t)

	report, err := f.svc.Ingest(context.Background(), record(1, "ASAR", "BHZ", 0, 10, 999))
	require.NoError(t, err)
	assert.True(t, report.Unclassified)
	assert.Equal(t, reconcile.Created, report.Outcome)

	latest, _ := report.Segments[0].Latest()
	assert.Equal(t, qc.CategoryUnprocessed, latest.Data.Category)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.UnclassifiedRecords))
	assert.Contains(t, f.logs.String(), "unknown mask type code")
}

func TestIngest_ZeroLengthRerun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Ingest(ctx, record(1, "ASAR", "BHZ", 5, 5, classify.CodeSpike))
	require.NoError(t, err)
	assert.Equal(t, reconcile.Created, first.Outcome)

	second, err := f.svc.Ingest(ctx, record(2, "ASAR", "BHZ", 5, 5, classify.CodeSpike))
	require.NoError(t, err)
	assert.Equal(t, reconcile.Unchanged, second.Outcome)
	assert.Equal(t, first.Segments[0].ID, second.Segments[0].ID)

	segs, err := f.store.ListSegments(ctx, bhz)
	require.NoError(t, err)
	assert.Len(t, segs, 1)
}

func TestIngest_InvalidRecord(t *testing.T) {
	f := newFixture(t)
	rec := record(1, "ASAR", "BHZ", 10, 0, classify.CodeFlat)

	_, err := f.svc.Ingest(context.Background(), rec)
	require.Error(t, err)
	assert.True(t, qc.HasCode(err, qc.ErrCodeInvalidRecord))

	seen, err := f.store.HasProviderRecord(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, seen, "rejected records are not ledgered")
}

func TestIngest_ChannelsAreIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Ingest(ctx, record(1, "ASAR", "BHZ", 0, 10, classify.CodeFlat))
	require.NoError(t, err)
	report, err := f.svc.Ingest(ctx, record(2, "asar", "shz", 0, 10, classify.CodeFlat))
	require.NoError(t, err)
	assert.Equal(t, reconcile.Created, report.Outcome)
	assert.Equal(t, "ASAR.SHZ", report.Channel)
}

func TestIngest_WithMinimumGap(t *testing.T) {
	f := newFixture(t, WithMinimumGap(10*time.Minute))
	ctx := context.Background()

	_, err := f.svc.Ingest(ctx, record(1, "ASAR", "BHZ", 0, 5, classify.CodeFlat))
	require.NoError(t, err)
	_, err = f.svc.Ingest(ctx, record(2, "ASAR", "BHZ", 10, 15, classify.CodeFlat))
	require.NoError(t, err)

	report, err := f.svc.Ingest(ctx, record(3, "ASAR", "BHZ", 0, 15, classify.CodeFlat))
	require.NoError(t, err)
	assert.Equal(t, reconcile.GapFilled, report.Outcome)
	assert.Empty(t, report.Segments, "five-minute gap is below the threshold")
}

func TestIngest_ConcurrentChannels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	channels := []string{"BHZ", "BHN", "BHE", "SHZ"}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for c, code := range channels {
		code := code
		for i := 0; i < 4; i++ {
			i := i
			wg.Add(1)
			id := int64(c*100 + i)
			go func() {
				defer wg.Done()
				_, err := f.svc.Ingest(ctx, record(id, "ASAR", code, i*10, i*10+5, classify.CodeFlat))
				if err != nil {
					errs <- err
				}
			}()
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("ingest: %v", err)
	}

	for _, code := range channels {
		segs, err := f.store.ListSegments(ctx, qc.NewChannel("ASAR", code))
		require.NoError(t, err)
		assert.Len(t, segs, 4, "channel %s", code)
	}
	assert.Equal(t, 0, f.svc.locks.len())
}

func TestIngest_ConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := record(7, "ASAR", "BHZ", 0, 10, classify.CodeFlat)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[reconcile.Outcome]int{}
	)
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := f.svc.Ingest(ctx, rec)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			outcomes[report.Outcome]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, map[reconcile.Outcome]int{reconcile.Created: 1, Skipped: 7}, outcomes)
	segs, err := f.store.ListSegments(ctx, bhz)
	require.NoError(t, err)
	assert.Len(t, segs, 1)
}

func TestIngest_UnknownCodeCountedOncePerRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// A second service on the same database loses the ledger insert rather
	// than the channel lock.
	other := New(f.store, qctest.NewSequentialIDs(), qctest.NewFrozenClock(qctest.Epoch),
		WithMetrics(f.metrics), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	rec := record(9, "ASAR", "BHZ", 0, 10, 999)

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		outcomes     = map[reconcile.Outcome]int{}
		unclassified int
	)
	for i := 0; i < 8; i++ {
		svc := f.svc
		if i%2 == 1 {
			svc = other
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := svc.Ingest(ctx, rec)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			outcomes[report.Outcome]++
			if report.Unclassified {
				unclassified++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, map[reconcile.Outcome]int{reconcile.Created: 1, Skipped: 7}, outcomes)
	assert.Equal(t, 1, unclassified, "only the persisted report is flagged")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.UnclassifiedRecords))
	assert.Equal(t, 7.0, testutil.ToFloat64(f.metrics.RecordsSkipped))
}

func TestIngest_SequentialOverlapsOnOneChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Ingest(ctx, record(int64(i+1), "ASAR", "BHZ", 0, 10, classify.CodeFlat))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	segs, err := f.store.ListSegments(ctx, bhz)
	require.NoError(t, err)
	assert.Len(t, segs, 1, "identical ranges collapse into one segment under the channel lock")
}

type sliceSource []qc.ProviderRecord

func (s sliceSource) Records(context.Context) ([]qc.ProviderRecord, error) {
	return s, nil
}

type failingSource struct{}

func (failingSource) Records(context.Context) ([]qc.ProviderRecord, error) {
	return nil, errors.New("boom")
}

func TestIngestAll(t *testing.T) {
	f := newFixture(t)

	reports, err := f.svc.IngestAll(context.Background(), sliceSource{
		record(1, "ASAR", "BHZ", 0, 10, classify.CodeFlat),
		record(2, "ASAR", "BHZ", 0, 10, classify.CodeFlat),
		record(1, "ASAR", "BHZ", 0, 10, classify.CodeFlat),
	})
	require.NoError(t, err)
	require.Len(t, reports, 3)
	assert.Equal(t, []reconcile.Outcome{reconcile.Created, reconcile.Unchanged, Skipped},
		[]reconcile.Outcome{reports[0].Outcome, reports[1].Outcome, reports[2].Outcome})
}

func TestIngestAll_FailsFast(t *testing.T) {
	f := newFixture(t)

	reports, err := f.svc.IngestAll(context.Background(), sliceSource{
		record(1, "ASAR", "BHZ", 0, 10, classify.CodeFlat),
		record(2, "ASAR", "BHZ", 10, 0, classify.CodeFlat),
		record(3, "ASAR", "BHZ", 20, 30, classify.CodeFlat),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest record 2")
	assert.True(t, qc.HasCode(err, qc.ErrCodeInvalidRecord))
	assert.Len(t, reports, 1)

	seen, err := f.store.HasProviderRecord(context.Background(), 3)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestIngestAll_SourceError(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.IngestAll(context.Background(), failingSource{})
	assert.EqualError(t, err, "boom")
}

func TestIngestAll_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reports, err := f.svc.IngestAll(ctx, sliceSource{record(1, "ASAR", "BHZ", 0, 10, classify.CodeFlat)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, reports)
}

func fkDefinition(threshold time.Duration) qc.ProcessingMaskDefinition {
	return qc.NewProcessingMaskDefinition("fk", threshold, qc.OpFKSpectra,
		qc.Classification{Category: qc.CategoryWaveform, Type: qc.TypeFlat},
		qc.Classification{Category: qc.CategoryWaveform, Type: qc.TypeSpike},
	)
}

func TestDerive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i, r := range []struct{ from, to, code int }{
		{0, 5, classify.CodeFlat},
		{5, 10, classify.CodeSpike},
		{30, 40, classify.CodeFlat},
		{12, 14, classify.CodeCalibration},
	} {
		_, err := f.svc.Ingest(ctx, record(int64(i+1), "ASAR", "BHZ", r.from, r.to, r.code))
		require.NoError(t, err)
	}

	masks, err := f.svc.Derive(ctx, bhz, time.Time{}, time.Time{}, fkDefinition(0), false)
	require.NoError(t, err)
	require.Len(t, masks, 2)
	assert.True(t, masks[0].Data.Start.Equal(at(0)))
	assert.True(t, masks[0].Data.End.Equal(at(10)))
	assert.Len(t, masks[0].Data.Masked, 2)
	assert.True(t, masks[1].Data.Start.Equal(at(30)))
	assert.Equal(t, qctest.Epoch, masks[0].Data.EffectiveAt)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.MasksDerived.WithLabelValues(string(qc.OpFKSpectra))))

	saved, err := f.store.ReadProcessingMasks(ctx, bhz)
	require.NoError(t, err)
	assert.Empty(t, saved, "not saved without save flag")
}

func TestDerive_WindowAndSave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Ingest(ctx, record(1, "ASAR", "BHZ", 0, 5, classify.CodeFlat))
	require.NoError(t, err)
	_, err = f.svc.Ingest(ctx, record(2, "ASAR", "BHZ", 30, 40, classify.CodeFlat))
	require.NoError(t, err)

	masks, err := f.svc.Derive(ctx, bhz, at(20), at(60), fkDefinition(0), true)
	require.NoError(t, err)
	require.Len(t, masks, 1)
	assert.True(t, masks[0].Data.Start.Equal(at(30)))

	saved, err := f.store.ReadProcessingMasks(ctx, bhz)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "fk", saved[0].Definition)
	assert.Equal(t, masks[0].ID, saved[0].Mask.ID)
}

func TestDerive_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("inverted window", func(t *testing.T) {
		_, err := f.svc.Derive(ctx, bhz, at(10), at(0), fkDefinition(0), false)
		assert.True(t, qc.HasCode(err, qc.ErrCodeInvalidRange))
	})

	t.Run("invalid definition", func(t *testing.T) {
		def := fkDefinition(-time.Second)
		_, err := f.svc.Derive(ctx, bhz, time.Time{}, time.Time{}, def, false)
		_, ok := qc.CodeOf(err)
		assert.True(t, ok, fmt.Sprint(err))
	})

	t.Run("empty channel", func(t *testing.T) {
		masks, err := f.svc.Derive(ctx, qc.NewChannel("NONE", "BHZ"), time.Time{}, time.Time{}, fkDefinition(0), true)
		require.NoError(t, err)
		assert.Empty(t, masks)
	})
}
