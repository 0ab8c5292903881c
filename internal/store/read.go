package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/qcmask/internal/qc"
)

const versionColumns = `
	v.segment_id, v.effective_at, v.start_time, v.end_time, v.category, v.type,
	v.rejected, v.created_by, v.rationale, v.channels, v.waveforms`

// latestVersionFilter restricts v to each segment's latest version.
const latestVersionFilter = `
	v.effective_at = (
		SELECT MAX(l.effective_at) FROM qc_segment_versions l
		WHERE l.segment_id = v.segment_id
	)`

// window converts optional bounds to stored instants. A zero start or end
// leaves that side unbounded.
func window(start, end time.Time) (int64, int64) {
	lo, hi := int64(math.MinInt64), int64(math.MaxInt64)
	if !start.IsZero() {
		lo = nanos(start)
	}
	if !end.IsZero() {
		hi = nanos(end)
	}
	return lo, hi
}

// LoadOverlapping returns the segments on ch whose latest version intersects
// [start, end), or has exactly that range when it is empty, with their full
// version histories. This is the input the
// reconciler expects for a record on ch covering [start, end).
//
// Results are ordered by segment id COLLATE BINARY, versions by effective time.
// Returns an empty slice (not nil) when nothing overlaps.
func (s *Store) LoadOverlapping(ctx context.Context, ch qc.Channel, start, end time.Time) ([]qc.QcSegment, error) {
	lo, hi := window(start, end)
	segs, err := s.querySegments(ctx, `
		s.id IN (
			SELECT v.segment_id FROM qc_segment_versions v
			WHERE `+latestVersionFilter+`
			AND ((v.start_time < ? AND ? < v.end_time) OR (v.start_time = ? AND v.end_time = ?))
		) AND s.channel_name = ?
	`, hi, lo, lo, hi, ch.Name())
	if err != nil {
		return nil, fmt.Errorf("load overlapping: %w", err)
	}
	return segs, nil
}

// ListSegments returns every segment on ch with its version history.
func (s *Store) ListSegments(ctx context.Context, ch qc.Channel) ([]qc.QcSegment, error) {
	segs, err := s.querySegments(ctx, `s.channel_name = ?`, ch.Name())
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	return segs, nil
}

// ReadSegment returns one segment with its version history.
// Returns an error wrapping ErrNotFound when id is unknown.
func (s *Store) ReadSegment(ctx context.Context, id uuid.UUID) (qc.QcSegment, error) {
	segs, err := s.querySegments(ctx, `s.id = ?`, id.String())
	if err != nil {
		return qc.QcSegment{}, fmt.Errorf("read segment: %w", err)
	}
	if len(segs) == 0 {
		return qc.QcSegment{}, fmt.Errorf("read segment %s: %w", id, ErrNotFound)
	}
	return segs[0], nil
}

// LatestVersions returns the latest version of every segment on ch that
// intersects [start, end), ordered by start time then segment id. Zero
// bounds are unbounded. This is the input mask derivation expects.
func (s *Store) LatestVersions(ctx context.Context, ch qc.Channel, start, end time.Time) ([]qc.QcSegmentVersion, error) {
	lo, hi := window(start, end)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+versionColumns+`
		FROM qc_segment_versions v
		JOIN qc_segments s ON s.id = v.segment_id
		WHERE s.channel_name = ?
		AND `+latestVersionFilter+`
		AND v.start_time < ? AND ? < v.end_time
		ORDER BY v.start_time ASC, v.segment_id COLLATE BINARY ASC
	`, ch.Name(), hi, lo)
	if err != nil {
		return nil, fmt.Errorf("query latest versions: %w", err)
	}
	defer rows.Close()

	versions := []qc.QcSegmentVersion{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate latest versions: %w", err)
	}
	return versions, nil
}

// querySegments loads segments matching where (over alias s) together with
// all of their versions.
func (s *Store) querySegments(ctx context.Context, where string, args ...any) ([]qc.QcSegment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.station, s.channel, `+versionColumns+`
		FROM qc_segments s
		JOIN qc_segment_versions v ON v.segment_id = s.id
		WHERE `+where+`
		ORDER BY s.id COLLATE BINARY ASC, v.effective_at ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	type pending struct {
		id       uuid.UUID
		channel  qc.Channel
		versions []qc.QcSegmentVersion
	}
	var order []*pending
	for rows.Next() {
		var station, code string
		v, err := scanVersion(rows, &station, &code)
		if err != nil {
			return nil, err
		}
		if n := len(order); n == 0 || order[n-1].id != v.ID.SegmentID {
			order = append(order, &pending{
				id:      v.ID.SegmentID,
				channel: qc.Channel{Station: station, Code: code},
			})
		}
		p := order[len(order)-1]
		p.versions = append(p.versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate segments: %w", err)
	}

	segs := make([]qc.QcSegment, 0, len(order))
	for _, p := range order {
		seg, err := qc.NewSegment(p.id, p.channel, p.versions...)
		if err != nil {
			return nil, fmt.Errorf("segment %s: %w", p.id, err)
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// scanVersion reads versionColumns, preceded by any extra destinations.
func scanVersion(rows *sql.Rows, extra ...any) (qc.QcSegmentVersion, error) {
	var (
		segmentID                  string
		effectiveAt, start, end    int64
		category, typ              string
		rejected                   int
		createdBy, rationale       string
		channelsJSON, waveformJSON string
	)
	dest := append(extra,
		&segmentID, &effectiveAt, &start, &end, &category, &typ,
		&rejected, &createdBy, &rationale, &channelsJSON, &waveformJSON)
	if err := rows.Scan(dest...); err != nil {
		return qc.QcSegmentVersion{}, fmt.Errorf("scan version: %w", err)
	}

	id, err := uuid.Parse(segmentID)
	if err != nil {
		return qc.QcSegmentVersion{}, fmt.Errorf("scan version: segment id %q: %w", segmentID, err)
	}
	channels, err := unmarshalChannels(channelsJSON)
	if err != nil {
		return qc.QcSegmentVersion{}, err
	}
	waveforms, err := unmarshalWaveforms(waveformJSON)
	if err != nil {
		return qc.QcSegmentVersion{}, err
	}

	return qc.QcSegmentVersion{
		ID: qc.VersionID{SegmentID: id, EffectiveAt: fromNanos(effectiveAt)},
		Data: qc.VersionData{
			Channels:  channels,
			Waveforms: waveforms,
			CreatedBy: createdBy,
			Rationale: rationale,
			Start:     fromNanos(start),
			End:       fromNanos(end),
			Rejected:  rejected != 0,
			Category:  qc.Category(category),
			Type:      qc.Type(typ),
		},
	}, nil
}

// HasProviderRecord reports whether a record id is already in the ledger.
func (s *Store) HasProviderRecord(ctx context.Context, recordID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM provider_records WHERE record_id = ?
	`, recordID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check provider record: %w", err)
	}
	return count > 0, nil
}

// ReadProviderRecords returns the ledger in ingest order. A zero channel
// returns records on every channel.
func (s *Store) ReadProviderRecords(ctx context.Context, ch qc.Channel) ([]qc.ProviderRecord, error) {
	query := `
		SELECT record_id, station, channel, start_time, end_time, sample_rate, mask_type,
		       author, load_time, start_sample, end_sample
		FROM provider_records`
	var args []any
	if !ch.IsZero() {
		query += ` WHERE channel_name = ?`
		args = append(args, ch.Name())
	}
	query += ` ORDER BY ingested_seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query provider records: %w", err)
	}
	defer rows.Close()

	records := []qc.ProviderRecord{}
	for rows.Next() {
		var (
			rec                  qc.ProviderRecord
			start, end, loadTime int64
		)
		if err := rows.Scan(&rec.RecordID, &rec.Station, &rec.Channel, &start, &end,
			&rec.SampleRateHz, &rec.MaskTypeCode, &rec.Author, &loadTime,
			&rec.StartSample, &rec.EndSample); err != nil {
			return nil, fmt.Errorf("scan provider record: %w", err)
		}
		rec.Start = fromNanos(start)
		rec.End = fromNanos(end)
		rec.LoadTime = fromNanos(loadTime)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate provider records: %w", err)
	}
	return records, nil
}

// SavedMask is a processing mask together with the definition that
// produced it.
type SavedMask struct {
	Definition string
	Mask       qc.ProcessingMask
}

// ReadProcessingMasks returns the saved masks on ch, ordered by start time
// then id, with their masked versions resolved.
func (s *Store) ReadProcessingMasks(ctx context.Context, ch qc.Channel) ([]SavedMask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, definition, operation, station, channel, effective_at, start_time, end_time
		FROM processing_masks
		WHERE channel_name = ?
		ORDER BY start_time ASC, id COLLATE BINARY ASC
	`, ch.Name())
	if err != nil {
		return nil, fmt.Errorf("query processing masks: %w", err)
	}

	type header struct {
		id                      uuid.UUID
		definition              string
		op                      qc.ProcessingOperation
		channel                 qc.Channel
		effectiveAt, start, end int64
	}
	var headers []header
	for rows.Next() {
		var (
			h             header
			id, op        string
			station, code string
		)
		if err := rows.Scan(&id, &h.definition, &op, &station, &code, &h.effectiveAt, &h.start, &h.end); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan processing mask: %w", err)
		}
		if h.id, err = uuid.Parse(id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan processing mask: id %q: %w", id, err)
		}
		h.op = qc.ProcessingOperation(op)
		h.channel = qc.Channel{Station: station, Code: code}
		headers = append(headers, h)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate processing masks: %w", err)
	}
	rows.Close()

	// Single connection: the header rows must be closed before the per-mask
	// version queries run.
	masks := make([]SavedMask, 0, len(headers))
	for _, h := range headers {
		masked, err := s.maskedVersions(ctx, h.id)
		if err != nil {
			return nil, err
		}
		m, err := qc.NewProcessingMask(h.id, h.channel, fromNanos(h.effectiveAt),
			fromNanos(h.start), fromNanos(h.end), h.op, masked)
		if err != nil {
			return nil, fmt.Errorf("processing mask %s: %w", h.id, err)
		}
		masks = append(masks, SavedMask{Definition: h.definition, Mask: m})
	}
	return masks, nil
}

func (s *Store) maskedVersions(ctx context.Context, maskID uuid.UUID) ([]qc.QcSegmentVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+versionColumns+`
		FROM processing_mask_versions m
		JOIN qc_segment_versions v
		  ON v.segment_id = m.segment_id AND v.effective_at = m.effective_at
		WHERE m.mask_id = ?
		ORDER BY m.position ASC
	`, maskID.String())
	if err != nil {
		return nil, fmt.Errorf("query masked versions: %w", err)
	}
	defer rows.Close()

	var versions []qc.QcSegmentVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate masked versions: %w", err)
	}
	return versions, nil
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

