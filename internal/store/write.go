package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/qcmask/internal/qc"
)

// SaveSegments writes segments and their version histories in one
// transaction. Segment rows and version rows use ON CONFLICT DO NOTHING, so
// saving an unchanged segment is a no-op and saving an updated one only
// appends its new versions.
func (s *Store) SaveSegments(ctx context.Context, segs []qc.QcSegment) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return saveSegments(ctx, tx, segs)
	})
	if err != nil {
		return fmt.Errorf("save segments: %w", err)
	}
	return nil
}

// SaveReconciliation atomically records rec in the ledger and saves the
// segments reconciling it produced. inserted is false, and nothing is
// written, when rec was already in the ledger.
func (s *Store) SaveReconciliation(ctx context.Context, rec qc.ProviderRecord, segs []qc.QcSegment) (inserted bool, err error) {
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		inserted, err = writeProviderRecord(ctx, tx, rec)
		if err != nil || !inserted {
			return err
		}
		return saveSegments(ctx, tx, segs)
	})
	if err != nil {
		return false, fmt.Errorf("save reconciliation: %w", err)
	}
	return inserted, nil
}

func saveSegments(ctx context.Context, tx *sql.Tx, segs []qc.QcSegment) error {
	for _, seg := range segs {
		ch := seg.Data.Channel
		_, err := tx.ExecContext(ctx, `
			INSERT INTO qc_segments (id, station, channel, channel_name)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, seg.ID.String(), ch.Station, ch.Code, ch.Name())
		if err != nil {
			return fmt.Errorf("insert segment %s: %w", seg.ID, err)
		}

		for _, v := range seg.Data.Versions {
			if err := insertVersion(ctx, tx, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func insertVersion(ctx context.Context, tx *sql.Tx, v qc.QcSegmentVersion) error {
	channels, err := marshalChannels(v.Data.Channels)
	if err != nil {
		return err
	}
	waveforms, err := marshalWaveforms(v.Data.Waveforms)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO qc_segment_versions
		(segment_id, effective_at, start_time, end_time, category, type, rejected,
		 created_by, rationale, channels, waveforms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(segment_id, effective_at) DO NOTHING
	`,
		v.ID.SegmentID.String(),
		nanos(v.ID.EffectiveAt),
		nanos(v.Data.Start),
		nanos(v.Data.End),
		string(v.Data.Category),
		string(v.Data.Type),
		boolToInt(v.Data.Rejected),
		v.Data.CreatedBy,
		v.Data.Rationale,
		channels,
		waveforms,
	)
	if err != nil {
		return fmt.Errorf("insert version %s@%d: %w", v.ID.SegmentID, nanos(v.ID.EffectiveAt), err)
	}
	return nil
}

// WriteProviderRecord adds rec to the ledger of reconciled records.
// Uses ON CONFLICT(record_id) DO NOTHING; inserted reports whether the
// record was new.
func (s *Store) WriteProviderRecord(ctx context.Context, rec qc.ProviderRecord) (inserted bool, err error) {
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		inserted, err = writeProviderRecord(ctx, tx, rec)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("write provider record: %w", err)
	}
	return inserted, nil
}

func writeProviderRecord(ctx context.Context, tx *sql.Tx, rec qc.ProviderRecord) (bool, error) {
	key := rec.Key()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO provider_records
		(record_id, station, channel, channel_name, start_time, end_time, sample_rate,
		 mask_type, author, load_time, start_sample, end_sample, ingested_seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
		        (SELECT COALESCE(MAX(ingested_seq), 0) + 1 FROM provider_records))
		ON CONFLICT(record_id) DO NOTHING
	`,
		rec.RecordID,
		key.Station,
		key.Code,
		key.Name(),
		nanos(rec.Start),
		nanos(rec.End),
		rec.SampleRateHz,
		rec.MaskTypeCode,
		rec.Author,
		nanos(rec.LoadTime),
		rec.StartSample,
		rec.EndSample,
	)
	if err != nil {
		return false, fmt.Errorf("insert record %d: %w", rec.RecordID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return rows > 0, nil
}

// SaveProcessingMasks stores one derivation's masks under the definition
// name. The masked versions must already be stored. Masks already saved are
// left as they are.
func (s *Store) SaveProcessingMasks(ctx context.Context, definition string, masks []qc.ProcessingMask) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, m := range masks {
			ch := m.Data.AppliedTo
			result, err := tx.ExecContext(ctx, `
				INSERT INTO processing_masks
				(id, definition, operation, station, channel, channel_name, effective_at, start_time, end_time)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO NOTHING
			`,
				m.ID.String(),
				definition,
				string(m.Data.Operation),
				ch.Station,
				ch.Code,
				ch.Name(),
				nanos(m.Data.EffectiveAt),
				nanos(m.Data.Start),
				nanos(m.Data.End),
			)
			if err != nil {
				return fmt.Errorf("insert mask %s: %w", m.ID, err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			if n == 0 {
				continue
			}

			for i, v := range m.Data.Masked {
				_, err := tx.ExecContext(ctx, `
					INSERT INTO processing_mask_versions (mask_id, position, segment_id, effective_at)
					VALUES (?, ?, ?, ?)
				`, m.ID.String(), i, v.ID.SegmentID.String(), nanos(v.ID.EffectiveAt))
				if err != nil {
					return fmt.Errorf("insert mask %s version %d: %w", m.ID, i, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save processing masks: %w", err)
	}
	return nil
}
