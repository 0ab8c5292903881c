// Package store provides SQLite-backed durable storage for QC segments,
// the provider-record ledger and derived processing masks.
//
// # Layout
//
//   - qc_segments: one row per segment (identity and channel)
//   - qc_segment_versions: append-only version history, keyed by
//     (segment_id, effective_at)
//   - provider_records: every record already reconciled, in ingest order
//   - processing_masks / processing_mask_versions: saved derivations
//
// # Critical Patterns
//
// Append-only history:
//   - Versions are inserted with ON CONFLICT DO NOTHING and never updated
//   - Saving a segment twice is a no-op
//
// Deterministic query results:
//   - Every query has an ORDER BY ending in a unique key
//   - Segments come back ordered by id COLLATE BINARY, versions by effective_at
//
// Instants:
//   - Stored as UTC unix nanoseconds and read back in UTC
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
