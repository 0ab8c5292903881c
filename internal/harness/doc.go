// Package harness runs reconciliation scenarios end to end and compares
// their results against golden snapshots.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: gap_fill
//	description: "A covering record fills the hole between two segments"
//	channel: ASAR.BHZ
//	minimum_gap: 1s
//	segments:
//	  - start: 2024-03-01T00:00:00Z
//	    end: 2024-03-01T00:05:00Z
//	    category: WAVEFORM
//	    type: FLAT
//	records:
//	  - record_id: 1
//	    start: 2024-03-01T00:00:00Z
//	    end: 2024-03-01T00:25:00Z
//	    mask_type: 2
//	derive:
//	  operation: FK_SPECTRA
//	  merge_threshold: 250ms
//	  allowed:
//	    - category: WAVEFORM
//	      type: FLAT
//	assertions:
//	  - type: outcome
//	    record: 1
//	    outcome: gap_filled
//	  - type: segment_count
//	    count: 3
//
// Segments are seeded into the store before any record is applied. Records
// are ingested in file order; their station and channel default to the
// scenario channel and their load time defaults to one hour per position
// after testutil.Epoch. The optional derive block runs once, after the last
// record.
//
// # Assertion Types
//
//   - outcome: the reconciliation outcome of one record ("error" for a
//     record that failed validation)
//   - segment_count: number of segments on the channel after all records
//   - covers: the latest versions with the given classification cover
//     [start, end)
//   - mask_count: number of masks produced by the derive block
//
// # Deterministic Testing
//
// Every scenario runs against a fresh in-memory store with
// testutil.SequentialIDs and a clock frozen at testutil.Epoch, so the same
// scenario always produces a byte-identical Snapshot.
package harness
