// Package ingest applies provider records to the segment store and derives
// processing masks from what it holds.
//
// A Service is the only writer of QC segments. For each record it:
//
//  1. checks the record ledger; an already-ingested record is Skipped
//  2. locks the record's channel key
//  3. loads the channel's segments overlapping the record
//  4. reconciles the record against them
//  5. persists the resulting segments and the record in one transaction
//
// Records on different channels reconcile concurrently. Records on the same
// channel are serialized, so a reconciliation always sees every segment its
// predecessors wrote.
package ingest
