// Package reconcile merges one incoming provider record into the set of QC
// segments already known for the record's channel.
//
// Reconcile is a pure function of its inputs: it never touches storage,
// never mutates the segments it is given and returns freshly built values.
// Callers serialise calls per station+channel key (see internal/ingest).
//
// Decision order:
//  1. No existing segment overlaps the record: create one segment.
//  2. A same-classification overlap has exactly the record's range: return
//     it unchanged.
//  3. No overlap shares the record's classification: create one segment and
//     leave the differently classified overlaps alone.
//  4. Exactly one same-classification overlap, enclosed by the record:
//     append a version to it.
//  5. Otherwise: subtract every same-classification overlap from the record's
//     range and create one segment per leftover interval longer than
//     MinimumGap.
//
// Overlap and enclosure always use a segment's latest version.
package reconcile
