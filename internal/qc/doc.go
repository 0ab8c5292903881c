// Package qc provides the value types shared by the reconciliation and mask
// derivation engines: provider records, QC segments and their versions,
// processing-mask definitions and processing masks.
//
// This package contains type definitions and their invariants only. Engines,
// stores and the CLI import qc; qc imports nothing internal except the
// interval package.
//
// Key design constraints:
//   - Values are immutable once built; "updating" a segment appends a version
//     and returns a new QcSegment
//   - Populated and id-only forms are distinct types (QcSegment/SegmentRef,
//     QcSegmentVersion/VersionRef) behind sealed interfaces
//   - All times are compared as instants and stored in UTC
//   - Validation failures are *ValidationError values with a stable Code
package qc
