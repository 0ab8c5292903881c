// Package source supplies provider records to the ingest service.
package source

import (
	"context"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/qcmask/internal/qc"
)

// Source yields a batch of provider records in the order they should be
// reconciled.
type Source interface {
	Records(ctx context.Context) ([]qc.ProviderRecord, error)
}

// recordFile is the YAML layout of a record batch.
type recordFile struct {
	Records []qc.ProviderRecord `yaml:"records"`
}

// FileSource reads a YAML record batch:
//
//	records:
//	  - record_id: 1
//	    station: ASAR
//	    channel: BHZ
//	    start: 2024-03-01T00:00:00Z
//	    end: 2024-03-01T00:10:00Z
//	    sample_rate: 40
//	    mask_type: 2
//	    author: analyst
//	    load_time: 2024-03-02T00:00:00Z
//	    start_sample: 0
//	    end_sample: 24000
type FileSource struct {
	Path string
}

// NewFileSource returns a FileSource over path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Records loads, validates and orders the batch. Records are returned by
// ascending load time, then record id, so a replay reconciles them in the
// order they were produced.
func (f *FileSource) Records(ctx context.Context) ([]qc.ProviderRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	return ParseRecords(data)
}

// ParseRecords decodes and validates a YAML record batch.
func ParseRecords(data []byte) ([]qc.ProviderRecord, error) {
	var file recordFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse records: %w", err)
	}

	seen := make(map[int64]bool, len(file.Records))
	for i, rec := range file.Records {
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if seen[rec.RecordID] {
			return nil, qc.NewValidationError(qc.ErrCodeInvalidRecord, "record_id",
				"record id %d appears more than once", rec.RecordID)
		}
		seen[rec.RecordID] = true
	}

	records := slices.Clone(file.Records)
	SortRecords(records)
	return records, nil
}

// SortRecords orders records by load time, then record id.
func SortRecords(records []qc.ProviderRecord) {
	slices.SortStableFunc(records, func(a, b qc.ProviderRecord) int {
		if c := a.LoadTime.Compare(b.LoadTime); c != 0 {
			return c
		}
		switch {
		case a.RecordID < b.RecordID:
			return -1
		case a.RecordID > b.RecordID:
			return 1
		}
		return 0
	})
}

// Batch is a Source over records already in memory. Records returns them
// as given; callers that need load-time order use SortRecords first.
type Batch []qc.ProviderRecord

// Records returns the batch.
func (b Batch) Records(ctx context.Context) ([]qc.ProviderRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b, nil
}

// RecordReader is the part of the segment store StoreSource needs.
type RecordReader interface {
	ReadProviderRecords(ctx context.Context, ch qc.Channel) ([]qc.ProviderRecord, error)
}

// StoreSource replays the store's record ledger, in ingest order. A zero
// Channel replays every channel.
type StoreSource struct {
	Reader  RecordReader
	Channel qc.Channel
}

// Records returns the ledger's records.
func (s *StoreSource) Records(ctx context.Context) ([]qc.ProviderRecord, error) {
	records, err := s.Reader.ReadProviderRecords(ctx, s.Channel)
	if err != nil {
		return nil, fmt.Errorf("store source: %w", err)
	}
	return records, nil
}
