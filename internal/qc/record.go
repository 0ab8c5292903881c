package qc

import (
	"strings"
	"time"

	"github.com/roach88/qcmask/internal/interval"
)

// ProviderRecord is one raw upstream QC annotation, not yet reconciled into
// the segment model.
type ProviderRecord struct {
	RecordID     int64     `json:"record_id" yaml:"record_id"`
	Station      string    `json:"station" yaml:"station"`
	Channel      string    `json:"channel" yaml:"channel"`
	Start        time.Time `json:"start" yaml:"start"`
	End          time.Time `json:"end" yaml:"end"`
	SampleRateHz float64   `json:"sample_rate" yaml:"sample_rate"`
	MaskTypeCode int       `json:"mask_type" yaml:"mask_type"`
	Author       string    `json:"author" yaml:"author"`
	LoadTime     time.Time `json:"load_time" yaml:"load_time"`
	StartSample  int64     `json:"start_sample" yaml:"start_sample"`
	EndSample    int64     `json:"end_sample" yaml:"end_sample"`
}

// Key returns the station+channel key the record belongs to.
func (r ProviderRecord) Key() Channel {
	return NewChannel(r.Station, r.Channel)
}

// Range returns [Start, End).
func (r ProviderRecord) Range() interval.Interval {
	return interval.New(r.Start, r.End)
}

// Validate checks the record's own invariants.
func (r ProviderRecord) Validate() error {
	if strings.TrimSpace(r.Station) == "" {
		return NewValidationError(ErrCodeInvalidRecord, "station", "record %d: station is required", r.RecordID)
	}
	if strings.TrimSpace(r.Channel) == "" {
		return NewValidationError(ErrCodeInvalidRecord, "channel", "record %d: channel is required", r.RecordID)
	}
	if r.Start.IsZero() || r.End.IsZero() {
		return NewValidationError(ErrCodeInvalidRecord, "start", "record %d: start and end are required", r.RecordID)
	}
	if r.End.Before(r.Start) {
		return NewValidationError(ErrCodeInvalidRecord, "end", "record %d: end %s is before start %s",
			r.RecordID, r.End.UTC().Format(time.RFC3339Nano), r.Start.UTC().Format(time.RFC3339Nano))
	}
	if r.LoadTime.IsZero() {
		return NewValidationError(ErrCodeInvalidRecord, "load_time", "record %d: load time is required", r.RecordID)
	}
	if r.SampleRateHz < 0 {
		return NewValidationError(ErrCodeInvalidRecord, "sample_rate", "record %d: sample rate %v is negative", r.RecordID, r.SampleRateHz)
	}
	if r.EndSample < r.StartSample {
		return NewValidationError(ErrCodeInvalidRecord, "end_sample", "record %d: end sample %d is before start sample %d",
			r.RecordID, r.EndSample, r.StartSample)
	}
	return nil
}
