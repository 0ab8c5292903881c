package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/qcmask/internal/qc"
)

// nanos converts an instant to the stored representation.
func nanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

// fromNanos converts a stored instant back to a UTC time.Time.
func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// marshalChannels converts a version's channels to canonical JSON TEXT so
// identical channel lists are byte-identical in the database.
func marshalChannels(channels []qc.Channel) (string, error) {
	list := make([]any, len(channels))
	for i, ch := range channels {
		list[i] = map[string]any{
			"station": ch.Station,
			"code":    ch.Code,
		}
	}
	data, err := qc.MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("marshal channels: %w", err)
	}
	return string(data), nil
}

func unmarshalChannels(data string) ([]qc.Channel, error) {
	var channels []qc.Channel
	if err := json.Unmarshal([]byte(data), &channels); err != nil {
		return nil, fmt.Errorf("unmarshal channels: %w", err)
	}
	return channels, nil
}

// marshalWaveforms converts waveform references to JSON TEXT.
// Waveform refs carry a float sample rate, which canonical JSON forbids, so
// they go through json.Encoder with HTML escaping disabled and UTC instants.
func marshalWaveforms(refs []qc.WaveformRef) (string, error) {
	utc := make([]qc.WaveformRef, len(refs))
	for i, r := range refs {
		r.Start = r.Start.UTC()
		r.End = r.End.UTC()
		utc[i] = r
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(utc); err != nil {
		return "", fmt.Errorf("marshal waveforms: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

func unmarshalWaveforms(data string) ([]qc.WaveformRef, error) {
	if data == "" || data == "[]" || data == "null" {
		return nil, nil
	}
	var refs []qc.WaveformRef
	if err := json.Unmarshal([]byte(data), &refs); err != nil {
		return nil, fmt.Errorf("unmarshal waveforms: %w", err)
	}
	return refs, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
