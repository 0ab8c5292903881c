package qc

import (
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ProcessingOperation names the downstream processing a mask applies to.
type ProcessingOperation string

const (
	OpAmplitudeMeasurementBeam          ProcessingOperation = "AMPLITUDE_MEASUREMENT_BEAM"
	OpAmplitudeMeasurementSingleChannel ProcessingOperation = "AMPLITUDE_MEASUREMENT_SINGLE_CHANNEL"
	OpBeamForming                       ProcessingOperation = "BEAM_FORMING"
	OpDisplayFilter                     ProcessingOperation = "DISPLAY_FILTER"
	OpEventBeam                         ProcessingOperation = "EVENT_BEAM"
	OpFKBeam                            ProcessingOperation = "FK_BEAM"
	OpFKSpectra                         ProcessingOperation = "FK_SPECTRA"
	OpRotation                          ProcessingOperation = "ROTATION"
	OpSignalDetectionBeam               ProcessingOperation = "SIGNAL_DETECTION_BEAM"
	OpSpectrogram                       ProcessingOperation = "SPECTROGRAM"
	OpVirtualBeam                       ProcessingOperation = "VIRTUAL_BEAM"
)

// ValidOperations lists every known processing operation.
var ValidOperations = map[ProcessingOperation]bool{
	OpAmplitudeMeasurementBeam:          true,
	OpAmplitudeMeasurementSingleChannel: true,
	OpBeamForming:                       true,
	OpDisplayFilter:                     true,
	OpEventBeam:                         true,
	OpFKBeam:                            true,
	OpFKSpectra:                         true,
	OpRotation:                          true,
	OpSignalDetectionBeam:               true,
	OpSpectrogram:                       true,
	OpVirtualBeam:                       true,
}

// ProcessingMaskDefinition configures one mask derivation.
type ProcessingMaskDefinition struct {
	Name           string
	MergeThreshold time.Duration
	Operation      ProcessingOperation
	Allowed        map[Classification]struct{}
}

// NewProcessingMaskDefinition builds a definition allowing the given pairs.
func NewProcessingMaskDefinition(name string, threshold time.Duration, op ProcessingOperation, allowed ...Classification) ProcessingMaskDefinition {
	set := make(map[Classification]struct{}, len(allowed))
	for _, c := range allowed {
		set[c] = struct{}{}
	}
	return ProcessingMaskDefinition{
		Name:           name,
		MergeThreshold: threshold,
		Operation:      op,
		Allowed:        set,
	}
}

// Allows reports whether c is one of the definition's allowed pairs.
// A typed pair and the bare category are distinct entries.
func (d ProcessingMaskDefinition) Allows(c Classification) bool {
	_, ok := d.Allowed[c]
	return ok
}

// AllowedList returns the allowed pairs in a stable order.
func (d ProcessingMaskDefinition) AllowedList() []Classification {
	out := make([]Classification, 0, len(d.Allowed))
	for c := range d.Allowed {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// Validate checks the threshold and operation. Category/type legality of the
// allowed pairs is checked by the classify package.
func (d ProcessingMaskDefinition) Validate() error {
	if d.MergeThreshold < 0 {
		return NewValidationError(ErrCodeInvalidDefinition, "merge_threshold",
			"definition %q: merge threshold %s is negative", d.Name, d.MergeThreshold)
	}
	if !ValidOperations[d.Operation] {
		return NewValidationError(ErrCodeInvalidDefinition, "operation",
			"definition %q: unknown processing operation %q", d.Name, d.Operation)
	}
	return nil
}

// ProcessingMask groups temporally clustered segment versions that mask one
// channel for one processing operation.
type ProcessingMask struct {
	ID   uuid.UUID          `json:"id"`
	Data ProcessingMaskData `json:"data"`
}

// ProcessingMaskData holds a processing mask's attributes.
type ProcessingMaskData struct {
	AppliedTo   Channel             `json:"applied_to"`
	EffectiveAt time.Time           `json:"effective_at"`
	Start       time.Time           `json:"start"`
	End         time.Time           `json:"end"`
	Operation   ProcessingOperation `json:"operation"`
	Masked      []QcSegmentVersion  `json:"masked"`
}

// NewProcessingMask builds a mask, enforcing its invariants: start <= end,
// at least one masked version, and every masked version on appliedTo.
func NewProcessingMask(id uuid.UUID, appliedTo Channel, effectiveAt, start, end time.Time,
	op ProcessingOperation, masked []QcSegmentVersion) (ProcessingMask, error) {
	if end.Before(start) {
		return ProcessingMask{}, NewValidationError(ErrCodeInvalidRange, "end",
			"mask ends at %s before it starts at %s", end, start)
	}
	if len(masked) == 0 {
		return ProcessingMask{}, NewValidationError(ErrCodeEmptyMask, "masked",
			"mask on %s has no masked versions", appliedTo.Name())
	}

	want := appliedTo.Name()
	for _, v := range masked {
		names := v.Data.ChannelNames()
		if len(names) == 0 {
			return ProcessingMask{}, NewValidationError(ErrCodeMissingData, "channels",
				"masked version %s@%s has no channel", v.ID.SegmentID, v.ID.EffectiveAt)
		}
		for _, name := range names {
			if name != want {
				return ProcessingMask{}, NewValidationError(ErrCodeChannelMismatch, "masked",
					"masked version %s@%s is on %s, mask is applied to %s", v.ID.SegmentID, v.ID.EffectiveAt, name, want)
			}
		}
	}

	return ProcessingMask{
		ID: id,
		Data: ProcessingMaskData{
			AppliedTo:   appliedTo,
			EffectiveAt: effectiveAt,
			Start:       start,
			End:         end,
			Operation:   op,
			Masked:      slices.Clone(masked),
		},
	}, nil
}
