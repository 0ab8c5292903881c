package harness

import (
	"github.com/google/uuid"

	"github.com/roach88/qcmask/internal/qc"
)

// OutcomeError is the step outcome of a record that failed validation.
const OutcomeError = "error"

// Step records what happened to one scenario record.
type Step struct {
	RecordID int64       `json:"record_id"`
	Outcome  string      `json:"outcome"`
	Segments []uuid.UUID `json:"segments"`

	// Error is the validation error code when Outcome is OutcomeError.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	// Steps holds one entry per record, in order.
	Steps []Step `json:"steps"`

	// Segments is the channel's final segment set, ordered by id.
	Segments []qc.QcSegment `json:"segments"`

	// Masks is the output of the derive block, nil without one.
	Masks []qc.ProcessingMask `json:"masks,omitempty"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Steps:    []Step{},
		Segments: []qc.QcSegment{},
		Errors:   []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Step returns the step for recordID.
func (r *Result) Step(recordID int64) (Step, bool) {
	for _, s := range r.Steps {
		if s.RecordID == recordID {
			return s, true
		}
	}
	return Step{}, false
}
