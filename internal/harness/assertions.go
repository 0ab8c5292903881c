package harness

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/qcmask/internal/interval"
	"github.com/roach88/qcmask/internal/qc"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Steps    []Step // Record outcomes for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Steps) > 0 {
		fmt.Fprintf(&buf, "\nRecords:\n")
		for _, s := range e.Steps {
			fmt.Fprintf(&buf, "  [%d] %s", s.RecordID, s.Outcome)
			if s.Error != "" {
				fmt.Fprintf(&buf, " (%s)", s.Error)
			}
			fmt.Fprintf(&buf, " %d segment(s)\n", len(s.Segments))
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against result and returns the
// failure messages, in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertOutcome:
		return assertOutcome(result, a)
	case AssertSegmentCount:
		return assertCount(AssertSegmentCount, "segment", len(result.Segments), *a.Count, result.Steps)
	case AssertCovers:
		return assertCovers(result, a)
	case AssertMaskCount:
		return assertCount(AssertMaskCount, "mask", len(result.Masks), *a.Count, result.Steps)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertOutcome checks the outcome of one record.
func assertOutcome(result *Result, a Assertion) error {
	step, ok := result.Step(a.Record)
	if !ok {
		return &AssertionError{
			Type:     AssertOutcome,
			Expected: fmt.Sprintf("record %d to be ingested", a.Record),
			Actual:   "record not found",
			Steps:    result.Steps,
		}
	}
	if step.Outcome != a.Outcome {
		return &AssertionError{
			Type:     AssertOutcome,
			Expected: fmt.Sprintf("record %d outcome %s", a.Record, a.Outcome),
			Actual:   fmt.Sprintf("record %d outcome %s", a.Record, step.Outcome),
			Steps:    result.Steps,
		}
	}
	return nil
}

func assertCount(typ, noun string, got, want int, steps []Step) error {
	if got == want {
		return nil
	}
	return &AssertionError{
		Type:     typ,
		Expected: fmt.Sprintf("%d %s(s)", want, noun),
		Actual:   fmt.Sprintf("%d %s(s)", got, noun),
		Steps:    steps,
	}
}

// assertCovers checks that the latest versions with the requested
// classification cover [Start, End) without a hole.
func assertCovers(result *Result, a Assertion) error {
	want := interval.New(a.Start, a.End)
	covered := Coverage(result.Segments, *a.Classification)
	if covered.Covers(want) {
		return nil
	}

	holes := covered.Gaps(want).Intervals()
	parts := make([]string, len(holes))
	for i, h := range holes {
		parts[i] = h.String()
	}
	return &AssertionError{
		Type:     AssertCovers,
		Expected: fmt.Sprintf("%s covered by %s", want, a.Classification),
		Actual:   fmt.Sprintf("uncovered %s", strings.Join(parts, ", ")),
		Steps:    result.Steps,
	}
}

// Coverage returns the instants covered by the latest version of each
// segment with classification c.
func Coverage(segs []qc.QcSegment, c qc.Classification) interval.Set {
	var ivs []interval.Interval
	for _, seg := range segs {
		latest, ok := seg.Latest()
		if !ok || latest.Data.Classification() != c {
			continue
		}
		ivs = append(ivs, latest.Data.Range())
	}
	return interval.Of(ivs...)
}

// formatTime renders t the way snapshots and messages do.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
