// Package maskdef compiles processing-mask definitions authored in CUE.
//
// A definitions directory holds .cue files of one package declaring:
//
//	definition: fk_spectra: {
//		operation:       "FK_SPECTRA"
//		merge_threshold: "250ms"
//		allowed: [
//			{category: "WAVEFORM", type: "SPIKE"},
//			{category: "LONG_TERM"},
//		]
//	}
package maskdef

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/qcmask/internal/classify"
	"github.com/roach88/qcmask/internal/qc"
)

// CompileDefinition parses a CUE value into a ProcessingMaskDefinition.
//
// The CUE value should be the definition struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`definition: fk: { ... }`)
//	def, err := CompileDefinition(v.LookupPath(cue.ParsePath("definition.fk")))
func CompileDefinition(v cue.Value) (*qc.ProcessingMaskDefinition, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	name := ""
	if sels := v.Path().Selectors(); len(sels) > 0 {
		name = unquote(sels[len(sels)-1].String())
	}

	op, err := parseOperation(v)
	if err != nil {
		return nil, err
	}

	threshold, err := parseThreshold(v)
	if err != nil {
		return nil, err
	}

	allowed, err := parseAllowed(v)
	if err != nil {
		return nil, err
	}

	def := qc.NewProcessingMaskDefinition(name, threshold, op, allowed...)
	return &def, nil
}

func parseOperation(v cue.Value) (qc.ProcessingOperation, error) {
	opVal := v.LookupPath(cue.ParsePath("operation"))
	if !opVal.Exists() {
		return "", &CompileError{
			Field:   "operation",
			Message: "operation is required",
			Pos:     v.Pos(),
		}
	}
	s, err := opVal.String()
	if err != nil {
		return "", &CompileError{
			Field:   "operation",
			Message: "operation must be a string",
			Pos:     opVal.Pos(),
		}
	}
	op := qc.ProcessingOperation(strings.ToUpper(strings.TrimSpace(s)))
	if !qc.ValidOperations[op] {
		return "", &CompileError{
			Field:   "operation",
			Message: fmt.Sprintf("unknown processing operation %q", s),
			Pos:     opVal.Pos(),
		}
	}
	return op, nil
}

// parseThreshold reads merge_threshold as a Go duration string. Absent means 0.
func parseThreshold(v cue.Value) (time.Duration, error) {
	tv := v.LookupPath(cue.ParsePath("merge_threshold"))
	if !tv.Exists() {
		return 0, nil
	}
	s, err := tv.String()
	if err != nil {
		return 0, &CompileError{
			Field:   "merge_threshold",
			Message: `merge_threshold must be a duration string such as "250ms"`,
			Pos:     tv.Pos(),
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, &CompileError{
			Field:   "merge_threshold",
			Message: fmt.Sprintf("invalid duration %q", s),
			Pos:     tv.Pos(),
		}
	}
	if d < 0 {
		return 0, &CompileError{
			Field:   "merge_threshold",
			Message: fmt.Sprintf("merge_threshold %s is negative", d),
			Pos:     tv.Pos(),
		}
	}
	return d, nil
}

func parseAllowed(v cue.Value) ([]qc.Classification, error) {
	av := v.LookupPath(cue.ParsePath("allowed"))
	if !av.Exists() {
		return nil, &CompileError{
			Field:   "allowed",
			Message: "allowed is required",
			Pos:     v.Pos(),
		}
	}
	iter, err := av.List()
	if err != nil {
		return nil, &CompileError{
			Field:   "allowed",
			Message: "allowed must be a list of {category, type?} entries",
			Pos:     av.Pos(),
		}
	}

	var out []qc.Classification
	for iter.Next() {
		c, err := parsePair(iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, &CompileError{
			Field:   "allowed",
			Message: "at least one allowed entry is required",
			Pos:     av.Pos(),
		}
	}
	return out, nil
}

func parsePair(v cue.Value) (qc.Classification, error) {
	cv := v.LookupPath(cue.ParsePath("category"))
	if !cv.Exists() {
		return qc.Classification{}, &CompileError{
			Field:   "allowed",
			Message: "allowed entry is missing category",
			Pos:     v.Pos(),
		}
	}
	cs, err := cv.String()
	if err != nil {
		return qc.Classification{}, formatCUEError(err)
	}
	category, ok := classify.ParseCategory(cs)
	if !ok {
		return qc.Classification{}, &CompileError{
			Field:   "allowed.category",
			Message: fmt.Sprintf("unknown category %q", cs),
			Pos:     cv.Pos(),
		}
	}

	typ := qc.TypeNone
	if tv := v.LookupPath(cue.ParsePath("type")); tv.Exists() {
		ts, err := tv.String()
		if err != nil {
			return qc.Classification{}, formatCUEError(err)
		}
		t, ok := classify.ParseType(ts)
		if !ok {
			return qc.Classification{}, &CompileError{
				Field:   "allowed.type",
				Message: fmt.Sprintf("unknown type %q", ts),
				Pos:     tv.Pos(),
			}
		}
		typ = t
	}

	if err := classify.Validate(category, typ); err != nil {
		return qc.Classification{}, &CompileError{
			Field:   "allowed.pair",
			Message: err.Error(),
			Pos:     v.Pos(),
		}
	}
	return qc.Classification{Category: category, Type: typ}, nil
}

func unquote(label string) string {
	if s, err := strconv.Unquote(label); err == nil {
		return s
	}
	return label
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
