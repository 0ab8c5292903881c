// Package classify maps provider mask-type codes onto (category, type) pairs
// and validates category/type combinations against one static rule table.
package classify

import (
	"strings"

	"github.com/roach88/qcmask/internal/qc"
)

// TypeRule says whether a category takes a type.
type TypeRule int

const (
	// Forbidden categories never carry a type.
	Forbidden TypeRule = iota
	// Required categories always carry a type from their allow-list.
	Required
	// Optional categories may carry a type from their allow-list, or none.
	Optional
)

func (r TypeRule) String() string {
	switch r {
	case Required:
		return "required"
	case Optional:
		return "optional"
	default:
		return "forbidden"
	}
}

// Rule is the type policy of one category.
type Rule struct {
	Types   TypeRule
	Allowed map[qc.Type]bool
}

var allTypes = map[qc.Type]bool{
	qc.TypeAggregate:       true,
	qc.TypeCalibration:     true,
	qc.TypeFlat:            true,
	qc.TypeGap:             true,
	qc.TypeNoisy:           true,
	qc.TypeSensorProblem:   true,
	qc.TypeSpike:           true,
	qc.TypeStationProblem:  true,
	qc.TypeStationSecurity: true,
	qc.TypeTiming:          true,
}

// Rules is the single source of truth for category/type compatibility.
var Rules = map[qc.Category]Rule{
	qc.CategoryAnalystDefined:     {Types: Required, Allowed: allTypes},
	qc.CategoryDataAuthentication: {Types: Forbidden},
	qc.CategoryLongTerm:           {Types: Optional, Allowed: allTypes},
	qc.CategoryRejected:           {Types: Forbidden},
	qc.CategoryStationSOH: {Types: Required, Allowed: map[qc.Type]bool{
		qc.TypeCalibration:     true,
		qc.TypeSensorProblem:   true,
		qc.TypeStationProblem:  true,
		qc.TypeStationSecurity: true,
		qc.TypeTiming:          true,
	}},
	qc.CategoryUnprocessed: {Types: Forbidden},
	qc.CategoryWaveform: {Types: Required, Allowed: map[qc.Type]bool{
		qc.TypeAggregate: true,
		qc.TypeFlat:      true,
		qc.TypeGap:       true,
		qc.TypeNoisy:     true,
		qc.TypeSpike:     true,
	}},
}

// Provider mask-type codes.
const (
	CodeSpike           = 1
	CodeFlat            = 2
	CodeGap             = 3
	CodeNoisy           = 4
	CodeAggregate       = 5
	CodeCalibration     = 10
	CodeTiming          = 11
	CodeSensorProblem   = 12
	CodeStationProblem  = 13
	CodeStationSecurity = 14
	CodeRejected        = 20
	CodeAuthentication  = 30
	CodeLongTerm        = 40
)

var codes = map[int]qc.Classification{
	CodeSpike:           {Category: qc.CategoryWaveform, Type: qc.TypeSpike},
	CodeFlat:            {Category: qc.CategoryWaveform, Type: qc.TypeFlat},
	CodeGap:             {Category: qc.CategoryWaveform, Type: qc.TypeGap},
	CodeNoisy:           {Category: qc.CategoryWaveform, Type: qc.TypeNoisy},
	CodeAggregate:       {Category: qc.CategoryWaveform, Type: qc.TypeAggregate},
	CodeCalibration:     {Category: qc.CategoryStationSOH, Type: qc.TypeCalibration},
	CodeTiming:          {Category: qc.CategoryStationSOH, Type: qc.TypeTiming},
	CodeSensorProblem:   {Category: qc.CategoryStationSOH, Type: qc.TypeSensorProblem},
	CodeStationProblem:  {Category: qc.CategoryStationSOH, Type: qc.TypeStationProblem},
	CodeStationSecurity: {Category: qc.CategoryStationSOH, Type: qc.TypeStationSecurity},
	CodeRejected:        {Category: qc.CategoryRejected},
	CodeAuthentication:  {Category: qc.CategoryDataAuthentication},
	CodeLongTerm:        {Category: qc.CategoryLongTerm},
}

// Classify maps a raw provider mask-type code to a category and type.
// Unknown codes are UNPROCESSED with no type; Classify never fails.
func Classify(code int) (qc.Category, qc.Type) {
	if c, ok := codes[code]; ok {
		return c.Category, c.Type
	}
	return qc.CategoryUnprocessed, qc.TypeNone
}

// IsKnownCode reports whether code has an explicit mapping.
func IsKnownCode(code int) bool {
	_, ok := codes[code]
	return ok
}

// Validate checks a (category, type) pair against Rules.
func Validate(category qc.Category, typ qc.Type) error {
	if category == qc.CategoryNone {
		return qc.NewValidationError(qc.ErrCodeMissingCategory, "category", "category is required")
	}
	rule, ok := Rules[category]
	if !ok {
		return qc.NewValidationError(qc.ErrCodeInvalidCategoryType, "category", "unknown category %q", category)
	}

	switch {
	case typ.HasType() && rule.Types == Forbidden:
		return qc.NewValidationError(qc.ErrCodeInvalidCategoryType, "type",
			"category %s does not take a type, got %s", category, typ)
	case typ.HasType() && !rule.Allowed[typ]:
		return qc.NewValidationError(qc.ErrCodeInvalidCategoryType, "type",
			"type %s is not allowed for category %s", typ, category)
	case !typ.HasType() && rule.Types == Required:
		return qc.NewValidationError(qc.ErrCodeInvalidCategoryType, "type",
			"category %s requires a type", category)
	}
	return nil
}

// ValidateClassification is Validate over a pair.
func ValidateClassification(c qc.Classification) error {
	return Validate(c.Category, c.Type)
}

// ParseCategory parses a category name, case-insensitively.
func ParseCategory(s string) (qc.Category, bool) {
	c := qc.Category(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := Rules[c]
	return c, ok
}

// ParseType parses a type name, case-insensitively. The empty string parses
// as TypeNone.
func ParseType(s string) (qc.Type, bool) {
	t := qc.Type(strings.ToUpper(strings.TrimSpace(s)))
	if t == qc.TypeNone {
		return qc.TypeNone, true
	}
	return t, allTypes[t]
}
