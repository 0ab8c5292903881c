package qc

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes validation failures.
type ErrorCode string

const (
	// ErrCodeInvalidRecord indicates a malformed provider record.
	ErrCodeInvalidRecord ErrorCode = "INVALID_RECORD"

	// ErrCodeInvalidCategoryType indicates a type that the category does not permit,
	// or a missing type the category requires.
	ErrCodeInvalidCategoryType ErrorCode = "INVALID_CATEGORY_TYPE"

	// ErrCodeMissingData indicates a version without populated data.
	ErrCodeMissingData ErrorCode = "MISSING_DATA"

	// ErrCodeMissingCategory indicates a version without a category.
	ErrCodeMissingCategory ErrorCode = "MISSING_CATEGORY"

	// ErrCodeChannelCountMismatch indicates a mask batch spanning zero or several channels.
	ErrCodeChannelCountMismatch ErrorCode = "CHANNEL_COUNT_MISMATCH"

	// ErrCodeChannelMismatch indicates a masked version on a different channel than the mask.
	ErrCodeChannelMismatch ErrorCode = "CHANNEL_MISMATCH"

	// ErrCodeEmptyMask indicates a processing mask with no masked versions.
	ErrCodeEmptyMask ErrorCode = "EMPTY_MASK"

	// ErrCodeInvalidRange indicates start after end.
	ErrCodeInvalidRange ErrorCode = "INVALID_RANGE"

	// ErrCodeInvalidDefinition indicates a malformed processing mask definition.
	ErrCodeInvalidDefinition ErrorCode = "INVALID_DEFINITION"
)

// ValidationError reports a violated precondition on caller-supplied input.
// These are programmer errors; nothing in this module retries them.
type ValidationError struct {
	Code    ErrorCode
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(code ErrorCode, field, format string, args ...any) *ValidationError {
	return &ValidationError{
		Code:    code,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

// CodeOf returns the code of the *ValidationError wrapped by err.
// ok is false when err carries none.
func CodeOf(err error) (code ErrorCode, ok bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code, true
	}
	return "", false
}

// HasCode reports whether err wraps a *ValidationError with the given code.
func HasCode(err error, code ErrorCode) bool {
	got, ok := CodeOf(err)
	return ok && got == code
}
