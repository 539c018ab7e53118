// Package pipeline implements event processing stages: decode -> validate -> enrich -> persist.
package pipeline

import "errors"

// Failure categories used as the dead-letter reason prefix.
const (
	CategoryDeserialization = "DESERIALIZATION_FAILED"
	CategoryValidation      = "VALIDATION_FAILED"
	CategoryProcessing      = "PROCESSING_ERROR"
)

// DecodeError represents a failure in the decode stage.
// It wraps the underlying decoder/unmarshal error.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	if e == nil || e.Err == nil {
		return "decode failed"
	}
	return "decode failed: " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error { return e.Err }

// ValidationError represents a failure in the validate stage.
// Field is the name of the invalid field; Reason is the human readable rule violation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	errMsg := "validation failed"
	if e != nil && e.Field != "" {
		errMsg += ": " + e.Field
	}
	if e != nil && e.Reason != "" {
		errMsg += ": " + e.Reason
	}
	return errMsg
}

// ProcessError represents a failure after validation: enrichment, record building or persistence.
type ProcessError struct {
	Err error
}

func (e *ProcessError) Error() string {
	if e == nil || e.Err == nil {
		return "process failed"
	}
	return "process failed: " + e.Err.Error()
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Category maps a stage error to its dead-letter category.
// A nil error has no category; unknown errors count as processing errors.
func Category(err error) string {
	if err == nil {
		return ""
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return CategoryDeserialization
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return CategoryValidation
	}
	return CategoryProcessing
}

// Detail is the dead-letter reason text after the category prefix.
func Detail(err error) string {
	var de *DecodeError
	if errors.As(err, &de) && de.Err != nil {
		return de.Err.Error()
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	var pe *ProcessError
	if errors.As(err, &pe) && pe.Err != nil {
		return pe.Err.Error()
	}
	return err.Error()
}

// Reason formats the dead-letter reason "<CATEGORY>: <detail>"
func Reason(err error) string {
	return Category(err) + ": " + Detail(err)
}
