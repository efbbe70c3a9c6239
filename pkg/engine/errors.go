package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies engine errors by the phase they arise in.
type ErrorKind string

const (
	// ErrorKindMalformedDefinition indicates a bad declaration, rejected at
	// Define time. The definition is not installed.
	ErrorKindMalformedDefinition ErrorKind = "malformed_definition"

	// ErrorKindValidation indicates bad instance data, rejected at
	// construction time.
	ErrorKindValidation ErrorKind = "validation"

	// ErrorKindCompile indicates a bad match block, rejected at compile
	// time before first use.
	ErrorKindCompile ErrorKind = "compile"

	// ErrorKindDispatch indicates a runtime match failure despite compiler
	// exhaustiveness. Recoverable by the caller.
	ErrorKindDispatch ErrorKind = "dispatch"

	// ErrorKindComputation indicates a lazy cell computation raised. The
	// cell remains pending and can be retried.
	ErrorKindComputation ErrorKind = "computation"

	// ErrorKindSynthesis indicates no synthesis rule matched the input.
	ErrorKindSynthesis ErrorKind = "synthesis"
)

// Error codes for programmatic handling.
const (
	CodeDuplicateField     = "DUPLICATE_FIELD"
	CodeDuplicateVariant   = "DUPLICATE_VARIANT"
	CodeEmptyName          = "EMPTY_NAME"
	CodeNotFound           = "NOT_FOUND"
	CodeNotAProductType    = "NOT_A_PRODUCT_TYPE"
	CodeNotASumType        = "NOT_A_SUM_TYPE"
	CodeUnknownField       = "UNKNOWN_FIELD"
	CodeMissingField       = "MISSING_FIELD"
	CodeUnknownVariant     = "UNKNOWN_VARIANT"
	CodeTypeMismatch       = "TYPE_MISMATCH"
	CodeNonExhaustiveMatch = "NON_EXHAUSTIVE_MATCH"
	CodeGuardExhaustion    = "GUARD_EXHAUSTION"
	CodeGuardFailed        = "GUARD_FAILED"
	CodeNoMatchingRule     = "NO_MATCHING_RULE"
	CodeComputationFailed  = "COMPUTATION_FAILED"
)

// Error represents a classified engine error with context.
type Error struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Code is an error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Type is the type definition name involved, if applicable.
	Type string `json:"type,omitempty"`

	// Variant is the sum-type variant involved, if applicable.
	Variant string `json:"variant,omitempty"`

	// Field is the field name involved, if applicable.
	Field string `json:"field,omitempty"`

	// Missing lists uncovered variants for non-exhaustive matches.
	Missing []string `json:"missing,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var ctx []string
	if e.Type != "" {
		ctx = append(ctx, "type="+e.Type)
	}
	if e.Variant != "" {
		ctx = append(ctx, "variant="+e.Variant)
	}
	if e.Field != "" {
		ctx = append(ctx, "field="+e.Field)
	}
	if len(e.Missing) > 0 {
		ctx = append(ctx, "missing="+strings.Join(e.Missing, ","))
	}

	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if len(ctx) > 0 {
		msg += " (" + strings.Join(ctx, ", ") + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

// NewMalformedDefinitionError creates an error for a bad declaration.
func NewMalformedDefinitionError(message string) *Error {
	return &Error{
		Kind:    ErrorKindMalformedDefinition,
		Message: message,
	}
}

// NewValidationError creates an error for bad instance data.
func NewValidationError(message string) *Error {
	return &Error{
		Kind:    ErrorKindValidation,
		Message: message,
	}
}

// NewCompileError creates an error for a bad match block.
func NewCompileError(message string) *Error {
	return &Error{
		Kind:    ErrorKindCompile,
		Message: message,
	}
}

// NewDispatchError creates an error for a runtime match failure.
func NewDispatchError(message string) *Error {
	return &Error{
		Kind:    ErrorKindDispatch,
		Message: message,
	}
}

// NewComputationError creates an error for a failed lazy computation.
func NewComputationError(message string, err error) *Error {
	return &Error{
		Kind:    ErrorKindComputation,
		Code:    CodeComputationFailed,
		Message: message,
		Err:     err,
	}
}

// NewSynthesisError creates an error for a failed synthesis run.
func NewSynthesisError(message string) *Error {
	return &Error{
		Kind:    ErrorKindSynthesis,
		Message: message,
	}
}

// WithCode adds an error code to an error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithType adds type context to an error.
func (e *Error) WithType(typeName string) *Error {
	e.Type = typeName
	return e
}

// WithVariant adds variant context to an error.
func (e *Error) WithVariant(variant string) *Error {
	e.Variant = variant
	return e
}

// WithField adds field context to an error.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithMissing records the uncovered variants of a non-exhaustive match.
func (e *Error) WithMissing(missing []string) *Error {
	e.Missing = missing
	return e
}

// WithErr attaches an underlying error.
func (e *Error) WithErr(err error) *Error {
	e.Err = err
	return e
}

// KindOf returns the classification of an engine error, or "" for other
// errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the code of an engine error, or "" for other errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsValidation returns true if the error arose from instance validation.
func IsValidation(err error) bool {
	return KindOf(err) == ErrorKindValidation
}

// IsCompile returns true if the error arose from pattern compilation.
func IsCompile(err error) bool {
	return KindOf(err) == ErrorKindCompile
}

// IsDispatch returns true if the error arose at dispatch time.
func IsDispatch(err error) bool {
	return KindOf(err) == ErrorKindDispatch
}

// IsComputation returns true if the error arose from a lazy computation.
func IsComputation(err error) bool {
	return KindOf(err) == ErrorKindComputation
}
