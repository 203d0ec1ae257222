package engine

import (
	"errors"
	"fmt"
)

// ErrorClass classifies engine errors for reporting and failure handling.
type ErrorClass string

const (
	// ErrorClassCompile indicates the catalog could not be compiled or
	// resolved. Fatal: no plan is produced and no host mutation occurs.
	ErrorClassCompile ErrorClass = "compile"

	// ErrorClassApply indicates a single resource's provider reported a
	// failure. Local to that resource; dependents are skipped, unrelated
	// resources continue.
	ErrorClassApply ErrorClass = "apply"

	// ErrorClassProviderUnavailable indicates a required provider capability
	// is missing. Fatal for the affected resource only.
	ErrorClassProviderUnavailable ErrorClass = "provider_unavailable"
)

// EngineError is a classified error with resource and operation context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource is the "type[title]" reference that caused the error, if any.
	Resource string `json:"resource,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Resource != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (resource=%s, operation=%s): %s",
			e.Class, e.Message, e.Resource, e.Operation, e.unwrapMessage())
	}
	if e.Resource != "" {
		return fmt.Sprintf("[%s] %s (resource=%s): %s",
			e.Class, e.Message, e.Resource, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

func (e *EngineError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewCompileError creates a new compile-class error.
func NewCompileError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassCompile,
		Message: message,
		Err:     err,
	}
}

// NewApplyError creates a new apply-class error.
func NewApplyError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassApply,
		Message: message,
		Err:     err,
	}
}

// NewProviderUnavailableError creates an error for a missing provider capability.
func NewProviderUnavailableError(resourceType string) *EngineError {
	return &EngineError{
		Class:   ErrorClassProviderUnavailable,
		Message: fmt.Sprintf("no provider registered for resource type %q", resourceType),
		Code:    ErrCodeProviderMissing,
	}
}

// WithResource adds resource context to an error.
func (e *EngineError) WithResource(resource string) *EngineError {
	e.Resource = resource
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// IsCompileError returns true if the error is classified as a compile error.
func IsCompileError(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassCompile
	}
	return false
}

// IsApplyError returns true if the error is classified as an apply error.
func IsApplyError(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassApply
	}
	return false
}

// IsProviderUnavailable returns true if the error reports a missing provider.
func IsProviderUnavailable(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassProviderUnavailable
	}
	return false
}

// Common error codes.
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeDuplicateResource   = "DUPLICATE_RESOURCE"
	ErrCodeUnresolvedReference = "UNRESOLVED_REFERENCE"
	ErrCodeDependencyCycle     = "DEPENDENCY_CYCLE"
	ErrCodeInvalidParameters   = "INVALID_PARAMETERS"
	ErrCodeUnsupportedRunStyle = "UNSUPPORTED_RUN_STYLE"
	ErrCodeProviderFailed      = "PROVIDER_FAILED"
	ErrCodeProviderMissing     = "PROVIDER_MISSING"
	ErrCodeDependencyFailed    = "DEPENDENCY_FAILED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)
