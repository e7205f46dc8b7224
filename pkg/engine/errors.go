package engine

import (
	"errors"
	"fmt"
	"time"
)

// ErrorClass classifies an error for retry and recovery decisions.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on
	// retry. Examples: 502/503/504 responses, connection resets, timeouts.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassThrottled indicates rate limiting by the remote backend.
	// Retried with a larger minimum delay, honoring a server retry hint.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassPermanent indicates a non-recoverable error. Examples:
	// validation failures, authentication failures, missing resources.
	ErrorClassPermanent ErrorClass = "permanent"
)

// EngineError is a classified error carrying deployment context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Stage is the pipeline stage during which the error occurred.
	Stage Stage `json:"stage,omitempty"`

	// Operation is the remote operation being performed, if any.
	Operation string `json:"operation,omitempty"`

	// RetryAfter is a server-supplied delay hint for throttled errors.
	RetryAfter time.Duration `json:"retry_after,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Stage != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (stage=%s, operation=%s): %s",
			e.Class, e.Message, e.Stage, e.Operation, e.unwrapMessage())
	}
	if e.Stage != "" {
		return fmt.Sprintf("[%s] %s (stage=%s): %s",
			e.Class, e.Message, e.Stage, e.unwrapMessage())
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

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassTransient,
		Message: message,
		Err:     err,
	}
}

// NewThrottledError creates a new throttled error.
func NewThrottledError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassThrottled,
		Message: message,
		Code:    ErrCodeRateLimited,
		Err:     err,
	}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassPermanent,
		Message: message,
		Err:     err,
	}
}

// WithStage adds pipeline stage context to an error.
func (e *EngineError) WithStage(stage Stage) *EngineError {
	e.Stage = stage
	return e
}

// WithOperation adds remote operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithRetryAfter records a server-supplied retry hint.
func (e *EngineError) WithRetryAfter(d time.Duration) *EngineError {
	e.RetryAfter = d
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsThrottled returns true if the error is classified as throttled.
func IsThrottled(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassThrottled
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// IsRetryable returns true if the error can be retried.
// Transient and throttled errors are retryable; everything else
// (validation, authentication, not-found) propagates immediately.
func IsRetryable(err error) bool {
	return IsTransient(err) || IsThrottled(err)
}

// RetryAfterHint extracts a server-supplied retry delay from the error
// chain, or zero when none is present.
func RetryAfterHint(err error) time.Duration {
	var e *EngineError
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// Common error codes.
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeAuth               = "AUTH_ERROR"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeTimeout            = "TIMEOUT"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodeConnectionFailed   = "CONNECTION_FAILED"
	ErrCodeCredentialCreation = "CREDENTIAL_CREATION_FAILED"
	ErrCodeWorkflowCreation   = "WORKFLOW_CREATION_FAILED"
	ErrCodeWorkflowActivation = "WORKFLOW_ACTIVATION_FAILED"
	ErrCodePolicyDenied       = "POLICY_DENIED"
)
