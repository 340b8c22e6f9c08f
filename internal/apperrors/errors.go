// Package apperrors implements the HTTP-mapped error taxonomy described in
// spec §7: every error that can reach an ingress response or a resource
// status carries an ErrorType that maps deterministically to an HTTP
// status code and a safe, client-facing message.
package apperrors

import (
	"fmt"
	"net/http"
)

// ErrorType classifies an AppError for HTTP status mapping and safe messaging.
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeAuth          ErrorType = "auth"
	ErrorTypeParse         ErrorType = "parse"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeConflict      ErrorType = "conflict"
	ErrorTypeBackpressure  ErrorType = "backpressure"
	ErrorTypeRateLimit     ErrorType = "rate_limit"
	ErrorTypeStep          ErrorType = "step"
	ErrorTypeSinkDelivery  ErrorType = "sink_delivery"
	ErrorTypeStore         ErrorType = "store"
	ErrorTypeLLMProvider   ErrorType = "llm_provider"
	ErrorTypeDatabase      ErrorType = "database"
	ErrorTypeNetwork       ErrorType = "network"
	ErrorTypeInternal      ErrorType = "internal"
	ErrorTypeTimeout       ErrorType = "timeout"
)

// StepErrorKind refines ErrorTypeStep per spec §7 (StepError includes
// CLIError, AgentError, ToolDeniedError, TimeoutError, CancelledError).
type StepErrorKind string

const (
	StepKindCLI          StepErrorKind = "cli"
	StepKindAgent        StepErrorKind = "agent"
	StepKindToolDenied   StepErrorKind = "tool_denied"
	StepKindTimeout      StepErrorKind = "timeout"
	StepKindCancelled    StepErrorKind = "cancelled"
)

// AppError is the structured error carried through HTTP responses, resource
// status fields, and the audit log.
type AppError struct {
	Type       ErrorType
	StepKind   StepErrorKind
	Message    string
	Details    string
	StatusCode int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails attaches a plain-text detail string in place and returns e.
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithDetailsf attaches a formatted detail string in place and returns e.
func (e *AppError) WithDetailsf(format string, args ...interface{}) *AppError {
	e.Details = fmt.Sprintf(format, args...)
	return e
}

// statusCodeFor maps an ErrorType to its HTTP status code.
func statusCodeFor(t ErrorType) int {
	switch t {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeAuth:
		return http.StatusUnauthorized
	case ErrorTypeParse:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeTimeout:
		return http.StatusRequestTimeout
	case ErrorTypeBackpressure, ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeStep, ErrorTypeSinkDelivery, ErrorTypeStore, ErrorTypeLLMProvider,
		ErrorTypeDatabase, ErrorTypeNetwork, ErrorTypeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// New creates an AppError of the given type with the default status code.
func New(t ErrorType, message string) *AppError {
	return &AppError{Type: t, Message: message, StatusCode: statusCodeFor(t)}
}

// Wrap creates an AppError of the given type wrapping an underlying cause.
func Wrap(cause error, t ErrorType, message string) *AppError {
	e := New(t, message)
	e.Cause = cause
	return e
}

// Wrapf creates an AppError wrapping cause with a formatted message.
func Wrapf(cause error, t ErrorType, format string, args ...interface{}) *AppError {
	return Wrap(cause, t, fmt.Sprintf(format, args...))
}

// --- predefined constructors, one per spec §7 taxonomy entry ---

func NewValidationError(message string) *AppError { return New(ErrorTypeValidation, message) }

func NewAuthError(message string) *AppError { return New(ErrorTypeAuth, message) }

func NewParseError(resource string, cause error) *AppError {
	return Wrapf(cause, ErrorTypeParse, "failed to parse %s", resource)
}

func NewNotFoundError(resource string) *AppError {
	return New(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource))
}

func NewDatabaseError(operation string, cause error) *AppError {
	return Wrapf(cause, ErrorTypeDatabase, "database operation failed: %s", operation)
}

func NewTimeoutError(operation string) *AppError {
	return New(ErrorTypeTimeout, fmt.Sprintf("operation timed out: %s", operation))
}

func NewBackpressureError(queue string) *AppError {
	return New(ErrorTypeBackpressure, fmt.Sprintf("queue %s is at capacity", queue))
}

func NewRateLimitedError(source string) *AppError {
	return New(ErrorTypeRateLimit, fmt.Sprintf("source %s exceeded its event rate limit", source))
}

// NewStepError builds a StepError of the given kind (CLIError, AgentError,
// ToolDeniedError, TimeoutError, CancelledError) carrying the step name.
func NewStepError(kind StepErrorKind, step string, cause error) *AppError {
	e := Wrapf(cause, ErrorTypeStep, "step %s failed", step)
	e.StepKind = kind
	return e
}

func NewSinkDeliveryError(sink string, cause error) *AppError {
	return Wrapf(cause, ErrorTypeSinkDelivery, "delivery to sink %s failed", sink)
}

func NewStoreError(operation string, cause error) *AppError {
	return Wrapf(cause, ErrorTypeStore, "store operation failed: %s", operation)
}

func NewLLMProviderError(provider string, cause error) *AppError {
	return Wrapf(cause, ErrorTypeLLMProvider, "llm provider %s failed", provider)
}

// IsType reports whether err is an *AppError of exactly type t.
func IsType(err error, t ErrorType) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Type == t
}

// GetType returns the ErrorType of err, or ErrorTypeInternal if err is not an *AppError.
func GetType(err error) ErrorType {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// GetStatusCode returns the HTTP status code associated with err.
func GetStatusCode(err error) int {
	if appErr, ok := err.(*AppError); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// safeMessages holds the client-facing text for error types whose raw
// message might leak internal detail.
var safeMessages = map[ErrorType]string{
	ErrorTypeNotFound:     "the requested resource was not found",
	ErrorTypeAuth:         "authentication failed",
	ErrorTypeTimeout:      "the operation timed out",
	ErrorTypeRateLimit:    "rate limit exceeded, please retry later",
	ErrorTypeConflict:     "the resource was modified concurrently",
	ErrorTypeBackpressure: "the system is at capacity, please retry later",
}

// SafeErrorMessage returns a message safe to surface to an external caller:
// validation messages pass through verbatim (they describe caller input),
// everything else is replaced by a generic safe message to avoid leaking
// internals.
func SafeErrorMessage(err error) string {
	appErr, ok := err.(*AppError)
	if !ok {
		return "an unexpected error occurred"
	}
	if appErr.Type == ErrorTypeValidation {
		return appErr.Message
	}
	if msg, ok := safeMessages[appErr.Type]; ok {
		return msg
	}
	return "an internal error occurred"
}

// LogFields returns structured logging fields describing err.
func LogFields(err error) map[string]interface{} {
	fields := map[string]interface{}{"error": err.Error()}
	appErr, ok := err.(*AppError)
	if !ok {
		return fields
	}
	fields["error_type"] = string(appErr.Type)
	fields["status_code"] = appErr.StatusCode
	if appErr.Details != "" {
		fields["error_details"] = appErr.Details
	}
	if appErr.Cause != nil {
		fields["underlying_error"] = appErr.Cause.Error()
	}
	return fields
}

// Chain joins non-nil errors with " -> ", matching the internal/errors
// teacher behavior exactly (distinct from pkg/shared/errors.Chain's
// "; "-joined summary, kept separate because HTTP error chains read as a
// causal sequence rather than an unordered set).
func Chain(errs ...error) error {
	var nonNil []error
	for _, e := range errs {
		if e != nil {
			nonNil = append(nonNil, e)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		msg := nonNil[0].Error()
		for _, e := range nonNil[1:] {
			msg += " -> " + e.Error()
		}
		return fmt.Errorf("%s", msg)
	}
}
