// Package errors provides centralized error definitions for the application.
// Errors are organized by domain to avoid duplication and provide consistent naming.
//
// Naming conventions:
//   - Exported errors (Err*): Use for errors that callers need to check with errors.Is
//   - All sentinel errors should be defined as variables, not inline errors.New calls
//   - Use fmt.Errorf with %w to wrap sentinel errors with context
package errors

import (
	"errors"
	"fmt"
)

// Circuit breaker and provider errors.
var (
	// ErrCircuitBreakerOpen indicates the circuit breaker has tripped and requests are blocked.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

	// ErrRateLimited indicates the provider asked us to slow down.
	ErrRateLimited = errors.New("rate limited")

	// ErrProviderUnavailable indicates a transient provider-side failure (5xx, overload).
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrBudgetExceeded indicates the daily token budget has been spent.
	ErrBudgetExceeded = errors.New("token budget exceeded")
)

// Response and parsing errors.
var (
	// ErrEmptyResponse indicates an empty response was received.
	ErrEmptyResponse = errors.New("empty response")

	// ErrSchemaValidation indicates a model response did not match the required schema.
	ErrSchemaValidation = errors.New("structured output failed schema validation")

	// ErrMalformedCustomID indicates a batch correlation id could not be parsed.
	ErrMalformedCustomID = errors.New("malformed custom id")

	// ErrMalformedLine indicates a batch output line could not be decoded.
	ErrMalformedLine = errors.New("malformed batch line")
)

// Validation errors.
var (
	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidID indicates an invalid identifier.
	ErrInvalidID = errors.New("invalid id")

	// ErrMissingField indicates a required field was absent.
	ErrMissingField = errors.New("missing required field")
)

// Lookup errors.
var (
	// ErrNotFound is a generic not found error.
	ErrNotFound = errors.New("not found")

	// ErrBatchNotTerminal indicates ingestion was requested before the job finished.
	ErrBatchNotTerminal = errors.New("batch job is not in a terminal state")
)

// ParseFailure is raised when a chunk's structured output stays invalid after the
// same-model retry and escalation. Raw holds the last unparseable model output.
type ParseFailure struct {
	MessageID  string
	ChunkIndex int
	Model      string
	Raw        string
	Cause      error
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("parse failure for message %s chunk %d (model %s): %v", e.MessageID, e.ChunkIndex, e.Model, e.Cause)
}

func (e *ParseFailure) Unwrap() error {
	return e.Cause
}

// RawExcerpt returns Raw cut to at most maxRunes runes, for logging.
func (e *ParseFailure) RawExcerpt(maxRunes int) string {
	runes := []rune(e.Raw)
	if maxRunes < 0 || len(runes) <= maxRunes {
		return e.Raw
	}

	return string(runes[:maxRunes]) + "…"
}

// Is is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
