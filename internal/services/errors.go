package services

import "fmt"

// ValidationError is the InvalidArgument case: the caller can fix the input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	for field, msg := range e.Fields {
		return fmt.Sprintf("validation error: %s: %s", field, msg)
	}
	return "validation error"
}

// NotFoundError covers both missing and not-owned resources so callers cannot
// discover other users' data.
type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

// UpstreamUnavailableError means the model provider failed before the first
// fragment. Nothing has been streamed and the client may retry.
type UpstreamUnavailableError struct{ Err error }

func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("model provider unavailable: %v", e.Err)
}

func (e *UpstreamUnavailableError) Unwrap() error { return e.Err }

// UpstreamInterruptedError means the provider stream broke after fragments
// were already forwarded.
type UpstreamInterruptedError struct{ Err error }

func (e *UpstreamInterruptedError) Error() string {
	return fmt.Sprintf("model stream interrupted: %v", e.Err)
}

func (e *UpstreamInterruptedError) Unwrap() error { return e.Err }
