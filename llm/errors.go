package llm

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	ErrKindAuth       ErrorKind = "auth"
	ErrKindRateLimit  ErrorKind = "rate_limit"
	ErrKindBadRequest ErrorKind = "bad_request"
	ErrKindNotFound   ErrorKind = "not_found"
	ErrKindServer     ErrorKind = "server"
	ErrKindTimeout    ErrorKind = "timeout"
	ErrKindCanceled   ErrorKind = "canceled"
	ErrKindParse      ErrorKind = "parse"

	// ErrKindConfig marks fatal configuration errors (billing not configured,
	// customer ID missing). Never retryable.
	ErrKindConfig ErrorKind = "config"

	// ErrKindUnbilled marks a stream that completed without a usage payload.
	// Raised distinctly so it can be alerted on separately from functional failures.
	ErrKindUnbilled ErrorKind = "unbilled"

	ErrKindUnknown ErrorKind = "unknown"
)

// LLMError is a provider-agnostic error container.
//
// It carries a stable classification, the raw vendor payload, and retry hints.
// Retry policy itself belongs to the caller; this layer never retries.
type LLMError struct {
	Provider string
	Kind     ErrorKind

	HTTPStatus   int
	ProviderCode string
	Message      string

	Retryable bool

	// Raw is an optional raw error payload (e.g. the HTTP response body).
	Raw []byte

	Cause error
}

func (e *LLMError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Provider != "" {
		return fmt.Sprintf("llm %s: %s", e.Provider, msg)
	}
	return fmt.Sprintf("llm: %s", msg)
}

func (e *LLMError) Unwrap() error { return e.Cause }

func AsLLMError(err error) (*LLMError, bool) {
	var e *LLMError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsConfig reports whether err is a fatal configuration error.
func IsConfig(err error) bool {
	e, ok := AsLLMError(err)
	return ok && e.Kind == ErrKindConfig
}

// IsUnbilled reports whether err is an unbilled-completion error.
func IsUnbilled(err error) bool {
	e, ok := AsLLMError(err)
	return ok && e.Kind == ErrKindUnbilled
}
