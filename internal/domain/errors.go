package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinels for errors.Is matching. Each typed error below matches exactly one.
var (
	ErrConfig        = errors.New("configuration error")
	ErrProvider      = errors.New("provider error")
	ErrContentPolicy = errors.New("content policy refusal")
	ErrDimension     = errors.New("dimension mismatch")
	ErrRetrieval     = errors.New("retrieval error")
	ErrValidation    = errors.New("validation error")

	// ErrEmptyQuery is returned when the caller submits a blank query.
	ErrEmptyQuery = errors.New("query is empty")
)

// ConfigError reports an invalid or missing tunable. Fatal at startup.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// ProviderError is a failure talking to an embedding, generation or index backend.
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	Retryable  bool
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.Op != "" {
		b.WriteString(" " + e.Op)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

// ContentPolicyError means the backend refused to answer. Never retried.
type ContentPolicyError struct {
	Provider string
	Message  string
}

func (e *ContentPolicyError) Error() string {
	return fmt.Sprintf("%s refused to answer: %s", e.Provider, e.Message)
}

func (e *ContentPolicyError) Is(target error) bool { return target == ErrContentPolicy }

// DimensionError means a vector does not match the configured dimensionality.
type DimensionError struct {
	Expected int
	Got      int
	Where    string
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s: dimension mismatch: got %d, want %d", e.Where, e.Got, e.Expected)
}

func (e *DimensionError) Is(target error) bool { return target == ErrDimension }

// RetrievalError means the vector index could not be queried.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string { return "retrieval failed: " + e.Err.Error() }

func (e *RetrievalError) Unwrap() error { return e.Err }

func (e *RetrievalError) Is(target error) bool { return target == ErrRetrieval }

// ValidationError means the model output did not satisfy the answer schema.
type ValidationError struct {
	Problems []string
	Raw      string
}

func (e *ValidationError) Error() string {
	return "invalid model output: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewStatusError classifies an HTTP failure from a backend.
// 408, 429 and 5xx are transient; everything else is not.
func NewStatusError(provider, op string, status int, msg string) *ProviderError {
	retryable := status == 408 || status == 429 || status >= 500
	var err error
	if msg != "" {
		err = errors.New(msg)
	}
	return &ProviderError{Provider: provider, Op: op, StatusCode: status, Retryable: retryable, Err: err}
}

// NewTransportError wraps a network-level failure. Cancellation is not retryable.
func NewTransportError(provider, op string, err error) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Op:        op,
		Retryable: !errors.Is(err, context.Canceled),
		Err:       err,
	}
}

// IsRetryable reports whether err may succeed on a later attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var (
		cpe *ContentPolicyError
		de  *DimensionError
		ve  *ValidationError
		ce  *ConfigError
	)
	if errors.As(err, &cpe) || errors.As(err, &de) || errors.As(err, &ve) || errors.As(err, &ce) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	var re *RetrievalError
	return errors.As(err, &re)
}
