package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"acadgen/internal/models"
)

// Request is a normalized generation request sent to a provider.
type Request struct {
	Kind      models.OperationKind
	Prompt    string
	MaxTokens int
}

// Result is a normalized provider response.
type Result struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Latency      time.Duration
}

// Provider is implemented by each concrete generation backend. The
// secondary (fallback) provider exposes the same interface, so the
// failover client can address both uniformly.
type Provider interface {
	// Name returns the identifier recorded in usage records
	Name() string

	// Generate sends a single generation request. Errors are returned
	// as *Error so callers can classify them.
	Generate(ctx context.Context, req Request) (*Result, error)

	// Close performs cleanup when the provider is no longer needed
	Close() error
}

// ErrorKind classifies a provider failure.
type ErrorKind string

const (
	ErrTimeout   ErrorKind = "timeout"
	ErrThrottled ErrorKind = "throttled"
	ErrServer    ErrorKind = "server_error"
	ErrInvalid   ErrorKind = "invalid_input"
	ErrAuth      ErrorKind = "auth"
	ErrPolicy    ErrorKind = "content_policy"
)

// Error is a classified provider failure. Raw provider text stays in
// Message for operators; callers surface only the Kind.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("provider error (%s, status=%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("provider error (%s): %s", e.Kind, e.Message)
}

// Transient reports whether a retry is expected to help
func (e *Error) Transient() bool {
	switch e.Kind {
	case ErrTimeout, ErrThrottled, ErrServer:
		return true
	default:
		return false
	}
}

// Classify extracts the error kind from any error returned by a
// provider call. Unclassified errors are treated as server errors.
func Classify(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrServer
}

// IsTransient reports whether an error is worth retrying
func IsTransient(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Transient()
	}
	// Network-level failures and deadline hits are retryable
	return true
}

// classifyStatus maps an HTTP status to an error kind
func classifyStatus(status int) ErrorKind {
	switch {
	case status == 408:
		return ErrTimeout
	case status == 429:
		return ErrThrottled
	case status == 401 || status == 403:
		return ErrAuth
	case status >= 400 && status < 500:
		return ErrInvalid
	default:
		return ErrServer
	}
}
