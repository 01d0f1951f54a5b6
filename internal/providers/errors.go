package providers

import (
	"errors"
	"fmt"

	"github.com/j-veylop/quotabar/internal/sanitize"
)

// ErrorKind classifies provider failures.
type ErrorKind int

const (
	// KindNotAuthenticated means no usable credential exists. This is a
	// normal state that should surface a login affordance, not an alert.
	KindNotAuthenticated ErrorKind = iota
	// KindNetworkFailure means the backend was unreachable.
	KindNetworkFailure
	// KindRateLimited means the backend returned HTTP 429.
	KindRateLimited
	// KindParseFailure means the backend answered with something unexpected.
	KindParseFailure
	// KindUnsupported means the credential cannot perform the operation.
	KindUnsupported
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotAuthenticated:
		return "not_authenticated"
	case KindNetworkFailure:
		return "network_failure"
	case KindRateLimited:
		return "rate_limited"
	case KindParseFailure:
		return "parse_failure"
	case KindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Error is a classified provider failure. The message is sanitized at
// construction so it can travel to logs and the UI as-is.
type Error struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	msg        string
}

// NewError builds a classified provider error. The message passes through
// sanitize.Redact.
func NewError(kind ErrorKind, provider, msg string) *Error {
	return &Error{Kind: kind, Provider: provider, msg: sanitize.Redact(msg)}
}

// NewHTTPError builds a classified provider error carrying an HTTP status.
func NewHTTPError(kind ErrorKind, provider string, status int, msg string) *Error {
	return &Error{Kind: kind, Provider: provider, StatusCode: status, msg: sanitize.Redact(msg)}
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Kind, e.StatusCode, e.msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.msg)
}

// Message returns the sanitized human-readable message.
func (e *Error) Message() string {
	return e.msg
}

// IsNotAuthenticated reports whether err is a not-authenticated provider
// error.
func IsNotAuthenticated(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindNotAuthenticated
}

// IsRetryable reports whether the failure is transient and worth retrying
// on the next scheduled tick.
func IsRetryable(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && (pe.Kind == KindNetworkFailure || pe.Kind == KindRateLimited)
}
