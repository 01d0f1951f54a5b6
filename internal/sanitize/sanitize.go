// Package sanitize redacts secret-shaped substrings from text destined for
// logs or user-visible errors. Redaction is deliberately conservative: over-
// redacting is acceptable, leaking is not.
package sanitize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Placeholder replaces every redacted match.
const Placeholder = "[REDACTED]"

var (
	// ErrEmptyInput indicates a required input was empty.
	ErrEmptyInput = errors.New("input cannot be empty")
	// ErrInvalidInput indicates an input contained dangerous characters.
	ErrInvalidInput = errors.New("input contains dangerous characters")
	// ErrTooLong indicates an input exceeded its maximum length.
	ErrTooLong = errors.New("input exceeds maximum length")
)

var (
	reBearer = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]+`)
	reSKKey  = regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{6,}`)
	rePair   = regexp.MustCompile(`(?i)\b(api[_-]?key|access[_-]?token|refresh[_-]?token|session[_-]?token|sessionkey|token|secret|password|authorization|cookie)(\s*[=:]\s*)[^\s;,&"']+`)
	reOpaque = regexp.MustCompile(`\b[A-Za-z0-9_+/-]{20,}={0,2}`)
)

// Redact replaces secret-shaped substrings with the placeholder: bearer
// tokens, sk-prefixed keys, key=value credential pairs, and long opaque
// alphanumeric runs. Pure and deterministic.
func Redact(s string) string {
	out := reBearer.ReplaceAllString(s, Placeholder)
	out = reSKKey.ReplaceAllString(out, Placeholder)
	out = rePair.ReplaceAllString(out, "${1}${2}"+Placeholder)
	out = reOpaque.ReplaceAllString(out, Placeholder)
	return out
}

// Email masks an email address for safe logging, keeping the domain:
// "john.doe@example.com" becomes "jo...@example.com".
func Email(email string) string {
	idx := strings.Index(email, "@")
	if idx < 0 {
		return "***"
	}
	local, domain := email[:idx], email[idx:]
	if len(local) > 2 {
		return local[:2] + "..." + domain
	}
	return "***" + domain
}

// Token masks a token, keeping only the last four characters.
func Token(token string) string {
	if len(token) > 4 {
		return "***" + token[len(token)-4:]
	}
	return "****"
}

// URL strips query parameters and fragments, which may carry tokens.
func URL(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		u = u[:i]
	}
	if i := strings.IndexByte(u, '#'); i >= 0 {
		u = u[:i]
	}
	return u
}

// Mask shows only the first and last n characters of a string.
func Mask(s string, n int) string {
	if len(s) <= n*2 {
		return "****"
	}
	return s[:n] + "..." + s[len(s)-n:]
}

// ValidateInput rejects inputs containing HTML metacharacters, null bytes,
// or control characters other than tab, newline, and carriage return.
func ValidateInput(s string) error {
	if s == "" {
		return ErrEmptyInput
	}
	if strings.ContainsAny(s, `<>"'&`+"\x00") {
		return ErrInvalidInput
	}
	for _, r := range s {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return ErrInvalidInput
		}
	}
	return nil
}

// ValidateInputMax validates like ValidateInput with a length ceiling.
func ValidateInputMax(s string, max int) error {
	if len(s) > max {
		return fmt.Errorf("%w of %d", ErrTooLong, max)
	}
	return ValidateInput(s)
}
