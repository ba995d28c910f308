package mux

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	// ErrNotFound is wrapped by ProviderError when the remote resource does not exist.
	ErrNotFound = errors.New("remote resource not found")
	// ErrSigningKeyMissing is returned when a signed URL is requested without a signing key.
	ErrSigningKeyMissing = errors.New("playback signing key is not configured")
)

// ProviderError describes a failed call to the provider API.
type ProviderError struct {
	Op         string
	StatusCode int
	Type       string
	Messages   []string
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, ": HTTP %d", e.StatusCode)
	}
	if e.Type != "" {
		b.WriteString(" ")
		b.WriteString(e.Type)
	}
	if len(e.Messages) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Messages, "; "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Transient reports whether retrying the call may succeed:
// client-side timeouts and provider rate limiting (429).
func (e *ProviderError) Transient() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if e.Err == nil {
		return false
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// IsTransient reports whether err is a transient provider failure.
func IsTransient(err error) bool {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Transient()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsNotFound reports whether err is a remote 404.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
