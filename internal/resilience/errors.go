// Package resilience keeps flaky property data sources from stalling a
// session: retries with backoff for transient fetch failures and a
// per-source circuit breaker for sources that keep failing.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// SourceError is a failed fetch from one named source.
type SourceError struct {
	Source     string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *SourceError) Error() string {
	return e.Source + ": " + e.Err.Error()
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Temporary wraps err as a retryable failure of source. A zero status means
// the failure did not come from an HTTP response.
func Temporary(source string, err error, status int) *SourceError {
	return &SourceError{Source: source, StatusCode: status, Transient: true, Err: err}
}

// Permanent wraps err as a non-retryable failure of source.
func Permanent(source string, err error, status int) *SourceError {
	return &SourceError{Source: source, StatusCode: status, Err: err}
}

// FromStatus classifies an HTTP failure of source by its status code.
func FromStatus(source string, err error, status int) *SourceError {
	if IsTransientHTTPStatus(status) {
		return Temporary(source, err, status)
	}
	return Permanent(source, err, status)
}

var transientMessages = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"rate limit",
}

// IsTransient reports whether err is worth retrying: a SourceError marked
// transient, a network timeout, a refused or reset connection, or an error
// whose message names one of those conditions.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var se *SourceError
	if errors.As(err, &se) {
		return se.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientMessages {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus reports whether status signals a retryable
// server-side condition.
func IsTransientHTTPStatus(status int) bool {
	switch status {
	case 408, 425, 429, 500, 502, 503, 504:
		return true
	}
	return false
}
