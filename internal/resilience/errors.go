package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// TransientError wraps an error that is safe to retry (connection faults,
// timeouts, and the HTTP statuses the target uses for IP-reputation
// throttling: 403 and 429).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP
// status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// AbsentError marks a resource that does not exist (non-200 status outside
// the retryable set). Callers proceed without the page; no retry.
type AbsentError struct {
	StatusCode int
	URL        string
}

func (e *AbsentError) Error() string {
	return fmt.Sprintf("resource absent: http %d from %s", e.StatusCode, e.URL)
}

// IsAbsent reports whether the error chain marks a permanently absent
// resource.
func IsAbsent(err error) bool {
	var ae *AbsentError
	return errors.As(err, &ae)
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or if it matches common transient network patterns
// (timeouts, connection resets, DNS failures).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// Absence is terminal regardless of what wraps it.
	if IsAbsent(err) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
		"context deadline exceeded",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsRetryableHTTPStatus reports whether a status should be retried rather
// than treated as resource absence. 403 is included: on this target it
// correlates with transient IP reputation, not a permanent block.
func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 403, 429:
		return true
	default:
		return false
	}
}
