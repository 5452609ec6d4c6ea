package storage

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrObjectNotFound marks a missing object or bucket. Never retried.
var ErrObjectNotFound = errors.New("object not found")

// IsNotFound reports whether err represents a missing object or bucket.
// Parameters:
//   - err: error to classify.
// Returns:
//   - bool: true for not-found errors.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrObjectNotFound) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "NoSuchKey") ||
		strings.Contains(msg, "NoSuchBucket") ||
		strings.Contains(msg, "NotFound") ||
		strings.Contains(msg, "404")
}

// IsAccessDenied reports whether err represents an authorization failure.
// Parameters:
//   - err: error to classify.
// Returns:
//   - bool: true for access-denied errors.
func IsAccessDenied(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "AccessDenied") ||
		strings.Contains(msg, "InvalidAccessKeyId") ||
		strings.Contains(msg, "SignatureDoesNotMatch") ||
		strings.Contains(msg, "403")
}

// IsTransient reports whether err looks like a temporary infrastructure
// failure worth retrying with backoff. Not-found and access-denied errors
// are never transient.
// Parameters:
//   - err: error to classify.
// Returns:
//   - bool: true for retryable errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsNotFound(err) || IsAccessDenied(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SlowDown") ||
		strings.Contains(msg, "Throttl") ||
		strings.Contains(msg, "RequestTimeout") ||
		strings.Contains(msg, "InternalError") ||
		strings.Contains(msg, "ServiceUnavailable") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "500")
}
