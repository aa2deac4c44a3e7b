package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// HTTPStatusError is implemented by provider errors that carry the HTTP
// response status, such as the Places client's APIError. It lets retry
// classification see the status without this package depending on any
// provider's concrete error type.
type HTTPStatusError interface {
	error
	HTTPStatus() int
}

// IsTransient reports whether an error is worth retrying: a provider
// response with a retryable status, a network timeout, or a dropped
// connection. Everything else fails fast.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var statusErr HTTPStatusError
	if errors.As(err, &statusErr) {
		return IsTransientHTTPStatus(statusErr.HTTPStatus())
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	// Transport errors sometimes arrive flattened to text by wrapping.
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection reset by peer",
		"tls handshake timeout",
		"i/o timeout",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus reports whether an HTTP status code is safe to
// retry: request timeout, rate limiting, and server-side failures.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
