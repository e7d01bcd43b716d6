package checker

import (
	"context"
	"net"
	"net/http"
	"syscall"

	"github.com/cnosuke/imgcheck/types"
	"github.com/cockroachdb/errors"
)

// Classify maps an HTTP status code to a tag.
func Classify(code int) types.Status {
	switch {
	case code == http.StatusOK || code == http.StatusPartialContent:
		return types.StatusOK
	case code == http.StatusNotFound:
		return types.StatusNotFound
	case code == http.StatusGone:
		return types.StatusGone
	case code == http.StatusForbidden:
		return types.StatusForbidden
	case code == http.StatusTooManyRequests:
		return types.StatusRateLimited
	case code >= 500:
		return types.StatusServerError
	default:
		return types.StatusOther
	}
}

// ClassifyError maps a transport error to a tag by its type.
func ClassifyError(err error) types.Status {
	if err == nil {
		return types.StatusError
	}
	if errors.Is(err, ErrInvalidURL) {
		return types.StatusInvalidURL
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.StatusTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.StatusTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return types.StatusConnectionError
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return types.StatusConnectionError
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return types.StatusConnectionError
	}
	return types.StatusError
}

// retryable reports whether an attempt outcome is worth another try.
func retryable(status types.Status, code int) bool {
	switch status {
	case types.StatusTimeout, types.StatusConnectionError:
		return true
	}
	switch code {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
