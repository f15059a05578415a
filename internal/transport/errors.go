package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/sony/gobreaker"
)

// Domain errors for the transport package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, transport.ErrNoAddress) {
//	    // device is known but unreachable; fail fast
//	}
var (
	// ErrNoAddress is returned when a call targets a device without an IP address.
	ErrNoAddress = errors.New("transport: device has no ip address")

	// ErrBreakerOpen is returned when the per-host circuit breaker rejects a call.
	ErrBreakerOpen = errors.New("transport: circuit breaker open")
)

// HTTPError represents a non-2xx HTTP response without a structured
// device-level error body.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("transport: http status %d", e.Status)
}

// RPCError is a Gen2+ JSON-RPC error object. It is distinct from an HTTP
// failure; the device answered, but refused the call. Code and Message are
// surfaced verbatim to the caller.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// IsCancelled reports whether the error stems from explicit cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// IsTimeout reports whether a call was in flight past its deadline.
//
// Connect-phase timeouts are classified as unreachable instead; only a
// deadline that expired after the connection was established counts here.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return !isConnectFailure(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return !isConnectFailure(err)
	}
	return false
}

// IsUnreachable reports whether the target host could not be reached at all
// (DNS failure, connection refused, connect timeout, or an open breaker).
func IsUnreachable(err error) bool {
	if errors.Is(err, ErrNoAddress) || errors.Is(err, ErrBreakerOpen) {
		return true
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	return isConnectFailure(err)
}

// isConnectFailure reports whether the error occurred while establishing the
// connection rather than during the exchange.
func isConnectFailure(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		// url.Error wraps the transport failure; recurse into the cause.
		return isConnectFailure(urlErr.Err)
	}
	return false
}

// isRetryable reports whether a failed call qualifies for the single
// automatic retry: connection refused or timeout, never 4xx and never an
// RPC-level refusal.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsCancelled(err) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return isRetryable(urlErr.Err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
