package parameter

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/shelly-fleet-core/internal/jsonpath"
	"github.com/nerrad567/shelly-fleet-core/internal/transport"
)

// ErrorKind is the fleet-visible error taxonomy. Every failed per-device
// operation carries exactly one kind.
type ErrorKind string

// ErrorKind constants.
const (
	KindNone                 ErrorKind = ""
	KindUnknownDevice        ErrorKind = "unknown-device"
	KindUnreachable          ErrorKind = "unreachable"
	KindTimeout              ErrorKind = "timeout"
	KindCancelled            ErrorKind = "cancelled"
	KindUnsupportedParameter ErrorKind = "unsupported-parameter"
	KindPathMissing          ErrorKind = "path-missing"
	KindTypeMismatch         ErrorKind = "type-mismatch"
	KindDeviceError          ErrorKind = "device-error"
	KindHTTPError            ErrorKind = "http-error"
	KindConfirmationRequired ErrorKind = "confirmation-required"
	KindInternal             ErrorKind = "internal"
)

// WarningClamped marks a write whose read-back differs from the requested
// value because the device silently clamped it.
const WarningClamped = "clamped"

// OperationResult is the outcome of one leaf operation against one device.
type OperationResult struct {
	DeviceID    string        `json:"device_id"`
	Success     bool          `json:"success"`
	AttemptedAt time.Time     `json:"attempted_at"`
	Duration    time.Duration `json:"duration"`

	RequestSummary  string `json:"request_summary,omitempty"`
	ResponseSummary string `json:"response_summary,omitempty"`

	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`

	// RebootRequired reflects a restart_required flag from the device or
	// descriptor. It stays set even when the reboot was carried out.
	RebootRequired bool `json:"reboot_required,omitempty"`

	// Warning carries non-fatal observations ("clamped").
	Warning string `json:"warning,omitempty"`

	// SecondaryError records a follow-up failure (a failed coordinated
	// reboot) that does not invalidate the primary success.
	SecondaryError string `json:"secondary_error,omitempty"`

	// Value carries the read result for get/status-flavoured operations.
	Value any `json:"value,omitempty"`

	// Skipped marks group members that were never dispatched.
	Skipped bool `json:"skipped,omitempty"`
}

// finish stamps the duration relative to AttemptedAt.
func (r *OperationResult) finish() {
	r.Duration = time.Since(r.AttemptedAt)
}

// fail marks the result failed with the given kind and message.
func (r *OperationResult) fail(kind ErrorKind, err error) {
	r.Success = false
	r.ErrorKind = kind
	if err != nil {
		r.ErrorMessage = err.Error()
	}
	r.finish()
}

// failFromError classifies err and marks the result failed.
func (r *OperationResult) failFromError(err error) {
	r.fail(Classify(err), err)
}

// succeed marks the result successful.
func (r *OperationResult) succeed(responseSummary string) {
	r.Success = true
	r.ResponseSummary = responseSummary
	r.finish()
}

// newResult starts an OperationResult for a device.
func newResult(deviceID string) OperationResult {
	return OperationResult{
		DeviceID:    deviceID,
		AttemptedAt: time.Now().UTC(),
	}
}

// Classify maps an error onto the fleet taxonomy. Order matters:
// cancellation is checked before timeout because a cancelled context also
// reads as deadline-style failure further down the stack.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, context.Canceled) || transport.IsCancelled(err):
		return KindCancelled
	case transport.IsTimeout(err):
		return KindTimeout
	case transport.IsUnreachable(err):
		return KindUnreachable
	case errors.Is(err, ErrUnsupportedParameter), errors.Is(err, ErrReadOnlyParameter):
		return KindUnsupportedParameter
	case errors.Is(err, jsonpath.ErrPathMissing), errors.Is(err, jsonpath.ErrNotTraversable):
		return KindPathMissing
	case errors.Is(err, ErrTypeMismatch):
		return KindTypeMismatch
	case errors.Is(err, ErrDeviceError):
		return KindDeviceError
	case isHTTPError(err):
		return KindHTTPError
	default:
		return KindInternal
	}
}

func isHTTPError(err error) bool {
	var httpErr *transport.HTTPError
	return errors.As(err, &httpErr)
}
