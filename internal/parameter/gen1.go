package parameter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/nerrad567/shelly-fleet-core/internal/capability"
	"github.com/nerrad567/shelly-fleet-core/internal/device"
	"github.com/nerrad567/shelly-fleet-core/internal/jsonpath"
	"github.com/nerrad567/shelly-fleet-core/internal/transport"
)

// readGen1 reads a parameter from a Gen1 device: GET the descriptor's
// endpoint and descend the parameter path.
func (e *Engine) readGen1(ctx context.Context, d *device.Device, desc capability.ParameterDescriptor) (any, error) {
	payload, status, err := e.transport.Gen1Call(ctx, d.IPAddress, http.MethodGet, desc.API, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &transport.HTTPError{Status: status}
	}
	if err := gen1DeviceError(payload); err != nil {
		return nil, err
	}

	leaf, err := jsonpath.Resolve(payload, desc.ParameterPath)
	if err != nil {
		return nil, err
	}
	return CoerceRead(leaf, desc)
}

// writeGen1 writes a parameter on a Gen1 device.
//
// Gen1 config writes are GETs with query parameters, by vendor convention.
// The query key is the last path segment unless the descriptor overrides
// it; the value is serialised by the coercion layer (booleans as lowercase
// "true"/"false" literals).
//
// Success is inferred from HTTP 200 and the absence of an "error" field in
// the returned payload. Returns whether the device flagged a restart.
func (e *Engine) writeGen1(ctx context.Context, d *device.Device, desc capability.ParameterDescriptor, value any, result *OperationResult) (bool, error) {
	key := desc.QueryKey
	if key == "" {
		key = jsonpath.LastSegment(desc.ParameterPath)
	}

	query := url.Values{}
	query.Set(key, EncodeGen1(value))

	result.RequestSummary = fmt.Sprintf("GET /%s?%s", desc.API, query.Encode())

	payload, status, err := e.transport.Gen1Call(ctx, d.IPAddress, http.MethodGet, desc.API, query)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, &transport.HTTPError{Status: status}
	}
	if err := gen1DeviceError(payload); err != nil {
		return false, err
	}

	result.ResponseSummary = fmt.Sprintf("HTTP %d", status)
	return gen1RestartFlag(payload), nil
}

// gen1DeviceError surfaces a Gen1 payload-level "error" field.
func gen1DeviceError(payload any) error {
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	if errVal, exists := obj["error"]; exists && errVal != nil {
		if b, isBool := errVal.(bool); isBool && !b {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrDeviceError, errVal)
	}
	return nil
}

// gen1RestartFlag reads a restart hint from an updated settings payload.
func gen1RestartFlag(payload any) bool {
	obj, ok := payload.(map[string]any)
	if !ok {
		return false
	}
	flag, _ := obj["reboot_required"].(bool)
	return flag
}
