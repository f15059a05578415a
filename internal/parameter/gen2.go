package parameter

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/shelly-fleet-core/internal/capability"
	"github.com/nerrad567/shelly-fleet-core/internal/device"
	"github.com/nerrad567/shelly-fleet-core/internal/jsonpath"
)

// readGen2 reads a parameter from a Gen2+ device.
//
// The reader method is the Getter corresponding to the descriptor's Setter
// (Sys.SetConfig → Sys.GetConfig); a descriptor that already names a Getter
// is called as-is. Indexed components ("switch:0") pass {"id":N} and read
// the config object directly; singleton components descend the component
// key first, then the parameter path.
func (e *Engine) readGen2(ctx context.Context, d *device.Device, desc capability.ParameterDescriptor) (any, error) {
	getter := desc.API
	if g, ok := capability.GetterForSetter(desc.API); ok {
		getter = g
	}

	var params any
	componentIdx, indexed := componentIndex(desc.Component)
	if indexed {
		params = map[string]any{"id": componentIdx}
	}

	result, rpcErr, err := e.transport.Gen2Call(ctx, d.IPAddress, getter, params)
	if err != nil {
		return nil, err
	}
	if rpcErr != nil {
		return nil, fmt.Errorf("%w: rpc %d %s", ErrDeviceError, rpcErr.Code, rpcErr.Message)
	}

	payload := result
	if desc.Component != "" && !indexed {
		descended, err := jsonpath.Resolve(result, desc.Component)
		if err != nil {
			return nil, err
		}
		payload = descended
	}

	leaf, err := jsonpath.Resolve(payload, desc.ParameterPath)
	if err != nil {
		return nil, err
	}
	return CoerceRead(leaf, desc)
}

// writeGen2 writes a parameter on a Gen2+ device.
//
// The params object nests by component kind:
//
//	indexed  ("switch:0"): {"id": 0, "config": {<path>: value}}
//	singleton ("device"):  {"config": {"device": {<path>: value}}}
//	none:                  {"config": {<path>: value}}
//
// Success is the absence of an RPC error; a restart_required flag in the
// result is reported back for reboot coordination.
func (e *Engine) writeGen2(ctx context.Context, d *device.Device, desc capability.ParameterDescriptor, value any, result *OperationResult) (bool, error) {
	config := nestPath(desc.ParameterPath, value)

	params := map[string]any{}
	componentIdx, indexed := componentIndex(desc.Component)
	switch {
	case indexed:
		params["id"] = componentIdx
		params["config"] = config
	case desc.Component != "":
		params["config"] = map[string]any{desc.Component: config}
	default:
		params["config"] = config
	}

	result.RequestSummary = fmt.Sprintf("POST /rpc %s %v", desc.API, params)

	response, rpcErr, err := e.transport.Gen2Call(ctx, d.IPAddress, desc.API, params)
	if err != nil {
		return false, err
	}
	if rpcErr != nil {
		return false, fmt.Errorf("%w: rpc %d %s", ErrDeviceError, rpcErr.Code, rpcErr.Message)
	}

	result.ResponseSummary = "rpc ok"
	return gen2RestartFlag(response), nil
}

// componentIndex extracts the numeric index from an indexed component key
// ("switch:0" → 0, true).
func componentIndex(component string) (int, bool) {
	idx := strings.IndexByte(component, ':')
	if idx < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(component[idx+1:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// nestPath builds the nested object carrying value at a dotted path
// ("sta.ip", v → {"sta": {"ip": v}}).
func nestPath(path string, value any) map[string]any {
	segments := strings.Split(path, ".")
	out := map[string]any{segments[len(segments)-1]: value}
	for i := len(segments) - 2; i >= 0; i-- {
		out = map[string]any{segments[i]: out}
	}
	return out
}

// gen2RestartFlag reads the restart_required flag from a SetConfig result.
func gen2RestartFlag(response any) bool {
	obj, ok := response.(map[string]any)
	if !ok {
		return false
	}
	flag, _ := obj["restart_required"].(bool)
	return flag
}
