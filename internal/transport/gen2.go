package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// rpcRequest is the JSON-RPC frame POSTed to /rpc on Gen2+ devices.
type rpcRequest struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// rpcResponse is the JSON-RPC frame returned by Gen2+ devices.
type rpcResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Gen2Call issues a single JSON-RPC call against a Gen2+ device.
//
// The request is POSTed to http://{ip}/rpc with a monotonically increasing
// id. A JSON-RPC error object is distinct from an HTTP failure: both are
// surfaced distinctly so callers can map them to different error kinds.
// RPC-level refusals are never retried.
//
// Parameters:
//   - ctx: Context for cancellation and deadline
//   - ip: Device IP address
//   - method: RPC method name, e.g. "Shelly.GetStatus", "Switch.Set"
//   - params: Optional params object; nil omits the field
//
// Returns:
//   - any: Decoded result payload (nil when the device returned an error)
//   - *RPCError: Device-level refusal, nil on success
//   - error: Transport-level failure (unreachable, timeout, non-200 HTTP)
func (c *Client) Gen2Call(ctx context.Context, ip, method string, params any) (any, *RPCError, error) {
	if ip == "" {
		return nil, nil, ErrNoAddress
	}

	frame := rpcRequest{
		ID:     c.NextRPCID(),
		Method: method,
		Params: params,
	}

	encoded, err := json.Marshal(frame)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding rpc request: %w", err)
	}

	c.logger.Debug("gen2 call", "ip", ip, "method", method, "rpc_id", frame.ID)

	target := "http://" + ip + "/rpc"

	body, status, err := c.do(ctx, ip, func(reqCtx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, target, bytes.NewReader(encoded))
		if err != nil {
			return nil, fmt.Errorf("building rpc request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, nil, err
	}

	if status != http.StatusOK {
		return nil, nil, &HTTPError{Status: status, Body: string(body)}
	}

	var resp rpcResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, nil, fmt.Errorf("decoding rpc response: %w", err)
	}

	if resp.Error != nil {
		return nil, resp.Error, nil
	}

	if len(resp.Result) == 0 {
		return nil, nil, nil
	}

	var result any
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, nil, fmt.Errorf("decoding rpc result: %w", err)
	}

	return result, nil, nil
}
