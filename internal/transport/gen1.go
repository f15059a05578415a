package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Gen1Call issues a single legacy REST call against a Gen1 device.
//
// The request goes to http://{ip}/{subpath} with the given query values.
// Gen1 config writes are GETs with query parameters; that is the vendor
// convention and callers must encode write values into query. Boolean
// values must already be serialised as the lowercase literals "true" /
// "false" by the coercion layer.
//
// Parameters:
//   - ctx: Context for cancellation and deadline
//   - ip: Device IP address
//   - method: HTTP method (GET for reads and writes, per the vendor API)
//   - subpath: Endpoint below the device root, e.g. "settings", "relay/0"
//   - query: Optional query values; nil for plain reads
//
// Returns:
//   - any: Decoded JSON payload (nil for empty bodies)
//   - int: HTTP status code
//   - error: Transport-level failure; non-2xx statuses are NOT errors here
func (c *Client) Gen1Call(ctx context.Context, ip, method, subpath string, query url.Values) (any, int, error) {
	if ip == "" {
		return nil, 0, ErrNoAddress
	}
	if method == "" {
		method = http.MethodGet
	}

	target := url.URL{
		Scheme: "http",
		Host:   ip,
		Path:   "/" + strings.TrimPrefix(subpath, "/"),
	}
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	c.logger.Debug("gen1 call", "ip", ip, "method", method, "path", target.Path, "query", target.RawQuery)

	body, status, err := c.do(ctx, ip, func(reqCtx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(reqCtx, method, target.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("building gen1 request: %w", err)
		}
		return req, nil
	})
	if err != nil {
		return nil, 0, err
	}

	payload, decodeErr := decodeJSON(body)
	if decodeErr != nil {
		// A non-2xx status is classified by the caller, whatever its body.
		if status < 200 || status > 299 {
			return nil, status, nil
		}
		// A non-JSON body on a 2xx response is a device bug; surface the
		// status so the caller can still classify.
		return nil, status, decodeErr
	}

	return payload, status, nil
}
