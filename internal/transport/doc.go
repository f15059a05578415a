// Package transport performs single-device HTTP calls for the Shelly fleet core.
//
// It speaks both vendor wire dialects:
//
//   - Gen1 REST: GET http://{ip}/{subpath}, config writes as GETs with query
//     parameters, booleans as the lowercase literals "true"/"false"
//   - Gen2+ JSON-RPC: POST http://{ip}/rpc with {"id", "method", "params"}
//
// # Behaviour
//
//   - Per-request timeout (default 5 s) derived from the caller's context
//   - One automatic retry on connection-refused or timeout, 250 ms backoff
//   - No retry on 4xx responses or RPC-level refusals
//   - Connections pooled per host; idle connections reaped after 30 s
//   - Per-host circuit breaker so dead devices stop consuming dial timeouts
//     during fleet fan-outs
//
// # Error Surfaces
//
// Callers distinguish three failure surfaces:
//
//   - error return: the host could not be exchanged with (unreachable,
//     timeout, cancelled, non-200 HTTP on the RPC path)
//   - *RPCError: the Gen2 device answered with a JSON-RPC error object
//   - HTTP status: Gen1 responses carry their status; non-200 is classified
//     by the caller
//
// The predicates IsUnreachable, IsTimeout and IsCancelled map transport
// failures onto the fleet error taxonomy. Cancellation aborts in-flight I/O
// and pending retries immediately.
package transport
