package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
)

// Logger defines the logging interface used by the Client.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// maxResponseBytes bounds how much of a device response is read. Embedded
// Shelly HTTP servers never legitimately exceed this.
const maxResponseBytes = 1 << 20

// Config contains transport client settings.
type Config struct {
	// Timeout is the per-request deadline.
	Timeout time.Duration

	// RetryBackoff is the delay before the single automatic retry.
	RetryBackoff time.Duration

	// IdleConnTimeout is how long idle pooled connections are kept.
	IdleConnTimeout time.Duration

	// BreakerEnabled turns the per-host circuit breaker on.
	BreakerEnabled bool

	// BreakerMaxFailures is how many consecutive failures open a host's breaker.
	BreakerMaxFailures uint32

	// BreakerOpenFor is how long an open breaker rejects calls before half-open.
	BreakerOpenFor time.Duration
}

// DefaultConfig returns the transport defaults: 5 s per request, one retry
// after 250 ms, 30 s idle connection reap.
func DefaultConfig() Config {
	return Config{
		Timeout:            5 * time.Second,
		RetryBackoff:       250 * time.Millisecond,
		IdleConnTimeout:    30 * time.Second,
		BreakerEnabled:     true,
		BreakerMaxFailures: 5,
		BreakerOpenFor:     30 * time.Second,
	}
}

// Client performs single-device HTTP calls in both vendor dialects:
// Gen1 REST (GET with query parameters) and Gen2+ JSON-RPC over POST /rpc.
//
// Connections are pooled per host by the underlying http.Transport. Each
// host additionally gets a circuit breaker so a dead device stops consuming
// dial timeouts during fleet fan-outs.
//
// All methods are safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     Logger

	rpcID atomic.Int64

	breakerMu sync.Mutex
	breakers  map[string]*gobreaker.CircuitBreaker
}

// New creates a transport client with the given configuration.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.IdleConnTimeout <= 0 {
		cfg.IdleConnTimeout = DefaultConfig().IdleConnTimeout
	}

	httpTransport := &http.Transport{
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     cfg.IdleConnTimeout,
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: httpTransport,
			// Deadlines come from the per-call context, not a client-wide
			// timeout, so callers can shorten them.
		},
		logger:   noopLogger{},
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// Close releases pooled connections.
func (c *Client) Close() {
	if t, ok := c.httpClient.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}

// NextRPCID returns the next monotonic JSON-RPC request id.
func (c *Client) NextRPCID() int64 {
	return c.rpcID.Add(1)
}

// breakerFor returns (creating if needed) the circuit breaker for a host.
func (c *Client) breakerFor(host string) *gobreaker.CircuitBreaker {
	c.breakerMu.Lock()
	defer c.breakerMu.Unlock()

	if br, ok := c.breakers[host]; ok {
		return br
	}

	maxFailures := c.cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = DefaultConfig().BreakerMaxFailures
	}
	openFor := c.cfg.BreakerOpenFor
	if openFor <= 0 {
		openFor = DefaultConfig().BreakerOpenFor
	}

	br := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    host,
		Timeout: openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change",
				"host", name, "from", from.String(), "to", to.String())
		},
	})
	c.breakers[host] = br
	return br
}

// do performs one HTTP exchange with retry and breaker handling.
//
// The response body is fully read and returned along with the HTTP status.
// Cancellation aborts in-flight I/O immediately and suppresses the retry.
func (c *Client) do(ctx context.Context, host string, build func(ctx context.Context) (*http.Request, error)) ([]byte, int, error) {
	attempt := func() ([]byte, int, error) {
		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		req, err := build(reqCtx)
		if err != nil {
			return nil, 0, err
		}

		exec := func() (any, error) {
			resp, err := c.httpClient.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close() //nolint:errcheck // Best effort close on read path

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
			if err != nil {
				return nil, fmt.Errorf("reading response body: %w", err)
			}
			return &httpExchange{status: resp.StatusCode, body: body}, nil
		}

		var result any
		if c.cfg.BreakerEnabled {
			result, err = c.breakerFor(host).Execute(exec)
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				err = fmt.Errorf("%w: %w", ErrBreakerOpen, err)
			}
		} else {
			result, err = exec()
		}
		if err != nil {
			// Surface the caller's cancellation rather than the wrapped I/O error.
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			return nil, 0, err
		}

		exch := result.(*httpExchange)
		return exch.body, exch.status, nil
	}

	body, status, err := attempt()
	if err == nil || !isRetryable(err) {
		return body, status, err
	}

	c.logger.Debug("retrying device call", "host", host, "error", err)

	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case <-time.After(c.cfg.RetryBackoff):
	}

	return attempt()
}

// httpExchange carries a completed HTTP response through the breaker, which
// only distinguishes error from non-error. Non-2xx statuses are not breaker
// failures; the host is alive.
type httpExchange struct {
	status int
	body   []byte
}

// decodeJSON unmarshals a device response body, tolerating empty bodies.
func decodeJSON(body []byte) (any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return nil, fmt.Errorf("decoding device response: %w", err)
	}
	return v, nil
}
