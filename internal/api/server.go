// Package api provides the HTTP façade and WebSocket event stream for the
// Shelly fleet core.
//
// The façade calls core operations and renders domain objects as JSON;
// serialisation is its only concern. Exit-code semantics live in the CLI;
// here contract violations map onto HTTP statuses (confirmation-required →
// 409, unknown group → 404, invalid arguments → 400).
//
// The server follows the lifecycle pattern of the other infrastructure
// components:
//
//	server := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/shelly-fleet-core/internal/capability"
	"github.com/nerrad567/shelly-fleet-core/internal/device"
	"github.com/nerrad567/shelly-fleet-core/internal/discovery"
	"github.com/nerrad567/shelly-fleet-core/internal/group"
	"github.com/nerrad567/shelly-fleet-core/internal/history"
	"github.com/nerrad567/shelly-fleet-core/internal/infrastructure/config"
	"github.com/nerrad567/shelly-fleet-core/internal/infrastructure/logging"
	"github.com/nerrad567/shelly-fleet-core/internal/parameter"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Discovery config.DiscoveryConfig
	Logger    *logging.Logger

	Registry   *device.Registry
	Catalogue  *capability.Catalogue
	Discoverer *capability.Discoverer
	Scanner    *discovery.Engine
	Engine     *parameter.Engine
	Executor   *group.Executor
	Groups     *group.Repository
	History    *history.Store // optional

	Version string
	Started time.Time
}

// Server is the HTTP API server for the fleet core.
type Server struct {
	deps   Deps
	logger *logging.Logger
	server *http.Server
	hub    *Hub
	cancel context.CancelFunc
}

// New creates an API server from its dependencies.
func New(deps Deps) *Server {
	s := &Server{
		deps:   deps,
		logger: deps.Logger.Component("api"),
		hub:    NewHub(deps.WS, deps.Logger),
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", deps.Config.Host, deps.Config.Port),
		Handler:      s.buildRouter(),
		ReadTimeout:  time.Duration(deps.Config.Timeouts.Read) * time.Second,
		WriteTimeout: time.Duration(deps.Config.Timeouts.Write) * time.Second,
		IdleTimeout:  time.Duration(deps.Config.Timeouts.Idle) * time.Second,
	}

	return s
}

// Start begins serving and forwarding discovery events to the WebSocket
// hub. It returns once the listener is running; serve errors are logged.
func (s *Server) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	// Bridge discovery events onto the hub.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-s.deps.Scanner.Events():
				s.hub.Broadcast(string(event.Type), event)
			}
		}
	}()

	go func() {
		s.logger.Info("api server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server failed", "error", err)
		}
	}()
}

// Close shuts the server down gracefully.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.hub.CloseAll()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down api server: %w", err)
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
