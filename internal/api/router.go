package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)

	// WebSocket event stream
	r.Get(s.deps.WS.Path, s.handleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system", s.handleSystem)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/stats", s.handleDeviceStats)

			r.Route("/{mac}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Delete("/", s.handleDeleteDevice)
				r.Get("/supported", s.handleSupported)
				r.Get("/parameters/{name}", s.handleGetParameter)
				r.Put("/parameters/{name}", s.handleSetParameter)
				r.Post("/operate", s.handleOperateDevice)
			})
		})

		r.Route("/discovery", func(r chi.Router) {
			r.Post("/scan", s.handleScan)
		})

		r.Route("/groups", func(r chi.Router) {
			r.Get("/", s.handleListGroups)
			r.Post("/", s.handleCreateGroup)

			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.handleGetGroup)
				r.Put("/", s.handleUpdateGroup)
				r.Delete("/", s.handleDeleteGroup)
				r.Post("/devices/{mac}", s.handleGroupAddDevice)
				r.Delete("/devices/{mac}", s.handleGroupRemoveDevice)
				r.Post("/operate", s.handleGroupOperate)
				r.Post("/parameters", s.handleGroupApply)
			})
		})

		r.Route("/capabilities", func(r chi.Router) {
			r.Get("/", s.handleListCapabilities)
			r.Post("/refresh", s.handleRefreshCapabilities)
			r.Post("/standardize", s.handleStandardize)
			r.Get("/supporting/{name}", s.handleSupporting)
			r.Get("/{type}", s.handleGetCapability)
		})

		r.Route("/history", func(r chi.Router) {
			r.Get("/runs", s.handleListRuns)
			r.Get("/devices/{mac}/failures", s.handleDeviceFailures)
		})
	})

	return r
}
