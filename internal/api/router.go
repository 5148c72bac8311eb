package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter wires every handler onto a chi mux with the teacher's
// standard middleware stack (RequestID, structured request logging,
// panic recovery) plus CORS and a fixed-window rate limit in front of
// the whole surface.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.recoveryMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.rateLimitMiddleware)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/version", s.handleVersion)
	r.Get("/metrics", s.handleMetrics)

	r.Get(s.wsCfg.Path, s.handleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			// {key} is "integration_id/device_id" (corekey.DeviceKey.String),
			// so it must capture the embedded slash; GET reads the device,
			// PATCH on the same pattern sets its desired state. A trailing
			// "/state" segment would leave the slash-capturing wildcard
			// ambiguous against chi's per-segment router.
			r.Get("/{key:.+}", s.handleGetDevice)
			r.Patch("/{key:.+}", s.handleSetDeviceState)
		})

		r.Route("/groups", func(r chi.Router) {
			r.Get("/", s.handleListGroups)
			r.Get("/{id}", s.handleGetGroup)
		})

		r.Route("/scenes", func(r chi.Router) {
			r.Get("/", s.handleListScenes)
			r.Get("/{id}", s.handleGetScene)
			r.Put("/{id}", s.handlePutScene)
			r.Delete("/{id}", s.handleDeleteScene)
			r.Post("/{id}/activate", s.handleActivateScene)
		})

		r.Route("/routines", func(r chi.Router) {
			r.Get("/", s.handleListRoutines)
			r.Post("/{id}/trigger", s.handleTriggerRoutine)
		})

		r.Get("/audit-logs", s.handleListAuditLogs)
	})

	return r
}
