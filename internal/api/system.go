package api

import (
	"net/http"
	"time"
)

// handleHealthz reports liveness: the process is up and serving. It
// never checks dependencies, so a degraded database or MQTT broker
// doesn't take the whole process out of a load balancer's rotation.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).String(),
	})
}

// handleReadyz reports readiness: the database is reachable and, if
// configured, the MQTT broker connection is up. A degraded MQTT
// connection still reports ready — reads and WebSocket broadcasts keep
// working without it, matching the teacher's graceful-degradation
// posture.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	ready := true

	if s.db != nil {
		if err := s.db.HealthCheck(r.Context()); err != nil {
			checks["database"] = err.Error()
			ready = false
		} else {
			checks["database"] = "ok"
		}
	}

	if s.mqtt != nil {
		if s.mqtt.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
		}
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"ready": ready, "checks": checks})
}

// handleVersion returns build/version metadata.
func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": s.version,
		"site_id": s.siteID,
	})
}
