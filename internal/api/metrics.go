package api

import "net/http"

// handleMetrics returns a small JSON snapshot of process-level gauges:
// device/scene/group counts, WebSocket client count, and (when a
// database is attached) its connection-pool gauges. A full Prometheus exposition surface is out of scope for this
// stub — §1 scopes observability as an external collaborator's concern.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	metrics := map[string]any{
		"devices_total":     len(s.device.List()),
		"scenes_total":      len(s.scenes.List()),
		"groups_total":      len(s.flattener.Flatten()),
		"ws_clients":        s.hub.ClientCount(),
	}
	if s.db != nil {
		stats := s.db.Stats()
		metrics["db_open_connections"] = stats.OpenConnections
		metrics["db_in_use"] = stats.InUse
	}
	writeJSON(w, http.StatusOK, metrics)
}
