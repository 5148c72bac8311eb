package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListGroups returns every non-hidden group's flattened membership.
// Groups are entirely config-defined (§3) — there is no groups table, so
// this endpoint is read-only; editing a group means editing the
// declarative document and restarting.
func (s *Server) handleListGroups(w http.ResponseWriter, _ *http.Request) {
	flat := s.flattener.Flatten()
	out := make([]any, 0, len(flat))
	for _, g := range flat {
		if g.Hidden {
			continue
		}
		out = append(out, g)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetGroup returns one group's flattened membership by id,
// including hidden groups (they are addressable, just not listed).
func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	flat := s.flattener.Flatten()
	g, ok := flat[id]
	if !ok {
		writeNotFound(w, "group not found")
		return
	}
	writeJSON(w, http.StatusOK, g)
}
