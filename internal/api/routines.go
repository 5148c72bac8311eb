package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/homeforge/control-core/internal/eventbus"
	"github.com/homeforge/control-core/internal/routine"
)

// handleListRoutines returns every loaded routine's rule/action definition.
func (s *Server) handleListRoutines(w http.ResponseWriter, _ *http.Request) {
	if s.routines == nil {
		writeJSON(w, http.StatusOK, []routine.Routine{})
		return
	}
	writeJSON(w, http.StatusOK, s.routines.List())
}

// handleTriggerRoutine forces a routine's fire-list to run regardless of
// its rule conjunction's current value, enqueued through the bus so it
// runs on the single consumer goroutine alongside every other side
// effect (§4.6 supplemented ForceTriggerRoutine action).
func (s *Server) handleTriggerRoutine(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.bus.Emit(eventbus.Event{
		Kind:   eventbus.KindAction,
		Action: &eventbus.ActionPayload{Action: routine.Action{Kind: routine.ActionForceTriggerRoutine, RoutineID: id}},
	})
	s.auditLog("trigger", "routine", id, "", nil)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
