package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/homeforge/control-core/internal/eventbus"
	"github.com/homeforge/control-core/internal/routine"
)

func TestListRoutines_Empty(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/routines/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("body = %s, want []", w.Body.String())
	}
}

func TestTriggerRoutine_EnqueuesForceTriggerAction(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/routines/evening-lights/trigger", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusAccepted, w.Body.String())
	}

	ev, ok := srv.bus.TryPop()
	if !ok || ev.Kind != eventbus.KindAction {
		t.Fatalf("expected a queued Action event, got ok=%v kind=%v", ok, ev.Kind)
	}
	action, ok := ev.Action.Action.(routine.Action)
	if !ok {
		t.Fatalf("Action.Action has type %T, want routine.Action", ev.Action.Action)
	}
	if action.Kind != routine.ActionForceTriggerRoutine {
		t.Errorf("action kind = %v, want ActionForceTriggerRoutine", action.Kind)
	}
	if action.RoutineID != "evening-lights" {
		t.Errorf("routine id = %q, want %q", action.RoutineID, "evening-lights")
	}
}
