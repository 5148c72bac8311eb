package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/homeforge/control-core/internal/eventbus"
	"github.com/homeforge/control-core/internal/infrastructure/config"
	"github.com/homeforge/control-core/internal/routine"
)

// handleListScenes returns every non-hidden scene definition (Store.List
// already excludes hidden scenes).
func (s *Server) handleListScenes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.scenes.List())
}

// handleGetScene returns one scene's definition by id.
func (s *Server) handleGetScene(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sc, ok := s.scenes.Get(id)
	if !ok {
		writeNotFound(w, "scene not found")
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// handlePutScene creates or replaces a scene. The wire body is the same
// declarative shape as the configuration document's scenes section
// (config.SceneConfig), so a scene authored in the YAML file and one
// authored through the API are structurally identical.
func (s *Server) handlePutScene(w http.ResponseWriter, r *http.Request) {
	var body config.SceneConfig
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeValidationError(w, "invalid JSON body")
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		body.ID = id
	}
	if body.ID == "" {
		writeValidationError(w, "scene id is required")
		return
	}

	cfgs := config.ToSceneConfigs([]config.SceneConfig{body})
	sc := cfgs[0]

	_, existed := s.scenes.Get(sc.ID)
	if err := s.scenes.Put(r.Context(), sc); err != nil {
		writeInternalError(w, "failed to store scene")
		return
	}

	action := "create"
	ev := eventbus.Event{Kind: eventbus.KindDbStoreScene, DbStoreScene: &eventbus.DbStoreScenePayload{SceneID: sc.ID, Config: sc}}
	if existed {
		action = "update"
		ev = eventbus.Event{Kind: eventbus.KindDbEditScene, DbEditScene: &eventbus.DbEditScenePayload{SceneID: sc.ID, Config: sc}}
	}
	s.bus.Emit(ev)
	s.auditLog(action, "scene", sc.ID, "", nil)

	writeJSON(w, http.StatusOK, sc)
}

// handleDeleteScene removes a scene definition.
func (s *Server) handleDeleteScene(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.scenes.Get(id); !ok {
		writeNotFound(w, "scene not found")
		return
	}
	if err := s.scenes.Remove(r.Context(), id); err != nil {
		writeInternalError(w, "failed to delete scene")
		return
	}
	s.bus.Emit(eventbus.Event{
		Kind:          eventbus.KindDbDeleteScene,
		DbDeleteScene: &eventbus.DbDeleteScenePayload{SceneID: id},
	})
	s.auditLog("delete", "scene", id, "", nil)
	writeJSON(w, http.StatusNoContent, nil)
}

// handleActivateScene enqueues the scene's activation action onto the
// bus (§4.4), applied by the dispatcher on the single consumer goroutine.
func (s *Server) handleActivateScene(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.scenes.Get(id); !ok {
		writeNotFound(w, "scene not found")
		return
	}
	s.bus.Emit(eventbus.Event{
		Kind:   eventbus.KindAction,
		Action: &eventbus.ActionPayload{Action: routine.Action{Kind: routine.ActionActivateScene, SceneID: id}},
	})
	s.auditLog("activate", "scene", id, "", nil)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
