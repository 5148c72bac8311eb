package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/homeforge/control-core/internal/corekey"
	"github.com/homeforge/control-core/internal/device"
	"github.com/homeforge/control-core/internal/eventbus"
)

// handleListDevices returns every device currently known to the store.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.device.List())
}

// handleGetDevice returns a single device by its "integration_id/device_id" key.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	key, err := corekey.ParseDeviceKey(chi.URLParam(r, "key"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	rec, err := s.device.Get(key)
	if err != nil {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// deviceStateRequest is the desired-state patch body for a controllable
// device: any field present overrides the current intended state; fields
// omitted are left untouched (§4.6 "desired state" semantics).
type deviceStateRequest struct {
	Power      *bool    `json:"power,omitempty"`
	Brightness *float64 `json:"brightness,omitempty"`
}

// handleSetDeviceState enqueues a SetInternal event for the dispatcher to
// apply; the HTTP handler never mutates the store directly, keeping every
// write serialized through the single consumer loop (§5).
func (s *Server) handleSetDeviceState(w http.ResponseWriter, r *http.Request) {
	key, err := corekey.ParseDeviceKey(chi.URLParam(r, "key"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	rec, err := s.device.Get(key)
	if err != nil {
		writeNotFound(w, "device not found")
		return
	}
	if rec.DataKind != device.DataControllable || rec.Controllable == nil {
		writeBadRequest(w, "device is not controllable")
		return
	}

	var req deviceStateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeValidationError(w, "invalid JSON body")
			return
		}
	}

	updated := rec.Controllable.DeepCopy()
	if req.Power != nil {
		updated.Power = *req.Power
	}
	if req.Brightness != nil {
		b := clamp01(*req.Brightness)
		updated.Brightness = &b
	}
	updated.SceneID = ""

	s.bus.Emit(eventbus.Event{
		Kind: eventbus.KindSetInternal,
		SetInternal: &eventbus.SetInternalPayload{
			Key:   key,
			State: &updated,
		},
	})

	s.auditLog("command", "device", key.String(), "", map[string]any{"power": req.Power, "brightness": req.Brightness})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
