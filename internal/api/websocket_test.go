package api

import (
	"encoding/json"
	"testing"

	"github.com/homeforge/control-core/internal/corekey"
	"github.com/homeforge/control-core/internal/eventbus"
	"github.com/homeforge/control-core/internal/infrastructure/config"
	"github.com/homeforge/control-core/internal/infrastructure/logging"
	"github.com/homeforge/control-core/internal/routine"
)

func newTestWSClient(hub *Hub) *WSClient {
	return &WSClient{
		hub:           hub,
		send:          make(chan []byte, 8),
		subscriptions: make(map[string]struct{}),
	}
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

// TestHandleEvent_NoBusRejected covers the §6 trust boundary: a Hub
// built with no bus (e.g. a broadcast-only test harness) must refuse
// client-submitted events rather than silently dropping them.
func TestHandleEvent_NoBusRejected(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger(), nil)
	client := newTestWSClient(hub)

	client.handleMessage(mustJSON(t, WSMessage{Type: WSTypeEvent, ID: "1", EventType: WSEventActivateScene, Payload: map[string]string{"scene_id": "evening"}}))

	msg := readWSResponse(t, client)
	if msg.Type != WSTypeError {
		t.Fatalf("expected error response, got %+v", msg)
	}
}

func TestHandleEvent_ActivateScene(t *testing.T) {
	bus := eventbus.NewBus()
	hub := NewHub(config.WebSocketConfig{}, testLogger(), bus)
	client := newTestWSClient(hub)

	client.handleMessage(mustJSON(t, WSMessage{
		Type: WSTypeEvent, ID: "1", EventType: WSEventActivateScene,
		Payload: map[string]string{"scene_id": "evening"},
	}))

	msg := readWSResponse(t, client)
	if msg.Type != WSTypeResponse {
		t.Fatalf("expected accepted response, got %+v", msg)
	}

	ev, ok := bus.TryPop()
	if !ok || ev.Kind != eventbus.KindAction {
		t.Fatalf("expected a KindAction event on the bus, got %+v ok=%v", ev, ok)
	}
	action, ok := ev.Action.Action.(routine.Action)
	if !ok || action.Kind != routine.ActionActivateScene || action.SceneID != "evening" {
		t.Fatalf("unexpected action payload: %+v", ev.Action.Action)
	}
}

func TestHandleEvent_SetDeviceStateByKey(t *testing.T) {
	bus := eventbus.NewBus()
	hub := NewHub(config.WebSocketConfig{}, testLogger(), bus)
	client := newTestWSClient(hub)

	power := true
	client.handleMessage(mustJSON(t, WSMessage{
		Type: WSTypeEvent, ID: "2", EventType: WSEventSetDeviceState,
		Payload: map[string]any{"key": "hue/lamp1", "power": power},
	}))

	readWSResponse(t, client)

	ev, ok := bus.TryPop()
	if !ok || ev.Kind != eventbus.KindAction {
		t.Fatalf("expected a KindAction event, got %+v ok=%v", ev, ok)
	}
	action := ev.Action.Action.(routine.Action)
	if action.Kind != routine.ActionSetDeviceState || action.StateRef.Key == nil {
		t.Fatalf("unexpected action: %+v", action)
	}
	if *action.StateRef.Key != (corekey.DeviceKey{IntegrationID: "hue", DeviceID: "lamp1"}) {
		t.Fatalf("unexpected device key: %+v", action.StateRef.Key)
	}
}

func TestHandleEvent_SetDeviceStateMissingRef(t *testing.T) {
	bus := eventbus.NewBus()
	hub := NewHub(config.WebSocketConfig{}, testLogger(), bus)
	client := newTestWSClient(hub)

	client.handleMessage(mustJSON(t, WSMessage{Type: WSTypeEvent, ID: "3", EventType: WSEventSetDeviceState, Payload: map[string]any{}}))

	msg := readWSResponse(t, client)
	if msg.Type != WSTypeError {
		t.Fatalf("expected error response, got %+v", msg)
	}
	if _, ok := bus.TryPop(); ok {
		t.Fatalf("no event should have been enqueued")
	}
}

func TestHandleEvent_UnknownEventType(t *testing.T) {
	bus := eventbus.NewBus()
	hub := NewHub(config.WebSocketConfig{}, testLogger(), bus)
	client := newTestWSClient(hub)

	client.handleMessage(mustJSON(t, WSMessage{Type: WSTypeEvent, ID: "4", EventType: "observed_state"}))

	msg := readWSResponse(t, client)
	if msg.Type != WSTypeError {
		t.Fatalf("expected observed_state to be rejected, got %+v", msg)
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func readWSResponse(t *testing.T, c *WSClient) WSMessage {
	t.Helper()
	select {
	case data := <-c.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		return msg
	default:
		t.Fatalf("no response was sent")
		return WSMessage{}
	}
}
