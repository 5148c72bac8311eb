// Package mqttadapter is a concrete integration.Adapter backed by the
// infrastructure/mqtt.Client: commands are published to
// control-core/command/{integration}/{device_id}, and observed state
// arrives on control-core/state/{integration}/{device_id}, mirroring the
// teacher's MQTT command-plane topic layout (automation.Engine's
// executeAction topic string) and its subscription-restore-on-reconnect
// client.
package mqttadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/homeforge/control-core/internal/corekey"
	"github.com/homeforge/control-core/internal/eventbus"
	"github.com/homeforge/control-core/internal/integration"
	"github.com/homeforge/control-core/internal/infrastructure/mqtt"
)

// Adapter bridges the integration facade to an MQTT broker.
type Adapter struct {
	integrationID string
	client        *mqtt.Client
	bus           *eventbus.Bus
}

// New builds an Adapter for integrationID over an already-connected
// client.
func New(integrationID string, client *mqtt.Client, bus *eventbus.Bus) *Adapter {
	return &Adapter{integrationID: integrationID, client: client, bus: bus}
}

// Register is a no-op for MQTT: devices are discovered from observed
// state, not declared up front (§3 Lifecycle: "Devices are created on
// first report from their integration").
func (a *Adapter) Register(_ context.Context, _ []integration.DeviceDeclaration) error {
	return nil
}

// Start subscribes to this integration's state topic and forwards every
// message onto the event bus as an ObservedState event, so all
// downstream handling happens on the single consumer loop.
func (a *Adapter) Start(_ context.Context) error {
	topic := fmt.Sprintf("control-core/state/%s/+", a.integrationID)
	return a.client.Subscribe(topic, 1, func(topic string, payload []byte) error {
		deviceID, raw, err := parseStateMessage(topic, payload)
		if err != nil {
			return err
		}
		name, controllable, sensor := decodeObserved(raw)
		var data any
		switch {
		case controllable != nil:
			data = controllable
		case sensor != nil:
			data = sensor
		}
		a.bus.Emit(eventbus.Event{
			Kind: eventbus.KindObservedState,
			ObservedState: &eventbus.ObservedStatePayload{
				Key:  corekey.DeviceKey{IntegrationID: a.integrationID, DeviceID: deviceID},
				Name: name,
				Raw:  raw,
				Data: data,
			},
		})
		return nil
	})
}

// SetDeviceState publishes a command for a single device.
func (a *Adapter) SetDeviceState(_ context.Context, key corekey.DeviceKey, state any) error {
	topic := fmt.Sprintf("control-core/command/%s/%s", key.IntegrationID, key.DeviceID)
	body, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("mqttadapter: marshal command: %w", err)
	}
	return a.client.Publish(topic, body, 1, false)
}

// RunAction forwards an opaque payload to a per-integration action
// topic (§3 Action "Custom").
func (a *Adapter) RunAction(_ context.Context, payload any) error {
	topic := fmt.Sprintf("control-core/action/%s", a.integrationID)
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mqttadapter: marshal action payload: %w", err)
	}
	return a.client.Publish(topic, body, 1, false)
}

func parseStateMessage(topic string, payload []byte) (deviceID string, raw map[string]any, err error) {
	for i := len(topic) - 1; i >= 0; i-- {
		if topic[i] == '/' {
			deviceID = topic[i+1:]
			break
		}
	}
	if deviceID == "" {
		return "", nil, fmt.Errorf("mqttadapter: cannot parse device id from topic %q", topic)
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return "", nil, fmt.Errorf("mqttadapter: unmarshal payload: %w", err)
	}
	return deviceID, raw, nil
}
