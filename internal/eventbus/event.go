// Package eventbus implements the single unbounded event queue that every
// other core component communicates through. It is modelled on the
// jangala HAL core loop: one goroutine owns a big select over a handful of
// channels, and producers never block on it.
package eventbus

import "github.com/homeforge/control-core/internal/corekey"

// Kind identifies the shape carried in an Event's payload.
type Kind string

const (
	KindObservedState     Kind = "observed_state"
	KindInternalUpdate    Kind = "internal_update"
	KindSetInternal       Kind = "set_internal"
	KindCommandState      Kind = "command_state"
	KindWsBroadcast       Kind = "ws_broadcast"
	KindDbStoreScene      Kind = "db_store_scene"
	KindDbDeleteScene     Kind = "db_delete_scene"
	KindDbEditScene       Kind = "db_edit_scene"
	KindAction            Kind = "action"
	KindStartupCompleted  Kind = "startup_completed"
)

// ObservedState is emitted by an integration adapter reporting the last
// state it saw on the wire for a device.
type ObservedStatePayload struct {
	Key corekey.DeviceKey
	// Name is the adapter's display name for the device, used on first
	// discovery; empty on the store's internal re-emit (FromStore).
	Name string
	Raw  map[string]any
	// FromStore is true only for the device store's own internal
	// re-emit of a managed-controllable observation (device/store.go's
	// HandleObserved), asking the reconciler to compare Data against
	// intended state. Adapters never set this.
	FromStore bool
	// Data is a *device.ControllableState or *device.SensorState: for
	// an adapter report, the wire value the adapter decoded; for a
	// FromStore re-emit, always a *device.ControllableState. Kept as
	// any to avoid an import cycle with package device, which itself
	// depends on eventbus.Event for its emitted side effects.
	Data any
}

// InternalUpdate is emitted by the device store after every effective
// mutation. old/new are device.Record snapshots (any to avoid the import
// cycle noted above).
type InternalUpdatePayload struct {
	Key      corekey.DeviceKey
	OldState any
	NewState any
}

// SetInternal requests the store adopt a new intended state for a device,
// typically produced by scene activation or an expression write.
type SetInternalPayload struct {
	Key             corekey.DeviceKey
	State           any
	SkipExternal    bool
	SkipDB          bool
	FromSceneID     string
	IgnoreTransition bool
}

// CommandState asks an integration adapter to push a state to the wire.
type CommandStatePayload struct {
	Key   corekey.DeviceKey
	State any
}

// WsBroadcast carries an opaque, already-serializable snapshot out to the
// API layer's WebSocket hub.
type WsBroadcastPayload struct {
	Channel string
	Body    any
}

type DbStoreScenePayload struct {
	SceneID string
	Config  any
}

type DbDeleteScenePayload struct {
	SceneID string
}

type DbEditScenePayload struct {
	SceneID string
	Config  any
}

// ActionPayload carries a routine or API-triggered action through the
// queue so it is handled on the single consumer goroutine like everything
// else.
type ActionPayload struct {
	Action any
}

// Event is the tagged union flowing through the Bus. Exactly one of the
// payload fields is meaningful, selected by Kind.
type Event struct {
	Kind Kind

	ObservedState    *ObservedStatePayload
	InternalUpdate   *InternalUpdatePayload
	SetInternal      *SetInternalPayload
	CommandState     *CommandStatePayload
	WsBroadcast      *WsBroadcastPayload
	DbStoreScene     *DbStoreScenePayload
	DbDeleteScene    *DbDeleteScenePayload
	DbEditScene      *DbEditScenePayload
	Action           *ActionPayload
}
