// Package device implements the device state store and reconciler input
// described by the control plane's data model: a cache of device
// Records keyed by (integration_id, device_id), mutated exclusively
// through Store.SetState and Store.HandleObserved, persisted via a
// Repository (repository.go is the SQLite implementation), with
// color-space conversions and reconciliation tolerances in color.go.
//
// Grounded on the teacher's device.Registry: a sync.RWMutex-guarded
// in-memory cache in front of a Repository interface, DeepCopy on every
// read and write so callers never share mutable state with the store,
// and a small Logger interface with a noop default.
package device
