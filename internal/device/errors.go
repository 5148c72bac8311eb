package device

import "errors"

// Sentinel errors, checked via errors.Is, following the teacher's
// per-package errors.go convention.
var (
	// ErrNotFound is returned when a key or ref does not resolve to any
	// known device. Per §4.2, callers treat this as a dropped operation
	// logged at warning level, never a fatal condition.
	ErrNotFound = errors.New("device: not found")

	// ErrInvalidKey is returned when a device key fails to parse.
	ErrInvalidKey = errors.New("device: invalid key")

	// ErrWrongDataKind is returned when an operation expecting a
	// Controllable is applied to a Sensor record or vice versa.
	ErrWrongDataKind = errors.New("device: wrong data kind for operation")
)
