// Package corekey defines the device and group identity types shared by
// every core package. It exists to break the import cycle between
// package device (which needs to build eventbus.Event payloads) and
// package eventbus (whose payloads reference device identity).
package corekey

import "fmt"

// DeviceKey is the globally unique, identity-stable reference to a
// device: the integration that owns it, paired with that integration's
// own name for the device. Renaming a device's display name never
// changes its key.
type DeviceKey struct {
	IntegrationID string
	DeviceID      string
}

// String renders the wire form "integration_id/device_id".
func (k DeviceKey) String() string {
	return k.IntegrationID + "/" + k.DeviceID
}

// ParseDeviceKey parses the "integration_id/device_id" wire form produced
// by String.
func ParseDeviceKey(s string) (DeviceKey, error) {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return DeviceKey{IntegrationID: s[:i], DeviceID: s[i+1:]}, nil
		}
	}
	return DeviceKey{}, fmt.Errorf("corekey: %q is not a valid device key (want integration_id/device_id)", s)
}

// IsZero reports whether k is the empty key.
func (k DeviceKey) IsZero() bool {
	return k.IntegrationID == "" && k.DeviceID == ""
}

// DeviceRef is a config- or API-level reference to a device, by either
// key or human name. Exactly one of the two should be set; Key takes
// precedence when both are present.
type DeviceRef struct {
	Key  *DeviceKey
	Name string
}

// GroupRef is a config-level reference to a group by its id.
type GroupRef string
