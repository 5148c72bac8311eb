// Package scene implements the scene resolver (§4.4): computing, for any
// device at any moment, the intended state the active scene graph
// implies, following device links, scene links, and expressions, with
// explicit cycle detection on scene-link chains (§9, §8 scenario 3).
//
// Grounded on the teacher's automation.Registry (cache+Repository shape,
// DeepCopy-on-read) and automation.types.go's "named config, device-keyed
// actions" shape; the link/override/cycle-detection algorithm itself is
// new, grounded in original_source/backend/src/homectl_core/scenes.rs
// where spec.md is silent on exact semantics (e.g. that a self-referential
// scene-link chain resolves to none rather than erroring).
package scene

import "github.com/homeforge/control-core/internal/device"

// TargetKind tags the union a device or group entry in a scene config
// resolves to (§3 "Scene configuration").
type TargetKind string

const (
	TargetLiteral    TargetKind = "literal"
	TargetDeviceLink TargetKind = "device_link"
	TargetSceneLink  TargetKind = "scene_link"
	TargetExpression TargetKind = "expression"
)

// Literal is a direct target device state. Power defaults to true when
// unset, per §4.4 "DeviceState: literal; power defaults to true if
// unset".
type Literal struct {
	Power        *bool
	Brightness   *float64
	Color        *device.Color
	TransitionMS *int
}

// DeviceLink mirrors another device's current state, optionally scaling
// brightness and optionally dropping the transition.
type DeviceLink struct {
	IntegrationID      string
	DeviceName         string
	BrightnessOverride *float64 // multiplier on the source brightness; the product is clamped to [0,1]
	IgnoreTransition   bool
}

// SceneLink re-resolves the device against another scene.
type SceneLink struct {
	SceneID string
}

// Expression is a raw expression string evaluated over the expression
// context at resolution time (package expr).
type Expression struct {
	Source string
}

// Target is the tagged union a scene maps a device or group name to.
type Target struct {
	Kind       TargetKind
	Literal    *Literal
	DeviceLink *DeviceLink
	SceneLink  *SceneLink
	Expression *Expression
}

// Config is a scene's declarative definition (§3).
type Config struct {
	ID          string
	Name        string
	Hidden      bool
	// Devices is keyed by integration_id, then normalized device name.
	Devices map[string]map[string]Target
	// Groups is keyed by group id.
	Groups map[string]Target
}

// DeepCopy returns an independent copy of c.
func (c Config) DeepCopy() Config {
	out := c
	if c.Devices != nil {
		out.Devices = make(map[string]map[string]Target, len(c.Devices))
		for integ, byName := range c.Devices {
			inner := make(map[string]Target, len(byName))
			for name, t := range byName {
				inner[name] = t
			}
			out.Devices[integ] = inner
		}
	}
	if c.Groups != nil {
		out.Groups = make(map[string]Target, len(c.Groups))
		for k, v := range c.Groups {
			out.Groups[k] = v
		}
	}
	return out
}
