package config

import (
	"fmt"

	"github.com/homeforge/control-core/internal/corekey"
	"github.com/homeforge/control-core/internal/device"
	"github.com/homeforge/control-core/internal/group"
	"github.com/homeforge/control-core/internal/routine"
	"github.com/homeforge/control-core/internal/scene"
)

// This file translates the declarative document's scenes/groups/routines
// sections (spec §6 "Configuration file") into the in-process domain
// types each engine package owns. The wire shapes live here, not in the
// domain packages, so those packages stay free of a yaml.v3 dependency —
// matching the teacher's convention of keeping serialization concerns at
// the edge (infrastructure/config, infrastructure/database) rather than
// inside core logic.

// DeviceRefConfig is a device reference as written in YAML: either
// "integration/device_id" (by key) or a bare display name.
type DeviceRefConfig struct {
	IntegrationID string `yaml:"integration_id,omitempty"`
	DeviceID      string `yaml:"device_id,omitempty"`
	Name          string `yaml:"name,omitempty"`
}

func (c DeviceRefConfig) toRef() corekey.DeviceRef {
	if c.IntegrationID != "" && c.DeviceID != "" {
		key := corekey.DeviceKey{IntegrationID: c.IntegrationID, DeviceID: c.DeviceID}
		return corekey.DeviceRef{Key: &key}
	}
	return corekey.DeviceRef{Name: c.Name}
}

// GroupConfig is a group's declarative definition (spec §3 "Group
// configuration").
type GroupConfig struct {
	ID         string            `yaml:"id"`
	Name       string            `yaml:"name"`
	DeviceRefs []DeviceRefConfig `yaml:"devices,omitempty"`
	GroupRefs  []string          `yaml:"groups,omitempty"`
	Hidden     bool              `yaml:"hidden,omitempty"`
}

// ToGroupConfigs converts the document's groups section into
// group.Config values.
func ToGroupConfigs(in []GroupConfig) []group.Config {
	out := make([]group.Config, 0, len(in))
	for _, g := range in {
		refs := make([]corekey.DeviceRef, 0, len(g.DeviceRefs))
		for _, d := range g.DeviceRefs {
			refs = append(refs, d.toRef())
		}
		groupRefs := make([]corekey.GroupRef, 0, len(g.GroupRefs))
		for _, gr := range g.GroupRefs {
			groupRefs = append(groupRefs, corekey.GroupRef(gr))
		}
		out = append(out, group.Config{
			ID: g.ID, Name: g.Name, DeviceRefs: refs, GroupRefs: groupRefs, Hidden: g.Hidden,
		})
	}
	return out
}

// ColorConfig mirrors device.Color's tagged union for YAML/JSON authoring.
type ColorConfig struct {
	Mode   string  `yaml:"mode,omitempty"`
	X      float64 `yaml:"x,omitempty"`
	Y      float64 `yaml:"y,omitempty"`
	HueDeg float64 `yaml:"hue_deg,omitempty"`
	Sat    float64 `yaml:"sat,omitempty"`
	R      float64 `yaml:"r,omitempty"`
	G      float64 `yaml:"g,omitempty"`
	B      float64 `yaml:"b,omitempty"`
	Kelvin float64 `yaml:"kelvin,omitempty"`
}

func (c *ColorConfig) toColor() *device.Color {
	if c == nil || c.Mode == "" {
		return nil
	}
	return &device.Color{
		Mode: device.ColorMode(c.Mode), X: c.X, Y: c.Y,
		HueDeg: c.HueDeg, Sat: c.Sat, R: c.R, G: c.G, B: c.B, Kelvin: c.Kelvin,
	}
}

// SceneTargetConfig is one device or group entry in a scene's devices/groups
// map, authored as a tagged union over literal/device_link/scene_link/expression.
type SceneTargetConfig struct {
	Power        *bool        `yaml:"power,omitempty"`
	Brightness   *float64     `yaml:"brightness,omitempty"`
	Color        *ColorConfig `yaml:"color,omitempty"`
	TransitionMS *int         `yaml:"transition_ms,omitempty"`

	DeviceLink *struct {
		IntegrationID      string   `yaml:"integration_id"`
		DeviceName         string   `yaml:"device_name"`
		BrightnessOverride *float64 `yaml:"brightness_override,omitempty"`
		IgnoreTransition   bool     `yaml:"ignore_transition,omitempty"`
	} `yaml:"device_link,omitempty"`

	SceneLink *string `yaml:"scene_link,omitempty"`
	Expr      *string `yaml:"expr,omitempty"`
}

func (t SceneTargetConfig) toTarget() scene.Target {
	switch {
	case t.DeviceLink != nil:
		return scene.Target{
			Kind: scene.TargetDeviceLink,
			DeviceLink: &scene.DeviceLink{
				IntegrationID:      t.DeviceLink.IntegrationID,
				DeviceName:         t.DeviceLink.DeviceName,
				BrightnessOverride: t.DeviceLink.BrightnessOverride,
				IgnoreTransition:   t.DeviceLink.IgnoreTransition,
			},
		}
	case t.SceneLink != nil:
		return scene.Target{Kind: scene.TargetSceneLink, SceneLink: &scene.SceneLink{SceneID: *t.SceneLink}}
	case t.Expr != nil:
		return scene.Target{Kind: scene.TargetExpression, Expression: &scene.Expression{Source: *t.Expr}}
	default:
		return scene.Target{Kind: scene.TargetLiteral, Literal: &scene.Literal{
			Power: t.Power, Brightness: t.Brightness, Color: t.Color.toColor(), TransitionMS: t.TransitionMS,
		}}
	}
}

// SceneConfig is a scene's declarative definition (spec §3 "Scene
// configuration"), authored as integration_id -> device_name -> target,
// plus group_id -> target.
type SceneConfig struct {
	ID      string                                  `yaml:"id"`
	Name    string                                  `yaml:"name"`
	Hidden  bool                                    `yaml:"hidden,omitempty"`
	Devices map[string]map[string]SceneTargetConfig `yaml:"devices,omitempty"`
	Groups  map[string]SceneTargetConfig             `yaml:"groups,omitempty"`
}

// ToSceneConfigs converts the document's scenes section into
// scene.Config values.
func ToSceneConfigs(in []SceneConfig) []scene.Config {
	out := make([]scene.Config, 0, len(in))
	for _, s := range in {
		devices := make(map[string]map[string]scene.Target, len(s.Devices))
		for integ, byName := range s.Devices {
			inner := make(map[string]scene.Target, len(byName))
			for name, t := range byName {
				inner[device.NormalizeName(name)] = t.toTarget()
			}
			devices[integ] = inner
		}
		groups := make(map[string]scene.Target, len(s.Groups))
		for gid, t := range s.Groups {
			groups[gid] = t.toTarget()
		}
		out = append(out, scene.Config{ID: s.ID, Name: s.Name, Hidden: s.Hidden, Devices: devices, Groups: groups})
	}
	return out
}

// SensorExpectedConfig is the expected_sensor_state operand of a sensor rule.
type SensorExpectedConfig struct {
	Kind string `yaml:"kind"`
	Bool bool   `yaml:"bool,omitempty"`
	Text string `yaml:"text,omitempty"`
}

// RuleConfig is one entry in a routine's rule conjunction.
type RuleConfig struct {
	Kind string `yaml:"kind"`

	Device         *DeviceRefConfig      `yaml:"device,omitempty"`
	ExpectedSensor *SensorExpectedConfig `yaml:"expected_sensor_state,omitempty"`

	Power   *bool   `yaml:"power,omitempty"`
	SceneID *string `yaml:"scene_id,omitempty"`

	Group string `yaml:"group,omitempty"`

	SubRules []RuleConfig `yaml:"rules,omitempty"`

	Expr string `yaml:"expr,omitempty"`
}

func (r RuleConfig) toRule() routine.Rule {
	out := routine.Rule{Kind: routine.RuleKind(r.Kind), Power: r.Power, SceneID: r.SceneID, GroupID: r.Group, Expression: r.Expr}
	if r.Device != nil {
		out.DeviceRef = r.Device.toRef()
	}
	if r.ExpectedSensor != nil {
		out.ExpectedSensor = routine.SensorExpected{
			Kind: routine.SensorExpectedKind(r.ExpectedSensor.Kind),
			Bool: r.ExpectedSensor.Bool, Text: r.ExpectedSensor.Text,
		}
	}
	for _, sub := range r.SubRules {
		out.SubRules = append(out.SubRules, sub.toRule())
	}
	return out
}

// ActionConfig is one entry in a routine's fire-list.
type ActionConfig struct {
	Kind string `yaml:"kind"`

	SceneID       string   `yaml:"scene_id,omitempty"`
	CycleSceneIDs []string `yaml:"cycle_scene_ids,omitempty"`

	DimDevice *DeviceRefConfig `yaml:"dim_device,omitempty"`
	DimGroup  string           `yaml:"dim_group,omitempty"`
	DimDelta  float64          `yaml:"dim_delta,omitempty"`

	IntegrationID string `yaml:"integration_id,omitempty"`
	Payload       any    `yaml:"payload,omitempty"`

	RoutineID string `yaml:"routine_id,omitempty"`

	StateDevice *DeviceRefConfig `yaml:"state_device,omitempty"`
	PowerState  *bool            `yaml:"power_state,omitempty"`
	Brightness  *float64         `yaml:"brightness,omitempty"`

	Expr string `yaml:"expr,omitempty"`
}

func (a ActionConfig) toAction() routine.Action {
	out := routine.Action{
		Kind: routine.ActionKind(a.Kind), SceneID: a.SceneID, CycleSceneIDs: a.CycleSceneIDs,
		DimGroup: a.DimGroup, DimDelta: a.DimDelta, IntegrationID: a.IntegrationID, Payload: a.Payload,
		RoutineID: a.RoutineID, PowerState: a.PowerState, Brightness: a.Brightness, ExprSource: a.Expr,
	}
	if a.DimDevice != nil {
		out.DimRef = a.DimDevice.toRef()
	}
	if a.StateDevice != nil {
		out.StateRef = a.StateDevice.toRef()
	}
	return out
}

// RoutineConfig is a routine's declarative definition (spec §3 "Routine
// configuration"): a name, a rule conjunction, and a fire-list of actions.
type RoutineConfig struct {
	ID      string         `yaml:"id"`
	Name    string         `yaml:"name"`
	Rules   []RuleConfig   `yaml:"rules"`
	Actions []ActionConfig `yaml:"actions"`
}

// ToRoutines converts the document's routines section into
// routine.Routine values.
func ToRoutines(in []RoutineConfig) []routine.Routine {
	out := make([]routine.Routine, 0, len(in))
	for _, r := range in {
		rt := routine.Routine{ID: r.ID, Name: r.Name}
		for _, rule := range r.Rules {
			rt.Rules = append(rt.Rules, rule.toRule())
		}
		for _, action := range r.Actions {
			rt.Actions = append(rt.Actions, action.toAction())
		}
		out = append(out, rt)
	}
	return out
}

// ValidateDomainConfig checks the scenes/groups/routines sections for
// obviously malformed entries (missing ids) before they reach the
// engines, so a typo in the declarative document fails at startup with a
// pointer to the offending entry (§7 "Configuration error").
func ValidateDomainConfig(cfg *Config) error {
	seen := map[string]bool{}
	for _, g := range cfg.Groups {
		if g.ID == "" {
			return fmt.Errorf("config: group entry missing id")
		}
		if seen["group:"+g.ID] {
			return fmt.Errorf("config: duplicate group id %q", g.ID)
		}
		seen["group:"+g.ID] = true
	}
	for _, s := range cfg.Scenes {
		if s.ID == "" {
			return fmt.Errorf("config: scene entry missing id")
		}
		if seen["scene:"+s.ID] {
			return fmt.Errorf("config: duplicate scene id %q", s.ID)
		}
		seen["scene:"+s.ID] = true
	}
	for _, r := range cfg.Routines {
		if r.ID == "" {
			return fmt.Errorf("config: routine entry missing id")
		}
		if seen["routine:"+r.ID] {
			return fmt.Errorf("config: duplicate routine id %q", r.ID)
		}
		seen["routine:"+r.ID] = true
	}
	return nil
}
