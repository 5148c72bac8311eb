package scene

import (
	"github.com/homeforge/control-core/internal/device"
)

// ConfigLookup returns a scene's configuration by id.
type ConfigLookup func(sceneID string) (Config, bool)

// DeviceLookup returns the current record for a device by integration
// and normalized name, used to resolve DeviceLink targets.
type DeviceLookup func(integrationID, normalizedName string) (*device.Record, bool)

// ExprEvaluator evaluates an Expression target. It returns the resulting
// Controllable override (if the expression wrote device state) and
// whether the evaluation's boolean result was truthy; a false result
// suppresses the override (§4.5: "A scalar boolean result of false
// suppresses all queued actions from the same evaluation").
type ExprEvaluator func(source string) (override *device.ControllableState, ok bool)

// Resolver implements §4.4's public contract.
type Resolver struct {
	scenes  ConfigLookup
	devices DeviceLookup
	eval    ExprEvaluator
}

// NewResolver wires the resolver's three collaborators.
func NewResolver(scenes ConfigLookup, devices DeviceLookup, eval ExprEvaluator) *Resolver {
	return &Resolver{scenes: scenes, devices: devices, eval: eval}
}

// FindSceneDeviceConfig looks up the Target for a device within a scene:
// a per-device config shadows any group-level config (§4.4 "a per-device
// config (by integration+name) shadows any group-level config").
// memberGroupIDs is the set of flattened groups the device currently
// belongs to.
func FindSceneDeviceConfig(cfg Config, integrationID, normalizedName string, memberGroupIDs []string) (Target, bool) {
	if byName, ok := cfg.Devices[integrationID]; ok {
		if t, ok := byName[normalizedName]; ok {
			return t, true
		}
	}
	for _, gid := range memberGroupIDs {
		if t, ok := cfg.Groups[gid]; ok {
			return t, true
		}
	}
	return Target{}, false
}

// EvalSceneDeviceState produces the intended Controllable state for dev
// under sceneID, chasing device-links, scene-links and expressions
// (§4.4 "Link resolution semantics"). ignoreTransition additionally
// forces transition suppression on device links, matching a caller that
// is itself resolving under an ignore-transition ancestor.
func (r *Resolver) EvalSceneDeviceState(sceneID, integrationID, normalizedName string, memberGroupIDs []string, ignoreTransition bool) (*device.ControllableState, bool) {
	return r.evalWithVisited(sceneID, integrationID, normalizedName, memberGroupIDs, ignoreTransition, map[string]bool{})
}

func (r *Resolver) evalWithVisited(sceneID, integrationID, normalizedName string, memberGroupIDs []string, ignoreTransition bool, visited map[string]bool) (*device.ControllableState, bool) {
	// §8 scenario 3 / §9: an explicit visited-set, not recursion-based
	// cycle detection; a scene transitively linking to itself resolves
	// to none.
	if visited[sceneID] {
		return nil, false
	}
	visited[sceneID] = true

	cfg, ok := r.scenes(sceneID)
	if !ok {
		return nil, false
	}

	target, ok := FindSceneDeviceConfig(cfg, integrationID, normalizedName, memberGroupIDs)
	if !ok {
		return nil, false
	}

	switch target.Kind {
	case TargetLiteral:
		return literalToState(target.Literal, sceneID, ignoreTransition), true

	case TargetDeviceLink:
		return r.resolveDeviceLink(target.DeviceLink, sceneID, ignoreTransition)

	case TargetSceneLink:
		return r.evalWithVisited(target.SceneLink.SceneID, integrationID, normalizedName, memberGroupIDs, ignoreTransition, visited)

	case TargetExpression:
		if r.eval == nil {
			return nil, false
		}
		override, truthy := r.eval(target.Expression.Source)
		if !truthy {
			return nil, false
		}
		if override != nil {
			override.SceneID = sceneID
		}
		return override, override != nil

	default:
		return nil, false
	}
}

func literalToState(lit *Literal, sceneID string, ignoreTransition bool) *device.ControllableState {
	if lit == nil {
		return nil
	}
	power := true
	if lit.Power != nil {
		power = *lit.Power
	}
	state := &device.ControllableState{
		Power:      power,
		Brightness: lit.Brightness,
		SceneID:    sceneID,
	}
	if lit.Color != nil {
		c := *lit.Color
		state.Color = &c
	}
	if !ignoreTransition {
		state.TransitionMS = lit.TransitionMS
	}
	return state
}

func (r *Resolver) resolveDeviceLink(link *DeviceLink, sceneID string, ignoreTransition bool) (*device.ControllableState, bool) {
	if link == nil || r.devices == nil {
		return nil, false
	}
	source, ok := r.devices(link.IntegrationID, link.DeviceName)
	if !ok || source.Controllable == nil {
		return nil, false
	}

	state := source.Controllable.DeepCopy()
	state.SceneID = sceneID

	// Only scale brightness while the source device is actually on
	// (original_source/src/core/scenes.rs: "if state.power { state.brightness
	// = Some(...) }"); an off device keeps whatever brightness it already
	// had (often unset) instead of gaining a synthesized non-nil value.
	if link.BrightnessOverride != nil && state.Power {
		eff := clamp01(state.EffectiveBrightness() * *link.BrightnessOverride)
		state.Brightness = &eff
	}

	if ignoreTransition || link.IgnoreTransition {
		state.TransitionMS = nil
	}

	return &state, true
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
