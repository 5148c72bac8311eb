// Package expr implements the expression context and engine (§4.5): a
// flat symbolic snapshot over devices/scenes/groups, and a goja-backed
// evaluator that lets routine rules and scene Expression targets read
// that snapshot, write back device state/scene fields, and call the
// built-in action functions.
//
// Grounded on r3e-network-service_layer's system/tee/script_engine.go:
// a fresh goja.New() VM per evaluation, injected globals, vm.RunString
// for builtins then user source, and a JSON round-trip to carry the
// mutable context across the Go/JS boundary instead of wrapping Go maps
// directly (more robust against goja's object-wrapping edge cases).
package expr

import (
	"github.com/homeforge/control-core/internal/device"
	"github.com/homeforge/control-core/internal/group"
)

// DeviceView is one device's projection into the expression context.
// Leaves are primitives only, per §4.5 ("arrays and objects are
// forbidden as leaves; nested structures are flattened into more dotted
// paths") — here expressed as nested JSON objects, which give the same
// dotted-path addressing (ctx.devices.hue.lamp1.power) without a
// separate flattening pass.
type DeviceView struct {
	Power      bool    `json:"power"`
	Brightness float64 `json:"brightness"`
	Scene      string  `json:"scene"`
	Managed    string  `json:"managed"`
	// Sensor-only fields; zero-valued for Controllables.
	IsSensor    bool   `json:"is_sensor"`
	SensorKind  string `json:"sensor_kind,omitempty"`
	SensorBool  bool   `json:"sensor_bool,omitempty"`
	SensorText  string `json:"sensor_text,omitempty"`
}

// GroupView is a flattened group's projection (§4.5: "Group context
// values include name, power (true iff every member is powered on),
// scene_id (set iff every member is in the same scene)").
type GroupView struct {
	Name    string `json:"name"`
	Power   bool   `json:"power"`
	SceneID string `json:"scene_id"`
}

// SceneView is a scene's minimal projection; the spec only requires
// device/group fields, so this carries just enough identity for
// expressions that branch on the active scene's metadata.
type SceneView struct {
	Name   string `json:"name"`
	Hidden bool   `json:"hidden"`
}

// Snapshot is the full expression context at one point in time. No
// snapshot is kept between evaluations: the caller builds a fresh one
// with BuildSnapshot for each Eval, and Eval serializes it to JSON, so
// the script works on its own copy.
type Snapshot struct {
	Devices map[string]map[string]DeviceView `json:"devices"`
	Scenes  map[string]SceneView             `json:"scenes"`
	Groups  map[string]GroupView             `json:"groups"`
}

// BuildSnapshot projects live device/group state into the context shape.
// sceneNames maps scene id -> (name, hidden), supplied by the caller
// (cmd/graylogic, from the scene store) to avoid an expr->scene import cycle.
func BuildSnapshot(devices []*device.Record, sceneNames map[string]SceneView, flattened map[string]group.Flattened) Snapshot {
	snap := Snapshot{
		Devices: make(map[string]map[string]DeviceView),
		Scenes:  sceneNames,
		Groups:  make(map[string]GroupView),
	}

	byKey := make(map[string]*device.Record, len(devices))
	for _, d := range devices {
		byKey[d.Key.String()] = d

		byName, ok := snap.Devices[d.IntegrationID]
		if !ok {
			byName = make(map[string]DeviceView)
			snap.Devices[d.IntegrationID] = byName
		}
		byName[device.NormalizeName(d.Name)] = deviceView(d)
	}

	for id, flat := range flattened {
		snap.Groups[id] = groupView(flat, byKey)
	}

	return snap
}

func deviceView(d *device.Record) DeviceView {
	v := DeviceView{}
	switch d.DataKind {
	case device.DataControllable:
		if d.Controllable != nil {
			v.Power = d.Controllable.Power
			v.Brightness = d.Controllable.EffectiveBrightness()
			v.Scene = d.Controllable.SceneID
			v.Managed = string(d.Controllable.Managed.Kind)
		}
	case device.DataSensor:
		v.IsSensor = true
		if d.Sensor != nil {
			v.SensorKind = string(d.Sensor.Kind)
			v.SensorBool = d.Sensor.Bool
			v.SensorText = d.Sensor.Text
		}
	}
	return v
}

func groupView(flat group.Flattened, byKey map[string]*device.Record) GroupView {
	v := GroupView{Name: flat.Name}
	if len(flat.DeviceKeys) == 0 {
		return v
	}
	allOn := true
	sameScene := true
	sceneID := ""
	for i, k := range flat.DeviceKeys {
		d, ok := byKey[k.String()]
		if !ok || d.Controllable == nil {
			allOn = false
			sameScene = false
			continue
		}
		if !d.Controllable.Power {
			allOn = false
		}
		if i == 0 {
			sceneID = d.Controllable.SceneID
		} else if d.Controllable.SceneID != sceneID {
			sameScene = false
		}
	}
	v.Power = allOn
	if sameScene {
		v.SceneID = sceneID
	}
	return v
}
