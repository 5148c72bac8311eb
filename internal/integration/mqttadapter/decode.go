package mqttadapter

import "github.com/homeforge/control-core/internal/device"

// decodeObserved translates one control-core/state/{integration}/{device_id}
// JSON payload into the device store's typed shapes. The adapter owns
// this wire-format boundary (§4.8), the same way the teacher's KNX
// bridge decodes group-address telegrams before handing off typed
// values to the registry.
//
// A payload carrying "sensor_kind" is a sensor reading; otherwise it is
// treated as a controllable report. A payload with neither a
// recognizable sensor nor controllable shape yields nil controllable
// and sensor state (the name is still returned); Start forwards it with
// nil Data, and the dispatcher logs and drops it rather than guessing.
func decodeObserved(raw map[string]any) (name string, controllable *device.ControllableState, sensor *device.SensorState) {
	name = asString(raw, "name")

	if kind, ok := raw["sensor_kind"]; ok {
		_ = kind
		sensor = &device.SensorState{
			Kind: device.SensorKind(asString(raw, "sensor_kind")),
			Bool: asBool(raw, "sensor_bool"),
			Text: asString(raw, "sensor_text"),
		}
		return name, nil, sensor
	}

	if _, ok := raw["power"]; !ok {
		return name, nil, nil
	}

	controllable = &device.ControllableState{
		Power:        asBool(raw, "power"),
		Brightness:   asFloatPtr(raw, "brightness"),
		TransitionMS: asIntPtr(raw, "transition_ms"),
		Capabilities: asColorModes(raw, "capabilities"),
	}
	if c, ok := raw["color"].(map[string]any); ok {
		controllable.Color = &device.Color{
			Mode:   device.ColorMode(asString(c, "mode")),
			X:      asFloat(c, "x"),
			Y:      asFloat(c, "y"),
			HueDeg: asFloat(c, "hue_deg"),
			Sat:    asFloat(c, "sat"),
			R:      asFloat(c, "r"),
			G:      asFloat(c, "g"),
			B:      asFloat(c, "b"),
			Kelvin: asFloat(c, "kelvin"),
		}
	}
	return name, controllable, nil
}

func asString(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return s
}

func asBool(raw map[string]any, key string) bool {
	b, _ := raw[key].(bool)
	return b
}

func asFloat(raw map[string]any, key string) float64 {
	// encoding/json decodes every JSON number into float64 when the
	// target is map[string]any.
	f, _ := raw[key].(float64)
	return f
}

func asFloatPtr(raw map[string]any, key string) *float64 {
	f, ok := raw[key].(float64)
	if !ok {
		return nil
	}
	return &f
}

func asIntPtr(raw map[string]any, key string) *int {
	f, ok := raw[key].(float64)
	if !ok {
		return nil
	}
	i := int(f)
	return &i
}

func asColorModes(raw map[string]any, key string) []device.ColorMode {
	vals, ok := raw[key].([]any)
	if !ok {
		return nil
	}
	out := make([]device.ColorMode, 0, len(vals))
	for _, v := range vals {
		if s, ok := v.(string); ok {
			out = append(out, device.ColorMode(s))
		}
	}
	return out
}
