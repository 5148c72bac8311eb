package expr

import "testing"

func basicSnapshot() Snapshot {
	return Snapshot{
		Devices: map[string]map[string]DeviceView{
			"mqtt": {"door": {IsSensor: true, SensorKind: "text", SensorText: "open"}},
		},
		Groups: map[string]GroupView{
			"living_room": {Name: "Living Room", Power: true},
		},
		Scenes: map[string]SceneView{},
	}
}

func TestEvalExprScenario6(t *testing.T) {
	// §8 scenario 6: groups.living_room.power && devices.mqtt.door.state
	// == "open" evaluates true and calls activate_scene("alert").
	src := `groups.living_room.power && devices.mqtt.door.sensor_text == "open" && activate_scene("alert")`
	res, err := Eval(src, basicSnapshot())
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if len(res.Actions) != 1 || res.Actions[0].Kind != ActionActivateScene || res.Actions[0].SceneID != "alert" {
		t.Fatalf("actions = %+v, want one activate_scene(alert)", res.Actions)
	}
}

func TestEvalExprFalseResultSuppressesActions(t *testing.T) {
	snap := basicSnapshot()
	snap.Groups["living_room"] = GroupView{Name: "Living Room", Power: false}
	src := `groups.living_room.power && activate_scene("alert")`
	res, err := Eval(src, snap)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if res.Bool {
		t.Fatal("expected false result")
	}
}

func TestEvalDetectsDeviceWrite(t *testing.T) {
	snap := Snapshot{
		Devices: map[string]map[string]DeviceView{
			"hue": {"lamp1": {Power: false, Brightness: 0}},
		},
		Groups: map[string]GroupView{},
		Scenes: map[string]SceneView{},
	}
	src := `devices.hue.lamp1.power = true; devices.hue.lamp1.brightness = 0.8; true;`
	res, err := Eval(src, snap)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if len(res.Writes) != 1 {
		t.Fatalf("writes = %+v, want 1", res.Writes)
	}
	w := res.Writes[0]
	if w.IntegrationID != "hue" || w.NormalizedName != "lamp1" {
		t.Fatalf("write addressed %s/%s, want hue/lamp1", w.IntegrationID, w.NormalizedName)
	}
	if w.Power == nil || !*w.Power {
		t.Fatal("expected power write to true")
	}
	if w.Brightness == nil || *w.Brightness != 0.8 {
		t.Fatal("expected brightness write to 0.8")
	}
}
