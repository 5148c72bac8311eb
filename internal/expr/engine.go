package expr

import (
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"
)

// ActionKind tags an action enqueued by an expression's builtin function
// calls (§4.5: "Call activate_scene(id), custom_action(integration_id,
// payload), trigger_routine(id); these enqueue actions").
type ActionKind string

const (
	ActionActivateScene  ActionKind = "activate_scene"
	ActionCustom         ActionKind = "custom_action"
	ActionTriggerRoutine ActionKind = "trigger_routine"
)

// QueuedAction is one action produced by a single expression evaluation.
type QueuedAction struct {
	Kind          ActionKind
	SceneID       string
	IntegrationID string
	Payload       any
	RoutineID     string
}

// DeviceWrite is a write to devices.*.*.state or devices.*.*.scene
// detected by diffing the context before and after evaluation (§4.5).
// IntegrationID/NormalizedName identify the addressed device the same
// way the context does; the caller (cmd/graylogic's dispatcher) resolves
// this to a device by integration id and normalized name and applies the
// write to the device store.
type DeviceWrite struct {
	IntegrationID  string
	NormalizedName string
	Power          *bool
	Brightness     *float64
	SceneID        *string
}

// Result is the outcome of one expression evaluation.
type Result struct {
	// Bool is the script's final expression value coerced to boolean.
	// EvalExpr rules use this directly; scene Expression targets use it
	// to decide whether to suppress queued actions/writes (§4.5: "A
	// scalar boolean result of false suppresses all queued actions from
	// the same evaluation").
	Bool bool

	Actions []QueuedAction
	Writes  []DeviceWrite
}

// builtinPrelude defines the action-enqueuing functions injected into
// every evaluation, matching script_engine.go's pattern of running a
// fixed builtins script before the user's source.
const builtinPrelude = `
var __actions = [];
function activate_scene(id) { __actions.push({kind: "activate_scene", id: id}); }
function custom_action(integration_id, payload) { __actions.push({kind: "custom_action", integration_id: integration_id, payload: payload}); }
function trigger_routine(id) { __actions.push({kind: "trigger_routine", id: id}); }
`

// Eval evaluates source against snapshot on a fresh VM (one VM per
// evaluation, per the teacher's script_engine.go, so routine/scene
// evaluations never share interpreter state or leak between routines —
// §7 "Expression error: per-routine isolation").
func Eval(source string, snapshot Snapshot) (Result, error) {
	vm := goja.New()

	ctxJSON, err := json.Marshal(snapshot)
	if err != nil {
		return Result{}, fmt.Errorf("expr: marshal context: %w", err)
	}

	if _, err := vm.RunString(builtinPrelude); err != nil {
		return Result{}, fmt.Errorf("expr: builtins: %w", err)
	}
	if err := vm.Set("__ctxJSON", string(ctxJSON)); err != nil {
		return Result{}, fmt.Errorf("expr: inject context: %w", err)
	}
	if _, err := vm.RunString(`var ctx = JSON.parse(__ctxJSON); var devices = ctx.devices, scenes = ctx.scenes, groups = ctx.groups;`); err != nil {
		return Result{}, fmt.Errorf("expr: parse context: %w", err)
	}

	value, err := vm.RunString(source)
	if err != nil {
		return Result{}, fmt.Errorf("expr: evaluate: %w", err)
	}

	result := Result{Bool: value != nil && !goja.IsUndefined(value) && !goja.IsNull(value) && value.ToBoolean()}

	if err := extractActions(vm, &result); err != nil {
		return Result{}, err
	}
	if err := extractWrites(vm, snapshot, &result); err != nil {
		return Result{}, err
	}

	return result, nil
}

func extractActions(vm *goja.Runtime, result *Result) error {
	raw := vm.Get("__actions")
	if raw == nil {
		return nil
	}
	var actions []map[string]any
	if err := vm.ExportTo(raw, &actions); err != nil {
		return fmt.Errorf("expr: export actions: %w", err)
	}
	for _, a := range actions {
		kind, _ := a["kind"].(string)
		switch ActionKind(kind) {
		case ActionActivateScene:
			id, _ := a["id"].(string)
			result.Actions = append(result.Actions, QueuedAction{Kind: ActionActivateScene, SceneID: id})
		case ActionCustom:
			integ, _ := a["integration_id"].(string)
			result.Actions = append(result.Actions, QueuedAction{Kind: ActionCustom, IntegrationID: integ, Payload: a["payload"]})
		case ActionTriggerRoutine:
			id, _ := a["id"].(string)
			result.Actions = append(result.Actions, QueuedAction{Kind: ActionTriggerRoutine, RoutineID: id})
		}
	}
	return nil
}

// extractWrites diffs ctx.devices against the original snapshot to find
// writes under devices.*.*.state / devices.*.*.scene (§4.5).
func extractWrites(vm *goja.Runtime, before Snapshot, result *Result) error {
	raw := vm.Get("ctx")
	if raw == nil {
		return nil
	}
	var after Snapshot
	exported := raw.Export()
	reencoded, err := json.Marshal(exported)
	if err != nil {
		return fmt.Errorf("expr: reencode context: %w", err)
	}
	if err := json.Unmarshal(reencoded, &after); err != nil {
		return fmt.Errorf("expr: decode context: %w", err)
	}

	for integrationID, byName := range after.Devices {
		for name, afterView := range byName {
			beforeView, existed := before.Devices[integrationID][name]
			if existed && afterView == beforeView {
				continue
			}
			write := DeviceWrite{IntegrationID: integrationID, NormalizedName: name}
			if !existed || afterView.Power != beforeView.Power {
				p := afterView.Power
				write.Power = &p
			}
			if !existed || afterView.Brightness != beforeView.Brightness {
				b := afterView.Brightness
				write.Brightness = &b
			}
			if !existed || afterView.Scene != beforeView.Scene {
				s := afterView.Scene
				write.SceneID = &s
			}
			result.Writes = append(result.Writes, write)
		}
	}
	return nil
}
