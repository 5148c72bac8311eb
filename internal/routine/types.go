// Package routine implements the routine/rule engine (§4.6): it
// evaluates rule conjunctions against every state transition and fires
// actions exactly on the rising edge (I6), via an explicit
// prev/new-triggered-set diff rather than per-routine "was I already
// firing" flags (§4.6, §9).
//
// Grounded on the teacher's automation.Engine executor shape (action
// grouping, sequential-vs-parallel dispatch, per-execution failure
// tracking) generalized to rule-conjunction evaluation per
// original_source's rules.rs, where spec.md is silent on exact
// conjunction/disjunction short-circuit order.
package routine

import "github.com/homeforge/control-core/internal/corekey"

// RuleKind tags the Rule union (§3 "Rule").
type RuleKind string

const (
	RuleSensor   RuleKind = "sensor"
	RuleDevice   RuleKind = "device"
	RuleGroup    RuleKind = "group"
	RuleAny      RuleKind = "any"
	RuleEvalExpr RuleKind = "eval_expr"
)

// SensorExpectedKind mirrors device.SensorKind for rule matching
// without importing package device (routines only need to compare
// values, not carry a full device.SensorState).
type SensorExpectedKind string

const (
	SensorExpectedBoolean SensorExpectedKind = "boolean"
	SensorExpectedText    SensorExpectedKind = "text"
)

// SensorExpected is the `expected_sensor_state` operand of a Sensor rule.
type SensorExpected struct {
	Kind SensorExpectedKind
	Bool bool
	Text string
}

// Rule is one-of the five predicate shapes in §3.
type Rule struct {
	Kind RuleKind

	// RuleSensor
	DeviceRef      corekey.DeviceRef
	ExpectedSensor SensorExpected

	// RuleDevice (DeviceRef shared with RuleSensor)
	Power   *bool
	SceneID *string

	// RuleGroup (Power/SceneID shared with RuleDevice)
	GroupID string

	// RuleAny
	SubRules []Rule

	// RuleEvalExpr
	Expression string
}

// ActionKind tags the Action union (§3).
type ActionKind string

const (
	ActionActivateScene      ActionKind = "activate_scene"
	ActionCycleScenes        ActionKind = "cycle_scenes"
	ActionDim                ActionKind = "dim"
	ActionCustom             ActionKind = "custom"
	ActionForceTriggerRoutine ActionKind = "force_trigger_routine"
	ActionSetDeviceState     ActionKind = "set_device_state"
	ActionEvalExpr           ActionKind = "eval_expr"
)

// Action is one-of the seven action shapes in §3. The CycleScenes cursor
// and Dim step among them are filled in from original_source behaviour
// the distillation did not elaborate (see SPEC_FULL.md).
type Action struct {
	Kind ActionKind

	SceneID string // ActionActivateScene

	CycleSceneIDs []string // ActionCycleScenes

	DimRef   corekey.DeviceRef // ActionDim: device
	DimGroup string            // ActionDim: or group, mutually exclusive with DimRef
	DimDelta float64           // ActionDim: signed brightness step, result clamped [0,1]

	IntegrationID string // ActionCustom
	Payload       any    // ActionCustom

	RoutineID string // ActionForceTriggerRoutine

	StateRef   corekey.DeviceRef // ActionSetDeviceState
	PowerState *bool
	Brightness *float64

	ExprSource string // ActionEvalExpr
}

// Routine is a named rule-conjunction and its fire-list (§3).
type Routine struct {
	ID      string
	Name    string
	Rules   []Rule
	Actions []Action
}
