package routine

import (
	"sync"

	"github.com/homeforge/control-core/internal/corekey"
	"github.com/homeforge/control-core/internal/expr"
)

// DeviceView is the minimal projection of device state a rule needs to
// evaluate, supplied by package device via DeviceLookup so this package
// never imports package device directly (keeps the dependency graph a
// DAG: device -> {group, scene, routine}, not routine -> device).
type DeviceView struct {
	Found      bool
	Power      bool
	SceneID    string
	IsSensor   bool
	SensorBool bool
	SensorText string
}

// DeviceLookup resolves a rule's device reference to its current state.
type DeviceLookup func(ref corekey.DeviceRef) DeviceView

// GroupMembers resolves a group id to its current flattened membership.
type GroupMembers func(groupID string) []corekey.DeviceKey

// Engine evaluates routine rule conjunctions and fires actions on the
// rising edge (§4.6).
type Engine struct {
	lookupDevice DeviceLookup
	groupMembers GroupMembers
	logger       Logger

	mu        sync.Mutex
	routines  map[string]Routine
	prevFired map[string]bool

	cycleMu     sync.Mutex
	cycleCursor map[string]int // routine id -> index into its CycleScenes action, in-memory only (teacher precedent: automation.Registry.activeScenes is explicitly not persisted since physical state may drift across restarts)
}

// Logger matches the small structured-logging interface shared by every
// core package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NewEngine builds an Engine.
func NewEngine(lookupDevice DeviceLookup, groupMembers GroupMembers) *Engine {
	return &Engine{
		lookupDevice: lookupDevice,
		groupMembers: groupMembers,
		logger:       noopLogger{},
		routines:     make(map[string]Routine),
		prevFired:    make(map[string]bool),
		cycleCursor:  make(map[string]int),
	}
}

// SetLogger installs a non-default logger.
func (e *Engine) SetLogger(l Logger) {
	if l != nil {
		e.logger = l
	}
}

// Load replaces the routine set wholesale (config reload).
func (e *Engine) Load(routines []Routine) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.routines = make(map[string]Routine, len(routines))
	for _, r := range routines {
		e.routines[r.ID] = r
	}
}

// List returns every loaded routine definition, for API introspection.
func (e *Engine) List() []Routine {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Routine, 0, len(e.routines))
	for _, r := range e.routines {
		out = append(out, r)
	}
	return out
}

// Evaluate re-evaluates every routine's rule conjunction against
// snapshot and returns the ids whose conjunction just transitioned from
// false to true (the rising edge, I6), updating prevFired. snapshot is
// passed through to EvalExpr rules only.
func (e *Engine) Evaluate(snapshot expr.Snapshot) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	newFired := make(map[string]bool, len(e.routines))
	var risingEdge []string

	for id, r := range e.routines {
		triggered := e.evalConjunction(r.Rules, snapshot)
		newFired[id] = triggered
		if triggered && !e.prevFired[id] {
			risingEdge = append(risingEdge, id)
		}
	}

	e.prevFired = newFired
	return risingEdge
}

// evalConjunction evaluates "all rules must match" (§3 "a list of rules
// (all must match)"); an empty rule list never triggers (§4.6).
func (e *Engine) evalConjunction(rules []Rule, snapshot expr.Snapshot) bool {
	if len(rules) == 0 {
		return false
	}
	for _, rule := range rules {
		if !e.evalRule(rule, snapshot) {
			return false
		}
	}
	return true
}

func (e *Engine) evalRule(rule Rule, snapshot expr.Snapshot) bool {
	switch rule.Kind {
	case RuleSensor:
		v := e.lookupDevice(rule.DeviceRef)
		if !v.Found {
			return false
		}
		switch rule.ExpectedSensor.Kind {
		case SensorExpectedBoolean:
			return v.IsSensor && v.SensorBool == rule.ExpectedSensor.Bool
		case SensorExpectedText:
			return v.IsSensor && v.SensorText == rule.ExpectedSensor.Text
		default:
			return false
		}

	case RuleDevice:
		v := e.lookupDevice(rule.DeviceRef)
		if !v.Found {
			return false
		}
		return matchesDeviceFields(v, rule.Power, rule.SceneID)

	case RuleGroup:
		members := e.groupMembers(rule.GroupID)
		if len(members) == 0 {
			return false
		}
		for _, key := range members {
			v := e.lookupDevice(corekey.DeviceRef{Key: &key})
			if !v.Found || !matchesDeviceFields(v, rule.Power, rule.SceneID) {
				return false
			}
		}
		return true

	case RuleAny:
		for _, sub := range rule.SubRules {
			if e.evalRule(sub, snapshot) {
				return true
			}
		}
		return false

	case RuleEvalExpr:
		res, err := expr.Eval(rule.Expression, snapshot)
		if err != nil {
			e.logger.Warn("routine: expression rule error, evaluating false", "err", err)
			return false
		}
		return res.Bool

	default:
		return false
	}
}

func matchesDeviceFields(v DeviceView, power *bool, sceneID *string) bool {
	if power != nil && v.Power != *power {
		return false
	}
	if sceneID != nil && v.SceneID != *sceneID {
		return false
	}
	return true
}

// ForceTriggerRoutine bypasses the rising-edge check (§4.6
// force_trigger_routine) and reports whether the routine exists.
func (e *Engine) ForceTriggerRoutine(id string) (Routine, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.routines[id]
	return r, ok
}

// NextCycleScene advances the in-memory cursor for a CycleScenes action
// and returns the scene id to activate (supplemented feature: ordered
// cursor advance, not persisted across restarts — same rationale as the
// teacher's automation.Registry.activeScenes).
func (e *Engine) NextCycleScene(routineID string, sceneIDs []string) (string, bool) {
	if len(sceneIDs) == 0 {
		return "", false
	}
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()
	idx := e.cycleCursor[routineID] % len(sceneIDs)
	e.cycleCursor[routineID] = (idx + 1) % len(sceneIDs)
	return sceneIDs[idx], true
}
