package main

import (
	"context"

	"github.com/homeforge/control-core/internal/api"
	"github.com/homeforge/control-core/internal/corekey"
	"github.com/homeforge/control-core/internal/device"
	"github.com/homeforge/control-core/internal/eventbus"
	"github.com/homeforge/control-core/internal/expr"
	"github.com/homeforge/control-core/internal/group"
	"github.com/homeforge/control-core/internal/infrastructure/config"
	"github.com/homeforge/control-core/internal/infrastructure/logging"
	"github.com/homeforge/control-core/internal/integration"
	"github.com/homeforge/control-core/internal/reconcile"
	"github.com/homeforge/control-core/internal/routine"
	"github.com/homeforge/control-core/internal/scene"
)

// dispatcher is the single event-loop consumer (§5): every Kind's side
// effects are handled here, on the one goroutine eventbus.Loop.Run
// drives, so nothing downstream of an event needs its own locking.
//
// Grounded on the teacher's automation engine dispatch switch
// (executeAction's per-ActionType branches), generalized from a fixed
// automation action set to the full event-Kind union this system's
// event loop carries.
type dispatcher struct {
	cfg    *config.Config
	logger *logging.Logger
	bus    *eventbus.Bus

	deviceStore   *device.Store
	sceneStore    *scene.Store
	resolver      *scene.Resolver
	flattener     *group.Flattener
	routineEngine *routine.Engine
	reconciler    *reconcile.Reconciler
	facade        *integration.Facade
	hub           *api.Hub
	history       historyWriter

	// loop is assigned once by run(), after NewLoop(bus, warmup,
	// disp.handle) constructs it; handle needs it to check Warm().
	loop *eventbus.Loop
}

// handle is the eventbus.Handler driving every side effect in the
// system. It must never block: anything that can take real wall-clock
// time (adapter calls, DB writes) is handed to its own goroutine, which
// reports completion by emitting a new event rather than by being
// waited on here.
func (d *dispatcher) handle(ctx context.Context, ev eventbus.Event) {
	switch ev.Kind {
	case eventbus.KindObservedState:
		d.handleObservedState(ctx, ev.ObservedState)
	case eventbus.KindInternalUpdate:
		d.handleInternalUpdate(ctx, ev.InternalUpdate)
	case eventbus.KindSetInternal:
		d.handleSetInternal(ctx, ev.SetInternal)
	case eventbus.KindCommandState:
		d.handleCommandState(ctx, ev.CommandState)
	case eventbus.KindWsBroadcast:
		if p := ev.WsBroadcast; p != nil {
			d.hub.Broadcast(p.Channel, p.Body)
		}
	case eventbus.KindDbStoreScene:
		if p := ev.DbStoreScene; p != nil {
			d.invalidateScene(ctx, p.SceneID)
		}
	case eventbus.KindDbEditScene:
		if p := ev.DbEditScene; p != nil {
			d.invalidateScene(ctx, p.SceneID)
		}
	case eventbus.KindDbDeleteScene:
		if p := ev.DbDeleteScene; p != nil {
			d.invalidateScene(ctx, p.SceneID)
		}
	case eventbus.KindAction:
		d.handleActionEvent(ctx, ev.Action)
	case eventbus.KindStartupCompleted:
		d.handleStartupCompleted(ctx)
	}
}

// handleObservedState routes an ObservedState event by its source: the
// device store's own FromStore re-emit goes to the reconciler; an
// adapter's raw report goes to the store's discover/accept/reconcile
// triage (device.Store.HandleObserved).
func (d *dispatcher) handleObservedState(ctx context.Context, p *eventbus.ObservedStatePayload) {
	if p == nil {
		return
	}
	if p.FromStore {
		ctrl, _ := p.Data.(*device.ControllableState)
		d.reconciler.HandleObserved(ctx, p.Key, ctrl)
		return
	}

	name := p.Name
	if name == "" {
		name = p.Key.DeviceID
	}
	switch v := p.Data.(type) {
	case *device.ControllableState:
		d.deviceStore.HandleObserved(ctx, p.Key, name, p.Key.IntegrationID, device.DataControllable, v, nil, p.Raw)
	case *device.SensorState:
		d.deviceStore.HandleObserved(ctx, p.Key, name, p.Key.IntegrationID, device.DataSensor, nil, v, p.Raw)
	default:
		d.logger.Warn("dispatcher: observed state had no decodable data, dropping", "key", p.Key.String())
	}
}

// handleInternalUpdate fans an effective device change out to the
// WebSocket hub and the routine engine. During warmup (§5) this
// propagation is entirely suppressed: the loop still processes
// ObservedState so the store catches up on startup, but nothing
// downstream reacts until StartupCompleted forces a full re-sync.
func (d *dispatcher) handleInternalUpdate(ctx context.Context, p *eventbus.InternalUpdatePayload) {
	if p == nil || d.loop == nil || !d.loop.Warm() {
		return
	}
	if rec, ok := p.NewState.(*device.Record); ok {
		d.hub.Broadcast("devices", rec)
		recordDeviceHistory(d.history, rec)
	}
	d.evaluateRoutines(ctx)
}

// handleSetInternal adopts a caller-supplied Controllable as a device's
// new intended state (scene activation, expression writes, the API's
// direct device-state endpoint).
func (d *dispatcher) handleSetInternal(ctx context.Context, p *eventbus.SetInternalPayload) {
	if p == nil {
		return
	}
	state, ok := p.State.(*device.ControllableState)
	if !ok {
		d.logger.Warn("dispatcher: set_internal with unexpected state payload", "key", p.Key.String())
		return
	}
	rec, err := d.deviceStore.Get(p.Key)
	if err != nil {
		d.logger.Warn("dispatcher: set_internal for unknown device", "key", p.Key.String())
		return
	}
	updated := state.DeepCopy()
	if p.FromSceneID != "" {
		updated.SceneID = p.FromSceneID
	}
	if p.IgnoreTransition {
		updated.TransitionMS = nil
	}
	rec.Controllable = &updated
	d.deviceStore.SetState(ctx, rec, device.SetStateOpts{SkipExternal: p.SkipExternal, SkipDB: p.SkipDB})
}

// handleCommandState pushes an intended state to the owning adapter.
// The facade call can block on network I/O, so it runs on its own
// goroutine rather than the consumer goroutine.
func (d *dispatcher) handleCommandState(ctx context.Context, p *eventbus.CommandStatePayload) {
	if p == nil {
		return
	}
	if d.cfg.Core.DryRun {
		d.logger.Debug("dispatcher: dry-run, suppressing adapter command", "key", p.Key.String())
		return
	}
	key, state := p.Key, p.State
	go func() {
		if err := d.facade.SetDeviceState(ctx, key, state); err != nil {
			d.logger.Error("dispatcher: command_state dispatch failed", "key", key.String(), "err", err)
		}
	}()
}

// handleActionEvent runs a routine.Action delivered through the bus
// (API-triggered actions, so they are serialized through the same
// consumer goroutine as every other side effect).
func (d *dispatcher) handleActionEvent(ctx context.Context, p *eventbus.ActionPayload) {
	if p == nil {
		return
	}
	switch a := p.Action.(type) {
	case routine.Action:
		d.executeRoutineAction(ctx, a, "")
	default:
		d.logger.Warn("dispatcher: action event with unrecognized payload type")
	}
}

// handleStartupCompleted forces a full cache invalidation (§5 Warmup:
// "upon handling that event, caches are force-invalidated and normal
// routing resumes"): group membership is recomputed, then every
// scene-derived device is reapplied regardless of whether its scene
// actually changed during warmup.
func (d *dispatcher) handleStartupCompleted(ctx context.Context) {
	d.logger.Info("warmup complete, forcing full cache invalidation")
	d.flattener.Invalidate()

	sceneIDs := make(map[string]bool)
	for _, r := range d.deviceStore.List() {
		if r.Controllable != nil && r.Controllable.SceneID != "" {
			sceneIDs[r.Controllable.SceneID] = true
		}
	}
	d.deviceStore.Invalidate(ctx, sceneIDs, func(r *device.Record) (*device.ControllableState, bool) {
		if r.Controllable == nil || r.Controllable.SceneID == "" {
			return nil, false
		}
		groups := d.memberGroupsOf(r.Key)
		return d.resolver.EvalSceneDeviceState(r.Controllable.SceneID, r.IntegrationID, device.NormalizeName(r.Name), groups, false)
	})
	d.evaluateRoutines(ctx)
}

// invalidateScene reapplies a single scene's resolved state to every
// device currently running it (a scene's config was just stored,
// edited, or deleted) and notifies WebSocket subscribers.
func (d *dispatcher) invalidateScene(ctx context.Context, sceneID string) {
	if sceneID == "" {
		return
	}
	sceneIDs := map[string]bool{sceneID: true}
	d.deviceStore.Invalidate(ctx, sceneIDs, func(r *device.Record) (*device.ControllableState, bool) {
		groups := d.memberGroupsOf(r.Key)
		return d.resolver.EvalSceneDeviceState(sceneID, r.IntegrationID, device.NormalizeName(r.Name), groups, false)
	})
	d.hub.Broadcast("scenes", map[string]string{"scene_id": sceneID})
}

// evaluateRoutines re-evaluates every routine's rule conjunction
// against a fresh snapshot and fires the actions of whichever routines
// just transitioned to true (I6 rising edge).
func (d *dispatcher) evaluateRoutines(ctx context.Context) {
	snap := buildSnapshot(d.deviceStore, d.sceneStore, d.flattener)
	for _, id := range d.routineEngine.Evaluate(snap) {
		r, ok := d.routineEngine.ForceTriggerRoutine(id)
		if !ok {
			continue
		}
		d.runRoutineActions(ctx, r)
	}
}

func (d *dispatcher) runRoutineActions(ctx context.Context, r routine.Routine) {
	for _, action := range r.Actions {
		d.executeRoutineAction(ctx, action, r.ID)
	}
}

// executeRoutineAction runs one fire-list entry. ownerRoutineID keys
// the CycleScenes cursor (empty for an action delivered directly via
// KindAction rather than a routine's own fire-list).
func (d *dispatcher) executeRoutineAction(ctx context.Context, action routine.Action, ownerRoutineID string) {
	switch action.Kind {
	case routine.ActionActivateScene:
		d.activateScene(ctx, action.SceneID)

	case routine.ActionCycleScenes:
		if id, ok := d.routineEngine.NextCycleScene(ownerRoutineID, action.CycleSceneIDs); ok {
			d.activateScene(ctx, id)
		}

	case routine.ActionDim:
		d.dimDevices(ctx, action)

	case routine.ActionCustom:
		if d.cfg.Core.DryRun {
			return
		}
		integrationID, payload := action.IntegrationID, action.Payload
		go func() {
			if err := d.facade.RunAction(ctx, integrationID, payload); err != nil {
				d.logger.Error("dispatcher: custom action failed", "integration", integrationID, "err", err)
			}
		}()

	case routine.ActionForceTriggerRoutine:
		if r, ok := d.routineEngine.ForceTriggerRoutine(action.RoutineID); ok {
			d.runRoutineActions(ctx, r)
		}

	case routine.ActionSetDeviceState:
		d.setDeviceState(ctx, action.StateRef, action.PowerState, action.Brightness)

	case routine.ActionEvalExpr:
		snap := buildSnapshot(d.deviceStore, d.sceneStore, d.flattener)
		res, err := expr.Eval(action.ExprSource, snap)
		if err != nil {
			d.logger.Warn("dispatcher: eval_expr action failed", "err", err)
			return
		}
		if !res.Bool {
			return
		}
		d.applyExprResult(ctx, res)
	}
}

// activateScene applies a scene's fully-resolved per-device target
// state to every device it addresses (§4.4).
func (d *dispatcher) activateScene(ctx context.Context, sceneID string) {
	if _, ok := d.sceneStore.Get(sceneID); !ok {
		d.logger.Warn("dispatcher: activate_scene: unknown scene", "scene_id", sceneID)
		return
	}
	devices := d.deviceStore.List()
	for _, desc := range d.resolver.FindSceneDevicesConfig(sceneID, devices, d.memberGroupsOf, nil) {
		rec, err := d.deviceStore.Get(desc.Key)
		if err != nil {
			continue
		}
		rec.Controllable = desc.State
		d.deviceStore.SetState(ctx, rec, device.SetStateOpts{})
	}
}

// dimDevices applies a signed brightness step to a single device or
// every member of a group, clamped to [0,1] (supplemented Dim action).
func (d *dispatcher) dimDevices(ctx context.Context, action routine.Action) {
	var keys []corekey.DeviceKey
	if action.DimGroup != "" {
		keys = d.flattener.FindGroupDevices(action.DimGroup)
	} else {
		rec, err := d.deviceStore.GetByRef(action.DimRef)
		if err != nil {
			d.logger.Warn("dispatcher: dim: unknown device", "ref", action.DimRef)
			return
		}
		keys = []corekey.DeviceKey{rec.Key}
	}
	for _, key := range keys {
		rec, err := d.deviceStore.Get(key)
		if err != nil || rec.Controllable == nil {
			continue
		}
		eff := clamp01(rec.Controllable.EffectiveBrightness() + action.DimDelta)
		updated := rec.Controllable.DeepCopy()
		updated.Brightness = &eff
		rec.Controllable = &updated
		d.deviceStore.SetState(ctx, rec, device.SetStateOpts{})
	}
}

func (d *dispatcher) setDeviceState(ctx context.Context, ref corekey.DeviceRef, power *bool, brightness *float64) {
	rec, err := d.deviceStore.GetByRef(ref)
	if err != nil || rec.Controllable == nil {
		d.logger.Warn("dispatcher: set_device_state: unknown or uncontrollable device", "ref", ref)
		return
	}
	updated := rec.Controllable.DeepCopy()
	if power != nil {
		updated.Power = *power
	}
	if brightness != nil {
		b := clamp01(*brightness)
		updated.Brightness = &b
	}
	rec.Controllable = &updated
	d.deviceStore.SetState(ctx, rec, device.SetStateOpts{})
}

// applyExprResult materializes an expression evaluation's queued writes
// and actions (§4.5), mirroring the same three builtin functions'
// semantics used for scene Expression targets.
func (d *dispatcher) applyExprResult(ctx context.Context, res expr.Result) {
	for _, w := range res.Writes {
		rec, ok := d.findDeviceByIntegrationName(w.IntegrationID, w.NormalizedName)
		if !ok || rec.Controllable == nil {
			continue
		}
		updated := rec.Controllable.DeepCopy()
		if w.Power != nil {
			updated.Power = *w.Power
		}
		if w.Brightness != nil {
			b := clamp01(*w.Brightness)
			updated.Brightness = &b
		}
		if w.SceneID != nil {
			updated.SceneID = *w.SceneID
		}
		rec.Controllable = &updated
		d.deviceStore.SetState(ctx, rec, device.SetStateOpts{})
	}

	for _, a := range res.Actions {
		switch a.Kind {
		case expr.ActionActivateScene:
			d.activateScene(ctx, a.SceneID)
		case expr.ActionCustom:
			if d.cfg.Core.DryRun {
				continue
			}
			integrationID, payload := a.IntegrationID, a.Payload
			go func() {
				if err := d.facade.RunAction(ctx, integrationID, payload); err != nil {
					d.logger.Error("dispatcher: expr custom_action failed", "integration", integrationID, "err", err)
				}
			}()
		case expr.ActionTriggerRoutine:
			if r, ok := d.routineEngine.ForceTriggerRoutine(a.RoutineID); ok {
				d.runRoutineActions(ctx, r)
			}
		}
	}
}

func (d *dispatcher) findDeviceByIntegrationName(integrationID, normalizedName string) (*device.Record, bool) {
	for _, r := range d.deviceStore.List() {
		if r.IntegrationID == integrationID && device.NormalizeName(r.Name) == normalizedName {
			return r, true
		}
	}
	return nil, false
}

// memberGroupsOf returns every group id whose flattened membership
// currently includes key, used to resolve a per-device scene target
// against its group-level fallback (§4.4).
func (d *dispatcher) memberGroupsOf(key corekey.DeviceKey) []string {
	var ids []string
	for id, flat := range d.flattener.Flatten() {
		for _, k := range flat.DeviceKeys {
			if k == key {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids
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
