// Package reconcile implements the reconciler (§4.7): for managed
// controllable devices, when an observed state differs from the stored
// intended state beyond tolerance, it re-issues a CommandState so the
// adapter re-applies it, while guarding against oscillation across
// color-encoding changes.
//
// Grounded on other_examples/144cc17f_dokzlo13-lightd's reconcile
// package: a desired-vs-actual diff with a rate-limited corrective
// dispatch. The lightd reconciler blocks on limiter.Wait before each
// Hue API call; here Reconcile runs on the single consumer goroutine
// (§5: handlers must not block), so the limiter is consulted
// non-blockingly via Allow and a refused command is simply skipped for
// this pass — the next observation will try again.
package reconcile

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/homeforge/control-core/internal/corekey"
	"github.com/homeforge/control-core/internal/device"
	"github.com/homeforge/control-core/internal/eventbus"
)

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

// Store is the subset of device.Store the reconciler needs.
type Store interface {
	Get(key corekey.DeviceKey) (*device.Record, error)
	SetState(ctx context.Context, next *device.Record, opts device.SetStateOpts)
}

// Reconciler compares observed vs. intended state for managed
// controllable devices and issues corrective commands.
type Reconciler struct {
	store   Store
	bus     *eventbus.Bus
	limiter *rate.Limiter
	logger  Logger

	mu sync.Mutex
}

// New builds a Reconciler. rateLimitRPS bounds how many corrective
// CommandState events it will emit per second across all devices,
// guarding against a flapping adapter saturating the command channel;
// 0 disables the limit.
func New(store Store, bus *eventbus.Bus, rateLimitRPS float64) *Reconciler {
	var limiter *rate.Limiter
	if rateLimitRPS > 0 {
		burst := int(rateLimitRPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rateLimitRPS), burst)
	}
	return &Reconciler{store: store, bus: bus, limiter: limiter, logger: noopLogger{}}
}

// SetLogger installs a non-default logger.
func (r *Reconciler) SetLogger(l Logger) {
	if l != nil {
		r.logger = l
	}
}

// HandleObserved processes one ObservedState event for a managed
// controllable device. Sensors and None-managed devices never reach
// here: device.Store.HandleObserved routes those directly.
func (r *Reconciler) HandleObserved(ctx context.Context, key corekey.DeviceKey, observed *device.ControllableState) {
	current, err := r.store.Get(key)
	if err != nil || current == nil || current.Controllable == nil {
		r.logger.Warn("reconcile: observed state for unknown device", "key", key.String())
		return
	}
	intended := current.Controllable

	if intended.Managed.Kind == device.ManagedNone {
		return
	}

	preferred := preferredMode(intended)
	matches := matchesIntended(observed, intended, preferred)

	if matches {
		if intended.Managed.Kind == device.ManagedPartial && !intended.Managed.PrevChangeCommitted {
			updated := current.DeepCopy()
			updated.Controllable.Managed.PrevChangeCommitted = true
			r.store.SetState(ctx, updated, device.SetStateOpts{SkipExternal: true})
		}
		return
	}

	// §9 Open Question decision (see DESIGN.md): a non-matching
	// observation while a partial-management change is uncommitted is
	// still reconciled, not silently trusted.
	if r.limiter != nil && !r.limiter.Allow() {
		r.logger.Debug("reconcile: corrective command rate-limited, deferring", "key", key.String())
		return
	}

	r.bus.Emit(eventbus.Event{
		Kind: eventbus.KindCommandState,
		CommandState: &eventbus.CommandStatePayload{
			Key:   key,
			State: intended.DeepCopy(),
		},
	})
}

func preferredMode(s *device.ControllableState) device.ColorMode {
	if len(s.Capabilities) > 0 {
		return s.Capabilities[0]
	}
	return device.ColorModeHS
}

// matchesIntended implements the §4.7 convergence guard: converting the
// intended state to the device's preferred color mode before comparing,
// so an adapter reporting state back in a different encoding doesn't
// trigger a spurious corrective command.
func matchesIntended(observed, intended *device.ControllableState, preferred device.ColorMode) bool {
	if observed.Power != intended.Power {
		return false
	}
	if !device.BrightnessWithinTolerance(observed.EffectiveBrightness(), intended.EffectiveBrightness()) {
		return false
	}
	if intended.Color == nil {
		return observed.Color == nil
	}
	if observed.Color == nil {
		return false
	}
	return device.ColorWithinTolerance(*observed.Color, *intended.Color, preferred)
}
