// Package integration implements the integration facade (§4.8): an
// abstract interface over adapters (register/start/send-state/
// run-action), held behind per-adapter mutexes so calls serialize
// within an adapter but run in parallel across adapters.
//
// Grounded on the teacher's knxd.Manager and process.Manager lifecycle
// (start/stop, restart-on-failure) and infrastructure/mqtt.Client's
// subscription-restore-on-reconnect pattern, which backs the concrete
// MQTT adapter in the mqttadapter subpackage.
package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/homeforge/control-core/internal/corekey"
)

// ErrUnknownIntegration is returned by Facade lookups for an
// unregistered integration id; §4.8 "missing-id is a user-visible
// error".
var ErrUnknownIntegration = errors.New("integration: unknown integration id")

// DeviceDeclaration is a first-time declaration of a device an adapter
// owns, passed to Adapter.Register.
type DeviceDeclaration struct {
	Key  corekey.DeviceKey
	Name string
}

// Adapter is the trait-like interface every integration implements
// (§4.8).
type Adapter interface {
	Register(ctx context.Context, declarations []DeviceDeclaration) error
	Start(ctx context.Context) error
	SetDeviceState(ctx context.Context, key corekey.DeviceKey, state any) error
	RunAction(ctx context.Context, payload any) error
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

type entry struct {
	adapter Adapter
	mu      sync.Mutex // serializes calls into this one adapter
}

// Facade holds every registered adapter and dispatches to it by
// integration id.
type Facade struct {
	mu       sync.RWMutex
	adapters map[string]*entry
	logger   Logger
}

// NewFacade builds an empty Facade.
func NewFacade() *Facade {
	return &Facade{adapters: make(map[string]*entry), logger: noopLogger{}}
}

// SetLogger installs a non-default logger.
func (f *Facade) SetLogger(l Logger) {
	if l != nil {
		f.logger = l
	}
}

// Add registers an adapter under integrationID. Calling Add again for
// the same id replaces the adapter (used on config reload).
func (f *Facade) Add(integrationID string, adapter Adapter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adapters[integrationID] = &entry{adapter: adapter}
}

func (f *Facade) lookup(integrationID string) (*entry, error) {
	f.mu.RLock()
	e, ok := f.adapters[integrationID]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIntegration, integrationID)
	}
	return e, nil
}

// Register declares devices to the named integration.
func (f *Facade) Register(ctx context.Context, integrationID string, declarations []DeviceDeclaration) error {
	e, err := f.lookup(integrationID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.adapter.Register(ctx, declarations)
}

// Start begins background polling/subscriptions for every registered
// adapter, each call running independently (parallel across adapters,
// per §4.8).
func (f *Facade) Start(ctx context.Context) error {
	f.mu.RLock()
	entries := make(map[string]*entry, len(f.adapters))
	for id, e := range f.adapters {
		entries[id] = e
	}
	f.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for id, e := range entries {
		id, e := id, e
		g.Go(func() error {
			e.mu.Lock()
			defer e.mu.Unlock()
			if err := e.adapter.Start(gctx); err != nil {
				wrapped := fmt.Errorf("integration %q: %w", id, err)
				f.logger.Error("integration: start failed", "err", wrapped)
				return wrapped
			}
			return nil
		})
	}
	return g.Wait()
}

// SetDeviceState applies a command to a single device via its owning
// adapter (looked up from key.IntegrationID).
func (f *Facade) SetDeviceState(ctx context.Context, key corekey.DeviceKey, state any) error {
	e, err := f.lookup(key.IntegrationID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.adapter.SetDeviceState(ctx, key, state)
}

// RunAction dispatches a side-channel action by opaque payload (§3
// Action "Custom"; §4.8 run_integration_action).
func (f *Facade) RunAction(ctx context.Context, integrationID string, payload any) error {
	e, err := f.lookup(integrationID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.adapter.RunAction(ctx, payload)
}
