package device

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/homeforge/control-core/internal/corekey"
	"github.com/homeforge/control-core/internal/eventbus"
)

// Logger is the small structured-logging interface every core package
// depends on, satisfied by *logging.Logger.
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

// Repository persists device records; the default implementation is
// SQLite-backed (repository.go), matching §6's devices(integration_id,
// device_id) -> {name, scene_id, state-blob, raw-blob} schema.
type Repository interface {
	Upsert(ctx context.Context, r *Record) error
	Load(ctx context.Context) ([]*Record, error)
}

// Store is the device state store and reconciler input described in
// §4.2. It is the single in-memory owner of device state (§5); external
// readers obtain DeepCopy snapshots. All mutation goes through set_state
// or handle_observed, both of which emit events onto bus rather than
// calling out to other components directly, keeping every side effect
// serialized through the single consumer loop.
//
// Grounded on the teacher's device.Registry: sync.RWMutex-guarded cache
// in front of a Repository, DeepCopy on every read, cache-then-persist
// write ordering.
type Store struct {
	repo   Repository
	bus    *eventbus.Bus
	logger Logger

	mu       sync.RWMutex
	byKey    map[corekey.DeviceKey]*Record
	byName   map[string]corekey.DeviceKey // integration_id + "/" + normalized name -> key
}

// NewStore builds a Store. Call Hydrate before serving traffic to load
// the persisted snapshot (§3 Lifecycle: "the store hydrates from the
// persisted snapshot if present").
func NewStore(repo Repository, bus *eventbus.Bus) *Store {
	return &Store{
		repo:   repo,
		bus:    bus,
		logger: noopLogger{},
		byKey:  make(map[corekey.DeviceKey]*Record),
		byName: make(map[string]corekey.DeviceKey),
	}
}

// SetLogger installs a non-default logger.
func (s *Store) SetLogger(l Logger) {
	if l != nil {
		s.logger = l
	}
}

// Hydrate loads every persisted record into the cache.
func (s *Store) Hydrate(ctx context.Context) error {
	records, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.byKey[r.Key] = r
		s.indexNameLocked(r)
	}
	return nil
}

func (s *Store) indexNameLocked(r *Record) {
	s.byName[r.IntegrationID+"/"+NormalizeName(r.Name)] = r.Key
}

// Get returns a deep copy of the record for key, or ErrNotFound.
func (s *Store) Get(key corekey.DeviceKey) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	return r.DeepCopy(), nil
}

// GetByRef resolves a corekey.DeviceRef (by key or by name, §9 "Device
// references by id vs. name") against the current cache.
func (s *Store) GetByRef(ref corekey.DeviceRef) (*Record, error) {
	if ref.Key != nil {
		return s.Get(*ref.Key)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, key := range s.byName {
		if r, ok := s.byKey[key]; ok && NormalizeName(r.Name) == NormalizeName(ref.Name) {
			return r.DeepCopy(), nil
		}
	}
	return nil, ErrNotFound
}

// List returns a deep copy of every record.
func (s *Store) List() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.byKey))
	for _, r := range s.byKey {
		out = append(out, r.DeepCopy())
	}
	return out
}

// SetStateOpts controls the optional side effects of SetState.
type SetStateOpts struct {
	SkipExternal bool // suppress CommandState
	SkipDB       bool // suppress persistence
}

// structurallyEqual reports whether two records are identical for
// change-detection purposes: (data, raw) equality per §4.2. Name and
// timestamps do not participate.
func structurallyEqual(a, b *Record) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.DataKind != b.DataKind {
		return false
	}
	if !reflect.DeepEqual(a.Controllable, b.Controllable) {
		return false
	}
	if !reflect.DeepEqual(a.Sensor, b.Sensor) {
		return false
	}
	return reflect.DeepEqual(a.Raw, b.Raw)
}

// SetState upserts next (§4.2). If it differs structurally from the
// stored record, an InternalUpdate is emitted, and unless suppressed a
// CommandState is emitted and a persistence write is scheduled.
func (s *Store) SetState(ctx context.Context, next *Record, opts SetStateOpts) {
	s.mu.Lock()
	old := s.byKey[next.Key]
	var oldCopy *Record
	if old != nil {
		oldCopy = old.DeepCopy()
	}
	if next.StateUpdatedAt.IsZero() {
		next.StateUpdatedAt = time.Now()
	}
	if old == nil {
		next.CreatedAt = next.StateUpdatedAt
	} else {
		next.CreatedAt = old.CreatedAt
	}
	stored := next.DeepCopy()
	s.byKey[next.Key] = stored
	s.indexNameLocked(stored)
	s.mu.Unlock()

	if structurallyEqual(oldCopy, stored) {
		return
	}

	s.bus.Emit(eventbus.Event{
		Kind: eventbus.KindInternalUpdate,
		InternalUpdate: &eventbus.InternalUpdatePayload{
			Key:      next.Key,
			OldState: oldCopy,
			NewState: stored.DeepCopy(),
		},
	})

	if !opts.SkipExternal && stored.DataKind == DataControllable {
		s.bus.Emit(eventbus.Event{
			Kind: eventbus.KindCommandState,
			CommandState: &eventbus.CommandStatePayload{
				Key:   next.Key,
				State: stored.Controllable.DeepCopy(),
			},
		})
	}

	if !opts.SkipDB {
		go func() {
			if err := s.repo.Upsert(context.Background(), stored); err != nil {
				s.logger.Error("device store: persist failed", "key", next.Key.String(), "err", err)
			}
		}()
	}
}

// HandleObserved routes an adapter's reported state by managed status
// (§4.2). New devices are discovered and persisted verbatim; sensors
// always accept the observation; managed controllables are compared to
// intended state by the reconciler (package reconcile), which is wired
// to the KindObservedState event separately — HandleObserved here
// performs only the store-level discover/accept paths, leaving
// reconciliation decisions to the reconciler so the two concerns stay
// independently testable.
func (s *Store) HandleObserved(ctx context.Context, key corekey.DeviceKey, name, integrationID string, dataKind DataKind, controllable *ControllableState, sensor *SensorState, raw map[string]any) {
	s.mu.RLock()
	_, known := s.byKey[key]
	s.mu.RUnlock()

	if !known {
		s.SetState(ctx, &Record{
			Key:           key,
			Name:          name,
			IntegrationID: integrationID,
			DataKind:      dataKind,
			Controllable:  controllable,
			Sensor:        sensor,
			Raw:           raw,
		}, SetStateOpts{SkipExternal: true, SkipDB: false})
		return
	}

	if dataKind == DataSensor {
		s.SetState(ctx, &Record{
			Key:           key,
			Name:          name,
			IntegrationID: integrationID,
			DataKind:      dataKind,
			Sensor:        sensor,
			Raw:           raw,
		}, SetStateOpts{SkipExternal: true})
		return
	}

	// Managed controllable observations are reconciled, not adopted
	// directly; see package reconcile.
	s.bus.Emit(eventbus.Event{
		Kind: eventbus.KindObservedState,
		ObservedState: &eventbus.ObservedStatePayload{
			Key:       key,
			Raw:       raw,
			FromStore: true,
			Data:      controllable,
		},
	})
}

// Invalidate recomputes scene-derived intended state for every device
// whose current scene is in sceneIDs, reapplying it via apply. apply is
// supplied by the caller (package scene owns resolution logic; the
// store only knows which devices are affected and how to write the
// result back).
func (s *Store) Invalidate(ctx context.Context, sceneIDs map[string]bool, apply func(r *Record) (*ControllableState, bool)) {
	affected := s.devicesWithScenes(sceneIDs)
	for _, r := range affected {
		next, ok := apply(r)
		if !ok {
			continue
		}
		updated := r.DeepCopy()
		updated.Controllable = next
		s.SetState(ctx, updated, SetStateOpts{})
	}
}

func (s *Store) devicesWithScenes(sceneIDs map[string]bool) []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for _, r := range s.byKey {
		if r.DataKind != DataControllable || r.Controllable == nil {
			continue
		}
		if sceneIDs[r.Controllable.SceneID] {
			out = append(out, r.DeepCopy())
		}
	}
	return out
}
