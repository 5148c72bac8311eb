package scene

import (
	"context"
	"sync"

	"github.com/homeforge/control-core/internal/corekey"
	"github.com/homeforge/control-core/internal/device"
)

// Repository persists scene configs, matching §6's `scenes(scene_id) ->
// {name, config-blob}`.
type Repository interface {
	Upsert(ctx context.Context, cfg Config) error
	Delete(ctx context.Context, sceneID string) error
	Load(ctx context.Context) ([]Config, error)
}

// Store is the scene configuration cache, in the same
// RWMutex-cache-in-front-of-Repository shape as device.Store and the
// teacher's automation.Registry.
type Store struct {
	repo Repository

	mu      sync.RWMutex
	scenes  map[string]Config
}

// NewStore builds a Store.
func NewStore(repo Repository) *Store {
	return &Store{repo: repo, scenes: make(map[string]Config)}
}

// Hydrate loads every persisted scene config.
func (s *Store) Hydrate(ctx context.Context) error {
	cfgs, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range cfgs {
		s.scenes[c.ID] = c
	}
	return nil
}

// Get returns a scene config by id, implementing ConfigLookup.
func (s *Store) Get(sceneID string) (Config, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.scenes[sceneID]
	return c.DeepCopy(), ok
}

// List returns every non-hidden scene. Hidden scenes are excluded from
// listing but remain resolvable by id via Get (supplemented feature,
// §9/original_source precedent for "hidden" scenes and groups).
func (s *Store) List() []Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Config, 0, len(s.scenes))
	for _, c := range s.scenes {
		if !c.Hidden {
			out = append(out, c.DeepCopy())
		}
	}
	return out
}

// Put creates or replaces a scene config, persisting it.
func (s *Store) Put(ctx context.Context, cfg Config) error {
	if err := s.repo.Upsert(ctx, cfg); err != nil {
		return err
	}
	s.mu.Lock()
	s.scenes[cfg.ID] = cfg.DeepCopy()
	s.mu.Unlock()
	return nil
}

// Remove deletes a scene config.
func (s *Store) Remove(ctx context.Context, sceneID string) error {
	if err := s.repo.Delete(ctx, sceneID); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.scenes, sceneID)
	s.mu.Unlock()
	return nil
}

// DeviceDescriptor is one resolved entry in a scene-activation mapping.
type DeviceDescriptor struct {
	Key   corekey.DeviceKey
	State *device.ControllableState
}

// FindSceneDevicesConfig computes the concrete device->target-state
// mapping for a scene activation (§4.4), optionally filtered to
// onlyKeys/onlyGroups when non-empty. memberGroupsOf resolves a device's
// current flattened group memberships; allDevices enumerates every known
// device the scene could possibly touch (normally every device in the
// groups referenced by the scene, plus every device explicitly named in
// it).
func (r *Resolver) FindSceneDevicesConfig(sceneID string, allDevices []*device.Record, memberGroupsOf func(corekey.DeviceKey) []string, onlyKeys map[corekey.DeviceKey]bool) []DeviceDescriptor {
	var out []DeviceDescriptor
	for _, d := range allDevices {
		if d.DataKind != device.DataControllable {
			continue
		}
		if len(onlyKeys) > 0 && !onlyKeys[d.Key] {
			continue
		}
		groups := memberGroupsOf(d.Key)
		state, ok := r.EvalSceneDeviceState(sceneID, d.IntegrationID, device.NormalizeName(d.Name), groups, false)
		if !ok {
			continue
		}
		out = append(out, DeviceDescriptor{Key: d.Key, State: state})
	}
	return out
}

// FlattenedScene is one scene's fully-evaluated per-device target state,
// used for the WebSocket broadcast (§4.4 get_flattened_scenes).
type FlattenedScene struct {
	SceneID string
	Devices []DeviceDescriptor
}

// GetFlattenedScenes evaluates every known scene against every known
// device, for the broadcast snapshot.
func (r *Resolver) GetFlattenedScenes(scenes []Config, allDevices []*device.Record, memberGroupsOf func(corekey.DeviceKey) []string) []FlattenedScene {
	out := make([]FlattenedScene, 0, len(scenes))
	for _, cfg := range scenes {
		out = append(out, FlattenedScene{
			SceneID: cfg.ID,
			Devices: r.FindSceneDevicesConfig(cfg.ID, allDevices, memberGroupsOf, nil),
		})
	}
	return out
}
