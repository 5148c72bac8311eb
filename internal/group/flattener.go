package group

import (
	"fmt"
	"sort"
	"sync"

	"github.com/homeforge/control-core/internal/corekey"
)

// RefResolver resolves a device reference against the live device store;
// it is satisfied by device.Store.GetByRef (as a key-only projection) so
// this package never imports package device directly.
type RefResolver func(ref corekey.DeviceRef) (corekey.DeviceKey, bool)

// Flattener holds the current group configuration and the last
// flattened result, so Invalidate can detect key-set-only changes.
type Flattener struct {
	mu       sync.RWMutex
	configs  map[string]Config
	last     map[string]Flattened
	resolve  RefResolver
}

// NewFlattener builds a Flattener. resolve is used to turn device
// references into concrete keys at flatten time.
func NewFlattener(resolve RefResolver) *Flattener {
	return &Flattener{
		configs: make(map[string]Config),
		last:    make(map[string]Flattened),
		resolve: resolve,
	}
}

// Load replaces the group configuration wholesale (config reload, or
// initial config-file load), validating that the group-link graph is a
// DAG (I3) before accepting it.
func (f *Flattener) Load(configs []Config) error {
	byID := make(map[string]Config, len(configs))
	for _, c := range configs {
		byID[c.ID] = c
	}
	for id := range byID {
		if err := checkAcyclic(id, byID, make(map[string]bool), make(map[string]bool)); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs = byID
	return nil
}

// checkAcyclic walks the group-link graph from id using an explicit
// visited set (§9: "Replace implicit recursion with an explicit
// visited-set during resolution"), returning an error if id is reachable
// from itself.
func checkAcyclic(id string, byID map[string]Config, visiting, done map[string]bool) error {
	if done[id] {
		return nil
	}
	if visiting[id] {
		return fmt.Errorf("group: cycle detected in group links at %q", id)
	}
	visiting[id] = true
	cfg, ok := byID[id]
	if !ok {
		visiting[id] = false
		return nil
	}
	for _, ref := range cfg.GroupRefs {
		if err := checkAcyclic(string(ref), byID, visiting, done); err != nil {
			return err
		}
	}
	visiting[id] = false
	done[id] = true
	return nil
}

// Flatten computes concrete membership for every configured group
// (§4.3): direct device refs plus the transitive closure of linked
// groups' device refs, resolved against the current device store,
// deduplicated and ordered by key string for determinism.
func (f *Flattener) Flatten() map[string]Flattened {
	f.mu.RLock()
	configs := f.configs
	f.mu.RUnlock()

	out := make(map[string]Flattened, len(configs))
	for id := range configs {
		out[id] = f.flattenOne(id, configs)
	}

	f.mu.Lock()
	f.last = out
	f.mu.Unlock()
	return out
}

func (f *Flattener) flattenOne(id string, configs map[string]Config) Flattened {
	cfg := configs[id]
	seenGroups := map[string]bool{}
	seenKeys := map[corekey.DeviceKey]bool{}
	var keys []corekey.DeviceKey

	var walk func(gid string)
	walk = func(gid string) {
		if seenGroups[gid] {
			return
		}
		seenGroups[gid] = true
		c, ok := configs[gid]
		if !ok {
			return
		}
		for _, ref := range c.DeviceRefs {
			key, ok := f.resolve(ref)
			if !ok || seenKeys[key] {
				continue
			}
			seenKeys[key] = true
			keys = append(keys, key)
		}
		for _, sub := range c.GroupRefs {
			walk(string(sub))
		}
	}
	walk(id)

	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	return Flattened{ID: id, Name: cfg.Name, DeviceKeys: keys, Hidden: cfg.Hidden}
}

// FindGroupDevices returns the resolved device keys for a single group
// id, resolving on demand rather than from the cached Flatten result.
func (f *Flattener) FindGroupDevices(groupID string) []corekey.DeviceKey {
	f.mu.RLock()
	configs := f.configs
	f.mu.RUnlock()
	return f.flattenOne(groupID, configs).DeviceKeys
}

// Invalidate recomputes flattened groups and reports whether the
// device-key-set of any group actually changed (§4.3: "only if the set
// of device keys changed (by key-set equality, independent of value
// changes)"). Callers use the returned changed-group id set to decide
// which scenes/routines need recomputation.
func (f *Flattener) Invalidate() (changed map[string]bool, result map[string]Flattened) {
	f.mu.RLock()
	prev := f.last
	f.mu.RUnlock()

	result = f.Flatten()
	changed = make(map[string]bool)
	for id, flat := range result {
		old, existed := prev[id]
		if !existed || !keySetsEqual(flat.keySet(), old.keySet()) {
			changed[id] = true
		}
	}
	for id := range prev {
		if _, ok := result[id]; !ok {
			changed[id] = true
		}
	}
	return changed, result
}
