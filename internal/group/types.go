// Package group implements the group flattener (§4.3): it expands
// nested group definitions into a concrete device-key membership set,
// and invalidates dependents only when that set actually changes.
//
// Grounded on the teacher's device.ResolveGroup (group_resolver.go) and
// its GroupRepository static/dynamic/hybrid member model; generalized
// here from a single-level device-or-tag resolution into the spec's
// nested group-link DAG, with cycle rejection at load time per §9
// ("Same for group links at load time"), using a recursive walk with
// explicit visiting/done sets (checkAcyclic in flattener.go).
package group

import "github.com/homeforge/control-core/internal/corekey"

// Config is a group's declarative definition (§3 "Group
// configuration"): a name, direct device references, references to
// other groups (nested membership), and a hidden flag excluding it from
// listings while remaining resolvable by id.
type Config struct {
	ID         string
	Name       string
	DeviceRefs []corekey.DeviceRef
	GroupRefs  []corekey.GroupRef
	Hidden     bool
}

// Flattened is a group's concrete membership, as returned by Flatten.
type Flattened struct {
	ID         string
	Name       string
	DeviceKeys []corekey.DeviceKey
	Hidden     bool
}

// keySet returns the set of device keys in f, used for invalidation
// comparison (key-set equality, independent of value changes).
func (f Flattened) keySet() map[corekey.DeviceKey]bool {
	s := make(map[corekey.DeviceKey]bool, len(f.DeviceKeys))
	for _, k := range f.DeviceKeys {
		s[k] = true
	}
	return s
}

func keySetsEqual(a, b map[corekey.DeviceKey]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
