package ipc

import "github.com/mach-sim/rmach/pkg/types"

// rightsTable tracks, per (task, port) pair, the rights mask that task
// holds on that port. Keyed by an explicit struct rather than a packed
// integer: the bit-packed (pid<<16)|port_id scheme this replaces used
// an inconsistent shift width across call sites in the system it was
// ported from, which silently aliased distinct (task, port) pairs once
// either id grew past the packing boundary.
type rightsTable struct {
	entries map[types.RightsKey]types.RightMask
}

func newRightsTable() *rightsTable {
	return &rightsTable{entries: make(map[types.RightsKey]types.RightMask)}
}

// add grants mask to task on port, retaining the port object the first
// time this (task, port) pair acquires any right. port may be nil when
// a right is pre-seeded on a native handler id that has no backing
// Port — handler ids share the port-id namespace but are never stored
// in IPC's ports map.
func (rt *rightsTable) add(task types.TaskID, port types.PortID, mask types.RightMask, obj *Port) {
	key := types.RightsKey{Task: task, Port: port}
	existing, ok := rt.entries[key]
	if !ok && obj != nil {
		obj.retain()
	}
	rt.entries[key] = existing | mask
}

// check reports whether task holds every bit in required on port.
func (rt *rightsTable) check(task types.TaskID, port types.PortID, required types.RightMask) bool {
	mask, ok := rt.entries[types.RightsKey{Task: task, Port: port}]
	if !ok {
		return false
	}
	return mask.Has(required)
}

// consumeServer removes the one-shot SERVER bit after a reply right is
// used, dropping the whole entry if nothing else remains. It reports
// whether the SERVER bit was present — the caller releases the port's
// ref count whenever it was, regardless of whether other bits survive.
func (rt *rightsTable) consumeServer(task types.TaskID, port types.PortID) bool {
	key := types.RightsKey{Task: task, Port: port}
	mask, ok := rt.entries[key]
	if !ok || mask&types.RightServer == 0 {
		return false
	}
	mask &^= types.RightServer
	if mask == 0 {
		delete(rt.entries, key)
	} else {
		rt.entries[key] = mask
	}
	return true
}

// removeTask deletes task's entry on port outright, reporting whether
// an entry existed (and so a release is owed).
func (rt *rightsTable) removeTask(task types.TaskID, port types.PortID) bool {
	key := types.RightsKey{Task: task, Port: port}
	if _, ok := rt.entries[key]; !ok {
		return false
	}
	delete(rt.entries, key)
	return true
}

// purgePort deletes every entry referencing port, regardless of which
// task holds it. Called when a port is destroyed so invariant #3 (no
// dangling rights) holds immediately afterward.
func (rt *rightsTable) purgePort(port types.PortID) {
	for key := range rt.entries {
		if key.Port == port {
			delete(rt.entries, key)
		}
	}
}

// keysForTask returns a snapshot of the keys belonging to task, taken
// up front so the caller can mutate rt while iterating the result.
func (rt *rightsTable) keysForTask(task types.TaskID) []types.RightsKey {
	var keys []types.RightsKey
	for key := range rt.entries {
		if key.Task == task {
			keys = append(keys, key)
		}
	}
	return keys
}
