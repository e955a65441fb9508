package dispatch

import (
	"sort"

	"github.com/daimatz/ramclass/pkg/rt"
)

// CollectInterfaces returns the interfaces a class with superclass super and
// direct interfaces direct implements that super does not, ordered shallow
// to deep. Each direct interface contributes itself and its superinterfaces.
func CollectInterfaces(super *rt.Class, direct []*rt.Class) []*rt.Class {
	seen := map[*rt.Class]bool{}
	var out []*rt.Class
	for _, d := range direct {
		for _, it := range d.ITables {
			i := it.Interface
			if seen[i] || (super != nil && super.Implements(i)) {
				continue
			}
			seen[i] = true
			out = append(out, i)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].InterfaceDepth < out[b].InterfaceDepth
	})
	return out
}

// InterfaceDepth returns the depth of an interface whose direct
// superinterfaces are supers.
func InterfaceDepth(supers []*rt.Class) int {
	if len(supers) == 0 {
		return 0
	}
	depth := 0
	for _, s := range supers {
		if s.InterfaceDepth > depth {
			depth = s.InterfaceDepth
		}
	}
	return depth + 1
}

// BuildITables builds c's itable list from the interfaces new to it
// (shallow to deep, as returned by CollectInterfaces) and its final vtable.
// New itables come first, deepest first, followed by the superclass's list.
// An interface gets entries for itself and its superinterfaces without mappings.
func BuildITables(c *rt.Class, ifaces []*rt.Class) []*rt.ITable {
	if c.IsInterface() {
		out := []*rt.ITable{{Interface: c, Depth: c.InterfaceDepth}}
		for i := len(ifaces) - 1; i >= 0; i-- {
			out = append(out, &rt.ITable{Interface: ifaces[i], Depth: ifaces[i].InterfaceDepth})
		}
		return out
	}

	var out []*rt.ITable
	for i := len(ifaces) - 1; i >= 0; i-- {
		iface := ifaces[i]
		methods := iface.InterfaceMethods()
		slots := make([]int, len(methods))
		for j, m := range methods {
			slots[j] = lookupSlot(c.VTable, m.Key())
		}
		out = append(out, &rt.ITable{Interface: iface, Depth: iface.InterfaceDepth, Slots: slots})
	}
	if c.Superclass != nil {
		out = append(out, c.Superclass.ITables...)
	}
	return out
}

// lookupSlot returns the index of the public slot dispatching key, or
// rt.Unresolved.
func lookupSlot(vt rt.VTable, key rt.NameSig) int {
	for i, s := range vt {
		if s.Modifiers().IsPublic() && s.Key() == key {
			return i
		}
	}
	return rt.Unresolved
}

// Lookup returns the vtable index an interface call to method ordinal of
// iface dispatches to on c, or rt.Unresolved.
func Lookup(c *rt.Class, iface *rt.Class, ordinal int) int {
	for _, it := range c.ITables {
		if it.Interface == iface {
			if ordinal < 0 || ordinal >= len(it.Slots) {
				return rt.Unresolved
			}
			return it.Slots[ordinal]
		}
	}
	return rt.Unresolved
}
