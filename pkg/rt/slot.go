package rt

import (
	"fmt"
	"strings"

	"github.com/daimatz/ramclass/pkg/rom"
)

// SlotKind tags a vtable slot.
type SlotKind uint8

const (
	// SlotConcrete holds a runtime method.
	SlotConcrete SlotKind = iota
	// SlotPendingLocal holds the index of a ROM method of the class under
	// construction whose runtime method does not exist yet.
	SlotPendingLocal
	// SlotDefaultConflict holds a representative method and the conflicting
	// default methods.
	SlotDefaultConflict
	// SlotEquivalenceSet holds candidate interface methods while a vtable
	// is being built. It never survives construction.
	SlotEquivalenceSet
)

func (k SlotKind) String() string {
	switch k {
	case SlotConcrete:
		return "concrete"
	case SlotPendingLocal:
		return "pending"
	case SlotDefaultConflict:
		return "conflict"
	case SlotEquivalenceSet:
		return "equivalence-set"
	}
	return fmt.Sprintf("SlotKind(%d)", uint8(k))
}

// Slot is one vtable entry.
type Slot struct {
	Kind SlotKind

	// Method is set for concrete slots and is the representative of a
	// conflict slot.
	Method *Method

	// Local and ROM identify the method of a pending slot.
	Local int
	ROM   *rom.Method

	// Candidates lists the methods of a conflict or equivalence-set slot.
	Candidates []*Method
}

// Concrete returns a slot holding m.
func Concrete(m *Method) Slot { return Slot{Kind: SlotConcrete, Method: m} }

// PendingLocal returns a slot for ROM method index i of the class under construction.
func PendingLocal(i int, m *rom.Method) Slot {
	return Slot{Kind: SlotPendingLocal, Local: i, ROM: m}
}

// DefaultConflict returns a conflict slot represented by rep.
func DefaultConflict(rep *Method, candidates []*Method) Slot {
	return Slot{Kind: SlotDefaultConflict, Method: rep, Candidates: candidates}
}

// EquivalenceSet returns a transient slot holding candidates.
func EquivalenceSet(candidates []*Method) Slot {
	return Slot{Kind: SlotEquivalenceSet, Candidates: candidates}
}

// Key returns the name and signature the slot dispatches.
func (s Slot) Key() NameSig {
	switch s.Kind {
	case SlotConcrete, SlotDefaultConflict:
		return s.Method.Key()
	case SlotPendingLocal:
		return NameSig{s.ROM.Name, s.ROM.Signature}
	case SlotEquivalenceSet:
		return s.Candidates[0].Key()
	}
	panic(fmt.Sprintf("rt: unknown slot kind %d", s.Kind))
}

// Modifiers returns the access flags of the method the slot dispatches to.
func (s Slot) Modifiers() rom.Modifiers {
	switch s.Kind {
	case SlotConcrete, SlotDefaultConflict:
		return s.Method.Modifiers()
	case SlotPendingLocal:
		return s.ROM.Modifiers
	case SlotEquivalenceSet:
		return s.Candidates[0].Modifiers()
	}
	panic(fmt.Sprintf("rt: unknown slot kind %d", s.Kind))
}

// IsConflict reports whether invoking the slot raises a default-method conflict.
func (s Slot) IsConflict() bool { return s.Kind == SlotDefaultConflict }

func (s Slot) String() string {
	switch s.Kind {
	case SlotConcrete:
		return s.Method.String()
	case SlotPendingLocal:
		return fmt.Sprintf("<pending #%d %s%s>", s.Local, s.ROM.Name, s.ROM.Signature)
	}
	names := make([]string, len(s.Candidates))
	for i, c := range s.Candidates {
		names[i] = c.String()
	}
	return fmt.Sprintf("<%s %s: %s>", s.Kind, s.Key(), strings.Join(names, ", "))
}

// VTable is an ordered list of slots.
type VTable []Slot

// Clone copies the table. Slot payloads are shared.
func (vt VTable) Clone() VTable {
	return append(VTable(nil), vt...)
}

// Find returns the indices of every slot dispatching key.
func (vt VTable) Find(key NameSig) []int {
	var idx []int
	for i, s := range vt {
		if s.Key() == key {
			idx = append(idx, i)
		}
	}
	return idx
}

// Unresolved marks an interface method with no implementing vtable slot.
const Unresolved = -1

// ITable maps the methods of one interface, by ordinal, to vtable indices.
// Interfaces carry entries for themselves and their superinterfaces with
// nil Slots.
type ITable struct {
	Interface *Class
	Depth     int
	Slots     []int
}
