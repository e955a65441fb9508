// Package dispatch builds virtual and interface dispatch tables.
package dispatch

import (
	"github.com/daimatz/ramclass/internal/logger"
	"github.com/daimatz/ramclass/pkg/rom"
	"github.com/daimatz/ramclass/pkg/rt"
)

// ConstraintChecker enforces loader constraints.
type ConstraintChecker interface {
	// Agree reports whether loaders a and b resolve every class named in
	// signature to the same class, and records the constraint when they
	// do. On disagreement it returns the offending class name.
	Agree(signature string, a, b rt.Loader) (string, bool)
}

// Input describes the class whose vtable is built.
type Input struct {
	// Class is the class under construction. ROM, Name, Loader and
	// Package must be set.
	Class *rt.Class
	Super *rt.Class
	// Interfaces are the interfaces new to Class, ordered shallow to deep.
	Interfaces  []*rt.Class
	Constraints ConstraintChecker
}

// VTableResult is a built vtable.
type VTableResult struct {
	VTable rt.VTable
	// Conflicts counts the default-conflict slots created for this class.
	// Each needs a synthetic conflict method.
	Conflicts int
}

type vtableBuilder struct {
	in Input
	vt rt.VTable
	// placed marks slots written by interface merging in this build.
	placed []bool
}

// BuildVTable computes the vtable of in.Class. Interfaces get an empty table.
func BuildVTable(in Input) (*VTableResult, error) {
	c := in.Class
	if c.IsInterface() {
		return &VTableResult{}, nil
	}
	b := &vtableBuilder{in: in}
	if in.Super != nil {
		b.vt = in.Super.VTable.Clone()
	}
	b.placed = make([]bool, len(b.vt))

	for i := range c.ROM.Methods {
		m := &c.ROM.Methods[i]
		if !m.IsVirtual() {
			continue
		}
		if err := b.addLocal(i, m); err != nil {
			return nil, err
		}
	}
	for _, iface := range in.Interfaces {
		for _, m := range iface.InterfaceMethods() {
			if err := b.addInterfaceMethod(m); err != nil {
				return nil, err
			}
		}
	}
	conflicts := b.resolve()

	inherited := 0
	if in.Super != nil {
		inherited = len(in.Super.VTable)
	}
	logger.L.Debug("dispatch: vtable built", "class", c.Name, "slots", len(b.vt), "inherited", inherited, "conflicts", conflicts)
	return &VTableResult{VTable: b.vt, Conflicts: conflicts}, nil
}

func (b *vtableBuilder) append(s rt.Slot, placed bool) {
	b.vt = append(b.vt, s)
	b.placed = append(b.placed, placed)
}

// addLocal installs local method i over every slot it overrides, or
// appends it.
func (b *vtableBuilder) addLocal(i int, m *rom.Method) error {
	key := rt.NameSig{Name: m.Name, Signature: m.Signature}
	overrode := false
	for idx, s := range b.vt {
		if s.Key() != key {
			continue
		}
		owner := b.owner(s)
		if s.Modifiers().IsFinal() && b.visible(s) {
			return &FinalOverrideError{Class: b.in.Class.Name, Method: key, Overridden: owner.Name}
		}
		if !b.overrides(m, s) {
			continue
		}
		if err := b.check(key, b.in.Class, owner); err != nil {
			return err
		}
		b.vt[idx] = rt.PendingLocal(i, m)
		b.placed[idx] = false
		overrode = true
	}
	if !overrode {
		b.append(rt.PendingLocal(i, m), false)
	}
	return nil
}

// overrides reports whether local method m overrides the method in slot s.
// Package-private locals only override package-private slots of the same
// runtime package.
func (b *vtableBuilder) overrides(m *rom.Method, s rt.Slot) bool {
	if m.Modifiers.IsPackagePrivate() {
		return s.Modifiers().IsPackagePrivate() && rt.SamePackage(b.owner(s).Package, b.in.Class.Package)
	}
	return b.visible(s)
}

// visible reports whether the method in slot s can be redeclared by the
// class under construction, whatever the access of the redeclaration.
func (b *vtableBuilder) visible(s rt.Slot) bool {
	sm := s.Modifiers()
	if sm.IsPublic() || sm.IsProtected() {
		return true
	}
	return rt.SamePackage(b.owner(s).Package, b.in.Class.Package)
}

// addInterfaceMethod merges one interface method into the table.
func (b *vtableBuilder) addInterfaceMethod(m *rt.Method) error {
	key := m.Key()
	for idx, s := range b.vt {
		if s.Key() != key {
			continue
		}
		if isClassSlot(s) {
			if !s.Modifiers().IsPublic() {
				// A non-public class method does not implement an interface method.
				continue
			}
			return b.check(key, b.owner(s), m.Class)
		}
		return b.merge(idx, m)
	}
	b.append(rt.Concrete(m), true)
	return nil
}

// merge folds interface method m into slot idx, which holds interface
// methods. Methods made redundant by a more specific interface are dropped.
func (b *vtableBuilder) merge(idx int, m *rt.Method) error {
	key := m.Key()
	cands := candidates(b.vt[idx])
	for _, c := range cands {
		if c == m || c.Class == m.Class || c.Class.IsSubInterfaceOf(m.Class) {
			return nil
		}
	}
	kept := make([]*rt.Method, 0, len(cands)+1)
	for _, c := range cands {
		if m.Class.IsSubInterfaceOf(c.Class) {
			continue
		}
		if err := b.check(key, m.Class, c.Class); err != nil {
			return err
		}
		kept = append(kept, c)
	}
	kept = append(kept, m)
	b.vt[idx] = slotFor(kept)
	b.placed[idx] = true
	return nil
}

// resolve replaces every equivalence set and returns the number of
// conflict slots created by this build.
func (b *vtableBuilder) resolve() int {
	conflicts := 0
	for i, s := range b.vt {
		if s.Kind == rt.SlotEquivalenceSet {
			b.vt[i] = resolveSet(s.Candidates)
		}
		if b.placed[i] && b.vt[i].Kind == rt.SlotDefaultConflict {
			conflicts++
		}
	}
	return conflicts
}

// slotFor builds the in-progress slot for a candidate list.
func slotFor(cands []*rt.Method) rt.Slot {
	if len(cands) == 1 {
		return rt.Concrete(cands[0])
	}
	if rep, n := firstConcrete(cands); n >= 2 {
		return rt.DefaultConflict(rep, cands)
	}
	return rt.EquivalenceSet(cands)
}

// resolveSet picks the winner of an equivalence set: the only concrete
// method, a conflict if there are several, or the first abstract method.
func resolveSet(cands []*rt.Method) rt.Slot {
	rep, n := firstConcrete(cands)
	switch {
	case n == 1:
		return rt.Concrete(rep)
	case n >= 2:
		return rt.DefaultConflict(rep, cands)
	}
	return rt.Concrete(cands[0])
}

func firstConcrete(cands []*rt.Method) (*rt.Method, int) {
	var rep *rt.Method
	n := 0
	for _, c := range cands {
		if c.IsAbstract() {
			continue
		}
		if rep == nil {
			rep = c
		}
		n++
	}
	return rep, n
}

func candidates(s rt.Slot) []*rt.Method {
	switch s.Kind {
	case rt.SlotConcrete:
		return []*rt.Method{s.Method}
	case rt.SlotDefaultConflict, rt.SlotEquivalenceSet:
		return s.Candidates
	}
	return nil
}

// isClassSlot reports whether s dispatches to a method declared by a class
// rather than inherited from an interface.
func isClassSlot(s rt.Slot) bool {
	switch s.Kind {
	case rt.SlotPendingLocal:
		return true
	case rt.SlotConcrete:
		return !s.Method.FromInterface()
	}
	return false
}

// slotOwner returns the class that declared the slot's method. Pending
// slots have no owner yet and report nil.
func slotOwner(s rt.Slot) *rt.Class {
	if s.Kind == rt.SlotPendingLocal {
		return nil
	}
	if s.Kind == rt.SlotEquivalenceSet {
		return s.Candidates[0].Class
	}
	return s.Method.Class
}

// check enforces the loader constraint for key between the declaring
// classes x and y.
func (b *vtableBuilder) check(key rt.NameSig, x, y *rt.Class) error {
	if x.Loader == y.Loader || b.in.Constraints == nil {
		return nil
	}
	if typ, ok := b.in.Constraints.Agree(key.Signature, x.Loader, y.Loader); !ok {
		return &LoaderConstraintError{
			LoaderA: x.Loader, ClassA: x.Name,
			LoaderB: y.Loader, ClassB: y.Name,
			Method: key, Type: typ,
		}
	}
	return nil
}

// owner returns the declaring class of the method in s, treating pending
// slots as declared by the class under construction.
func (b *vtableBuilder) owner(s rt.Slot) *rt.Class {
	if o := slotOwner(s); o != nil {
		return o
	}
	return b.in.Class
}
