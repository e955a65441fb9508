package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daimatz/ramclass/pkg/rom"
	"github.com/daimatz/ramclass/pkg/rt"
)

type testLoader struct{ name string }

func (l *testLoader) Name() string { return l.name }

// world links classes without allocating memory, the way the VM does.
type world struct {
	t           *testing.T
	loader      *testLoader
	classes     map[string]*rt.Class
	packages    map[string]*rt.Package
	constraints ConstraintChecker
}

func newWorld(t *testing.T) *world {
	return &world{
		t:        t,
		loader:   &testLoader{name: "app"},
		classes:  map[string]*rt.Class{},
		packages: map[string]*rt.Package{},
	}
}

func (w *world) pkg(l *testLoader, name string) *rt.Package {
	key := l.name + ":" + name
	if p, ok := w.packages[key]; ok {
		return p
	}
	p := &rt.Package{Name: name, Loader: l}
	w.packages[key] = p
	return p
}

func (w *world) tryDefineIn(l *testLoader, desc *rom.Class) (*rt.Class, *VTableResult, error) {
	w.t.Helper()
	var super *rt.Class
	if desc.SuperName != "" {
		super = w.classes[desc.SuperName]
		require.NotNil(w.t, super, "superclass %s of %s", desc.SuperName, desc.Name)
	}
	direct := make([]*rt.Class, len(desc.Interfaces))
	for i, n := range desc.Interfaces {
		direct[i] = w.classes[n]
		require.NotNil(w.t, direct[i], "interface %s of %s", n, desc.Name)
	}

	c := &rt.Class{
		ROM: desc, Name: desc.Name, Loader: l,
		Package:    w.pkg(l, desc.Package()),
		Superclass: super, Interfaces: direct,
	}
	if super != nil {
		c.Depth = super.Depth + 1
	}
	if desc.IsInterface() {
		c.InterfaceDepth = InterfaceDepth(direct)
	}
	ifaces := CollectInterfaces(super, direct)

	res, err := BuildVTable(Input{Class: c, Super: super, Interfaces: ifaces, Constraints: w.constraints})
	if err != nil {
		return nil, nil, err
	}
	for i := range desc.Methods {
		c.Methods = append(c.Methods, &rt.Method{Class: c, ROM: &desc.Methods[i], Index: i})
	}
	c.VTable = res.VTable
	for _, s := range c.VTable {
		require.NotEqual(w.t, rt.SlotEquivalenceSet, s.Kind)
	}
	n, err := Finalize(c.VTable, c.Methods, func(s rt.Slot) *rt.Method {
		m := &rt.Method{Class: c, ROM: s.Method.ROM, Index: len(c.Methods), Conflict: true, Candidates: s.Candidates}
		c.Methods = append(c.Methods, m)
		return m
	})
	require.NoError(w.t, err)
	require.Equal(w.t, res.Conflicts, n)
	c.ITables = BuildITables(c, ifaces)
	w.classes[desc.Name] = c
	return c, res, nil
}

func (w *world) define(desc *rom.Class) *rt.Class {
	w.t.Helper()
	c, _, err := w.tryDefineIn(w.loader, desc)
	require.NoError(w.t, err)
	return c
}

// slotOf returns the single slot index dispatching name+sig.
func slotOf(t *testing.T, c *rt.Class, name, sig string) int {
	t.Helper()
	idx := c.VTable.Find(rt.NameSig{Name: name, Signature: sig})
	require.Len(t, idx, 1, "slots for %s%s in %s", name, sig, c.Name)
	return idx[0]
}

func requireIndexStable(t *testing.T, c *rt.Class) {
	t.Helper()
	s := c.Superclass
	if s == nil {
		return
	}
	require.GreaterOrEqual(t, len(c.VTable), len(s.VTable))
	for i := range s.VTable {
		require.Equal(t, s.VTable[i].Key(), c.VTable[i].Key(), "slot %d of %s vs %s", i, c.Name, s.Name)
	}
}

func requireNoDuplicatePublic(t *testing.T, c *rt.Class) {
	t.Helper()
	seen := map[rt.NameSig]int{}
	for i, s := range c.VTable {
		m := s.Modifiers()
		if !m.IsPublic() && !m.IsProtected() {
			continue
		}
		prev, dup := seen[s.Key()]
		require.Falsef(t, dup, "%s: %s in slots %d and %d", c.Name, s.Key(), prev, i)
		seen[s.Key()] = i
	}
}
