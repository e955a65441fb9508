package rt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daimatz/ramclass/pkg/rom"
)

type loader string

func (l loader) Name() string { return string(l) }

func TestModuleAccess(t *testing.T) {
	app := loader("app")
	unnamed := NewModule("", app)
	lib := NewModule("lib", app)
	client := NewModule("client", app)
	friend := NewModule("friend", app)

	lib.Export("lib/api")
	lib.Export("lib/spi", friend)

	assert.True(t, lib.Exports("lib/api", client))
	assert.False(t, lib.Exports("lib/spi", client))
	assert.True(t, lib.Exports("lib/spi", friend))
	assert.False(t, lib.Exports("lib/internal", friend))
	assert.True(t, lib.Exports("lib/internal", lib))
	assert.True(t, unnamed.Exports("anything", client))

	assert.False(t, client.CanRead(lib))
	client.AddReads(lib)
	assert.True(t, client.CanRead(lib))
	assert.True(t, unnamed.CanRead(lib))
	assert.Equal(t, "module lib", lib.String())
	assert.Equal(t, "unnamed module", unnamed.String())
}

func iface(name string, supers ...*Class) *Class {
	c := &Class{Name: name, ROM: &rom.Class{Name: name, Modifiers: rom.AccPublic | rom.AccInterface | rom.AccAbstract}}
	c.Interfaces = supers
	c.ITables = []*ITable{{Interface: c}}
	for _, s := range supers {
		c.ITables = append(c.ITables, s.ITables...)
	}
	return c
}

func TestInterfaceRelations(t *testing.T) {
	b := iface("B")
	a := iface("A", b)
	other := iface("X")

	assert.True(t, a.IsSubInterfaceOf(b))
	assert.False(t, b.IsSubInterfaceOf(a))
	assert.False(t, a.IsSubInterfaceOf(a))
	assert.False(t, a.IsSubInterfaceOf(other))
	assert.True(t, a.Implements(a))
}

func TestSlotKeys(t *testing.T) {
	owner := &Class{Name: "p/C", ROM: &rom.Class{Name: "p/C", Modifiers: rom.AccPublic}}
	rm := &rom.Method{Name: "f", Signature: "()V", Modifiers: rom.AccPublic, HasBytecode: true}
	m := &Method{Class: owner, ROM: rm}

	vt := VTable{
		Concrete(m),
		PendingLocal(3, &rom.Method{Name: "g", Signature: "()I", Modifiers: rom.AccProtected}),
		DefaultConflict(m, []*Method{m, m}),
	}
	assert.Equal(t, NameSig{"f", "()V"}, vt[0].Key())
	assert.Equal(t, NameSig{"g", "()I"}, vt[1].Key())
	assert.True(t, vt[1].Modifiers().IsProtected())
	assert.True(t, vt[2].IsConflict())
	assert.Equal(t, []int{0, 2}, vt.Find(NameSig{"f", "()V"}))

	clone := vt.Clone()
	clone[0] = vt[1]
	require.Equal(t, SlotConcrete, vt[0].Kind)
	assert.Contains(t, vt[1].String(), "pending #3")
}

func TestSamePackage(t *testing.T) {
	l1, l2 := loader("a"), loader("b")
	p := &Package{Name: "x", Loader: l1}
	assert.True(t, SamePackage(p, &Package{Name: "x", Loader: l1}))
	assert.False(t, SamePackage(p, &Package{Name: "x", Loader: l2}))
	assert.False(t, SamePackage(p, &Package{Name: "y", Loader: l1}))
}
