package dispatch

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daimatz/ramclass/internal/romtest"
	"github.com/daimatz/ramclass/pkg/rom"
	"github.com/daimatz/ramclass/pkg/rt"
)

func TestRootClassVTable(t *testing.T) {
	w := newWorld(t)
	a := w.define(romtest.Class("A").Super("").Ctor().Public("f", "()V").Public("g", "()V").Build())

	require.Len(t, a.VTable, 2)
	assert.Equal(t, 0, slotOf(t, a, "f", "()V"))
	assert.Equal(t, 1, slotOf(t, a, "g", "()V"))
	assert.Same(t, a.Methods[1], a.VTable[0].Method)
	assert.Same(t, a.Methods[2], a.VTable[1].Method)
}

func TestOverrideKeepsIndex(t *testing.T) {
	w := newWorld(t)
	w.define(romtest.Object())
	a := w.define(romtest.Class("p/A").Public("f", "()V").Build())
	b := w.define(romtest.Class("p/B").Super("p/A").Public("f", "()V").Build())

	require.Equal(t, len(a.VTable), len(b.VTable))
	fa, fb := slotOf(t, a, "f", "()V"), slotOf(t, b, "f", "()V")
	require.Equal(t, fa, fb)
	assert.Same(t, b, b.VTable[fb].Method.Class)
	assert.Same(t, a, a.VTable[fa].Method.Class)
	requireIndexStable(t, b)
	requireNoDuplicatePublic(t, b)
}

func TestNonVirtualMethodsTakeNoSlot(t *testing.T) {
	w := newWorld(t)
	object := w.define(romtest.Object())
	c := w.define(romtest.Class("p/C").
		Ctor().
		Method("<clinit>", "()V", rom.AccStatic).
		Method("helper", "()V", rom.AccPrivate).
		Method("util", "()V", rom.AccPublic|rom.AccStatic).
		Public("run", "()V").
		Build())

	require.Len(t, c.VTable, len(object.VTable)+1)
	assert.Equal(t, "run", c.VTable[len(c.VTable)-1].Key().Name)
	assert.Empty(t, c.VTable.Find(rt.NameSig{Name: "helper", Signature: "()V"}))
}

func TestObjectMethodsOverridden(t *testing.T) {
	w := newWorld(t)
	object := w.define(romtest.Object())
	c := w.define(romtest.Class("p/C").Public("toString", "()Ljava/lang/String;").Public("extra", "()V").Build())

	requireIndexStable(t, c)
	requireNoDuplicatePublic(t, c)
	require.Len(t, c.VTable, len(object.VTable)+1)
	assert.Same(t, c, c.VTable[slotOf(t, c, "toString", "()Ljava/lang/String;")].Method.Class)
	assert.Same(t, object, c.VTable[slotOf(t, c, "hashCode", "()I")].Method.Class)
}

func TestFinalOverrideRejected(t *testing.T) {
	for round := 0; round < 3; round++ {
		w := newWorld(t)
		w.define(romtest.Object())
		w.define(romtest.Class("p/A").Method("f", "()V", rom.AccPublic|rom.AccFinal).Build())
		w.define(romtest.Class("p/B").Super("p/A").Public("g", "()V").Build())

		_, _, err := w.tryDefineIn(w.loader, romtest.Class("p/C").Super("p/B").Public("f", "()V").Build())
		var ferr *FinalOverrideError
		require.True(t, errors.As(err, &ferr), "round %d: %v", round, err)
		assert.Equal(t, "p/C", ferr.Class)
		assert.Equal(t, "p/A", ferr.Overridden)
		assert.Equal(t, rt.NameSig{Name: "f", Signature: "()V"}, ferr.Method)
	}

	w := newWorld(t)
	w.define(romtest.Object())
	_, _, err := w.tryDefineIn(w.loader, romtest.Class("p/D").Public("getClass", "()Ljava/lang/Class;").Build())
	require.Error(t, err)
}

func TestFinalRedeclarationWithNarrowerAccess(t *testing.T) {
	w := newWorld(t)
	w.define(romtest.Object())
	a := w.define(romtest.Class("p/A").Method("f", "()V", rom.AccPublic|rom.AccFinal).Build())

	_, _, err := w.tryDefineIn(w.loader, romtest.Class("p/C").Super("p/A").Method("f", "()V", 0).Build())
	var ferr *FinalOverrideError
	require.True(t, errors.As(err, &ferr), "%v", err)
	assert.Equal(t, "p/A", ferr.Overridden)

	_, _, err = w.tryDefineIn(w.loader, romtest.Class("q/C").Super("p/A").Method("f", "()V", 0).Build())
	require.True(t, errors.As(err, &ferr), "%v", err)
	assert.Equal(t, "q/C", ferr.Class)

	// A package-private final method is invisible from another package.
	w.define(romtest.Class("p/H").Method("h", "()V", rom.AccFinal).Build())
	c := w.define(romtest.Class("q/D").Super("p/H").Public("h", "()V").Build())
	assert.Len(t, c.VTable.Find(rt.NameSig{Name: "h", Signature: "()V"}), 2)
	require.Len(t, a.VTable.Find(rt.NameSig{Name: "f", Signature: "()V"}), 1)
}

func TestPackagePrivateOverriding(t *testing.T) {
	w := newWorld(t)
	w.define(romtest.Object())
	a := w.define(romtest.Class("p1/A").Method("m", "()V", 0).Build())
	mA := slotOf(t, a, "m", "()V")

	// Different package: no override, new public slot.
	b := w.define(romtest.Class("p2/B").Super("p1/A").Public("m", "()V").Build())
	require.Len(t, b.VTable, len(a.VTable)+1)
	assert.Same(t, a, b.VTable[mA].Method.Class)
	assert.Same(t, b, b.VTable[len(b.VTable)-1].Method.Class)
	requireIndexStable(t, b)

	// Back in p1, a package-private method overrides only A's slot.
	c := w.define(romtest.Class("p1/C").Super("p2/B").Method("m", "()V", 0).Build())
	require.Len(t, c.VTable, len(b.VTable))
	assert.Same(t, c, c.VTable[mA].Method.Class)
	assert.Same(t, b, c.VTable[len(c.VTable)-1].Method.Class)

	// Same package, package-private over package-private: in place.
	d := w.define(romtest.Class("p1/D").Super("p1/A").Method("m", "()V", 0).Build())
	require.Len(t, d.VTable, len(a.VTable))
	assert.Same(t, d, d.VTable[mA].Method.Class)

	// A public method in the same package overrides the package-private one.
	e := w.define(romtest.Class("p1/E").Super("p1/A").Public("m", "()V").Build())
	require.Len(t, e.VTable, len(a.VTable))
	assert.Same(t, e, e.VTable[mA].Method.Class)
}

func TestDefaultMethodSpecificity(t *testing.T) {
	for _, order := range [][]string{{"p/A", "p/B"}, {"p/B", "p/A"}, {"p/A"}} {
		t.Run(strings.Join(order, ","), func(t *testing.T) {
			w := newWorld(t)
			w.define(romtest.Object())
			w.define(romtest.Interface("p/B").Public("m", "()V").Build())
			ia := w.define(romtest.Interface("p/A").Implements("p/B").Public("m", "()V").Build())
			c := w.define(romtest.Class("p/C").Implements(order...).Build())

			slot := c.VTable[slotOf(t, c, "m", "()V")]
			require.Equal(t, rt.SlotConcrete, slot.Kind)
			assert.Same(t, ia, slot.Method.Class)
			requireNoDuplicatePublic(t, c)
		})
	}
}

func TestDiamondDefaultConflict(t *testing.T) {
	w := newWorld(t)
	w.define(romtest.Object())
	i1 := w.define(romtest.Interface("p/I1").Public("g", "()V").Build())
	i2 := w.define(romtest.Interface("p/I2").Public("g", "()V").Build())

	d, res, err := w.tryDefineIn(w.loader, romtest.Class("p/D").Implements("p/I1", "p/I2").Build())
	require.NoError(t, err)
	require.Equal(t, 1, res.Conflicts)

	slot := d.VTable[slotOf(t, d, "g", "()V")]
	require.Equal(t, rt.SlotDefaultConflict, slot.Kind)
	require.True(t, slot.Method.Conflict)
	assert.Same(t, d, slot.Method.Class)
	assert.ElementsMatch(t, []*rt.Method{i1.Methods[0], i2.Methods[0]}, slot.Candidates)

	// A subclass inherits the conflict without creating a new one.
	e, res, err := w.tryDefineIn(w.loader, romtest.Class("p/E").Super("p/D").Build())
	require.NoError(t, err)
	require.Zero(t, res.Conflicts)
	assert.Same(t, slot.Method, e.VTable[slotOf(t, e, "g", "()V")].Method)

	// Overriding resolves it.
	f := w.define(romtest.Class("p/F").Super("p/D").Public("g", "()V").Build())
	got := f.VTable[slotOf(t, f, "g", "()V")]
	require.Equal(t, rt.SlotConcrete, got.Kind)
	assert.Same(t, f, got.Method.Class)
}

func TestConflictResolvedByMoreSpecificInterface(t *testing.T) {
	w := newWorld(t)
	w.define(romtest.Object())
	w.define(romtest.Interface("p/I1").Public("g", "()V").Build())
	w.define(romtest.Interface("p/I2").Public("g", "()V").Build())
	sub := w.define(romtest.Interface("p/Both").Implements("p/I1", "p/I2").Public("g", "()V").Build())

	c, res, err := w.tryDefineIn(w.loader, romtest.Class("p/C").Implements("p/I1", "p/I2", "p/Both").Build())
	require.NoError(t, err)
	require.Zero(t, res.Conflicts)
	assert.Same(t, sub, c.VTable[slotOf(t, c, "g", "()V")].Method.Class)
}

func TestAbstractAndDefaultMerge(t *testing.T) {
	w := newWorld(t)
	w.define(romtest.Object())
	abs := w.define(romtest.Interface("p/Abs").Abstract("h", "()V").Abstract("k", "()V").Build())
	def := w.define(romtest.Interface("p/Def").Public("h", "()V").Build())
	abs2 := w.define(romtest.Interface("p/Abs2").Abstract("k", "()V").Build())

	c := w.define(romtest.Class("p/C").With(rom.AccAbstract).Implements("p/Abs", "p/Def", "p/Abs2").Build())

	h := c.VTable[slotOf(t, c, "h", "()V")]
	require.Equal(t, rt.SlotConcrete, h.Kind)
	assert.Same(t, def, h.Method.Class, "the only default wins")

	k := c.VTable[slotOf(t, c, "k", "()V")]
	require.Equal(t, rt.SlotConcrete, k.Kind)
	assert.True(t, k.Method.IsAbstract())
	assert.Contains(t, []*rt.Class{abs, abs2}, k.Method.Class)
}

func TestSuperclassInterfaceMethodReplaced(t *testing.T) {
	w := newWorld(t)
	w.define(romtest.Object())
	w.define(romtest.Interface("p/B").Public("m", "()V").Build())
	ia := w.define(romtest.Interface("p/A").Implements("p/B").Public("m", "()V").Build())
	s := w.define(romtest.Class("p/S").Implements("p/B").Build())
	c := w.define(romtest.Class("p/C").Super("p/S").Implements("p/A").Build())

	requireIndexStable(t, c)
	require.Len(t, c.VTable, len(s.VTable))
	idx := slotOf(t, c, "m", "()V")
	assert.Equal(t, slotOf(t, s, "m", "()V"), idx)
	assert.Same(t, ia, c.VTable[idx].Method.Class)
}

func TestSuperclassInterfaceMethodMergedWithUnrelatedDefault(t *testing.T) {
	w := newWorld(t)
	w.define(romtest.Object())
	w.define(romtest.Interface("p/I").Public("m", "()V").Build())
	w.define(romtest.Interface("p/J").Public("m", "()V").Build())
	w.define(romtest.Class("p/S").Implements("p/I").Build())

	c, res, err := w.tryDefineIn(w.loader, romtest.Class("p/C").Super("p/S").Implements("p/J").Build())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Conflicts)
	assert.Equal(t, rt.SlotDefaultConflict, c.VTable[slotOf(t, c, "m", "()V")].Kind)
}

func TestClassMethodBeatsDefault(t *testing.T) {
	w := newWorld(t)
	w.define(romtest.Object())
	w.define(romtest.Interface("p/I").Public("m", "()V").Build())
	s := w.define(romtest.Class("p/S").Public("m", "()V").Build())
	c := w.define(romtest.Class("p/C").Super("p/S").Implements("p/I").Build())

	require.Len(t, c.VTable, len(s.VTable))
	assert.Same(t, s, c.VTable[slotOf(t, c, "m", "()V")].Method.Class)
}

func TestIndexStabilityAcrossHierarchy(t *testing.T) {
	w := newWorld(t)
	w.define(romtest.Object())
	w.define(romtest.Interface("p/Named").Abstract("name", "()Ljava/lang/String;").Public("describe", "()V").Build())
	w.define(romtest.Interface("p/Sized").Abstract("size", "()I").Public("describe", "()V").Build())
	w.define(romtest.Class("p/Base").With(rom.AccAbstract).Implements("p/Named").Public("a", "()V").Method("pp", "()V", 0).Build())
	w.define(romtest.Class("p/Mid").Super("p/Base").Implements("p/Sized").Public("name", "()Ljava/lang/String;").Public("b", "()V").Build())
	w.define(romtest.Class("q/Leaf").Super("p/Mid").Public("size", "()I").Public("a", "()V").Method("pp", "()V", 0).Public("describe", "()V").Build())

	for _, n := range []string{"p/Base", "p/Mid", "q/Leaf"} {
		c := w.classes[n]
		requireIndexStable(t, c)
		requireNoDuplicatePublic(t, c)
	}
	leaf := w.classes["q/Leaf"]
	assert.Equal(t, rt.SlotConcrete, leaf.VTable[slotOf(t, leaf, "describe", "()V")].Kind)
	assert.Len(t, leaf.VTable.Find(rt.NameSig{Name: "pp", Signature: "()V"}), 2, "package-private in another package gets its own slot")
}

type recordingChecker struct {
	calls  int
	reject rt.Loader
}

func (c *recordingChecker) Agree(sig string, a, b rt.Loader) (string, bool) {
	c.calls++
	if a == c.reject || b == c.reject {
		types := rom.ReferencedTypes(sig)
		if len(types) > 0 {
			return types[0], false
		}
	}
	return "", true
}

func TestLoaderConstraintViolation(t *testing.T) {
	w := newWorld(t)
	checker := &recordingChecker{}
	w.constraints = checker
	w.define(romtest.Object())
	w.define(romtest.Class("p/Base").Public("take", "(Lp/Thing;)V").Build())

	other := &testLoader{name: "plugin"}
	_, _, err := w.tryDefineIn(other, romtest.Class("x/Ok").Super("p/Base").Public("take", "(Lp/Thing;)V").Build())
	require.NoError(t, err)
	require.Equal(t, 1, checker.calls)

	checker.reject = other
	_, _, err = w.tryDefineIn(other, romtest.Class("x/Bad").Super("p/Base").Public("take", "(Lp/Thing;)V").Build())
	var lerr *LoaderConstraintError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, "x/Bad", lerr.ClassA)
	assert.Equal(t, "p/Base", lerr.ClassB)
	assert.Same(t, other, lerr.LoaderA)
	assert.Equal(t, "p/Thing", lerr.Type)
	assert.Contains(t, lerr.Error(), "take(Lp/Thing;)V")

	// Same-loader overrides never consult the checker.
	calls := checker.calls
	w.define(romtest.Class("p/Same").Super("p/Base").Public("take", "(Lp/Thing;)V").Build())
	assert.Equal(t, calls, checker.calls)
}

func TestFinalizeRejectsMissingLocal(t *testing.T) {
	vt := rt.VTable{rt.PendingLocal(2, &rom.Method{Name: "f", Signature: "()V"})}
	_, err := Finalize(vt, nil, nil)
	require.Error(t, err)

	bad := rt.VTable{rt.EquivalenceSet([]*rt.Method{{ROM: &rom.Method{Name: "f", Signature: "()V"}}})}
	assert.Panics(t, func() { _, _ = Finalize(bad, nil, nil) })
}
