package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daimatz/ramclass/internal/romtest"
	"github.com/daimatz/ramclass/pkg/alloc"
	"github.com/daimatz/ramclass/pkg/rom"
	"github.com/daimatz/ramclass/pkg/rt"
)

func TestArrayClassOf(t *testing.T) {
	vm, app := newTestVM(t,
		romtest.Interface("app/Shape").Abstract("area", "()D").Build(),
		romtest.Class("app/Square").Implements("app/Shape").Public("area", "()D").Build(),
	)
	th := vm.NewThread()
	sq := load(t, vm, app, "app/Square")
	shape := load(t, vm, app, "app/Shape")

	arr, err := vm.ArrayClassOf(th, sq)
	require.NoError(t, err)
	assert.Equal(t, "[Lapp/Square;", arr.Name)
	assert.True(t, arr.IsArray())
	assert.Same(t, sq, arr.Component)
	assert.Same(t, app, arr.Loader)
	assert.Same(t, sq.Package, arr.Package)
	assert.Equal(t, ObjectName, arr.Superclass.Name)
	assert.Equal(t, 1, arr.Depth)
	assert.True(t, arr.Modifiers().Has(rom.AccPublic|rom.AccFinal|rom.AccAbstract))
	assert.Equal(t, len(arr.Superclass.VTable), len(arr.VTable))
	requireVTableEncoded(t, arr)

	cloneable := vm.Boot().FindClass("java/lang/Cloneable")
	serializable := vm.Boot().FindClass("java/io/Serializable")
	require.NotNil(t, cloneable)
	require.NotNil(t, serializable)
	assert.True(t, arr.Implements(cloneable))
	assert.True(t, arr.Implements(serializable))
	assert.False(t, arr.Implements(shape))

	assert.Same(t, arr, sq.ArrayClass())
	assert.Equal(t, uint64(arr.Header()), headerWord(t, sq, hdrArrayClass))
	assert.Same(t, arr, app.FindClass("[Lapp/Square;"))

	again, err := vm.ArrayClassOf(th, sq)
	require.NoError(t, err)
	assert.Same(t, arr, again)

	// Every array shares one itable list and its encoded chain.
	sarr, err := vm.ArrayClassOf(th, shape)
	require.NoError(t, err)
	assert.Equal(t, "[Lapp/Shape;", sarr.Name)
	require.NotEmpty(t, arr.ITables)
	assert.Same(t, arr.ITables[0], sarr.ITables[0])
	assert.Equal(t, arr.Layout.ITable, sarr.Layout.ITable)
	assert.Equal(t, uint64(arr.Layout.ITable), headerWord(t, arr, hdrITable))
	_, ok := arr.Layout.Fragment(rt.FragITable)
	assert.False(t, ok)

	boot := vm.Boot()
	it := arr.Layout.ITable
	require.NotZero(t, it)
	assert.Equal(t, uint64(arr.ITables[0].Interface.Header()), readWord(t, boot, it))
	next := alloc.Address(readWord(t, boot, it+alloc.WordSize))
	assert.Equal(t, uint64(arr.ITables[1].Interface.Header()), readWord(t, boot, next))
	assert.Zero(t, readWord(t, boot, next+alloc.WordSize))
	require.NoError(t, boot.CheckMemory())
}

func TestLoadArrayByName(t *testing.T) {
	vm, app := newTestVM(t, romtest.Class("app/Item").Build())
	child := vm.NewLoader("child", app, nil)

	arr2 := load(t, vm, child, "[[Lapp/Item;")
	arr := arr2.Component
	require.NotNil(t, arr)
	assert.Equal(t, "[Lapp/Item;", arr.Name)
	assert.Equal(t, "app/Item", arr.Component.Name)
	assert.Same(t, app, arr2.Loader)
	assert.Same(t, arr2, child.FindClass("[[Lapp/Item;"))
	assert.Same(t, arr2, app.FindClass("[[Lapp/Item;"))
	assert.Same(t, arr2, arr.ArrayClass())
	assert.Same(t, arr.ITables[0], arr2.ITables[0])

	_, err := vm.LoadClass(vm.NewThread(), app, "[Lapp/Nothing;")
	requireJavaError(t, err, "java/lang/NoClassDefFoundError")
	_, err = vm.LoadClass(vm.NewThread(), app, "[Q")
	requireJavaError(t, err, "java/lang/NoClassDefFoundError")
}

func TestPrimitiveArrays(t *testing.T) {
	vm, app := newTestVM(t)
	ints := load(t, vm, app, "[I")
	elem := vm.Primitive("I")
	require.NotNil(t, elem)
	assert.Equal(t, "int", elem.Name)
	assert.Zero(t, elem.Header())
	assert.Same(t, elem, ints.Component)
	assert.Same(t, vm.Boot(), ints.Loader)
	assert.Same(t, ints, app.FindClass("[I"))
	assert.Same(t, ints, elem.ArrayClass())
	requireVTableEncoded(t, ints)

	matrix := load(t, vm, app, "[[D")
	assert.Equal(t, "[D", matrix.Component.Name)
	assert.Same(t, vm.Primitive("D"), matrix.Component.Component)
	assert.Same(t, ints.ITables[0], matrix.ITables[0])
}

func TestArrayInterfacesOptional(t *testing.T) {
	cfg := testConfig()
	cfg.Loading.ArrayInterfaces = []string{"java/lang/Cloneable", "java/lang/Missing"}
	vm, err := New(Options{Config: cfg, Boot: NewMapSource(bootClasses()...), Memory: alloc.HeapSource{}})
	require.NoError(t, err)

	arr := load(t, vm, vm.Boot(), "[Ljava/lang/Object;")
	require.Len(t, arr.ITables, 1)
	assert.Equal(t, "java/lang/Cloneable", arr.ITables[0].Interface.Name)
	assert.Len(t, arr.Interfaces, 1)
}

func TestArrayOfUnloadedLoader(t *testing.T) {
	vm, app := newTestVM(t, romtest.Class("app/Item").Build())
	item := load(t, vm, app, "app/Item")
	require.NoError(t, vm.UnloadLoader(app))
	_, err := vm.ArrayClassOf(vm.NewThread(), item)
	assert.ErrorIs(t, err, ErrLoaderUnloaded)
}
