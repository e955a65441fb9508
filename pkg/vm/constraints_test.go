package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daimatz/ramclass/internal/romtest"
	"github.com/daimatz/ramclass/pkg/dispatch"
)

// constraintVM sets up loader "one" defining p/Base, whose m takes a
// p/Shared, and loader "two" delegating to one and defining q/Sub, which
// overrides m.
func constraintVM(t *testing.T) (*VM, *ClassLoader, *ClassLoader) {
	t.Helper()
	vm, err := New(Options{Config: testConfig(), Boot: NewMapSource(bootClasses()...)})
	require.NoError(t, err)
	one := vm.NewLoader("one", nil, NewMapSource(
		romtest.Class("p/Base").Public("m", "(Lp/Shared;)V").Build(),
	))
	two := vm.NewLoader("two", one, NewMapSource(
		romtest.Class("q/Sub").Super("p/Base").Public("m", "(Lp/Shared;)V").Build(),
		romtest.Class("p/Shared").Build(),
	))
	return vm, one, two
}

func TestLoaderConstraintAtOverride(t *testing.T) {
	vm, one, two := constraintVM(t)
	th := vm.NewThread()
	_, err := vm.DefineClass(th, one, romtest.Class("p/Shared").Build())
	require.NoError(t, err)
	_, err = vm.DefineClass(th, two, romtest.Class("p/Shared").Build())
	require.NoError(t, err)

	_, err = vm.LoadClass(th, two, "q/Sub")
	requireJavaError(t, err, "java/lang/LinkageError")
	var lerr *dispatch.LoaderConstraintError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, "p/Shared", lerr.Type)
	assert.Equal(t, "m", lerr.Method.Name)
	assert.Nil(t, two.FindClass("q/Sub"))
	require.NoError(t, two.CheckMemory())
}

func TestLoaderConstraintAtPublish(t *testing.T) {
	vm, one, two := constraintVM(t)
	th := vm.NewThread()

	sub := load(t, vm, two, "q/Sub")
	assert.Same(t, one, sub.Superclass.Loader)

	// two defines p/Shared itself since one cannot find it.
	shared := load(t, vm, two, "p/Shared")
	assert.Same(t, two, shared.Loader)

	_, err := vm.DefineClass(th, one, romtest.Class("p/Shared").Build())
	requireJavaError(t, err, "java/lang/LinkageError")
	var lerr *dispatch.LoaderConstraintError
	require.ErrorAs(t, err, &lerr)
	assert.Empty(t, lerr.Method.Name)
	assert.Nil(t, one.FindClass("p/Shared"))
	require.NoError(t, one.CheckMemory())
}

func TestLoaderConstraintSatisfied(t *testing.T) {
	vm, one, two := constraintVM(t)
	th := vm.NewThread()
	shared, err := vm.DefineClass(th, one, romtest.Class("p/Shared").Build())
	require.NoError(t, err)

	load(t, vm, two, "q/Sub")
	// two now sees one's class through delegation.
	assert.Same(t, shared, load(t, vm, two, "p/Shared"))
}

func TestLoaderConstraintsDroppedOnUnload(t *testing.T) {
	vm, one, two := constraintVM(t)
	load(t, vm, two, "q/Sub")
	load(t, vm, two, "p/Shared")
	require.NoError(t, vm.UnloadLoader(two))

	_, err := vm.DefineClass(vm.NewThread(), one, romtest.Class("p/Shared").Build())
	require.NoError(t, err)
}
