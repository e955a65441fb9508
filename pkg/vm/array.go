package vm

import (
	"fmt"

	"github.com/daimatz/ramclass/internal/logger"
	"github.com/daimatz/ramclass/pkg/alloc"
	"github.com/daimatz/ramclass/pkg/dispatch"
	"github.com/daimatz/ramclass/pkg/rom"
	"github.com/daimatz/ramclass/pkg/rt"
)

// ObjectName is the root class every array class extends.
const ObjectName = "java/lang/Object"

// arrayShape is what every array class shares: its superclass, the
// interfaces it implements and one canonical itable list encoded once in
// boot loader memory.
type arrayShape struct {
	object     *rt.Class
	interfaces []*rt.Class
	itables    []*rt.ITable
	// itable heads the encoded chain; it continues into Object's.
	itable alloc.Address
}

// arrayShapeOf returns the shared array shape, building it on first use.
// Configured array interfaces the boot loader cannot find are left out.
func (vm *VM) arrayShapeOf(t *Thread) (*arrayShape, error) {
	vm.mu.Lock()
	shape := vm.arrays
	vm.mu.Unlock()
	if shape != nil {
		return shape, nil
	}

	object, err := vm.loadClass(t, vm.boot, ObjectName)
	if err != nil {
		return nil, fmt.Errorf("vm: array superclass: %w", err)
	}
	var ifaces []*rt.Class
	for _, name := range vm.cfg.Loading.ArrayInterfaces {
		c, err := vm.loadClass(t, vm.boot, name)
		if missing(err) {
			logger.L.Debug("vm: array interface not available", "interface", name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("vm: array interface %s: %w", name, err)
		}
		if !c.IsInterface() {
			return nil, fmt.Errorf("vm: array interface %s is a class", name)
		}
		ifaces = append(ifaces, c)
	}

	newIfaces := dispatch.CollectInterfaces(object, ifaces)
	template := &rt.Class{
		ROM:        &rom.Class{Name: "[" + ObjectName, Modifiers: rom.AccPublic | rom.AccFinal | rom.AccAbstract},
		Superclass: object,
		VTable:     object.VTable,
	}
	shape = &arrayShape{
		object:     object,
		interfaces: ifaces,
		itables:    dispatch.BuildITables(template, newIfaces),
	}
	own := shape.itables[:len(newIfaces)]

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.arrays != nil {
		return vm.arrays, nil
	}
	shape.itable = object.Layout.ITable
	if n := itableWords(own); n > 0 {
		frags, err := vm.allocate(vm.boot, "array itables", []alloc.Request{{Body: n * word}})
		if err != nil {
			return nil, err
		}
		if vm.arrays != nil {
			vm.free(vm.boot, "array itables", frags)
			return vm.arrays, nil
		}
		f := frags[0]
		b, err := vm.boot.alloc.Bytes(f.Address, f.Size)
		if err != nil {
			return nil, err
		}
		writeITables(memory(b), f.Address, own, uint64(object.Layout.ITable))
		shape.itable = f.Address
	}
	vm.arrays = shape
	logger.L.Debug("vm: array shape built", "interfaces", len(ifaces), "itables", len(shape.itables))
	return shape, nil
}

// ArrayClassOf returns the array class whose element type is elem,
// creating it in elem's loader on first use.
func (vm *VM) ArrayClassOf(t *Thread, elem *rt.Class) (*rt.Class, error) {
	c, err := vm.arrayClassOf(t, elem)
	if err != nil {
		return nil, javaError(err)
	}
	return c, nil
}

// Primitive returns the class of the primitive type with the given
// descriptor letter, or nil.
func (vm *VM) Primitive(descriptor string) *rt.Class { return vm.primitives[descriptor] }

func (vm *VM) loadArray(t *Thread, l *ClassLoader, name string) (*rt.Class, error) {
	vm.mu.Lock()
	if l.unloaded {
		vm.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrLoaderUnloaded, l.name)
	}
	c := l.lookup(name)
	vm.mu.Unlock()
	if c != nil {
		return c, nil
	}

	elemName, err := rom.ElementName(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassNotFound, err)
	}
	var elem *rt.Class
	if p := vm.primitives[elemName]; p != nil {
		elem = p
	} else if elem, err = vm.loadClass(t, l, elemName); err != nil {
		return nil, err
	}
	c, err = vm.arrayClassOf(t, elem)
	if err != nil {
		return nil, err
	}
	if c.Loader == rt.Loader(l) {
		return c, nil
	}
	return vm.initiate(l, name, c)
}

// arrayName returns the binary name of the array class of elem.
func (vm *VM) arrayName(elem *rt.Class) string {
	for _, p := range primitiveNames {
		if vm.primitives[p.descriptor] == elem {
			return "[" + p.descriptor
		}
	}
	return rom.ArrayName(elem.Name)
}

func (vm *VM) arrayClassOf(t *Thread, elem *rt.Class) (*rt.Class, error) {
	if a := elem.ArrayClass(); a != nil {
		return a, nil
	}
	shape, err := vm.arrayShapeOf(t)
	if err != nil {
		return nil, err
	}
	l, ok := elem.Loader.(*ClassLoader)
	if !ok || l.vm != vm {
		return nil, fmt.Errorf("vm: element %s does not belong to this VM", elem.Name)
	}
	name := vm.arrayName(elem)
	desc := &rom.Class{
		Name:      name,
		SuperName: ObjectName,
		Modifiers: elem.Modifiers()&rom.AccPublic | rom.AccFinal | rom.AccAbstract,
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if l.unloaded {
		return nil, fmt.Errorf("%w: %s", ErrLoaderUnloaded, l.name)
	}
	if a := elem.ArrayClass(); a != nil {
		return a, nil
	}
	c := &rt.Class{
		ROM:        desc,
		Name:       name,
		Loader:     l,
		Package:    elem.Package,
		Module:     elem.Module,
		Superclass: shape.object,
		Interfaces: shape.interfaces,
		Depth:      shape.object.Depth + 1,
		VTable:     shape.object.VTable.Clone(),
		ITables:    shape.itables,
		Component:  elem,
	}
	p := planLayout(c, nil)
	frags, err := vm.allocate(l, name, p.reqs)
	if err != nil {
		return nil, err
	}
	if a := elem.ArrayClass(); a != nil {
		vm.free(l, name, frags)
		return a, nil
	}
	if l.unloaded {
		vm.free(l, name, frags)
		return nil, fmt.Errorf("%w: %s", ErrLoaderUnloaded, l.name)
	}
	p.place(c, frags)
	c.Layout.ITable = shape.itable
	mem, jit, err := views(l.alloc, c.Layout.Fragments)
	if err != nil {
		vm.discard(l, c)
		return nil, err
	}
	encode(c, mem, jit, nil)

	if h := elem.Header(); h != 0 {
		b, err := l.alloc.Bytes(h+hdrArrayClass*word, word)
		if err != nil {
			vm.discard(l, c)
			return nil, fmt.Errorf("vm: header of %s: %w", elem.Name, err)
		}
		memory(b).put(0, uint64(c.Layout.Header))
	}
	vm.linkSegment(l, c)
	l.classes[name] = c
	c.Publish()
	elem.SetArrayClass(c)
	logger.L.Debug("vm: array class published", "class", name, "loader", l.name, "header", fmt.Sprintf("%#x", uintptr(c.Layout.Header)))
	return c, nil
}
