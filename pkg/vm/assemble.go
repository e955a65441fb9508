package vm

import (
	"errors"
	"fmt"

	"github.com/daimatz/ramclass/internal/logger"
	"github.com/daimatz/ramclass/pkg/alloc"
	"github.com/daimatz/ramclass/pkg/dispatch"
	"github.com/daimatz/ramclass/pkg/rom"
	"github.com/daimatz/ramclass/pkg/rt"
	"github.com/daimatz/ramclass/pkg/validate"
)

// LoadClass returns the class name as seen by l, loading it through the
// parent first and then l's own source. Failures are *JavaError values.
func (vm *VM) LoadClass(t *Thread, l *ClassLoader, name string) (*rt.Class, error) {
	c, err := vm.loadClass(t, l, name)
	if err != nil {
		return nil, javaError(err)
	}
	return c, nil
}

// DefineClass builds, lays out and publishes desc in l. Defining a name l
// already knows returns the existing class.
func (vm *VM) DefineClass(t *Thread, l *ClassLoader, desc *rom.Class) (*rt.Class, error) {
	c, err := vm.defineClass(t, l, desc, nil)
	if err != nil {
		return nil, javaError(err)
	}
	return c, nil
}

// DefineAnonymousClass defines desc in a fresh isolated loader that
// delegates to host's loader and shares host's runtime package. The class
// gets dedicated memory, released when its loader is unloaded.
func (vm *VM) DefineAnonymousClass(t *Thread, host *rt.Class, desc *rom.Class) (*rt.Class, error) {
	hl, ok := host.Loader.(*ClassLoader)
	if !ok || hl.vm != vm {
		return nil, fmt.Errorf("vm: host %s does not belong to this VM", host.Name)
	}
	vm.mu.Lock()
	l := vm.newLoader(fmt.Sprintf("%s/anon:%s", hl.name, desc.Name), hl, nil, true)
	vm.mu.Unlock()
	c, err := vm.defineClass(t, l, desc, host.Package)
	if err != nil {
		if uerr := vm.UnloadLoader(l); uerr != nil {
			logger.L.Warn("vm: releasing anonymous loader failed", "loader", l.name, "err", uerr)
		}
		return nil, javaError(err)
	}
	return c, nil
}

func (vm *VM) loadClass(t *Thread, l *ClassLoader, name string) (*rt.Class, error) {
	if rom.IsArrayName(name) {
		return vm.loadArray(t, l, name)
	}
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

	if l.parent != nil {
		c, err := vm.loadClass(t, l.parent, name)
		if err == nil {
			return vm.initiate(l, name, c)
		}
		if !missing(err) {
			return nil, err
		}
	}
	if l.source == nil {
		return nil, fmt.Errorf("%w: %s by loader %s", ErrClassNotFound, name, l.name)
	}
	desc, err := l.source.Find(name)
	if err != nil {
		return nil, err
	}
	return vm.defineClass(t, l, desc, nil)
}

// missing reports whether err only says that the class itself is absent,
// as opposed to a failure loading one of its supertypes.
func missing(err error) bool {
	var jerr *JavaError
	return errors.Is(err, ErrClassNotFound) && !errors.As(err, &jerr)
}

// initiate records l as an initiating loader of c.
func (vm *VM) initiate(l *ClassLoader, name string, c *rt.Class) (*rt.Class, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if cur := l.lookup(name); cur != nil {
		return cur, nil
	}
	if err := vm.constraints.check(l, name, c); err != nil {
		return nil, err
	}
	l.classes[name] = c
	return c, nil
}

func (vm *VM) defineClass(t *Thread, l *ClassLoader, desc *rom.Class, pkg *rt.Package) (*rt.Class, error) {
	name := desc.Name
	if rom.IsArrayName(name) {
		return nil, fmt.Errorf("vm: %s: array classes are created, not defined", name)
	}
	vm.mu.Lock()
	if l.unloaded {
		vm.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrLoaderUnloaded, l.name)
	}
	if c := l.lookup(name); c != nil {
		vm.mu.Unlock()
		return c, nil
	}
	if pkg == nil {
		pkg = l.packageFor(desc)
	}
	vm.mu.Unlock()

	if err := t.stack.Push(l, name); err != nil {
		return nil, err
	}
	defer t.stack.Pop()

	// A collection may unload loaders, so after one the supertypes are
	// loaded and checked again before the single retry.
	collected := false
	for {
		super, ifaces, err := vm.loadSupertypes(t, l, desc)
		if err != nil {
			return nil, err
		}
		err = validate.Validate(validate.Input{
			Class:      desc,
			Package:    pkg,
			Module:     pkg.Module,
			Super:      super,
			Interfaces: ifaces,
		})
		if err != nil {
			return nil, err
		}
		c, err := vm.assemble(l, desc, pkg, super, ifaces, collected)
		if errors.Is(err, errCollected) {
			collected = true
			continue
		}
		return c, err
	}
}

// errCollected asks defineClass to rebuild the class after a collection.
var errCollected = errors.New("vm: collected, rebuild class")

// loadSupertypes loads the superclass and direct interfaces of desc. A
// missing supertype is a NoClassDefFoundError of the class being defined.
func (vm *VM) loadSupertypes(t *Thread, l *ClassLoader, desc *rom.Class) (*rt.Class, []*rt.Class, error) {
	var super *rt.Class
	if desc.SuperName != "" {
		s, err := vm.loadClass(t, l, desc.SuperName)
		if err != nil {
			return nil, nil, javaError(fmt.Errorf("vm: superclass of %s: %w", desc.Name, err))
		}
		super = s
	}
	ifaces := make([]*rt.Class, len(desc.Interfaces))
	for i, n := range desc.Interfaces {
		c, err := vm.loadClass(t, l, n)
		if err != nil {
			return nil, nil, javaError(fmt.Errorf("vm: interface of %s: %w", desc.Name, err))
		}
		ifaces[i] = c
	}
	return super, ifaces, nil
}

// assemble links, lays out and publishes a validated class. When memory
// runs out before any collection it collects and returns errCollected;
// after one it fails with ErrNativeOutOfMemory.
func (vm *VM) assemble(l *ClassLoader, desc *rom.Class, pkg *rt.Package, super *rt.Class, ifaces []*rt.Class, collected bool) (*rt.Class, error) {
	vm.mu.Lock()
	if l.unloaded {
		vm.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrLoaderUnloaded, l.name)
	}
	if c := l.lookup(desc.Name); c != nil {
		vm.mu.Unlock()
		return c, nil
	}
	c, own, err := vm.link(l, desc, pkg, super, ifaces)
	if err != nil {
		vm.mu.Unlock()
		return nil, err
	}
	p := planLayout(c, own)
	frags, err := l.alloc.Allocate(p.reqs)
	if errors.Is(err, alloc.ErrOutOfMemory) {
		vm.mu.Unlock()
		if collected {
			return nil, outOfMemory(l, desc.Name, err)
		}
		logger.L.Warn("vm: allocation failed, collecting", "class", desc.Name, "loader", l.name, "err", err)
		vm.collector.Collect()
		return nil, errCollected
	}
	if err != nil {
		vm.mu.Unlock()
		return nil, err
	}
	p.place(c, frags)
	mem, jit, err := views(l.alloc, c.Layout.Fragments)
	if err != nil {
		vm.discard(l, c)
		vm.mu.Unlock()
		return nil, err
	}
	vm.mu.Unlock()

	// The fragments are private to this thread until publish.
	encode(c, mem, jit, own)

	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.publish(l, c)
}

// link builds the runtime class with its final dispatch tables. It returns
// the itables stored in the class's own itable fragment.
func (vm *VM) link(l *ClassLoader, desc *rom.Class, pkg *rt.Package, super *rt.Class, ifaces []*rt.Class) (*rt.Class, []*rt.ITable, error) {
	c := &rt.Class{
		ROM:        desc,
		Name:       desc.Name,
		Loader:     l,
		Package:    pkg,
		Module:     pkg.Module,
		Superclass: super,
		Interfaces: ifaces,
	}
	if super != nil {
		c.Depth = super.Depth + 1
	}
	if desc.IsInterface() {
		c.InterfaceDepth = dispatch.InterfaceDepth(ifaces)
	}
	newIfaces := dispatch.CollectInterfaces(super, ifaces)

	res, err := dispatch.BuildVTable(dispatch.Input{
		Class:       c,
		Super:       super,
		Interfaces:  newIfaces,
		Constraints: vm.constraints,
	})
	if err != nil {
		return nil, nil, err
	}
	c.Methods = make([]*rt.Method, len(desc.Methods), len(desc.Methods)+res.Conflicts)
	for i := range desc.Methods {
		c.Methods[i] = &rt.Method{Class: c, ROM: &desc.Methods[i], Index: i}
	}
	c.VTable = res.VTable
	_, err = dispatch.Finalize(c.VTable, c.Methods, func(s rt.Slot) *rt.Method {
		m := &rt.Method{Class: c, ROM: s.Method.ROM, Index: len(c.Methods), Conflict: true, Candidates: s.Candidates}
		c.Methods = append(c.Methods, m)
		return m
	})
	if err != nil {
		return nil, nil, err
	}
	c.ITables = dispatch.BuildITables(c, newIfaces)
	own := c.ITables
	if !c.IsInterface() {
		own = c.ITables[:len(newIfaces)]
	}
	c.InstanceSlots, c.RefMap = refMap(super, c)
	return c, own, nil
}

// allocate serves reqs from l's allocator for structures that do not
// depend on other loaders. When memory runs out it drops the lock, runs a
// full collection and retries once; the lock is held again on return
// either way.
func (vm *VM) allocate(l *ClassLoader, what string, reqs []alloc.Request) ([]alloc.Fragment, error) {
	frags, err := l.alloc.Allocate(reqs)
	if !errors.Is(err, alloc.ErrOutOfMemory) {
		return frags, err
	}
	logger.L.Warn("vm: allocation failed, collecting", "class", what, "loader", l.name, "err", err)
	vm.mu.Unlock()
	vm.collector.Collect()
	vm.mu.Lock()

	frags, err = l.alloc.Allocate(reqs)
	if errors.Is(err, alloc.ErrOutOfMemory) {
		return nil, outOfMemory(l, what, err)
	}
	return frags, err
}

func outOfMemory(l *ClassLoader, what string, err error) error {
	return fmt.Errorf("%w: %s in loader %s: %w", ErrNativeOutOfMemory, what, l.name, err)
}

// publish makes c visible in l unless another thread won the race. Called
// with the lock held.
func (vm *VM) publish(l *ClassLoader, c *rt.Class) (*rt.Class, error) {
	if l.unloaded {
		vm.discard(l, c)
		return nil, fmt.Errorf("%w: %s", ErrLoaderUnloaded, l.name)
	}
	if winner := l.lookup(c.Name); winner != nil {
		vm.discard(l, c)
		logger.L.Debug("vm: lost definition race", "class", c.Name, "loader", l.name)
		return winner, nil
	}
	if err := vm.constraints.check(l, c.Name, c); err != nil {
		vm.discard(l, c)
		return nil, err
	}
	vm.linkSegment(l, c)
	l.classes[c.Name] = c
	c.Publish()
	logger.L.Debug("vm: class published",
		"class", c.Name, "loader", l.name, "header", fmt.Sprintf("%#x", uintptr(c.Layout.Header)),
		"vtable", len(c.VTable), "itables", len(c.ITables), "fragments", len(c.Layout.Fragments))
	return c, nil
}

// linkSegment chains c's header into its segment's class list.
func (vm *VM) linkSegment(l *ClassLoader, c *rt.Class) {
	seg := l.alloc.SegmentOf(c.Layout.Header)
	c.Layout.PrevInSegment = seg.LastClass()
	b, err := l.alloc.Bytes(c.Layout.Header+hdrPrevInSegment*word, word)
	if err != nil {
		panic(fmt.Sprintf("vm: header of %s outside its segment: %v", c.Name, err))
	}
	memory(b).put(0, uint64(c.Layout.PrevInSegment))
	seg.SetLastClass(c.Layout.Header)
}

// discard returns the fragments of an unpublished class.
func (vm *VM) discard(l *ClassLoader, c *rt.Class) {
	vm.free(l, c.Name, fragmentsOf(c))
}

// free returns frags allocated for what to l. An unloaded isolated loader
// has already released its segments.
func (vm *VM) free(l *ClassLoader, what string, frags []alloc.Fragment) {
	if l.unloaded && l.alloc.Isolated() {
		return
	}
	if err := l.alloc.FreeFragments(frags); err != nil {
		logger.L.Warn("vm: freeing fragments failed", "what", what, "loader", l.name, "err", err)
	}
}

func fragmentsOf(c *rt.Class) []alloc.Fragment {
	out := make([]alloc.Fragment, len(c.Layout.Fragments))
	for i, f := range c.Layout.Fragments {
		out[i] = f.Fragment
	}
	return out
}
