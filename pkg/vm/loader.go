package vm

import (
	"encoding/binary"
	"sort"

	"github.com/daimatz/ramclass/pkg/alloc"
	"github.com/daimatz/ramclass/pkg/rom"
	"github.com/daimatz/ramclass/pkg/rt"
)

// ClassLoader is a class-loading context: a class table, packages and
// modules, and the fragment allocator its classes live in. All mutable
// state is guarded by the owning VM's lock.
type ClassLoader struct {
	vm     *VM
	name   string
	parent *ClassLoader
	source Source

	alloc *alloc.Allocator

	// classes maps names to classes this loader defined or initiated.
	classes    map[string]*rt.Class
	packages   map[string]*rt.Package
	modules    map[string]*rt.Module
	pkgModules map[string]*rt.Module
	unnamed    *rt.Module
	unloaded   bool
}

func (l *ClassLoader) Name() string { return l.name }

// Parent returns the loader delegated to first, nil for the boot loader.
func (l *ClassLoader) Parent() *ClassLoader { return l.parent }

// Isolated reports whether the loader's classes live in dedicated segments.
func (l *ClassLoader) Isolated() bool { return l.alloc.Isolated() }

// UnnamedModule returns the loader's unnamed module.
func (l *ClassLoader) UnnamedModule() *rt.Module { return l.unnamed }

// DefineModule creates a named module holding pkgs. Classes in those
// packages, or whose descriptor names the module, belong to it.
func (l *ClassLoader) DefineModule(name string, pkgs ...string) *rt.Module {
	l.vm.mu.Lock()
	defer l.vm.mu.Unlock()
	m := l.module(name)
	for _, p := range pkgs {
		l.pkgModules[p] = m
	}
	return m
}

func (l *ClassLoader) module(name string) *rt.Module {
	if name == "" {
		return l.unnamed
	}
	m, ok := l.modules[name]
	if !ok {
		m = rt.NewModule(name, l)
		l.modules[name] = m
	}
	return m
}

// packageFor returns the runtime package of desc, creating it on first use.
func (l *ClassLoader) packageFor(desc *rom.Class) *rt.Package {
	name := desc.Package()
	if p, ok := l.packages[name]; ok {
		return p
	}
	mod := l.unnamed
	if desc.Module != "" {
		mod = l.module(desc.Module)
	} else if m, ok := l.pkgModules[name]; ok {
		mod = m
	}
	p := &rt.Package{Name: name, Loader: l, Module: mod}
	l.packages[name] = p
	return p
}

func (l *ClassLoader) lookup(name string) *rt.Class {
	return l.classes[name]
}

// FindClass returns the published class name as seen by the loader, or nil.
func (l *ClassLoader) FindClass(name string) *rt.Class {
	l.vm.mu.Lock()
	defer l.vm.mu.Unlock()
	if c := l.classes[name]; c != nil && c.Published() {
		return c
	}
	return nil
}

// Classes returns the classes defined by the loader, sorted by name.
func (l *ClassLoader) Classes() []*rt.Class {
	l.vm.mu.Lock()
	defer l.vm.mu.Unlock()
	return l.defined()
}

func (l *ClassLoader) defined() []*rt.Class {
	var out []*rt.Class
	for _, c := range l.classes {
		if c.Loader == rt.Loader(l) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Stats returns the loader's allocator counters.
func (l *ClassLoader) Stats() alloc.Stats {
	l.vm.mu.Lock()
	defer l.vm.mu.Unlock()
	return l.alloc.Stats()
}

// CheckMemory verifies the loader's free lists against the fragments of
// every class it defined.
func (l *ClassLoader) CheckMemory() error {
	l.vm.mu.Lock()
	defer l.vm.mu.Unlock()
	var live []alloc.Fragment
	for _, c := range l.defined() {
		for _, f := range c.Layout.Fragments {
			live = append(live, f.Fragment)
		}
	}
	return l.alloc.CheckInvariants(live...)
}

// Word reads the machine word at addr in the loader's memory.
func (l *ClassLoader) Word(addr alloc.Address) (uint64, error) {
	l.vm.mu.Lock()
	defer l.vm.mu.Unlock()
	b, err := l.alloc.Bytes(addr, alloc.WordSize)
	if err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint64(b), nil
}

// SegmentChain returns the headers of the classes placed in the segment
// holding addr, most recent first, by following the segment back-links.
func (l *ClassLoader) SegmentChain(addr alloc.Address) []alloc.Address {
	l.vm.mu.Lock()
	defer l.vm.mu.Unlock()
	seg := l.alloc.SegmentOf(addr)
	if seg == nil {
		return nil
	}
	var out []alloc.Address
	for h := seg.LastClass(); h != 0; {
		out = append(out, h)
		b, err := l.alloc.Bytes(h+hdrPrevInSegment*alloc.WordSize, alloc.WordSize)
		if err != nil {
			break
		}
		h = alloc.Address(binary.NativeEndian.Uint64(b))
	}
	return out
}
