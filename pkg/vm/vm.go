// Package vm assembles runtime classes: it resolves supertypes through
// class loaders, validates the hierarchy, builds dispatch tables, lays the
// class out in its loader's memory and publishes it.
package vm

import (
	"fmt"
	"sync"

	"github.com/daimatz/ramclass/internal/logger"
	"github.com/daimatz/ramclass/pkg/alloc"
	"github.com/daimatz/ramclass/pkg/config"
	"github.com/daimatz/ramclass/pkg/rom"
	"github.com/daimatz/ramclass/pkg/rt"
	"github.com/daimatz/ramclass/pkg/validate"
)

// BootLoaderName names the loader every VM starts with.
const BootLoaderName = "boot"

// Options configures a VM.
type Options struct {
	// Config defaults to config.Default().
	Config *config.Config
	// Boot supplies the boot loader's classes.
	Boot Source
	// Memory supplies segment memory for every loader. When nil it is
	// chosen from the allocator configuration.
	Memory alloc.Source
	// Collector runs when an allocation fails. Defaults to GoCollector.
	Collector Collector
}

// VM owns the class loaders and the lock guarding every class table.
type VM struct {
	// mu is the class-table lock. It guards loader tables, allocators,
	// packages, modules, loader constraints and array-class links.
	mu sync.Mutex

	cfg         *config.Config
	memory      alloc.Source
	collector   Collector
	boot        *ClassLoader
	loaders     map[*ClassLoader]bool
	constraints *constraintTable
	primitives  map[string]*rt.Class

	// arrays holds the interfaces and itable list shared by every array class.
	arrays *arrayShape
}

// New creates a VM with an empty boot loader.
func New(opts Options) (*VM, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("vm: %w", err)
	}
	mem := opts.Memory
	if mem == nil {
		mem = alloc.NewSource(cfg.Allocator.UseMmap)
		if cfg.Allocator.MaxBytes > 0 {
			mem = alloc.NewLimitedSource(mem, cfg.Allocator.MaxBytes)
		}
	}
	col := opts.Collector
	if col == nil {
		col = GoCollector
	}
	vm := &VM{
		cfg:         cfg,
		memory:      mem,
		collector:   col,
		loaders:     map[*ClassLoader]bool{},
		constraints: &constraintTable{},
		primitives:  map[string]*rt.Class{},
	}
	vm.boot = vm.newLoader(BootLoaderName, nil, opts.Boot, false)
	for _, p := range primitiveNames {
		vm.primitives[p.descriptor] = vm.primitive(p.name)
	}
	return vm, nil
}

// Boot returns the boot loader.
func (vm *VM) Boot() *ClassLoader { return vm.boot }

// Config returns the VM configuration.
func (vm *VM) Config() *config.Config { return vm.cfg }

// NewLoader creates a loader delegating to parent (the boot loader when
// nil) before searching src.
func (vm *VM) NewLoader(name string, parent *ClassLoader, src Source) *ClassLoader {
	if parent == nil {
		parent = vm.boot
	}
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.newLoader(name, parent, src, false)
}

func (vm *VM) newLoader(name string, parent *ClassLoader, src Source, isolated bool) *ClassLoader {
	opts := vm.cfg.AllocatorOptions(vm.memory)
	opts.Isolated = isolated
	l := &ClassLoader{
		vm:         vm,
		name:       name,
		parent:     parent,
		source:     src,
		alloc:      alloc.New(opts),
		classes:    map[string]*rt.Class{},
		packages:   map[string]*rt.Package{},
		modules:    map[string]*rt.Module{},
		pkgModules: map[string]*rt.Module{},
	}
	l.unnamed = rt.NewModule("", l)
	vm.loaders[l] = true
	logger.L.Debug("vm: loader created", "loader", name, "isolated", isolated)
	return l
}

// Loaders returns the number of live loaders, the boot loader included.
func (vm *VM) Loaders() int {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return len(vm.loaders)
}

var primitiveNames = []struct{ descriptor, name string }{
	{"Z", "boolean"}, {"B", "byte"}, {"C", "char"}, {"S", "short"},
	{"I", "int"}, {"J", "long"}, {"F", "float"}, {"D", "double"},
}

// primitive creates the class object of a primitive type. It has no
// methods and no memory of its own; it only anchors primitive arrays.
func (vm *VM) primitive(name string) *rt.Class {
	desc := &rom.Class{Name: name, Modifiers: rom.AccPublic | rom.AccFinal | rom.AccAbstract}
	c := &rt.Class{ROM: desc, Name: name, Loader: vm.boot, Package: vm.boot.packageFor(desc)}
	c.Module = c.Package.Module
	c.Publish()
	return c
}

// Thread is one loading goroutine's state. A Thread must not be shared
// between goroutines.
type Thread struct {
	vm    *VM
	stack *validate.LoadingStack
}

// NewThread creates a thread whose loading stack holds at most the
// configured number of classes.
func (vm *VM) NewThread() *Thread {
	return &Thread{vm: vm, stack: validate.NewLoadingStack(vm.cfg.Loading.MaxStack)}
}

// Loading returns the names of the classes the thread is loading, outermost first.
func (t *Thread) Loading() []string { return t.stack.Names() }
