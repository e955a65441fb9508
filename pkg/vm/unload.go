package vm

import (
	"errors"

	"github.com/daimatz/ramclass/internal/logger"
	"github.com/daimatz/ramclass/pkg/rt"
)

// ErrBootLoader is returned when unloading the boot loader.
var ErrBootLoader = errors.New("vm: the boot loader cannot be unloaded")

// UnloadLoader drops every class l defined. Their fragments go back to l's
// free lists; an isolated loader releases its segments instead. Other
// loaders forget the classes they initiated from l. Unloading twice is a
// no-op.
func (vm *VM) UnloadLoader(l *ClassLoader) error {
	if l == vm.boot {
		return ErrBootLoader
	}
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if l.unloaded {
		return nil
	}

	defined := l.defined()
	var err error
	if l.alloc.Isolated() {
		err = l.alloc.Release()
	} else {
		for _, c := range defined {
			if ferr := l.alloc.FreeFragments(fragmentsOf(c)); ferr != nil && err == nil {
				err = ferr
			}
		}
		for _, seg := range l.alloc.Segments() {
			seg.SetLastClass(0)
		}
	}

	for other := range vm.loaders {
		if other == l {
			continue
		}
		for name, c := range other.classes {
			if c.Loader == rt.Loader(l) {
				delete(other.classes, name)
			}
		}
	}
	clear(l.classes)
	clear(l.packages)
	clear(l.pkgModules)
	clear(l.modules)
	l.unloaded = true
	delete(vm.loaders, l)
	vm.constraints.drop(l)

	logger.L.Debug("vm: loader unloaded", "loader", l.name, "classes", len(defined), "isolated", l.alloc.Isolated())
	return err
}
