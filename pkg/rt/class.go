// Package rt models runtime classes: the linked form of a class
// descriptor with its dispatch tables and memory layout.
package rt

import (
	"sync/atomic"

	"github.com/daimatz/ramclass/pkg/alloc"
	"github.com/daimatz/ramclass/pkg/rom"
)

// Loader is a class-loader identity.
type Loader interface {
	Name() string
}

// Class is a runtime class. Fields are written only while the class is
// under construction; once Published returns true the class is immutable
// apart from its array-class link.
type Class struct {
	ROM     *rom.Class
	Name    string
	Loader  Loader
	Package *Package
	Module  *Module

	Superclass *Class
	// Interfaces are the direct superinterfaces.
	Interfaces []*Class
	// Depth is the number of superclasses.
	Depth int
	// InterfaceDepth is 0 for an interface without superinterfaces and one
	// more than its deepest superinterface otherwise.
	InterfaceDepth int

	Methods []*Method
	VTable  VTable
	// ITables lists this class's itables first, followed by the superclass's.
	ITables []*ITable

	// Component is the element type of an array class.
	Component *Class

	InstanceSlots int
	// RefMap marks which instance slots hold references.
	RefMap []uint64

	Layout Layout

	arrayClass atomic.Pointer[Class]
	published  atomic.Bool
}

func (c *Class) IsInterface() bool { return c.ROM.IsInterface() }
func (c *Class) IsArray() bool { return c.Component != nil }
func (c *Class) IsFinal() bool { return c.ROM.IsFinal() }
func (c *Class) IsPublic() bool { return c.ROM.IsPublic() }
func (c *Class) Modifiers() rom.Modifiers { return c.ROM.Modifiers }

// Implements reports whether iface appears in the class's itable list. For
// interfaces this includes the interface itself.
func (c *Class) Implements(iface *Class) bool {
	for _, it := range c.ITables {
		if it.Interface == iface {
			return true
		}
	}
	return false
}

// IsSubInterfaceOf reports whether c is an interface extending other,
// directly or transitively.
func (c *Class) IsSubInterfaceOf(other *Class) bool {
	return c != other && c.IsInterface() && other.IsInterface() && c.Implements(other)
}

// IsSubclassOf reports whether other is c or one of its superclasses.
func (c *Class) IsSubclassOf(other *Class) bool {
	for k := c; k != nil; k = k.Superclass {
		if k == other {
			return true
		}
	}
	return false
}

// InterfaceMethods returns the dispatchable methods of an interface in
// ordinal order.
func (c *Class) InterfaceMethods() []*Method {
	var out []*Method
	for _, m := range c.Methods {
		if m.IsVirtual() {
			out = append(out, m)
		}
	}
	return out
}

// ArrayClass returns the published array class whose element is c, or nil.
func (c *Class) ArrayClass() *Class { return c.arrayClass.Load() }

// SetArrayClass links the array class of c.
func (c *Class) SetArrayClass(a *Class) { c.arrayClass.Store(a) }

// Publish marks construction complete. The atomic store orders every prior
// write before any load that observes Published.
func (c *Class) Publish() { c.published.Store(true) }

// Published reports whether the class is fully initialised.
func (c *Class) Published() bool { return c.published.Load() }

// Header returns the address of the class header, 0 before allocation.
func (c *Class) Header() alloc.Address { return c.Layout.Header }

func (c *Class) String() string { return c.Name }

// Package is a runtime package: a package name inside one loader.
type Package struct {
	Name   string
	Loader Loader
	Module *Module
}

// SamePackage reports whether a and b are the same runtime package.
func SamePackage(a, b *Package) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a == b || (a.Loader == b.Loader && a.Name == b.Name)
}
