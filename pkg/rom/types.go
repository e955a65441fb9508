// Package rom holds the immutable class descriptor consumed by class
// construction. Descriptors are produced by a class-file reader (or built
// directly in tests) and are never mutated once handed to the VM.
package rom

import "strings"

// Modifiers is a set of access flags as they appear in a class file.
type Modifiers uint16

// Access flags
const (
	AccPublic     Modifiers = 0x0001
	AccPrivate    Modifiers = 0x0002
	AccProtected  Modifiers = 0x0004
	AccStatic     Modifiers = 0x0008
	AccFinal      Modifiers = 0x0010
	AccSuper      Modifiers = 0x0020
	AccBridge     Modifiers = 0x0040
	AccVarargs    Modifiers = 0x0080
	AccNative     Modifiers = 0x0100
	AccInterface  Modifiers = 0x0200
	AccAbstract   Modifiers = 0x0400
	AccSynthetic  Modifiers = 0x1000
	AccAnnotation Modifiers = 0x2000
	AccEnum       Modifiers = 0x4000
)

// Has reports whether every flag in f is set.
func (m Modifiers) Has(f Modifiers) bool { return m&f == f }

func (m Modifiers) IsPublic() bool { return m.Has(AccPublic) }
func (m Modifiers) IsPrivate() bool { return m.Has(AccPrivate) }
func (m Modifiers) IsProtected() bool { return m.Has(AccProtected) }
func (m Modifiers) IsStatic() bool { return m.Has(AccStatic) }
func (m Modifiers) IsFinal() bool { return m.Has(AccFinal) }
func (m Modifiers) IsInterface() bool { return m.Has(AccInterface) }
func (m Modifiers) IsAbstract() bool { return m.Has(AccAbstract) }

// IsPackagePrivate reports whether none of public, protected or private is set.
func (m Modifiers) IsPackagePrivate() bool {
	return m&(AccPublic|AccProtected|AccPrivate) == 0
}

// Method is one method declared by a class.
type Method struct {
	Name        string
	Signature   string
	Modifiers   Modifiers
	HasBytecode bool
}

// IsInitializer reports whether the method is a constructor or a static initializer.
func (m *Method) IsInitializer() bool {
	return m.Name == "<init>" || m.Name == "<clinit>"
}

// IsVirtual reports whether the method takes part in virtual dispatch.
// Initializers, static and private methods never do.
func (m *Method) IsVirtual() bool {
	return !m.IsInitializer() && !m.Modifiers.IsStatic() && !m.Modifiers.IsPrivate()
}

// IsAbstract reports whether the method has no implementation.
func (m *Method) IsAbstract() bool {
	return m.Modifiers.IsAbstract() || (!m.HasBytecode && !m.Modifiers.Has(AccNative))
}

// Field is one field declared by a class.
type Field struct {
	Name      string
	Signature string
	Modifiers Modifiers
}

// IsReference reports whether the field holds an object reference.
func (f *Field) IsReference() bool {
	return strings.HasPrefix(f.Signature, "L") || strings.HasPrefix(f.Signature, "[")
}

// Class is a parsed class descriptor.
type Class struct {
	Name       string
	SuperName  string
	Interfaces []string
	Modifiers  Modifiers
	Methods    []Method
	Fields     []Field

	// PermittedSubclasses is non-empty for sealed types.
	PermittedSubclasses []string
	// Module names the module the class belongs to; "" is the loader's unnamed module.
	Module string

	ConstantPoolCount int
	CallSiteCount     int
	MethodTypeCount   int
}

func (c *Class) IsInterface() bool { return c.Modifiers.IsInterface() }
func (c *Class) IsFinal() bool { return c.Modifiers.IsFinal() }
func (c *Class) IsPublic() bool { return c.Modifiers.IsPublic() }
func (c *Class) IsSealed() bool { return len(c.PermittedSubclasses) > 0 }

// Package returns the binary package name of the class.
func (c *Class) Package() string { return PackageName(c.Name) }

// Permits reports whether name is listed as a permitted subtype.
func (c *Class) Permits(name string) bool {
	for _, p := range c.PermittedSubclasses {
		if p == name {
			return true
		}
	}
	return false
}

// FindMethod returns the index of the method with the given name and
// signature, or -1.
func (c *Class) FindMethod(name, signature string) int {
	for i := range c.Methods {
		if c.Methods[i].Name == name && c.Methods[i].Signature == signature {
			return i
		}
	}
	return -1
}

// InstanceFieldCount returns the number of non-static fields.
func (c *Class) InstanceFieldCount() int {
	n := 0
	for i := range c.Fields {
		if !c.Fields[i].Modifiers.IsStatic() {
			n++
		}
	}
	return n
}

// StaticFieldCount returns the number of static fields.
func (c *Class) StaticFieldCount() int {
	return len(c.Fields) - c.InstanceFieldCount()
}
