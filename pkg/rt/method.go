package rt

import (
	"fmt"

	"github.com/daimatz/ramclass/pkg/alloc"
	"github.com/daimatz/ramclass/pkg/rom"
)

// Method is a runtime method: a ROM method bound to its declaring class.
type Method struct {
	Class *Class
	ROM   *rom.Method
	// Index is the position of the method record in the class's methods fragment.
	Index   int
	Address alloc.Address

	// Conflict marks a synthetic method standing for a default-method
	// conflict. Invoking it raises IncompatibleClassChangeError.
	Conflict   bool
	Candidates []*Method
}

// NameSig identifies a method by name and signature.
type NameSig struct {
	Name      string
	Signature string
}

func (k NameSig) String() string { return k.Name + k.Signature }

func (m *Method) Key() NameSig { return NameSig{m.ROM.Name, m.ROM.Signature} }
func (m *Method) Name() string { return m.ROM.Name }
func (m *Method) Signature() string { return m.ROM.Signature }
func (m *Method) Modifiers() rom.Modifiers { return m.ROM.Modifiers }
func (m *Method) IsVirtual() bool { return m.ROM.IsVirtual() }
func (m *Method) IsAbstract() bool { return m.ROM.IsAbstract() }

// IsDefault reports whether m is a concrete interface method.
func (m *Method) IsDefault() bool {
	return m.Class.IsInterface() && !m.ROM.IsAbstract()
}

// FromInterface reports whether m was declared by an interface.
func (m *Method) FromInterface() bool { return m.Class.IsInterface() }

func (m *Method) String() string {
	if m.Conflict {
		return fmt.Sprintf("<conflict %s in %s>", m.Key(), m.Class.Name)
	}
	return m.Class.Name + "." + m.ROM.Name + m.ROM.Signature
}
