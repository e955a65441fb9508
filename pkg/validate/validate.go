// Package validate checks the legality of a class hierarchy before any
// dispatch table is built.
package validate

import (
	"github.com/daimatz/ramclass/pkg/rom"
	"github.com/daimatz/ramclass/pkg/rt"
)

// Input is a class descriptor together with its already loaded supertypes.
type Input struct {
	Class   *rom.Class
	Package *rt.Package
	Module  *rt.Module
	// Super is nil only for the root class.
	Super      *rt.Class
	Interfaces []*rt.Class
}

func (in *Input) loader() rt.Loader {
	if in.Package == nil {
		return nil
	}
	return in.Package.Loader
}

// Validate returns nil or a *Error describing the first violation found.
// The superclass is checked before the interfaces, in declaration order.
func Validate(in Input) error {
	c := in.Class
	if c.SuperName == c.Name {
		return &Error{Kind: Circularity, Class: c.Name, Supertype: c.Name, Reason: "class is its own superclass"}
	}

	if s := in.Super; s != nil {
		if s.IsInterface() {
			return &Error{Kind: IllegalInterfaceSuperclass, Class: c.Name, Supertype: s.Name}
		}
		if s.IsFinal() {
			return &Error{Kind: IllegalFinalSuperclass, Class: c.Name, Supertype: s.Name}
		}
		if err := checkSupertype(in, s); err != nil {
			return err
		}
	}

	for _, i := range in.Interfaces {
		if !i.IsInterface() {
			return &Error{Kind: NotAnInterface, Class: c.Name, Supertype: i.Name}
		}
		if err := checkSupertype(in, i); err != nil {
			return err
		}
	}
	return nil
}

func checkSupertype(in Input, s *rt.Class) error {
	if isAncestorOf(in, s) {
		return &Error{Kind: Circularity, Class: in.Class.Name, Supertype: s.Name, Reason: "class is its own supertype"}
	}
	if err := checkAccess(in, s); err != nil {
		return err
	}
	return checkSealed(in, s)
}

// isAncestorOf reports whether the class being validated already appears
// among the supertypes of s in the same loader.
func isAncestorOf(in Input, s *rt.Class) bool {
	name, l := in.Class.Name, in.loader()
	seen := map[*rt.Class]bool{}
	var walk func(k *rt.Class) bool
	walk = func(k *rt.Class) bool {
		if k == nil || seen[k] {
			return false
		}
		seen[k] = true
		if k.Name == name && k.Loader == l {
			return true
		}
		if walk(k.Superclass) {
			return true
		}
		for _, i := range k.Interfaces {
			if walk(i) {
				return true
			}
		}
		return false
	}
	return walk(s)
}

func checkAccess(in Input, s *rt.Class) error {
	if !s.IsPublic() {
		if !rt.SamePackage(in.Package, s.Package) {
			return &Error{
				Kind:      ModuleVisibilityViolation,
				Class:     in.Class.Name,
				Supertype: s.Name,
				Reason:    "non-public supertype in another package",
			}
		}
		return nil
	}
	target := s.Module
	if in.Module == target || !target.IsNamed() {
		return nil
	}
	if !in.Module.CanRead(target) {
		return &Error{
			Kind:      ModuleVisibilityViolation,
			Class:     in.Class.Name,
			Supertype: s.Name,
			Reason:    in.Module.String() + " does not read " + target.String(),
		}
	}
	pkg := ""
	if s.Package != nil {
		pkg = s.Package.Name
	}
	if !target.Exports(pkg, in.Module) {
		return &Error{
			Kind:      ModuleVisibilityViolation,
			Class:     in.Class.Name,
			Supertype: s.Name,
			Reason:    target.String() + " does not export " + pkg + " to " + in.Module.String(),
		}
	}
	return nil
}

func checkSealed(in Input, s *rt.Class) error {
	if !s.ROM.IsSealed() {
		return nil
	}
	if !s.ROM.Permits(in.Class.Name) {
		return &Error{
			Kind:      SealedPermitViolation,
			Class:     in.Class.Name,
			Supertype: s.Name,
			Reason:    "not listed in PermittedSubclasses",
		}
	}
	if s.Loader != in.loader() {
		return &Error{
			Kind:      SealedPermitViolation,
			Class:     in.Class.Name,
			Supertype: s.Name,
			Reason:    "permitted subclass defined by a different loader",
		}
	}
	if s.Module.IsNamed() {
		if s.Module != in.Module {
			return &Error{
				Kind:      SealedPermitViolation,
				Class:     in.Class.Name,
				Supertype: s.Name,
				Reason:    "permitted subclass in a different module",
			}
		}
	} else if !rt.SamePackage(in.Package, s.Package) {
		return &Error{
			Kind:      SealedPermitViolation,
			Class:     in.Class.Name,
			Supertype: s.Name,
			Reason:    "permitted subclass in a different package of the unnamed module",
		}
	}
	return nil
}
