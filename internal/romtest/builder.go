// Package romtest builds class descriptors for tests.
package romtest

import "github.com/daimatz/ramclass/pkg/rom"

const objectName = "java/lang/Object"

// Builder assembles a rom.Class.
type Builder struct {
	c rom.Class
}

// Class starts a public class extending java/lang/Object.
func Class(name string) *Builder {
	return &Builder{c: rom.Class{
		Name:              name,
		SuperName:         objectName,
		Modifiers:         rom.AccPublic | rom.AccSuper,
		ConstantPoolCount: 1,
	}}
}

// Interface starts a public abstract interface.
func Interface(name string) *Builder {
	return &Builder{c: rom.Class{
		Name:              name,
		SuperName:         objectName,
		Modifiers:         rom.AccPublic | rom.AccInterface | rom.AccAbstract,
		ConstantPoolCount: 1,
	}}
}

// Object returns the root class with the usual overridable methods.
func Object() *rom.Class {
	return Class(objectName).
		Super("").
		Ctor().
		Method("hashCode", "()I", rom.AccPublic|rom.AccNative).
		Method("equals", "(Ljava/lang/Object;)Z", rom.AccPublic).
		Method("toString", "()Ljava/lang/String;", rom.AccPublic).
		Method("getClass", "()Ljava/lang/Class;", rom.AccPublic|rom.AccFinal|rom.AccNative).
		Build()
}

func (b *Builder) Super(name string) *Builder {
	b.c.SuperName = name
	return b
}

func (b *Builder) Implements(names ...string) *Builder {
	b.c.Interfaces = append(b.c.Interfaces, names...)
	return b
}

func (b *Builder) Modifiers(m rom.Modifiers) *Builder {
	b.c.Modifiers = m
	return b
}

// With adds modifiers to the class.
func (b *Builder) With(m rom.Modifiers) *Builder {
	b.c.Modifiers |= m
	return b
}

func (b *Builder) Permits(names ...string) *Builder {
	b.c.PermittedSubclasses = append(b.c.PermittedSubclasses, names...)
	return b
}

func (b *Builder) Module(name string) *Builder {
	b.c.Module = name
	return b
}

// Method adds a method. Abstract methods get no bytecode.
func (b *Builder) Method(name, sig string, mods rom.Modifiers) *Builder {
	b.c.Methods = append(b.c.Methods, rom.Method{
		Name:        name,
		Signature:   sig,
		Modifiers:   mods,
		HasBytecode: !mods.IsAbstract() && !mods.Has(rom.AccNative),
	})
	return b
}

// Public adds a public concrete method.
func (b *Builder) Public(name, sig string) *Builder {
	return b.Method(name, sig, rom.AccPublic)
}

// Abstract adds a public abstract method.
func (b *Builder) Abstract(name, sig string) *Builder {
	return b.Method(name, sig, rom.AccPublic|rom.AccAbstract)
}

// Ctor adds a public no-arg constructor.
func (b *Builder) Ctor() *Builder {
	return b.Method("<init>", "()V", rom.AccPublic)
}

func (b *Builder) Field(name, sig string, mods rom.Modifiers) *Builder {
	b.c.Fields = append(b.c.Fields, rom.Field{Name: name, Signature: sig, Modifiers: mods})
	return b
}

// Pool sets the constant pool, call-site and method-type counts.
func (b *Builder) Pool(cp, callSites, methodTypes int) *Builder {
	b.c.ConstantPoolCount = cp
	b.c.CallSiteCount = callSites
	b.c.MethodTypeCount = methodTypes
	return b
}

func (b *Builder) Build() *rom.Class {
	c := b.c
	return &c
}
