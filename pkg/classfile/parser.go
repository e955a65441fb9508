// Package classfile parses .class files into class descriptors.
package classfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/daimatz/ramclass/pkg/rom"
)

const classMagic = 0xCAFEBABE

// reader reads big-endian class-file items. The first error sticks; later
// reads return zero values.
type reader struct {
	r   io.Reader
	err error
	buf [8]byte
}

func (r *reader) fill(n int) []byte {
	if r.err != nil {
		return make([]byte, n)
	}
	if _, err := io.ReadFull(r.r, r.buf[:n]); err != nil {
		r.err = err
	}
	return r.buf[:n]
}

func (r *reader) u1() uint8  { return r.fill(1)[0] }
func (r *reader) u2() uint16 { return binary.BigEndian.Uint16(r.fill(2)) }
func (r *reader) u4() uint32 { return binary.BigEndian.Uint32(r.fill(4)) }
func (r *reader) u8() uint64 { return binary.BigEndian.Uint64(r.fill(8)) }

func (r *reader) bytes(n int) []byte {
	b := make([]byte, n)
	if r.err == nil {
		if _, err := io.ReadFull(r.r, b); err != nil {
			r.err = err
		}
	}
	return b
}

func (r *reader) u2s(n int) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = r.u2()
	}
	return out
}

// ParseFile opens and parses a .class file from the given path.
func ParseFile(path string) (*ClassFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a .class file from the given reader and returns a ClassFile.
func Parse(in io.Reader) (*ClassFile, error) {
	r := &reader{r: in}
	cf := &ClassFile{}

	if magic := r.u4(); r.err != nil {
		return nil, fmt.Errorf("reading magic number: %w", r.err)
	} else if magic != classMagic {
		return nil, fmt.Errorf("invalid magic number: 0x%X (expected 0xCAFEBABE)", magic)
	}
	cf.MinorVersion = r.u2()
	cf.MajorVersion = r.u2()

	cpCount := r.u2()
	if r.err != nil {
		return nil, fmt.Errorf("reading header: %w", r.err)
	}
	pool, err := parseConstantPool(r, cpCount)
	if err != nil {
		return nil, fmt.Errorf("parsing constant pool: %w", err)
	}
	cf.ConstantPool = pool

	cf.AccessFlags = r.u2()
	cf.ThisClass = r.u2()
	cf.SuperClass = r.u2()
	cf.Interfaces = r.u2s(int(r.u2()))
	if r.err != nil {
		return nil, fmt.Errorf("reading class info: %w", r.err)
	}

	fields, err := parseMembers(r, pool, "field")
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		cf.Fields = append(cf.Fields, FieldInfo(f))
	}

	methods, err := parseMembers(r, pool, "method")
	if err != nil {
		return nil, err
	}
	for _, m := range methods {
		mi := MethodInfo{AccessFlags: m.AccessFlags, Name: m.Name, Descriptor: m.Descriptor, Attributes: m.Attributes}
		for _, attr := range m.Attributes {
			if attr.Name == "Code" {
				if mi.Code, err = parseCodeAttribute(attr.Data); err != nil {
					return nil, fmt.Errorf("parsing Code attribute for method %s: %w", m.Name, err)
				}
				break
			}
		}
		cf.Methods = append(cf.Methods, mi)
	}

	attrs, err := parseAttributes(r, pool)
	if err != nil {
		return nil, fmt.Errorf("parsing class attributes: %w", err)
	}
	for _, attr := range attrs {
		if attr.Name == "PermittedSubclasses" {
			if cf.PermittedSubclasses, err = parseClassList(attr.Data); err != nil {
				return nil, fmt.Errorf("parsing PermittedSubclasses: %w", err)
			}
		}
	}
	return cf, nil
}

// member is the shared shape of field_info and method_info.
type member struct {
	AccessFlags uint16
	Name        string
	Descriptor  string
	Attributes  []AttributeInfo
}

func parseMembers(r *reader, pool []ConstantPoolEntry, what string) ([]member, error) {
	count := r.u2()
	if r.err != nil {
		return nil, fmt.Errorf("reading %s count: %w", what, r.err)
	}
	members := make([]member, count)
	for i := range members {
		flags, nameIndex, descIndex := r.u2(), r.u2(), r.u2()
		if r.err != nil {
			return nil, fmt.Errorf("reading %s %d: %w", what, i, r.err)
		}
		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving %s %d name: %w", what, i, err)
		}
		desc, err := GetUtf8(pool, descIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving %s %d descriptor: %w", what, i, err)
		}
		attrs, err := parseAttributes(r, pool)
		if err != nil {
			return nil, fmt.Errorf("parsing %s %s attributes: %w", what, name, err)
		}
		members[i] = member{AccessFlags: flags, Name: name, Descriptor: desc, Attributes: attrs}
	}
	return members, nil
}

func parseAttributes(r *reader, pool []ConstantPoolEntry) ([]AttributeInfo, error) {
	attrs := make([]AttributeInfo, r.u2())
	for i := range attrs {
		nameIndex := r.u2()
		data := r.bytes(int(r.u4()))
		if r.err != nil {
			return nil, fmt.Errorf("reading attribute %d: %w", i, r.err)
		}
		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving attribute %d name: %w", i, err)
		}
		attrs[i] = AttributeInfo{Name: name, Data: data}
	}
	if r.err != nil {
		return nil, fmt.Errorf("reading attributes count: %w", r.err)
	}
	return attrs, nil
}

func parseCodeAttribute(data []byte) (*CodeAttribute, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("Code attribute too short: %d bytes", len(data))
	}
	codeLength := binary.BigEndian.Uint32(data[4:8])
	if uint64(len(data)) < 8+uint64(codeLength) {
		return nil, fmt.Errorf("Code attribute data too short for code_length %d", codeLength)
	}
	return &CodeAttribute{
		MaxStack:  binary.BigEndian.Uint16(data[0:2]),
		MaxLocals: binary.BigEndian.Uint16(data[2:4]),
		Code:      append([]byte(nil), data[8:8+codeLength]...),
	}, nil
}

// parseClassList decodes a u2 count followed by that many u2 indices.
func parseClassList(data []byte) ([]uint16, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("attribute too short: %d bytes", len(data))
	}
	n := int(binary.BigEndian.Uint16(data))
	if len(data) != 2+2*n {
		return nil, fmt.Errorf("attribute length %d does not hold %d entries", len(data), n)
	}
	out := make([]uint16, n)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(data[2+2*i:])
	}
	return out, nil
}

// ClassName returns the fully qualified name of this class.
func (cf *ClassFile) ClassName() (string, error) {
	return GetClassName(cf.ConstantPool, cf.ThisClass)
}

// FindMethod finds a method by name and descriptor.
func (cf *ClassFile) FindMethod(name, descriptor string) *MethodInfo {
	for i := range cf.Methods {
		if cf.Methods[i].Name == name && cf.Methods[i].Descriptor == descriptor {
			return &cf.Methods[i]
		}
	}
	return nil
}

// Descriptor converts the parsed file into a class descriptor. Methods
// without a Code attribute have no bytecode.
func (cf *ClassFile) Descriptor() (*rom.Class, error) {
	name, err := cf.ClassName()
	if err != nil {
		return nil, fmt.Errorf("resolving this_class: %w", err)
	}
	c := &rom.Class{
		Name:              name,
		Modifiers:         rom.Modifiers(cf.AccessFlags),
		ConstantPoolCount: len(cf.ConstantPool),
		CallSiteCount:     countTag(cf.ConstantPool, TagInvokeDynamic),
		MethodTypeCount:   countTag(cf.ConstantPool, TagMethodType),
	}
	if cf.SuperClass != 0 {
		if c.SuperName, err = GetClassName(cf.ConstantPool, cf.SuperClass); err != nil {
			return nil, fmt.Errorf("%s: resolving super_class: %w", name, err)
		}
	}
	if c.Interfaces, err = cf.classNames(cf.Interfaces); err != nil {
		return nil, fmt.Errorf("%s: resolving interfaces: %w", name, err)
	}
	if c.PermittedSubclasses, err = cf.classNames(cf.PermittedSubclasses); err != nil {
		return nil, fmt.Errorf("%s: resolving permitted subclasses: %w", name, err)
	}
	for _, f := range cf.Fields {
		c.Fields = append(c.Fields, rom.Field{Name: f.Name, Signature: f.Descriptor, Modifiers: rom.Modifiers(f.AccessFlags)})
	}
	for _, m := range cf.Methods {
		c.Methods = append(c.Methods, rom.Method{
			Name:        m.Name,
			Signature:   m.Descriptor,
			Modifiers:   rom.Modifiers(m.AccessFlags),
			HasBytecode: m.Code != nil,
		})
	}
	return c, nil
}

func (cf *ClassFile) classNames(indices []uint16) ([]string, error) {
	if len(indices) == 0 {
		return nil, nil
	}
	names := make([]string, len(indices))
	for i, idx := range indices {
		n, err := GetClassName(cf.ConstantPool, idx)
		if err != nil {
			return nil, err
		}
		names[i] = n
	}
	return names, nil
}
