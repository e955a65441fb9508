package vm

import (
	"encoding/binary"
	"fmt"

	"github.com/daimatz/ramclass/pkg/alloc"
	"github.com/daimatz/ramclass/pkg/rt"
)

// ClassAlignment is the alignment of every class header.
const ClassAlignment = 256

// Header word indices. The interpreter vtable starts right after the
// header, so slot i lives at header + (HeaderWords+i)*WordSize. The JIT
// vtable sits below the header: slot i at header - (i+1)*WordSize.
const (
	hdrModifiers = iota
	hdrSuperclass
	hdrDepth
	hdrSuperclasses
	hdrMethods
	hdrMethodCount
	hdrITable
	hdrInstanceDescription
	hdrInstanceSlots
	hdrStatics
	hdrConstantPool
	hdrCallSites
	hdrMethodTypes
	hdrArrayClass
	hdrPrevInSegment
	hdrVTableLength

	HeaderWords
)

// MethodRecordWords is the size of one method record in the methods fragment.
const MethodRecordWords = 4

// Method record word indices.
const (
	mrClass = iota
	mrFlags
	mrIndex
	mrVTableIndex
)

// Method record flag bits above the access modifiers.
const (
	methodFlagConflict    = 1 << 32
	methodFlagHasBytecode = 1 << 33
)

// inlineRefMapBits is the widest reference map stored in the header itself.
const inlineRefMapBits = 63

const word = alloc.WordSize

// plan is the fragment layout of one class before allocation.
type plan struct {
	kinds []rt.FragmentKind
	reqs  []alloc.Request
}

func (p *plan) add(k rt.FragmentKind, prefix, align, body uint64) {
	if prefix+body == 0 {
		return
	}
	p.kinds = append(p.kinds, k)
	p.reqs = append(p.reqs, alloc.Request{Prefix: prefix, Alignment: align, Body: body})
}

// planLayout sizes the fragments of c. Its tables must be final; own are
// the itables stored in c's itable fragment.
func planLayout(c *rt.Class, own []*rt.ITable) *plan {
	p := &plan{}
	vt := uint64(len(c.VTable))
	p.add(rt.FragHeader, vt*word, ClassAlignment, (HeaderWords+vt)*word)
	p.add(rt.FragMethods, 0, 0, uint64(len(c.Methods))*MethodRecordWords*word)
	p.add(rt.FragSuperclasses, 0, 0, uint64(c.Depth)*word)
	if c.InstanceSlots > inlineRefMapBits {
		p.add(rt.FragInstanceDescription, 0, 0, uint64(len(c.RefMap))*word)
	}
	p.add(rt.FragITable, 0, 0, itableWords(own)*word)
	if c.ROM != nil {
		p.add(rt.FragStatics, 0, 0, uint64(c.ROM.StaticFieldCount())*word)
		p.add(rt.FragConstantPool, 0, 0, uint64(c.ROM.ConstantPoolCount)*2*word)
		p.add(rt.FragCallSites, 0, 0, uint64(c.ROM.CallSiteCount)*word)
		p.add(rt.FragMethodTypes, 0, 0, uint64(c.ROM.MethodTypeCount)*word)
	}
	return p
}

// place records the allocated fragments in c's layout and gives every
// local method its record address.
func (p *plan) place(c *rt.Class, frags []alloc.Fragment) {
	c.Layout.Fragments = make([]rt.Fragment, len(frags))
	for i, f := range frags {
		c.Layout.Fragments[i] = rt.Fragment{Kind: p.kinds[i], Fragment: f}
		switch p.kinds[i] {
		case rt.FragHeader:
			c.Layout.Header = f.Address
		case rt.FragMethods:
			c.Layout.Methods = f.Address
		case rt.FragITable:
			c.Layout.ITable = f.Address
		case rt.FragInstanceDescription:
			c.Layout.InstanceDescription = f.Address
		}
	}
	if c.Layout.ITable == 0 && c.Superclass != nil && !c.IsInterface() {
		c.Layout.ITable = c.Superclass.Layout.ITable
	}
	for _, m := range c.Methods {
		m.Address = c.Layout.Methods + alloc.Address(m.Index*MethodRecordWords*word)
	}
}

// memory is a fragment's backing bytes, written word by word.
type memory []byte

func (m memory) put(i int, v uint64) { binary.NativeEndian.PutUint64(m[i*word:], v) }

// views fetches the backing bytes of every fragment body and of the JIT
// vtable below the header. It must run under the VM lock; the returned
// slices may be written without it.
func views(a *alloc.Allocator, frags []rt.Fragment) (map[rt.FragmentKind]memory, memory, error) {
	out := make(map[rt.FragmentKind]memory, len(frags))
	var jit memory
	for _, f := range frags {
		b, err := a.Bytes(f.Start(), f.Size)
		if err != nil {
			return nil, nil, fmt.Errorf("vm: %s fragment: %w", f.Kind, err)
		}
		out[f.Kind] = memory(b[f.Prefix:])
		if f.Kind == rt.FragHeader {
			jit = memory(b[:f.Prefix])
		}
	}
	return out, jit, nil
}

// encode writes c's header, vtables, method records, superclass array,
// instance description and itables into its fragments.
func encode(c *rt.Class, mem map[rt.FragmentKind]memory, jit memory, own []*rt.ITable) {
	h := mem[rt.FragHeader]
	h.put(hdrModifiers, uint64(c.Modifiers()))
	if c.Superclass != nil {
		h.put(hdrSuperclass, uint64(c.Superclass.Header()))
	}
	h.put(hdrDepth, uint64(c.Depth))
	h.put(hdrMethods, uint64(c.Layout.Methods))
	h.put(hdrMethodCount, uint64(len(c.Methods)))
	h.put(hdrITable, uint64(c.Layout.ITable))
	h.put(hdrInstanceSlots, uint64(c.InstanceSlots))
	if c.Layout.InstanceDescription != 0 {
		h.put(hdrInstanceDescription, uint64(c.Layout.InstanceDescription))
	} else {
		var bits uint64
		if len(c.RefMap) > 0 {
			bits = c.RefMap[0]
		}
		h.put(hdrInstanceDescription, bits<<1|1)
	}
	for k, idx := range map[rt.FragmentKind]int{
		rt.FragSuperclasses: hdrSuperclasses,
		rt.FragStatics:      hdrStatics,
		rt.FragConstantPool: hdrConstantPool,
		rt.FragCallSites:    hdrCallSites,
		rt.FragMethodTypes:  hdrMethodTypes,
	} {
		if f, ok := c.Layout.Fragment(k); ok {
			h.put(idx, uint64(f.Address))
		}
	}
	h.put(hdrVTableLength, uint64(len(c.VTable)))

	n := len(c.VTable)
	for i, s := range c.VTable {
		addr := uint64(s.Method.Address)
		h.put(HeaderWords+i, addr)
		jit.put(n-1-i, addr)
	}

	if ms := mem[rt.FragMethods]; ms != nil {
		vtIndex := map[*rt.Method]int{}
		for i, s := range c.VTable {
			if s.Method.Class == c {
				vtIndex[s.Method] = i
			}
		}
		for _, m := range c.Methods {
			base := m.Index * MethodRecordWords
			flags := uint64(m.Modifiers())
			if m.Conflict {
				flags |= methodFlagConflict
			}
			if m.ROM.HasBytecode {
				flags |= methodFlagHasBytecode
			}
			ms.put(base+mrClass, uint64(c.Layout.Header))
			ms.put(base+mrFlags, flags)
			ms.put(base+mrIndex, uint64(m.Index))
			vi, ok := vtIndex[m]
			if !ok {
				vi = -1
			}
			ms.put(base+mrVTableIndex, uint64(int64(vi)))
		}
	}

	if sc := mem[rt.FragSuperclasses]; sc != nil {
		i := c.Depth - 1
		for s := c.Superclass; s != nil; s = s.Superclass {
			sc.put(i, uint64(s.Header()))
			i--
		}
	}

	if id := mem[rt.FragInstanceDescription]; id != nil {
		for i, w := range c.RefMap {
			id.put(i, w)
		}
	}

	if it := mem[rt.FragITable]; it != nil {
		var next uint64
		if c.Superclass != nil && !c.IsInterface() {
			next = uint64(c.Superclass.Layout.ITable)
		}
		writeITables(it, c.Layout.ITable, own, next)
	}
}

// writeITables encodes own at base as a chain of [interface header, next
// entry, slots...] entries in list order; the last links to next.
func writeITables(it memory, base alloc.Address, own []*rt.ITable, next uint64) {
	off := 0
	for i, t := range own {
		size := 2 + len(t.Slots)
		link := next
		if i+1 < len(own) {
			link = uint64(base) + uint64((off+size)*word)
		}
		it.put(off, uint64(t.Interface.Header()))
		it.put(off+1, link)
		for j, s := range t.Slots {
			it.put(off+2+j, uint64(int64(s)))
		}
		off += size
	}
}

// itableWords returns the size of the encoded itable entries.
func itableWords(own []*rt.ITable) uint64 {
	var n uint64
	for _, t := range own {
		n += 2 + uint64(len(t.Slots))
	}
	return n
}

// refMap returns the instance reference bitmap of a class whose superclass
// has super's layout and which declares fields.
func refMap(super *rt.Class, c *rt.Class) (int, []uint64) {
	slots := 0
	var bits []uint64
	if super != nil {
		slots = super.InstanceSlots
		bits = append(bits, super.RefMap...)
	}
	for _, f := range c.ROM.Fields {
		if f.Modifiers.IsStatic() {
			continue
		}
		if f.IsReference() {
			for len(bits) <= slots/64 {
				bits = append(bits, 0)
			}
			bits[slots/64] |= 1 << (slots % 64)
		}
		slots++
	}
	for len(bits) < (slots+63)/64 {
		bits = append(bits, 0)
	}
	return slots, bits
}
