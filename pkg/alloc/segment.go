package alloc

import (
	"encoding/binary"
	"unsafe"
)

// Segment is one block of memory obtained from a Source. Its first word
// links to the most recently allocated class placed in it.
type Segment struct {
	mem  []byte
	base Address
}

func newSegment(mem []byte) *Segment {
	return &Segment{mem: mem, base: Address(uintptr(unsafe.Pointer(unsafe.SliceData(mem))))}
}

func (s *Segment) Base() Address { return s.base }
func (s *Segment) Size() uint64 { return uint64(len(s.mem)) }
func (s *Segment) End() Address { return s.base + Address(len(s.mem)) }

// Contains reports whether [addr, addr+n) lies inside the segment's usable
// area, past the back-link word.
func (s *Segment) Contains(addr Address, n uint64) bool {
	return addr >= s.base+WordSize && addr+Address(n) <= s.End() && addr+Address(n) >= addr
}

// LastClass returns the back-link stored in the segment's first word.
func (s *Segment) LastClass() Address {
	return Address(binary.NativeEndian.Uint64(s.mem[:WordSize]))
}

// SetLastClass stores the back-link.
func (s *Segment) SetLastClass(a Address) {
	binary.NativeEndian.PutUint64(s.mem[:WordSize], uint64(a))
}

func (s *Segment) bytes(addr Address, n uint64) []byte {
	off := uint64(addr - s.base)
	return s.mem[off : off+n : off+n]
}
