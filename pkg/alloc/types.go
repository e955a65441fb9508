package alloc

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// WordSize is the machine word size all fragment sizes are rounded to.
const WordSize = 8

// Default list thresholds.
const (
	DefaultTinyLimit        = (8 + 4) * WordSize
	DefaultLargeLimit       = 256
	DefaultSegmentIncrement = 64 * 1024
)

// Address is the location of a byte inside a segment.
type Address uintptr

// Request describes one fragment: an optional prefix followed by a body whose
// start must be aligned to Alignment.
type Request struct {
	Prefix    uint64
	Alignment uint64
	Body      uint64
}

// Fragment is an allocated request. Address is the start of the body; the
// prefix sits immediately below it.
type Fragment struct {
	Address Address
	Prefix  uint64
	Size    uint64
}

// Start returns the first byte of the fragment including its prefix.
func (f Fragment) Start() Address { return f.Address - Address(f.Prefix) }

// End returns the address one past the last byte of the fragment.
func (f Fragment) End() Address { return f.Start() + Address(f.Size) }

func (f Fragment) String() string {
	return fmt.Sprintf("[%#x+%d prefix=%d]", uintptr(f.Start()), f.Size, f.Prefix)
}

// ListKind identifies one free list.
type ListKind int

const (
	ListWord ListKind = iota
	ListTiny
	ListSmall
	ListLarge
	numLists
)

func (k ListKind) String() string {
	switch k {
	case ListWord:
		return "word"
	case ListTiny:
		return "tiny"
	case ListSmall:
		return "small"
	case ListLarge:
		return "large"
	}
	return fmt.Sprintf("ListKind(%d)", int(k))
}

// Stats counts allocator activity.
type Stats struct {
	Segments       int
	SegmentBytes   uint64
	FreeBytes      uint64
	ListHits       [numLists]uint64
	SegmentAllocs  uint64
	Frees          uint64
	FailedRequests uint64
}

// Hits returns the number of fragments served from list k.
func (s Stats) Hits(k ListKind) uint64 { return s.ListHits[k] }

func alignUp[T constraints.Unsigned](v, align T) T {
	return (v + align - 1) &^ (align - 1)
}

func isPowerOfTwo[T constraints.Unsigned](v T) bool {
	return v != 0 && v&(v-1) == 0
}
