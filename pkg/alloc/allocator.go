package alloc

import (
	"fmt"
	"math"
	"sort"

	"github.com/daimatz/ramclass/internal/logger"
)

// Options configures an Allocator. Zero values select the defaults.
type Options struct {
	// TinyLimit is the exclusive upper bound of the tiny list.
	TinyLimit uint64
	// LargeLimit is the exclusive upper bound of the small list.
	LargeLimit uint64
	// SegmentIncrement is the granularity new segments are rounded up to.
	SegmentIncrement uint64
	// Isolated gives every Allocate call its own segment and disables the free lists.
	Isolated bool
	// Source supplies segment memory. Defaults to HeapSource.
	Source Source
}

// Allocator serves fragment requests for one class loader.
type Allocator struct {
	opts     Options
	lists    [numLists]freeList
	segments []*Segment // sorted by base
	stats    Stats
	released bool
}

// New creates an allocator with no segments.
func New(opts Options) *Allocator {
	if opts.TinyLimit == 0 {
		opts.TinyLimit = DefaultTinyLimit
	}
	if opts.LargeLimit == 0 {
		opts.LargeLimit = DefaultLargeLimit
	}
	if opts.SegmentIncrement == 0 {
		opts.SegmentIncrement = DefaultSegmentIncrement
	}
	if opts.Source == nil {
		opts.Source = HeapSource{}
	}
	a := &Allocator{opts: opts}
	for k := range a.lists {
		a.lists[k].kind = ListKind(k)
	}
	return a
}

// Isolated reports whether the allocator hands out dedicated segments.
func (a *Allocator) Isolated() bool { return a.opts.Isolated }

// normRequest is a Request with sizes rounded to words.
type normRequest struct {
	prefix uint64
	body   uint64
	size   uint64
	align  uint64
}

func normalize(r Request) (normRequest, error) {
	align := r.Alignment
	if align == 0 {
		align = WordSize
	}
	if !isPowerOfTwo(align) {
		return normRequest{}, fmt.Errorf("%w: alignment %d is not a power of two", ErrBadRequest, r.Alignment)
	}
	if align < WordSize {
		align = WordSize
	}
	if r.Prefix > math.MaxUint64-WordSize || r.Body > math.MaxUint64-WordSize {
		return normRequest{}, fmt.Errorf("%w: prefix %d, body %d too large", ErrBadRequest, r.Prefix, r.Body)
	}
	n := normRequest{
		prefix: alignUp(r.Prefix, uint64(WordSize)),
		body:   alignUp(r.Body, uint64(WordSize)),
		align:  align,
	}
	if n.prefix > math.MaxUint64-n.body {
		return normRequest{}, fmt.Errorf("%w: prefix %d plus body %d overflows", ErrBadRequest, r.Prefix, r.Body)
	}
	n.size = n.prefix + n.body
	if n.size == 0 {
		return normRequest{}, fmt.Errorf("%w: empty fragment", ErrBadRequest)
	}
	return n, nil
}

// Allocate serves every request or none. Fragments are returned in request
// order and are zero-filled.
func (a *Allocator) Allocate(reqs []Request) ([]Fragment, error) {
	if a.released {
		return nil, ErrReleased
	}
	norm := make([]normRequest, len(reqs))
	order := make([]int, len(reqs))
	for i, r := range reqs {
		n, err := normalize(r)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		norm[i] = n
		order[i] = i
	}
	sort.SliceStable(order, func(x, y int) bool {
		return norm[order[x]].size > norm[order[y]].size
	})

	out := make([]Fragment, len(reqs))
	var fromLists, rest []int
	for _, i := range order {
		if !a.opts.Isolated {
			if f, ok := a.takeFromLists(norm[i]); ok {
				out[i] = f
				fromLists = append(fromLists, i)
				continue
			}
		}
		rest = append(rest, i)
	}

	if len(rest) > 0 {
		if err := a.carveSegment(norm, rest, out); err != nil {
			// Hand back what was taken, unsplit and unmerged.
			for _, i := range fromLists {
				a.addBlock(out[i].Start(), out[i].Size)
			}
			a.stats.FailedRequests++
			return nil, err
		}
	}

	for _, f := range out {
		clear(a.mustBytes(f.Start(), f.Size))
	}
	return out, nil
}

// takeFromLists tries the lists from the smallest block size class able to
// hold r upwards.
func (a *Allocator) takeFromLists(r normRequest) (Fragment, bool) {
	for k := ListWord; k < numLists; k++ {
		if !a.listMayHold(k, r.size) {
			continue
		}
		b, p, ok := a.lists[k].take(r)
		if !ok {
			continue
		}
		if lead := uint64(p.start - b.addr); lead > 0 {
			a.addBlock(b.addr, lead)
		}
		if tail := uint64(b.end() - (p.start + Address(r.size))); tail > 0 {
			a.addBlock(p.start+Address(r.size), tail)
		}
		a.stats.ListHits[k]++
		logger.L.Debug("alloc: free list hit", "list", k.String(), "size", r.size, "align", r.align)
		return Fragment{Address: p.body, Prefix: r.prefix, Size: r.size}, true
	}
	return Fragment{}, false
}

// listMayHold reports whether list k can contain a block of at least size bytes.
func (a *Allocator) listMayHold(k ListKind, size uint64) bool {
	switch k {
	case ListWord:
		return size == WordSize
	case ListTiny:
		return size < a.opts.TinyLimit
	case ListSmall:
		return size < a.opts.LargeLimit
	}
	return true
}

// carveSegment packs the requests listed in idx, in order, into one new segment.
func (a *Allocator) carveSegment(norm []normRequest, idx []int, out []Fragment) error {
	total := uint64(WordSize)
	for _, i := range idx {
		n := norm[i].size + norm[i].align
		if n < norm[i].size || total > math.MaxUint64-n {
			return fmt.Errorf("%w: segment size overflows", ErrOutOfMemory)
		}
		total += n
	}
	if !a.opts.Isolated {
		inc := a.opts.SegmentIncrement
		if total > math.MaxUint64-(inc-1) {
			return fmt.Errorf("%w: segment size overflows", ErrOutOfMemory)
		}
		total = (total + inc - 1) / inc * inc
	}
	mem, err := a.opts.Source.Acquire(total)
	if err != nil {
		logger.L.Warn("alloc: segment acquisition failed", "bytes", total, "err", err)
		return fmt.Errorf("%w: acquiring %d-byte segment: %v", ErrOutOfMemory, total, err)
	}
	seg := newSegment(mem)
	a.insertSegment(seg)
	a.stats.SegmentAllocs++
	logger.L.Debug("alloc: new segment", "base", fmt.Sprintf("%#x", uintptr(seg.base)), "bytes", seg.Size(), "fragments", len(idx))

	cursor := seg.base + WordSize
	for _, i := range idx {
		r := norm[i]
		body := Address(alignUp(uint64(cursor)+r.prefix, r.align))
		start := body - Address(r.prefix)
		if start > cursor {
			a.addBlock(cursor, uint64(start-cursor))
		}
		out[i] = Fragment{Address: body, Prefix: r.prefix, Size: r.size}
		cursor = start + Address(r.size)
	}
	if cursor < seg.End() {
		a.addBlock(cursor, uint64(seg.End()-cursor))
	}
	return nil
}

func (a *Allocator) insertSegment(seg *Segment) {
	i := sort.Search(len(a.segments), func(i int) bool { return a.segments[i].base > seg.base })
	a.segments = append(a.segments, nil)
	copy(a.segments[i+1:], a.segments[i:])
	a.segments[i] = seg
}

// listFor picks the list a free block of size bytes belongs to.
func (a *Allocator) listFor(size uint64) ListKind {
	switch {
	case size == WordSize:
		return ListWord
	case size < a.opts.TinyLimit:
		return ListTiny
	case size < a.opts.LargeLimit:
		return ListSmall
	}
	return ListLarge
}

func (a *Allocator) addBlock(addr Address, size uint64) {
	if a.opts.Isolated || size == 0 {
		return
	}
	k := a.listFor(size)
	a.lists[k].push(&freeBlock{addr: addr, size: size})
}

// Free returns [start, start+size) to the free lists. A range that overlaps
// a block already on a list is rejected. Isolated allocators ignore frees;
// their memory goes back with Release.
func (a *Allocator) Free(start Address, size uint64) error {
	if a.released {
		return ErrReleased
	}
	if a.opts.Isolated {
		return nil
	}
	if size == 0 || uint64(start)%WordSize != 0 || size%WordSize != 0 {
		return fmt.Errorf("%w: [%#x+%d] is not word aligned", ErrBadFree, uintptr(start), size)
	}
	if seg := a.SegmentOf(start); seg == nil || !seg.Contains(start, size) {
		return fmt.Errorf("%w: [%#x+%d] outside any segment", ErrBadFree, uintptr(start), size)
	}
	if b := a.freeOverlapping(start, start+Address(size)); b != nil {
		return fmt.Errorf("%w: [%#x+%d] overlaps free block [%#x+%d]", ErrBadFree, uintptr(start), size, uintptr(b.addr), b.size)
	}
	a.addBlock(start, size)
	a.stats.Frees++
	return nil
}

// freeOverlapping returns a free block intersecting [start, end), if any.
func (a *Allocator) freeOverlapping(start, end Address) *freeBlock {
	for k := range a.lists {
		for n := a.lists[k].head; n != nil; n = n.next {
			if n.addr < end && start < n.end() {
				return n
			}
		}
	}
	return nil
}

// FreeFragments frees every fragment, stopping at the first error.
func (a *Allocator) FreeFragments(frags []Fragment) error {
	for _, f := range frags {
		if err := a.Free(f.Start(), f.Size); err != nil {
			return err
		}
	}
	return nil
}

// Release returns every segment to the source. The allocator is unusable afterwards.
func (a *Allocator) Release() error {
	if a.released {
		return nil
	}
	var firstErr error
	for _, seg := range a.segments {
		if err := a.opts.Source.Release(seg.mem); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.segments = nil
	for k := range a.lists {
		a.lists[k] = freeList{kind: ListKind(k)}
	}
	a.released = true
	return firstErr
}

// SegmentOf returns the segment holding addr, or nil.
func (a *Allocator) SegmentOf(addr Address) *Segment {
	i := sort.Search(len(a.segments), func(i int) bool { return a.segments[i].base > addr }) - 1
	if i < 0 || addr >= a.segments[i].End() {
		return nil
	}
	return a.segments[i]
}

// Segments returns the allocator's segments ordered by address.
func (a *Allocator) Segments() []*Segment {
	return append([]*Segment(nil), a.segments...)
}

// Bytes returns the n bytes at addr.
func (a *Allocator) Bytes(addr Address, n uint64) ([]byte, error) {
	seg := a.SegmentOf(addr)
	if seg == nil || addr+Address(n) > seg.End() {
		return nil, fmt.Errorf("alloc: [%#x+%d] outside any segment", uintptr(addr), n)
	}
	return seg.bytes(addr, n), nil
}

func (a *Allocator) mustBytes(addr Address, n uint64) []byte {
	b, err := a.Bytes(addr, n)
	if err != nil {
		panic(err)
	}
	return b
}

// Stats returns a snapshot of allocator counters.
func (a *Allocator) Stats() Stats {
	s := a.stats
	s.Segments = len(a.segments)
	s.SegmentBytes = 0
	for _, seg := range a.segments {
		s.SegmentBytes += seg.Size()
	}
	s.FreeBytes = 0
	for k := range a.lists {
		s.FreeBytes += a.lists[k].bytes
	}
	return s
}

// FreeBlocks returns the number of blocks in list k.
func (a *Allocator) FreeBlocks(k ListKind) int { return a.lists[k].count }
