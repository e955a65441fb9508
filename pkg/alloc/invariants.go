package alloc

import (
	"fmt"
	"sort"
)

type span struct {
	start, end Address
	what       string
}

// CheckInvariants verifies the free lists and, optionally, a set of live
// fragments: every range lies inside a segment past its back-link word, no
// two ranges overlap, each free block sits in the list its size selects, and
// the large-list max-size annotations are exact.
func (a *Allocator) CheckInvariants(live ...Fragment) error {
	var spans []span
	for k := range a.lists {
		l := &a.lists[k]
		count := 0
		var bytes uint64
		var err error
		l.each(func(b *freeBlock) {
			count++
			bytes += b.size
			if err != nil {
				return
			}
			if b.size == 0 || uint64(b.addr)%WordSize != 0 || b.size%WordSize != 0 {
				err = fmt.Errorf("alloc: %s list block [%#x+%d] misaligned", l.kind, uintptr(b.addr), b.size)
				return
			}
			if want := a.listFor(b.size); want != l.kind {
				err = fmt.Errorf("alloc: block of %d bytes in %s list, want %s", b.size, l.kind, want)
				return
			}
			spans = append(spans, span{b.addr, b.end(), l.kind.String() + " free block"})
		})
		if err != nil {
			return err
		}
		if count != l.count || bytes != l.bytes {
			return fmt.Errorf("alloc: %s list accounting off: %d/%d blocks, %d/%d bytes", l.kind, count, l.count, bytes, l.bytes)
		}
	}
	if err := a.lists[ListLarge].checkMaxSize(); err != nil {
		return err
	}
	for _, f := range live {
		spans = append(spans, span{f.Start(), f.End(), "fragment " + f.String()})
	}

	for _, s := range spans {
		seg := a.SegmentOf(s.start)
		if seg == nil || !seg.Contains(s.start, uint64(s.end-s.start)) {
			return fmt.Errorf("alloc: %s outside any segment", s.what)
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := 1; i < len(spans); i++ {
		if spans[i].start < spans[i-1].end {
			return fmt.Errorf("alloc: %s overlaps %s", spans[i].what, spans[i-1].what)
		}
	}
	return nil
}

func (l *freeList) checkMaxSize() error {
	var nodes []*freeBlock
	l.each(func(b *freeBlock) { nodes = append(nodes, b) })
	var largest uint64
	for i := len(nodes) - 1; i >= 0; i-- {
		if nodes[i].size > largest {
			largest = nodes[i].size
		}
		if nodes[i].maxSize != largest {
			return fmt.Errorf("alloc: large block [%#x+%d] caches max %d, want %d",
				uintptr(nodes[i].addr), nodes[i].size, nodes[i].maxSize, largest)
		}
	}
	return nil
}
