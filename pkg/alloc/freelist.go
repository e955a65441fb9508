package alloc

// freeBlock is one free range inside a segment. Nodes live outside the
// managed memory.
type freeBlock struct {
	addr Address
	size uint64
	next *freeBlock

	// maxSize is the largest size at or after this node. Large list only.
	maxSize uint64
}

func (b *freeBlock) end() Address { return b.addr + Address(b.size) }

type freeList struct {
	kind  ListKind
	head  *freeBlock
	count int
	bytes uint64
}

func (l *freeList) push(b *freeBlock) {
	b.next = l.head
	if l.kind == ListLarge {
		b.maxSize = b.size
		if l.head != nil && l.head.maxSize > b.maxSize {
			b.maxSize = l.head.maxSize
		}
	}
	l.head = b
	l.count++
	l.bytes += b.size
}

// remove unlinks cur, whose predecessor is prev (nil at the head).
func (l *freeList) remove(prev, cur *freeBlock) {
	if prev == nil {
		l.head = cur.next
	} else {
		prev.next = cur.next
	}
	l.count--
	l.bytes -= cur.size
	if l.kind == ListLarge && prev != nil {
		l.refreshBefore(cur.next)
	}
	cur.next = nil
}

// refreshBefore recomputes maxSize for every node preceding stop. Nodes at
// and after stop are unaffected by the removal.
func (l *freeList) refreshBefore(stop *freeBlock) {
	var preceding []*freeBlock
	for n := l.head; n != nil && n != stop; n = n.next {
		preceding = append(preceding, n)
	}
	for i := len(preceding) - 1; i >= 0; i-- {
		n := preceding[i]
		n.maxSize = n.size
		if n.next != nil && n.next.maxSize > n.maxSize {
			n.maxSize = n.next.maxSize
		}
	}
}

// maxSize returns the largest block in a large list.
func (l *freeList) maxSize() uint64 {
	if l.head == nil {
		return 0
	}
	return l.head.maxSize
}

// placement is the position of a request inside a free block.
type placement struct {
	start Address
	body  Address
}

// fit reports where req would land inside b, honouring the body alignment.
func fit(b *freeBlock, r normRequest) (placement, bool) {
	body := Address(alignUp(uint64(b.addr)+r.prefix, r.align))
	start := body - Address(r.prefix)
	if start+Address(r.size) > b.end() {
		return placement{}, false
	}
	return placement{start: start, body: body}, true
}

// take finds the first block in l that can hold r and unlinks it.
func (l *freeList) take(r normRequest) (*freeBlock, placement, bool) {
	if l.kind == ListLarge && r.size > l.maxSize() {
		return nil, placement{}, false
	}
	var prev *freeBlock
	for cur := l.head; cur != nil; prev, cur = cur, cur.next {
		if p, ok := fit(cur, r); ok {
			l.remove(prev, cur)
			return cur, p, true
		}
	}
	return nil, placement{}, false
}

func (l *freeList) each(fn func(*freeBlock)) {
	for n := l.head; n != nil; n = n.next {
		fn(n)
	}
}
