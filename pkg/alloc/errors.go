package alloc

import "errors"

var (
	// ErrOutOfMemory indicates that neither the free lists nor a new segment
	// could satisfy a request.
	ErrOutOfMemory = errors.New("alloc: out of memory")

	// ErrBadRequest indicates a malformed fragment request.
	ErrBadRequest = errors.New("alloc: bad fragment request")

	// ErrBadFree indicates a freed range outside any segment or misaligned.
	ErrBadFree = errors.New("alloc: bad free")

	// ErrSourceExhausted is returned by a segment source that has no memory left.
	ErrSourceExhausted = errors.New("alloc: segment source exhausted")

	// ErrReleased indicates use of an allocator after Release.
	ErrReleased = errors.New("alloc: allocator released")
)
