package alloc

import (
	"fmt"
	"sync"
	"unsafe"
)

// Source supplies raw memory for segments.
type Source interface {
	Acquire(size uint64) ([]byte, error)
	Release(mem []byte) error
}

// HeapSource serves segments from the Go heap.
type HeapSource struct{}

// Acquire returns size zeroed bytes starting on a word boundary.
func (HeapSource) Acquire(size uint64) ([]byte, error) {
	if size == 0 {
		return nil, fmt.Errorf("alloc: empty segment")
	}
	words := make([]uint64, (size+WordSize-1)/WordSize)
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), size), nil
}

func (HeapSource) Release([]byte) error { return nil }

// LimitedSource caps the bytes another Source may hand out.
type LimitedSource struct {
	src Source

	mu     sync.Mutex
	budget uint64
	used   uint64
}

// NewLimitedSource wraps src with a byte budget.
func NewLimitedSource(src Source, budget uint64) *LimitedSource {
	return &LimitedSource{src: src, budget: budget}
}

func (s *LimitedSource) Acquire(size uint64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.used+size > s.budget {
		return nil, fmt.Errorf("%w: %d bytes requested, %d of %d in use", ErrSourceExhausted, size, s.used, s.budget)
	}
	mem, err := s.src.Acquire(size)
	if err != nil {
		return nil, err
	}
	s.used += uint64(len(mem))
	return mem, nil
}

func (s *LimitedSource) Release(mem []byte) error {
	s.mu.Lock()
	s.used -= uint64(len(mem))
	s.mu.Unlock()
	return s.src.Release(mem)
}

// Grow raises the budget by n bytes.
func (s *LimitedSource) Grow(n uint64) {
	s.mu.Lock()
	s.budget += n
	s.mu.Unlock()
}

// Used returns the bytes currently handed out.
func (s *LimitedSource) Used() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

// NewSource returns the mmap-backed source when useMmap is set and the
// platform supports it, otherwise the heap source.
func NewSource(useMmap bool) Source {
	if useMmap && mmapSupported {
		return MmapSource{}
	}
	return HeapSource{}
}
