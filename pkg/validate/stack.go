package validate

import (
	"fmt"

	"github.com/daimatz/ramclass/pkg/rt"
)

type loadingFrame struct {
	loader rt.Loader
	name   string
}

// LoadingStack is one thread's stack of classes currently being loaded. It
// is not safe for concurrent use; each loading goroutine owns one.
type LoadingStack struct {
	limit  int
	frames []loadingFrame
}

// NewLoadingStack creates a stack that refuses to grow past limit entries.
func NewLoadingStack(limit int) *LoadingStack {
	return &LoadingStack{limit: limit}
}

// Push records that (loader, name) is being loaded. It fails with
// Circularity when the class is already on the stack and with
// StackOverflow when the stack is full.
func (s *LoadingStack) Push(loader rt.Loader, name string) error {
	for _, f := range s.frames {
		if f.loader == loader && f.name == name {
			return &Error{Kind: Circularity, Class: name, Reason: "class is already being loaded by " + loaderName(loader)}
		}
	}
	if s.limit > 0 && len(s.frames) >= s.limit {
		return &Error{Kind: StackOverflow, Class: name, Reason: fmt.Sprintf("more than %d classes loading", s.limit)}
	}
	s.frames = append(s.frames, loadingFrame{loader: loader, name: name})
	return nil
}

// Pop removes the innermost entry.
func (s *LoadingStack) Pop() {
	if len(s.frames) == 0 {
		panic("validate: pop of empty loading stack")
	}
	s.frames = s.frames[:len(s.frames)-1]
}

// Depth returns the number of classes being loaded.
func (s *LoadingStack) Depth() int { return len(s.frames) }

// Names returns the class names on the stack, outermost first.
func (s *LoadingStack) Names() []string {
	names := make([]string, len(s.frames))
	for i, f := range s.frames {
		names[i] = f.name
	}
	return names
}

func loaderName(l rt.Loader) string {
	if l == nil {
		return "<nil>"
	}
	return l.Name()
}
