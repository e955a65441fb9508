package dispatch

import (
	"fmt"

	"github.com/daimatz/ramclass/pkg/rt"
)

// Finalize binds a built vtable to runtime methods. Pending slots take
// locals[slot.Local]; every conflict slot created by the build is
// represented by the method conflict returns for it. It returns the
// number of conflict methods requested.
func Finalize(vt rt.VTable, locals []*rt.Method, conflict func(rt.Slot) *rt.Method) (int, error) {
	n := 0
	for i, s := range vt {
		switch s.Kind {
		case rt.SlotConcrete:
		case rt.SlotPendingLocal:
			if s.Local < 0 || s.Local >= len(locals) || locals[s.Local] == nil {
				return n, fmt.Errorf("dispatch: slot %d: no runtime method for local #%d", i, s.Local)
			}
			vt[i] = rt.Concrete(locals[s.Local])
		case rt.SlotDefaultConflict:
			if s.Method.Conflict {
				continue
			}
			vt[i] = rt.DefaultConflict(conflict(s), s.Candidates)
			n++
		case rt.SlotEquivalenceSet:
			panic(fmt.Sprintf("dispatch: unresolved equivalence set in slot %d", i))
		default:
			panic(fmt.Sprintf("dispatch: unknown slot kind %d in slot %d", s.Kind, i))
		}
	}
	return n, nil
}
