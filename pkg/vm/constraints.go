package vm

import (
	"github.com/daimatz/ramclass/pkg/dispatch"
	"github.com/daimatz/ramclass/pkg/rom"
	"github.com/daimatz/ramclass/pkg/rt"
)

type constraint struct {
	name string
	a, b *ClassLoader
}

// constraintTable records that two loaders must resolve a class name to
// the same class. It is guarded by the VM lock.
type constraintTable struct {
	entries []constraint
}

var _ dispatch.ConstraintChecker = (*constraintTable)(nil)

// Agree compares every class named in signature as already seen by a and b
// and records a constraint for each name.
func (t *constraintTable) Agree(signature string, a, b rt.Loader) (string, bool) {
	la, okA := a.(*ClassLoader)
	lb, okB := b.(*ClassLoader)
	if !okA || !okB || la == lb {
		return "", true
	}
	for _, name := range rom.ReferencedTypes(signature) {
		if !t.consistent(name, la, lb) {
			return name, false
		}
	}
	for _, name := range rom.ReferencedTypes(signature) {
		t.add(name, la, lb)
	}
	return "", true
}

// consistent reports whether a and b, together with every loader already
// constrained against either, agree on name.
func (t *constraintTable) consistent(name string, a, b *ClassLoader) bool {
	var seen *rt.Class
	for _, l := range t.group(name, a, b) {
		c := l.lookup(name)
		if c == nil {
			continue
		}
		if seen != nil && seen != c {
			return false
		}
		seen = c
	}
	return true
}

// group returns the loaders transitively constrained on name with a and b.
func (t *constraintTable) group(name string, a, b *ClassLoader) []*ClassLoader {
	in := map[*ClassLoader]bool{a: true, b: true}
	out := []*ClassLoader{a, b}
	for i := 0; i < len(out); i++ {
		for _, e := range t.entries {
			if e.name != name {
				continue
			}
			for _, pair := range [2][2]*ClassLoader{{e.a, e.b}, {e.b, e.a}} {
				if pair[0] == out[i] && !in[pair[1]] {
					in[pair[1]] = true
					out = append(out, pair[1])
				}
			}
		}
	}
	return out
}

func (t *constraintTable) add(name string, a, b *ClassLoader) {
	for _, e := range t.entries {
		if e.name == name && (e.a == a && e.b == b || e.a == b && e.b == a) {
			return
		}
	}
	t.entries = append(t.entries, constraint{name: name, a: a, b: b})
}

// check reports a violation if c becoming visible as name in l contradicts
// a recorded constraint.
func (t *constraintTable) check(l *ClassLoader, name string, c *rt.Class) error {
	for _, other := range t.group(name, l, l) {
		if other == l {
			continue
		}
		if oc := other.lookup(name); oc != nil && oc != c {
			return &dispatch.LoaderConstraintError{
				LoaderA: l, ClassA: name,
				LoaderB: other, ClassB: oc.Name,
				Type: name,
			}
		}
	}
	return nil
}

// drop forgets every constraint involving l.
func (t *constraintTable) drop(l *ClassLoader) {
	kept := t.entries[:0]
	for _, e := range t.entries {
		if e.a != l && e.b != l {
			kept = append(kept, e)
		}
	}
	clear(t.entries[len(kept):])
	t.entries = kept
}
