package rt

import "github.com/daimatz/ramclass/pkg/alloc"

// FragmentKind names a fragment of a runtime class.
type FragmentKind uint8

const (
	FragHeader FragmentKind = iota
	FragMethods
	FragSuperclasses
	FragInstanceDescription
	FragITable
	FragStatics
	FragConstantPool
	FragCallSites
	FragMethodTypes
)

var fragmentNames = [...]string{
	FragHeader:              "header",
	FragMethods:             "methods",
	FragSuperclasses:        "superclasses",
	FragInstanceDescription: "instance-description",
	FragITable:              "itable",
	FragStatics:             "statics",
	FragConstantPool:        "constant-pool",
	FragCallSites:           "call-sites",
	FragMethodTypes:         "method-types",
}

func (k FragmentKind) String() string {
	if int(k) < len(fragmentNames) {
		return fragmentNames[k]
	}
	return "unknown"
}

// Fragment is one allocated piece of a class.
type Fragment struct {
	Kind FragmentKind
	alloc.Fragment
}

// Layout records where a class lives in its loader's memory.
type Layout struct {
	Fragments []Fragment

	// Header is the address of the class header; vtable slot 0 follows it.
	Header  alloc.Address
	Methods alloc.Address

	// ITable heads the class's itable chain, which may start in a
	// superclass or in the shared array itable.
	ITable alloc.Address

	// InstanceDescription is 0 when the reference map fits in the header.
	InstanceDescription alloc.Address

	// PrevInSegment links to the class allocated before this one in the
	// header's segment.
	PrevInSegment alloc.Address
}

// Fragment returns the fragment of kind k, if present.
func (l *Layout) Fragment(k FragmentKind) (Fragment, bool) {
	for _, f := range l.Fragments {
		if f.Kind == k {
			return f, true
		}
	}
	return Fragment{}, false
}
