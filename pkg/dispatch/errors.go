package dispatch

import (
	"fmt"

	"github.com/daimatz/ramclass/pkg/rt"
)

// FinalOverrideError reports a local method overriding a final ancestor method.
type FinalOverrideError struct {
	Class      string
	Method     rt.NameSig
	Overridden string
}

func (e *FinalOverrideError) Error() string {
	return fmt.Sprintf("class %s overrides final method %s (declared in %s)", e.Class, e.Method, e.Overridden)
}

// LoaderConstraintError reports two loaders resolving a type in a shared
// method signature to different classes. Method is empty when the
// violation surfaces while a class is being published.
type LoaderConstraintError struct {
	LoaderA rt.Loader
	ClassA  string
	LoaderB rt.Loader
	ClassB  string
	Method  rt.NameSig
	Type    string
}

func (e *LoaderConstraintError) Error() string {
	if e.Method.Name == "" {
		return fmt.Sprintf("loader constraint violation: %s in %s differs from %s in %s",
			e.ClassA, loaderName(e.LoaderA), e.ClassB, loaderName(e.LoaderB))
	}
	return fmt.Sprintf("loader constraint violation for %s: %s in %s and %s in %s see different %s",
		e.Method, e.ClassA, loaderName(e.LoaderA), e.ClassB, loaderName(e.LoaderB), e.Type)
}

func loaderName(l rt.Loader) string {
	if l == nil {
		return "<nil>"
	}
	return "loader " + l.Name()
}
