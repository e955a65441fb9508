package validate

import "fmt"

// Kind classifies a hierarchy violation.
type Kind int

const (
	IllegalFinalSuperclass Kind = iota + 1
	IllegalInterfaceSuperclass
	NotAnInterface
	SealedPermitViolation
	ModuleVisibilityViolation
	Circularity
	StackOverflow
)

func (k Kind) String() string {
	switch k {
	case IllegalFinalSuperclass:
		return "illegal final superclass"
	case IllegalInterfaceSuperclass:
		return "illegal interface superclass"
	case NotAnInterface:
		return "implements non-interface"
	case SealedPermitViolation:
		return "sealed permit violation"
	case ModuleVisibilityViolation:
		return "module visibility violation"
	case Circularity:
		return "class circularity"
	case StackOverflow:
		return "class loading stack overflow"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error reports a rejected hierarchy.
type Error struct {
	Kind      Kind
	Class     string
	Supertype string
	Reason    string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Class)
	if e.Supertype != "" {
		msg += " (supertype " + e.Supertype + ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is matches another *Error of the same Kind, so errors.Is(err, ErrCircularity)
// works for any class.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Class == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrIllegalFinalSuperclass     = &Error{Kind: IllegalFinalSuperclass}
	ErrIllegalInterfaceSuperclass = &Error{Kind: IllegalInterfaceSuperclass}
	ErrNotAnInterface             = &Error{Kind: NotAnInterface}
	ErrSealedPermitViolation      = &Error{Kind: SealedPermitViolation}
	ErrModuleVisibilityViolation  = &Error{Kind: ModuleVisibilityViolation}
	ErrCircularity                = &Error{Kind: Circularity}
	ErrStackOverflow              = &Error{Kind: StackOverflow}
)
