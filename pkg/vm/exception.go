package vm

import (
	"errors"
	"fmt"

	"github.com/daimatz/ramclass/pkg/alloc"
	"github.com/daimatz/ramclass/pkg/dispatch"
	"github.com/daimatz/ramclass/pkg/validate"
)

var (
	// ErrClassNotFound is returned by a Source that does not hold a class.
	ErrClassNotFound = errors.New("class not found")
	// ErrNativeOutOfMemory reports an allocation that failed again after a full GC.
	ErrNativeOutOfMemory = errors.New("native memory exhausted")
	// ErrLoaderUnloaded is returned for operations on an unloaded loader.
	ErrLoaderUnloaded = errors.New("class loader unloaded")
)

// JavaError is a class-loading failure as the Java exception it raises.
type JavaError struct {
	// ClassName is the exception class, e.g. java/lang/VerifyError.
	ClassName string
	Message   string
	Err       error
}

func (e *JavaError) Error() string {
	return fmt.Sprintf("%s: %s", e.ClassName, e.Message)
}

func (e *JavaError) Unwrap() error { return e.Err }

// exceptionClass picks the Java exception for a loading error, or "" when
// the error has no Java equivalent.
func exceptionClass(err error) string {
	var verr *validate.Error
	var ferr *dispatch.FinalOverrideError
	var lerr *dispatch.LoaderConstraintError
	switch {
	case errors.As(err, &verr):
		switch verr.Kind {
		case validate.IllegalFinalSuperclass:
			return "java/lang/VerifyError"
		case validate.IllegalInterfaceSuperclass, validate.NotAnInterface, validate.SealedPermitViolation:
			return "java/lang/IncompatibleClassChangeError"
		case validate.ModuleVisibilityViolation:
			return "java/lang/IllegalAccessError"
		case validate.Circularity:
			return "java/lang/ClassCircularityError"
		case validate.StackOverflow:
			return "java/lang/StackOverflowError"
		}
	case errors.As(err, &ferr):
		return "java/lang/VerifyError"
	case errors.As(err, &lerr):
		return "java/lang/LinkageError"
	case errors.Is(err, ErrNativeOutOfMemory), errors.Is(err, alloc.ErrOutOfMemory):
		return "java/lang/OutOfMemoryError"
	case errors.Is(err, ErrClassNotFound):
		return "java/lang/NoClassDefFoundError"
	}
	return ""
}

// javaError wraps err in a *JavaError. Errors that already are one, or
// that have no Java equivalent, are returned unchanged.
func javaError(err error) error {
	if err == nil {
		return nil
	}
	var jerr *JavaError
	if errors.As(err, &jerr) {
		return err
	}
	name := exceptionClass(err)
	if name == "" {
		return err
	}
	return &JavaError{ClassName: name, Message: err.Error(), Err: err}
}
