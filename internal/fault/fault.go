// Package fault classifies errors as fatal to the run or recoverable at the
// call boundary.
package fault

import "errors"

// Class tags an error with its propagation policy.
type Class int

const (
	// Unclassified errors carry no Class method anywhere in their chain.
	Unclassified Class = iota
	// Fatal errors end the run: the host reports them and exits non-zero.
	Fatal
	// Recoverable errors are returned to the caller and never crash the host.
	Recoverable
)

func (c Class) String() string {
	switch c {
	case Fatal:
		return "fatal"
	case Recoverable:
		return "recoverable"
	default:
		return "unclassified"
	}
}

// Classified is implemented by errors that declare their own class.
type Classified interface {
	error
	Class() Class
}

// ClassOf returns the class of the first classified error in err's chain.
func ClassOf(err error) Class {
	var c Classified
	if errors.As(err, &c) {
		return c.Class()
	}
	return Unclassified
}

// IsFatal reports whether err must terminate the run.
func IsFatal(err error) bool {
	return ClassOf(err) == Fatal
}
