package bridge

import (
	"errors"
	"fmt"
)

// FatalError is returned by Tick when the bridge hits a socket failure it
// cannot recover from. The host loop is expected to stop when it sees one.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("bridge %s failed: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsFatal reports whether err (or anything it wraps) is a *FatalError.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}
