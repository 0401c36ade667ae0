package builder

import (
	"errors"
	"fmt"
)

// ErrStreamingNotSupported is returned when a File carries a stream instead
// of materialized contents. Streams are rejected before any file is scanned.
var ErrStreamingNotSupported = errors.New("streaming not supported")

// ParseError reports a module that could not be parsed. A parse error fails
// the whole bundle request.
type ParseError struct {
	Path string
	Err  error
}

func (err *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", err.Path, err.Err)
}

func (err *ParseError) Unwrap() error {
	return err.Err
}

// CycleWarning names two modules that depend on each other. Cycles do not
// fail a build; they are reported on the resulting Bundle.
type CycleWarning struct {
	A, B string
}

func (w CycleWarning) String() string {
	return fmt.Sprintf("circular dependency between: %s and %s", w.A, w.B)
}
