package service

import "fmt"

type BuildState int

const (
	BuildStateSkipped BuildState = iota
	BuildStateSuccess
	BuildStateDiscoveryFailed
	BuildStateBuildFailed
	BuildStateWriteFailed
	BuildStatePushFailed
	BuildStateCheckFailed
)

func (s BuildState) String() string {
	switch s {
	case BuildStateSkipped:
		return "skipped"
	case BuildStateSuccess:
		return "success"
	case BuildStateDiscoveryFailed:
		return "discovery_failed"
	case BuildStateBuildFailed:
		return "build_failed"
	case BuildStateWriteFailed:
		return "write_failed"
	case BuildStatePushFailed:
		return "push_failed"
	case BuildStateCheckFailed:
		return "check_failed"
	}
	return fmt.Sprintf("BuildState(%d)", int(s))
}

// Status is the outcome of the last build of a bundle.
type Status struct {
	State   BuildState
	Message string
}

// BuildError reports a failed bundle build and the step it failed in.
type BuildError struct {
	Bundle string
	State  BuildState
	Err    error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("bundle %s: %s: %v", e.Bundle, e.State, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}
