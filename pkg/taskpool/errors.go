package taskpool

import (
	"errors"
	"fmt"
)

// ErrCancelled is the terminal error of a task whose handle was cancelled
// before completion. It is distinct from a task failure so callers can tell
// "asked to stop" from "errored".
var ErrCancelled = errors.New("taskpool: task cancelled")

// ErrPoolClosed is the terminal error of tasks spawned after Shutdown.
var ErrPoolClosed = errors.New("taskpool: pool is shut down")

// ErrBackendUnavailable is returned by New when the requested backend cannot
// be satisfied on this configuration. It is surfaced at construction, never
// at spawn time.
var ErrBackendUnavailable = errors.New("taskpool: requested backend is unavailable")

// ConfigError reports invalid pool construction parameters.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "taskpool: invalid configuration: " + e.Reason
}

// TaskFailure captures a panic raised by a task body. The panic is recovered
// at the run boundary and never crosses into another task's execution; it is
// observed only when the owning handle is awaited or the enclosing scope
// joins.
type TaskFailure struct {
	// Recovered is the value passed to panic.
	Recovered interface{}

	// Stack is the stack trace captured at recovery.
	Stack []byte
}

func (f *TaskFailure) Error() string {
	return fmt.Sprintf("taskpool: task panicked: %v", f.Recovered)
}
