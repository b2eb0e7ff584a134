package supervisor

import (
	"errors"
	"fmt"
)

// Reason classifies a SpawnError
type Reason string

const (
	// ReasonNoBinary means no usable daemon binary was found
	ReasonNoBinary Reason = "no_binary"
	// ReasonSpawnFailed means the OS refused to start the binary
	ReasonSpawnFailed Reason = "spawn_failed"
)

var (
	// ErrNoBinary is wrapped by SpawnError when discovery finds nothing
	ErrNoBinary = errors.New("daemon binary not found")

	// ErrNotStopped is returned by Stop when the process survived SIGKILL
	ErrNotStopped = errors.New("daemon process could not be confirmed stopped")
)

// SpawnError is returned by Start when no process could be launched
type SpawnError struct {
	Reason Reason
	Path   string
	Err    error
}

func (e *SpawnError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("spawn daemon (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("spawn daemon %s (%s): %v", e.Path, e.Reason, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// DiedError is returned by Start when the process exited during the grace period
type DiedError struct {
	ExitCode int
}

func (e *DiedError) Error() string {
	return fmt.Sprintf("daemon process exited during startup with code %d", e.ExitCode)
}

// StopWarning reports a signalling problem during a stop that still ended with the process gone
type StopWarning struct {
	PID int
	Err error
}

func (w *StopWarning) Error() string {
	return fmt.Sprintf("stop daemon pid %d: %v", w.PID, w.Err)
}

func (w *StopWarning) Unwrap() error {
	return w.Err
}
