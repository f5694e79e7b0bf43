package supervisor

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyStarted is returned when Run is called twice.
	ErrAlreadyStarted = errors.New("coordinator already started")
	// ErrAbandoned is wrapped by every AbandonedError.
	ErrAbandoned = errors.New("worker abandoned")
)

// ExitError reports a worker that terminated with a non-zero status.
type ExitError struct {
	Index int
	Name  string
	PID   int
	Code  int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("worker %s pid=%d exited with code=%d", e.Name, e.PID, e.Code)
}

// AbandonedError reports a worker still alive after it was killed and reaped.
type AbandonedError struct {
	Index int
	Name  string
	PID   int
}

func (e *AbandonedError) Error() string {
	return fmt.Sprintf("worker %s pid=%d still alive after kill", e.Name, e.PID)
}

// Unwrap lets errors.Is match ErrAbandoned.
func (e *AbandonedError) Unwrap() error {
	return ErrAbandoned
}
