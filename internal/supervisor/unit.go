package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/GriffinCanCode/rngpool/internal/pool"
)

// Unit is the coordinator's handle on one worker.
type Unit interface {
	Index() int
	Name() string
	PID() int

	// Join waits up to timeout for the worker to terminate and reports whether
	// it has. A zero timeout only polls.
	Join(timeout time.Duration) bool
	Alive() bool
	// ExitCode returns the termination status once exited is true.
	ExitCode() (code int, exited bool)
	// Kill forcefully terminates the worker without waiting for it.
	Kill() error
}

// Spawner starts workers wired to the shared stop signal and channel.
type Spawner interface {
	Spawn(ctx context.Context, index int, stop *pool.StopSignal, ch *pool.Channel) (Unit, error)
}

// WorkerName returns the display name of the worker at index.
func WorkerName(index int) string {
	return fmt.Sprintf("rng-worker-%d", index)
}

// exitState is shared by the unit implementations: done is closed exactly
// once, after code has been stored.
type exitState struct {
	done chan struct{}
	code int
}

func newExitState() *exitState {
	return &exitState{done: make(chan struct{})}
}

func (e *exitState) finish(code int) {
	e.code = code
	close(e.done)
}

func (e *exitState) join(timeout time.Duration) bool {
	select {
	case <-e.done:
		return true
	default:
	}
	if timeout <= 0 {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-e.done:
		return true
	case <-timer.C:
		return false
	}
}

func (e *exitState) alive() bool {
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

func (e *exitState) exitCode() (int, bool) {
	select {
	case <-e.done:
		return e.code, true
	default:
		return 0, false
	}
}
