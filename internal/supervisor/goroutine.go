package supervisor

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/rngpool/internal/pool"
)

// Exit codes reported by goroutine workers.
const (
	exitFailed   = 1
	exitPanicked = 2
)

// WorkFunc is the body of an in-process worker. A returned error is reported as
// exit status 1 and a panic as exit status 2.
type WorkFunc func(index int, stop *pool.StopSignal, sink pool.Sink) error

// GoroutineSpawner runs workers as goroutines of the coordinator process. They
// share the stop signal and channel directly.
//
// A goroutine cannot be preempted, so Kill only marks the unit; a worker that
// ignores the stop signal is abandoned by the shutdown escalation.
type GoroutineSpawner struct {
	Interval    time.Duration
	SendTimeout time.Duration
	// Work overrides the default sampling loop.
	Work WorkFunc
}

func (s *GoroutineSpawner) Spawn(_ context.Context, index int, stop *pool.StopSignal, ch *pool.Channel) (Unit, error) {
	work := s.Work
	if work == nil {
		work = s.sample
	}

	u := &goroutineUnit{
		index: index,
		name:  WorkerName(index),
		pid:   os.Getpid(),
		exit:  newExitState(),
	}
	go u.run(work, stop, ch)
	return u, nil
}

func (s *GoroutineSpawner) sample(index int, stop *pool.StopSignal, sink pool.Sink) error {
	if s.Interval <= 0 {
		return fmt.Errorf("interval must be > 0, got %v", s.Interval)
	}
	w := pool.NewWorker(index, s.Interval)
	if s.SendTimeout > 0 {
		w.SendTimeout = s.SendTimeout
	}
	w.Run(stop, sink)
	return nil
}

type goroutineUnit struct {
	index  int
	name   string
	pid    int
	exit   *exitState
	killed atomic.Bool
}

func (u *goroutineUnit) run(work WorkFunc, stop *pool.StopSignal, ch *pool.Channel) {
	code := 0
	defer func() {
		if r := recover(); r != nil {
			code = exitPanicked
		}
		u.exit.finish(code)
	}()

	if err := work(u.index, stop, ch); err != nil {
		code = exitFailed
	}
}

func (u *goroutineUnit) Index() int                      { return u.index }
func (u *goroutineUnit) Name() string                    { return u.name }
func (u *goroutineUnit) PID() int                        { return u.pid }
func (u *goroutineUnit) Join(timeout time.Duration) bool { return u.exit.join(timeout) }
func (u *goroutineUnit) Alive() bool                     { return u.exit.alive() }
func (u *goroutineUnit) ExitCode() (int, bool)           { return u.exit.exitCode() }

// Kill marks the unit killed. The goroutine keeps running until it returns on
// its own.
func (u *goroutineUnit) Kill() error {
	u.killed.Store(true)
	return nil
}

// Killed reports whether Kill was called.
func (u *goroutineUnit) Killed() bool {
	return u.killed.Load()
}
