package pool

import (
	"sync"
	"sync/atomic"
)

// StopSignal is a flag that can be raised once and never lowered.
// The zero value is not usable, create one with NewStopSignal.
type StopSignal struct {
	set  atomic.Bool
	once sync.Once
	done chan struct{}
}

// NewStopSignal returns a lowered signal.
func NewStopSignal() *StopSignal {
	return &StopSignal{done: make(chan struct{})}
}

// Set raises the signal. It returns true only for the call that raised it;
// every later call is a no-op returning false.
func (s *StopSignal) Set() bool {
	raised := false
	s.once.Do(func() {
		s.set.Store(true)
		close(s.done)
		raised = true
	})
	return raised
}

// IsSet reports whether the signal has been raised.
func (s *StopSignal) IsSet() bool {
	return s.set.Load()
}

// Done returns a channel closed once the signal is raised.
func (s *StopSignal) Done() <-chan struct{} {
	return s.done
}
