package pool

import (
	"math/rand/v2"
	"os"
	"sync/atomic"
	"time"
)

// DefaultSendTimeout bounds how long a worker waits for room in its sink.
const DefaultSendTimeout = 200 * time.Millisecond

// Worker produces one random sample per interval until stopped.
type Worker struct {
	Index       int
	Interval    time.Duration
	SendTimeout time.Duration
	ProducerID  int

	// Now and Value are overridable for tests.
	Now   func() time.Time
	Value func() int

	faults atomic.Uint64
}

// NewWorker returns a worker stamped with the current process id.
func NewWorker(index int, interval time.Duration) *Worker {
	return &Worker{
		Index:       index,
		Interval:    interval,
		SendTimeout: DefaultSendTimeout,
		ProducerID:  os.Getpid(),
		Now:         time.Now,
		Value:       func() int { return rand.IntN(MaxValue + 1) },
	}
}

// Run loops until stop is set. Failed or faulting sends are swallowed so that
// backpressure never ends the loop.
func (w *Worker) Run(stop *StopSignal, sink Sink) {
	for !stop.IsSet() {
		s := NewSample(w.ProducerID, w.Index, w.Value(), w.Now())
		w.send(sink, s)

		timer := time.NewTimer(w.Interval)
		select {
		case <-timer.C:
		case <-stop.Done():
			timer.Stop()
			return
		}
	}
}

// Faults returns how many sends panicked inside the sink.
func (w *Worker) Faults() uint64 { return w.faults.Load() }

func (w *Worker) send(sink Sink, s Sample) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			w.faults.Add(1)
			ok = false
		}
	}()
	return sink.Send(s, w.SendTimeout)
}
