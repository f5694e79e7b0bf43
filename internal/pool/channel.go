package pool

import (
	"sync/atomic"
	"time"
)

// DefaultCapacity is the number of samples a Channel holds before sends start
// timing out.
const DefaultCapacity = 10_000

// Sink accepts samples. Send must give up after timeout and report false.
type Sink interface {
	Send(s Sample, timeout time.Duration) bool
}

// Channel is a bounded queue of samples. Any number of goroutines may send;
// a single consumer receives. Samples from one sender keep their order.
type Channel struct {
	buf     chan Sample
	sent    atomic.Uint64
	dropped atomic.Uint64
}

var _ Sink = (*Channel)(nil)

// NewChannel creates a channel holding at most capacity samples.
// A non-positive capacity falls back to DefaultCapacity.
func NewChannel(capacity int) *Channel {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Channel{buf: make(chan Sample, capacity)}
}

// Send enqueues s, waiting at most timeout for room. It returns false when the
// channel stayed full for the whole timeout; the sample is then dropped.
func (c *Channel) Send(s Sample, timeout time.Duration) bool {
	select {
	case c.buf <- s:
		c.sent.Add(1)
		return true
	default:
	}

	if timeout <= 0 {
		c.dropped.Add(1)
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c.buf <- s:
		c.sent.Add(1)
		return true
	case <-timer.C:
		c.dropped.Add(1)
		return false
	}
}

// Receive dequeues the oldest available sample, waiting at most timeout.
// ok is false when nothing arrived in time.
func (c *Channel) Receive(timeout time.Duration) (s Sample, ok bool) {
	select {
	case s = <-c.buf:
		return s, true
	default:
	}

	if timeout <= 0 {
		return Sample{}, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s = <-c.buf:
		return s, true
	case <-timer.C:
		return Sample{}, false
	}
}

// Len returns the number of samples currently held.
func (c *Channel) Len() int { return len(c.buf) }

// Cap returns the channel capacity.
func (c *Channel) Cap() int { return cap(c.buf) }

// Sent returns the number of accepted sends.
func (c *Channel) Sent() uint64 { return c.sent.Load() }

// Dropped returns the number of sends that timed out against a full channel,
// plus drops recorded with AddDropped.
func (c *Channel) Dropped() uint64 { return c.dropped.Load() }

// AddDropped records n samples lost before they reached the channel.
func (c *Channel) AddDropped(n uint64) { c.dropped.Add(n) }
