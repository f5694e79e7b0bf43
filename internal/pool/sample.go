package pool

import (
	"fmt"
	"time"
)

// MaxValue is the inclusive upper bound of a sampled value.
const MaxValue = 1_000_000

// Sample is a single value produced by a worker.
type Sample struct {
	ProducerID  int     `json:"pid"`
	WorkerIndex int     `json:"idx"`
	Value       int     `json:"val"`
	Timestamp   float64 `json:"ts"` // seconds since epoch
}

// NewSample builds a sample stamped with t.
func NewSample(pid, index, value int, t time.Time) Sample {
	return Sample{
		ProducerID:  pid,
		WorkerIndex: index,
		Value:       value,
		Timestamp:   float64(t.UnixNano()) / float64(time.Second),
	}
}

// Time converts the timestamp back into a time.Time.
func (s Sample) Time() time.Time {
	sec := int64(s.Timestamp)
	nsec := int64((s.Timestamp - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

// Valid reports whether the value lies in [0, MaxValue].
func (s Sample) Valid() bool {
	return s.Value >= 0 && s.Value <= MaxValue
}

func (s Sample) String() string {
	return fmt.Sprintf("worker#%d pid=%d val=%d t=%.3f", s.WorkerIndex, s.ProducerID, s.Value, s.Timestamp)
}
