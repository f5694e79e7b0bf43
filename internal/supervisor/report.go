package supervisor

import (
	"time"

	"go.uber.org/multierr"
	"gonum.org/v1/gonum/stat"

	"github.com/GriffinCanCode/rngpool/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/rngpool/internal/shared/id"
)

// statsWindow is the number of most recent values kept per worker for the
// summary statistics.
const statsWindow = 4096

// Stop triggers recorded in the report.
const (
	TriggerSignal       = "signal"
	TriggerWorkerExit   = "worker-exit"
	TriggerCanceled     = "canceled"
	TriggerRequested    = "requested"
	TriggerSpawnFailure = "spawn-failure"
)

// Report summarizes a completed run.
type Report struct {
	RunID      id.RunID
	Trigger    string
	StartedAt  time.Time
	FinishedAt time.Time
	Received   uint64
	Dropped    uint64
	Workers    []WorkerReport
	// Warnings holds abnormal exits and abandoned workers. None of them fail the run.
	Warnings []error
}

// WorkerReport is the final state of one worker.
type WorkerReport struct {
	Index    int     `json:"index"`
	Name     string  `json:"name"`
	PID      int     `json:"pid"`
	Outcome  string  `json:"outcome"`
	ExitCode int     `json:"exit_code"`
	Exited   bool    `json:"exited"`
	Received uint64  `json:"received"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"stddev"`
}

// Spawned returns the number of workers that were started.
func (r *Report) Spawned() int {
	return len(r.Workers)
}

// Duration returns the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Abandoned returns the workers left running after shutdown.
func (r *Report) Abandoned() []WorkerReport {
	var out []WorkerReport
	for _, w := range r.Workers {
		if w.Outcome == monitoring.OutcomeAbandoned {
			out = append(out, w)
		}
	}
	return out
}

// Err combines the warnings into one error, or nil.
func (r *Report) Err() error {
	return multierr.Combine(r.Warnings...)
}

// workerStats accumulates received values for one worker.
type workerStats struct {
	received uint64
	window   []float64
	next     int
}

func (s *workerStats) add(v float64) {
	s.received++
	if len(s.window) < statsWindow {
		s.window = append(s.window, v)
		return
	}
	s.window[s.next] = v
	s.next = (s.next + 1) % statsWindow
}

// summary returns the mean and sample standard deviation of the window.
func (s *workerStats) summary() (mean, stddev float64) {
	switch len(s.window) {
	case 0:
		return 0, 0
	case 1:
		return s.window[0], 0
	}
	return stat.MeanStdDev(s.window, nil)
}
