package supervisor

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/rngpool/internal/infrastructure/monitoring"
)

// shutdown runs the escalation: one shared graceful deadline, a hard kill for
// whoever is still alive, then one bounded reap per worker. It returns the
// outcome of every worker in spawn order and never fails.
func (c *Coordinator) shutdown() []string {
	c.requestStop(TriggerRequested)
	start := time.Now()
	units := c.snapshot()

	fmt.Fprintln(c.console, "[parent] stopping workers...")
	c.logger.Info("Stopping workers",
		zap.Int("workers", len(units)),
		zap.Duration("join_timeout", c.cfg.Shutdown.JoinTimeout),
	)

	// Later workers get whatever is left of the shared budget.
	deadline := start.Add(c.cfg.Shutdown.JoinTimeout)
	for _, u := range units {
		u.Join(max(0, time.Until(deadline)))
	}

	killed := make([]bool, len(units))
	for i, u := range units {
		if !u.Alive() {
			continue
		}
		fmt.Fprintf(c.console, "[parent] terminate %s pid=%d\n", u.Name(), u.PID())
		c.logger.Warn("Worker missed graceful deadline, killing",
			zap.String("worker", u.Name()),
			zap.Int("pid", u.PID()),
		)
		if err := u.Kill(); err != nil {
			c.logger.Warn("Kill failed", zap.String("worker", u.Name()), zap.Error(err))
		}
		killed[i] = true
	}

	outcomes := make([]string, len(units))
	for i, u := range units {
		switch {
		case !u.Join(c.cfg.Shutdown.ReapTimeout):
			outcomes[i] = monitoring.OutcomeAbandoned
			err := &AbandonedError{Index: u.Index(), Name: u.Name(), PID: u.PID()}
			c.mu.Lock()
			c.warnings = append(c.warnings, err)
			c.mu.Unlock()
			c.logger.Warn("Abandoning unresponsive worker", zap.Error(err))
		case killed[i]:
			outcomes[i] = monitoring.OutcomeTerminated
		default:
			outcomes[i] = monitoring.OutcomeJoined
		}
		c.metrics.RecordOutcome(outcomes[i])
	}

	elapsed := time.Since(start)
	c.metrics.ObserveShutdown(elapsed)
	c.syncChannel()
	fmt.Fprintln(c.console, "[parent] done.")
	c.logger.Info("Workers stopped", zap.Duration("elapsed", elapsed))
	return outcomes
}
