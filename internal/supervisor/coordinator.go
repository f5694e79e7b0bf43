package supervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/rngpool/internal/infrastructure/config"
	"github.com/GriffinCanCode/rngpool/internal/infrastructure/logging"
	"github.com/GriffinCanCode/rngpool/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/rngpool/internal/pool"
	"github.com/GriffinCanCode/rngpool/internal/shared/id"
)

// State is a coordinator lifecycle phase.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateStopping
	StateDone
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// SampleHook observes every sample the coordinator receives. Hooks run on the
// receive loop and must not block.
type SampleHook func(pool.Sample)

// WorkerStatus is a point-in-time view of one worker.
type WorkerStatus struct {
	Index    int     `json:"index"`
	Name     string  `json:"name"`
	PID      int     `json:"pid"`
	Alive    bool    `json:"alive"`
	Exited   bool    `json:"exited"`
	ExitCode int     `json:"exit_code"`
	Received uint64  `json:"received"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"stddev"`
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithMetrics enables metrics recording.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithConsole sets where banner, receipt and shutdown lines are printed.
func WithConsole(w io.Writer) Option {
	return func(c *Coordinator) { c.console = w }
}

// WithSignals installs SIGINT/SIGTERM handlers for the duration of Run.
func WithSignals(enabled bool) Option {
	return func(c *Coordinator) { c.signals = enabled }
}

// WithSampleHook registers a hook called for every received sample.
func WithSampleHook(h SampleHook) Option {
	return func(c *Coordinator) { c.hooks = append(c.hooks, h) }
}

// WithRunID sets the run id instead of generating one.
func WithRunID(runID id.RunID) Option {
	return func(c *Coordinator) { c.runID = runID }
}

// Coordinator spawns the worker pool, drains the shared channel, watches the
// workers and runs the shutdown escalation.
type Coordinator struct {
	cfg     *config.Config
	spawner Spawner
	logger  *logging.Logger
	metrics *monitoring.Metrics
	console io.Writer
	signals bool
	hooks   []SampleHook
	runID   id.RunID

	stop    *pool.StopSignal
	ch      *pool.Channel
	state   atomic.Int32
	started atomic.Bool

	triggerOnce sync.Once
	trigger     string

	mu       sync.RWMutex
	units    []Unit
	stats    []*workerStats
	warnings []error
	reported map[int]bool

	dropLog     rate.Sometimes
	lastDropLog uint64
}

// New creates a coordinator. The stop signal and channel exist from here on, so
// Stop may be called before Run.
func New(cfg *config.Config, spawner Spawner, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:      cfg,
		spawner:  spawner,
		logger:   logging.NewNop(),
		console:  io.Discard,
		stop:     pool.NewStopSignal(),
		ch:       pool.NewChannel(cfg.Pool.Capacity),
		reported: make(map[int]bool),
		dropLog:  rate.Sometimes{Interval: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.runID == "" {
		c.runID = id.NewRunID()
	}
	c.logger = c.logger.Named("supervisor").With(zap.String("run_id", c.runID.String()))
	return c
}

// RunID returns the id of this run.
func (c *Coordinator) RunID() id.RunID { return c.runID }

// State returns the current lifecycle phase.
func (c *Coordinator) State() State { return State(c.state.Load()) }

// StopSignal returns the signal shared with every worker.
func (c *Coordinator) StopSignal() *pool.StopSignal { return c.stop }

// Channel returns the shared sample channel.
func (c *Coordinator) Channel() *pool.Channel { return c.ch }

// Stop asks the coordinator to shut down. It is safe to call at any time and
// any number of times.
func (c *Coordinator) Stop() {
	c.requestStop(TriggerRequested)
}

// Run executes the whole lifecycle and returns once every worker has been
// joined, killed or abandoned. Only configuration and spawn failures are
// returned as errors; worker failures end up in the report.
func (c *Coordinator) Run(ctx context.Context) (*Report, error) {
	if !c.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}
	startedAt := time.Now()
	c.setState(StateStarting)

	if err := c.cfg.Validate(); err != nil {
		c.setState(StateDone)
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}

	if c.signals {
		sigs := make(chan os.Signal, 1)
		notifySignals(sigs)
		defer signal.Stop(sigs)
		go c.watchSignals(sigs)
	}
	go c.watchContext(ctx)

	if err := c.spawnAll(ctx); err != nil {
		c.requestStop(TriggerSpawnFailure)
		c.setState(StateStopping)
		outcomes := c.shutdown()
		c.setState(StateDone)
		return c.report(startedAt, outcomes), err
	}
	c.banner()

	c.setState(StateRunning)
	c.receiveLoop()

	c.setState(StateStopping)
	outcomes := c.shutdown()
	c.setState(StateDone)

	report := c.report(startedAt, outcomes)
	c.logger.Info("Coordinator done",
		zap.String("trigger", report.Trigger),
		zap.Int("workers", report.Spawned()),
		zap.Uint64("received", report.Received),
		zap.Uint64("dropped", report.Dropped),
		zap.Int("abandoned", len(report.Abandoned())),
		zap.Duration("duration", report.Duration()),
	)
	if err := report.Err(); err != nil {
		c.logger.Warn("Run finished with warnings", zap.Error(err))
	}
	return report, nil
}

// Workers returns a snapshot of every spawned worker.
func (c *Coordinator) Workers() []WorkerStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]WorkerStatus, 0, len(c.units))
	for i, u := range c.units {
		code, exited := u.ExitCode()
		mean, stddev := c.stats[i].summary()
		out = append(out, WorkerStatus{
			Index:    u.Index(),
			Name:     u.Name(),
			PID:      u.PID(),
			Alive:    u.Alive(),
			Exited:   exited,
			ExitCode: code,
			Received: c.stats[i].received,
			Mean:     mean,
			StdDev:   stddev,
		})
	}
	return out
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
	c.metrics.SetState(int(s))
	c.logger.Debug("State changed", zap.Stringer("state", s))
}

// requestStop raises the stop signal, remembering the first trigger.
func (c *Coordinator) requestStop(trigger string) {
	c.triggerOnce.Do(func() {
		c.trigger = trigger
	})
	if c.stop.Set() {
		c.logger.Info("Stop requested", zap.String("trigger", trigger))
	}
}

func (c *Coordinator) watchSignals(sigs <-chan os.Signal) {
	select {
	case sig := <-sigs:
		c.logger.Info("Received signal", zap.String("signal", sig.String()))
		c.requestStop(TriggerSignal)
	case <-c.stop.Done():
	}
}

func (c *Coordinator) watchContext(ctx context.Context) {
	select {
	case <-ctx.Done():
		c.requestStop(TriggerCanceled)
	case <-c.stop.Done():
	}
}

func (c *Coordinator) spawnAll(ctx context.Context) error {
	for i := 0; i < c.cfg.Pool.Workers; i++ {
		if c.stop.IsSet() {
			return nil
		}
		u, err := c.spawner.Spawn(ctx, i, c.stop, c.ch)
		if err != nil {
			c.logger.Error("Failed to spawn worker", zap.Int("index", i), zap.Error(err))
			return fmt.Errorf("spawn %s: %w", WorkerName(i), err)
		}

		c.mu.Lock()
		c.units = append(c.units, u)
		c.stats = append(c.stats, &workerStats{})
		c.mu.Unlock()

		c.metrics.RecordSpawn()
		c.logger.Info("Worker spawned",
			zap.Int("index", u.Index()),
			zap.String("worker", u.Name()),
			zap.Int("pid", u.PID()),
		)
	}
	return nil
}

func (c *Coordinator) banner() {
	units := c.snapshot()
	pid := os.Getpid()

	fmt.Fprintf(c.console, "[parent] pid=%d started %d workers:\n", pid, len(units))
	for _, u := range units {
		fmt.Fprintf(c.console, "  - name=%s pid=%d\n", u.Name(), u.PID())
	}

	if runtime.GOOS == "windows" {
		fmt.Fprintf(c.console, "\nInspect from another console:\n  tasklist /FI \"PID eq %d\"\n\n", pid)
		return
	}
	fmt.Fprintf(c.console, "\nInspect from another shell:\n"+
		"  ps -o pid,ppid,stat,etime,cmd -p %d\n"+
		"  ps -o pid,ppid,stat,etime,cmd --ppid %d\n\n", pid, pid)
}

// receiveLoop drains the channel and watches the workers until the stop signal
// is raised.
func (c *Coordinator) receiveLoop() {
	for !c.stop.IsSet() {
		if s, ok := c.ch.Receive(c.cfg.Pool.ReceiveTimeout); ok {
			c.consume(s)
		}
		c.checkWorkers()
		c.syncChannel()
	}
}

func (c *Coordinator) consume(s pool.Sample) {
	name := WorkerName(s.WorkerIndex)

	c.mu.Lock()
	if s.WorkerIndex >= 0 && s.WorkerIndex < len(c.stats) {
		c.stats[s.WorkerIndex].add(float64(s.Value))
	}
	c.mu.Unlock()

	c.metrics.RecordSample(name)
	if !c.cfg.Pool.Quiet {
		fmt.Fprintf(c.console, "[recv] %s\n", s)
	}
	for _, h := range c.hooks {
		h(s)
	}
}

// checkWorkers raises the stop signal on the first worker found terminated
// with a non-zero status.
func (c *Coordinator) checkWorkers() {
	for _, u := range c.snapshot() {
		code, exited := u.ExitCode()
		if !exited || code == 0 {
			continue
		}

		c.mu.Lock()
		seen := c.reported[u.Index()]
		c.reported[u.Index()] = true
		if !seen {
			c.warnings = append(c.warnings, &ExitError{Index: u.Index(), Name: u.Name(), PID: u.PID(), Code: code})
		}
		c.mu.Unlock()
		if seen {
			continue
		}

		c.metrics.RecordAbnormalExit()
		fmt.Fprintf(c.console, "[parent] worker %s pid=%d exited with code=%d -> stopping\n", u.Name(), u.PID(), code)
		c.logger.Warn("Worker exited abnormally",
			zap.String("worker", u.Name()),
			zap.Int("pid", u.PID()),
			zap.Int("code", code),
		)
		c.requestStop(TriggerWorkerExit)
		return
	}
}

func (c *Coordinator) syncChannel() {
	dropped := c.ch.Dropped()
	c.metrics.SyncChannel(c.ch.Len(), dropped)
	c.dropLog.Do(func() {
		if dropped > c.lastDropLog {
			c.logger.Debug("Samples dropped on full channel", zap.Uint64("dropped", dropped))
			c.lastDropLog = dropped
		}
	})
}

func (c *Coordinator) snapshot() []Unit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	units := make([]Unit, len(c.units))
	copy(units, c.units)
	return units
}

func (c *Coordinator) report(startedAt time.Time, outcomes []string) *Report {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r := &Report{
		RunID:      c.runID,
		Trigger:    c.trigger,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		Dropped:    c.ch.Dropped(),
		Workers:    make([]WorkerReport, 0, len(c.units)),
		Warnings:   append([]error(nil), c.warnings...),
	}
	for i, u := range c.units {
		code, exited := u.ExitCode()
		mean, stddev := c.stats[i].summary()
		r.Received += c.stats[i].received
		r.Workers = append(r.Workers, WorkerReport{
			Index:    u.Index(),
			Name:     u.Name(),
			PID:      u.PID(),
			Outcome:  outcomes[i],
			ExitCode: code,
			Exited:   exited,
			Received: c.stats[i].received,
			Mean:     mean,
			StdDev:   stddev,
		})
	}
	return r
}
