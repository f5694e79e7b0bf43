package supervisor

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/rngpool/internal/infrastructure/config"
	"github.com/GriffinCanCode/rngpool/internal/infrastructure/logging"
	"github.com/GriffinCanCode/rngpool/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/rngpool/internal/pool"
	"github.com/GriffinCanCode/rngpool/internal/shared/id"
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopping", StateStopping.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero workers", func(c *config.Config) { c.Pool.Workers = 0 }},
		{"negative workers", func(c *config.Config) { c.Pool.Workers = -1 }},
		{"zero interval", func(c *config.Config) { c.Pool.Interval = 0 }},
		{"negative interval", func(c *config.Config) { c.Pool.Interval = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(2)
			tt.mutate(cfg)
			spawner := newFakeSpawner()

			c := New(cfg, spawner)
			report, err := c.Run(context.Background())

			require.Error(t, err)
			assert.ErrorIs(t, err, config.ErrInvalidConfig)
			assert.Nil(t, report)
			assert.Zero(t, spawner.spawnCalls())
			assert.Equal(t, StateDone, c.State())
		})
	}
}

func TestRunTwice(t *testing.T) {
	c := New(testConfig(1), newFakeSpawner())
	c.Stop()

	_, err := c.Run(context.Background())
	require.NoError(t, err)

	_, err = c.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestRunSpawnsPoolSize(t *testing.T) {
	spawner := newFakeSpawner()
	c := New(testConfig(5), spawner)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	report, err := c.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 5, spawner.spawnCalls())
	assert.Equal(t, 5, report.Spawned())
	assert.Equal(t, TriggerCanceled, report.Trigger)
	for i, w := range report.Workers {
		assert.Equal(t, i, w.Index)
		assert.Equal(t, WorkerName(i), w.Name)
		assert.Equal(t, monitoring.OutcomeJoined, w.Outcome)
		assert.True(t, w.Exited)
		assert.Zero(t, w.ExitCode)
	}
	assert.NoError(t, report.Err())
}

func TestStopBeforeRunSkipsSpawning(t *testing.T) {
	spawner := newFakeSpawner()
	c := New(testConfig(3), spawner)
	c.Stop()
	c.Stop()

	report, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, spawner.spawnCalls())
	assert.Zero(t, report.Spawned())
	assert.Equal(t, TriggerRequested, report.Trigger)
	assert.True(t, c.StopSignal().IsSet())
}

func TestStopFromAnotherGoroutine(t *testing.T) {
	c := New(testConfig(2), newFakeSpawner())

	go func() {
		time.Sleep(30 * time.Millisecond)
		c.Stop()
	}()

	report, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TriggerRequested, report.Trigger)
	assert.Equal(t, StateDone, c.State())
}

func TestRunSpawnFailure(t *testing.T) {
	spawner := newFakeSpawner()
	spawner.failAt = 2
	c := New(testConfig(4), spawner)

	report, err := c.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spawn rng-worker-2")

	require.NotNil(t, report)
	assert.Equal(t, TriggerSpawnFailure, report.Trigger)
	assert.Equal(t, 2, report.Spawned())
	for _, w := range report.Workers {
		assert.Equal(t, monitoring.OutcomeJoined, w.Outcome)
	}
	assert.Equal(t, StateDone, c.State())
}

func TestWorkerExitTriggersStop(t *testing.T) {
	cfg := testConfig(3)
	spawner := newFakeSpawner()
	spawner.behaviors[1] = behaveCrash
	spawner.crashAfter = 40 * time.Millisecond

	c := New(cfg, spawner)

	stoppedAt := make(chan time.Time, 1)
	go func() {
		<-c.StopSignal().Done()
		stoppedAt <- time.Now()
	}()

	start := time.Now()
	report, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, TriggerWorkerExit, report.Trigger)
	select {
	case at := <-stoppedAt:
		// detected within one receive timeout of the crash, with slack
		assert.Less(t, at.Sub(start), spawner.crashAfter+cfg.Pool.ReceiveTimeout+200*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("stop signal never raised")
	}

	var exitErr *ExitError
	require.ErrorAs(t, report.Err(), &exitErr)
	assert.Equal(t, 1, exitErr.Index)
	assert.Equal(t, 3, exitErr.Code)

	assert.Equal(t, 3, report.Workers[1].ExitCode)
	for _, w := range report.Workers {
		assert.Equal(t, monitoring.OutcomeJoined, w.Outcome)
	}
}

func TestWorkerExitZeroDoesNotStop(t *testing.T) {
	spawner := newFakeSpawner()
	spawner.behaviors[0] = behaveCrash
	spawner.crashCode = 0
	spawner.crashAfter = 10 * time.Millisecond

	c := New(testConfig(2), spawner)
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	report, err := c.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, TriggerCanceled, report.Trigger)
	assert.NoError(t, report.Err())
}

func TestShutdownGracefulBeforeKill(t *testing.T) {
	spawner := newFakeSpawner()
	spawner.behaviors[0] = behaveCrash
	spawner.behaviors[2] = behaveHang
	spawner.crashAfter = 20 * time.Millisecond

	cfg := testConfig(3)
	cfg.Shutdown.JoinTimeout = 100 * time.Millisecond

	report, err := New(cfg, spawner).Run(context.Background())
	require.NoError(t, err)

	log := spawner.log
	kill := log.indexOf("kill:2")
	require.NotEqual(t, -1, kill, "hung worker was never killed")
	assert.Less(t, log.indexOf("crash:0"), kill)
	assert.Less(t, log.indexOf("stop:1"), kill)
	assert.Less(t, log.indexOf("stop:2"), kill)
	assert.Equal(t, -1, log.indexOf("kill:1"), "graceful worker must not be killed")

	hung := spawner.unit(2)
	assert.True(t, hung.stopSetAtFirstKill, "stop signal must be set before any kill")

	assert.Equal(t, monitoring.OutcomeJoined, report.Workers[0].Outcome)
	assert.Equal(t, monitoring.OutcomeJoined, report.Workers[1].Outcome)
	assert.Equal(t, monitoring.OutcomeTerminated, report.Workers[2].Outcome)
	assert.Empty(t, report.Abandoned())
}

func TestShutdownSharesGracefulBudget(t *testing.T) {
	spawner := newFakeSpawner()
	spawner.behaviors[0] = behaveHang
	spawner.behaviors[1] = behaveHang

	cfg := testConfig(2)
	cfg.Shutdown.JoinTimeout = 150 * time.Millisecond

	c := New(cfg, spawner)
	c.Stop()
	// Spawning is skipped once stopped, so drive shutdown directly.
	for i := 0; i < 2; i++ {
		u, err := spawner.Spawn(context.Background(), i, c.StopSignal(), c.Channel())
		require.NoError(t, err)
		c.units = append(c.units, u)
		c.stats = append(c.stats, &workerStats{})
	}

	start := time.Now()
	outcomes := c.shutdown()
	elapsed := time.Since(start)

	assert.Equal(t, []string{monitoring.OutcomeTerminated, monitoring.OutcomeTerminated}, outcomes)

	first := spawner.unit(0).joinTimeouts()
	second := spawner.unit(1).joinTimeouts()
	require.Len(t, first, 2)
	require.Len(t, second, 2)

	assert.InDelta(t, float64(cfg.Shutdown.JoinTimeout), float64(first[0]), float64(20*time.Millisecond))
	assert.Less(t, second[0], 20*time.Millisecond, "second worker gets what is left of the shared budget")
	assert.Equal(t, cfg.Shutdown.ReapTimeout, first[1])
	assert.Less(t, elapsed, cfg.Shutdown.JoinTimeout+2*cfg.Shutdown.ReapTimeout+200*time.Millisecond)
}

func TestShutdownAbandonsStuckWorker(t *testing.T) {
	spawner := newFakeSpawner()
	spawner.behaviors[0] = behaveStuck

	cfg := testConfig(2)
	cfg.Shutdown.JoinTimeout = 80 * time.Millisecond
	cfg.Shutdown.ReapTimeout = 50 * time.Millisecond

	core, logs := observer.New(zapcore.WarnLevel)
	c := New(cfg, spawner, WithLogger(logging.Wrap(zap.New(core))))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	report, err := c.Run(ctx)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 30*time.Millisecond+cfg.Shutdown.JoinTimeout+2*cfg.Shutdown.ReapTimeout+300*time.Millisecond)

	assert.Equal(t, monitoring.OutcomeAbandoned, report.Workers[0].Outcome)
	assert.Equal(t, monitoring.OutcomeJoined, report.Workers[1].Outcome)
	require.Len(t, report.Abandoned(), 1)
	assert.ErrorIs(t, report.Err(), ErrAbandoned)

	assert.Equal(t, 1, logs.FilterMessage("Abandoning unresponsive worker").Len())
	assert.Equal(t, 1, logs.FilterMessage("Worker missed graceful deadline, killing").Len())
}

func TestGoroutinePoolEndToEnd(t *testing.T) {
	cfg := testConfig(3)
	cfg.Pool.Quiet = false

	var console bytes.Buffer
	var mu sync.Mutex
	var samples []pool.Sample

	c := New(cfg,
		&GoroutineSpawner{Interval: cfg.Pool.Interval, SendTimeout: cfg.Pool.SendTimeout},
		WithConsole(&console),
		WithRunID(id.RunID("run_test")),
		WithSampleHook(func(s pool.Sample) {
			mu.Lock()
			samples = append(samples, s)
			mu.Unlock()
		}),
	)
	assert.Equal(t, id.RunID("run_test"), c.RunID())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	report, err := c.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, id.RunID("run_test"), report.RunID)
	assert.Equal(t, 3, report.Spawned())
	assert.Positive(t, report.Received)
	assert.NoError(t, report.Err())
	for _, w := range report.Workers {
		assert.Equal(t, monitoring.OutcomeJoined, w.Outcome)
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, samples)
	assert.Len(t, samples, int(report.Received))
	for _, s := range samples {
		assert.True(t, s.Valid())
		assert.GreaterOrEqual(t, s.WorkerIndex, 0)
		assert.Less(t, s.WorkerIndex, 3)
	}

	out := console.String()
	assert.Contains(t, out, "started 3 workers:")
	assert.Contains(t, out, "name=rng-worker-0")
	assert.Contains(t, out, "[recv] worker#")
	assert.Contains(t, out, "[parent] stopping workers...")
	assert.Contains(t, out, "[parent] done.")
}

func TestQuietSuppressesReceiptLines(t *testing.T) {
	var console bytes.Buffer
	c := New(testConfig(2), &GoroutineSpawner{Interval: 5 * time.Millisecond}, WithConsole(&console))

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	report, err := c.Run(ctx)
	require.NoError(t, err)
	assert.Positive(t, report.Received)
	assert.NotContains(t, console.String(), "[recv]")
	assert.Contains(t, console.String(), "[parent] done.")
}

func TestGoroutineWorkerErrorStopsPool(t *testing.T) {
	spawner := &GoroutineSpawner{
		Work: func(index int, stop *pool.StopSignal, _ pool.Sink) error {
			if index == 0 {
				return errors.New("entropy source unavailable")
			}
			<-stop.Done()
			return nil
		},
	}

	report, err := New(testConfig(2), spawner).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TriggerWorkerExit, report.Trigger)
	assert.Equal(t, exitFailed, report.Workers[0].ExitCode)
	assert.Zero(t, report.Workers[1].ExitCode)
}

func TestGoroutineHangIsAbandoned(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	spawner := &GoroutineSpawner{
		Work: func(int, *pool.StopSignal, pool.Sink) error {
			<-release
			return nil
		},
	}

	cfg := testConfig(1)
	cfg.Shutdown.JoinTimeout = 100 * time.Millisecond
	cfg.Shutdown.ReapTimeout = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	report, err := New(cfg, spawner).Run(ctx)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 20*time.Millisecond+cfg.Shutdown.JoinTimeout+cfg.Shutdown.ReapTimeout+300*time.Millisecond)
	require.Len(t, report.Abandoned(), 1)
	assert.ErrorIs(t, report.Err(), ErrAbandoned)
}

func TestWorkersSnapshot(t *testing.T) {
	cfg := testConfig(2)
	c := New(cfg, &GoroutineSpawner{Interval: 5 * time.Millisecond})
	assert.Empty(t, c.Workers())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Run(context.Background())
	}()

	require.Eventually(t, func() bool {
		ws := c.Workers()
		return len(ws) == 2 && ws[0].Received > 0 && ws[1].Received > 0
	}, time.Second, 10*time.Millisecond)

	for _, w := range c.Workers() {
		assert.True(t, w.Alive)
		assert.False(t, w.Exited)
		assert.GreaterOrEqual(t, w.Mean, 0.0)
		assert.LessOrEqual(t, w.Mean, float64(pool.MaxValue))
	}

	c.Stop()
	<-done
	for _, w := range c.Workers() {
		assert.False(t, w.Alive)
		assert.True(t, w.Exited)
	}
}

func TestRunRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	spawner := newFakeSpawner()
	spawner.behaviors[1] = behaveCrash
	spawner.crashAfter = 20 * time.Millisecond

	report, err := New(testConfig(2), spawner, WithMetrics(metrics)).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.Spawned())

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.WorkersSpawned))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AbnormalExits))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.WorkerOutcomes.WithLabelValues(monitoring.OutcomeJoined)))
	assert.Equal(t, float64(StateDone), testutil.ToFloat64(metrics.State))
}
