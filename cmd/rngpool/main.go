package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/rngpool/internal/infrastructure/config"
	"github.com/GriffinCanCode/rngpool/internal/infrastructure/logging"
	"github.com/GriffinCanCode/rngpool/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/rngpool/internal/infrastructure/server"
	"github.com/GriffinCanCode/rngpool/internal/shared/id"
	"github.com/GriffinCanCode/rngpool/internal/supervisor"
)

// Exit statuses.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) > 0 && args[0] == supervisor.ChildCommand {
		return runWorker(args[1:], stdin, stdout)
	}

	opts, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		if errors.Is(err, config.ErrInvalidConfig) {
			fmt.Fprintf(stderr, "rngpool: %v\n", err)
		}
		return exitConfig
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "rngpool: %v\n", err)
		return exitRuntime
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "rngpool: %v\n", err)
		return exitConfig
	}
	if opts.duration < 0 {
		fmt.Fprintf(stderr, "rngpool: duration must be >= 0\n")
		return exitConfig
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(stderr, "rngpool: %v\n", err)
		return exitConfig
	}
	defer logger.Sync()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(reg)

	runID := id.NewRunID()
	hub := server.NewHub(logger, 0)
	coord := supervisor.New(cfg, newSpawner(cfg, runID, logger),
		supervisor.WithLogger(logger),
		supervisor.WithMetrics(metrics),
		supervisor.WithConsole(stdout),
		supervisor.WithSignals(true),
		supervisor.WithRunID(runID),
		supervisor.WithSampleHook(hub.Publish),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runCtx := ctx
	if opts.duration > 0 {
		var stop context.CancelFunc
		runCtx, stop = context.WithTimeout(ctx, seconds(opts.duration))
		defer stop()
	}

	// The status server lives until the coordinator is done.
	g, gctx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()
	if cfg.Status.Addr != "" {
		srv := server.New(server.Config{
			Addr:        cfg.Status.Addr,
			Development: cfg.Logging.Development,
		}, coord, reg, hub, logger)
		g.Go(func() error {
			if err := srv.Run(serverCtx); err != nil {
				logger.Error("Status server failed", zap.Error(err))
			}
			return nil
		})
	}

	var report *supervisor.Report
	g.Go(func() error {
		defer stopServer()
		var err error
		report, err = coord.Run(runCtx)
		return err
	})
	err = g.Wait()

	if err != nil {
		fmt.Fprintf(stderr, "rngpool: %v\n", err)
		if errors.Is(err, config.ErrInvalidConfig) {
			return exitConfig
		}
		return exitRuntime
	}

	printReport(stdout, report)
	return exitOK
}

// runWorker is the child side of the process spawner.
func runWorker(args []string, stdin io.Reader, stdout io.Writer) int {
	cfg := config.LoadOrDefault()
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		logger = logging.NewDefault()
	}
	defer logger.Sync()

	if runID := id.RunID(os.Getenv(id.EnvRunID)); runID.Valid() {
		logger = logger.With(zap.String("run_id", runID.String()))
	}
	return supervisor.ServeChild(args, stdin, stdout, logger.Named("worker"))
}

func newLogger(cfg config.LogConfig) (*logging.Logger, error) {
	lc := logging.DefaultConfig()
	if cfg.Development {
		lc = logging.DevelopmentConfig()
	}
	if cfg.Level != "" {
		lc.Level = cfg.Level
	}
	return logging.New(lc)
}

func newSpawner(cfg *config.Config, runID id.RunID, logger *logging.Logger) supervisor.Spawner {
	if cfg.Pool.Mode == config.ModeGoroutine {
		return &supervisor.GoroutineSpawner{
			Interval:    cfg.Pool.Interval,
			SendTimeout: cfg.Pool.SendTimeout,
		}
	}
	return &supervisor.ProcessSpawner{
		Interval:    cfg.Pool.Interval,
		SendTimeout: cfg.Pool.SendTimeout,
		RunID:       runID,
		Logger:      logger,
	}
}

func printReport(w io.Writer, r *supervisor.Report) {
	fmt.Fprintf(w, "[parent] run=%s trigger=%s workers=%d received=%d dropped=%d duration=%s\n",
		r.RunID, r.Trigger, r.Spawned(), r.Received, r.Dropped, r.Duration().Round(time.Millisecond))
	for _, wr := range r.Workers {
		fmt.Fprintf(w, "  - name=%s pid=%d outcome=%s exit=%d received=%d mean=%.1f stddev=%.1f\n",
			wr.Name, wr.PID, wr.Outcome, wr.ExitCode, wr.Received, wr.Mean, wr.StdDev)
	}
}
