package supervisor

import (
	"flag"
	"io"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/rngpool/internal/infrastructure/logging"
	"github.com/GriffinCanCode/rngpool/internal/pool"
)

// Child exit statuses.
const (
	ChildExitOK    = 0
	ChildExitUsage = 2
)

// childBuffer is the local queue between the sampling loop and the stdout
// encoder.
const childBuffer = 256

// flushPoll bounds how long the encoder waits before re-checking the stop signal.
const flushPoll = 50 * time.Millisecond

// ServeChild runs one worker on the child side of a ProcessSpawner. Closing
// stdin or delivering SIGINT/SIGTERM stops it; samples are written to stdout.
// It returns the process exit status.
func ServeChild(args []string, stdin io.Reader, stdout io.Writer, logger *logging.Logger) int {
	fs := flag.NewFlagSet(ChildCommand, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	index := fs.Int("index", 0, "worker index")
	interval := fs.Duration("interval", time.Second, "time between samples")
	sendTimeout := fs.Duration("send-timeout", pool.DefaultSendTimeout, "max wait for room in the local buffer")
	buffer := fs.Int("buffer", childBuffer, "local sample buffer size")
	if err := fs.Parse(args); err != nil {
		logger.Error("Invalid worker arguments", zap.Error(err))
		return ChildExitUsage
	}
	if *interval <= 0 {
		logger.Error("Invalid worker interval", zap.Duration("interval", *interval))
		return ChildExitUsage
	}

	logger = logger.ForWorker(WorkerName(*index), os.Getpid())
	stop := pool.NewStopSignal()

	go func() {
		_, _ = io.Copy(io.Discard, stdin)
		stop.Set()
	}()

	sigs := make(chan os.Signal, 1)
	notifySignals(sigs)
	defer signal.Stop(sigs)
	go func() {
		select {
		case sig := <-sigs:
			logger.Debug("Worker received signal", zap.String("signal", sig.String()))
			stop.Set()
		case <-stop.Done():
		}
	}()

	local := pool.NewChannel(*buffer)
	enc := pool.NewEncoder(stdout)
	flushed := make(chan struct{})
	var flushErr error
	go func() {
		defer close(flushed)
		if flushErr = flush(local, enc, stop); flushErr != nil {
			logger.Debug("Sample stream closed", zap.Error(flushErr))
			stop.Set()
		}
	}()

	w := pool.NewWorker(*index, *interval)
	w.SendTimeout = *sendTimeout

	logger.Debug("Worker started", zap.Duration("interval", *interval))
	w.Run(stop, local)
	<-flushed

	// The parent adds the trailer to its drop count.
	if flushErr == nil {
		if err := enc.EncodeDropped(local.Dropped()); err != nil {
			logger.Debug("Failed to write drop trailer", zap.Error(err))
		}
	}
	logger.Debug("Worker stopped", zap.Uint64("dropped", local.Dropped()))

	return ChildExitOK
}

// flush writes queued samples until the stop signal is raised and the queue is
// empty, or until a write fails.
func flush(local *pool.Channel, enc *pool.Encoder, stop *pool.StopSignal) error {
	for {
		s, ok := local.Receive(flushPoll)
		if ok {
			if err := enc.Encode(s); err != nil {
				return err
			}
			continue
		}
		if stop.IsSet() {
			return drain(local, enc)
		}
	}
}

func drain(local *pool.Channel, enc *pool.Encoder) error {
	for {
		s, ok := local.Receive(0)
		if !ok {
			return nil
		}
		if err := enc.Encode(s); err != nil {
			return err
		}
	}
}
