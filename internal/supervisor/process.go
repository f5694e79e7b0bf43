package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/rngpool/internal/infrastructure/logging"
	"github.com/GriffinCanCode/rngpool/internal/pool"
	"github.com/GriffinCanCode/rngpool/internal/shared/id"
)

// ChildCommand is the hidden subcommand that runs a single worker process.
const ChildCommand = "worker"

// CommandFunc builds the command for the worker at index. args are the flags
// understood by ServeChild.
type CommandFunc func(index int, args []string) (*exec.Cmd, error)

// ProcessSpawner runs every worker as a child process re-executing the current
// binary. The child's stdin carries the stop signal (closing it stops the
// worker) and its stdout carries the sample stream.
type ProcessSpawner struct {
	Interval    time.Duration
	SendTimeout time.Duration
	RunID       id.RunID
	Logger      *logging.Logger
	// Stderr receives the children's stderr; nil means os.Stderr.
	Stderr io.Writer
	// Command overrides how the child command is built.
	Command CommandFunc
}

// ChildArgs returns the flags passed to a worker child.
func ChildArgs(index int, interval, sendTimeout time.Duration) []string {
	return []string{
		"-index", strconv.Itoa(index),
		"-interval", interval.String(),
		"-send-timeout", sendTimeout.String(),
	}
}

// SelfCommand re-executes the running binary with the worker subcommand.
func SelfCommand(_ int, args []string) (*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	return exec.Command(exe, append([]string{ChildCommand}, args...)...), nil
}

func (s *ProcessSpawner) Spawn(_ context.Context, index int, stop *pool.StopSignal, ch *pool.Channel) (Unit, error) {
	build := s.Command
	if build == nil {
		build = SelfCommand
	}
	sendTimeout := s.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = pool.DefaultSendTimeout
	}
	logger := s.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	cmd, err := build(index, ChildArgs(index, s.Interval, sendTimeout))
	if err != nil {
		return nil, err
	}
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	if s.RunID != "" {
		cmd.Env = append(cmd.Env, id.EnvRunID+"="+s.RunID.String())
	}
	cmd.SysProcAttr = sysProcAttr()
	cmd.Stderr = s.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", WorkerName(index), err)
	}

	u := &processUnit{
		index:       index,
		name:        WorkerName(index),
		cmd:         cmd,
		exit:        newExitState(),
		sendTimeout: sendTimeout,
		logger:      logger.ForWorker(WorkerName(index), cmd.Process.Pid),
		dropLog:     rate.Sometimes{Interval: 5 * time.Second},
	}
	go u.forward(stdout, ch, stop)
	go u.bridge(stop, stdin)
	return u, nil
}

type processUnit struct {
	index       int
	name        string
	cmd         *exec.Cmd
	exit        *exitState
	sendTimeout time.Duration
	logger      *logging.Logger
	dropLog     rate.Sometimes
	drops       uint64
	killed      atomic.Bool
}

// forward decodes the child's sample stream into ch until EOF, then reaps the
// child. Samples that do not fit within sendTimeout are dropped. Once the pool
// is stopping nothing drains ch, so sends stop waiting and the pipe empties at
// read speed.
func (u *processUnit) forward(stdout io.Reader, ch *pool.Channel, stop *pool.StopSignal) {
	dec := pool.NewDecoder(stdout)
	for {
		s, err := dec.Decode()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				u.logger.Warn("Corrupt sample stream, killing worker", zap.Error(err))
				if err := u.Kill(); err != nil {
					u.logger.Warn("Kill failed", zap.Error(err))
				}
				_, _ = io.Copy(io.Discard, stdout)
			}
			break
		}

		timeout := u.sendTimeout
		if stop.IsSet() || u.killed.Load() {
			timeout = 0
		}
		if !ch.Send(s, timeout) {
			u.drops++
			u.dropLog.Do(func() {
				u.logger.Debug("Dropping samples, channel full", zap.Uint64("dropped", u.drops))
			})
		}
	}
	ch.AddDropped(dec.Dropped())

	// Wait closes the pipes, so it runs only after the stream is drained.
	_ = u.cmd.Wait()
	u.exit.finish(u.cmd.ProcessState.ExitCode())
}

// bridge closes the child's stdin once the stop signal is raised.
func (u *processUnit) bridge(stop *pool.StopSignal, stdin io.WriteCloser) {
	select {
	case <-stop.Done():
	case <-u.exit.done:
	}
	if err := stdin.Close(); err != nil {
		u.logger.Debug("Closing worker stdin", zap.Error(err))
	}
}

func (u *processUnit) Index() int                      { return u.index }
func (u *processUnit) Name() string                    { return u.name }
func (u *processUnit) PID() int                        { return u.cmd.Process.Pid }
func (u *processUnit) Join(timeout time.Duration) bool { return u.exit.join(timeout) }
func (u *processUnit) Alive() bool                     { return u.exit.alive() }
func (u *processUnit) ExitCode() (int, bool)           { return u.exit.exitCode() }

// Kill sends a hard kill; it does not wait for the process to go away.
func (u *processUnit) Kill() error {
	u.killed.Store(true)
	if err := u.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill %s: %w", u.name, err)
	}
	return nil
}
