package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/GriffinCanCode/rngpool/internal/infrastructure/config"
	"github.com/GriffinCanCode/rngpool/internal/infrastructure/logging"
	"github.com/GriffinCanCode/rngpool/internal/pool"
)

// helperEnv selects a child behavior when the test binary re-executes itself.
const helperEnv = "RNGPOOL_TEST_HELPER"

func TestMain(m *testing.M) {
	if mode := os.Getenv(helperEnv); mode != "" {
		os.Exit(runHelper(mode, helperArgs()))
	}
	os.Exit(m.Run())
}

func helperArgs() []string {
	for i, arg := range os.Args {
		if arg == "--" {
			return os.Args[i+1:]
		}
	}
	return nil
}

func runHelper(mode string, args []string) int {
	switch mode {
	case "worker":
		return ServeChild(args, os.Stdin, os.Stdout, logging.NewNop())
	case "crash":
		return 3
	case "trailer":
		enc := pool.NewEncoder(os.Stdout)
		_ = enc.Encode(pool.NewSample(os.Getpid(), 0, 1, time.Now()))
		_ = enc.EncodeDropped(5)
		return 0
	case "garbage":
		fmt.Fprintln(os.Stdout, `{"pid":1,"idx":0,"val":-5,"ts":1}`)
		_, _ = io.Copy(io.Discard, os.Stdin)
		return 0
	case "hang":
		signal.Ignore(os.Interrupt, syscall.SIGTERM)
		time.Sleep(time.Hour)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown helper mode %q\n", mode)
		return 99
	}
}

// helperCommand builds children running the test binary in the given mode.
func helperCommand(mode string) CommandFunc {
	return func(_ int, args []string) (*exec.Cmd, error) {
		cmd := exec.Command(os.Args[0], append([]string{"-test.run=^$", "--"}, args...)...)
		cmd.Env = append(os.Environ(), helperEnv+"="+mode)
		return cmd, nil
	}
}

func testConfig(workers int) *config.Config {
	cfg := config.Default()
	cfg.Pool.Workers = workers
	cfg.Pool.Interval = 10 * time.Millisecond
	cfg.Pool.ReceiveTimeout = 20 * time.Millisecond
	cfg.Pool.Quiet = true
	cfg.Pool.Mode = config.ModeGoroutine
	cfg.Shutdown.JoinTimeout = 300 * time.Millisecond
	cfg.Shutdown.ReapTimeout = 100 * time.Millisecond
	return cfg
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) indexOf(event string) int {
	for i, e := range l.all() {
		if e == event {
			return i
		}
	}
	return -1
}

type behavior int

const (
	// exits 0 once the stop signal is raised
	behaveGraceful behavior = iota
	// exits with a non-zero code after a delay
	behaveCrash
	// ignores the stop signal, dies when killed
	behaveHang
	// ignores the stop signal and kill
	behaveStuck
)

type fakeUnit struct {
	index int
	exit  *exitState
	stop  *pool.StopSignal
	log   *eventLog
	kind  behavior

	once sync.Once

	mu                 sync.Mutex
	joins              []time.Duration
	kills              int
	stopSetAtFirstKill bool
}

func (u *fakeUnit) Index() int   { return u.index }
func (u *fakeUnit) Name() string { return WorkerName(u.index) }
func (u *fakeUnit) PID() int     { return 1000 + u.index }
func (u *fakeUnit) Alive() bool  { return u.exit.alive() }

func (u *fakeUnit) ExitCode() (int, bool) { return u.exit.exitCode() }

func (u *fakeUnit) Join(timeout time.Duration) bool {
	u.mu.Lock()
	u.joins = append(u.joins, timeout)
	u.mu.Unlock()
	return u.exit.join(timeout)
}

func (u *fakeUnit) Kill() error {
	u.mu.Lock()
	if u.kills == 0 {
		u.stopSetAtFirstKill = u.stop.IsSet()
	}
	u.kills++
	u.mu.Unlock()

	u.log.add("kill:%d", u.index)
	if u.kind == behaveHang {
		u.finish(-9)
	}
	return nil
}

func (u *fakeUnit) finish(code int) {
	u.once.Do(func() { u.exit.finish(code) })
}

func (u *fakeUnit) joinTimeouts() []time.Duration {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]time.Duration(nil), u.joins...)
}

type fakeSpawner struct {
	behaviors  map[int]behavior
	crashAfter time.Duration
	crashCode  int
	failAt     int
	log        *eventLog

	mu    sync.Mutex
	calls int
	units []*fakeUnit
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{
		behaviors:  map[int]behavior{},
		crashAfter: 50 * time.Millisecond,
		crashCode:  3,
		failAt:     -1,
		log:        &eventLog{},
	}
}

func (s *fakeSpawner) Spawn(_ context.Context, index int, stop *pool.StopSignal, _ *pool.Channel) (Unit, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if index == s.failAt {
		return nil, errors.New("fork: resource temporarily unavailable")
	}

	u := &fakeUnit{
		index: index,
		exit:  newExitState(),
		stop:  stop,
		log:   s.log,
		kind:  s.behaviors[index],
	}

	switch u.kind {
	case behaveGraceful:
		go func() {
			<-stop.Done()
			u.log.add("stop:%d", index)
			u.finish(0)
		}()
	case behaveCrash:
		go func() {
			time.Sleep(s.crashAfter)
			u.log.add("crash:%d", index)
			u.finish(s.crashCode)
		}()
	case behaveHang, behaveStuck:
		go func() {
			<-stop.Done()
			u.log.add("stop:%d", index)
		}()
	}

	s.mu.Lock()
	s.units = append(s.units, u)
	s.mu.Unlock()
	return u, nil
}

func (s *fakeSpawner) spawnCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *fakeSpawner) unit(index int) *fakeUnit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.units[index]
}
