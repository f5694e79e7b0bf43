package main

import (
	"flag"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/GriffinCanCode/rngpool/internal/infrastructure/config"
)

// options holds the parsed command line. Only flags the user actually set are
// applied on top of the loaded configuration.
type options struct {
	configPath string
	workers    int
	interval   float64
	quiet      bool
	join       float64
	mode       string
	capacity   int
	statusAddr string
	logLevel   string
	logDev     bool
	duration   float64

	set map[string]bool
}

func parseFlags(args []string, output io.Writer) (*options, error) {
	o := &options{set: make(map[string]bool)}

	fs := flag.NewFlagSet("rngpool", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&o.configPath, "config", "", "path to a YAML or TOML config file")
	fs.IntVar(&o.workers, "n", 0, "number of workers (shorthand)")
	fs.IntVar(&o.workers, "num-procs", 0, "number of workers")
	fs.Float64Var(&o.interval, "i", 0, "seconds between samples per worker (shorthand)")
	fs.Float64Var(&o.interval, "interval", 0, "seconds between samples per worker")
	fs.BoolVar(&o.quiet, "no-print", false, "do not print received samples")
	fs.Float64Var(&o.join, "join-timeout", 0, "seconds to wait for graceful worker exit")
	fs.StringVar(&o.mode, "mode", "", "worker mode: process or goroutine")
	fs.IntVar(&o.capacity, "capacity", 0, "shared channel capacity")
	fs.StringVar(&o.statusAddr, "status-addr", "", "serve status endpoints on this address")
	fs.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.BoolVar(&o.logDev, "log-dev", false, "human readable debug logs")
	fs.Float64Var(&o.duration, "duration", 0, "stop after this many seconds (0 runs until interrupted)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })

	for _, f := range []struct {
		names []string
		value float64
	}{
		{[]string{"i", "interval"}, o.interval},
		{[]string{"join-timeout"}, o.join},
		{[]string{"duration"}, o.duration},
	} {
		if o.has(f.names...) && !inRange(f.value) {
			return nil, &config.ValidationError{
				Field:  f.names[len(f.names)-1],
				Reason: fmt.Sprintf("must be within ±%d seconds, got %g", int64(maxSeconds), f.value),
			}
		}
	}
	return o, nil
}

func (o *options) has(names ...string) bool {
	for _, n := range names {
		if o.set[n] {
			return true
		}
	}
	return false
}

// apply overrides cfg with the flags that were set.
func (o *options) apply(cfg *config.Config) {
	if o.has("n", "num-procs") {
		cfg.Pool.Workers = o.workers
	}
	if o.has("i", "interval") {
		cfg.Pool.Interval = seconds(o.interval)
	}
	if o.has("no-print") {
		cfg.Pool.Quiet = o.quiet
	}
	if o.has("join-timeout") {
		cfg.Shutdown.JoinTimeout = seconds(o.join)
	}
	if o.has("mode") {
		cfg.Pool.Mode = o.mode
	}
	if o.has("capacity") {
		cfg.Pool.Capacity = o.capacity
	}
	if o.has("status-addr") {
		cfg.Status.Addr = o.statusAddr
	}
	if o.has("log-level") {
		cfg.Logging.Level = o.logLevel
	}
	if o.has("log-dev") {
		cfg.Logging.Development = o.logDev
	}
}

// maxSeconds is the largest whole number of seconds a time.Duration holds.
const maxSeconds = float64(math.MaxInt64 / int64(time.Second))

// inRange rejects values whose conversion to time.Duration would overflow,
// NaN and infinities included.
func inRange(s float64) bool {
	return math.Abs(s) <= maxSeconds
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
