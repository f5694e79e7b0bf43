// Command rngpool runs a supervised pool of random-sample workers.
//
// Every worker draws a uniform integer in [0, 1000000] once per interval and
// sends it, tagged with its pid and a timestamp, to a shared bounded channel.
// The parent prints what it receives until interrupted, a worker dies with a
// non-zero status, or -duration elapses. It then stops the pool: a graceful
// pass bounded by -join-timeout, a hard kill for stragglers, and a bounded reap.
//
// Configuration:
//   - Config file (-config, YAML or TOML)
//   - Environment variables (RNGPOOL_WORKERS, RNGPOOL_INTERVAL, ...)
//   - CLI flags (override both)
//
// Usage:
//
//	rngpool -n 4 -i 1.0
//	rngpool -n 8 -i 0.05 -no-print -status-addr :9090
//	rngpool -mode goroutine -duration 10
//
// Exit statuses: 0 on clean shutdown, 2 on invalid configuration, 1 on any
// other failure.
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
