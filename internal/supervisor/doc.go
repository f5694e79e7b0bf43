/*
Package supervisor runs a pool of sampling workers and shuts it down within a
bounded time.

# Lifecycle

A Coordinator moves through four states:

	starting -> running -> stopping -> done

Starting validates the configuration, installs SIGINT/SIGTERM handlers when
enabled and spawns the workers. Running drains the shared channel and checks
worker exit statuses after every receive attempt; the first non-zero exit,
signal, context cancellation or Stop call raises the stop signal. Stopping
runs the escalation:

 1. every worker is joined against one shared deadline (join timeout), so
    workers later in spawn order get less of the budget
 2. workers still alive are killed
 3. every worker is joined once more for at most the reap timeout; a worker
    that survives this is abandoned with a warning

Run succeeds even when workers were abandoned. Only configuration and spawn
errors are returned.

# Spawners

ProcessSpawner starts each worker as a child process running the hidden
"worker" subcommand (ServeChild). Closing the child's stdin stops it, and
its stdout carries newline-delimited JSON samples that the coordinator
forwards into the shared channel. GoroutineSpawner runs workers in-process;
they cannot be killed, so a stuck one is abandoned.

# Usage

	cfg := config.Default()
	coord := supervisor.New(cfg, &supervisor.ProcessSpawner{
		Interval:    cfg.Pool.Interval,
		SendTimeout: cfg.Pool.SendTimeout,
	},
		supervisor.WithConsole(os.Stdout),
		supervisor.WithSignals(true),
	)

	report, err := coord.Run(ctx)
*/
package supervisor
