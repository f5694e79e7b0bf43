/*
Package monitoring provides Prometheus metrics for the worker pool.

# Overview

Collectors are registered on a caller-supplied registry so that several
coordinators (for example in tests) never collide on the default registry.

# Metrics

- rngpool_workers_spawned_total, rngpool_workers_alive
- rngpool_worker_abnormal_exits_total
- rngpool_worker_shutdown_outcomes_total{outcome}
- rngpool_samples_received_total{worker}
- rngpool_samples_dropped_total, rngpool_channel_depth
- rngpool_coordinator_state, rngpool_shutdown_duration_seconds

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	metrics.RecordSpawn()
	metrics.RecordSample("rng-worker-0")
	metrics.SyncChannel(ch.Len(), ch.Dropped())

# Metrics Endpoint

The status server exposes the registry via promhttp:

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
*/
package monitoring
