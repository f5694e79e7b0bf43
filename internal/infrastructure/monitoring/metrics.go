package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Shutdown outcomes recorded per worker.
const (
	OutcomeJoined     = "joined"
	OutcomeTerminated = "terminated"
	OutcomeAbandoned  = "abandoned"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	// Worker metrics
	WorkersSpawned prometheus.Counter
	WorkersAlive   prometheus.Gauge
	AbnormalExits  prometheus.Counter
	WorkerOutcomes *prometheus.CounterVec

	// Sample metrics
	SamplesReceived *prometheus.CounterVec
	SamplesDropped  prometheus.Counter
	ChannelDepth    prometheus.Gauge

	// Coordinator metrics
	State            prometheus.Gauge
	ShutdownDuration prometheus.Histogram

	mu          sync.Mutex
	lastDropped uint64
}

// NewMetrics creates collectors registered on reg. Pass prometheus.NewRegistry()
// in tests to keep runs isolated.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		WorkersSpawned: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "rngpool_workers_spawned_total",
				Help: "Total number of workers spawned",
			},
		),
		WorkersAlive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "rngpool_workers_alive",
				Help: "Number of workers not yet terminated",
			},
		),
		AbnormalExits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "rngpool_worker_abnormal_exits_total",
				Help: "Total number of workers that exited with a non-zero status",
			},
		),
		WorkerOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rngpool_worker_shutdown_outcomes_total",
				Help: "Workers by shutdown outcome",
			},
			[]string{"outcome"},
		),
		SamplesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rngpool_samples_received_total",
				Help: "Total number of samples received by the coordinator",
			},
			[]string{"worker"},
		),
		SamplesDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "rngpool_samples_dropped_total",
				Help: "Total number of samples dropped because the channel was full",
			},
		),
		ChannelDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "rngpool_channel_depth",
				Help: "Samples currently held in the shared channel",
			},
		),
		State: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "rngpool_coordinator_state",
				Help: "Coordinator state (0 starting, 1 running, 2 stopping, 3 done)",
			},
		),
		ShutdownDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rngpool_shutdown_duration_seconds",
				Help:    "Time spent in the shutdown escalation",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 3, 4, 5, 10},
			},
		),
	}
}

// RecordSpawn records a spawned worker
func (m *Metrics) RecordSpawn() {
	if m == nil {
		return
	}
	m.WorkersSpawned.Inc()
	m.WorkersAlive.Inc()
}

// RecordAbnormalExit records a worker that exited with a non-zero status
func (m *Metrics) RecordAbnormalExit() {
	if m == nil {
		return
	}
	m.AbnormalExits.Inc()
}

// RecordOutcome records how a worker left the pool during shutdown
func (m *Metrics) RecordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.WorkerOutcomes.WithLabelValues(outcome).Inc()
	if outcome != OutcomeAbandoned {
		m.WorkersAlive.Dec()
	}
}

// RecordSample records a sample received from the named worker
func (m *Metrics) RecordSample(worker string) {
	if m == nil {
		return
	}
	m.SamplesReceived.WithLabelValues(worker).Inc()
}

// SyncChannel mirrors the channel's depth and cumulative drop count.
func (m *Metrics) SyncChannel(depth int, dropped uint64) {
	if m == nil {
		return
	}
	m.ChannelDepth.Set(float64(depth))

	m.mu.Lock()
	defer m.mu.Unlock()
	if dropped > m.lastDropped {
		m.SamplesDropped.Add(float64(dropped - m.lastDropped))
		m.lastDropped = dropped
	}
}

// SetState records the coordinator state
func (m *Metrics) SetState(state int) {
	if m == nil {
		return
	}
	m.State.Set(float64(state))
}

// ObserveShutdown records the duration of a shutdown escalation
func (m *Metrics) ObserveShutdown(d time.Duration) {
	if m == nil {
		return
	}
	m.ShutdownDuration.Observe(d.Seconds())
}
