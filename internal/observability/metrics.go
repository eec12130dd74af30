package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the block pipeline.
type Metrics struct {
	// Ingestion metrics
	RecordsIngested  *prometheus.CounterVec
	SourceMessages   *prometheus.CounterVec
	SourceErrors     *prometheus.CounterVec
	RateLimitWait    *prometheus.HistogramVec

	// Generator metrics
	BlocksGenerated  *prometheus.CounterVec
	BlockRecordCount *prometheus.HistogramVec
	QueueDepth       *prometheus.GaugeVec
	BlocksPushed     *prometheus.CounterVec
	PushDuration     *prometheus.HistogramVec

	// Storage metrics
	BlocksStored  *prometheus.CounterVec
	StoreDuration *prometheus.HistogramVec
	BlockSize     *prometheus.HistogramVec
	StorageErrors *prometheus.CounterVec
	Reallocations *prometheus.CounterVec

	// Coordinator metrics
	CoordinatorRequests *prometheus.CounterVec
	CoordinatorLatency  *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		// Ingestion metrics
		RecordsIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "records_ingested_total",
				Help: "Total number of records added to the active buffer",
			},
			[]string{"stream"},
		),
		SourceMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "source_messages_total",
				Help: "Total number of messages consumed from the record source",
			},
			[]string{"topic", "partition"},
		),
		SourceErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "source_errors_total",
				Help: "Total number of record source errors",
			},
			[]string{"topic"},
		),
		RateLimitWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rate_limit_wait_seconds",
				Help:    "Time spent waiting on the ingestion rate limiter",
				Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"stream"},
		),

		// Generator metrics
		BlocksGenerated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blocks_generated_total",
				Help: "Total number of blocks finalized from buffer swaps",
			},
			[]string{"stream", "split"},
		),
		BlockRecordCount: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "block_record_count",
				Help:    "Number of records per generated block",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
			[]string{"stream"},
		),
		QueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "handoff_queue_depth",
				Help: "Current number of blocks waiting in the hand-off queue",
			},
			[]string{"stream"},
		),
		BlocksPushed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blocks_pushed_total",
				Help: "Total number of blocks delivered by the drain worker",
			},
			[]string{"stream", "status"},
		),
		PushDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "block_push_duration_seconds",
				Help:    "Duration of block delivery including storage hand-off",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stream"},
		),

		// Storage metrics
		BlocksStored: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blocks_stored_total",
				Help: "Total number of blocks written by the storage handler",
			},
			[]string{"backend", "format", "status"},
		),
		StoreDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "block_store_duration_seconds",
				Help:    "Duration of storage handler store operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
		BlockSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "block_size_bytes",
				Help:    "Stored payload size per block",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
			},
			[]string{"backend", "format"},
		),
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_errors_total",
				Help: "Total number of storage handler errors",
			},
			[]string{"backend", "operation"},
		),
		Reallocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "block_reallocations_total",
				Help: "Total number of block relocations to another host",
			},
			[]string{"backend", "status"},
		),

		// Coordinator metrics
		CoordinatorRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coordinator_requests_total",
				Help: "Total number of coordinator requests",
			},
			[]string{"endpoint", "status"},
		),
		CoordinatorLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coordinator_request_duration_seconds",
				Help:    "Latency of coordinator requests",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"endpoint"},
		),
	}
}

// IncRecordsIngested increments the ingested records counter.
func (m *Metrics) IncRecordsIngested(stream int) {
	m.RecordsIngested.WithLabelValues(fmt.Sprintf("%d", stream)).Inc()
}

// IncSourceMessages increments the source messages counter.
func (m *Metrics) IncSourceMessages(topic string, partition int32) {
	m.SourceMessages.WithLabelValues(topic, fmt.Sprintf("%d", partition)).Inc()
}

// IncSourceErrors increments the source errors counter.
func (m *Metrics) IncSourceErrors(topic string) {
	m.SourceErrors.WithLabelValues(topic).Inc()
}

// ObserveRateLimitWait observes time spent waiting on the rate limiter.
func (m *Metrics) ObserveRateLimitWait(stream int, duration float64) {
	m.RateLimitWait.WithLabelValues(fmt.Sprintf("%d", stream)).Observe(duration)
}

// IncBlocksGenerated increments the generated blocks counter.
func (m *Metrics) IncBlocksGenerated(stream int, split bool) {
	m.BlocksGenerated.WithLabelValues(fmt.Sprintf("%d", stream), fmt.Sprintf("%t", split)).Inc()
}

// ObserveBlockRecordCount observes the record count of a generated block.
func (m *Metrics) ObserveBlockRecordCount(stream int, count float64) {
	m.BlockRecordCount.WithLabelValues(fmt.Sprintf("%d", stream)).Observe(count)
}

// SetQueueDepth sets the hand-off queue depth gauge.
func (m *Metrics) SetQueueDepth(stream int, depth float64) {
	m.QueueDepth.WithLabelValues(fmt.Sprintf("%d", stream)).Set(depth)
}

// IncBlocksPushed increments the pushed blocks counter.
func (m *Metrics) IncBlocksPushed(stream int, status string) {
	m.BlocksPushed.WithLabelValues(fmt.Sprintf("%d", stream), status).Inc()
}

// ObservePushDuration observes block delivery duration.
func (m *Metrics) ObservePushDuration(stream int, duration float64) {
	m.PushDuration.WithLabelValues(fmt.Sprintf("%d", stream)).Observe(duration)
}

// IncBlocksStored increments the stored blocks counter.
func (m *Metrics) IncBlocksStored(backend string, format string, status string) {
	m.BlocksStored.WithLabelValues(backend, format, status).Inc()
}

// ObserveStoreDuration observes storage handler store duration.
func (m *Metrics) ObserveStoreDuration(backend string, duration float64) {
	m.StoreDuration.WithLabelValues(backend).Observe(duration)
}

// ObserveBlockSize observes the stored payload size of a block.
func (m *Metrics) ObserveBlockSize(backend string, format string, size float64) {
	m.BlockSize.WithLabelValues(backend, format).Observe(size)
}

// IncStorageErrors increments the storage errors counter.
func (m *Metrics) IncStorageErrors(backend string, operation string) {
	m.StorageErrors.WithLabelValues(backend, operation).Inc()
}

// IncReallocations increments the block relocations counter.
func (m *Metrics) IncReallocations(backend string, status string) {
	m.Reallocations.WithLabelValues(backend, status).Inc()
}

// IncCoordinatorRequests increments the coordinator requests counter.
func (m *Metrics) IncCoordinatorRequests(endpoint string, status string) {
	m.CoordinatorRequests.WithLabelValues(endpoint, status).Inc()
}

// ObserveCoordinatorLatency observes coordinator request latency.
func (m *Metrics) ObserveCoordinatorLatency(endpoint string, duration float64) {
	m.CoordinatorLatency.WithLabelValues(endpoint).Observe(duration)
}
