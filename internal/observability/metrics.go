package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics exposed by an agent or controller process.
type Metrics struct {
	// Heartbeat / mesh metrics
	HeartbeatsTotal     *prometheus.CounterVec
	HeartbeatDuration   prometheus.Histogram
	MeshPeersActive     prometheus.Gauge
	NATClassifications  *prometheus.CounterVec
	HolePunchAttempts   *prometheus.CounterVec
	MeshScoreGauge      prometheus.Gauge

	// Placement metrics
	PlacementDecisionsTotal *prometheus.CounterVec
	PlacementDuration       prometheus.Histogram
	NoCapacityTotal         prometheus.Counter

	// Chunk I/O metrics
	ChunkReadsTotal    *prometheus.CounterVec
	ChunkWritesTotal   *prometheus.CounterVec
	ChunkReadDuration  prometheus.Histogram
	ChunkWriteDuration prometheus.Histogram
	BytesServedTotal   *prometheus.CounterVec

	// Metadata authority metrics
	FsEntriesTotal    prometheus.Gauge
	FsOperationsTotal *prometheus.CounterVec

	// Drain metrics
	DrainInProgress  prometheus.Gauge
	DrainChunksMoved prometheus.Counter
	DrainRetries     prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		HeartbeatsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "junknas_heartbeats_total",
				Help: "Total heartbeats sent to the controller",
			},
			[]string{"result"},
		),

		HeartbeatDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "junknas_heartbeat_duration_seconds",
				Help:    "Heartbeat round-trip latency",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
			},
		),

		MeshPeersActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "junknas_mesh_peers_active",
				Help: "Peers in the controller's mesh table at the last mesh refresh",
			},
		),

		NATClassifications: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "junknas_nat_classifications_total",
				Help: "NAT classification passes by resulting type",
			},
			[]string{"nat_type"},
		),

		HolePunchAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "junknas_hole_punch_attempts_total",
				Help: "Hole punch attempts by outcome",
			},
			[]string{"result"},
		),

		MeshScoreGauge: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "junknas_mesh_score",
				Help: "This node's current mesh score",
			},
		),

		PlacementDecisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "junknas_placement_decisions_total",
				Help: "Chunk placement decisions by result",
			},
			[]string{"result"},
		),

		PlacementDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "junknas_placement_duration_seconds",
				Help:    "Time to rank candidates and choose a placement",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
			},
		),

		NoCapacityTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "junknas_no_capacity_total",
				Help: "Placement requests that found no eligible node/drive",
			},
		),

		ChunkReadsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "junknas_chunk_reads_total",
				Help: "Chunk reads by origin",
			},
			[]string{"origin"},
		),

		ChunkWritesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "junknas_chunk_writes_total",
				Help: "Chunk writes by destination",
			},
			[]string{"destination"},
		),

		ChunkReadDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "junknas_chunk_read_duration_seconds",
				Help:    "Per-chunk read latency",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
		),

		ChunkWriteDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "junknas_chunk_write_duration_seconds",
				Help:    "Per-chunk write latency",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
		),

		BytesServedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "junknas_bytes_served_total",
				Help: "Bytes served by direction",
			},
			[]string{"direction"},
		),

		FsEntriesTotal: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "junknas_fs_entries_total",
				Help: "Number of FsEntry objects tracked by the metadata authority",
			},
		),

		FsOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "junknas_fs_operations_total",
				Help: "Metadata authority operations by kind and result",
			},
			[]string{"op", "result"},
		),

		DrainInProgress: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "junknas_drain_in_progress",
				Help: "1 while a node drain is active, 0 otherwise",
			},
		),

		DrainChunksMoved: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "junknas_drain_chunks_moved_total",
				Help: "Chunks successfully migrated off a draining node",
			},
		),

		DrainRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "junknas_drain_retries_total",
				Help: "Drain migration attempts that had to be retried",
			},
		),
	}

	return m
}

// RecordHeartbeat records a heartbeat round trip.
func (m *Metrics) RecordHeartbeat(success bool, durationSeconds float64) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.HeartbeatsTotal.WithLabelValues(result).Inc()
	m.HeartbeatDuration.Observe(durationSeconds)
}

// RecordNATClassification records the outcome of a classification pass.
func (m *Metrics) RecordNATClassification(natType string, score float64) {
	m.NATClassifications.WithLabelValues(natType).Inc()
	m.MeshScoreGauge.Set(score)
}

// RecordHolePunch records a hole punch attempt outcome.
func (m *Metrics) RecordHolePunch(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.HolePunchAttempts.WithLabelValues(result).Inc()
}

// RecordPlacement records a placement decision.
func (m *Metrics) RecordPlacement(ok bool, durationSeconds float64) {
	result := "placed"
	if !ok {
		result = "no_capacity"
		m.NoCapacityTotal.Inc()
	}
	m.PlacementDecisionsTotal.WithLabelValues(result).Inc()
	m.PlacementDuration.Observe(durationSeconds)
}

// RecordChunkRead records a chunk read and its origin (local/remote).
func (m *Metrics) RecordChunkRead(origin string, bytes int, durationSeconds float64) {
	m.ChunkReadsTotal.WithLabelValues(origin).Inc()
	m.ChunkReadDuration.Observe(durationSeconds)
	m.BytesServedTotal.WithLabelValues("read").Add(float64(bytes))
}

// RecordChunkWrite records a chunk write and its destination (local/remote).
func (m *Metrics) RecordChunkWrite(destination string, bytes int, durationSeconds float64) {
	m.ChunkWritesTotal.WithLabelValues(destination).Inc()
	m.ChunkWriteDuration.Observe(durationSeconds)
	m.BytesServedTotal.WithLabelValues("write").Add(float64(bytes))
}

// RecordFsOperation records a metadata authority operation.
func (m *Metrics) RecordFsOperation(op string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.FsOperationsTotal.WithLabelValues(op, result).Inc()
}

// SetDrainInProgress toggles the drain gauge.
func (m *Metrics) SetDrainInProgress(active bool) {
	if active {
		m.DrainInProgress.Set(1)
	} else {
		m.DrainInProgress.Set(0)
	}
}

// Handler exposes the Prometheus metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
