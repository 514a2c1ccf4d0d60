package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Graph store metrics
	EntitiesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "graphkeep_entities_total",
			Help: "Total number of entities currently held in the graph store",
		},
	)

	RelationsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "graphkeep_relations_total",
			Help: "Total number of relations currently held in the graph store",
		},
	)

	GraphMutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphkeep_graph_mutations_total",
			Help: "Total number of graph mutations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	GraphMutationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphkeep_graph_mutation_duration_seconds",
			Help:    "Time taken to apply a graph mutation in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "graphkeep_search_duration_seconds",
			Help:    "Time taken to execute SearchNodes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Event store metrics
	EventLogLength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "graphkeep_event_log_length",
			Help: "Number of events appended to the event log since the last snapshot",
		},
	)

	EventsAppendedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "graphkeep_events_appended_total",
			Help: "Total number of events appended to the event log",
		},
	)

	EventAppendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "graphkeep_event_append_duration_seconds",
			Help:    "Time taken to durably append a single event in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	EventReplayDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "graphkeep_event_replay_duration_seconds",
			Help:    "Time taken to replay the event log on startup in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)

	EventReplayCorruptedLines = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "graphkeep_event_replay_corrupted_lines_total",
			Help: "Total number of corrupted lines skipped during event log replay",
		},
	)

	// Snapshot metrics
	SnapshotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphkeep_snapshots_total",
			Help: "Total number of snapshots written by outcome",
		},
		[]string{"outcome"},
	)

	SnapshotDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "graphkeep_snapshot_duration_seconds",
			Help:    "Time taken to write a snapshot in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SnapshotLastEventID = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "graphkeep_snapshot_last_event_id",
			Help: "Event ID covered by the most recently written snapshot",
		},
	)

	ArchivesRotatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "graphkeep_archives_rotated_total",
			Help: "Total number of event log archive files created during rotation",
		},
	)

	// Broadcaster metrics
	BroadcastSubscribersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "graphkeep_broadcast_subscribers_total",
			Help: "Current number of subscribers attached to the broadcaster",
		},
	)

	BroadcastSequenceID = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "graphkeep_broadcast_sequence_id",
			Help: "Next broadcaster sequence ID to be assigned (number of messages published)",
		},
	)

	BroadcastDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "graphkeep_broadcast_dropped_total",
			Help: "Total number of events dropped for slow subscribers whose channel was full",
		},
	)

	// Inference engine metrics
	InferenceQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "graphkeep_inference_queries_total",
			Help: "Total number of inference traversals executed",
		},
	)

	InferenceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "graphkeep_inference_duration_seconds",
			Help:    "Time taken to execute a bounded inference traversal in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	InferenceNodesVisited = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "graphkeep_inference_nodes_visited",
			Help:    "Number of nodes visited per inference traversal",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
	)
)

func init() {
	prometheus.MustRegister(EntitiesTotal)
	prometheus.MustRegister(RelationsTotal)
	prometheus.MustRegister(GraphMutationsTotal)
	prometheus.MustRegister(GraphMutationDuration)
	prometheus.MustRegister(SearchDuration)

	prometheus.MustRegister(EventLogLength)
	prometheus.MustRegister(EventsAppendedTotal)
	prometheus.MustRegister(EventAppendDuration)
	prometheus.MustRegister(EventReplayDuration)
	prometheus.MustRegister(EventReplayCorruptedLines)

	prometheus.MustRegister(SnapshotsTotal)
	prometheus.MustRegister(SnapshotDuration)
	prometheus.MustRegister(SnapshotLastEventID)
	prometheus.MustRegister(ArchivesRotatedTotal)

	prometheus.MustRegister(BroadcastSubscribersTotal)
	prometheus.MustRegister(BroadcastSequenceID)
	prometheus.MustRegister(BroadcastDroppedTotal)

	prometheus.MustRegister(InferenceQueriesTotal)
	prometheus.MustRegister(InferenceDuration)
	prometheus.MustRegister(InferenceNodesVisited)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
