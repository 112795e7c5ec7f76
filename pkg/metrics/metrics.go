package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Enumeration metrics
	ObjectsStored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grackle_objects_stored_total",
			Help: "Total number of directory objects stored by category",
		},
		[]string{"category"},
	)

	CategoriesFinished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grackle_categories_finished_total",
			Help: "Total number of category streams drained",
		},
	)

	WorkerExceptions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grackle_worker_exceptions_total",
			Help: "Total number of exceptions surfaced by enumeration workers",
		},
	)

	SpillRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grackle_spill_records_total",
			Help: "Total number of records written to spill files by kind",
		},
		[]string{"kind"},
	)

	BulkLoadedRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grackle_bulk_loaded_rows_total",
			Help: "Total number of spill rows loaded into the store by kind",
		},
		[]string{"kind"},
	)

	EnumerationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "grackle_enumeration_duration_seconds",
			Help:    "End-to-end enumeration run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		},
	)

	// Graph metrics
	GraphEdgesLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "grackle_graph_edges_loaded",
			Help: "Number of edges loaded into the in-memory graph",
		},
	)

	GraphNodesLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "grackle_graph_nodes_loaded",
			Help: "Number of nodes loaded into the in-memory graph",
		},
	)

	PathQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grackle_path_queries_total",
			Help: "Total number of path queries by mode",
		},
		[]string{"mode"},
	)

	PathQueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "grackle_path_query_duration_seconds",
			Help:    "Path query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ObjectsStored)
	prometheus.MustRegister(CategoriesFinished)
	prometheus.MustRegister(WorkerExceptions)
	prometheus.MustRegister(SpillRecords)
	prometheus.MustRegister(BulkLoadedRows)
	prometheus.MustRegister(EnumerationDuration)
	prometheus.MustRegister(GraphEdgesLoaded)
	prometheus.MustRegister(GraphNodesLoaded)
	prometheus.MustRegister(PathQueries)
	prometheus.MustRegister(PathQueryDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
