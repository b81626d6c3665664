package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	translationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_translation_requests_total",
			Help: "Total number of natural language to SQL translation requests.",
		},
		[]string{"provider", "status"},
	)
	translationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdb_translation_duration_seconds",
			Help:    "Latency of LLM translation calls.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"provider"},
	)
	questionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_questions_total",
			Help: "Total number of questions processed by outcome.",
		},
		[]string{"outcome"},
	)
	queryExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_query_executions_total",
			Help: "Total number of SQL statements executed.",
		},
		[]string{"status"},
	)
	queryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdb_query_duration_seconds",
			Help:    "SQL execution latency.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		},
	)
	ingestRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_ingest_rows_total",
			Help: "Total number of rows loaded per table.",
		},
		[]string{"table"},
	)
	ingestRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_ingest_runs_total",
			Help: "Total number of ingest runs by final status.",
		},
		[]string{"status"},
	)
	datasetRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "askdb_dataset_rows",
			Help: "Current row count per dataset table.",
		},
		[]string{"table"},
	)
	datasetLastIngestTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "askdb_dataset_last_ingest_timestamp_seconds",
			Help: "Unix timestamp of the most recent completed ingest run.",
		},
	)
	maintenanceRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_maintenance_runs_total",
			Help: "Total number of maintenance operations by outcome.",
		},
		[]string{"operation", "status"},
	)
	snapshotBytesWrittenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_snapshot_bytes_written_total",
			Help: "Total bytes written to snapshot and backup artifacts.",
		},
	)
	artifactsDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_artifacts_deleted_total",
			Help: "Total number of artifacts removed by retention.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		translationRequestsTotal,
		translationDurationSeconds,
		questionsTotal,
		queryExecutionsTotal,
		queryDurationSeconds,
		ingestRowsTotal,
		ingestRunsTotal,
		datasetRows,
		datasetLastIngestTimestamp,
		maintenanceRunsTotal,
		snapshotBytesWrittenTotal,
		artifactsDeletedTotal,
	)
}

func ObserveTranslation(provider string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	translationRequestsTotal.WithLabelValues(provider, status).Inc()
	translationDurationSeconds.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func ObserveQuestion(outcome string) {
	questionsTotal.WithLabelValues(outcome).Inc()
}

func ObserveQueryExecution(elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	queryExecutionsTotal.WithLabelValues(status).Inc()
	queryDurationSeconds.Observe(elapsed.Seconds())
}

func ObserveIngestRun(table string, rows int, err error) {
	status := "completed"
	if err != nil {
		status = "failed"
	}
	ingestRunsTotal.WithLabelValues(status).Inc()
	if rows > 0 {
		ingestRowsTotal.WithLabelValues(table).Add(float64(rows))
	}
}

func SetDatasetRows(table string, rows int64) {
	if rows < 0 {
		rows = 0
	}
	datasetRows.WithLabelValues(table).Set(float64(rows))
}

func SetDatasetLastIngest(ts time.Time) {
	if ts.IsZero() {
		return
	}
	datasetLastIngestTimestamp.Set(float64(ts.Unix()))
}

func ObserveMaintenanceRun(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	maintenanceRunsTotal.WithLabelValues(operation, status).Inc()
}

func AddSnapshotBytes(n int64) {
	if n > 0 {
		snapshotBytesWrittenTotal.Add(float64(n))
	}
}

func AddArtifactsDeleted(n int) {
	if n > 0 {
		artifactsDeletedTotal.Add(float64(n))
	}
}
