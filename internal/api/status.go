package api

import (
	"net/http"
	"time"

	"github.com/askdb/askdb/internal/catalog"
	"github.com/askdb/askdb/internal/observability"
)

// handleStatus reports dataset freshness: file stats, per-table row counts,
// and the latest ingest run for each table. Reading it also refreshes the
// dataset gauges.
func handleStatus(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Catalog == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "STATUS_NOT_CONFIGURED", "catalog dependency is not configured", false, nil)
		return
	}
	if !allow(w, r, "ops_admin") {
		return
	}

	stats, err := deps.Catalog.DatabaseStats(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to read database stats", true, map[string]any{"details": err.Error()})
		return
	}
	tables, err := deps.Catalog.ListTables(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to list tables", true, map[string]any{"details": err.Error()})
		return
	}
	runs, err := deps.Catalog.LatestIngestRuns(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to read ingest runs", true, map[string]any{"details": err.Error()})
		return
	}

	tableItems := make([]map[string]any, 0, len(tables))
	for _, table := range tables {
		observability.SetDatasetRows(table.Name, table.RowCount)
		tableItems = append(tableItems, map[string]any{
			"table_name": table.Name,
			"row_count":  table.RowCount,
		})
	}

	runItems := make([]map[string]any, 0, len(runs))
	var lastIngest time.Time
	for _, run := range runs {
		runItems = append(runItems, ingestRunPayload(run))
		if run.Status == catalog.RunStatusCompleted && run.CompletedAt != nil && run.CompletedAt.After(lastIngest) {
			lastIngest = *run.CompletedAt
		}
	}
	if !lastIngest.IsZero() {
		observability.SetDatasetLastIngest(lastIngest)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"database": map[string]any{
			"page_count": stats.PageCount,
			"page_size":  stats.PageSize,
			"size_bytes": stats.SizeBytes,
		},
		"tables":      tableItems,
		"ingest_runs": runItems,
	})
}

func ingestRunPayload(run catalog.IngestRun) map[string]any {
	payload := map[string]any{
		"id":         run.ID,
		"table_name": run.TableName,
		"source":     run.Source,
		"rows":       run.Rows,
		"status":     run.Status,
		"started_at": run.StartedAt,
	}
	if run.Error != "" {
		payload["error"] = run.Error
	}
	if run.CompletedAt != nil {
		payload["completed_at"] = run.CompletedAt
	}
	return payload
}
