package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/askdb/askdb/internal/catalog"
)

func handleListTables(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Catalog == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TABLES_NOT_CONFIGURED", "catalog dependency is not configured", false, nil)
		return
	}
	if !allow(w, r, "query_reader") {
		return
	}

	tables, err := deps.Catalog.ListTables(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to list tables", true, map[string]any{"details": err.Error()})
		return
	}
	items := make([]map[string]any, 0, len(tables))
	for _, table := range tables {
		items = append(items, tablePayload(table))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": items})
}

func handleGetTable(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Catalog == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TABLES_NOT_CONFIGURED", "catalog dependency is not configured", false, nil)
		return
	}
	if !allow(w, r, "query_reader") {
		return
	}
	tableName := strings.TrimSpace(r.PathValue("table"))
	if tableName == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "TABLE_REQUIRED", "table path parameter is required", false, nil)
		return
	}

	table, err := deps.Catalog.GetTable(r.Context(), tableName)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "TABLE_NOT_FOUND", "table was not found", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to get table", true, map[string]any{"details": err.Error()})
		return
	}

	payload := tablePayload(table)
	if runs, err := deps.Catalog.LatestIngestRuns(r.Context()); err == nil {
		for _, run := range runs {
			if run.TableName == tableName {
				payload["latest_ingest_run"] = ingestRunPayload(run)
				break
			}
		}
	}
	if limit := sampleLimit(r, 0); limit > 0 {
		sample, err := deps.Catalog.SampleRows(r.Context(), tableName, limit)
		if err != nil {
			writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to sample rows", true, map[string]any{"details": err.Error()})
			return
		}
		payload["sample"] = map[string]any{
			"columns": sample.Columns,
			"rows":    sample.Rows,
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleUISchema feeds the web form's schema panel: every table with its
// columns and a few example rows.
func handleUISchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Catalog == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "catalog dependency is not configured", false, nil)
		return
	}
	if !allow(w, r, "query_reader") {
		return
	}

	tables, err := deps.Catalog.ListTables(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_FETCH_FAILED", "failed to load schema", true, map[string]any{"details": err.Error()})
		return
	}

	limit := sampleLimit(r, schemaSampleRows(deps))
	items := make([]map[string]any, 0, len(tables))
	for _, table := range tables {
		item := tablePayload(table)
		if limit > 0 {
			sample, err := deps.Catalog.SampleRows(r.Context(), table.Name, limit)
			if err == nil {
				item["sample"] = map[string]any{
					"columns": sample.Columns,
					"rows":    sample.Rows,
				}
			}
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": items})
}

func tablePayload(table catalog.Table) map[string]any {
	columns := make([]map[string]any, 0, len(table.Columns))
	for _, col := range table.Columns {
		columns = append(columns, map[string]any{
			"name":        col.Name,
			"type":        col.Type,
			"not_null":    col.NotNull,
			"primary_key": col.PrimaryKey,
		})
	}
	return map[string]any{
		"table_name": table.Name,
		"row_count":  table.RowCount,
		"columns":    columns,
	}
}

func sampleLimit(r *http.Request, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get("sample"))
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return fallback
	}
	if limit > 100 {
		limit = 100
	}
	return limit
}

func schemaSampleRows(deps Dependencies) int {
	if deps.SchemaSampleRows > 0 {
		return deps.SchemaSampleRows
	}
	return 5
}
