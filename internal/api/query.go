package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/askdb/askdb/internal/query"
)

type queryRequest struct {
	SQL      string `json:"sql"`
	RowLimit int    `json:"row_limit"`
}

type queryResponse struct {
	Columns      []string       `json:"columns,omitempty"`
	Rows         [][]any        `json:"rows,omitempty"`
	RowsAffected int64          `json:"rows_affected,omitempty"`
	ReadOnly     bool           `json:"read_only"`
	Stats        map[string]any `json:"stats"`
}

// handleQuery executes caller-written SQL through the same guard the agent
// uses.
func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.QueryEngine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query engine is not configured", false, nil)
		return
	}
	if !allow(w, r, "query_reader") {
		return
	}

	var request queryRequest
	if !decodeBody(w, r, &request, "query") {
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}

	// A caller may tighten the configured row limit but never widen it.
	rowLimit := deps.QueryRowLimit
	if request.RowLimit > 0 && (rowLimit <= 0 || request.RowLimit < rowLimit) {
		rowLimit = request.RowLimit
	}

	result, err := deps.QueryEngine.Execute(r.Context(), query.Request{
		SQL:         request.SQL,
		RowLimit:    rowLimit,
		AllowWrites: deps.QueryAllowWrites,
	})
	switch {
	case errors.Is(err, query.ErrRejected):
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REJECTED", err.Error(), false, nil)
		return
	case err != nil:
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_FAILED", "query execution failed", false, map[string]any{"details": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Columns:      result.Columns,
		Rows:         result.Rows,
		RowsAffected: result.RowsAffected,
		ReadOnly:     result.ReadOnly,
		Stats: map[string]any{
			"duration_ms": result.Duration.Milliseconds(),
			"row_limit":   rowLimit,
		},
	})
}
