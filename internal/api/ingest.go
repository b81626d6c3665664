package api

import (
	"net/http"
	"strings"
)

type ingestRequest struct {
	Source string `json:"source"`
	Reset  bool   `json:"reset"`
}

// handleIngest loads one table. A JSON body names a source URL or file path
// to pull; a text/csv body is imported directly.
func handleIngest(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Ingest == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "INGEST_NOT_CONFIGURED", "ingest service is not configured", false, nil)
		return
	}
	tableName := strings.TrimSpace(r.PathValue("table"))
	if tableName == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "TABLE_REQUIRED", "table path parameter is required", false, nil)
		return
	}
	if !allow(w, r, "ingest_writer") {
		return
	}

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "text/csv") {
		reset := r.URL.Query().Get("reset") == "true"
		result, err := deps.Ingest.LoadTableFrom(r.Context(), tableName, "upload", r.Body, reset)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INGEST_FAILED", "csv import failed", false, map[string]any{
				"details": err.Error(),
				"table":   tableName,
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "completed", "result": result})
		return
	}

	var req ingestRequest
	if !decodeBody(w, r, &req, "ingest") {
		return
	}
	if strings.TrimSpace(req.Source) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SOURCE_REQUIRED", "source is required", false, nil)
		return
	}

	result, err := deps.Ingest.LoadTable(r.Context(), tableName, req.Source, req.Reset)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INGEST_FAILED", "table load failed", false, map[string]any{
			"details": err.Error(),
			"table":   tableName,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "completed", "result": result})
}
