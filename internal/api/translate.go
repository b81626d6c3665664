package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/askdb/askdb/internal/nl2sql"
)

type translateRequest struct {
	Question string `json:"question"`
}

type translateResponse struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// handleTranslate runs only the English-to-SQL step and returns the SQL
// without executing it.
func handleTranslate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Agent == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TRANSLATION_NOT_CONFIGURED", "query translation is not configured", false, nil)
		return
	}
	if !allow(w, r, "query_reader") {
		return
	}

	var req translateRequest
	if !decodeBody(w, r, &req, "translation") {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	result, err := deps.Agent.Translate(r.Context(), req.Question)
	if errors.Is(err, nl2sql.ErrNotAnswerable) {
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "NOT_ANSWERABLE", "question cannot be answered from the available tables", false, nil)
		return
	}
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "TRANSLATION_FAILED", "failed to translate question", true, map[string]any{"details": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, translateResponse{
		SQL:      result.SQL,
		Provider: result.Provider,
		Model:    result.Model,
	})
}
