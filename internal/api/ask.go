package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/askdb/askdb/internal/agent"
)

type askRequest struct {
	Question string `json:"question"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Agent == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "question agent is not configured", false, nil)
		return
	}
	if !allow(w, r, "query_reader") {
		return
	}

	var req askRequest
	if !decodeBody(w, r, &req, "ask") {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	if wantsEventStream(r) {
		streamAsk(deps, w, r, req.Question)
		return
	}

	answer, err := deps.Agent.Ask(r.Context(), req.Question)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "ASK_FAILED", "failed to answer question", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func wantsEventStream(r *http.Request) bool {
	if r.URL.Query().Get("stream") == "sse" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// streamAsk replays agent progress as server-sent events. Once the stream
// starts the status is committed, so late failures surface as an error event
// instead of an error status.
func streamAsk(deps Dependencies, w http.ResponseWriter, r *http.Request, question string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(r.Context(), w, http.StatusInternalServerError, "STREAMING_UNSUPPORTED", "response writer does not support streaming", false, nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeEvent := func(stage string, payload any) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", stage, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	err := deps.Agent.AskStream(r.Context(), question, func(event agent.Event) error {
		return writeEvent(event.Stage, event)
	})
	if err != nil {
		if deps.Logger != nil {
			deps.Logger.WarnContext(r.Context(), "ask stream aborted", "error", err)
		}
		_ = writeEvent("error", map[string]any{
			"stage":   "error",
			"message": "failed to answer question",
		})
	}
}
