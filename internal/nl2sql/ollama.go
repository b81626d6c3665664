package nl2sql

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaHost = "http://localhost:11434"

type OllamaConfig struct {
	Host        string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// OllamaTranslator targets a local Ollama daemon, useful for keyless
// development against small models.
type OllamaTranslator struct {
	endpoint    string
	model       string
	temperature float64
	client      *http.Client
}

func NewOllamaTranslator(cfg OllamaConfig) (*OllamaTranslator, error) {
	host := orDefault(cfg.Host, defaultOllamaHost)
	return &OllamaTranslator{
		endpoint:    strings.TrimRight(host, "/") + "/api/chat",
		model:       orDefault(cfg.Model, "llama3"),
		temperature: cfg.Temperature,
		client:      newHTTPClient(cfg.Timeout, 60*time.Second),
	}, nil
}

func (t *OllamaTranslator) Translate(ctx context.Context, req Request) (Result, error) {
	payload := map[string]any{
		"model":  t.model,
		"stream": false,
		"messages": []map[string]string{
			{"role": "system", "content": buildSystemPrompt(req.Tables)},
			{"role": "user", "content": buildUserPrompt(req.Question)},
		},
		"options": map[string]any{"temperature": t.temperature},
	}

	var reply struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := postJSON(ctx, t.client, t.endpoint, nil, payload, &reply); err != nil {
		return Result{}, fmt.Errorf("ollama chat: %w", err)
	}

	sqlText, err := extractSQL(reply.Message.Content)
	if err != nil {
		return Result{}, err
	}
	return Result{SQL: sqlText, Provider: "ollama", Model: t.model}, nil
}
