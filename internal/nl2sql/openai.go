package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// OpenAITranslator speaks the chat-completions dialect, which also covers
// self-hosted gateways that expose the same endpoint.
type OpenAITranslator struct {
	endpoint    string
	header      http.Header
	model       string
	temperature float64
	client      *http.Client
}

func NewOpenAITranslator(cfg OpenAIConfig) (*OpenAITranslator, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, errors.New("missing chat endpoint base URL")
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errors.New("missing API key")
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+key)
	return &OpenAITranslator{
		endpoint:    strings.TrimRight(base, "/") + "/v1/chat/completions",
		header:      header,
		model:       orDefault(cfg.Model, "gpt-4o-mini"),
		temperature: cfg.Temperature,
		client:      newHTTPClient(cfg.Timeout, 30*time.Second),
	}, nil
}

type chatMessage struct {
	Content string `json:"content"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

func (t *OpenAITranslator) Translate(ctx context.Context, req Request) (Result, error) {
	payload := map[string]any{
		"model": t.model,
		"messages": []map[string]string{
			{"role": "system", "content": buildSystemPrompt(req.Tables)},
			{"role": "user", "content": buildUserPrompt(req.Question)},
		},
		"temperature": t.temperature,
	}

	var reply struct {
		Choices []chatChoice `json:"choices"`
	}
	if err := postJSON(ctx, t.client, t.endpoint, t.header, payload, &reply); err != nil {
		return Result{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(reply.Choices) == 0 {
		return Result{}, errors.New("chat completion returned no choices")
	}

	sqlText, err := extractSQL(reply.Choices[0].Message.Content)
	if err != nil {
		return Result{}, err
	}
	return Result{SQL: sqlText, Provider: "openai-compatible", Model: t.model}, nil
}
