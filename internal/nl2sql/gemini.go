package nl2sql

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

type GeminiConfig struct {
	// BaseURL overrides the Google endpoint, used by tests.
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// GeminiTranslator calls the Google Generative Language API.
type GeminiTranslator struct {
	endpoint    string
	header      http.Header
	model       string
	temperature float64
	client      *http.Client
}

func NewGeminiTranslator(cfg GeminiConfig) (*GeminiTranslator, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, fmt.Errorf("api key is required")
	}
	base := strings.TrimRight(orDefault(cfg.BaseURL, defaultGeminiBaseURL), "/")
	model := orDefault(cfg.Model, "gemini-2.5-pro")

	header := http.Header{}
	header.Set("x-goog-api-key", key)
	return &GeminiTranslator{
		endpoint:    fmt.Sprintf("%s/v1beta/models/%s:generateContent", base, model),
		header:      header,
		model:       model,
		temperature: cfg.Temperature,
		client:      newHTTPClient(cfg.Timeout, 30*time.Second),
	}, nil
}

func (t *GeminiTranslator) Translate(ctx context.Context, req Request) (Result, error) {
	payload := map[string]any{
		"system_instruction": map[string]any{
			"parts": []map[string]string{{"text": buildSystemPrompt(req.Tables)}},
		},
		"contents": []map[string]any{
			{
				"role":  "user",
				"parts": []map[string]string{{"text": buildUserPrompt(req.Question)}},
			},
		},
		"generationConfig": map[string]any{
			"temperature": t.temperature,
		},
	}

	var reply struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := postJSON(ctx, t.client, t.endpoint, t.header, payload, &reply); err != nil {
		return Result{}, fmt.Errorf("generate content: %w", err)
	}
	if len(reply.Candidates) == 0 || len(reply.Candidates[0].Content.Parts) == 0 {
		return Result{}, fmt.Errorf("empty generation candidates")
	}

	var text strings.Builder
	for _, part := range reply.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	sqlText, err := extractSQL(text.String())
	if err != nil {
		return Result{}, err
	}
	return Result{SQL: sqlText, Provider: "gemini", Model: t.model}, nil
}
