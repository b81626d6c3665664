package nl2sql

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGeminiTranslatorSendsGenerateRequest(t *testing.T) {
	var captured struct {
		SystemInstruction struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"system_instruction"`
		Contents []struct {
			Role  string `json:"role"`
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
		GenerationConfig struct {
			Temperature float64 `json:"temperature"`
		} `json:"generationConfig"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-2.5-pro:generateContent" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "google-key" {
			t.Errorf("x-goog-api-key = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]string{{"text": "SELECT * FROM product_eligibility WHERE eligibility = 0"}}}},
			},
		})
	}))
	defer server.Close()

	translator, err := NewGeminiTranslator(GeminiConfig{BaseURL: server.URL, APIKey: "google-key", Temperature: 0.1})
	if err != nil {
		t.Fatalf("NewGeminiTranslator error: %v", err)
	}

	result, err := translator.Translate(context.Background(), Request{Question: "which items are not eligible", Tables: promptTables})
	if err != nil {
		t.Fatalf("Translate error: %v", err)
	}
	if result.SQL != "SELECT * FROM product_eligibility WHERE eligibility = 0" {
		t.Fatalf("SQL = %q", result.SQL)
	}
	if result.Provider != "gemini" || result.Model != "gemini-2.5-pro" {
		t.Fatalf("Provider/Model = %q/%q", result.Provider, result.Model)
	}

	if len(captured.SystemInstruction.Parts) != 1 || !strings.Contains(captured.SystemInstruction.Parts[0].Text, "expert in SQLite SQL") {
		t.Fatalf("system instruction = %+v", captured.SystemInstruction)
	}
	if len(captured.Contents) != 1 || captured.Contents[0].Role != "user" {
		t.Fatalf("contents = %+v", captured.Contents)
	}
	if captured.GenerationConfig.Temperature != 0.1 {
		t.Fatalf("temperature = %v", captured.GenerationConfig.Temperature)
	}
}

func TestGeminiTranslatorJoinsMultipleParts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]string{
					{"text": "SELECT item_id FROM "},
					{"text": "product_ad_sales"},
				}}},
			},
		})
	}))
	defer server.Close()

	translator, err := NewGeminiTranslator(GeminiConfig{BaseURL: server.URL, APIKey: "k"})
	if err != nil {
		t.Fatalf("NewGeminiTranslator error: %v", err)
	}
	result, err := translator.Translate(context.Background(), Request{Question: "q"})
	if err != nil {
		t.Fatalf("Translate error: %v", err)
	}
	if result.SQL != "SELECT item_id FROM product_ad_sales" {
		t.Fatalf("SQL = %q", result.SQL)
	}
}

func TestGeminiTranslatorReportsNotAnswerable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]string{{"text": "\"N/A\""}}}},
			},
		})
	}))
	defer server.Close()

	translator, err := NewGeminiTranslator(GeminiConfig{BaseURL: server.URL, APIKey: "k"})
	if err != nil {
		t.Fatalf("NewGeminiTranslator error: %v", err)
	}
	if _, err := translator.Translate(context.Background(), Request{Question: "who won the world cup"}); !errors.Is(err, ErrNotAnswerable) {
		t.Fatalf("error = %v, want ErrNotAnswerable", err)
	}
}

func TestNewGeminiTranslatorRequiresKey(t *testing.T) {
	if _, err := NewGeminiTranslator(GeminiConfig{}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}
