package nl2sql

import (
	"fmt"
	"strings"

	"github.com/askdb/askdb/internal/config"
)

// NewTranslator builds the translator named by the AI config section.
func NewTranslator(cfg config.AIConfig) (Translator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "gemini":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("gemini provider requires ASKDB_AI_API_KEY or GOOGLE_API_KEY")
		}
		return NewGeminiTranslator(GeminiConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	case "openai":
		baseURL := strings.TrimSpace(cfg.BaseURL)
		if baseURL == "" {
			baseURL = "https://api.openai.com"
		}
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("openai provider requires ASKDB_AI_API_KEY")
		}
		return NewOpenAITranslator(OpenAIConfig{
			BaseURL:     baseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	case "ollama":
		return NewOllamaTranslator(OllamaConfig{
			Host:        cfg.OllamaHost,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}
