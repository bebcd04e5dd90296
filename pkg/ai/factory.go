package ai

import (
	"fmt"

	"decisionlog-backend/pkg/gemini"

	"go.uber.org/zap"
)

// DynamicConfig holds AI provider configuration. Ollama settings are read
// through getters so they can be changed at runtime.
type DynamicConfig struct {
	Provider ProviderType

	OpenAIAPIKey string
	OpenAIModel  string

	GeminiAPIKey string

	GetOllamaBaseURL func() string
	GetOllamaModel   func() string
}

// NewCompleter builds the backend for cfg.Provider. ProviderAuto chains every
// configured hosted provider and ends with Ollama.
func NewCompleter(cfg DynamicConfig, log *zap.Logger) (Completer, error) {
	ollama := func() Completer {
		if cfg.GetOllamaBaseURL == nil || cfg.GetOllamaModel == nil {
			return NewOllamaService("", "")
		}
		return NewOllamaServiceWithGetters(cfg.GetOllamaBaseURL, cfg.GetOllamaModel)
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for OpenAI provider")
		}
		o, err := NewOpenAIService(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			return nil, err
		}
		return o, nil

	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for Gemini provider")
		}
		return gemini.NewGeminiService(cfg.GeminiAPIKey), nil

	case ProviderOllama:
		return ollama(), nil

	default:
		var chain []Completer
		if cfg.OpenAIAPIKey != "" {
			o, err := NewOpenAIService(cfg.OpenAIAPIKey, cfg.OpenAIModel)
			if err != nil {
				return nil, err
			}
			chain = append(chain, o)
		}
		if cfg.GeminiAPIKey != "" {
			chain = append(chain, gemini.NewGeminiService(cfg.GeminiAPIKey))
		}
		chain = append(chain, ollama())
		return NewFallbackService(log, chain...), nil
	}
}
