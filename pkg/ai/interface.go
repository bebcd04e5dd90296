package ai

import (
	"context"
	"errors"
)

// ErrNoProvider is returned when no completion backend is configured.
var ErrNoProvider = errors.New("no AI provider available")

// Completer is a single prompt-in, text-out LLM backend.
// Implement this interface to add new AI providers (OpenAI, Gemini, Ollama, ...).
type Completer interface {
	// Complete sends system and user prompt and returns the raw model text.
	// When jsonMode is set the backend is asked to emit a JSON document.
	Complete(ctx context.Context, system, prompt string, jsonMode bool) (string, error)
	Name() string
}

// DecisionExtraction is the structured answer of the extraction prompt.
type DecisionExtraction struct {
	IsDecision    bool              `json:"is_decision"`
	Summary       string            `json:"summary"`
	DecisionMaker string            `json:"decision_maker"`
	Witnesses     []string          `json:"witnesses"`
	Topic         string            `json:"topic"`
	DecisionDate  string            `json:"decision_date"`
	Priority      string            `json:"priority"`
	DecisionType  string            `json:"decision_type"`
	Confidence    int               `json:"confidence"`
	KeyPoints     []string          `json:"key_points"`
	Parameters    map[string]string `json:"parameters"`
	Model         string            `json:"-"`
}

// DecisionService turns message text into decisions and label suggestions.
type DecisionService interface {
	ExtractDecision(ctx context.Context, thread string) (*DecisionExtraction, error)
	SuggestTags(ctx context.Context, summary string, existing []string) ([]string, error)
}

// ProviderType represents the AI provider type
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
	ProviderAuto   ProviderType = "auto"
)
