package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaService implements Completer using an Ollama server
type OllamaService struct {
	getBaseURL func() string // Dynamic getter for BaseURL
	getModel   func() string // Dynamic getter for Model
	client     *http.Client
}

// NewOllamaService creates a new Ollama service
func NewOllamaService(baseURL, model string) *OllamaService {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3"
	}
	return NewOllamaServiceWithGetters(
		func() string { return baseURL },
		func() string { return model },
	)
}

// NewOllamaServiceWithGetters creates a new Ollama service with dynamic getters,
// so settings changed at runtime apply to the next request.
func NewOllamaServiceWithGetters(getBaseURL, getModel func() string) *OllamaService {
	return &OllamaService{
		getBaseURL: getBaseURL,
		getModel:   getModel,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

func (o *OllamaService) Name() string { return "ollama:" + o.getModel() }

// Complete implements Completer
func (o *OllamaService) Complete(ctx context.Context, system, prompt string, jsonMode bool) (string, error) {
	url := o.getBaseURL() + "/api/generate"

	payload := map[string]interface{}{
		"model":  o.getModel(),
		"system": system,
		"prompt": prompt,
		"stream": false,
		"options": map[string]interface{}{
			"temperature": 0.2,
			"num_predict": 800,
		},
	}
	if jsonMode {
		payload["format"] = "json"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Response string `json:"response"`
		Done     bool   `json:"done"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	return result.Response, nil
}

// Ping checks that the server answers on /api/tags.
func (o *OllamaService) Ping(ctx context.Context, baseURL string) (int, error) {
	if baseURL == "" {
		baseURL = o.getBaseURL()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return 0, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
