package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultModel = "gemini-2.5-flash"

type GeminiService struct {
	ApiKey  string
	Model   string
	BaseURL string
	client  *http.Client
}

func NewGeminiService(apiKey string) *GeminiService {
	return &GeminiService{
		ApiKey:  apiKey,
		Model:   defaultModel,
		BaseURL: "https://generativelanguage.googleapis.com/v1beta",
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *GeminiService) Name() string { return "gemini:" + g.Model }

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	SystemInstruction *content       `json:"systemInstruction,omitempty"`
	Contents          []content      `json:"contents"`
	GenerationConfig  map[string]any `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Complete calls generateContent and returns the first candidate's text.
func (g *GeminiService) Complete(ctx context.Context, system, prompt string, jsonMode bool) (string, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.BaseURL, g.Model, g.ApiKey)

	payload := generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: map[string]any{"temperature": 0.2},
	}
	if system != "" {
		payload.SystemInstruction = &content{Parts: []part{{Text: system}}}
	}
	if jsonMode {
		payload.GenerationConfig["responseMimeType"] = "application/json"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Gemini API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var result generateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", err
	}

	if len(result.Candidates) > 0 && len(result.Candidates[0].Content.Parts) > 0 {
		return result.Candidates[0].Content.Parts[0].Text, nil
	}
	return "", fmt.Errorf("no content returned")
}
