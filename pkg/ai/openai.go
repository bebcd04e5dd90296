package ai

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIService implements Completer on top of langchaingo's OpenAI client.
type OpenAIService struct {
	llm   llms.Model
	model string
}

func NewOpenAIService(apiKey, model string) (*OpenAIService, error) {
	if model == "" {
		model = "gpt-4o-mini"
	}
	llm, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}
	return &OpenAIService{llm: llm, model: model}, nil
}

func (o *OpenAIService) Name() string { return "openai:" + o.model }

func (o *OpenAIService) Complete(ctx context.Context, system, prompt string, jsonMode bool) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	opts := []llms.CallOption{llms.WithTemperature(0.2)}
	if jsonMode {
		opts = append(opts, llms.WithJSONMode())
	}

	resp, err := o.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Content, nil
}
