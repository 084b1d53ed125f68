package llm

import (
	"context"
	"errors"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI talks to any OpenAI-compatible endpoint (OpenAI, Groq, Ollama, ...).
type OpenAI struct {
	baseURL     string
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAI creates a client for an OpenAI-compatible API.
func NewOpenAI(cfg Config) *OpenAI {
	return &OpenAI{
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
	}
}

func (c *OpenAI) api(apiKey string) *openai.Client {
	config := openai.DefaultConfig(apiKey)
	if c.baseURL != "" {
		config.BaseURL = c.baseURL
	}
	return openai.NewClientWithConfig(config)
}

// Complete sends one system+user exchange and returns the reply text.
func (c *OpenAI) Complete(ctx context.Context, apiKey string, req Request) (string, error) {
	if apiKey == "" {
		return "", &CallError{Kind: KindAuth, Err: ErrNoAPIKey, msg: ErrNoAPIKey.Error()}
	}

	chatReq := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if req.Schema != nil {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.SchemaName,
				Schema: req.Schema,
			},
		}
	}

	resp, err := c.api(apiKey).CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", newCallError(classifyStatus(openAIStatus(err), err), apiKey, err)
	}
	if len(resp.Choices) == 0 {
		return "", newCallError(KindOther, apiKey, errors.New("LLM returned no choices"))
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "model", c.model, "chars", len(raw), "finish_reason", resp.Choices[0].FinishReason)
	return raw, nil
}

// Ping checks that the endpoint accepts the key.
func (c *OpenAI) Ping(ctx context.Context, apiKey string) error {
	if _, err := c.api(apiKey).ListModels(ctx); err != nil {
		return newCallError(classifyStatus(openAIStatus(err), err), apiKey, err)
	}
	return nil
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
