package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic talks to the Anthropic Messages API.
type Anthropic struct {
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
}

// NewAnthropic creates a client for the Anthropic Messages API.
func NewAnthropic(cfg Config) *Anthropic {
	return &Anthropic{
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// Complete sends one system+user exchange and returns the concatenated text blocks.
// The Messages API has no response-format switch, so a schema is appended to
// the system prompt instead.
func (c *Anthropic) Complete(ctx context.Context, apiKey string, req Request) (string, error) {
	if apiKey == "" {
		return "", &CallError{Kind: KindAuth, Err: ErrNoAPIKey, msg: ErrNoAPIKey.Error()}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if c.baseURL != "" {
		opts = append(opts, option.WithBaseURL(c.baseURL))
	}
	client := anthropic.NewClient(opts...)

	system := req.System
	if req.Schema != nil {
		if schema, err := req.Schema.MarshalJSON(); err == nil {
			system += "\n\nThe JSON must validate against this schema:\n" + string(schema)
		}
	}

	msg, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(c.maxTokens),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.User))},
		Temperature: anthropic.Float(c.temperature),
	})
	if err != nil {
		status := 0
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return "", newCallError(classifyStatus(status, err), apiKey, err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	if sb.Len() == 0 {
		return "", newCallError(KindOther, apiKey, errors.New("LLM returned no text"))
	}

	slog.Debug("LLM response", "model", c.model, "chars", sb.Len(), "stop_reason", msg.StopReason)
	return sb.String(), nil
}
