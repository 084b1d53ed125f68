// Package llm sends prompts to a hosted chat-completion API.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/pavelanni/studynotes/internal/model"
)

// ErrNoAPIKey is returned when neither the server nor the user supplied a key.
var ErrNoAPIKey = errors.New("no API key configured")

// Request is a single-turn completion request.
type Request struct {
	System string
	User   string
	// Schema, when set, asks the provider for JSON matching it.
	Schema     json.Marshaler
	SchemaName string
}

// Completer sends a request and returns the model's text. The API key is
// passed per call so user-entered keys never live in the client.
type Completer interface {
	Complete(ctx context.Context, apiKey string, req Request) (string, error)
}

// Config selects and tunes a provider.
type Config struct {
	Provider    model.Provider
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
}

// New returns the Completer for cfg.Provider.
func New(cfg Config) (Completer, error) {
	if cfg.Model == "" {
		return nil, errors.New("model name is required")
	}
	switch cfg.Provider {
	case model.ProviderOpenAI, "":
		return NewOpenAI(cfg), nil
	case model.ProviderAnthropic:
		return NewAnthropic(cfg), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

// ErrorKind classifies a failed call.
type ErrorKind string

const (
	KindAuth      ErrorKind = "authentication"
	KindRateLimit ErrorKind = "rate_limit"
	KindNetwork   ErrorKind = "network"
	KindOther     ErrorKind = "api"
)

// CallError wraps a provider failure. Its message never contains the API key.
type CallError struct {
	Kind ErrorKind
	Err  error
	msg  string
}

func (e *CallError) Error() string { return e.msg }

func (e *CallError) Unwrap() error { return e.Err }

func newCallError(kind ErrorKind, apiKey string, err error) *CallError {
	msg := err.Error()
	if len(apiKey) >= 8 {
		msg = strings.ReplaceAll(msg, apiKey, "[redacted]")
	}
	return &CallError{Kind: kind, Err: err, msg: fmt.Sprintf("%s error: %s", kind, msg)}
}

// classifyStatus maps an HTTP status (0 when the request never got a
// response) to an ErrorKind.
func classifyStatus(status int, err error) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == 0:
		return KindNetwork
	case errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	default:
		return KindOther
	}
}
