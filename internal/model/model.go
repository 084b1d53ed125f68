package model

import (
	"context"
	"time"
)

// QuizSize is the number of questions requested from the LLM.
const QuizSize = 10

// OptionCount is the number of choices every question carries.
const OptionCount = 4

// Question is a single multiple-choice quiz question.
type Question struct {
	Stem        string              `json:"question" jsonschema:"required,description=The question text"`
	Options     [OptionCount]string `json:"options" jsonschema:"required,description=Exactly four distinct answer choices without label prefixes"`
	Correct     int                 `json:"correct_index" jsonschema:"required,minimum=0,maximum=3,description=Zero-based index of the correct option"`
	Explanation string              `json:"explanation,omitempty" jsonschema:"description=One or two sentences explaining the correct answer"`
}

// QuizDocument is the top-level JSON shape requested from providers that
// support constrained output.
type QuizDocument struct {
	Questions []Question `json:"questions" jsonschema:"required,description=The quiz questions in presentation order"`
}

// OptionLabel returns the letter shown in front of option i.
func OptionLabel(i int) string {
	if i < 0 || i >= OptionCount {
		return "?"
	}
	return string(rune('A' + i))
}

// Provider names an LLM backend.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// AppConfig holds runtime parameters set via CLI flags.
type AppConfig struct {
	BasePath        string        // URL prefix for sub-path deployments (e.g. "/notes")
	SecureCookies   bool          // Set Secure flag on cookies (disable for local dev)
	ServerKey       bool          // An API key is configured server-side; the UI does not ask for one
	AccessPassword  bool          // Login is required
	RequireFullQuiz bool          // Reject quizzes with fewer than QuizSize questions
	SessionTTL      time.Duration // Idle lifetime of a browser session
	MaxUploadBytes  int64
	Model           string
}

// QuizResult is a submitted quiz as recorded in the store.
type QuizResult struct {
	ID               int64       `json:"id"`
	SessionID        string      `json:"session_id"`
	TranscriptName   string      `json:"transcript_name"`
	TranscriptSHA256 string      `json:"transcript_sha256"`
	TranscriptChars  int         `json:"transcript_chars"`
	Notes            string      `json:"notes"`
	Questions        []Question  `json:"questions"`
	Answers          map[int]int `json:"answers"`
	Score            int         `json:"score"`
	Total            int         `json:"total"`
	SubmittedAt      time.Time   `json:"submitted_at"`
}

// AuthSession represents a login session created after the access password was accepted.
type AuthSession struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}
