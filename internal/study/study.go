// Package study runs the transcript → notes → quiz pipeline against an LLM
// and advances a session.State through it.
package study

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/pavelanni/studynotes/internal/llm"
	"github.com/pavelanni/studynotes/internal/llm/prompts"
	"github.com/pavelanni/studynotes/internal/model"
	"github.com/pavelanni/studynotes/internal/quiz"
	"github.com/pavelanni/studynotes/internal/session"
)

// Recorder persists submitted quizzes.
type Recorder interface {
	InsertResult(r model.QuizResult) (int64, error)
}

// Config controls how the pipeline talks to the LLM.
type Config struct {
	ServerKey       string // takes precedence over keys entered in the UI
	StructuredQuiz  bool   // ask for JSON constrained by quiz.Schema()
	RequireFullQuiz bool
}

// Service drives one session through the pipeline. It holds no per-session
// data; callers serialize actions on a session themselves.
type Service struct {
	llm      llm.Completer
	recorder Recorder
	cfg      Config
	now      func() time.Time
}

// New creates a Service. recorder may be nil, in which case submissions are not recorded.
func New(c llm.Completer, recorder Recorder, cfg Config) *Service {
	return &Service{llm: c, recorder: recorder, cfg: cfg, now: time.Now}
}

// HasServerKey reports whether the UI can skip asking for an API key.
func (s *Service) HasServerKey() bool {
	return s.cfg.ServerKey != ""
}

func (s *Service) key(userKey string) string {
	key, _ := lo.Coalesce(s.cfg.ServerKey, strings.TrimSpace(userKey))
	return key
}

func (s *Service) complete(ctx context.Context, userKey string, p prompts.Prompt, schema bool) (string, error) {
	req := llm.Request{System: p.System, User: p.User}
	if schema {
		req.Schema = quiz.Schema()
		req.SchemaName = "quiz"
	}
	out, err := s.llm.Complete(ctx, s.key(userKey), req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", session.ErrLLMCall, err)
	}
	return out, nil
}

// Load decodes an uploaded transcript and stores it in st.
func (s *Service) Load(st session.State, name string, data []byte) (session.State, error) {
	text := DecodeTranscript(data)
	next, err := st.Load(name, text)
	if err != nil {
		return st, err
	}
	slog.Info("transcript loaded", "name", name, "bytes", len(data), "chars", utf8.RuneCountInString(text))
	return next, nil
}

// GenerateNotes summarizes the transcript and writes study notes from the summary.
func (s *Service) GenerateNotes(ctx context.Context, st session.State, userKey string) (session.State, error) {
	if err := st.CanGenerateNotes(); err != nil {
		return st, err
	}

	p, err := prompts.Summarize(st.Transcript)
	if err != nil {
		return st, fmt.Errorf("build summary prompt: %w", err)
	}
	summary, err := s.complete(ctx, userKey, p, false)
	if err != nil {
		return st, fmt.Errorf("summarize transcript: %w", err)
	}

	p, err = prompts.Notes(summary)
	if err != nil {
		return st, fmt.Errorf("build notes prompt: %w", err)
	}
	notes, err := s.complete(ctx, userKey, p, false)
	if err != nil {
		return st, fmt.Errorf("write notes: %w", err)
	}

	next, err := st.WithNotes(strings.TrimSpace(summary), strings.TrimSpace(notes))
	if err != nil {
		return st, err
	}
	slog.Info("notes generated", "summary_chars", utf8.RuneCountInString(next.Summary), "notes_chars", utf8.RuneCountInString(next.Notes))
	return next, nil
}

// GenerateQuiz asks for a quiz based on the summary and starts it.
func (s *Service) GenerateQuiz(ctx context.Context, st session.State, userKey string) (session.State, quiz.Result, error) {
	if err := st.CanGenerateQuiz(); err != nil {
		return st, quiz.Result{}, err
	}

	source, _ := lo.Coalesce(st.Summary, st.Notes)
	p, err := prompts.Quiz(source, s.cfg.StructuredQuiz)
	if err != nil {
		return st, quiz.Result{}, fmt.Errorf("build quiz prompt: %w", err)
	}
	raw, err := s.complete(ctx, userKey, p, s.cfg.StructuredQuiz)
	if err != nil {
		return st, quiz.Result{}, fmt.Errorf("write quiz: %w", err)
	}

	next, res, err := st.WithQuiz(raw, s.cfg.RequireFullQuiz)
	if err != nil {
		slog.Warn("quiz rejected", "kept", len(res.Questions), "dropped", res.Dropped, "error", err)
		return st, res, err
	}
	slog.Info("quiz generated", "questions", len(res.Questions), "dropped", res.Dropped, "extra", res.Extra)
	return next, res, nil
}

// Prepare runs GenerateNotes then GenerateQuiz. When only the quiz step fails
// the returned state keeps the new notes.
func (s *Service) Prepare(ctx context.Context, st session.State, userKey string) (session.State, quiz.Result, error) {
	next, err := s.GenerateNotes(ctx, st, userKey)
	if err != nil {
		return st, quiz.Result{}, err
	}
	return s.GenerateQuiz(ctx, next, userKey)
}

// Submit scores the quiz. The first submission is recorded; a failure to
// record is logged and does not fail the submission.
func (s *Service) Submit(st session.State, sessionID string) (session.State, error) {
	first := st.Phase == session.PhaseQuizInProgress
	next, err := st.Submit(s.now())
	if err != nil {
		return st, err
	}
	slog.Info("quiz submitted", "score", next.Score, "total", len(next.Quiz), "answered", len(next.Answers))

	if first && s.recorder != nil {
		id, err := s.recorder.InsertResult(resultFrom(next, sessionID))
		if err != nil {
			slog.Error("failed to record quiz result", "error", err)
		} else {
			slog.Debug("quiz result recorded", "id", id)
		}
	}
	return next, nil
}

// TranscriptHash returns the hex SHA-256 that groups results by transcript.
func TranscriptHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func resultFrom(st session.State, sessionID string) model.QuizResult {
	return model.QuizResult{
		SessionID:        sessionID,
		TranscriptName:   st.TranscriptName,
		TranscriptSHA256: TranscriptHash(st.Transcript),
		TranscriptChars:  utf8.RuneCountInString(st.Transcript),
		Notes:            st.Notes,
		Questions:        st.Quiz,
		Answers:          st.Answers,
		Score:            st.Score,
		Total:            len(st.Quiz),
		SubmittedAt:      st.SubmittedAt,
	}
}
