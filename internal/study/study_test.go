package study

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/studynotes/internal/llm"
	"github.com/pavelanni/studynotes/internal/model"
	"github.com/pavelanni/studynotes/internal/session"
)

// fakeLLM returns canned replies in order and records every request.
type fakeLLM struct {
	mu       sync.Mutex
	replies  []string
	err      error
	requests []llm.Request
	keys     []string
}

func (f *fakeLLM) Complete(_ context.Context, apiKey string, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	f.keys = append(f.keys, apiKey)
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", errors.New("no reply queued")
	}
	out := f.replies[0]
	f.replies = f.replies[1:]
	return out, nil
}

type fakeRecorder struct {
	results []model.QuizResult
	err     error
}

func (f *fakeRecorder) InsertResult(r model.QuizResult) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.results = append(f.results, r)
	return int64(len(f.results)), nil
}

func quizText(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "Question: Question number %d?\nA) alpha\nB) beta\nC) gamma\nD) delta\nAnswer: B\nExplanation: beta is right.\n#####\n", i)
	}
	return b.String()
}

func loaded(t *testing.T, s *Service) session.State {
	t.Helper()
	st, err := s.Load(session.State{Phase: session.PhaseIdle}, "lecture.txt", []byte("Today we talk about goroutines and channels."))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return st
}

func TestGenerateNotes(t *testing.T) {
	f := &fakeLLM{replies: []string{"  the summary  ", "# Notes\n- goroutines"}}
	s := New(f, nil, Config{})

	st, err := s.GenerateNotes(context.Background(), loaded(t, s), "user-key")
	if err != nil {
		t.Fatalf("GenerateNotes: %v", err)
	}
	if st.Phase != session.PhaseNotesReady {
		t.Errorf("phase = %s", st.Phase)
	}
	if st.Summary != "the summary" || st.Notes != "# Notes\n- goroutines" {
		t.Errorf("unexpected summary/notes: %q / %q", st.Summary, st.Notes)
	}
	if len(f.requests) != 2 {
		t.Fatalf("expected 2 LLM calls, got %d", len(f.requests))
	}
	if !strings.Contains(f.requests[0].User, "goroutines and channels") {
		t.Error("first call should carry the transcript")
	}
	if !strings.Contains(f.requests[1].User, "the summary") {
		t.Error("second call should carry the summary")
	}
	if f.keys[0] != "user-key" {
		t.Errorf("expected user key, got %q", f.keys[0])
	}
}

func TestServerKeyTakesPrecedence(t *testing.T) {
	f := &fakeLLM{replies: []string{"s", "n"}}
	s := New(f, nil, Config{ServerKey: "server-key"})
	if !s.HasServerKey() {
		t.Error("HasServerKey should be true")
	}
	if _, err := s.GenerateNotes(context.Background(), loaded(t, s), "user-key"); err != nil {
		t.Fatalf("GenerateNotes: %v", err)
	}
	for _, k := range f.keys {
		if k != "server-key" {
			t.Errorf("expected server key, got %q", k)
		}
	}
}

func TestGenerateNotesLLMFailure(t *testing.T) {
	callErr := &llm.CallError{Kind: llm.KindRateLimit, Err: errors.New("429")}
	s := New(&fakeLLM{err: callErr}, nil, Config{})
	before := loaded(t, s)

	st, err := s.GenerateNotes(context.Background(), before, "k")
	if !errors.Is(err, session.ErrLLMCall) {
		t.Fatalf("expected ErrLLMCall, got %v", err)
	}
	var ce *llm.CallError
	if !errors.As(err, &ce) || ce.Kind != llm.KindRateLimit {
		t.Errorf("CallError should survive wrapping, got %v", err)
	}
	if st.Phase != session.PhaseTranscriptLoaded || st.Notes != "" {
		t.Errorf("state should be unchanged, got %+v", st)
	}
}

func TestGenerateNotesEmpty(t *testing.T) {
	s := New(&fakeLLM{replies: []string{"summary", "   "}}, nil, Config{})
	_, err := s.GenerateNotes(context.Background(), loaded(t, s), "k")
	if !errors.Is(err, session.ErrEmptyNotes) {
		t.Errorf("expected ErrEmptyNotes, got %v", err)
	}
}

func TestGenerateNotesOrdering(t *testing.T) {
	f := &fakeLLM{}
	s := New(f, nil, Config{})
	_, err := s.GenerateNotes(context.Background(), session.State{Phase: session.PhaseIdle}, "k")
	if !errors.Is(err, session.ErrOrdering) {
		t.Errorf("expected ErrOrdering, got %v", err)
	}
	if len(f.requests) != 0 {
		t.Error("no LLM call should be made out of order")
	}
}

func TestPrepare(t *testing.T) {
	f := &fakeLLM{replies: []string{"summary", "notes", quizText(10)}}
	s := New(f, nil, Config{})

	st, res, err := s.Prepare(context.Background(), loaded(t, s), "k")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if st.Phase != session.PhaseQuizInProgress {
		t.Errorf("phase = %s", st.Phase)
	}
	if len(st.Quiz) != 10 || len(res.Questions) != 10 {
		t.Errorf("expected 10 questions, got %d", len(st.Quiz))
	}
	if st.Quiz[0].Correct != 1 || st.Quiz[0].Explanation != "beta is right." {
		t.Errorf("unexpected first question: %+v", st.Quiz[0])
	}
	if !strings.Contains(f.requests[2].User, "summary") {
		t.Error("quiz prompt should be built from the summary")
	}
	if f.requests[2].Schema != nil {
		t.Error("text mode should not send a schema")
	}
}

func TestPrepareQuizFailureKeepsNotes(t *testing.T) {
	s := New(&fakeLLM{replies: []string{"summary", "notes", "I cannot write a quiz."}}, nil, Config{})

	st, _, err := s.Prepare(context.Background(), loaded(t, s), "k")
	if !errors.Is(err, session.ErrParseFailure) {
		t.Fatalf("expected ErrParseFailure, got %v", err)
	}
	if st.Phase != session.PhaseNotesReady || st.Notes != "notes" {
		t.Errorf("expected NotesReady with notes kept, got %s %q", st.Phase, st.Notes)
	}
}

func TestGenerateQuizStructured(t *testing.T) {
	f := &fakeLLM{replies: []string{"summary", "notes", `{"questions":[{"question":"Q?","options":["a","b","c","d"],"correct_index":2}]}`}}
	s := New(f, nil, Config{StructuredQuiz: true})

	st, res, err := s.Prepare(context.Background(), loaded(t, s), "k")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if f.requests[2].Schema == nil || f.requests[2].SchemaName != "quiz" {
		t.Error("structured mode should send the quiz schema")
	}
	if !res.Short() || len(st.Quiz) != 1 || st.Quiz[0].Correct != 2 {
		t.Errorf("unexpected quiz: %+v", st.Quiz)
	}
}

func TestGenerateQuizRequireFull(t *testing.T) {
	s := New(&fakeLLM{replies: []string{"summary", "notes", quizText(4)}}, nil, Config{RequireFullQuiz: true})

	st, res, err := s.Prepare(context.Background(), loaded(t, s), "k")
	if !errors.Is(err, session.ErrShortQuiz) {
		t.Fatalf("expected ErrShortQuiz, got %v", err)
	}
	if len(res.Questions) != 4 {
		t.Errorf("result should report the 4 parsed questions, got %d", len(res.Questions))
	}
	if st.Phase != session.PhaseNotesReady {
		t.Errorf("phase = %s", st.Phase)
	}
}

func TestSubmitRecordsOnce(t *testing.T) {
	rec := &fakeRecorder{}
	s := New(&fakeLLM{replies: []string{"summary", "notes", quizText(10)}}, rec, Config{})
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return at }

	st, _, err := s.Prepare(context.Background(), loaded(t, s), "k")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	for i := range 10 {
		if st, err = st.Answer(i, 1); err != nil {
			t.Fatalf("Answer: %v", err)
		}
	}

	st, err = s.Submit(st, "sid")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if st.Score != 10 {
		t.Errorf("score = %d, want 10", st.Score)
	}
	if _, err := s.Submit(st, "sid"); err != nil {
		t.Fatalf("second Submit: %v", err)
	}

	if len(rec.results) != 1 {
		t.Fatalf("expected 1 recorded result, got %d", len(rec.results))
	}
	r := rec.results[0]
	if r.SessionID != "sid" || r.Score != 10 || r.Total != 10 || r.TranscriptName != "lecture.txt" {
		t.Errorf("unexpected record: %+v", r)
	}
	if len(r.TranscriptSHA256) != 64 {
		t.Errorf("expected sha256 hex, got %q", r.TranscriptSHA256)
	}
	if !r.SubmittedAt.Equal(at) {
		t.Errorf("submitted_at = %v", r.SubmittedAt)
	}
}

func TestSubmitRecorderFailure(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("disk full")}
	s := New(&fakeLLM{replies: []string{"summary", "notes", quizText(10)}}, rec, Config{})

	st, _, err := s.Prepare(context.Background(), loaded(t, s), "k")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	st, err = s.Submit(st, "sid")
	if err != nil {
		t.Fatalf("Submit should not fail when recording fails: %v", err)
	}
	if st.Phase != session.PhaseQuizSubmitted {
		t.Errorf("phase = %s", st.Phase)
	}
}

func TestSubmitOutOfOrder(t *testing.T) {
	s := New(&fakeLLM{}, nil, Config{})
	if _, err := s.Submit(loaded(t, s), "sid"); !errors.Is(err, session.ErrOrdering) {
		t.Errorf("expected ErrOrdering, got %v", err)
	}
}
