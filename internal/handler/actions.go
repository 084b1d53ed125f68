package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/studynotes/internal/i18n"
	"github.com/pavelanni/studynotes/internal/llm"
	"github.com/pavelanni/studynotes/internal/model"
	"github.com/pavelanni/studynotes/internal/quiz"
	"github.com/pavelanni/studynotes/internal/session"
	"github.com/pavelanni/studynotes/internal/study"
)

// errorMessage maps a failed action to the message shown to the user.
func errorMessage(ctx context.Context, err error, res quiz.Result) string {
	var callErr *llm.CallError
	switch {
	case errors.As(err, &callErr):
		switch {
		case errors.Is(callErr, llm.ErrNoAPIKey):
			return appI18n.T(ctx, "ErrNoKey")
		case callErr.Kind == llm.KindAuth:
			return appI18n.T(ctx, "ErrAuth")
		case callErr.Kind == llm.KindRateLimit:
			return appI18n.T(ctx, "ErrRateLimit")
		case callErr.Kind == llm.KindNetwork:
			return appI18n.T(ctx, "ErrNetwork")
		default:
			return appI18n.T(ctx, "ErrLLM")
		}
	case errors.Is(err, session.ErrLLMCall):
		return appI18n.T(ctx, "ErrLLM")
	case errors.Is(err, session.ErrEmptyNotes):
		return appI18n.T(ctx, "ErrEmptyNotes")
	case errors.Is(err, session.ErrShortQuiz):
		return appI18n.Td(ctx, "ErrShortQuiz", map[string]any{"Got": len(res.Questions), "Want": model.QuizSize})
	case errors.Is(err, session.ErrParseFailure):
		return appI18n.T(ctx, "ErrParse")
	case errors.Is(err, session.ErrEmptyTranscript):
		return appI18n.T(ctx, "ErrEmptyTranscript")
	case errors.Is(err, study.ErrTranscriptTooLarge):
		return appI18n.T(ctx, "ErrTooLarge")
	case errors.Is(err, session.ErrOrdering):
		return appI18n.T(ctx, "ErrOrdering")
	case errors.Is(err, session.ErrAnswerIndex):
		return appI18n.T(ctx, "ErrAnswerIndex")
	default:
		return appI18n.T(ctx, "ErrInternal")
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, entry *session.Entry, action string, err error, res quiz.Result) {
	slog.Warn("action failed", "action", action, "session", entry.ID, "phase", entry.State.Phase, "error", err)
	h.done(w, r, entry, failure(errorMessage(r.Context(), err, res)))
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	entry := entryFrom(r)

	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.fail(w, r, entry, "upload", study.ErrTranscriptTooLarge, quiz.Result{})
			return
		}
		h.done(w, r, entry, failure(appI18n.T(r.Context(), "ErrNoFile")))
		return
	}

	file, header, err := r.FormFile("transcript")
	if err != nil {
		h.done(w, r, entry, failure(appI18n.T(r.Context(), "ErrNoFile")))
		return
	}
	defer file.Close()

	data, err := study.ReadTranscript(file, h.config.MaxUploadBytes)
	if err != nil {
		h.fail(w, r, entry, "upload", err, quiz.Result{})
		return
	}

	next, err := h.study.Load(entry.State, filepath.Base(header.Filename), data)
	if err != nil {
		h.fail(w, r, entry, "upload", err, quiz.Result{})
		return
	}
	entry.State = next
	h.done(w, r, entry, nil)
}

func (h *Handler) handleKey(w http.ResponseWriter, r *http.Request) {
	entry := entryFrom(r)
	key := strings.TrimSpace(r.FormValue("api_key"))
	if key == "" {
		h.done(w, r, entry, failure(appI18n.T(r.Context(), "ErrNoKey")))
		return
	}
	entry.APIKey = key
	h.done(w, r, entry, info(appI18n.T(r.Context(), "KeySaved")))
}

// missingKey reports (and flashes) when no API key is available for an LLM action.
func (h *Handler) missingKey(w http.ResponseWriter, r *http.Request, entry *session.Entry) bool {
	if h.study.HasServerKey() || entry.APIKey != "" {
		return false
	}
	h.done(w, r, entry, failure(appI18n.T(r.Context(), "ErrNoKey")))
	return true
}

// handleGenerate writes notes and then the quiz. From NotesReady it only
// regenerates the notes.
func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	entry := entryFrom(r)
	if h.missingKey(w, r, entry) {
		return
	}

	if entry.State.Phase == session.PhaseNotesReady {
		next, err := h.study.GenerateNotes(r.Context(), entry.State, entry.APIKey)
		if err != nil {
			h.fail(w, r, entry, "notes", err, quiz.Result{})
			return
		}
		entry.State = next
		h.done(w, r, entry, info(appI18n.T(r.Context(), "NotesReady")))
		return
	}

	next, res, err := h.study.Prepare(r.Context(), entry.State, entry.APIKey)
	// Notes survive a failed quiz step.
	entry.State = next
	if err != nil {
		h.fail(w, r, entry, "generate", err, res)
		return
	}
	h.done(w, r, entry, h.quizReadyFlash(r.Context(), res))
}

func (h *Handler) handleQuiz(w http.ResponseWriter, r *http.Request) {
	entry := entryFrom(r)
	if h.missingKey(w, r, entry) {
		return
	}

	next, res, err := h.study.GenerateQuiz(r.Context(), entry.State, entry.APIKey)
	if err != nil {
		h.fail(w, r, entry, "quiz", err, res)
		return
	}
	entry.State = next
	h.done(w, r, entry, h.quizReadyFlash(r.Context(), res))
}

func (h *Handler) quizReadyFlash(ctx context.Context, res quiz.Result) *session.Flash {
	if res.Short() {
		return info(appI18n.Td(ctx, "ShortQuiz", map[string]any{"Got": len(res.Questions), "Want": model.QuizSize}))
	}
	return info(appI18n.T(ctx, "QuizReady"))
}

// applyAnswers records every "q<i>" field present in the form.
func applyAnswers(st session.State, r *http.Request) (session.State, error) {
	for i := range st.Quiz {
		v := r.FormValue("q" + strconv.Itoa(i))
		if v == "" {
			continue
		}
		opt, err := strconv.Atoi(v)
		if err != nil {
			return st, session.ErrAnswerIndex
		}
		next, err := st.Answer(i, opt)
		if err != nil {
			return st, err
		}
		st = next
	}
	return st, nil
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	entry := entryFrom(r)

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.fail(w, r, entry, "answer", session.ErrAnswerIndex, quiz.Result{})
		return
	}
	opt, err := strconv.Atoi(r.FormValue("q" + strconv.Itoa(index)))
	if err != nil {
		h.fail(w, r, entry, "answer", session.ErrAnswerIndex, quiz.Result{})
		return
	}
	// The whole form is posted, so keep the other selections too.
	st, err := applyAnswers(entry.State, r)
	if err != nil {
		h.fail(w, r, entry, "answer", err, quiz.Result{})
		return
	}
	next, err := st.Answer(index, opt)
	if err != nil {
		h.fail(w, r, entry, "answer", err, quiz.Result{})
		return
	}
	entry.State = next
	h.done(w, r, entry, nil)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	entry := entryFrom(r)

	st := entry.State
	if st.Phase == session.PhaseQuizInProgress {
		var err error
		if st, err = applyAnswers(st, r); err != nil {
			h.fail(w, r, entry, "submit", err, quiz.Result{})
			return
		}
	}
	next, err := h.study.Submit(st, entry.ID)
	if err != nil {
		h.fail(w, r, entry, "submit", err, quiz.Result{})
		return
	}
	entry.State = next
	h.done(w, r, entry, info(appI18n.T(r.Context(), "QuizSubmitted")))
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	entry := entryFrom(r)
	entry.State = entry.State.Reset()
	h.done(w, r, entry, nil)
}
