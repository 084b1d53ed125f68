package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/studynotes/internal/handler/views"
	appI18n "github.com/pavelanni/studynotes/internal/i18n"
	"github.com/pavelanni/studynotes/internal/model"
	"github.com/pavelanni/studynotes/internal/session"
	"github.com/pavelanni/studynotes/internal/store"
	"github.com/pavelanni/studynotes/internal/study"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store        *store.Store
	study        *study.Service
	sessions     *session.Registry
	config       model.AppConfig
	passwordHash []byte
}

// New creates a new Handler. passwordHash is the bcrypt hash of the access
// password and is required when config.AccessPassword is set.
func New(s *store.Store, svc *study.Service, reg *session.Registry, cfg model.AppConfig, passwordHash []byte) (*Handler, error) {
	if cfg.AccessPassword && (s == nil || len(passwordHash) == 0) {
		return nil, errors.New("access password requires a store and a password hash")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 1 << 20
	}
	return &Handler{store: s, study: svc, sessions: reg, config: cfg, passwordHash: passwordHash}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Use(h.limitBody)
	r.Use(h.csrfMiddleware)

	r.Get("/login", h.handleLoginPage)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/lang/{lang}", h.handleLang)

	r.Group(func(r chi.Router) {
		if h.config.AccessPassword {
			r.Use(h.requireAuth)
		}
		r.Use(h.withSession)

		r.Get("/", h.handleIndex)
		r.Post("/transcript", h.handleUpload)
		r.Post("/key", h.handleKey)
		r.Post("/generate", h.handleGenerate)
		r.Post("/quiz", h.handleQuiz)
		r.Post("/quiz/answer/{index}", h.handleAnswer)
		r.Post("/quiz/submit", h.handleSubmit)
		r.Post("/reset", h.handleReset)
		r.Get("/export/study_notes.pdf", h.handleNotesPDF)
		r.Get("/export/generated_quiz.pdf", h.handleQuizPDF)
	})
}

// BasePathMiddleware exposes the configured base path to views.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

// limitBody caps request bodies slightly above the upload limit so
// multipart overhead still fits.
func (h *Handler) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes+64<<10)
		}
		next.ServeHTTP(w, r)
	})
}

type entryCtxKey struct{}

// withSession attaches the caller's study session, creating one when the
// cookie is missing or expired. The entry stays locked until the request ends.
func (h *Handler) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var entry *session.Entry
		if c, err := r.Cookie(studyCookieName); err == nil {
			entry, _ = h.sessions.Get(c.Value)
		}
		if entry == nil {
			entry = h.sessions.Create()
			http.SetCookie(w, &http.Cookie{
				Name:     studyCookieName,
				Value:    entry.ID,
				Path:     h.cookiePath(),
				HttpOnly: true,
				Secure:   h.config.SecureCookies,
				SameSite: http.SameSiteLaxMode,
			})
			slog.Debug("study session created", "session", entry.ID)
		}

		entry.Lock()
		defer entry.Unlock()
		ctx := context.WithValue(r.Context(), entryCtxKey{}, entry)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func entryFrom(r *http.Request) *session.Entry {
	return r.Context().Value(entryCtxKey{}).(*session.Entry)
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	entry := entryFrom(r)

	data := views.NewIndexData(entry.State)
	data.AskForKey = !h.study.HasServerKey()
	data.HasKey = entry.APIKey != ""
	data.MaxUploadMB = h.config.MaxUploadBytes >> 20
	data.Flash = entry.TakeFlash()
	data.Languages = appI18n.Languages()
	data.ShowLogout = h.config.AccessPassword
	data.Model = h.config.Model
	if h.store != nil && data.HasTranscript() {
		n, err := h.store.CountResultsForTranscript(study.TranscriptHash(entry.State.Transcript))
		if err != nil {
			slog.Warn("count results", "error", err)
		}
		data.TimesTaken = n
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := views.IndexPage(data).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleLang(w http.ResponseWriter, r *http.Request) {
	lang := chi.URLParam(r, "lang")
	for _, l := range appI18n.Languages() {
		if l == lang {
			appI18n.SetLangCookie(w, lang, h.cookiePath(), h.config.SecureCookies)
			break
		}
	}
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

// done stores a flash message and redirects back to the main page.
func (h *Handler) done(w http.ResponseWriter, r *http.Request, entry *session.Entry, flash *session.Flash) {
	entry.Flash = flash
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func info(text string) *session.Flash { return &session.Flash{Text: text} }

func failure(text string) *session.Flash { return &session.Flash{Error: true, Text: text} }

// Mount registers the routes on r, under the base path when one is configured.
func (h *Handler) Mount(r chi.Router) {
	if h.config.BasePath != "" {
		basePath := h.config.BasePath
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
		return
	}
	r.Use(h.BasePathMiddleware)
	h.Routes(r)
}
