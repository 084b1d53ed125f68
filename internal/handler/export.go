package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/pavelanni/studynotes/internal/pdf"
	"github.com/pavelanni/studynotes/internal/session"
)

const (
	notesFileName = "study_notes.pdf"
	quizFileName  = "generated_quiz.pdf"
)

func (h *Handler) handleNotesPDF(w http.ResponseWriter, r *http.Request) {
	st := entryFrom(r).State
	data, err := pdf.Notes("Study Notes", st.Notes)
	h.writePDF(w, notesFileName, data, err)
}

func (h *Handler) handleQuizPDF(w http.ResponseWriter, r *http.Request) {
	st := entryFrom(r).State
	data, err := pdf.Quiz("Quiz", st.Quiz, st.Answers, st.Phase == session.PhaseQuizSubmitted)
	h.writePDF(w, quizFileName, data, err)
}

func (h *Handler) writePDF(w http.ResponseWriter, name string, data []byte, err error) {
	if errors.Is(err, pdf.ErrEmpty) {
		http.Error(w, "nothing to export", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("failed to render PDF", "file", name, "error", err)
		http.Error(w, "failed to render PDF", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		slog.Warn("failed to write PDF", "file", name, "error", err)
	}
}
