// Package views renders the HTML pages.
package views

import (
	"context"
	"strconv"

	"github.com/a-h/templ"

	"github.com/pavelanni/studynotes/internal/model"
	"github.com/pavelanni/studynotes/internal/session"
)

// pathURL prefixes p with the base path the app is mounted under.
func pathURL(ctx context.Context, p string) templ.SafeURL {
	return templ.SafeURL(model.BasePathFromContext(ctx) + p)
}

// Option is one choice of a quiz question as shown on the page.
type Option struct {
	Index    int
	Label    string
	Text     string
	Selected bool
	Correct  bool
}

// Question is a quiz question as shown on the page.
type Question struct {
	Index       int
	Number      int
	Field       string
	Stem        string
	Options     []Option
	Answered    bool
	IsCorrect   bool
	AnswerLabel string
	CorrectText string
	Explanation string
}

// IndexData is everything the main page shows.
type IndexData struct {
	Phase           session.Phase
	TranscriptName  string
	TranscriptChars int
	Notes           string
	Questions       []Question
	Answered        int
	Score           int
	Total           int
	AskForKey       bool
	HasKey          bool
	MaxUploadMB     int64
	Flash           *session.Flash
	Languages       []string
	ShowLogout      bool
	Model           string
	TimesTaken      int
}

// HasTranscript reports whether a transcript is loaded.
func (d IndexData) HasTranscript() bool { return d.Phase != session.PhaseIdle && d.Phase != "" }

// CanGenerate reports whether notes can be (re)generated.
func (d IndexData) CanGenerate() bool {
	return d.Phase == session.PhaseTranscriptLoaded || d.Phase == session.PhaseNotesReady
}

// NotesOnly reports whether notes exist but no quiz has been started.
func (d IndexData) NotesOnly() bool { return d.Phase == session.PhaseNotesReady }

// InQuiz reports whether the quiz is being answered.
func (d IndexData) InQuiz() bool { return d.Phase == session.PhaseQuizInProgress }

// Submitted reports whether the quiz was submitted.
func (d IndexData) Submitted() bool { return d.Phase == session.PhaseQuizSubmitted }

// NewIndexData converts a session state into page data.
func NewIndexData(st session.State) IndexData {
	d := IndexData{
		Phase:           st.Phase,
		TranscriptName:  st.TranscriptName,
		TranscriptChars: len([]rune(st.Transcript)),
		Notes:           st.Notes,
		Answered:        len(st.Answers),
		Score:           st.Score,
		Total:           len(st.Quiz),
	}
	for i, q := range st.Quiz {
		chosen, answered := st.Answered(i)
		qv := Question{
			Index:       i,
			Number:      i + 1,
			Field:       "q" + strconv.Itoa(i),
			Stem:        q.Stem,
			Answered:    answered,
			IsCorrect:   answered && chosen == q.Correct,
			CorrectText: model.OptionLabel(q.Correct) + ") " + q.Options[q.Correct],
			Explanation: q.Explanation,
		}
		if answered {
			qv.AnswerLabel = model.OptionLabel(chosen) + ") " + q.Options[chosen]
		}
		for j, text := range q.Options {
			qv.Options = append(qv.Options, Option{
				Index:    j,
				Label:    model.OptionLabel(j),
				Text:     text,
				Selected: answered && chosen == j,
				Correct:  j == q.Correct,
			})
		}
		d.Questions = append(d.Questions, qv)
	}
	return d
}
