package prompts

import (
	"bytes"
	"embed"
	"errors"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/studynotes/internal/model"
	"github.com/pavelanni/studynotes/internal/quiz"
)

//go:embed templates/*.txt
var templateFS embed.FS

const (
	// SummaryInputLimit is how many runes of the transcript go into the summary prompt.
	SummaryInputLimit = 3000
	// NotesInputLimit is how many runes of the summary go into the notes and quiz prompts.
	NotesInputLimit = 2000
)

var (
	transcriptTagRegex = regexp.MustCompile(`(?i)</?\s*transcript\b[^>]*>`)
	summaryTagRegex    = regexp.MustCompile(`(?i)</?\s*summary\b[^>]*>`)
)

// Kind selects a prompt template.
type Kind string

const (
	KindSummarize Kind = "summarize"
	KindNotes     Kind = "notes"
	KindQuiz      Kind = "quiz"
	KindQuizJSON  Kind = "quiz_json"
)

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[Kind]*template.Template
)

// Prompt is a system instruction plus the user message it applies to.
type Prompt struct {
	System string
	User   string
}

type quizData struct {
	Count     int
	Delimiter string
}

func load() error {
	loadOnce.Do(func() {
		templates = make(map[Kind]*template.Template)
		for _, k := range []Kind{KindSummarize, KindNotes, KindQuiz, KindQuizJSON} {
			file := "templates/" + string(k) + ".txt"
			content, err := templateFS.ReadFile(file)
			if err != nil {
				loadErr = errors.New("failed to read prompt file " + file + ": " + err.Error())
				return
			}
			tmpl, err := template.New(string(k)).Parse(string(content))
			if err != nil {
				loadErr = errors.New("failed to parse prompt template " + file + ": " + err.Error())
				return
			}
			templates[k] = tmpl
		}
	})
	return loadErr
}

func render(k Kind, data any) (string, error) {
	if err := load(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := templates[k].Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Summarize builds the prompt that condenses a raw transcript.
func Summarize(transcript string) (Prompt, error) {
	system, err := render(KindSummarize, nil)
	if err != nil {
		return Prompt{}, err
	}
	body := sanitize(transcript, transcriptTagRegex, SummaryInputLimit)
	return Prompt{System: system, User: "<transcript>\n" + body + "\n</transcript>"}, nil
}

// Notes builds the prompt that turns a summary into study notes.
func Notes(summary string) (Prompt, error) {
	system, err := render(KindNotes, nil)
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: system, User: wrapSummary(summary)}, nil
}

// Quiz builds the quiz prompt. With structured set the model is asked for
// JSON; otherwise for the delimited text format.
func Quiz(summary string, structured bool) (Prompt, error) {
	kind := KindQuiz
	if structured {
		kind = KindQuizJSON
	}
	system, err := render(kind, quizData{Count: model.QuizSize, Delimiter: quiz.Delimiter})
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: system, User: wrapSummary(summary)}, nil
}

func wrapSummary(summary string) string {
	return "<summary>\n" + sanitize(summary, summaryTagRegex, NotesInputLimit) + "\n</summary>"
}

func sanitize(text string, tags *regexp.Regexp, limit int) string {
	text = tags.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	if text == "" {
		return "[No content provided]"
	}
	if utf8.RuneCountInString(text) > limit {
		text = string([]rune(text)[:limit])
	}
	return text
}
