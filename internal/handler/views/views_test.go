package views

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/studynotes/internal/i18n"
	"github.com/pavelanni/studynotes/internal/model"
	"github.com/pavelanni/studynotes/internal/session"
)

func TestMain(m *testing.M) {
	if err := appI18n.Init("en"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func render(t *testing.T, ctx context.Context, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	return buf.String()
}

func TestIndexPageQuiz(t *testing.T) {
	st := session.State{
		Phase:          session.PhaseQuizInProgress,
		TranscriptName: "lecture.txt",
		Transcript:     "text",
		Quiz: []model.Question{{
			Stem:    "Is <b>this</b> bold?",
			Options: [model.OptionCount]string{"yes", "no", "maybe", "never"},
			Correct: 1,
		}},
		Answers: map[int]int{0: 1},
	}
	d := NewIndexData(st)
	d.Languages = []string{"en", "ru"}

	ctx := model.ContextWithBasePath(context.Background(), "/notes")
	ctx = model.ContextWithCSRFToken(ctx, "tok")
	body := render(t, ctx, IndexPage(d))

	wants := []string{
		"Is &lt;b&gt;this&lt;/b&gt; bold?",
		`name="q0" value="1" checked>`,
		`formaction="/notes/quiz/answer/0"`,
		`name="csrf_token" value="tok"`,
		"1 question answered",
	}
	for _, want := range wants {
		if !strings.Contains(body, want) {
			t.Errorf("page should contain %q", want)
		}
	}
	if strings.Contains(body, `value="0" checked`) {
		t.Error("only the chosen option should be checked")
	}
	if strings.Contains(body, "<b>this</b>") {
		t.Error("question text must be escaped")
	}
}

func TestIndexPageTimesTaken(t *testing.T) {
	tests := []struct {
		name  string
		taken int
		want  string
	}{
		{"never", 0, ""},
		{"once", 1, "Quiz taken once on this transcript."},
		{"several", 3, "Quiz taken 3 times on this transcript."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewIndexData(session.State{Phase: session.PhaseTranscriptLoaded, TranscriptName: "a.txt", Transcript: "abc"})
			d.TimesTaken = tt.taken
			body := render(t, context.Background(), IndexPage(d))
			if tt.want == "" {
				if strings.Contains(body, "Quiz taken") {
					t.Error("count should be hidden before the first submission")
				}
				return
			}
			if !strings.Contains(body, tt.want) {
				t.Errorf("page should contain %q", tt.want)
			}
		})
	}
}

func TestLoginPage(t *testing.T) {
	body := render(t, context.Background(), LoginPage("Wrong password.", []string{"en"}))
	for _, want := range []string{`type="password"`, "Wrong password."} {
		if !strings.Contains(body, want) {
			t.Errorf("page should contain %q", want)
		}
	}
	if strings.Contains(body, "Log out") {
		t.Error("login page should not offer log out")
	}
}
