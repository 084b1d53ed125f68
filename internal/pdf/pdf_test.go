package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/pavelanni/studynotes/internal/model"
)

func TestCleanMarkdown(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"heading", "## Goroutines\nbody", "Goroutines\nbody"},
		{"bold", "a **bold** word", "a bold word"},
		{"underscore bold", "a __bold__ word", "a bold word"},
		{"italic", "an *italic* word", "an italic word"},
		{"bullets", "- one\n* two\n+ three", "one\ntwo\nthree"},
		{"nested bullet keeps indent", "  - child", "  child"},
		{"bullet with emphasis", "* **Key**: value", "Key: value"},
		{"crlf", "# Title\r\ntext", "Title\ntext"},
		{"plain", "nothing to strip 2*3", "nothing to strip 2*3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanMarkdown(tt.in); got != tt.want {
				t.Errorf("CleanMarkdown(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestToWindows1252(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"café", "café"},
		{"a → b", "a ? b"},
		{"Привет", "??????"},
		{"line\nbreak", "line\nbreak"},
		{"“quotes” €", "“quotes” €"},
	}
	for _, tt := range tests {
		if got := toWindows1252(tt.in); got != tt.want {
			t.Errorf("toWindows1252(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNotes(t *testing.T) {
	data, err := Notes("Study Notes", "# Concurrency\n- goroutines\n- channels → pipes")
	if err != nil {
		t.Fatalf("Notes: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Errorf("output is not a PDF: %q", data[:min(len(data), 16)])
	}
}

func TestNotesEmpty(t *testing.T) {
	if _, err := Notes("Study Notes", "  \n "); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestNotesPageBreaks(t *testing.T) {
	long := strings.Repeat("A paragraph about goroutines and channels that wraps across the page.\n", 200)
	d, err := buildNotes("Study Notes", long)
	if err != nil {
		t.Fatalf("buildNotes: %v", err)
	}
	if d.doc.PageCount() < 2 {
		t.Errorf("expected automatic page breaks, got %d page(s)", d.doc.PageCount())
	}
	if _, err := d.bytes(); err != nil {
		t.Fatalf("bytes: %v", err)
	}
}

func sampleQuiz() []model.Question {
	var qs []model.Question
	for i := range 3 {
		qs = append(qs, model.Question{
			Stem:        fmt.Sprintf("Question %d", i+1),
			Options:     [4]string{"one", "two", "three", "four"},
			Correct:     1,
			Explanation: "Because two.",
		})
	}
	return qs
}

func renderUncompressed(t *testing.T, d *document) string {
	t.Helper()
	d.doc.SetCompression(false)
	data, err := d.bytes()
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}
	return string(data)
}

func TestQuiz(t *testing.T) {
	qs := sampleQuiz()
	answers := map[int]int{0: 1, 1: 2}

	t.Run("submitted", func(t *testing.T) {
		d, err := buildQuiz("Quiz", qs, answers, true)
		if err != nil {
			t.Fatalf("buildQuiz: %v", err)
		}
		out := renderUncompressed(t, d)
		for _, want := range []string{"Q1: Question 1", "Correct answer: B", "Your answer: C", "Explanation: Because two.", "Score: 1/3"} {
			if !strings.Contains(out, want) {
				t.Errorf("PDF should contain %q", want)
			}
		}
	})

	t.Run("in progress", func(t *testing.T) {
		d, err := buildQuiz("Quiz", qs, answers, false)
		if err != nil {
			t.Fatalf("buildQuiz: %v", err)
		}
		out := renderUncompressed(t, d)
		if strings.Contains(out, "Score:") {
			t.Error("score should only appear once submitted")
		}
		if strings.Count(out, "Your answer:") != 2 {
			t.Error("only answered questions should show the user's answer")
		}
	})

	t.Run("bytes", func(t *testing.T) {
		data, err := Quiz("Quiz", qs, nil, false)
		if err != nil {
			t.Fatalf("Quiz: %v", err)
		}
		if !bytes.HasPrefix(data, []byte("%PDF-")) {
			t.Error("output is not a PDF")
		}
	})

	t.Run("empty", func(t *testing.T) {
		if _, err := Quiz("Quiz", nil, nil, false); !errors.Is(err, ErrEmpty) {
			t.Errorf("expected ErrEmpty, got %v", err)
		}
	})
}
