// Package pdf renders study notes and quizzes as A4 PDF documents using the
// core Helvetica font.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/encoding/charmap"

	"github.com/pavelanni/studynotes/internal/model"
	"github.com/pavelanni/studynotes/internal/session"
)

// ErrEmpty is returned when there is nothing to put in the document.
var ErrEmpty = errors.New("nothing to export")

const (
	margin     = 15.0
	lineHeight = 6.0
	bodySize   = 11.0
	titleSize  = 16.0
)

var (
	headingRegex = regexp.MustCompile(`(?m)^[ \t]*#{1,6}[ \t]*`)
	bulletRegex  = regexp.MustCompile(`(?m)^([ \t]*)[-+*][ \t]+`)
	boldRegex    = regexp.MustCompile(`\*\*(.*?)\*\*|__(.*?)__`)
	italicRegex  = regexp.MustCompile(`\*([^*\n]+?)\*`)
)

// CleanMarkdown strips heading, bold, italic and bullet markers.
func CleanMarkdown(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = headingRegex.ReplaceAllString(text, "")
	text = bulletRegex.ReplaceAllString(text, "$1")
	text = boldRegex.ReplaceAllString(text, "$1$2")
	text = italicRegex.ReplaceAllString(text, "$1")
	return text
}

// toWindows1252 replaces every rune the core fonts cannot show with '?'.
func toWindows1252(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if _, ok := charmap.Windows1252.EncodeRune(r); !ok {
			return '?'
		}
		return r
	}, s)
}

type document struct {
	doc *fpdf.Fpdf
	tr  func(string) string
}

func newDocument(title string) *document {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(margin, margin, margin)
	doc.SetAutoPageBreak(true, margin)
	doc.SetTitle(title, true)
	doc.SetCreator("studynotes", false)
	doc.AddPage()

	d := &document{doc: doc, tr: doc.UnicodeTranslatorFromDescriptor("")}
	d.doc.SetFont("Helvetica", "B", titleSize)
	d.doc.CellFormat(0, 10, d.text(title), "", 1, "C", false, 0, "")
	d.doc.Ln(lineHeight)
	return d
}

func (d *document) text(s string) string {
	return d.tr(toWindows1252(s))
}

func (d *document) paragraph(style, s string) {
	d.doc.SetFont("Helvetica", style, bodySize)
	d.doc.MultiCell(0, lineHeight, d.text(s), "", "L", false)
}

func (d *document) bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("rendering PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func buildNotes(title, notes string) (*document, error) {
	notes = strings.TrimSpace(CleanMarkdown(notes))
	if notes == "" {
		return nil, ErrEmpty
	}
	d := newDocument(title)
	d.paragraph("", notes)
	return d, nil
}

// Notes renders the notes under title.
func Notes(title, notes string) ([]byte, error) {
	d, err := buildNotes(title, notes)
	if err != nil {
		return nil, err
	}
	return d.bytes()
}

func buildQuiz(title string, questions []model.Question, answers map[int]int, submitted bool) (*document, error) {
	if len(questions) == 0 {
		return nil, ErrEmpty
	}
	d := newDocument(title)
	for i, q := range questions {
		d.paragraph("B", fmt.Sprintf("Q%d: %s", i+1, q.Stem))
		for j, opt := range q.Options {
			d.paragraph("", fmt.Sprintf("%s) %s", model.OptionLabel(j), opt))
		}
		d.paragraph("I", "Correct answer: "+model.OptionLabel(q.Correct))
		if a, ok := answers[i]; ok {
			d.paragraph("I", "Your answer: "+model.OptionLabel(a))
		}
		if q.Explanation != "" {
			d.paragraph("", "Explanation: "+q.Explanation)
		}
		d.doc.Ln(lineHeight / 2)
	}
	if submitted {
		d.doc.Ln(lineHeight)
		d.paragraph("B", fmt.Sprintf("Score: %d/%d", session.Score(questions, answers), len(questions)))
	}
	return d, nil
}

// Quiz renders every question with its options and correct answer. The
// user's answers are included when present and the score once submitted.
func Quiz(title string, questions []model.Question, answers map[int]int, submitted bool) ([]byte, error) {
	d, err := buildQuiz(title, questions, answers, submitted)
	if err != nil {
		return nil, err
	}
	return d.bytes()
}
