// Package quiz turns raw LLM output into validated multiple-choice questions.
package quiz

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/samber/lo"

	"github.com/pavelanni/studynotes/internal/model"
)

// ErrNoQuestions is returned when the text contains no well-formed question at all.
var ErrNoQuestions = errors.New("no questions parsed")

// Delimiter separates question blocks in the text format requested from the LLM.
const Delimiter = "#####"

// minTextAnswer is the shortest answer matched loosely against option text.
const minTextAnswer = 3

var (
	questionMarkerRegex = regexp.MustCompile(`(?i)^\s*(?:#+\s*)?(?:question\s*\d*\s*[:.)]|q\s*\d+\s*[:.)]|\d+\s*[.)])\s*`)
	namedMarkerRegex    = regexp.MustCompile(`(?i)^\s*(?:#+\s*)?(?:question\s*\d*\s*[:.)]|q\s*\d+\s*[:.)])`)
	optionRegex         = regexp.MustCompile(`^\s*(?:[-*]\s+)?\(?([A-Da-d]|[1-4])\s*[).:\]]\s*(.*)$`)
	answerRegex         = regexp.MustCompile(`(?i)^\s*(?:correct\s+)?answer\s*[:\-]\s*(.*)$`)
	explanationRegex    = regexp.MustCompile(`(?i)^\s*explanation\s*[:\-]\s*(.*)$`)
	bareLabelRegex      = regexp.MustCompile(`^\(?([A-Da-d]|[1-4])\s*[).:\]]?$`)
	labelPrefixRegex    = regexp.MustCompile(`^\(?([A-Da-d]|[1-4])\s*[).:\]]\s+`)
	answerLabelRegex    = regexp.MustCompile(`^\(?([A-Da-d]|[1-4])\s*[).:\],\-–](?:\s+|$)`)
	optionWordRegex     = regexp.MustCompile(`(?i)^(?:option|choice)(?:\s*[:#]\s*|\s+)`)
	fenceRegex          = regexp.MustCompile("(?m)^\\s*```[a-zA-Z]*\\s*$")
)

// Result holds the questions that survived validation.
type Result struct {
	Questions []model.Question
	Dropped   int // blocks rejected as malformed
	Extra     int // valid questions beyond model.QuizSize that were discarded
}

// Short reports whether fewer than model.QuizSize questions were parsed.
func (r Result) Short() bool {
	return len(r.Questions) < model.QuizSize
}

// Parse extracts quiz questions from raw LLM output. JSON output is tried
// first; anything else goes through the line-oriented heuristic.
func Parse(raw string) (Result, error) {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = fenceRegex.ReplaceAllString(text, "")

	if res, ok := parseJSON(text); ok {
		return finish(res)
	}
	return finish(parseText(text))
}

func finish(res Result) (Result, error) {
	if len(res.Questions) == 0 {
		return res, ErrNoQuestions
	}
	if len(res.Questions) > model.QuizSize {
		res.Extra = len(res.Questions) - model.QuizSize
		res.Questions = res.Questions[:model.QuizSize]
	}
	return res, nil
}

type rawQuestion struct {
	Question     string   `json:"question"`
	Stem         string   `json:"stem"`
	Options      []string `json:"options"`
	CorrectIndex *int     `json:"correct_index"`
	Answer       string   `json:"answer"`
	Explanation  string   `json:"explanation"`
}

type rawDocument struct {
	Questions []rawQuestion `json:"questions"`
}

func parseJSON(text string) (Result, bool) {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return Result{}, false
	}
	closer := "}"
	if text[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(text, closer)
	if end <= start {
		return Result{}, false
	}
	payload := []byte(text[start : end+1])

	var raws []rawQuestion
	if closer == "]" {
		if err := json.Unmarshal(payload, &raws); err != nil {
			return Result{}, false
		}
	} else {
		var doc rawDocument
		if err := json.Unmarshal(payload, &doc); err != nil {
			return Result{}, false
		}
		raws = doc.Questions
	}

	var res Result
	for _, rq := range raws {
		q, ok := rq.validate()
		if !ok {
			res.Dropped++
			continue
		}
		res.Questions = append(res.Questions, q)
	}
	return res, len(res.Questions) > 0
}

func (rq rawQuestion) validate() (model.Question, bool) {
	var q model.Question
	stem := strings.TrimSpace(lo.Ternary(rq.Question != "", rq.Question, rq.Stem))
	if stem == "" || len(rq.Options) != model.OptionCount {
		return q, false
	}
	opts := lo.Map(rq.Options, func(o string, _ int) string { return cleanOption(o) })
	if !validOptions(opts) {
		return q, false
	}
	q.Stem = stem
	copy(q.Options[:], opts)
	q.Explanation = strings.TrimSpace(rq.Explanation)

	if rq.CorrectIndex != nil {
		if *rq.CorrectIndex < 0 || *rq.CorrectIndex >= model.OptionCount {
			return q, false
		}
		q.Correct = *rq.CorrectIndex
		return q, true
	}
	idx, ok := resolveAnswer(rq.Answer, q.Options, true)
	if !ok {
		return q, false
	}
	q.Correct = idx
	return q, true
}

// splitBlocks cuts the text into candidate question blocks. The explicit
// delimiter separates chunks first; inside a chunk a new block starts at a
// "Question:"/"Q1:" marker, or at a numbered line when the current block has
// no question yet or has its options but no answer. After an answer a
// numbered line only starts a block when a full question follows it, so
// numbered lists inside an explanation stay with their question.
func splitBlocks(text string) []string {
	chunks := []string{text}
	if strings.Contains(text, Delimiter) {
		chunks = strings.Split(text, Delimiter)
	}

	var blocks []string
	for _, chunk := range chunks {
		var (
			current []string
			options int
			started bool
			done    bool
		)
		flush := func() {
			if strings.TrimSpace(strings.Join(current, "")) != "" {
				blocks = append(blocks, strings.Join(current, "\n"))
			}
			current, options, started, done = nil, 0, false, false
		}
		lines := strings.Split(chunk, "\n")
		for i, line := range lines {
			line = stripEmphasis(line)
			named := namedMarkerRegex.MatchString(line)
			numbered := !named && questionMarkerRegex.MatchString(line)
			switch {
			case named,
				numbered && !started,
				numbered && !done && options >= model.OptionCount,
				numbered && done && opensQuestion(lines[i+1:]):
				flush()
				started = true
			case answerRegex.MatchString(line):
				done = true
			case started && optionRegex.MatchString(line):
				options++
			}
			current = append(current, line)
		}
		flush()
	}
	return blocks
}

// opensQuestion reports whether lines hold options labelled in order from
// the first one, followed by an answer, before any other question marker.
func opensQuestion(lines []string) bool {
	next := 0
	for _, line := range lines {
		line = stripEmphasis(line)
		if answerRegex.MatchString(line) {
			return next == model.OptionCount
		}
		if namedMarkerRegex.MatchString(line) {
			return false
		}
		m := optionRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if next == model.OptionCount || labelIndex(m[1]) != next {
			return false
		}
		next++
	}
	return false
}

func parseText(text string) Result {
	var res Result
	for _, block := range splitBlocks(text) {
		q, ok := parseBlock(block)
		if !ok {
			res.Dropped++
			continue
		}
		res.Questions = append(res.Questions, q)
	}
	return res
}

func parseBlock(block string) (model.Question, bool) {
	var (
		q           model.Question
		stem        []string
		opts        = make(map[int]string)
		lastOpt     = -1
		numeric     bool
		styleSet    bool
		answer      string
		haveAnswer  bool
		explanation []string
		explaining  bool
	)

	lines := lo.Filter(strings.Split(block, "\n"), func(l string, _ int) bool {
		return strings.TrimSpace(l) != ""
	})
	for i, line := range lines {
		line = stripEmphasis(line)

		if loc := questionMarkerRegex.FindStringIndex(line); loc != nil &&
			(i == 0 || len(opts) == 0 && !haveAnswer && namedMarkerRegex.MatchString(line)) {
			stem = nil
			if rest := strings.TrimSpace(line[loc[1]:]); rest != "" {
				stem = append(stem, rest)
			}
			continue
		}
		if m := answerRegex.FindStringSubmatch(line); m != nil && !haveAnswer {
			answer = strings.TrimSpace(m[1])
			haveAnswer = true
			explaining = false
			lastOpt = -1
			continue
		}
		if m := explanationRegex.FindStringSubmatch(line); m != nil {
			explaining = true
			lastOpt = -1
			explanation = append(explanation, strings.TrimSpace(m[1]))
			continue
		}
		if explaining {
			explanation = append(explanation, strings.TrimSpace(line))
			continue
		}
		if m := optionRegex.FindStringSubmatch(line); m != nil && len(stem) > 0 && !haveAnswer {
			isDigit := isDigitLabel(m[1])
			if !styleSet {
				numeric, styleSet = isDigit, true
			}
			if isDigit == numeric {
				idx := labelIndex(m[1])
				if _, seen := opts[idx]; !seen {
					opts[idx] = m[2]
					lastOpt = idx
				}
				continue
			}
		}

		switch {
		case lastOpt >= 0:
			opts[lastOpt] += " " + strings.TrimSpace(line)
		case len(opts) == 0 && !haveAnswer:
			stem = append(stem, strings.TrimSpace(line))
		}
	}

	if len(stem) == 0 || len(opts) != model.OptionCount || !haveAnswer {
		return q, false
	}
	for i := range model.OptionCount {
		o, ok := opts[i]
		if !ok {
			return q, false
		}
		q.Options[i] = cleanOption(o)
	}
	if !validOptions(q.Options[:]) {
		return q, false
	}
	idx, ok := resolveAnswer(answer, q.Options, !numeric)
	if !ok {
		return q, false
	}
	q.Stem = strings.Join(stem, " ")
	q.Correct = idx
	q.Explanation = strings.TrimSpace(strings.Join(explanation, " "))
	return q, true
}

// resolveAnswer maps the text after "Answer:" to an option index. Order:
// a bare label in the options' own style, the exact option text, a bare
// label in the other style (matched by position), a label followed by text,
// and then loose text matching for longer answers. Loose matches are
// accepted only when exactly one option matches.
func resolveAnswer(answer string, options [model.OptionCount]string, letters bool) (int, bool) {
	answer = strings.TrimSpace(stripEmphasis(answer))
	answer = strings.TrimRight(answer, " .")
	if answer == "" {
		return 0, false
	}
	label := optionWordRegex.ReplaceAllString(answer, "")

	bare := bareLabelRegex.FindStringSubmatch(label)
	if bare != nil && isDigitLabel(bare[1]) != letters {
		return labelIndex(bare[1]), true
	}

	lower := lo.Map(options[:], func(o string, _ int) string { return strings.ToLower(o) })
	la := strings.ToLower(answer)
	if idx := lo.IndexOf(lower, la); idx >= 0 {
		return idx, true
	}
	if bare != nil {
		return labelIndex(bare[1]), true
	}

	if m := answerLabelRegex.FindStringSubmatchIndex(label); m != nil {
		idx := labelIndex(label[m[2]:m[3]])
		rest := strings.ToLower(strings.TrimSpace(label[m[1]:]))
		if named := lo.IndexOf(lower, rest); named >= 0 && named != idx {
			return 0, false
		}
		return idx, true
	}

	if utf8.RuneCountInString(answer) < minTextAnswer {
		return 0, false
	}

	var hits []int
	for i, o := range options {
		if fuzzy.MatchNormalizedFold(answer, o) {
			hits = append(hits, i)
		}
	}
	if len(hits) == 1 {
		return hits[0], true
	}

	hits = hits[:0]
	for i, o := range lower {
		if utf8.RuneCountInString(o) >= minTextAnswer && strings.Contains(la, o) {
			hits = append(hits, i)
		}
	}
	if len(hits) == 1 {
		return hits[0], true
	}
	return 0, false
}

func isDigitLabel(label string) bool {
	return label[0] >= '1' && label[0] <= '4'
}

func labelIndex(label string) int {
	c := label[0]
	switch {
	case c >= '1' && c <= '4':
		return int(c - '1')
	case c >= 'a' && c <= 'd':
		return int(c - 'a')
	default:
		return int(c - 'A')
	}
}

func cleanOption(o string) string {
	o = strings.TrimSpace(stripEmphasis(o))
	if loc := labelPrefixRegex.FindStringIndex(o); loc != nil {
		o = o[loc[1]:]
	}
	return strings.TrimSpace(o)
}

func validOptions(opts []string) bool {
	if len(opts) != model.OptionCount {
		return false
	}
	if lo.SomeBy(opts, func(o string) bool { return o == "" }) {
		return false
	}
	lower := lo.Map(opts, func(o string, _ int) string { return strings.ToLower(o) })
	return len(lo.Uniq(lower)) == model.OptionCount
}

func stripEmphasis(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	return strings.ReplaceAll(s, "__", "")
}
