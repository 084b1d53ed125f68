package quiz

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/pavelanni/studynotes/internal/model"
)

// numberedQuiz builds n blocks in the "1. stem / A) .. D) / Answer: X" format.
func numberedQuiz(n int) string {
	var sb strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, "%d. What is %d+%d?\n", i, i, i)
		fmt.Fprintf(&sb, "A) %d\nB) %d\nC) %d\nD) %d\n", 2*i-1, 2*i, 2*i+1, 2*i+2)
		sb.WriteString("Answer: B\n")
	}
	return sb.String()
}

// delimitedQuiz builds n blocks in the "#####"-separated format with explanations.
func delimitedQuiz(n int) string {
	var blocks []string
	for i := 1; i <= n; i++ {
		blocks = append(blocks, fmt.Sprintf(
			"Question: Which planet is number %d?\nA) Planet %d\nB) Planet %d\nC) Planet %d\nD) Planet %d\nAnswer: C\nExplanation: Planet %d is number %d.",
			i, i+10, i+20, i, i+30, i, i))
	}
	return strings.Join(blocks, "\n#####\n")
}

func TestParseTenNumberedBlocks(t *testing.T) {
	res, err := Parse(numberedQuiz(10))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Questions) != model.QuizSize {
		t.Fatalf("expected %d questions, got %d", model.QuizSize, len(res.Questions))
	}
	if res.Short() {
		t.Error("expected a full quiz")
	}
	for i, q := range res.Questions {
		if q.Correct < 0 || q.Correct >= model.OptionCount {
			t.Errorf("question %d: correct index %d out of range", i, q.Correct)
		}
		for j, o := range q.Options {
			if o == "" {
				t.Errorf("question %d: option %d empty", i, j)
			}
		}
	}

	q0 := res.Questions[0]
	if q0.Stem != "What is 1+1?" {
		t.Errorf("unexpected stem %q", q0.Stem)
	}
	if q0.Correct != 1 {
		t.Errorf("expected correct index 1, got %d", q0.Correct)
	}
	if q0.Options != [4]string{"1", "2", "3", "4"} {
		t.Errorf("unexpected options %v", q0.Options)
	}
}

func TestParseTwoPlusTwo(t *testing.T) {
	raw := "1. What is 2+2?\nA) 3\nB) 4\nC) 5\nD) 6\nAnswer: B\n" + strings.SplitN(numberedQuiz(10), "Answer: B\n", 2)[1]
	res, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Questions) != 10 {
		t.Fatalf("expected 10 questions, got %d", len(res.Questions))
	}
	if res.Questions[0].Stem != "What is 2+2?" || res.Questions[0].Correct != 1 {
		t.Errorf("unexpected first question %+v", res.Questions[0])
	}
}

func TestParseDelimitedWithExplanation(t *testing.T) {
	raw := "Here are your questions:\n\n" + delimitedQuiz(10)
	res, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Questions) != 10 {
		t.Fatalf("expected 10 questions, got %d (dropped %d)", len(res.Questions), res.Dropped)
	}
	q := res.Questions[2]
	if q.Stem != "Which planet is number 3?" {
		t.Errorf("unexpected stem %q", q.Stem)
	}
	if q.Correct != 2 {
		t.Errorf("expected correct index 2, got %d", q.Correct)
	}
	if q.Explanation != "Planet 3 is number 3." {
		t.Errorf("unexpected explanation %q", q.Explanation)
	}
}

func TestParseNoQuestions(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"whitespace", "  \n\t\n"},
		{"prose", "I'm sorry, I cannot help with that request."},
		{"error json", `{"error": "rate limited"}`},
		{"options without answer", "1. What?\nA) a\nB) b\nC) c\nD) d\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Parse(tt.raw)
			if !errors.Is(err, ErrNoQuestions) {
				t.Fatalf("expected ErrNoQuestions, got %v", err)
			}
			if len(res.Questions) != 0 {
				t.Errorf("expected no questions, got %d", len(res.Questions))
			}
		})
	}
}

func TestParseDropsMalformedBlocks(t *testing.T) {
	raw := strings.Join([]string{
		"Question: Good one?\nA) yes\nB) no\nC) maybe\nD) never\nAnswer: A",
		"Question: Three options?\nA) yes\nB) no\nC) maybe\nAnswer: A",
		"Question: No answer?\nA) yes\nB) no\nC) maybe\nD) never",
		"Question: Unknown answer?\nA) yes\nB) no\nC) maybe\nD) never\nAnswer: Z",
		"Question: Duplicate options?\nA) yes\nB) Yes\nC) maybe\nD) never\nAnswer: A",
		"A) orphan\nB) options\nC) without\nD) stem\nAnswer: A",
	}, "\n#####\n")

	res, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Questions) != 1 {
		t.Fatalf("expected 1 question, got %d: %+v", len(res.Questions), res.Questions)
	}
	if res.Dropped != 5 {
		t.Errorf("expected 5 dropped blocks, got %d", res.Dropped)
	}
	if !res.Short() {
		t.Error("expected short result")
	}
}

func TestParseTruncatesExtraQuestions(t *testing.T) {
	res, err := Parse(numberedQuiz(12))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Questions) != model.QuizSize {
		t.Fatalf("expected %d questions, got %d", model.QuizSize, len(res.Questions))
	}
	if res.Extra != 2 {
		t.Errorf("expected 2 extra, got %d", res.Extra)
	}
}

func TestParseNumericOptions(t *testing.T) {
	raw := "1. Which is prime?\n1) 4\n2) 6\n3) 7\n4) 9\nAnswer: 3\n" +
		"2. Which is even?\n1) 3\n2) 5\n3) 8\n4) 9\nAnswer: 3) 8\n"
	res, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(res.Questions))
	}
	if res.Questions[0].Correct != 2 {
		t.Errorf("expected label 3 to resolve to index 2, got %d", res.Questions[0].Correct)
	}
	if res.Questions[1].Options[2] != "8" || res.Questions[1].Correct != 2 {
		t.Errorf("unexpected second question %+v", res.Questions[1])
	}
}

func TestParseAnswerForms(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   int
	}{
		{"bare letter", "C", 2},
		{"lowercase letter", "c", 2},
		{"letter with paren", "C)", 2},
		{"letter with text", "C) Paris", 2},
		{"bold marker", "**D**", 3},
		{"option text", "Berlin", 1},
		{"option text case", "rome", 3},
		{"sentence containing option", "The capital is Paris.", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := "Question: What is the capital of France?\nA) London\nB) Berlin\nC) Paris\nD) Rome\nAnswer: " + tt.answer + "\n"
			res, err := Parse(raw)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got := res.Questions[0].Correct; got != tt.want {
				t.Errorf("correct = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseMixedLabelStyles(t *testing.T) {
	numeric := "Question: Which animal barks?\n1) Dog\n2) Cat\n3) Cow\n4) Pig\nAnswer: "
	letters := "Question: Which animal barks?\nA) Dog\nB) Cat\nC) Cow\nD) Pig\nAnswer: "
	sums := "Question: What is 2+2?\nA) 3\nB) 4\nC) 5\nD) 6\nAnswer: "

	tests := []struct {
		name string
		raw  string
		want int // -1 means the block is dropped
	}{
		{"letter answer for numbered options", numeric + "A", 0},
		{"letter answer with paren for numbered options", numeric + "(C)", 2},
		{"digit answer for lettered options", letters + "2", 1},
		{"letter label with matching text", numeric + "A) Dog", 0},
		{"label and text disagree", numeric + "A) Cat", -1},
		{"option word", letters + "Option B", 1},
		{"choice word with colon", letters + "Choice: D", 3},
		{"label dash reason", letters + "B - because it meows", 1},
		{"label en dash reason", letters + "A – dogs bark", 0},
		{"label comma reason", letters + "C, the cow", 2},
		{"option text beats position", sums + "4", 1},
		{"unknown label", letters + "Z", -1},
		{"single letter inside one option", letters + "t", -1},
		{"two letters", letters + "og", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Parse(tt.raw + "\n")
			if tt.want < 0 {
				if !errors.Is(err, ErrNoQuestions) {
					t.Fatalf("expected the block to be dropped, got %v %+v", err, res.Questions)
				}
				if res.Dropped != 1 {
					t.Errorf("dropped = %d, want 1", res.Dropped)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got := res.Questions[0].Correct; got != tt.want {
				t.Errorf("correct = %d (%s), want %d", got, res.Questions[0].Options[got], tt.want)
			}
		})
	}
}

func TestParseNumberedExplanation(t *testing.T) {
	raw := "1. Why do goroutines scale?\nA) threads\nB) small stacks\nC) locks\nD) GC\nAnswer: B\n" +
		"Explanation: two reasons:\n1. stacks start small\n2. the scheduler multiplexes them\n" +
		"2. Which keyword starts one?\nA) defer\nB) go\nC) chan\nD) select\nAnswer: B\n"

	res, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Questions) != 2 || res.Dropped != 0 {
		t.Fatalf("expected 2 questions and none dropped, got %d (dropped %d)", len(res.Questions), res.Dropped)
	}
	want := "two reasons: 1. stacks start small 2. the scheduler multiplexes them"
	if got := res.Questions[0].Explanation; got != want {
		t.Errorf("explanation = %q, want %q", got, want)
	}
	if got := res.Questions[1].Stem; got != "Which keyword starts one?" {
		t.Errorf("second stem = %q", got)
	}
}

func TestParseOptionMarkers(t *testing.T) {
	raw := "**Q1:** Which keyword starts a goroutine?\n(A) defer\n(B) go\n(C) chan\n(D) select\n**Answer:** B\n"
	res, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	q := res.Questions[0]
	if q.Stem != "Which keyword starts a goroutine?" {
		t.Errorf("unexpected stem %q", q.Stem)
	}
	if q.Options != [4]string{"defer", "go", "chan", "select"} {
		t.Errorf("unexpected options %v", q.Options)
	}
	if q.Correct != 1 {
		t.Errorf("expected 1, got %d", q.Correct)
	}
}

func TestParseJSON(t *testing.T) {
	raw := "```json\n" + `{"questions": [
		{"question": "What is 2+2?", "options": ["3", "4", "5", "6"], "correct_index": 1, "explanation": "Basic sum."},
		{"question": "Capital of Italy?", "options": ["A) Paris", "B) Rome", "C) Madrid", "D) Oslo"], "answer": "B"},
		{"question": "Bad", "options": ["x", "y"], "correct_index": 0},
		{"question": "Out of range", "options": ["a", "b", "c", "d"], "correct_index": 7}
	]}` + "\n```"

	res, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(res.Questions))
	}
	if res.Dropped != 2 {
		t.Errorf("expected 2 dropped, got %d", res.Dropped)
	}
	if res.Questions[0].Explanation != "Basic sum." {
		t.Errorf("unexpected explanation %q", res.Questions[0].Explanation)
	}
	if res.Questions[1].Options[1] != "Rome" || res.Questions[1].Correct != 1 {
		t.Errorf("unexpected second question %+v", res.Questions[1])
	}
}

func TestParseJSONArray(t *testing.T) {
	raw := `[{"question": "Largest planet?", "options": ["Mars", "Jupiter", "Venus", "Earth"], "answer": "Jupiter"}]`
	res, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Questions) != 1 || res.Questions[0].Correct != 1 {
		t.Errorf("unexpected result %+v", res.Questions)
	}
}

func TestResolveAnswerAmbiguous(t *testing.T) {
	opts := [4]string{"red apple", "green apple", "red grape", "green grape"}
	if _, ok := resolveAnswer("apple", opts, true); ok {
		t.Error("expected ambiguous answer to be unresolved")
	}
	if idx, ok := resolveAnswer("green grape", opts, true); !ok || idx != 3 {
		t.Errorf("expected exact match 3, got %d %v", idx, ok)
	}
}

func TestSchema(t *testing.T) {
	s := Schema()
	if s == nil {
		t.Fatal("nil schema")
	}
	data, err := s.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	for _, want := range []string{`"questions"`, `"correct_index"`, `"options"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("schema missing %s", want)
		}
	}
}
