// Package session holds the per-user study session and its phase transitions.
package session

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/pavelanni/studynotes/internal/model"
	"github.com/pavelanni/studynotes/internal/quiz"
)

// Phase is the screen the user is currently on.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseTranscriptLoaded Phase = "transcript_loaded"
	PhaseNotesReady       Phase = "notes_ready"
	PhaseQuizInProgress   Phase = "quiz_in_progress"
	PhaseQuizSubmitted    Phase = "quiz_submitted"
)

var (
	ErrEmptyTranscript = errors.New("transcript is empty")
	ErrEmptyNotes      = errors.New("notes are empty")
	ErrLLMCall         = errors.New("LLM call failed")
	ErrParseFailure    = errors.New("no quiz questions could be parsed")
	ErrShortQuiz       = errors.New("quiz has fewer questions than requested")
	ErrOrdering        = errors.New("action not allowed in current phase")
	ErrAnswerIndex     = errors.New("answer index out of range")
)

// State is an immutable snapshot of a study session. Transition methods
// return a new State and never modify the receiver.
type State struct {
	Phase          Phase
	TranscriptName string
	Transcript     string
	Summary        string
	Notes          string
	Quiz           []model.Question
	Answers        map[int]int
	Score          int
	SubmittedAt    time.Time
}

func orderingError(action string, p Phase) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrOrdering, action, p)
}

// Load stores an uploaded transcript.
func (s State) Load(name, text string) (State, error) {
	if s.Phase != PhaseIdle {
		return s, orderingError("load a transcript", s.Phase)
	}
	if strings.TrimSpace(text) == "" {
		return s, ErrEmptyTranscript
	}
	return State{
		Phase:          PhaseTranscriptLoaded,
		TranscriptName: name,
		Transcript:     text,
	}, nil
}

// CanGenerateNotes reports whether notes may be (re)generated now.
func (s State) CanGenerateNotes() error {
	if s.Phase != PhaseTranscriptLoaded && s.Phase != PhaseNotesReady {
		return orderingError("generate notes", s.Phase)
	}
	return nil
}

// CanGenerateQuiz reports whether a quiz may be started now.
func (s State) CanGenerateQuiz() error {
	if s.Phase != PhaseNotesReady {
		return orderingError("start a quiz", s.Phase)
	}
	return nil
}

// WithNotes stores freshly generated notes, replacing earlier ones.
func (s State) WithNotes(summary, notes string) (State, error) {
	if err := s.CanGenerateNotes(); err != nil {
		return s, err
	}
	if strings.TrimSpace(notes) == "" {
		return s, ErrEmptyNotes
	}
	return State{
		Phase:          PhaseNotesReady,
		TranscriptName: s.TranscriptName,
		Transcript:     s.Transcript,
		Summary:        summary,
		Notes:          notes,
	}, nil
}

// WithQuiz parses raw LLM quiz output and starts the quiz. The parse result
// is returned alongside so callers can report dropped or missing questions.
func (s State) WithQuiz(raw string, requireFull bool) (State, quiz.Result, error) {
	if err := s.CanGenerateQuiz(); err != nil {
		return s, quiz.Result{}, err
	}
	res, err := quiz.Parse(raw)
	if err != nil {
		return s, res, fmt.Errorf("%w: %w", ErrParseFailure, err)
	}
	if requireFull && res.Short() {
		return s, res, fmt.Errorf("%w: got %d of %d", ErrShortQuiz, len(res.Questions), model.QuizSize)
	}
	next := s
	next.Phase = PhaseQuizInProgress
	next.Quiz = res.Questions
	next.Answers = make(map[int]int)
	next.Score = 0
	next.SubmittedAt = time.Time{}
	return next, res, nil
}

// Answer records option as the answer to question i, overwriting any earlier choice.
func (s State) Answer(i, option int) (State, error) {
	if s.Phase != PhaseQuizInProgress {
		return s, orderingError("record an answer", s.Phase)
	}
	if i < 0 || i >= len(s.Quiz) {
		return s, fmt.Errorf("%w: question %d of %d", ErrAnswerIndex, i, len(s.Quiz))
	}
	if option < 0 || option >= model.OptionCount {
		return s, fmt.Errorf("%w: option %d", ErrAnswerIndex, option)
	}
	next := s
	next.Answers = maps.Clone(s.Answers)
	if next.Answers == nil {
		next.Answers = make(map[int]int)
	}
	next.Answers[i] = option
	return next, nil
}

// Submit locks the answers and computes the score. Submitting again
// recomputes the same score and keeps the original submission time.
func (s State) Submit(now time.Time) (State, error) {
	switch s.Phase {
	case PhaseQuizInProgress:
		next := s
		next.Phase = PhaseQuizSubmitted
		next.Score = Score(s.Quiz, s.Answers)
		next.SubmittedAt = now
		return next, nil
	case PhaseQuizSubmitted:
		next := s
		next.Score = Score(s.Quiz, s.Answers)
		return next, nil
	default:
		return s, orderingError("submit the quiz", s.Phase)
	}
}

// Reset discards everything and returns to the idle phase.
func (s State) Reset() State {
	return State{Phase: PhaseIdle}
}

// Answered reports the option chosen for question i, if any.
func (s State) Answered(i int) (int, bool) {
	opt, ok := s.Answers[i]
	return opt, ok
}

// Score counts questions whose recorded answer equals the correct option.
// Unanswered questions count as incorrect.
func Score(questions []model.Question, answers map[int]int) int {
	score := 0
	for i, q := range questions {
		if opt, ok := answers[i]; ok && opt == q.Correct {
			score++
		}
	}
	return score
}
