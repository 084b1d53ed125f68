package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pavelanni/studynotes/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS quiz_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		transcript_name TEXT NOT NULL DEFAULT '',
		transcript_sha256 TEXT NOT NULL,
		transcript_chars INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		questions TEXT NOT NULL,
		answers TEXT NOT NULL,
		score INTEGER NOT NULL,
		total INTEGER NOT NULL,
		submitted_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_quiz_results_sha ON quiz_results(transcript_sha256);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS app_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL DEFAULT ''
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// InsertResult records a submitted quiz and returns its row id.
func (s *Store) InsertResult(r model.QuizResult) (int64, error) {
	questions, err := json.Marshal(r.Questions)
	if err != nil {
		return 0, fmt.Errorf("marshal questions: %w", err)
	}
	answers, err := json.Marshal(r.Answers)
	if err != nil {
		return 0, fmt.Errorf("marshal answers: %w", err)
	}
	res, err := s.db.Exec(
		`INSERT INTO quiz_results
		 (session_id, transcript_name, transcript_sha256, transcript_chars, notes, questions, answers, score, total, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.TranscriptName, r.TranscriptSHA256, r.TranscriptChars, r.Notes,
		string(questions), string(answers), r.Score, r.Total, r.SubmittedAt.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const resultColumns = `id, session_id, transcript_name, transcript_sha256, transcript_chars, notes, questions, answers, score, total, submitted_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanResult(row scanner) (model.QuizResult, error) {
	var r model.QuizResult
	var questions, answers string
	if err := row.Scan(&r.ID, &r.SessionID, &r.TranscriptName, &r.TranscriptSHA256, &r.TranscriptChars,
		&r.Notes, &questions, &answers, &r.Score, &r.Total, &r.SubmittedAt); err != nil {
		return r, err
	}
	if err := json.Unmarshal([]byte(questions), &r.Questions); err != nil {
		return r, fmt.Errorf("decode questions of result %d: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(answers), &r.Answers); err != nil {
		return r, fmt.Errorf("decode answers of result %d: %w", r.ID, err)
	}
	return r, nil
}

// GetResult returns a recorded quiz, or nil if not found.
func (s *Store) GetResult(id int64) (*model.QuizResult, error) {
	r, err := scanResult(s.db.QueryRow(`SELECT `+resultColumns+` FROM quiz_results WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListResults returns all recorded quizzes, oldest first.
func (s *Store) ListResults() ([]model.QuizResult, error) {
	rows, err := s.db.Query(`SELECT ` + resultColumns + ` FROM quiz_results ORDER BY submitted_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.QuizResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// CountResultsForTranscript returns how many quizzes were submitted for a transcript hash.
func (s *Store) CountResultsForTranscript(sha string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM quiz_results WHERE transcript_sha256 = ?`, sha).Scan(&n)
	return n, err
}
