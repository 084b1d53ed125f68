package model

import "time"

// ServerInfo records the LLM settings of the most recent server run.
type ServerInfo struct {
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	StructuredQuiz bool   `json:"structured_quiz"`
	StartedAt      string `json:"started_at"`
}

// ResultsExport is the top-level JSON structure for quiz result export.
type ResultsExport struct {
	ExportedAt time.Time    `json:"exported_at"`
	Server     ServerInfo   `json:"server"`
	Count      int          `json:"count"`
	Results    []QuizResult `json:"results"`
}
