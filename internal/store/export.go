package store

import (
	"fmt"
	"time"

	"github.com/pavelanni/studynotes/internal/model"
)

// ExportResults builds the export document from every recorded quiz.
func (s *Store) ExportResults() (model.ResultsExport, error) {
	results, err := s.ListResults()
	if err != nil {
		return model.ResultsExport{}, fmt.Errorf("list results: %w", err)
	}
	info, err := s.GetServerInfo()
	if err != nil {
		return model.ResultsExport{}, fmt.Errorf("get server info: %w", err)
	}
	if results == nil {
		results = []model.QuizResult{}
	}
	return model.ResultsExport{
		ExportedAt: time.Now().UTC(),
		Server:     info,
		Count:      len(results),
		Results:    results,
	}, nil
}
