package store

import (
	"fmt"
	"strconv"

	"github.com/pavelanni/studynotes/internal/model"
)

const (
	metaProvider   = "llm_provider"
	metaModel      = "llm_model"
	metaStructured = "structured_quiz"
	metaStartedAt  = "started_at"
)

// SetServerInfo replaces the stored server settings in one transaction.
func (s *Store) SetServerInfo(info model.ServerInfo) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows := map[string]string{
		metaProvider:   info.Provider,
		metaModel:      info.Model,
		metaStructured: strconv.FormatBool(info.StructuredQuiz),
		metaStartedAt:  info.StartedAt,
	}
	for k, v := range rows {
		if _, err := tx.Exec(
			`INSERT INTO app_metadata (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			k, v,
		); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// GetServerInfo reads the stored server settings. Missing keys leave
// their fields zero.
func (s *Store) GetServerInfo() (model.ServerInfo, error) {
	var info model.ServerInfo
	rows, err := s.db.Query(
		`SELECT key, value FROM app_metadata WHERE key IN (?, ?, ?, ?)`,
		metaProvider, metaModel, metaStructured, metaStartedAt,
	)
	if err != nil {
		return info, fmt.Errorf("query server info: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return info, err
		}
		switch k {
		case metaProvider:
			info.Provider = v
		case metaModel:
			info.Model = v
		case metaStartedAt:
			info.StartedAt = v
		case metaStructured:
			if v == "" {
				continue
			}
			if info.StructuredQuiz, err = strconv.ParseBool(v); err != nil {
				return info, fmt.Errorf("parse %s: %w", k, err)
			}
		}
	}
	return info, rows.Err()
}
