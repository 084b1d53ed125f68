package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/studynotes/internal/model"
)

// CreateLoginSession stores a new login token valid for ttl.
func (s *Store) CreateLoginSession(ttl time.Duration) (model.AuthSession, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return model.AuthSession{}, fmt.Errorf("generate login token: %w", err)
	}
	now := time.Now().UTC()
	sess := model.AuthSession{
		ID:        hex.EncodeToString(buf[:]),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if _, err := s.db.Exec(
		`INSERT INTO auth_sessions (id, created_at, expires_at) VALUES (?, ?, ?)`,
		sess.ID, sess.CreatedAt, sess.ExpiresAt,
	); err != nil {
		return model.AuthSession{}, fmt.Errorf("insert login session: %w", err)
	}
	return sess, nil
}

// LoginSession looks up an unexpired login token.
func (s *Store) LoginSession(token string) (model.AuthSession, bool, error) {
	var sess model.AuthSession
	err := s.db.QueryRow(
		`SELECT id, created_at, expires_at FROM auth_sessions WHERE id = ? AND expires_at > ?`,
		token, time.Now().UTC(),
	).Scan(&sess.ID, &sess.CreatedAt, &sess.ExpiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return model.AuthSession{}, false, nil
	case err != nil:
		return model.AuthSession{}, false, fmt.Errorf("query login session: %w", err)
	}
	return sess, true, nil
}

// DeleteLoginSession removes a login token. Unknown tokens are not an error.
func (s *Store) DeleteLoginSession(token string) error {
	_, err := s.db.Exec(`DELETE FROM auth_sessions WHERE id = ?`, token)
	return err
}

// PurgeExpiredLogins deletes expired login tokens and reports how many were removed.
func (s *Store) PurgeExpiredLogins() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM auth_sessions WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
