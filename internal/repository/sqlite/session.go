package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/task-manager/internal/repository"
)

var _ repository.SessionRepository = (*SessionDB)(nil)

// SessionDB implements repository.SessionRepository over the shared pool.
// One row per live token; the FK on user_id cascades, so deleting a user
// revokes every session they had.
type SessionDB struct {
	conn *sql.DB
}

// Add records a newly issued token as a live session for the user.
// Concurrent logins are safe: each INSERT is an independent row.
func (s *SessionDB) Add(ctx context.Context, userID, token string) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, created_at) VALUES (?, ?, ?)`,
		token, userID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: adding session for user %s: %w", userID, err)
	}
	return nil
}

// Exists reports whether the exact token string is a live session for the
// user. The auth middleware calls this on every protected request.
func (s *SessionDB) Exists(ctx context.Context, userID, token string) (bool, error) {
	var one int
	err := s.conn.QueryRowContext(ctx,
		`SELECT 1 FROM sessions WHERE user_id = ? AND token = ?`,
		userID, token,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: checking session for user %s: %w", userID, err)
	}
	return true, nil
}

// Remove ends a single session (logout). Removing a token that is already
// gone is not an error — the session is ended either way.
func (s *SessionDB) Remove(ctx context.Context, userID, token string) error {
	_, err := s.conn.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_id = ? AND token = ?`,
		userID, token,
	)
	if err != nil {
		return fmt.Errorf("sqlite: removing session for user %s: %w", userID, err)
	}
	return nil
}

// RemoveAll ends every session for the user (logout-all).
func (s *SessionDB) RemoveAll(ctx context.Context, userID string) error {
	_, err := s.conn.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_id = ?`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: removing all sessions for user %s: %w", userID, err)
	}
	return nil
}
