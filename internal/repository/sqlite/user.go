package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/model"
	"github.com/sakif/task-manager/internal/repository"
)

// COMPILE-TIME INTERFACE CHECK:
// `var _ X = (*Y)(nil)` verifies at compile time that *Y implements X.
// Without this, a missing method would only surface at the call site that
// passes *UserDB where the interface is expected — which could be much later.
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB implements repository.UserRepository over the shared pool.
type UserDB struct {
	conn *sql.DB
}

// Create inserts a new user.
//
// The caller provides Name, Email, Age, and PasswordHash; ID and timestamps
// are assigned here (pointer receiver — the caller's struct gets the
// generated values back).
//
// The UNIQUE constraint on email is our uniqueness invariant: a duplicate
// signup fails the INSERT itself, and we translate that constraint error
// into a domain-level Conflict so the handler can answer 409.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := u.conn.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, age, avatar, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Age,
		user.Avatar,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", fmt.Sprintf("email %s is already registered", user.Email))
		}
		return fmt.Errorf("sqlite: creating user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by their internal ID, avatar included.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (u *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	return u.getUser(ctx, `WHERE id = ?`, id)
}

// GetByEmail retrieves a user by their (normalized) email address.
// Login uses this — email is the login identifier.
func (u *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return u.getUser(ctx, `WHERE email = ?`, email)
}

func (u *UserDB) getUser(ctx context.Context, where string, arg any) (*model.User, error) {
	var user model.User

	err := u.conn.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, age, avatar, created_at, updated_at
		 FROM users `+where,
		arg,
	).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Age,
		&user.Avatar,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", fmt.Sprint(arg))
		}
		return nil, fmt.Errorf("sqlite: getting user %v: %w", arg, err)
	}

	return &user, nil
}

// Update persists profile changes (name, email, password hash, age).
// The avatar blob has its own method; ID and created_at are immutable.
//
// Last write wins: there is no optimistic-concurrency check, so two
// concurrent profile updates race and the later COMMIT sticks.
func (u *UserDB) Update(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now()

	result, err := u.conn.ExecContext(ctx,
		`UPDATE users
		 SET name = ?, email = ?, password_hash = ?, age = ?, updated_at = ?
		 WHERE id = ?`,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Age,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", fmt.Sprintf("email %s is already registered", user.Email))
		}
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", user.ID)
	}

	return nil
}

// Delete removes a user. The ON DELETE CASCADE constraints take the user's
// sessions and tasks with them in the same statement — this is the cascade
// the account-deletion endpoint relies on.
func (u *UserDB) Delete(ctx context.Context, id string) error {
	result, err := u.conn.ExecContext(ctx,
		`DELETE FROM users WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", id)
	}

	return nil
}

// SetAvatar stores (or, with nil, clears) the avatar blob for a user.
func (u *UserDB) SetAvatar(ctx context.Context, id string, avatar []byte) error {
	result, err := u.conn.ExecContext(ctx,
		`UPDATE users SET avatar = ?, updated_at = ? WHERE id = ?`,
		avatar, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting avatar for user %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", id)
	}

	return nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint
// failure. modernc.org/sqlite doesn't export a typed error for this, so we
// match the canonical message text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
