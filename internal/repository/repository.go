// Package repository defines the persistence interfaces the rest of the
// application programs against. The sqlite subpackage provides the concrete
// implementation; services and middleware only ever see these interfaces,
// which is what lets tests swap in in-memory fakes.
package repository

import (
	"context"

	"github.com/sakif/task-manager/internal/model"
)

// TaskListOptions narrows a task listing. The zero value means "no
// constraint": all of the owner's tasks, in creation order, unbounded.
type TaskListOptions struct {
	Completed *bool  // nil = no completed filter
	SortField string // one of description, completed, createdAt, updatedAt; "" = creation order
	SortDesc  bool
	Limit     int // <= 0 = no limit
	Skip      int // <= 0 = no offset
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, id string) error
	SetAvatar(ctx context.Context, id string, avatar []byte) error
}

// SessionRepository tracks the currently-valid tokens for each user.
// A token is a live session only while a row for it exists here —
// removing the row is how logout revokes a signed token.
type SessionRepository interface {
	Add(ctx context.Context, userID, token string) error
	Exists(ctx context.Context, userID, token string) (bool, error)
	Remove(ctx context.Context, userID, token string) error
	RemoveAll(ctx context.Context, userID string) error
}

// TaskRepository is owner-scoped by construction: every lookup takes the
// owner's user ID and folds it into the query, so "not found" and "not
// yours" are indistinguishable to callers.
type TaskRepository interface {
	Create(ctx context.Context, task *model.Task) error
	GetByID(ctx context.Context, id, userID string) (*model.Task, error)
	List(ctx context.Context, userID string, opts TaskListOptions) ([]model.Task, error)
	Update(ctx context.Context, task *model.Task) error
	Delete(ctx context.Context, id, userID string) error
}
