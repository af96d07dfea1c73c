package model

import "time"

// Task is a single to-do item belonging to exactly one user.
//
// UserID is set from the authenticated session when the task is created and
// never changes afterwards — a task cannot be handed to another user.
// Every query that touches tasks filters on user_id, so a task is invisible
// to everyone but its owner.
type Task struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	UserID      string    `json:"owner"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
