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

var _ repository.TaskRepository = (*TaskDB)(nil)

// TaskDB implements repository.TaskRepository over the shared pool.
type TaskDB struct {
	conn *sql.DB
}

// sortColumns maps the API's sort field names to real column names.
//
// WHY A WHITELIST MAP?
// ORDER BY targets cannot be bound as ? parameters — they're part of the SQL
// text, not values. Interpolating user input there would be SQL injection,
// so the only safe interpolation is a value WE chose from this fixed map.
var sortColumns = map[string]string{
	"description": "description",
	"completed":   "completed",
	"createdAt":   "created_at",
	"updatedAt":   "updated_at",
}

// Create inserts a new task. ID and timestamps are assigned here; UserID
// must already be set by the caller (the service copies it from the
// authenticated session, never from client input).
func (r *TaskDB) Create(ctx context.Context, task *model.Task) error {
	task.ID = xid.New().String()

	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now

	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO tasks (id, description, completed, user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		task.ID,
		task.Description,
		task.Completed,
		task.UserID,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating task: %w", err)
	}

	return nil
}

// GetByID retrieves a single task, scoped to its owner.
//
// OWNERSHIP IN THE QUERY ITSELF:
// The WHERE clause matches on id AND user_id. A task that exists but belongs
// to someone else scans zero rows, exactly like a task that doesn't exist at
// all — so the caller (and ultimately the API client) cannot distinguish
// "not found" from "not yours".
func (r *TaskDB) GetByID(ctx context.Context, id, userID string) (*model.Task, error) {
	var t model.Task

	err := r.conn.QueryRowContext(ctx,
		`SELECT id, description, completed, user_id, created_at, updated_at
		 FROM tasks
		 WHERE id = ? AND user_id = ?`,
		id, userID,
	).Scan(
		&t.ID,
		&t.Description,
		&t.Completed,
		&t.UserID,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("task", id)
		}
		return nil, fmt.Errorf("sqlite: getting task %s: %w", id, err)
	}

	return &t, nil
}

// List retrieves the owner's tasks with optional filtering, sorting, and
// pagination.
//
// Absent options mean no constraint: no completed filter, creation order,
// no LIMIT. SQLite needs a LIMIT clause to accept OFFSET, so "skip without
// limit" uses LIMIT -1 (SQLite's spelling of "unbounded").
//
// The requested sort column always gets created_at as a tiebreaker, so runs
// over equal keys keep a stable, deterministic order.
func (r *TaskDB) List(ctx context.Context, userID string, opts repository.TaskListOptions) ([]model.Task, error) {
	var sb strings.Builder
	sb.WriteString(
		`SELECT id, description, completed, user_id, created_at, updated_at
		 FROM tasks
		 WHERE user_id = ?`)
	args := []any{userID}

	if opts.Completed != nil {
		sb.WriteString(` AND completed = ?`)
		args = append(args, *opts.Completed)
	}

	if col, ok := sortColumns[opts.SortField]; ok {
		dir := "ASC"
		if opts.SortDesc {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, ` ORDER BY %s %s, created_at ASC`, col, dir)
	} else {
		sb.WriteString(` ORDER BY created_at ASC`)
	}

	if opts.Limit > 0 || opts.Skip > 0 {
		limit := opts.Limit
		if limit <= 0 {
			limit = -1 // no limit, but OFFSET still applies
		}
		sb.WriteString(` LIMIT ? OFFSET ?`)
		args = append(args, limit, max(opts.Skip, 0))
	}

	rows, err := r.conn.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing tasks: %w", err)
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		var t model.Task
		if err := rows.Scan(
			&t.ID, &t.Description, &t.Completed, &t.UserID,
			&t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning task row: %w", err)
		}
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating tasks: %w", err)
	}

	return tasks, nil
}

// Update modifies a task's description/completed flag, scoped to its owner.
// The id AND user_id WHERE clause means updating someone else's task affects
// zero rows and reports NotFound, same as GetByID.
func (r *TaskDB) Update(ctx context.Context, task *model.Task) error {
	task.UpdatedAt = time.Now()

	result, err := r.conn.ExecContext(ctx,
		`UPDATE tasks
		 SET description = ?, completed = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		task.Description,
		task.Completed,
		task.UpdatedAt,
		task.ID,
		task.UserID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating task %s: %w", task.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("task", task.ID)
	}

	return nil
}

// Delete removes a task, scoped to its owner.
func (r *TaskDB) Delete(ctx context.Context, id, userID string) error {
	result, err := r.conn.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting task %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("task", id)
	}

	return nil
}
