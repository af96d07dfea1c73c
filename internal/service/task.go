package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/model"
	"github.com/sakif/task-manager/internal/repository"
)

// TaskService handles business logic for tasks. Every operation takes the
// owner's user ID from the authenticated session — never from the payload —
// and passes it down to the owner-scoped repository queries.
type TaskService struct {
	repo   repository.TaskRepository
	logger *slog.Logger
}

// NewTaskService creates a TaskService.
func NewTaskService(repo repository.TaskRepository, logger *slog.Logger) *TaskService {
	return &TaskService{
		repo:   repo,
		logger: logger,
	}
}

// Create validates and saves a new task for the given owner.
//
// Whatever the client may have sent for an owner field is irrelevant by the
// time we get here: the handler passes the session user's ID, and that is
// the only owner a task can ever have.
func (s *TaskService) Create(ctx context.Context, userID, description string, completed bool) (*model.Task, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, apperror.ValidationFailed("description", "description is required")
	}

	task := &model.Task{
		Description: description,
		Completed:   completed,
		UserID:      userID,
	}
	if err := s.repo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("service/task: creating task: %w", err)
	}

	s.logger.Info("task created",
		slog.String("taskID", task.ID),
		slog.String("userID", userID),
	)

	return task, nil
}

// ParseListOptions converts the raw /tasks query parameters into repository
// options. Empty strings mean the parameter was absent — no constraint.
//
// Accepted forms:
//
//	completed=true|false
//	sortBy=<field>:<asc|desc>  over description, completed, createdAt, updatedAt
//	limit=N, skip=N            non-negative integers, no upper bound
//
// Anything else is a validation error, not a silent default.
func ParseListOptions(completed, sortBy, limit, skip string) (repository.TaskListOptions, error) {
	var opts repository.TaskListOptions

	if completed != "" {
		switch completed {
		case "true":
			v := true
			opts.Completed = &v
		case "false":
			v := false
			opts.Completed = &v
		default:
			return opts, apperror.ValidationFailed("completed", `completed must be "true" or "false"`)
		}
	}

	if sortBy != "" {
		field, dir, found := strings.Cut(sortBy, ":")
		if !found {
			return opts, apperror.ValidationFailed("sortBy", "sortBy must have the form field:direction")
		}
		switch field {
		case "description", "completed", "createdAt", "updatedAt":
			opts.SortField = field
		default:
			return opts, apperror.ValidationFailed("sortBy", fmt.Sprintf("cannot sort by %q", field))
		}
		switch dir {
		case "asc":
			opts.SortDesc = false
		case "desc":
			opts.SortDesc = true
		default:
			return opts, apperror.ValidationFailed("sortBy", `sort direction must be "asc" or "desc"`)
		}
	}

	var err error
	if opts.Limit, err = parseNonNegative("limit", limit); err != nil {
		return opts, err
	}
	if opts.Skip, err = parseNonNegative("skip", skip); err != nil {
		return opts, err
	}

	return opts, nil
}

func parseNonNegative(name, value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, apperror.ValidationFailed(name, name+" must be a non-negative integer")
	}
	return n, nil
}

// List returns the owner's tasks narrowed by the given options.
func (s *TaskService) List(ctx context.Context, userID string, opts repository.TaskListOptions) ([]model.Task, error) {
	tasks, err := s.repo.List(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("service/task: listing tasks for %s: %w", userID, err)
	}
	return tasks, nil
}

// Get fetches one task, owner-scoped. A task under another owner comes back
// as NotFound — ownership is never disclosed.
func (s *TaskService) Get(ctx context.Context, id, userID string) (*model.Task, error) {
	task, err := s.repo.GetByID(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("service/task: getting task %s: %w", id, err)
	}
	return task, nil
}

// TaskUpdateInput carries a partial task update. Nil = field absent.
type TaskUpdateInput struct {
	Description *string
	Completed   *bool
}

// Update applies a partial update to an owned task. The task is fetched
// owner-scoped first, so an unowned ID fails with NotFound before any
// validation detail leaks.
func (s *TaskService) Update(ctx context.Context, id, userID string, in TaskUpdateInput) (*model.Task, error) {
	task, err := s.repo.GetByID(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("service/task: getting task %s: %w", id, err)
	}

	if in.Description != nil {
		description := strings.TrimSpace(*in.Description)
		if description == "" {
			return nil, apperror.ValidationFailed("description", "description is required")
		}
		task.Description = description
	}
	if in.Completed != nil {
		task.Completed = *in.Completed
	}

	if err := s.repo.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("service/task: updating task %s: %w", id, err)
	}

	return task, nil
}

// Delete removes an owned task and returns it, so the handler can echo the
// deleted record.
func (s *TaskService) Delete(ctx context.Context, id, userID string) (*model.Task, error) {
	task, err := s.repo.GetByID(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("service/task: getting task %s: %w", id, err)
	}

	if err := s.repo.Delete(ctx, id, userID); err != nil {
		return nil, fmt.Errorf("service/task: deleting task %s: %w", id, err)
	}

	s.logger.Info("task deleted",
		slog.String("taskID", id),
		slog.String("userID", userID),
	)

	return task, nil
}
