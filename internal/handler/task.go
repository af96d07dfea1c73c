package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/auth"
	"github.com/sakif/task-manager/internal/service"
)

// TaskHandler manages CRUD operations for tasks. Every route here sits
// behind auth.RequireAuth, and every service call carries the session
// user's ID — a handler cannot reach another user's tasks even by bug,
// because the repository queries are owner-scoped.
type TaskHandler struct {
	tasks  *service.TaskService
	logger *slog.Logger
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(tasks *service.TaskService, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, logger: logger}
}

// HandleCreate saves a new task for the authenticated user.
//
// HTTP: POST /tasks
// REQUEST BODY: {"description": "...", "completed": false}
//
// Any owner field in the payload is ignored — the owner is always the
// session user.
func (h *TaskHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	var in struct {
		Description string `json:"description"`
		Completed   bool   `json:"completed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	task, err := h.tasks.Create(r.Context(), user.ID, in.Description, in.Completed)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, task)
}

// HandleList returns the authenticated user's tasks.
//
// HTTP: GET /tasks?completed=true&sortBy=createdAt:desc&limit=10&skip=20
//
// Every parameter is optional; an absent parameter applies no constraint.
// The response is always a JSON array, possibly empty — never null.
func (h *TaskHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	q := r.URL.Query()
	opts, err := service.ParseListOptions(
		q.Get("completed"),
		q.Get("sortBy"),
		q.Get("limit"),
		q.Get("skip"),
	)
	if err != nil {
		writeError(w, err)
		return
	}

	tasks, err := h.tasks.List(r.Context(), user.ID, opts)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tasks)
}

// HandleGetByID fetches a single owned task.
//
// HTTP: GET /tasks/{id}
//
// A task that exists under a different owner responds 404, same as a task
// that doesn't exist at all.
func (h *TaskHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	id := r.PathValue("id")

	task, err := h.tasks.Get(r.Context(), id, user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, task)
}

// updatableTaskFields is the closed set of keys PATCH /tasks/{id} accepts.
var updatableTaskFields = map[string]bool{
	"description": true,
	"completed":   true,
}

// HandleUpdate applies a partial update to an owned task.
//
// HTTP: PATCH /tasks/{id}
//
// Unknown keys are rejected up front, the same way PATCH /users/me does it.
func (h *TaskHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	id := r.PathValue("id")

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	for key := range raw {
		if !updatableTaskFields[key] {
			writeError(w, apperror.ValidationFailed(key, key+" is not an updatable field"))
			return
		}
	}

	var in service.TaskUpdateInput
	if err := unmarshalField(raw, "description", &in.Description); err != nil {
		writeError(w, err)
		return
	}
	if err := unmarshalField(raw, "completed", &in.Completed); err != nil {
		writeError(w, err)
		return
	}

	task, err := h.tasks.Update(r.Context(), id, user.ID, in)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, task)
}

// HandleDelete removes an owned task and echoes the deleted record.
//
// HTTP: DELETE /tasks/{id}
func (h *TaskHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	id := r.PathValue("id")

	task, err := h.tasks.Delete(r.Context(), id, user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, task)
}
