package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/task-manager/internal/config"
	"github.com/sakif/task-manager/internal/mailer"
)

// recordingMailer stands in for SendGrid and captures every delivery.
type recordingMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (m *recordingMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) messages() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message(nil), m.sent...)
}

// newTestServer wires the real stack — router, middleware, services, an
// in-memory SQLite database — with the mail transport faked out.
func newTestServer(t *testing.T) (*Server, *recordingMailer) {
	t.Helper()

	cfg := config.Config{
		DBPath:    ":memory:",
		JWTSecret: "integration-test-secret-key",
	}
	mailbox := &recordingMailer{}

	s, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), mailbox)
	require.NoError(t, err)
	t.Cleanup(func() {
		s.mail.Wait()
		s.db.Close()
	})
	return s, mailbox
}

// do runs one request through the full router and returns the recorder.
func do(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out),
		"body was: %s", rec.Body.String())
}

type authResponse struct {
	User  map[string]any `json:"user"`
	Token string         `json:"token"`
}

// signup creates an account through the API and returns the response.
func signup(t *testing.T, s *Server, name, email, password string) authResponse {
	t.Helper()

	rec := do(t, s, http.MethodPost, "/users", "", map[string]any{
		"name":     name,
		"email":    email,
		"password": password,
		"age":      27,
	})
	require.Equal(t, http.StatusCreated, rec.Code, "signup failed: %s", rec.Body.String())

	var res authResponse
	decodeBody(t, rec, &res)
	return res
}

// ---------------------------------------------------------------------------
// accounts

func TestSignupEndpoint(t *testing.T) {
	s, mailbox := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/users", "", map[string]any{
		"name":     "Andrew",
		"email":    "alina@test.com",
		"password": "MyPass777!",
		"age":      27,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var res authResponse
	decodeBody(t, rec, &res)
	assert.Equal(t, "alina@test.com", res.User["email"])
	assert.Equal(t, "Andrew", res.User["name"])
	assert.NotEmpty(t, res.Token)

	// The password never appears in a response, hashed or otherwise.
	assert.NotContains(t, rec.Body.String(), "MyPass777!")
	assert.NotContains(t, res.User, "password")
	assert.NotContains(t, res.User, "passwordHash")

	s.mail.Wait()
	msgs := mailbox.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Thanks for joining in!", msgs[0].Subject)
	assert.Equal(t, "alina@test.com", msgs[0].To)
}

func TestSignupEndpoint_Invalid(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"bad email", map[string]any{"name": "A", "email": "nope", "password": "MyPass777!"}},
		{"short password", map[string]any{"name": "A", "email": "a@test.com", "password": "short"}},
		{"password contains password", map[string]any{"name": "A", "email": "a@test.com", "password": "Password123"}},
		{"negative age", map[string]any{"name": "A", "email": "a@test.com", "password": "MyPass777!", "age": -5}},
		{"missing name", map[string]any{"email": "a@test.com", "password": "MyPass777!"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/users", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var errRes map[string]any
			decodeBody(t, rec, &errRes)
			assert.Equal(t, "validation_error", errRes["error"])
		})
	}
}

func TestSignupEndpoint_DuplicateEmail(t *testing.T) {
	s, _ := newTestServer(t)
	signup(t, s, "Andrew", "alina@test.com", "MyPass777!")

	rec := do(t, s, http.MethodPost, "/users", "", map[string]any{
		"name":     "Impostor",
		"email":    "alina@test.com",
		"password": "Another99!",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLoginEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	signup(t, s, "Andrew", "alina@test.com", "MyPass777!")

	rec := do(t, s, http.MethodPost, "/users/login", "", map[string]any{
		"email":    "alina@test.com",
		"password": "MyPass777!",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var res authResponse
	decodeBody(t, rec, &res)
	assert.NotEmpty(t, res.Token)

	// Wrong password and unknown account both come back as 400.
	rec = do(t, s, http.MethodPost, "/users/login", "", map[string]any{
		"email":    "alina@test.com",
		"password": "WrongPass1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/users/login", "", map[string]any{
		"email":    "nobody@test.com",
		"password": "MyPass777!",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	s, _ := newTestServer(t)

	protected := []struct {
		method, path string
	}{
		{http.MethodGet, "/users/me"},
		{http.MethodPatch, "/users/me"},
		{http.MethodDelete, "/users/me"},
		{http.MethodPost, "/users/logout"},
		{http.MethodPost, "/users/logout-all"},
		{http.MethodPost, "/tasks"},
		{http.MethodGet, "/tasks"},
		{http.MethodGet, "/tasks/some-id"},
	}

	for _, route := range protected {
		rec := do(t, s, route.method, route.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code,
			"%s %s should require auth", route.method, route.path)
	}

	// Garbage tokens are rejected the same way.
	rec := do(t, s, http.MethodGet, "/users/me", "not-a-real-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfileUpdate(t *testing.T) {
	s, _ := newTestServer(t)
	res := signup(t, s, "Andrew", "alina@test.com", "MyPass777!")

	rec := do(t, s, http.MethodPatch, "/users/me", res.Token, map[string]any{
		"name": "Alina W",
		"age":  28,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var user map[string]any
	decodeBody(t, rec, &user)
	assert.Equal(t, "Alina W", user["name"])
	assert.Equal(t, float64(28), user["age"])

	// Unknown keys are rejected before anything is applied.
	rec = do(t, s, http.MethodPatch, "/users/me", res.Token, map[string]any{
		"name":     "Should Not Stick",
		"location": "nowhere",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/users/me", res.Token, nil)
	decodeBody(t, rec, &user)
	assert.Equal(t, "Alina W", user["name"], "rejected update must not partially apply")
}

func TestLogoutRevokesToken(t *testing.T) {
	s, _ := newTestServer(t)
	res := signup(t, s, "Andrew", "alina@test.com", "MyPass777!")

	rec := do(t, s, http.MethodPost, "/users/logout", res.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Same token, now revoked.
	rec = do(t, s, http.MethodGet, "/users/me", res.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	s, _ := newTestServer(t)
	first := signup(t, s, "Andrew", "alina@test.com", "MyPass777!")

	rec := do(t, s, http.MethodPost, "/users/login", "", map[string]any{
		"email":    "alina@test.com",
		"password": "MyPass777!",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var second authResponse
	decodeBody(t, rec, &second)

	rec = do(t, s, http.MethodPost, "/users/logout-all", second.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	for _, token := range []string{first.Token, second.Token} {
		rec = do(t, s, http.MethodGet, "/users/me", token, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestDeleteAccount(t *testing.T) {
	s, mailbox := newTestServer(t)
	res := signup(t, s, "Andrew", "alina@test.com", "MyPass777!")

	rec := do(t, s, http.MethodDelete, "/users/me", res.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The account and its sessions are gone.
	rec = do(t, s, http.MethodGet, "/users/me", res.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s, http.MethodPost, "/users/login", "", map[string]any{
		"email":    "alina@test.com",
		"password": "MyPass777!",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.mail.Wait()
	msgs := mailbox.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Sorry to see you go!", msgs[1].Subject)
}

// ---------------------------------------------------------------------------
// tasks

func createTask(t *testing.T, s *Server, token, description string, completed bool) map[string]any {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/tasks", token, map[string]any{
		"description": description,
		"completed":   completed,
	})
	require.Equal(t, http.StatusCreated, rec.Code, "create task failed: %s", rec.Body.String())

	var task map[string]any
	decodeBody(t, rec, &task)
	return task
}

func TestTaskLifecycle(t *testing.T) {
	s, _ := newTestServer(t)
	res := signup(t, s, "Andrew", "alina@test.com", "MyPass777!")

	task := createTask(t, s, res.Token, "First task", false)
	assert.Equal(t, "First task", task["description"])
	assert.Equal(t, false, task["completed"])
	assert.Equal(t, res.User["id"], task["owner"])

	id := task["id"].(string)

	// Fetch it back.
	rec := do(t, s, http.MethodGet, "/tasks/"+id, res.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Complete it.
	rec = do(t, s, http.MethodPatch, "/tasks/"+id, res.Token, map[string]any{
		"completed": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &task)
	assert.Equal(t, true, task["completed"])

	// Unknown PATCH keys are a 400.
	rec = do(t, s, http.MethodPatch, "/tasks/"+id, res.Token, map[string]any{
		"priority": "high",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Delete echoes the record, then it's gone.
	rec = do(t, s, http.MethodDelete, "/tasks/"+id, res.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &task)
	assert.Equal(t, id, task["id"])

	rec = do(t, s, http.MethodGet, "/tasks/"+id, res.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTaskCreate_EmptyDescription(t *testing.T) {
	s, _ := newTestServer(t)
	res := signup(t, s, "Andrew", "alina@test.com", "MyPass777!")

	rec := do(t, s, http.MethodPost, "/tasks", res.Token, map[string]any{
		"description": "   ",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTaskIsolationBetweenUsers(t *testing.T) {
	s, _ := newTestServer(t)
	owner := signup(t, s, "Andrew", "andrew@test.com", "MyPass777!")
	other := signup(t, s, "Alina", "alina@test.com", "OtherPass8!")

	task := createTask(t, s, owner.Token, "private task", false)
	id := task["id"].(string)

	// Another user's requests against the task all come back 404 — never
	// 401 or 403, which would confirm the task exists.
	rec := do(t, s, http.MethodGet, "/tasks/"+id, other.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPatch, "/tasks/"+id, other.Token, map[string]any{"completed": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodDelete, "/tasks/"+id, other.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// And their own list doesn't include it.
	rec = do(t, s, http.MethodGet, "/tasks", other.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tasks []map[string]any
	decodeBody(t, rec, &tasks)
	assert.Empty(t, tasks)

	// The task survived all of it.
	rec = do(t, s, http.MethodGet, "/tasks/"+id, owner.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func listTasks(t *testing.T, s *Server, token, query string) []map[string]any {
	t.Helper()
	rec := do(t, s, http.MethodGet, "/tasks"+query, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, "list failed: %s", rec.Body.String())

	var tasks []map[string]any
	decodeBody(t, rec, &tasks)
	return tasks
}

func descriptions(tasks []map[string]any) []string {
	out := make([]string, len(tasks))
	for i, task := range tasks {
		out[i] = task["description"].(string)
	}
	return out
}

func TestTaskListQueries(t *testing.T) {
	s, _ := newTestServer(t)
	res := signup(t, s, "Andrew", "alina@test.com", "MyPass777!")

	createTask(t, s, res.Token, "First task", false)
	createTask(t, s, res.Token, "Second task", true)

	// No query: everything, in creation order.
	tasks := listTasks(t, s, res.Token, "")
	assert.Equal(t, []string{"First task", "Second task"}, descriptions(tasks))

	// completed filter.
	tasks = listTasks(t, s, res.Token, "?completed=true")
	require.Len(t, tasks, 1)
	assert.Equal(t, "Second task", tasks[0]["description"])

	tasks = listTasks(t, s, res.Token, "?completed=false")
	require.Len(t, tasks, 1)
	assert.Equal(t, "First task", tasks[0]["description"])

	// Sorting by completion, both directions.
	tasks = listTasks(t, s, res.Token, "?sortBy=completed:asc")
	assert.Equal(t, []string{"First task", "Second task"}, descriptions(tasks))

	tasks = listTasks(t, s, res.Token, "?sortBy=completed:desc")
	assert.Equal(t, []string{"Second task", "First task"}, descriptions(tasks))

	// Pagination: limit=1&skip=1 returns exactly the second task.
	tasks = listTasks(t, s, res.Token, "?limit=1&skip=1")
	require.Len(t, tasks, 1)
	assert.Equal(t, "Second task", tasks[0]["description"])
	assert.Equal(t, true, tasks[0]["completed"])

	// Malformed queries are a 400, not a silent default.
	for _, q := range []string{"?completed=maybe", "?sortBy=completed", "?sortBy=owner:asc", "?limit=-1", "?skip=x"} {
		rec := do(t, s, http.MethodGet, "/tasks"+q, res.Token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "query %q should be rejected", q)
	}
}

// ---------------------------------------------------------------------------
// avatars

// pngUpload builds a multipart body with a small PNG under the "avatar" field.
func pngUpload(t *testing.T, field string) (*bytes.Buffer, string) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	var pngBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, img))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, "avatar.png")
	require.NoError(t, err)
	_, err = part.Write(pngBuf.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	return &body, mw.FormDataContentType()
}

func TestAvatarUploadAndFetch(t *testing.T) {
	s, _ := newTestServer(t)
	res := signup(t, s, "Andrew", "alina@test.com", "MyPass777!")
	userID := res.User["id"].(string)

	body, contentType := pngUpload(t, "avatar")
	req := httptest.NewRequest(http.MethodPost, "/users/me/avatar", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+res.Token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, "upload failed: %s", rec.Body.String())

	// The avatar is publicly readable, normalized to a 250×250 PNG.
	rec = do(t, s, http.MethodGet, fmt.Sprintf("/users/%s/avatar", userID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 250, img.Bounds().Dx())
	assert.Equal(t, 250, img.Bounds().Dy())

	// Deleting it makes the public route 404 again.
	rec = do(t, s, http.MethodDelete, "/users/me/avatar", res.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, fmt.Sprintf("/users/%s/avatar", userID), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAvatarUpload_Invalid(t *testing.T) {
	s, _ := newTestServer(t)
	res := signup(t, s, "Andrew", "alina@test.com", "MyPass777!")

	// Wrong field name.
	body, contentType := pngUpload(t, "file")
	req := httptest.NewRequest(http.MethodPost, "/users/me/avatar", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+res.Token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Not an image.
	var junk bytes.Buffer
	mw := multipart.NewWriter(&junk)
	part, err := mw.CreateFormFile("avatar", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("just some text"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req = httptest.NewRequest(http.MethodPost, "/users/me/avatar", &junk)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+res.Token)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Nobody home.
	rec = do(t, s, http.MethodGet, "/users/no-such-user/avatar", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
