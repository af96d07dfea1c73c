package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/auth"
	"github.com/sakif/task-manager/internal/service"
)

// UserHandler exposes the account endpoints: signup, login, session
// management, profile, avatar, and deletion.
//
// All protected handlers read the authenticated user from the request
// context — auth.RequireAuth has already validated the token, loaded the
// user, and confirmed the session is live before anything here runs.
type UserHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(users *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// HandleSignup creates an account.
//
// HTTP: POST /users
// REQUEST BODY: {"name": "...", "email": "...", "password": "...", "age": 0}
// RESPONSE: 201 {"user": {...}, "token": "..."}
func (h *UserHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var in service.SignupInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	result, err := h.users.Signup(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// HandleLogin opens a new session.
//
// HTTP: POST /users/login
// REQUEST BODY: {"email": "...", "password": "..."}
// RESPONSE: 200 {"user": {...}, "token": "..."}
//
// Bad credentials come back as 400, not 401 — 401 is reserved for requests
// that present an invalid session token.
func (h *UserHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	result, err := h.users.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleLogout ends the session the request authenticated with.
//
// HTTP: POST /users/logout
func (h *UserHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	token, _ := auth.TokenFromContext(r.Context())

	if err := h.users.Logout(r.Context(), user.ID, token); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// HandleLogoutAll ends every session for the user.
//
// HTTP: POST /users/logout-all
func (h *UserHandler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	if err := h.users.LogoutAll(r.Context(), user.ID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// HandleMe returns the authenticated user's profile.
//
// HTTP: GET /users/me
//
// The model's json tags omit the password hash, avatar, and sessions, so
// encoding the user directly IS the public view.
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, user)
}

// updatableUserFields is the closed set of keys PATCH /users/me accepts.
var updatableUserFields = map[string]bool{
	"name":     true,
	"email":    true,
	"password": true,
	"age":      true,
}

// HandleUpdateMe applies a partial profile update.
//
// HTTP: PATCH /users/me
//
// UNKNOWN-KEY REJECTION:
// The body is decoded into a map first, so a request touching any key
// outside {name, email, password, age} fails with 400 before a single field
// is applied. Decoding straight into a struct would silently drop unknown
// keys instead — the client would get a 200 for an update that didn't do
// what they asked.
func (h *UserHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	for key := range raw {
		if !updatableUserFields[key] {
			writeError(w, apperror.ValidationFailed(key, key+" is not an updatable field"))
			return
		}
	}

	var in service.UpdateInput
	if err := unmarshalField(raw, "name", &in.Name); err != nil {
		writeError(w, err)
		return
	}
	if err := unmarshalField(raw, "email", &in.Email); err != nil {
		writeError(w, err)
		return
	}
	if err := unmarshalField(raw, "password", &in.Password); err != nil {
		writeError(w, err)
		return
	}
	if err := unmarshalField(raw, "age", &in.Age); err != nil {
		writeError(w, err)
		return
	}

	updated, err := h.users.UpdateProfile(r.Context(), user, in)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// unmarshalField decodes raw[key] into *out if the key is present.
// out is a **T so absence can stay distinct from a zero value.
func unmarshalField[T any](raw map[string]json.RawMessage, key string, out **T) error {
	value, ok := raw[key]
	if !ok {
		return nil
	}
	var v T
	if err := json.Unmarshal(value, &v); err != nil {
		return apperror.ValidationFailed(key, key+" has the wrong type")
	}
	*out = &v
	return nil
}

// HandleDeleteMe deletes the account, cascading to the user's tasks, and
// echoes the deleted user's public view.
//
// HTTP: DELETE /users/me
func (h *UserHandler) HandleDeleteMe(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	if err := h.users.Delete(r.Context(), user); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleUploadAvatar accepts a multipart upload (field "avatar"), at most
// 1 MB, and stores it normalized as a 250×250 PNG.
//
// HTTP: POST /users/me/avatar
func (h *UserHandler) HandleUploadAvatar(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	// MaxBytesReader hard-stops oversized bodies at the transport level;
	// the slack covers multipart framing around the 1 MB file itself.
	r.Body = http.MaxBytesReader(w, r.Body, service.MaxAvatarBytes+4096)

	file, header, err := r.FormFile("avatar")
	if err != nil {
		writeError(w, apperror.ValidationFailed("avatar", `an "avatar" file field is required`))
		return
	}
	defer file.Close()

	if header.Size > service.MaxAvatarBytes {
		writeError(w, apperror.ValidationFailed("avatar", "avatar must be 1 MB or smaller"))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, apperror.ValidationFailed("avatar", "could not read avatar upload"))
		return
	}

	if err := h.users.UpdateAvatar(r.Context(), user.ID, data); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// HandleDeleteAvatar clears the stored avatar.
//
// HTTP: DELETE /users/me/avatar
func (h *UserHandler) HandleDeleteAvatar(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	if err := h.users.DeleteAvatar(r.Context(), user.ID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// HandleGetAvatar serves a user's avatar image. This route is public — an
// avatar is display data, not account data.
//
// HTTP: GET /users/{id}/avatar
// RESPONSE: image/png bytes, or 404 if the user or avatar doesn't exist.
func (h *UserHandler) HandleGetAvatar(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	avatar, err := h.users.GetAvatar(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	// Stored avatars are always re-encoded PNGs, so the content type is fixed.
	w.Header().Set("Content-Type", "image/png")
	w.Write(avatar)
}
