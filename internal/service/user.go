// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Handlers only know about HTTP. Services only know about business rules.
// Neither knows about SQL. Services receive repository INTERFACES, not the
// concrete sqlite type, so tests swap in in-memory fakes with no database.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/auth"
	"github.com/sakif/task-manager/internal/mailer"
	"github.com/sakif/task-manager/internal/model"
	"github.com/sakif/task-manager/internal/repository"
)

const (
	MaxNameLength     = 200
	MinPasswordLength = 7
	MaxPasswordLength = 72 // bcrypt input ceiling

	// MaxAvatarBytes is the upload size ceiling for avatar images.
	MaxAvatarBytes = 1 << 20 // 1 MB

	// avatarSize is the edge length avatars are normalized to. Whatever the
	// client uploads, what we store (and serve) is a square PNG.
	avatarSize = 250
)

// UserService handles account business logic: signup, login, sessions,
// profile updates, avatars, and deletion.
type UserService struct {
	users     repository.UserRepository
	sessions  repository.SessionRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	mail      *mailer.Dispatcher
	logger    *slog.Logger
}

// NewUserService creates a UserService with all required dependencies.
// Call this in server.go when wiring the dependency graph.
func NewUserService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	mail *mailer.Dispatcher,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:     users,
		sessions:  sessions,
		tokens:    tokens,
		passwords: passwords,
		mail:      mail,
		logger:    logger,
	}
}

// AuthResult bundles the user record and the freshly issued session token,
// so the handler can build the {user, token} response in one step.
type AuthResult struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// SignupInput is the payload for account creation.
type SignupInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Age      int    `json:"age"`
}

// Validate checks the signup payload field by field.
//
// DECLARATIVE VALIDATION:
// ozzo-validation expresses rules as data (Required, Length, is.Email, ...)
// instead of hand-rolled if-chains, and reports per-field errors. We pick
// the first failing field and surface it as a ValidationFailed domain error.
func (in SignupInput) Validate() error {
	return firstFieldError(validation.Errors{
		"name":     validation.Validate(in.Name, validation.Required, validation.Length(1, MaxNameLength)),
		"email":    validation.Validate(in.Email, validation.Required, is.Email),
		"age":      validation.Validate(in.Age, validation.Min(0)),
		"password": validatePassword(in.Password),
	})
}

// validatePassword enforces the password policy: length bounds, and the
// plaintext must not contain the word "password" in any casing.
func validatePassword(pw string) error {
	return validation.Validate(pw,
		validation.Required,
		validation.Length(MinPasswordLength, MaxPasswordLength),
		validation.By(func(value any) error {
			s, _ := value.(string)
			if strings.Contains(strings.ToLower(s), "password") {
				return errors.New(`must not contain "password"`)
			}
			return nil
		}),
	)
}

// firstFieldError converts an ozzo error map into a single domain
// validation error. Fields are visited in sorted order so the reported
// field is deterministic.
func firstFieldError(errs validation.Errors) error {
	filtered := errs.Filter()
	if filtered == nil {
		return nil
	}
	errs = filtered.(validation.Errors)
	fields := make([]string, 0, len(errs))
	for field := range errs {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	field := fields[0]
	return apperror.ValidationFailed(field, fmt.Sprintf("%s %s", field, errs[field]))
}

// Signup creates an account: validate, hash the password, persist the user,
// mint the first session token, and fire off the welcome email.
//
// The email is dispatched fire-and-forget — if SendGrid is down, the signup
// still succeeds. A duplicate email surfaces as a Conflict from the
// repository's UNIQUE constraint.
func (s *UserService) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)

	if err := in.Validate(); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/user: hashing password: %w", err)
	}

	user := &model.User{
		Name:         in.Name,
		Email:        in.Email,
		Age:          in.Age,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/user: creating user: %w", err)
	}

	token, err := s.issueToken(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user signed up",
		slog.String("userID", user.ID),
		slog.String("email", user.Email),
	)
	s.mail.SendWelcome(user.Email, user.Name)

	return &AuthResult{User: user, Token: token}, nil
}

// Login verifies credentials and opens a new session.
//
// Unknown email and wrong password both return the same generic validation
// error (mapped to 400, matching the system's historical convention — see
// DESIGN.md) so an attacker can't probe which emails are registered.
func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, errInvalidCredentials()
		}
		return nil, fmt.Errorf("service/user: looking up %s: %w", email, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, errInvalidCredentials()
	}

	token, err := s.issueToken(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))

	return &AuthResult{User: user, Token: token}, nil
}

func errInvalidCredentials() error {
	return apperror.ValidationFailed("credentials", "unable to login")
}

// issueToken mints a session token and records it as live. Each login gets
// its own row, so concurrent logins never clobber each other.
func (s *UserService) issueToken(ctx context.Context, userID string) (string, error) {
	token, err := s.tokens.Generate(userID)
	if err != nil {
		return "", fmt.Errorf("service/user: generating token for %s: %w", userID, err)
	}
	if err := s.sessions.Add(ctx, userID, token); err != nil {
		return "", fmt.Errorf("service/user: storing session for %s: %w", userID, err)
	}
	return token, nil
}

// Logout ends the single session the request authenticated with. Other
// devices stay logged in.
func (s *UserService) Logout(ctx context.Context, userID, token string) error {
	if err := s.sessions.Remove(ctx, userID, token); err != nil {
		return fmt.Errorf("service/user: logout for %s: %w", userID, err)
	}
	return nil
}

// LogoutAll ends every session for the user.
func (s *UserService) LogoutAll(ctx context.Context, userID string) error {
	if err := s.sessions.RemoveAll(ctx, userID); err != nil {
		return fmt.Errorf("service/user: logout-all for %s: %w", userID, err)
	}
	return nil
}

// UpdateInput carries a partial profile update. Nil pointer = field not
// present in the request; only present fields are validated and applied.
// The handler has already rejected any key outside this set.
type UpdateInput struct {
	Name     *string
	Email    *string
	Password *string
	Age      *int
}

// UpdateProfile applies a partial update to the given user and persists it.
// A changed password is re-hashed; the stored digest never lags the
// plaintext. Returns the updated user.
func (s *UserService) UpdateProfile(ctx context.Context, user *model.User, in UpdateInput) (*model.User, error) {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if err := firstFieldError(validation.Errors{
			"name": validation.Validate(name, validation.Required, validation.Length(1, MaxNameLength)),
		}); err != nil {
			return nil, err
		}
		user.Name = name
	}

	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		if err := firstFieldError(validation.Errors{
			"email": validation.Validate(email, validation.Required, is.Email),
		}); err != nil {
			return nil, err
		}
		user.Email = email
	}

	if in.Age != nil {
		if err := firstFieldError(validation.Errors{
			"age": validation.Validate(*in.Age, validation.Min(0)),
		}); err != nil {
			return nil, err
		}
		user.Age = *in.Age
	}

	if in.Password != nil {
		if err := firstFieldError(validation.Errors{
			"password": validatePassword(*in.Password),
		}); err != nil {
			return nil, err
		}
		hash, err := s.passwords.Hash(*in.Password)
		if err != nil {
			return nil, fmt.Errorf("service/user: re-hashing password: %w", err)
		}
		user.PasswordHash = hash
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("service/user: updating %s: %w", user.ID, err)
	}

	s.logger.Info("profile updated", slog.String("userID", user.ID))

	return user, nil
}

// Delete removes the account. Tasks and sessions go with it (the store
// cascades on the owner row), then the farewell email is dispatched
// best-effort.
func (s *UserService) Delete(ctx context.Context, user *model.User) error {
	if err := s.users.Delete(ctx, user.ID); err != nil {
		return fmt.Errorf("service/user: deleting %s: %w", user.ID, err)
	}

	s.logger.Info("account deleted", slog.String("userID", user.ID))
	s.mail.SendFarewell(user.Email, user.Name)

	return nil
}

// UpdateAvatar decodes an uploaded image, normalizes it to a 250×250 PNG,
// and stores the blob on the user record. Anything that doesn't decode as
// an image is a validation error, not a server error.
func (s *UserService) UpdateAvatar(ctx context.Context, userID string, data []byte) error {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return apperror.ValidationFailed("avatar", "avatar must be a valid image")
	}

	// Fill crops to the center and scales, so non-square uploads come out
	// square without distortion.
	img = imaging.Fill(img, avatarSize, avatarSize, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return fmt.Errorf("service/user: encoding avatar: %w", err)
	}

	if err := s.users.SetAvatar(ctx, userID, buf.Bytes()); err != nil {
		return fmt.Errorf("service/user: storing avatar for %s: %w", userID, err)
	}

	return nil
}

// DeleteAvatar clears the stored avatar blob.
func (s *UserService) DeleteAvatar(ctx context.Context, userID string) error {
	if err := s.users.SetAvatar(ctx, userID, nil); err != nil {
		return fmt.Errorf("service/user: clearing avatar for %s: %w", userID, err)
	}
	return nil
}

// GetAvatar returns the stored avatar PNG for any user — this backs the one
// public, unauthenticated read in the API. Absent user and absent avatar
// are both NotFound.
func (s *UserService) GetAvatar(ctx context.Context, userID string) ([]byte, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/user: fetching %s: %w", userID, err)
	}
	if !user.HasAvatar() {
		return nil, apperror.NotFound("avatar", userID)
	}
	return user.Avatar, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
