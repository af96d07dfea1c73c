package auth

import (
	"strings"
	"testing"
	"time"
)

// newTestTokenService creates a TokenService with a fixed, known secret so
// tests are deterministic.
func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := NewTokenService("short")
	if err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestGenerate_ReturnsWellFormedToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate("user-123")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if token == "" {
		t.Error("Generate() returned empty token")
	}

	// JWT tokens have 3 dot-separated parts: header.payload.signature
	if parts := strings.Count(token, "."); parts != 2 {
		t.Errorf("Generate() token doesn't look like a JWT (expected 2 dots, got %d)", parts)
	}
}

func TestGenerate_SuccessiveTokensDiffer(t *testing.T) {
	ts := newTestTokenService(t)

	// Each login mints a fresh token; two logins a second apart must not
	// collide even for the same user.
	token1, _ := ts.GenerateWithDuration("user-aaa", time.Hour)
	token2, _ := ts.GenerateWithDuration("user-aaa", 2*time.Hour)

	if token1 == token2 {
		t.Error("Generate() returned identical tokens for successive sessions")
	}
}

func TestValidate_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)
	userID := "user-abc-123"

	token, err := ts.Generate(userID)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	got, err := ts.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got != userID {
		t.Errorf("Validate() userID = %q, want %q", got, userID)
	}
}

func TestValidate_ExpiredToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.GenerateWithDuration("user-123", -1*time.Second)
	if err != nil {
		t.Fatalf("GenerateWithDuration() error = %v", err)
	}

	_, err = ts.Validate(token)
	if err == nil {
		t.Fatal("Validate() should return an error for an expired token")
	}
}

func TestValidate_TamperedToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, _ := ts.Generate("user-123")
	tampered := token[:len(token)-3] + "xxx"

	_, err := ts.Validate(tampered)
	if err == nil {
		t.Fatal("Validate() should return an error for a tampered token")
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	ts1, _ := NewTokenService("correct-secret-32-chars-long!!!!")
	ts2, _ := NewTokenService("wrong-secret-32-chars-long!!!!!!")

	token, _ := ts1.Generate("user-123")

	_, err := ts2.Validate(token)
	if err == nil {
		t.Fatal("Validate() should fail when using a different secret")
	}
}

func TestValidate_GarbageInput(t *testing.T) {
	ts := newTestTokenService(t)

	for _, input := range []string{"", "not.a.jwt", "not.a.jwt.token"} {
		if _, err := ts.Validate(input); err == nil {
			t.Errorf("Validate(%q) should return an error", input)
		}
	}
}
