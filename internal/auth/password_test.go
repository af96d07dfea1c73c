package auth

import (
	"strings"
	"testing"
)

// newTestPasswordService returns a PasswordService with bcrypt cost 4 —
// the minimum the library allows. This makes tests run in milliseconds
// instead of ~250ms each.
func newTestPasswordService() *PasswordService {
	return NewPasswordServiceForTest(4)
}

func TestHash_ReturnsNonEmptyHash(t *testing.T) {
	ps := newTestPasswordService()

	hash, err := ps.Hash("my-secret-phrase")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if hash == "" {
		t.Error("Hash() returned empty string")
	}
}

func TestHash_OutputLooksBcrypt(t *testing.T) {
	ps := newTestPasswordService()

	hash, err := ps.Hash("MyPass777!")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	// bcrypt hashes always start with $2a$ or $2b$
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("Hash() does not look like a bcrypt hash: %q", hash)
	}
}

func TestHash_NeverEqualsPlaintext(t *testing.T) {
	ps := newTestPasswordService()

	plaintext := "MyPass777!"
	hash, err := ps.Hash(plaintext)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if hash == plaintext {
		t.Error("Hash() must never return the plaintext")
	}
}

func TestHash_SamePasswordProducesDifferentHashes(t *testing.T) {
	ps := newTestPasswordService()

	// bcrypt generates a random salt each time, so two hashes for the
	// same password must differ.
	hash1, _ := ps.Hash("same-secret")
	hash2, _ := ps.Hash("same-secret")

	if hash1 == hash2 {
		t.Error("Hash() produced identical hashes for the same password (salt must be random)")
	}
}

func TestHash_RejectsPasswordOver72Bytes(t *testing.T) {
	ps := newTestPasswordService()

	// bcrypt silently truncates at 72 bytes — we reject instead.
	_, err := ps.Hash(strings.Repeat("a", 73))
	if err == nil {
		t.Fatal("Hash() should reject passwords longer than 72 bytes")
	}
}

func TestVerify_CorrectPassword(t *testing.T) {
	ps := newTestPasswordService()

	hash, _ := ps.Hash("right-one")
	if err := ps.Verify(hash, "right-one"); err != nil {
		t.Errorf("Verify() with correct password error = %v", err)
	}
}

func TestVerify_WrongPassword(t *testing.T) {
	ps := newTestPasswordService()

	hash, _ := ps.Hash("right-one")
	if err := ps.Verify(hash, "wrong-one"); err == nil {
		t.Error("Verify() should return an error for a wrong password")
	}
}

func TestVerify_MalformedHash(t *testing.T) {
	ps := newTestPasswordService()

	if err := ps.Verify("not-a-bcrypt-hash", "whatever"); err == nil {
		t.Error("Verify() should return an error for a malformed hash")
	}
}
