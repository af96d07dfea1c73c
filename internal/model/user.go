// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import "time"

// User represents a registered account.
//
// WHY `json:"-"` ON SOME FIELDS?
// The password hash and the avatar blob must never leak into an API
// response. The `json:"-"` tag tells encoding/json to skip the
// field entirely, so every handler that encodes a *User gets the public view
// for free — there is no separate "sanitize" step to forget.
//
// The avatar is served from its own endpoint (GET /users/{id}/avatar) as a
// raw image body, never inside a JSON document.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Age          int       `json:"age"`
	PasswordHash string    `json:"-"`
	Avatar       []byte    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasAvatar reports whether an avatar image is stored for the user.
func (u *User) HasAvatar() bool {
	return len(u.Avatar) > 0
}
