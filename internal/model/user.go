// Package model defines the data structures used throughout the application.
package model

import "time"

// User is a registered account of the local auth provider.
//
// ID doubles as the `user_id` of the user's horses and the `id` of their
// `user_profiles` row, so it is also the key of their contract PDF.
// PasswordHash is never serialised.
type User struct {
	ID           string    `json:"id"         db:"id"`
	Email        string    `json:"email"      db:"email"`
	PasswordHash string    `json:"-"          db:"password_hash"`
	Verified     bool      `json:"verified"   db:"verified"`
	CreatedAt    time.Time `json:"createdAt"  db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt"  db:"updated_at"`
}
