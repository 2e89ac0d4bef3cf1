package models

import "time"

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Don't expose in JSON
	CreatedAt    time.Time `json:"created_at"`
}

// SessionUser is the denormalized copy of a user carried in the session cookie.
type SessionUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (u *User) SessionUser() SessionUser {
	return SessionUser{ID: u.ID, Username: u.Username, Email: u.Email}
}
