package model

import "time"

// User is both a login account and an assignee in the user directory.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"isAdmin"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Ref returns the directory entry for u.
func (u User) Ref() UserRef {
	name := u.Name
	if name == "" {
		name = u.Username
	}
	return UserRef{ID: u.ID, Name: name}
}
