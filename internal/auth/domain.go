package auth

import "time"

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is the public view of a signed-in user.
type Profile struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Profile strips credential material from the user.
func (u User) Profile() Profile {
	return Profile{ID: u.ID, Email: u.Email, Name: u.Name}
}
