package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Roles carried in access tokens and the users table
const (
	RoleExplorer  = "explorer"
	RoleOrganizer = "organizer"
	RoleAdmin     = "admin"
)

// User is the read-only account record used for notification delivery
type User struct {
	ID        uuid.UUID      `json:"id" db:"id"`
	Email     *string        `json:"email,omitempty" db:"email"`
	FullName  *string        `json:"full_name,omitempty" db:"full_name"`
	Roles     pq.StringArray `json:"roles" db:"roles"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// HasRole checks if user has a specific role
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// DisplayName returns the full name, falling back to the email
func (u *User) DisplayName() string {
	if u.FullName != nil && *u.FullName != "" {
		return *u.FullName
	}
	if u.Email != nil {
		return *u.Email
	}
	return ""
}
