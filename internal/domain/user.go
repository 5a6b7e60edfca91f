package domain

import (
	"errors"
	"time"
)

var (
	// ErrUserNotFound is returned by the credential store when no record matches.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when an email is already registered.
	ErrEmailTaken = errors.New("email already registered")
)

// Role is the closed set of principal roles.
type Role string

const (
	RoleUser  Role = "user"
	RoleStaff Role = "staff"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// User is the domain model for restaurant customers, staff and administrators.
type User struct {
	ID           string
	Name         string
	Email        string
	Phone        string
	Avatar       string
	PasswordHash string
	Role         Role
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser carries the fields needed to create a user. Password is plaintext
// and is hashed by the credential store.
type NewUser struct {
	Name     string
	Email    string
	Phone    string
	Password string
	Role     Role
}

// UserFilter narrows user listings.
type UserFilter struct {
	Keyword string
	Limit   int
	Offset  int
}
