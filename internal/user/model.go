// Package user manages staff accounts, logins and the email OTP password reset flow.
package user

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by stores when no user matches.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned when the email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrDuplicatePhone is returned when the phone number is already registered.
	ErrDuplicatePhone = errors.New("phone already registered")
)

// Status is the account state.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// Role grants access to endpoint groups.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleStaff Role = "STAFF"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleStaff
}

// User is a staff account. PasswordHash never leaves the service.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Status       Status    `json:"status"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CreateInput carries the fields for a new account.
type CreateInput struct {
	Username string
	Email    string
	Phone    string
	Password string
	Role     Role
}

// UpdateInput carries optional replacements; nil fields are left unchanged.
type UpdateInput struct {
	Username *string
	Email    *string
	Phone    *string
	Role     *Role
}

// NewUser is the row a store inserts.
type NewUser struct {
	Username     string
	Email        string
	Phone        string
	PasswordHash string
	Role         Role
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	User        User      `json:"user"`
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// OTPIssued tells the client which account the emailed code belongs to.
type OTPIssued struct {
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ResetGrant carries the single-use token that authorises a password reset.
type ResetGrant struct {
	UserID     string    `json:"userId"`
	ResetToken string    `json:"resetToken"`
	ExpiresAt  time.Time `json:"expiresAt"`
}
