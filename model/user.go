package model

import (
	"time"
)

// User is an account with a subscription tier.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`

	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	CompanyName string `json:"company_name,omitempty"`
	Phone       string `json:"phone,omitempty"`

	Role             string `json:"role"`
	SubscriptionTier string `json:"subscription_tier"`

	EmailVerified bool `json:"email_verified"`
	IsActive      bool `json:"is_active"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// Role constants
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// FullName returns the display name.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// IsAdmin reports whether the user has the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Clone returns a copy safe to mutate outside the store.
func (u *User) Clone() *User {
	c := *u
	return &c
}
