package domain

import "time"

// UserStatus is the lifecycle state of a principal.
type UserStatus string

const (
	// UserStatusPending means the account exists but the email address has
	// not been verified yet. Pending users cannot log in.
	UserStatusPending UserStatus = "pending"

	// UserStatusActive is the normal, fully usable state.
	UserStatusActive UserStatus = "active"

	// UserStatusSuspended is a reversible administrative hold.
	UserStatusSuspended UserStatus = "suspended"

	// UserStatusDeactivated is a terminal state.
	UserStatusDeactivated UserStatus = "deactivated"
)

type User struct {
	ID           string
	Email        string
	PasswordHash string // argon2 encoded
	DisplayName  string
	Department   *string // nullable
	Status       UserStatus
	KeycloakID   *string // external IdP mirror id (nullable)
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CanLogin reports whether the account state permits authentication.
func (u User) CanLogin() bool {
	return u.Status == UserStatusActive
}
