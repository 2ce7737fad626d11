package domain

import "time"

type Role struct {
	ID              string
	Name            string
	DepartmentScope *string  // nullable; limits the role to one department
	Permissions     []string // parsed from space-delimited storage
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RoleAssignment links a user to a role. Assignments may carry an expiry;
// expired assignments are ignored at read time but kept for audit.
type RoleAssignment struct {
	ID        string
	UserID    string
	RoleID    string
	GrantedBy *string // nullable actor id
	GrantedAt time.Time
	ExpiresAt *time.Time // nullable
}

// Expired reports whether the assignment has lapsed at the given instant.
func (a RoleAssignment) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && !a.ExpiresAt.After(now)
}
