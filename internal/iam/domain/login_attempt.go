package domain

import "time"

// FailedLoginAttempt tracks consecutive failures per email address. One row
// per email; the counter resets when the window lapses or a login succeeds.
type FailedLoginAttempt struct {
	ID           string
	Email        string
	IPAddress    *string // last failing address (nullable)
	AttemptCount int
	LockedUntil  *time.Time // nullable; set when the threshold is reached
	UpdatedAt    time.Time
}

// Locked reports whether the account is locked out at the given instant.
func (a FailedLoginAttempt) Locked(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}
