package domain

import "time"

// OneTimeToken is a single-use credential for password resets and email
// verification. Issuing a new token invalidates any prior unused tokens for
// the same user and purpose.
type OneTimeToken struct {
	ID        string
	UserID    string
	Token     string // hex-encoded random value
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// Expired reports whether the token has lapsed at the given instant.
func (t OneTimeToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}
