package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials covers unknown email, wrong password, and
	// accounts that are not allowed to log in. Handlers surface the same
	// generic message for all three so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid_credentials")

	// ErrInvalidRefresh covers malformed, expired, revoked, and already
	// rotated refresh tokens.
	ErrInvalidRefresh = errors.New("invalid_refresh_token")

	// ErrUnsupportedGrant is returned by the token endpoint for any
	// grant_type other than password and refresh_token.
	ErrUnsupportedGrant = errors.New("unsupported_grant_type")

	// ErrInvalidToken is the generic failure for one-time tokens; on its own
	// it means the token is unknown.
	ErrInvalidToken = errors.New("invalid_token")

	// ErrTokenUsed reports a one-time token that was already consumed. Wraps
	// ErrInvalidToken so generic handling still works.
	ErrTokenUsed = fmt.Errorf("%w: already used", ErrInvalidToken)

	// ErrTokenExpired reports a one-time token past its expiry. Wraps
	// ErrInvalidToken so generic handling still works.
	ErrTokenExpired = fmt.Errorf("%w: expired", ErrInvalidToken)

	// ErrEmailTaken is returned by registration when the address already has
	// an account. Handlers map it to a generic message.
	ErrEmailTaken = errors.New("email_taken")

	// ErrNotFound is the service-level not-found for users and roles.
	ErrNotFound = errors.New("not_found")

	// ErrRoleAssigned blocks role deletion while users still hold the role.
	ErrRoleAssigned = errors.New("role_still_assigned")

	// ErrRoleExists blocks creating a role whose name is already taken.
	ErrRoleExists = errors.New("role_exists")
)

// LockedError reports a lockout in effect, including how long the caller has
// to wait. Unwraps to ErrInvalidCredentials so generic handling still works.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked, try again in %d minutes", e.RemainingMinutes(time.Now()))
}

func (e *LockedError) Unwrap() error { return ErrInvalidCredentials }

// RemainingMinutes returns the wait rounded up to whole minutes, never less
// than one while the lock holds.
func (e *LockedError) RemainingMinutes(now time.Time) int {
	remaining := e.Until.Sub(now)
	if remaining <= 0 {
		return 0
	}
	mins := int((remaining + time.Minute - 1) / time.Minute)
	if mins < 1 {
		mins = 1
	}
	return mins
}
