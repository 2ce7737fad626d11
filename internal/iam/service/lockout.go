package service

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/csis-platform/iam/internal/iam/domain"
	"github.com/csis-platform/iam/internal/iam/store"
	"github.com/csis-platform/iam/pkg/idx"
	"github.com/csis-platform/iam/pkg/slogx"
)

const (
	// DefaultLockoutThreshold is how many consecutive failures trip the lock.
	DefaultLockoutThreshold = 5

	// DefaultLockoutWindow is both the failure-counting window and the lock
	// duration once the threshold is reached.
	DefaultLockoutWindow = 15 * time.Minute

	lockoutStripes = 64
)

// LockoutGuard tracks consecutive failed logins per email and locks the
// address out once the threshold is reached. State lives in the store so
// lockouts survive restarts; the striped mutexes only serialize the
// read-modify-write per email within this process.
type LockoutGuard struct {
	Store     store.Store
	Threshold int
	Window    time.Duration

	stripes [lockoutStripes]sync.Mutex
}

// NewLockoutGuard applies the default threshold and window when the caller
// passes zero values.
func NewLockoutGuard(st store.Store, threshold int, window time.Duration) *LockoutGuard {
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}
	if window <= 0 {
		window = DefaultLockoutWindow
	}
	return &LockoutGuard{Store: st, Threshold: threshold, Window: window}
}

func (g *LockoutGuard) lock(email string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(email)))
	return &g.stripes[h.Sum32()%lockoutStripes]
}

// Check returns a LockedError while a lockout is in effect, nil otherwise.
// Call this before touching password verification at all so locked accounts
// cost attackers nothing to probe.
func (g *LockoutGuard) Check(ctx context.Context, email string, now time.Time) error {
	mu := g.lock(email)
	mu.Lock()
	defer mu.Unlock()

	attempt, err := g.Store.LoginAttempts().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	if attempt.Locked(now) {
		return &LockedError{Until: *attempt.LockedUntil}
	}
	return nil
}

// RecordFailure bumps the failure counter and trips the lock once the
// threshold is reached. Failures older than the window reset the counter
// first. Returns the resulting lockout, nil while still under the threshold.
func (g *LockoutGuard) RecordFailure(ctx context.Context, email string, ip *string, now time.Time) (*LockedError, error) {
	mu := g.lock(email)
	mu.Lock()
	defer mu.Unlock()

	attempt, err := g.Store.LoginAttempts().GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if errors.Is(err, store.ErrNotFound) {
		attempt = domain.FailedLoginAttempt{
			ID:    idx.New().String(),
			Email: email,
		}
	}

	// A quiet spell longer than the window forgives earlier failures.
	if !attempt.UpdatedAt.IsZero() && now.Sub(attempt.UpdatedAt) > g.Window {
		attempt.AttemptCount = 0
		attempt.LockedUntil = nil
	}

	attempt.AttemptCount++
	attempt.IPAddress = ip
	attempt.UpdatedAt = now

	var locked *LockedError
	if attempt.AttemptCount >= g.Threshold {
		until := now.Add(g.Window)
		attempt.LockedUntil = &until
		locked = &LockedError{Until: until}

		slogx.FromContext(ctx).Warn("account locked after repeated login failures",
			slog.String("email", email),
			slog.Int("attempts", attempt.AttemptCount),
			slog.Time("locked_until", until),
		)
	}

	if err := g.Store.LoginAttempts().Upsert(ctx, attempt); err != nil {
		return nil, err
	}
	return locked, nil
}

// Reset clears the failure record after a successful login.
func (g *LockoutGuard) Reset(ctx context.Context, email string) error {
	mu := g.lock(email)
	mu.Lock()
	defer mu.Unlock()

	return g.Store.LoginAttempts().DeleteByEmail(ctx, email)
}
