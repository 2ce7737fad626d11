package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/csis-platform/iam/internal/iam/store"
)

// HousekeepingService periodically purges rows that have outlived their use:
// expired denylist entries, lapsed one-time tokens, stale login attempt
// records, and expired role assignments.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given
// interval. If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:    st,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop to shut down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop gracefully shuts down the background worker. Blocks until any
// in-progress cleanup finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.cleanup()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup performs the actual deletion of expired records. Each sweep is
// independent; a failure in one does not stop the others.
func (s *HousekeepingService) cleanup() {
	ctx := context.Background()
	now := time.Now().UTC()
	s.Logger.Info("starting housekeeping cleanup")

	var completed int

	if err := s.Store.RevokedTokens().DeleteExpiredRevokedTokens(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired revoked tokens", "error", err)
	} else {
		completed++
	}

	if err := s.Store.PasswordResetTokens().DeleteExpired(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired password reset tokens", "error", err)
	} else {
		completed++
	}

	if err := s.Store.EmailVerificationTokens().DeleteExpired(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired verification tokens", "error", err)
	} else {
		completed++
	}

	// Attempt rows untouched for a full day are dead weight; any lock they
	// carried lapsed long ago.
	if err := s.Store.LoginAttempts().DeleteStale(ctx, now.Add(-24*time.Hour)); err != nil {
		s.Logger.Error("failed to delete stale login attempts", "error", err)
	} else {
		completed++
	}

	if err := s.Store.Roles().DeleteExpiredAssignments(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired role assignments", "error", err)
	} else {
		completed++
	}

	s.Logger.Info("housekeeping cleanup completed", "successful_cleanups", completed)
}
