package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/csis-platform/iam/internal/iam/domain"
	"github.com/csis-platform/iam/internal/iam/keycloak"
	"github.com/csis-platform/iam/internal/iam/store"
	"github.com/csis-platform/iam/pkg/slogx"
)

// UserService covers profile reads and the administrative account
// operations. Keycloak may be nil.
type UserService struct {
	Store    store.Store
	Audit    *AuditService
	Keycloak *keycloak.Client
}

func (s *UserService) GetUserByID(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrNotFound
	}
	return u, err
}

func (s *UserService) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.Store.Users().ListUsers(ctx)
}

func (s *UserService) UpdateProfile(ctx context.Context, userID, displayName string, department *string) (domain.User, error) {
	if err := s.Store.Users().UpdateProfile(ctx, userID, displayName, department); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrNotFound
		}
		return domain.User{}, err
	}

	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}

	s.Audit.Record(ctx, Entry{
		ActorID:      userID,
		Action:       domain.AuditUserUpdated,
		ResourceType: "user",
		ResourceID:   userID,
	})

	return u, nil
}

// SetStatus transitions the account lifecycle state and mirrors the enabled
// flag into Keycloak for suspend and reactivate.
func (s *UserService) SetStatus(ctx context.Context, userID string, status domain.UserStatus, actorID string) error {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	if err := s.Store.Users().UpdateStatus(ctx, userID, status); err != nil {
		return err
	}

	if s.Keycloak != nil && u.KeycloakID != nil {
		enabled := status == domain.UserStatusActive
		if err := s.Keycloak.SetEnabled(ctx, *u.KeycloakID, enabled); err != nil {
			slogx.FromContext(ctx).Error("keycloak status mirror failed",
				slog.String("user_id", userID),
				slog.Any("error", err),
			)
		}
	}

	s.Audit.Record(ctx, Entry{
		ActorID:      actorID,
		Action:       domain.AuditUserUpdated,
		ResourceType: "user",
		ResourceID:   userID,
		Details:      map[string]any{"status": status},
	})

	return nil
}

// DeleteUser removes the account. Role assignments and outstanding one-time
// tokens go with it via the schema's cascades; audit records stay.
func (s *UserService) DeleteUser(ctx context.Context, userID, actorID string) error {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	if err := s.Store.Users().DeleteUser(ctx, userID); err != nil {
		return err
	}

	if s.Keycloak != nil && u.KeycloakID != nil {
		if err := s.Keycloak.DeleteUser(ctx, *u.KeycloakID); err != nil {
			slogx.FromContext(ctx).Error("keycloak delete mirror failed",
				slog.String("user_id", userID),
				slog.Any("error", err),
			)
		}
	}

	s.Audit.Record(ctx, Entry{
		ActorID:      actorID,
		Action:       domain.AuditUserDeleted,
		ResourceType: "user",
		ResourceID:   userID,
		Details:      map[string]any{"email": u.Email},
	})

	return nil
}
