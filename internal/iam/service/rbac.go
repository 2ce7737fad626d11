package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/csis-platform/iam/internal/iam/domain"
	"github.com/csis-platform/iam/internal/iam/keycloak"
	"github.com/csis-platform/iam/internal/iam/store"
	"github.com/csis-platform/iam/pkg/idx"
	"github.com/csis-platform/iam/pkg/slogx"
)

// RBACService manages roles and their assignment to users. Role reads always
// go to the store; tokens carry a snapshot of roles at signing time, so
// anything that must be current asks this service instead of the token.
// Keycloak may be nil; grants are then not mirrored.
type RBACService struct {
	Store    store.Store
	Audit    *AuditService
	Keycloak *keycloak.Client
}

func (s *RBACService) ListRoles(ctx context.Context) ([]domain.Role, error) {
	return s.Store.Roles().ListAll(ctx)
}

func (s *RBACService) GetRole(ctx context.Context, roleID string) (domain.Role, error) {
	r, err := s.Store.Roles().GetRoleByID(ctx, roleID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Role{}, ErrNotFound
	}
	return r, err
}

func (s *RBACService) CreateRole(ctx context.Context, name string, departmentScope *string, permissions []string) (domain.Role, error) {
	now := time.Now().UTC()
	r := domain.Role{
		ID:              idx.New().String(),
		Name:            name,
		DepartmentScope: departmentScope,
		Permissions:     permissions,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.Store.Roles().CreateRole(ctx, r); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Role{}, ErrRoleExists
		}
		return domain.Role{}, err
	}
	return r, nil
}

func (s *RBACService) UpdateRole(ctx context.Context, roleID string, departmentScope *string, permissions []string) (domain.Role, error) {
	if err := s.Store.Roles().UpdateRole(ctx, roleID, departmentScope, permissions); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Role{}, ErrNotFound
		}
		return domain.Role{}, err
	}
	return s.Store.Roles().GetRoleByID(ctx, roleID)
}

// DeleteRole refuses to delete a role that users still hold. Revoke the
// assignments first; losing track of who held what is worse than the extra
// round trip.
func (s *RBACService) DeleteRole(ctx context.Context, roleID string) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Roles().GetRoleByID(ctx, roleID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}

		count, err := tx.Roles().CountAssignments(ctx, roleID)
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrRoleAssigned
		}

		return tx.Roles().DeleteRole(ctx, roleID)
	})
}

// AssignRole grants a role to a user, optionally until expiresAt. Assigning a
// role the user already holds refreshes the expiry instead of failing.
func (s *RBACService) AssignRole(ctx context.Context, userID, roleID, grantedBy string, expiresAt *time.Time) error {
	now := time.Now().UTC()

	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	role, err := s.Store.Roles().GetRoleByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	a := domain.RoleAssignment{
		ID:        idx.New().String(),
		UserID:    userID,
		RoleID:    roleID,
		GrantedAt: now,
		ExpiresAt: expiresAt,
	}
	if grantedBy != "" {
		a.GrantedBy = &grantedBy
	}

	err = s.Store.Roles().CreateAssignment(ctx, a)
	if errors.Is(err, store.ErrAlreadyExists) {
		// Re-grant: replace the existing assignment so the new expiry and
		// grantor take effect.
		err = s.Store.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.Roles().DeleteAssignment(ctx, userID, roleID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			return tx.Roles().CreateAssignment(ctx, a)
		})
	}
	if err != nil {
		return err
	}

	s.Audit.Record(ctx, Entry{
		ActorID:      grantedBy,
		Action:       domain.AuditRoleGranted,
		ResourceType: "role",
		ResourceID:   roleID,
		Details:      map[string]any{"user_id": userID},
	})

	s.mirrorRole(ctx, u, role.Name, true)

	return nil
}

// RevokeRole removes an assignment. Revoking a role the user does not hold
// is not an error.
func (s *RBACService) RevokeRole(ctx context.Context, userID, roleID, revokedBy string) error {
	err := s.Store.Roles().DeleteAssignment(ctx, userID, roleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	s.Audit.Record(ctx, Entry{
		ActorID:      revokedBy,
		Action:       domain.AuditRoleRevoked,
		ResourceType: "role",
		ResourceID:   roleID,
		Details:      map[string]any{"user_id": userID},
	})

	if u, err := s.Store.Users().GetUserByID(ctx, userID); err == nil {
		if role, err := s.Store.Roles().GetRoleByID(ctx, roleID); err == nil {
			s.mirrorRole(ctx, u, role.Name, false)
		}
	}

	return nil
}

// mirrorRole pushes a grant or removal into Keycloak, best effort. Accounts
// that were never mirrored (no keycloak id yet) are skipped.
func (s *RBACService) mirrorRole(ctx context.Context, u domain.User, roleName string, grant bool) {
	if s.Keycloak == nil || u.KeycloakID == nil {
		return
	}

	var err error
	if grant {
		err = s.Keycloak.AssignRole(ctx, *u.KeycloakID, roleName)
	} else {
		err = s.Keycloak.RemoveRole(ctx, *u.KeycloakID, roleName)
	}
	if err != nil {
		slogx.FromContext(ctx).Error("keycloak role mirror failed",
			slog.String("user_id", u.ID),
			slog.String("role", roleName),
			slog.Bool("grant", grant),
			slog.Any("error", err),
		)
	}
}

// RolesForUser returns the roles currently in effect, with expired
// assignments filtered out.
func (s *RBACService) RolesForUser(ctx context.Context, userID string) ([]domain.Role, error) {
	return s.Store.Roles().ListRolesForUser(ctx, userID, time.Now().UTC())
}

// AssignmentsForUser returns the raw assignment rows, expired ones included.
func (s *RBACService) AssignmentsForUser(ctx context.Context, userID string) ([]domain.RoleAssignment, error) {
	return s.Store.Roles().ListAssignmentsForUser(ctx, userID)
}

// PermissionsOf returns the union of permissions across the user's effective
// roles, deduplicated and sorted. Expired assignments contribute nothing.
func (s *RBACService) PermissionsOf(ctx context.Context, userID string) ([]string, error) {
	roles, err := s.RolesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	perms := make([]string, 0)
	for _, role := range roles {
		for _, p := range role.Permissions {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			perms = append(perms, p)
		}
	}
	sort.Strings(perms)
	return perms, nil
}
