package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/csis-platform/iam/internal/iam/domain"
	"github.com/csis-platform/iam/internal/iam/store"
	"github.com/csis-platform/iam/pkg/idx"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore(filepath.Join(t.TempDir(), "iam_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func newTestUser(email string) domain.User {
	now := time.Now().UTC().Truncate(time.Second)
	return domain.User{
		ID:           idx.New().String(),
		Email:        email,
		PasswordHash: "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA",
		DisplayName:  "Test User",
		Status:       domain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestUsers_CreateAndFetch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := newTestUser("alice@example.com")
	dept := "engineering"
	u.Department = &dept
	require.NoError(t, s.Users().CreateUser(ctx, u))

	byID, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, u.Email, byID.Email)
	require.NotNil(t, byID.Department)
	require.Equal(t, "engineering", *byID.Department)
	require.Nil(t, byID.KeycloakID)

	byEmail, err := s.Users().GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, byEmail.ID)

	_, err = s.Users().GetUserByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestUsers_DuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Users().CreateUser(ctx, newTestUser("dup@example.com")))
	err := s.Users().CreateUser(ctx, newTestUser("dup@example.com"))
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestUsers_Updates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := newTestUser("update@example.com")
	require.NoError(t, s.Users().CreateUser(ctx, u))

	dept := "finance"
	require.NoError(t, s.Users().UpdateProfile(ctx, u.ID, "New Name", &dept))
	require.NoError(t, s.Users().UpdateStatus(ctx, u.ID, domain.UserStatusSuspended))
	require.NoError(t, s.Users().UpdatePasswordHash(ctx, u.ID, "newhash"))
	require.NoError(t, s.Users().UpdateKeycloakID(ctx, u.ID, "kc-123"))

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "New Name", got.DisplayName)
	require.Equal(t, domain.UserStatusSuspended, got.Status)
	require.Equal(t, "newhash", got.PasswordHash)
	require.NotNil(t, got.KeycloakID)
	require.Equal(t, "kc-123", *got.KeycloakID)

	require.ErrorIs(t, s.Users().UpdateStatus(ctx, "missing", domain.UserStatusActive), store.ErrNotFound)
}

func TestRoles_AssignmentsAndExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	u := newTestUser("roles@example.com")
	require.NoError(t, s.Users().CreateUser(ctx, u))

	admin := domain.Role{ID: idx.New().String(), Name: "iam_admin", Permissions: []string{"users:write", "roles:write"}, CreatedAt: now, UpdatedAt: now}
	temp := domain.Role{ID: idx.New().String(), Name: "contractor", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.Roles().CreateRole(ctx, admin))
	require.NoError(t, s.Roles().CreateRole(ctx, temp))

	require.NoError(t, s.Roles().CreateAssignment(ctx, domain.RoleAssignment{
		ID: idx.New().String(), UserID: u.ID, RoleID: admin.ID, GrantedAt: now,
	}))
	lapsed := now.Add(-time.Hour)
	require.NoError(t, s.Roles().CreateAssignment(ctx, domain.RoleAssignment{
		ID: idx.New().String(), UserID: u.ID, RoleID: temp.ID, GrantedAt: now.Add(-2 * time.Hour), ExpiresAt: &lapsed,
	}))

	// Expired assignments are excluded from the live view
	roles, err := s.Roles().ListRolesForUser(ctx, u.ID, now)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	require.Equal(t, "iam_admin", roles[0].Name)
	require.Equal(t, []string{"users:write", "roles:write"}, roles[0].Permissions)

	// but remain visible in the raw assignment list
	assignments, err := s.Roles().ListAssignmentsForUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, assignments, 2)

	count, err := s.Roles().CountAssignments(ctx, admin.ID)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// Duplicate assignment hits the UNIQUE(user_id, role_id) constraint
	err = s.Roles().CreateAssignment(ctx, domain.RoleAssignment{
		ID: idx.New().String(), UserID: u.ID, RoleID: admin.ID, GrantedAt: now,
	})
	require.ErrorIs(t, err, store.ErrAlreadyExists)

	require.NoError(t, s.Roles().DeleteExpiredAssignments(ctx, now))
	assignments, err = s.Roles().ListAssignmentsForUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, assignments, 1)
}

func TestRoles_DeleteUserCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	u := newTestUser("cascade@example.com")
	require.NoError(t, s.Users().CreateUser(ctx, u))

	role := domain.Role{ID: idx.New().String(), Name: "viewer", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.Roles().CreateRole(ctx, role))
	require.NoError(t, s.Roles().CreateAssignment(ctx, domain.RoleAssignment{
		ID: idx.New().String(), UserID: u.ID, RoleID: role.ID, GrantedAt: now,
	}))

	require.NoError(t, s.Users().DeleteUser(ctx, u.ID))

	count, err := s.Roles().CountAssignments(ctx, role.ID)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestRevokedTokens_DuplicateIsConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	entry := domain.RevokedToken{
		ID:        idx.New().String(),
		Token:     "eyJhbGciOiJSUzI1NiJ9.payload.sig",
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
	require.NoError(t, s.RevokedTokens().CreateRevokedToken(ctx, entry))

	revoked, err := s.RevokedTokens().IsTokenRevoked(ctx, entry.Token)
	require.NoError(t, err)
	require.True(t, revoked)

	revoked, err = s.RevokedTokens().IsTokenRevoked(ctx, "some-other-token")
	require.NoError(t, err)
	require.False(t, revoked)

	entry.ID = idx.New().String()
	require.ErrorIs(t, s.RevokedTokens().CreateRevokedToken(ctx, entry), store.ErrAlreadyExists)

	require.NoError(t, s.RevokedTokens().DeleteExpiredRevokedTokens(ctx, now.Add(2*time.Hour)))
	revoked, err = s.RevokedTokens().IsTokenRevoked(ctx, entry.Token)
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestLoginAttempts_UpsertKeyedByEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	attempt := domain.FailedLoginAttempt{
		ID:           idx.New().String(),
		Email:        "locked@example.com",
		AttemptCount: 1,
		UpdatedAt:    now,
	}
	require.NoError(t, s.LoginAttempts().Upsert(ctx, attempt))

	lockedUntil := now.Add(15 * time.Minute)
	attempt.ID = idx.New().String() // a fresh id must still land on the same row
	attempt.AttemptCount = 5
	attempt.LockedUntil = &lockedUntil
	require.NoError(t, s.LoginAttempts().Upsert(ctx, attempt))

	got, err := s.LoginAttempts().GetByEmail(ctx, "locked@example.com")
	require.NoError(t, err)
	require.Equal(t, 5, got.AttemptCount)
	require.NotNil(t, got.LockedUntil)
	require.True(t, got.Locked(now))

	require.NoError(t, s.LoginAttempts().DeleteByEmail(ctx, "locked@example.com"))
	_, err = s.LoginAttempts().GetByEmail(ctx, "locked@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestOneTimeTokens_TablesAreIndependent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	u := newTestUser("tokens@example.com")
	require.NoError(t, s.Users().CreateUser(ctx, u))

	reset := domain.OneTimeToken{ID: idx.New().String(), UserID: u.ID, Token: "aaaa", ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	verify := domain.OneTimeToken{ID: idx.New().String(), UserID: u.ID, Token: "aaaa", ExpiresAt: now.Add(7 * 24 * time.Hour), CreatedAt: now}

	require.NoError(t, s.PasswordResetTokens().Create(ctx, reset))
	// Same token value in the other table is fine; uniqueness is per table
	require.NoError(t, s.EmailVerificationTokens().Create(ctx, verify))

	got, err := s.PasswordResetTokens().GetByToken(ctx, "aaaa")
	require.NoError(t, err)
	require.Equal(t, reset.ID, got.ID)

	require.NoError(t, s.PasswordResetTokens().MarkUsed(ctx, reset.ID))
	got, err = s.PasswordResetTokens().GetByToken(ctx, "aaaa")
	require.NoError(t, err)
	require.True(t, got.Used)

	require.NoError(t, s.PasswordResetTokens().DeleteUnusedForUser(ctx, u.ID))
	_, err = s.PasswordResetTokens().GetByToken(ctx, "aaaa")
	require.NoError(t, err) // used tokens survive the unused sweep

	require.NoError(t, s.EmailVerificationTokens().DeleteUnusedForUser(ctx, u.ID))
	_, err = s.EmailVerificationTokens().GetByToken(ctx, "aaaa")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestWithTx_RollbackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := newTestUser("tx@example.com")
	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, u); err != nil {
			return err
		}
		return context.Canceled // force rollback
	})
	require.Error(t, err)

	_, err = s.Users().GetUserByID(ctx, u.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestWithTx_Commit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := newTestUser("txcommit@example.com")
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		return tx.Users().CreateUser(ctx, u)
	}))

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, u.Email, got.Email)
}

func TestAudit_ListRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Audit().CreateRecord(ctx, domain.AuditRecord{
			ID:           idx.New().String(),
			Action:       domain.AuditLoginFailed,
			ResourceType: "user",
			CreatedAt:    base.Add(time.Duration(i) * time.Second),
		}))
	}

	records, err := s.Audit().ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.True(t, records[0].CreatedAt.After(records[1].CreatedAt))
}
