package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateRoleDuplicateName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.RBAC.CreateRole(ctx, "viewer", nil, []string{"users:read"})
	require.NoError(t, err)

	_, err = f.RBAC.CreateRole(ctx, "viewer", nil, nil)
	require.ErrorIs(t, err, ErrRoleExists)
}

func TestDeleteRoleBlockedWhileAssigned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.registerActive(t, "holder@example.com", "holder password")

	role, err := f.RBAC.CreateRole(ctx, "operator", nil, []string{"ops:run"})
	require.NoError(t, err)
	require.NoError(t, f.RBAC.AssignRole(ctx, id, role.ID, "", nil))

	require.ErrorIs(t, f.RBAC.DeleteRole(ctx, role.ID), ErrRoleAssigned)

	require.NoError(t, f.RBAC.RevokeRole(ctx, id, role.ID, ""))
	require.NoError(t, f.RBAC.DeleteRole(ctx, role.ID))

	require.ErrorIs(t, f.RBAC.DeleteRole(ctx, role.ID), ErrNotFound)
}

func TestAssignRoleIdempotentRefreshesExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.registerActive(t, "regrant@example.com", "regrant password")

	role, err := f.RBAC.CreateRole(ctx, "temp", nil, nil)
	require.NoError(t, err)

	soon := time.Now().Add(time.Hour)
	require.NoError(t, f.RBAC.AssignRole(ctx, id, role.ID, "", &soon))

	// Granting again without an expiry makes the assignment permanent.
	require.NoError(t, f.RBAC.AssignRole(ctx, id, role.ID, "", nil))

	assignments, err := f.RBAC.AssignmentsForUser(ctx, id)
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	require.Nil(t, assignments[0].ExpiresAt)
}

func TestAssignRoleUnknownUserOrRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.registerActive(t, "known@example.com", "known password")

	role, err := f.RBAC.CreateRole(ctx, "real", nil, nil)
	require.NoError(t, err)

	require.ErrorIs(t, f.RBAC.AssignRole(ctx, "missing-user", role.ID, "", nil), ErrNotFound)
	require.ErrorIs(t, f.RBAC.AssignRole(ctx, id, "missing-role", "", nil), ErrNotFound)
}

func TestRevokeRoleNotHeldIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.registerActive(t, "noop@example.com", "noop password")

	role, err := f.RBAC.CreateRole(ctx, "unheld", nil, nil)
	require.NoError(t, err)

	require.NoError(t, f.RBAC.RevokeRole(ctx, id, role.ID, ""))
}

func TestRolesForUserFiltersExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.registerActive(t, "mixed@example.com", "mixed password")

	current, err := f.RBAC.CreateRole(ctx, "current", nil, nil)
	require.NoError(t, err)
	lapsedRole, err := f.RBAC.CreateRole(ctx, "lapsed", nil, nil)
	require.NoError(t, err)

	require.NoError(t, f.RBAC.AssignRole(ctx, id, current.ID, "", nil))
	past := time.Now().Add(-time.Minute)
	require.NoError(t, f.RBAC.AssignRole(ctx, id, lapsedRole.ID, "", &past))

	roles, err := f.RBAC.RolesForUser(ctx, id)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	require.Equal(t, "current", roles[0].Name)

	// Expired grants stay visible in the raw assignment view for audit.
	assignments, err := f.RBAC.AssignmentsForUser(ctx, id)
	require.NoError(t, err)
	require.Len(t, assignments, 2)
}

func TestPermissionsOfUnionsEffectiveRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.registerActive(t, "perms@example.com", "perms password")

	reader, err := f.RBAC.CreateRole(ctx, "reader", nil, []string{"users:read", "reports:read"})
	require.NoError(t, err)
	writer, err := f.RBAC.CreateRole(ctx, "writer", nil, []string{"reports:write", "reports:read"})
	require.NoError(t, err)
	lapsedRole, err := f.RBAC.CreateRole(ctx, "lapsed", nil, []string{"secrets:read"})
	require.NoError(t, err)

	require.NoError(t, f.RBAC.AssignRole(ctx, id, reader.ID, "", nil))
	require.NoError(t, f.RBAC.AssignRole(ctx, id, writer.ID, "", nil))
	past := time.Now().Add(-time.Minute)
	require.NoError(t, f.RBAC.AssignRole(ctx, id, lapsedRole.ID, "", &past))

	// Overlap collapses, the expired grant contributes nothing, and the
	// result comes back sorted.
	perms, err := f.RBAC.PermissionsOf(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []string{"reports:read", "reports:write", "users:read"}, perms)
}

func TestPermissionsOfNoRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.registerActive(t, "bare@example.com", "bare password")

	perms, err := f.RBAC.PermissionsOf(ctx, id)
	require.NoError(t, err)
	require.Empty(t, perms)
	require.NotNil(t, perms)
}

func TestUpdateRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	role, err := f.RBAC.CreateRole(ctx, "editable", nil, []string{"a:read"})
	require.NoError(t, err)

	scope := "finance"
	updated, err := f.RBAC.UpdateRole(ctx, role.ID, &scope, []string{"a:read", "a:write"})
	require.NoError(t, err)
	require.NotNil(t, updated.DepartmentScope)
	require.Equal(t, "finance", *updated.DepartmentScope)
	require.Equal(t, []string{"a:read", "a:write"}, updated.Permissions)

	_, err = f.RBAC.UpdateRole(ctx, "missing", nil, nil)
	require.ErrorIs(t, err, ErrNotFound)
}
