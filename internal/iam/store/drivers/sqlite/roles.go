package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/csis-platform/iam/internal/iam/domain"
)

type rolesRepo struct {
	q dbtx
}

const roleColumns = `id, name, department_scope, permissions, created_at, updated_at`

func scanRole(row interface{ Scan(...any) error }) (domain.Role, error) {
	var (
		r           domain.Role
		scope       sql.NullString
		permissions string
	)
	err := row.Scan(&r.ID, &r.Name, &scope, &permissions, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return domain.Role{}, mapNotFound(err)
	}
	r.DepartmentScope = mapNullStringPtr(scope)
	r.Permissions = splitAndFilter(permissions)
	return r, nil
}

func (r *rolesRepo) GetRoleByID(ctx context.Context, id string) (domain.Role, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = ?`, id)
	return scanRole(row)
}

func (r *rolesRepo) GetRoleByName(ctx context.Context, name string) (domain.Role, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = ?`, name)
	return scanRole(row)
}

func (r *rolesRepo) ListAll(ctx context.Context) ([]domain.Role, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []domain.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *rolesRepo) CreateRole(ctx context.Context, role domain.Role) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO roles (id, name, department_scope, permissions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		role.ID,
		role.Name,
		mapOptionalString(role.DepartmentScope),
		joinFields(role.Permissions),
		role.CreatedAt,
		role.UpdatedAt,
	)
	return mapConflict(err)
}

func (r *rolesRepo) UpdateRole(ctx context.Context, roleID string, departmentScope *string, permissions []string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE roles SET department_scope = ?, permissions = ?, updated_at = ? WHERE id = ?`,
		mapOptionalString(departmentScope), joinFields(permissions), time.Now().UTC(), roleID,
	)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (r *rolesRepo) DeleteRole(ctx context.Context, roleID string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM roles WHERE id = ?`, roleID)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (r *rolesRepo) CountAssignments(ctx context.Context, roleID string) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_roles WHERE role_id = ?`, roleID,
	).Scan(&count)
	return count, err
}

func scanAssignment(row interface{ Scan(...any) error }) (domain.RoleAssignment, error) {
	var (
		a         domain.RoleAssignment
		grantedBy sql.NullString
		expiresAt sql.NullTime
	)
	err := row.Scan(&a.ID, &a.UserID, &a.RoleID, &grantedBy, &a.GrantedAt, &expiresAt)
	if err != nil {
		return domain.RoleAssignment{}, mapNotFound(err)
	}
	a.GrantedBy = mapNullStringPtr(grantedBy)
	a.ExpiresAt = mapNullTimePtr(expiresAt)
	return a, nil
}

func (r *rolesRepo) GetAssignment(ctx context.Context, userID, roleID string) (domain.RoleAssignment, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, role_id, granted_by, granted_at, expires_at
		FROM user_roles WHERE user_id = ? AND role_id = ?`,
		userID, roleID,
	)
	return scanAssignment(row)
}

func (r *rolesRepo) CreateAssignment(ctx context.Context, a domain.RoleAssignment) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO user_roles (id, user_id, role_id, granted_by, granted_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.UserID,
		a.RoleID,
		mapOptionalString(a.GrantedBy),
		a.GrantedAt,
		mapOptionalTime(a.ExpiresAt),
	)
	return mapConflict(err)
}

func (r *rolesRepo) DeleteAssignment(ctx context.Context, userID, roleID string) error {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM user_roles WHERE user_id = ? AND role_id = ?`, userID, roleID,
	)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (r *rolesRepo) ListAssignmentsForUser(ctx context.Context, userID string) ([]domain.RoleAssignment, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, user_id, role_id, granted_by, granted_at, expires_at
		FROM user_roles WHERE user_id = ? ORDER BY granted_at`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []domain.RoleAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// ListRolesForUser joins through user_roles so the answer always reflects the
// current grants. Expired assignments are filtered out here rather than
// deleted; housekeeping purges them later.
func (r *rolesRepo) ListRolesForUser(ctx context.Context, userID string, now time.Time) ([]domain.Role, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT r.id, r.name, r.department_scope, r.permissions, r.created_at, r.updated_at
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = ?
		  AND (ur.expires_at IS NULL OR ur.expires_at > ?)
		ORDER BY r.name`,
		userID, now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []domain.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *rolesRepo) DeleteExpiredAssignments(ctx context.Context, now time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM user_roles WHERE expires_at IS NOT NULL AND expires_at <= ?`, now,
	)
	return err
}
