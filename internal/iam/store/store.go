package store

import (
	"context"
	"errors"
	"time"

	"github.com/csis-platform/iam/internal/iam/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable, and to actively stop people from accidentally doing transactions
// within transactions.
type Store interface {
	Users() Users
	Roles() Roles
	RevokedTokens() RevokedTokens
	LoginAttempts() LoginAttempts
	PasswordResetTokens() OneTimeTokens
	EmailVerificationTokens() OneTimeTokens
	Audit() Audit

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// Use it for multi-step operations that must be atomic (e.g., refresh
	// rotation). The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources (optional for sqlite).
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail is used during login and one-time token flows.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// ListUsers returns all users ordered by creation date (newest first).
	ListUsers(ctx context.Context) ([]domain.User, error)

	// UpdateProfile mutates display_name and department and bumps updated_at.
	UpdateProfile(ctx context.Context, userID, displayName string, department *string) error

	// UpdateStatus transitions the account lifecycle state.
	UpdateStatus(ctx context.Context, userID string, status domain.UserStatus) error

	// UpdatePasswordHash sets the password_hash (argon2) and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	// UpdateKeycloakID records the external IdP mirror id.
	UpdateKeycloakID(ctx context.Context, userID, keycloakID string) error

	// DeleteUser cascades to role assignments and one-time tokens (per schema).
	DeleteUser(ctx context.Context, userID string) error
}

type Roles interface {
	// GetRoleByID fetches a role by its ID.
	GetRoleByID(ctx context.Context, id string) (domain.Role, error)

	// GetRoleByName fetches a role by its unique name.
	GetRoleByName(ctx context.Context, name string) (domain.Role, error)

	// ListAll returns all roles in the system.
	ListAll(ctx context.Context) ([]domain.Role, error)

	// CreateRole inserts a new role (id is ULID).
	CreateRole(ctx context.Context, r domain.Role) error

	// UpdateRole modifies the mutable fields of a role.
	UpdateRole(ctx context.Context, roleID string, departmentScope *string, permissions []string) error

	// DeleteRole removes a role. Fails with ErrAlreadyExists-like conflict
	// handling at the service layer when assignments still reference it.
	DeleteRole(ctx context.Context, roleID string) error

	// CountAssignments returns the number of users currently holding the role.
	CountAssignments(ctx context.Context, roleID string) (int, error)

	// GetAssignment returns the assignment row for a user/role pair.
	GetAssignment(ctx context.Context, userID, roleID string) (domain.RoleAssignment, error)

	// CreateAssignment links a user to a role.
	CreateAssignment(ctx context.Context, a domain.RoleAssignment) error

	// DeleteAssignment unlinks a user from a role.
	DeleteAssignment(ctx context.Context, userID, roleID string) error

	// ListAssignmentsForUser returns all assignment rows for a user,
	// including expired ones. Expiry filtering happens at the service layer.
	ListAssignmentsForUser(ctx context.Context, userID string) ([]domain.RoleAssignment, error)

	// ListRolesForUser returns the roles a user currently holds, excluding
	// assignments whose expires_at has passed.
	ListRolesForUser(ctx context.Context, userID string, now time.Time) ([]domain.Role, error)

	// DeleteExpiredAssignments is housekeeping for lapsed grants.
	DeleteExpiredAssignments(ctx context.Context, now time.Time) error
}

type RevokedTokens interface {
	// CreateRevokedToken inserts a denylist entry. Inserting a token value
	// that is already present returns ErrAlreadyExists, which rotation uses
	// as its serialization point.
	CreateRevokedToken(ctx context.Context, t domain.RevokedToken) error

	// IsTokenRevoked reports whether the token value is on the denylist.
	IsTokenRevoked(ctx context.Context, token string) (bool, error)

	// DeleteExpiredRevokedTokens purges entries past their natural expiry.
	DeleteExpiredRevokedTokens(ctx context.Context, now time.Time) error
}

type LoginAttempts interface {
	// GetByEmail returns the attempt record for an email.
	GetByEmail(ctx context.Context, email string) (domain.FailedLoginAttempt, error)

	// Upsert writes the attempt record, keyed by email.
	Upsert(ctx context.Context, a domain.FailedLoginAttempt) error

	// DeleteByEmail clears the record after a successful login.
	DeleteByEmail(ctx context.Context, email string) error

	// DeleteStale removes records that have not been touched since cutoff.
	DeleteStale(ctx context.Context, cutoff time.Time) error
}

// OneTimeTokens backs both password reset and email verification tokens;
// the driver binds each instance to its own table.
type OneTimeTokens interface {
	// Create inserts a new one-time token.
	Create(ctx context.Context, t domain.OneTimeToken) error

	// GetByToken fetches a token row by its value.
	GetByToken(ctx context.Context, token string) (domain.OneTimeToken, error)

	// MarkUsed flips used=1.
	MarkUsed(ctx context.Context, id string) error

	// Delete removes a single token row.
	Delete(ctx context.Context, id string) error

	// DeleteUnusedForUser invalidates prior unused tokens when a new one is
	// issued, and sibling tokens when one is consumed.
	DeleteUnusedForUser(ctx context.Context, userID string) error

	// DeleteExpired is housekeeping for lapsed tokens.
	DeleteExpired(ctx context.Context, now time.Time) error
}

type Audit interface {
	// CreateRecord appends an audit record.
	CreateRecord(ctx context.Context, rec domain.AuditRecord) error

	// ListRecent returns the newest records up to limit.
	ListRecent(ctx context.Context, limit int) ([]domain.AuditRecord, error)
}
