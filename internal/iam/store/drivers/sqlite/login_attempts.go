package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/csis-platform/iam/internal/iam/domain"
)

type loginAttemptsRepo struct {
	q dbtx
}

func (r *loginAttemptsRepo) GetByEmail(ctx context.Context, email string) (domain.FailedLoginAttempt, error) {
	var (
		a           domain.FailedLoginAttempt
		ipAddress   sql.NullString
		lockedUntil sql.NullTime
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT id, email, ip_address, attempt_count, locked_until, updated_at
		FROM failed_login_attempts WHERE email = ?`,
		email,
	).Scan(&a.ID, &a.Email, &ipAddress, &a.AttemptCount, &lockedUntil, &a.UpdatedAt)
	if err != nil {
		return domain.FailedLoginAttempt{}, mapNotFound(err)
	}
	a.IPAddress = mapNullStringPtr(ipAddress)
	a.LockedUntil = mapNullTimePtr(lockedUntil)
	return a, nil
}

// Upsert keys on email so repeated failures keep a single row per address.
func (r *loginAttemptsRepo) Upsert(ctx context.Context, a domain.FailedLoginAttempt) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO failed_login_attempts (id, email, ip_address, attempt_count, locked_until, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET
			ip_address    = excluded.ip_address,
			attempt_count = excluded.attempt_count,
			locked_until  = excluded.locked_until,
			updated_at    = excluded.updated_at`,
		a.ID,
		a.Email,
		mapOptionalString(a.IPAddress),
		a.AttemptCount,
		mapOptionalTime(a.LockedUntil),
		a.UpdatedAt,
	)
	return err
}

func (r *loginAttemptsRepo) DeleteByEmail(ctx context.Context, email string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM failed_login_attempts WHERE email = ?`, email,
	)
	return err
}

func (r *loginAttemptsRepo) DeleteStale(ctx context.Context, cutoff time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM failed_login_attempts WHERE updated_at <= ?`, cutoff,
	)
	return err
}
