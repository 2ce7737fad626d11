package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/csis-platform/iam/internal/iam/domain"
)

type revokedTokensRepo struct {
	q dbtx
}

func (r *revokedTokensRepo) CreateRevokedToken(ctx context.Context, t domain.RevokedToken) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO revoked_tokens (id, token, expires_at, created_at)
		VALUES (?, ?, ?, ?)`,
		t.ID, t.Token, t.ExpiresAt, t.CreatedAt,
	)
	// The UNIQUE index on token is what makes concurrent refresh rotation
	// single-winner: the second insert of the same old token fails here.
	return mapConflict(err)
}

func (r *revokedTokensRepo) IsTokenRevoked(ctx context.Context, token string) (bool, error) {
	var one int
	err := r.q.QueryRowContext(ctx,
		`SELECT 1 FROM revoked_tokens WHERE token = ?`, token,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *revokedTokensRepo) DeleteExpiredRevokedTokens(ctx context.Context, now time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM revoked_tokens WHERE expires_at <= ?`, now,
	)
	return err
}
