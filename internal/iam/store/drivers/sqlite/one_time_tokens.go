package sqlite

import (
	"context"
	"time"

	"github.com/csis-platform/iam/internal/iam/domain"
)

const (
	tablePasswordResetTokens     = "password_reset_tokens"
	tableEmailVerificationTokens = "email_verification_tokens"
)

// oneTimeTokensRepo serves both the reset and verification tables; the two
// schemas are identical so the table name is the only difference.
type oneTimeTokensRepo struct {
	q     dbtx
	table string
}

func (r *oneTimeTokensRepo) Create(ctx context.Context, t domain.OneTimeToken) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO `+r.table+` (id, user_id, token, expires_at, used, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Token, t.ExpiresAt, t.Used, t.CreatedAt,
	)
	return mapConflict(err)
}

func (r *oneTimeTokensRepo) GetByToken(ctx context.Context, token string) (domain.OneTimeToken, error) {
	var t domain.OneTimeToken
	err := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, token, expires_at, used, created_at
		FROM `+r.table+` WHERE token = ?`,
		token,
	).Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.Used, &t.CreatedAt)
	if err != nil {
		return domain.OneTimeToken{}, mapNotFound(err)
	}
	return t, nil
}

func (r *oneTimeTokensRepo) MarkUsed(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE `+r.table+` SET used = 1 WHERE id = ?`, id,
	)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (r *oneTimeTokensRepo) Delete(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM `+r.table+` WHERE id = ?`, id,
	)
	return err
}

func (r *oneTimeTokensRepo) DeleteUnusedForUser(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM `+r.table+` WHERE user_id = ? AND used = 0`, userID,
	)
	return err
}

func (r *oneTimeTokensRepo) DeleteExpired(ctx context.Context, now time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM `+r.table+` WHERE expires_at <= ?`, now,
	)
	return err
}
