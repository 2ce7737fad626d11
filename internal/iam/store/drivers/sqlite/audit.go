package sqlite

import (
	"context"
	"database/sql"

	"github.com/csis-platform/iam/internal/iam/domain"
)

type auditRepo struct {
	q dbtx
}

func (r *auditRepo) CreateRecord(ctx context.Context, rec domain.AuditRecord) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor_id, action, resource_type, resource_id, details, ip_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		mapOptionalString(rec.ActorID),
		rec.Action,
		rec.ResourceType,
		mapOptionalString(rec.ResourceID),
		mapOptionalString(rec.Details),
		mapOptionalString(rec.IPAddress),
		rec.CreatedAt,
	)
	return err
}

func (r *auditRepo) ListRecent(ctx context.Context, limit int) ([]domain.AuditRecord, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, actor_id, action, resource_type, resource_id, details, ip_address, created_at
		FROM audit_log ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.AuditRecord
	for rows.Next() {
		var (
			rec        domain.AuditRecord
			actorID    sql.NullString
			resourceID sql.NullString
			details    sql.NullString
			ipAddress  sql.NullString
		)
		if err := rows.Scan(&rec.ID, &actorID, &rec.Action, &rec.ResourceType, &resourceID, &details, &ipAddress, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.ActorID = mapNullStringPtr(actorID)
		rec.ResourceID = mapNullStringPtr(resourceID)
		rec.Details = mapNullStringPtr(details)
		rec.IPAddress = mapNullStringPtr(ipAddress)
		records = append(records, rec)
	}
	return records, rows.Err()
}
