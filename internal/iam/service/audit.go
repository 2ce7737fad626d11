package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/csis-platform/iam/internal/iam/domain"
	"github.com/csis-platform/iam/internal/iam/store"
	"github.com/csis-platform/iam/pkg/idx"
	"github.com/csis-platform/iam/pkg/slogx"
)

// AuditService appends security-relevant events to the audit log. Writes are
// best effort: a failed append is logged but never fails the operation that
// produced it.
type AuditService struct {
	Store store.Store
}

// Entry is a single event to record. ActorID and ResourceID may be empty.
type Entry struct {
	ActorID      string
	Action       string
	ResourceType string
	ResourceID   string
	IPAddress    string
	Details      map[string]any
}

func (s *AuditService) Record(ctx context.Context, e Entry) {
	if s == nil {
		return
	}

	rec := domain.AuditRecord{
		ID:           idx.New().String(),
		Action:       e.Action,
		ResourceType: e.ResourceType,
		CreatedAt:    time.Now().UTC(),
	}
	if e.ActorID != "" {
		rec.ActorID = &e.ActorID
	}
	if e.ResourceID != "" {
		rec.ResourceID = &e.ResourceID
	}
	if e.IPAddress != "" {
		rec.IPAddress = &e.IPAddress
	}
	if len(e.Details) > 0 {
		if buf, err := json.Marshal(e.Details); err == nil {
			details := string(buf)
			rec.Details = &details
		}
	}

	if err := s.Store.Audit().CreateRecord(ctx, rec); err != nil {
		slogx.FromContext(ctx).Error("failed to append audit record",
			slog.String("action", e.Action),
			slog.Any("error", err),
		)
	}
}

// ListRecent returns the newest records, capped at 500 per call.
func (s *AuditService) ListRecent(ctx context.Context, limit int) ([]domain.AuditRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	return s.Store.Audit().ListRecent(ctx, limit)
}
