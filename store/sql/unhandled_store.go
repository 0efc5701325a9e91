package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-hookqueue/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UnhandledStore keeps events no handler claimed so operators can inspect
// them later.
type UnhandledStore struct {
	db   bun.IDB
	repo repository.Repository[*unhandledEventRecord]
	clock
}

func NewUnhandledStore(db *bun.DB) (*UnhandledStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*unhandledEventRecord](db, unhandledEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid unhandled event repository wiring: %w", err)
		}
	}
	return &UnhandledStore{db: db, repo: repo}, nil
}

func (s *UnhandledStore) withDB(db bun.IDB) *UnhandledStore {
	return &UnhandledStore{db: db, repo: s.repo, clock: s.clock}
}

func (s *UnhandledStore) RecordUnhandled(ctx context.Context, event core.UnhandledEvent) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: unhandled store is not configured")
	}
	createdAt := event.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	record := &unhandledEventRecord{
		ID:        uuid.NewString(),
		WebhookID: strings.TrimSpace(event.WebhookID),
		Type:      strings.TrimSpace(event.Type),
		TenantID:  strings.TrimSpace(event.TenantID),
		QueueType: string(event.QueueType),
		Payload:   RedactPayload(event.Payload),
		Reason:    event.Reason,
		CreatedAt: createdAt,
	}
	_, err := s.db.NewInsert().Model(record).Exec(ctx)
	return err
}

// ListUnhandled pages through unhandled events, newest first.
func (s *UnhandledStore) ListUnhandled(ctx context.Context, tenantID string, limit int, offset int) ([]core.UnhandledEvent, int, error) {
	if s == nil || s.repo == nil {
		return nil, 0, fmt.Errorf("sqlstore: unhandled store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(limit, offset),
	}
	if tenantID = strings.TrimSpace(tenantID); tenantID != "" {
		selectors = append(selectors, repository.SelectBy("tenant_id", "=", tenantID))
	}
	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, 0, err
	}
	out := make([]core.UnhandledEvent, 0, len(records))
	for _, record := range records {
		out = append(out, core.UnhandledEvent{
			ID:        record.ID,
			WebhookID: record.WebhookID,
			Type:      record.Type,
			TenantID:  record.TenantID,
			QueueType: core.QueueType(record.QueueType),
			Payload:   copyAnyMap(record.Payload),
			Reason:    record.Reason,
			CreatedAt: record.CreatedAt.UTC(),
		})
	}
	return out, total, nil
}

var _ core.UnhandledStore = (*UnhandledStore)(nil)
