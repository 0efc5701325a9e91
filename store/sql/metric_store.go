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

type MetricStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookMetricRecord]
}

func NewMetricStore(db *bun.DB) (*MetricStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookMetricRecord](db, webhookMetricHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook metric repository wiring: %w", err)
		}
	}
	return &MetricStore{db: db, repo: repo}, nil
}

func (s *MetricStore) InsertReceived(ctx context.Context, metric core.WebhookMetric) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: metric store is not configured")
	}
	record := newWebhookMetricRecord(metric)
	record.ID = uuid.NewString()
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (webhook_id) DO NOTHING").
		Exec(ctx)
	return err
}

func (s *MetricStore) Get(ctx context.Context, webhookID string) (core.WebhookMetric, error) {
	if s == nil || s.repo == nil {
		return core.WebhookMetric{}, fmt.Errorf("sqlstore: metric store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("webhook_id", "=", strings.TrimSpace(webhookID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.WebhookMetric{}, err
	}
	if len(records) == 0 {
		return core.WebhookMetric{}, fmt.Errorf("%w: %s", core.ErrMetricNotFound, webhookID)
	}
	return records[0].toDomain(), nil
}

func (s *MetricStore) MarkStarted(ctx context.Context, update core.StartedUpdate) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: metric store is not configured")
	}
	res, err := s.db.NewUpdate().
		Model((*webhookMetricRecord)(nil)).
		Set("processing_started_at = ?", update.StartedAt.UTC()).
		Set("queue_wait_ms = ?", update.QueueWaitMs).
		Set("attempts = attempts + 1").
		Set("status = ?", string(core.MetricStatusProcessing)).
		Where("webhook_id = ?", strings.TrimSpace(update.WebhookID)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected(res) == 0 {
		return fmt.Errorf("%w: %s", core.ErrMetricNotFound, update.WebhookID)
	}
	return nil
}

func (s *MetricStore) MarkCompleted(ctx context.Context, update core.CompletedUpdate) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: metric store is not configured")
	}
	res, err := s.db.NewUpdate().
		Model((*webhookMetricRecord)(nil)).
		Set("processing_completed_at = ?", update.CompletedAt.UTC()).
		Set("status = ?", string(update.Status)).
		Set("processing_ms = ?", update.ProcessingMs).
		Set("total_ms = ?", update.TotalMs).
		Set("exceeds_sla = ?", update.ExceedsSLA).
		Set("error_reason = ?", update.ErrorReason).
		Where("webhook_id = ?", strings.TrimSpace(update.WebhookID)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected(res) == 0 {
		return fmt.Errorf("%w: %s", core.ErrMetricNotFound, update.WebhookID)
	}
	return nil
}

func (s *MetricStore) List(ctx context.Context, filter core.MetricFilter) ([]core.WebhookMetric, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: metric store is not configured")
	}
	selectors := []repository.SelectCriteria{
		repository.OrderBy("received_at ASC"),
	}
	if filter.QueueType != "" {
		selectors = append(selectors, repository.SelectBy("queue_type", "=", string(filter.QueueType)))
	}
	if tenantID := strings.TrimSpace(filter.TenantID); tenantID != "" {
		selectors = append(selectors, repository.SelectBy("tenant_id", "=", tenantID))
	}
	if !filter.From.IsZero() || !filter.To.IsZero() {
		from, to := filter.From.UTC(), filter.To.UTC()
		selectors = append(selectors, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			if !from.IsZero() {
				q = q.Where("?TableAlias.received_at >= ?", from)
			}
			if !to.IsZero() {
				q = q.Where("?TableAlias.received_at < ?", to)
			}
			return q
		}))
	}
	if filter.Limit > 0 {
		selectors = append(selectors, repository.SelectPaginate(filter.Limit, 0))
	}
	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	out := make([]core.WebhookMetric, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

var _ core.MetricStore = (*MetricStore)(nil)
