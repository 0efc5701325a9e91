package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hookqueue/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

const defaultDeadLetterPageSize = 100

const workItemColumns = `
	id,
	queue_type,
	type,
	webhook_id,
	tenant_id,
	company_id,
	payload,
	priority,
	attempts,
	max_attempts,
	status,
	claim_id,
	lease_expires_at,
	next_attempt_at,
	last_error,
	dead_at,
	created_at,
	updated_at`

// WorkItemStore is the durable core.QueueStore.
type WorkItemStore struct {
	db   *bun.DB
	repo repository.Repository[*workItemRecord]
}

func NewWorkItemStore(db *bun.DB) (*WorkItemStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*workItemRecord](db, workItemHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid work item repository wiring: %w", err)
		}
	}
	return &WorkItemStore{db: db, repo: repo}, nil
}

func (s *WorkItemStore) Insert(ctx context.Context, item core.WorkItem) (core.WorkItem, bool, error) {
	if s == nil || s.db == nil {
		return core.WorkItem{}, false, fmt.Errorf("sqlstore: work item store is not configured")
	}
	record := newWorkItemRecord(item)
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) && strings.TrimSpace(item.WebhookID) != "" {
			existing, getErr := s.findByWebhook(ctx, item.QueueType, item.WebhookID)
			if getErr != nil {
				return core.WorkItem{}, false, getErr
			}
			return existing, false, nil
		}
		return core.WorkItem{}, false, err
	}
	return record.toDomain(), true, nil
}

func (s *WorkItemStore) Get(ctx context.Context, id string) (core.WorkItem, error) {
	if s == nil || s.repo == nil {
		return core.WorkItem{}, fmt.Errorf("sqlstore: work item store is not configured")
	}
	record, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if isNotFound(err) {
			return core.WorkItem{}, fmt.Errorf("%w: %s", core.ErrWorkItemNotFound, id)
		}
		return core.WorkItem{}, err
	}
	return record.toDomain(), nil
}

// Claim leases up to req.Limit claimable items in one conditional
// UPDATE ... RETURNING. Concurrent callers never receive the same item.
func (s *WorkItemStore) Claim(ctx context.Context, req core.ClaimRequest) ([]core.WorkItem, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: work item store is not configured")
	}
	if req.Limit <= 0 {
		return []core.WorkItem{}, nil
	}
	now := req.Now.UTC()
	leaseExpiresAt := now.Add(req.LeaseTTL)

	lock := ""
	if s.db.Dialect().Name() == dialect.PG {
		lock = "FOR UPDATE SKIP LOCKED"
	}
	query := `
WITH claimable AS (
	SELECT id
	FROM hookqueue_work_items
	WHERE queue_type = ?
	  AND (
		(status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?))
		OR (status = ? AND (lease_expires_at IS NULL OR lease_expires_at <= ?))
	  )
	ORDER BY priority ASC, created_at ASC, id ASC
	LIMIT ?
	` + lock + `
)
UPDATE hookqueue_work_items
SET status = ?, claim_id = ?, lease_expires_at = ?, updated_at = ?
WHERE id IN (SELECT id FROM claimable)
  AND (
	status = ?
	OR (status = ? AND (lease_expires_at IS NULL OR lease_expires_at <= ?))
  )
RETURNING` + workItemColumns

	var records []workItemRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewRaw(
			query,
			string(req.QueueType),
			string(core.WorkItemPending), now,
			string(core.WorkItemProcessing), now,
			req.Limit,
			string(core.WorkItemProcessing), req.ClaimID, leaseExpiresAt, now,
			string(core.WorkItemPending),
			string(core.WorkItemProcessing), now,
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Priority != records[j].Priority {
			return records[i].Priority < records[j].Priority
		}
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
	out := make([]core.WorkItem, 0, len(records))
	for i := range records {
		out = append(out, records[i].toDomain())
	}
	return out, nil
}

func (s *WorkItemStore) Complete(ctx context.Context, id string, claimID string, now time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: work item store is not configured")
	}
	id = strings.TrimSpace(id)
	res, err := s.db.NewUpdate().
		Model((*workItemRecord)(nil)).
		Set("status = ?", string(core.WorkItemComplete)).
		Set("lease_expires_at = NULL").
		Set("next_attempt_at = NULL").
		Set("updated_at = ?", now.UTC()).
		Where("id = ?", id).
		Where("claim_id = ?", strings.TrimSpace(claimID)).
		Where("status = ?", string(core.WorkItemProcessing)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected(res) > 0 {
		return nil
	}
	return s.fenceError(ctx, id, claimID, core.WorkItemComplete)
}

// Fail increments attempts in place and releases the lease, fenced by the
// claim so a worker whose lease was taken over cannot touch the item.
func (s *WorkItemStore) Fail(ctx context.Context, id string, update core.FailUpdate) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: work item store is not configured")
	}
	id = strings.TrimSpace(id)
	now := update.Now.UTC()
	query := s.db.NewUpdate().
		Model((*workItemRecord)(nil)).
		Set("attempts = attempts + 1").
		Set("last_error = ?", update.Reason).
		Set("lease_expires_at = NULL").
		Set("updated_at = ?", now)
	if update.Dead {
		query = query.
			Set("status = ?", string(core.WorkItemDead)).
			Set("dead_at = ?", now).
			Set("next_attempt_at = NULL")
	} else {
		query = query.
			Set("status = ?", string(core.WorkItemPending)).
			Set("next_attempt_at = ?", cloneTimePointer(update.NextAttemptAt))
	}
	res, err := query.
		Where("id = ?", id).
		Where("claim_id = ?", strings.TrimSpace(update.ClaimID)).
		Where("status = ?", string(core.WorkItemProcessing)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected(res) > 0 {
		return nil
	}
	return s.fenceError(ctx, id, update.ClaimID, "failed")
}

// fenceError explains why a fenced update matched no row. Completing an item
// that is already complete is a no-op.
func (s *WorkItemStore) fenceError(ctx context.Context, id string, claimID string, target core.WorkItemStatus) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case target == core.WorkItemComplete && current.Status == core.WorkItemComplete:
		return nil
	case current.Status.Terminal():
		return fmt.Errorf("%w: %s -> %s", core.ErrInvalidStatusChange, current.Status, target)
	default:
		return fmt.Errorf("%w: %s held by %q, not %q", core.ErrLeaseLost, id, current.ClaimID, claimID)
	}
}

func (s *WorkItemStore) Requeue(ctx context.Context, id string, now time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: work item store is not configured")
	}
	res, err := s.db.NewUpdate().
		Model((*workItemRecord)(nil)).
		Set("status = ?", string(core.WorkItemPending)).
		Set("attempts = 0").
		Set("dead_at = NULL").
		Set("next_attempt_at = NULL").
		Set("claim_id = ''").
		Set("updated_at = ?", now.UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Where("status = ?", string(core.WorkItemDead)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected(res) > 0 {
		return nil
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", core.ErrInvalidStatusChange, current.Status, core.WorkItemPending)
}

func (s *WorkItemStore) ListDead(ctx context.Context, filter core.DeadLetterFilter) ([]core.WorkItem, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: work item store is not configured")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultDeadLetterPageSize
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	selectors := []repository.SelectCriteria{
		repository.SelectBy("status", "=", string(core.WorkItemDead)),
		repository.OrderBy("created_at ASC"),
		repository.OrderBy("id ASC"),
		repository.SelectPaginate(limit, offset),
	}
	if filter.QueueType != "" {
		selectors = append(selectors, repository.SelectBy("queue_type", "=", string(filter.QueueType)))
	}
	if tenantID := strings.TrimSpace(filter.TenantID); tenantID != "" {
		selectors = append(selectors, repository.SelectBy("tenant_id", "=", tenantID))
	}
	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	out := make([]core.WorkItem, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *WorkItemStore) Depth(ctx context.Context) ([]core.QueueDepth, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: work item store is not configured")
	}
	var rows []struct {
		QueueType string `bun:"queue_type"`
		Status    string `bun:"status"`
		Count     int    `bun:"count"`
	}
	err := s.db.NewSelect().
		Model((*workItemRecord)(nil)).
		ColumnExpr("?TableAlias.queue_type AS queue_type").
		ColumnExpr("?TableAlias.status AS status").
		ColumnExpr("COUNT(*) AS count").
		GroupExpr("?TableAlias.queue_type").
		GroupExpr("?TableAlias.status").
		OrderExpr("?TableAlias.queue_type ASC").
		OrderExpr("?TableAlias.status ASC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	out := make([]core.QueueDepth, 0, len(rows))
	for _, row := range rows {
		out = append(out, core.QueueDepth{
			QueueType: core.QueueType(row.QueueType),
			Status:    core.WorkItemStatus(row.Status),
			Count:     row.Count,
		})
	}
	return out, nil
}

func (s *WorkItemStore) findByWebhook(ctx context.Context, queueType core.QueueType, webhookID string) (core.WorkItem, error) {
	record := &workItemRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.queue_type = ?", string(queueType)).
		Where("?TableAlias.webhook_id = ?", strings.TrimSpace(webhookID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.WorkItem{}, fmt.Errorf("%w: webhook %s", core.ErrWorkItemNotFound, webhookID)
		}
		return core.WorkItem{}, err
	}
	return record.toDomain(), nil
}

func affected(res sql.Result) int64 {
	if res == nil {
		return 0
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return count
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Category == goerrors.CategoryNotFound {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no rows")
}

var _ core.QueueStore = (*WorkItemStore)(nil)
