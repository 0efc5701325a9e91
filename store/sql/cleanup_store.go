package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-hookqueue/core"
	"github.com/uptrace/bun"
)

const defaultCleanupLimit = 1000

// CleanupStore hard deletes short-lived records derived from a location.
// Contacts, invoices, projects and the other business documents are never
// touched.
type CleanupStore struct {
	db bun.IDB
}

func NewCleanupStore(db bun.IDB) (*CleanupStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &CleanupStore{db: db}, nil
}

func (s *CleanupStore) PurgeDerivatives(ctx context.Context, locationID string, keepItemID string, limit int) (core.CleanupReport, error) {
	locationID = strings.TrimSpace(locationID)
	report := core.CleanupReport{LocationID: locationID}
	if locationID == "" {
		return report, core.NewValidationError("location_id", "is required")
	}
	if limit <= 0 {
		limit = defaultCleanupLimit
	}

	rules, err := s.purge(ctx, (*automationRuleRecord)(nil), limit, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("location_id = ?", locationID)
	})
	if err != nil {
		return report, err
	}
	report.AutomationRules = rules

	jobs, err := s.purge(ctx, (*workItemRecord)(nil), limit, func(q *bun.SelectQuery) *bun.SelectQuery {
		q = q.Where("tenant_id = ?", locationID).
			Where("status IN (?)", bun.In([]string{string(core.WorkItemPending), string(core.WorkItemProcessing)}))
		if keep := strings.TrimSpace(keepItemID); keep != "" {
			q = q.Where("id <> ?", keep)
		}
		return q
	})
	if err != nil {
		return report, err
	}
	report.QueuedJobs = jobs

	states, err := s.purge(ctx, (*syncStateRecord)(nil), limit, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("location_id = ?", locationID)
	})
	if err != nil {
		return report, err
	}
	report.SyncStates = states
	return report, nil
}

func (s *CleanupStore) purge(ctx context.Context, model any, limit int, filter func(*bun.SelectQuery) *bun.SelectQuery) (int, error) {
	ids := filter(s.db.NewSelect().Model(model).Column("id")).Limit(limit)
	res, err := s.db.NewDelete().
		Model(model).
		Where("id IN (?)", ids).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return int(affected(res)), nil
}

var _ core.CleanupStore = (*CleanupStore)(nil)
