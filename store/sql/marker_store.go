package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-hookqueue/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MarkerStore persists dedup markers behind a unique (entity_id, event_type)
// index.
type MarkerStore struct {
	db *bun.DB
}

func NewMarkerStore(db *bun.DB) (*MarkerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &MarkerStore{db: db}, nil
}

// Acquire inserts the marker, or revives it when the stored one expired. A
// live marker leaves the row untouched and reports core.ErrMarkerExists.
func (s *MarkerStore) Acquire(ctx context.Context, entityID string, eventType string, now time.Time, ttl time.Duration) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: marker store is not configured")
	}
	now = now.UTC()
	res, err := s.db.ExecContext(ctx, `
INSERT INTO hookqueue_dedup_markers (id, entity_id, event_type, created_at, expires_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (entity_id, event_type) DO UPDATE
SET created_at = excluded.created_at, expires_at = excluded.expires_at
WHERE hookqueue_dedup_markers.expires_at <= ?`,
		uuid.NewString(),
		strings.TrimSpace(entityID),
		strings.TrimSpace(eventType),
		now,
		now.Add(ttl),
		now,
	)
	if err != nil {
		return err
	}
	if affected(res) == 0 {
		return core.ErrMarkerExists
	}
	return nil
}

func (s *MarkerStore) PruneExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: marker store is not configured")
	}
	if limit <= 0 {
		limit = 500
	}
	expired := s.db.NewSelect().
		Model((*dedupMarkerRecord)(nil)).
		Column("id").
		Where("expires_at <= ?", now.UTC()).
		Limit(limit)
	res, err := s.db.NewDelete().
		Model((*dedupMarkerRecord)(nil)).
		Where("id IN (?)", expired).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return int(affected(res)), nil
}

var _ core.MarkerStore = (*MarkerStore)(nil)
