package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-hookqueue/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// LocationStore persists tenant configuration records keyed by the CRM
// location id.
type LocationStore struct {
	db bun.IDB
	clock
}

func NewLocationStore(db bun.IDB) (*LocationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &LocationStore{db: db}, nil
}

func (s *LocationStore) UpsertLocation(ctx context.Context, location core.Location) (core.Location, error) {
	location.ExternalID = strings.TrimSpace(location.ExternalID)
	if location.ExternalID == "" {
		return core.Location{}, core.NewValidationError("location_id", "is required")
	}
	now := s.now()
	record := newLocationRecord(location)
	record.UpdatedAt = now

	existing, err := s.find(ctx, location.ExternalID)
	if err != nil {
		return core.Location{}, err
	}
	if existing == nil {
		record.adopt(uuid.NewString(), now)
		if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
			return core.Location{}, err
		}
		return record.toDomain(), nil
	}
	record.adopt(existing.identity())
	if _, err := s.db.NewUpdate().Model(record).WherePK().Exec(ctx); err != nil {
		return core.Location{}, err
	}
	return record.toDomain(), nil
}

func (s *LocationStore) GetLocation(ctx context.Context, externalID string) (core.Location, error) {
	record, err := s.find(ctx, externalID)
	if err != nil {
		return core.Location{}, err
	}
	if record == nil {
		return core.Location{}, fmt.Errorf("%w: %s", core.ErrLocationNotFound, externalID)
	}
	return record.toDomain(), nil
}

func (s *LocationStore) find(ctx context.Context, externalID string) (*locationRecord, error) {
	record := &locationRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.external_id = ?", strings.TrimSpace(externalID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

type UserStore struct {
	db bun.IDB
	clock
}

func NewUserStore(db bun.IDB) (*UserStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &UserStore{db: db}, nil
}

func (s *UserStore) UpsertUser(ctx context.Context, user core.UserRecord) (core.UserRecord, bool, error) {
	now := s.now()
	record := newUserRecord(user)
	record.UpdatedAt = now
	created, err := upsertByKey[userRecord](ctx, s.db, externalKey(user.ExternalID, user.LocationID), record, now)
	if err != nil {
		return core.UserRecord{}, false, err
	}
	return record.toDomain(), created, nil
}

var (
	_ core.LocationStore = (*LocationStore)(nil)
	_ core.UserStore     = (*UserStore)(nil)
)
