package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-hookqueue/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// keyedRecord is a record whose identity survives upserts keyed by an
// external id and location.
type keyedRecord[T any] interface {
	*T
	identity() (string, time.Time)
	adopt(id string, createdAt time.Time)
}

type recordKey struct {
	Column     string
	Value      string
	LocationID string
}

func externalKey(externalID string, locationID string) recordKey {
	return recordKey{Column: "external_id", Value: strings.TrimSpace(externalID), LocationID: strings.TrimSpace(locationID)}
}

func (k recordKey) validate() error {
	if k.Value == "" {
		return core.NewValidationError(k.Column, "is required")
	}
	if k.LocationID == "" {
		return core.NewValidationError("location_id", "is required")
	}
	return nil
}

func findByKey[T any, P keyedRecord[T]](ctx context.Context, db bun.IDB, key recordKey) (P, error) {
	record := P(new(T))
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.? = ?", bun.Ident(key.Column), key.Value).
		Where("?TableAlias.location_id = ?", key.LocationID).
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

// upsertByKey writes record under key. An existing row keeps its id and
// creation time; every other column is overwritten.
func upsertByKey[T any, P keyedRecord[T]](ctx context.Context, db bun.IDB, key recordKey, record P, now time.Time) (bool, error) {
	if err := key.validate(); err != nil {
		return false, err
	}
	existing, err := findByKey[T, P](ctx, db, key)
	if err != nil {
		return false, err
	}
	record.adopt(uuid.NewString(), now)
	if existing == nil {
		_, insertErr := db.NewInsert().Model(record).Exec(ctx)
		if insertErr == nil {
			return true, nil
		}
		if !isUniqueViolation(insertErr) {
			return false, insertErr
		}
		existing, err = findByKey[T, P](ctx, db, key)
		if err != nil || existing == nil {
			return false, core.NewTransientError(insertErr, fmt.Sprintf("sqlstore: concurrent insert for %s %q", key.Column, key.Value))
		}
	}
	record.adopt(existing.identity())
	if _, err := db.NewUpdate().Model(record).WherePK().Exec(ctx); err != nil {
		return false, err
	}
	return false, nil
}

// softDeleteByKey flags a live row as deleted. Missing or already deleted
// rows report false without error.
func softDeleteByKey(ctx context.Context, db bun.IDB, model any, key recordKey, at time.Time) (bool, error) {
	if err := key.validate(); err != nil {
		return false, err
	}
	at = at.UTC()
	res, err := db.NewUpdate().
		Model(model).
		Set("deleted = ?", true).
		Set("deleted_at = ?", at).
		Set("updated_at = ?", at).
		Where("? = ?", bun.Ident(key.Column), key.Value).
		Where("location_id = ?", key.LocationID).
		Where("deleted = ?", false).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	return affected(res) > 0, nil
}

func notFound(entity string, key recordKey) error {
	return fmt.Errorf("%w: %s %s=%q location=%q", core.ErrEntityNotFound, entity, key.Column, key.Value, key.LocationID)
}
