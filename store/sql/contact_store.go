package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-hookqueue/core"
	"github.com/uptrace/bun"
)

// ContactStore persists contacts and their notes.
type ContactStore struct {
	db bun.IDB
	clock
}

func NewContactStore(db bun.IDB) (*ContactStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &ContactStore{db: db}, nil
}

func (s *ContactStore) UpsertContact(ctx context.Context, contact core.Contact) (core.Contact, bool, error) {
	now := s.now()
	record := newContactRecord(contact)
	record.UpdatedAt = now
	created, err := upsertByKey[contactRecord](ctx, s.db, externalKey(contact.ExternalID, contact.LocationID), record, now)
	if err != nil {
		return core.Contact{}, false, err
	}
	return record.toDomain(), created, nil
}

func (s *ContactStore) FindContact(ctx context.Context, externalID string, locationID string) (core.Contact, error) {
	key := externalKey(externalID, locationID)
	record, err := findByKey[contactRecord](ctx, s.db, key)
	if err != nil {
		return core.Contact{}, err
	}
	if record == nil {
		return core.Contact{}, notFound("contact", key)
	}
	return record.toDomain(), nil
}

func (s *ContactStore) SoftDeleteContact(ctx context.Context, externalID string, locationID string, at time.Time) (bool, error) {
	return softDeleteByKey(ctx, s.db, (*contactRecord)(nil), externalKey(externalID, locationID), at)
}

func (s *ContactStore) UpsertNote(ctx context.Context, note core.Note) (core.Note, bool, error) {
	now := s.now()
	record := newNoteRecord(note)
	record.UpdatedAt = now
	created, err := upsertByKey[noteRecord](ctx, s.db, externalKey(note.ExternalID, note.LocationID), record, now)
	if err != nil {
		return core.Note{}, false, err
	}
	return record.toDomain(), created, nil
}

func (s *ContactStore) SoftDeleteNote(ctx context.Context, externalID string, locationID string, at time.Time) (bool, error) {
	return softDeleteByKey(ctx, s.db, (*noteRecord)(nil), externalKey(externalID, locationID), at)
}

var _ core.ContactStore = (*ContactStore)(nil)
