package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-hookqueue/core"
	"github.com/uptrace/bun"
)

// InvoiceStore persists invoices and orders; the kind column tells them apart.
type InvoiceStore struct {
	db bun.IDB
	clock
}

func NewInvoiceStore(db bun.IDB) (*InvoiceStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &InvoiceStore{db: db}, nil
}

func (s *InvoiceStore) UpsertInvoice(ctx context.Context, invoice core.Invoice) (core.Invoice, bool, error) {
	now := s.now()
	record := newInvoiceRecord(invoice)
	record.UpdatedAt = now
	created, err := upsertByKey[invoiceRecord](ctx, s.db, externalKey(invoice.ExternalID, invoice.LocationID), record, now)
	if err != nil {
		return core.Invoice{}, false, err
	}
	return record.toDomain(), created, nil
}

func (s *InvoiceStore) FindInvoice(ctx context.Context, externalID string, locationID string) (core.Invoice, error) {
	key := externalKey(externalID, locationID)
	record, err := findByKey[invoiceRecord](ctx, s.db, key)
	if err != nil {
		return core.Invoice{}, err
	}
	if record == nil {
		return core.Invoice{}, notFound("invoice", key)
	}
	return record.toDomain(), nil
}

func (s *InvoiceStore) SoftDeleteInvoice(ctx context.Context, externalID string, locationID string, at time.Time) (bool, error) {
	return softDeleteByKey(ctx, s.db, (*invoiceRecord)(nil), externalKey(externalID, locationID), at)
}

var _ core.InvoiceStore = (*InvoiceStore)(nil)
