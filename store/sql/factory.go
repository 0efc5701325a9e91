package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-hookqueue/core"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

// RepositoryFactory wires every SQL store against one bun database.
type RepositoryFactory struct {
	db  *bun.DB
	now func() time.Time

	workItems *WorkItemStore
	markers   *MarkerStore
	metrics   *MetricStore
	unhandled *UnhandledStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.Build(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.Build(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// WithClock overrides the time source of the entity stores.
func (f *RepositoryFactory) WithClock(now func() time.Time) *RepositoryFactory {
	if f != nil {
		f.now = now
		if f.unhandled != nil {
			f.unhandled.Now = now
		}
	}
	return f
}

func (f *RepositoryFactory) Build(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.workItems != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) WorkItemStore() *WorkItemStore {
	if f == nil {
		return nil
	}
	return f.workItems
}

func (f *RepositoryFactory) MarkerStore() *MarkerStore {
	if f == nil {
		return nil
	}
	return f.markers
}

func (f *RepositoryFactory) MetricStore() *MetricStore {
	if f == nil {
		return nil
	}
	return f.metrics
}

func (f *RepositoryFactory) UnhandledStore() *UnhandledStore {
	if f == nil {
		return nil
	}
	return f.unhandled
}

func (f *RepositoryFactory) Stores() core.Stores {
	if f == nil || f.db == nil {
		return core.Stores{}
	}
	return f.storesFor(f.db)
}

// RunInTx hands fn a set of stores bound to one transaction. Stores used
// inside fn must come from tx; the outer connection may be the only one.
func (f *RepositoryFactory) RunInTx(ctx context.Context, fn func(ctx context.Context, tx core.Stores) error) error {
	if f == nil || f.db == nil {
		return fmt.Errorf("sqlstore: repository factory is not configured")
	}
	if fn == nil {
		return nil
	}
	return f.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, f.storesFor(tx))
	})
}

func (f *RepositoryFactory) storesFor(db bun.IDB) core.Stores {
	c := clock{Now: f.now}
	stores := core.Stores{
		Contacts:     &ContactStore{db: db, clock: c},
		Appointments: &AppointmentStore{db: db, clock: c},
		Invoices:     &InvoiceStore{db: db, clock: c},
		Projects:     &ProjectStore{db: db, clock: c},
		Messages:     &MessageStore{db: db, clock: c},
		Locations:    &LocationStore{db: db, clock: c},
		Users:        &UserStore{db: db, clock: c},
		Cleanup:      &CleanupStore{db: db},
	}
	if f.unhandled != nil {
		stores.Unhandled = f.unhandled.withDB(db)
	}
	return stores
}

func (f *RepositoryFactory) initStores() error {
	workItems, err := NewWorkItemStore(f.db)
	if err != nil {
		return err
	}
	markers, err := NewMarkerStore(f.db)
	if err != nil {
		return err
	}
	metrics, err := NewMetricStore(f.db)
	if err != nil {
		return err
	}
	unhandled, err := NewUnhandledStore(f.db)
	if err != nil {
		return err
	}
	unhandled.Now = f.now

	f.workItems = workItems
	f.markers = markers
	f.metrics = metrics
	f.unhandled = unhandled
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
