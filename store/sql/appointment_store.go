package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-hookqueue/core"
	"github.com/uptrace/bun"
)

type AppointmentStore struct {
	db bun.IDB
	clock
}

func NewAppointmentStore(db bun.IDB) (*AppointmentStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &AppointmentStore{db: db}, nil
}

func (s *AppointmentStore) UpsertAppointment(ctx context.Context, appointment core.Appointment) (core.Appointment, bool, error) {
	now := s.now()
	record := newAppointmentRecord(appointment)
	record.UpdatedAt = now
	created, err := upsertByKey[appointmentRecord](ctx, s.db, externalKey(appointment.ExternalID, appointment.LocationID), record, now)
	if err != nil {
		return core.Appointment{}, false, err
	}
	return record.toDomain(), created, nil
}

func (s *AppointmentStore) FindAppointment(ctx context.Context, externalID string, locationID string) (core.Appointment, error) {
	key := externalKey(externalID, locationID)
	record, err := findByKey[appointmentRecord](ctx, s.db, key)
	if err != nil {
		return core.Appointment{}, err
	}
	if record == nil {
		return core.Appointment{}, notFound("appointment", key)
	}
	return record.toDomain(), nil
}

func (s *AppointmentStore) SoftDeleteAppointment(ctx context.Context, externalID string, locationID string, at time.Time) (bool, error) {
	return softDeleteByKey(ctx, s.db, (*appointmentRecord)(nil), externalKey(externalID, locationID), at)
}

var _ core.AppointmentStore = (*AppointmentStore)(nil)
