// Package handlers holds the typed processors that apply CRM webhook events
// to entity documents.
//
// Every handler follows the same shape: validate the identifying fields,
// resolve cross references (a miss leaves the reference empty), upsert by
// (external id, location), and return an outcome describing the real-time
// notifications to fan out once the apply phase committed.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-hookqueue/core"
	"github.com/goliatone/go-hookqueue/notify"
	"github.com/goliatone/go-hookqueue/processor"
)

const defaultCleanupLimit = 1000

// LocationInvalidator drops a cached location entry after a write that
// bypassed the cache, such as one made inside a transaction.
type LocationInvalidator interface {
	Invalidate(ctx context.Context, externalID string) error
}

// Deps are the collaborators shared by every processor.
type Deps struct {
	UnitOfWork core.UnitOfWork
	// Locations serves tenant reads; usually a cached store. Defaults to the
	// unit of work location store.
	Locations    core.LocationStore
	Enricher     core.ContactEnricher
	Now          func() time.Time
	CleanupLimit int
	Observer     *core.Observer
}

func (d Deps) validate() error {
	if d.UnitOfWork == nil {
		return fmt.Errorf("handlers: unit of work is required")
	}
	return nil
}

func (d Deps) stores() core.Stores {
	return d.UnitOfWork.Stores()
}

func (d Deps) locations() core.LocationStore {
	if d.Locations != nil {
		return d.Locations
	}
	return d.stores().Locations
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d Deps) cleanupLimit() int {
	if d.CleanupLimit > 0 {
		return d.CleanupLimit
	}
	return defaultCleanupLimit
}

func (d Deps) observer() *core.Observer {
	if d.Observer != nil {
		return d.Observer
	}
	return core.NewObserver("hookqueue.handlers", nil, nil)
}

func (d Deps) invalidateLocation(ctx context.Context, externalID string) {
	invalidator, ok := d.Locations.(LocationInvalidator)
	if !ok {
		return
	}
	if err := invalidator.Invalidate(ctx, externalID); err != nil {
		d.observer().LogWarn(ctx, "location cache invalidation failed", map[string]any{
			"location_id": externalID,
			"error":       err.Error(),
		})
	}
}

// identity validates the external id and tenant every entity write needs.
func identity(event core.Event, data fields, keys ...string) (string, string, error) {
	if len(keys) == 0 {
		keys = []string{"id"}
	}
	externalID := data.str(keys...)
	if externalID == "" {
		return "", "", core.NewValidationError(keys[0], "is required")
	}
	tenantID := strings.TrimSpace(event.TenantID)
	if tenantID == "" {
		return "", "", core.NewValidationError("locationId", "is required")
	}
	return externalID, tenantID, nil
}

// resolveContact maps an external contact id to the stored contact id. A
// miss returns an empty id so the reference stays null.
func resolveContact(ctx context.Context, stores core.Stores, externalID string, locationID string) (string, error) {
	if strings.TrimSpace(externalID) == "" || stores.Contacts == nil {
		return "", nil
	}
	contact, err := stores.Contacts.FindContact(ctx, externalID, locationID)
	if err != nil {
		if isMissing(err) {
			return "", nil
		}
		return "", err
	}
	return contact.ID, nil
}

func isMissing(err error) bool {
	return errors.Is(err, core.ErrEntityNotFound) || errors.Is(err, core.ErrLocationNotFound)
}

func locationNotice(locationID string, eventName string, entityID string, data map[string]any) core.Notification {
	return core.Notification{
		Channel:   notify.LocationChannel(locationID),
		EventName: eventName,
		EntityID:  entityID,
		Data:      data,
	}
}

func projectNotice(projectID string, eventName string, data map[string]any) core.Notification {
	return core.Notification{
		Channel:   notify.ProjectChannel(projectID),
		EventName: eventName,
		EntityID:  projectID,
		Data:      data,
	}
}

func userNotice(userID string, eventName string, entityID string, data map[string]any) core.Notification {
	return core.Notification{
		Channel:   notify.UserChannel(userID),
		EventName: eventName,
		EntityID:  entityID,
		Data:      data,
	}
}

func registerAll(reg *processor.Registry, routes map[string]processor.HandlerFunc) error {
	if reg == nil {
		return fmt.Errorf("handlers: registry is nil")
	}
	for eventType, fn := range routes {
		if err := reg.Register(eventType, fn); err != nil {
			return err
		}
	}
	return nil
}

func timelineEntry(event string, description string, sourceType string, sourceID string, metadata map[string]any) core.TimelineEntry {
	return core.TimelineEntry{
		Event:       event,
		Description: description,
		SourceType:  sourceType,
		SourceID:    sourceID,
		Metadata:    metadata,
	}
}
