package handlers

import (
	"context"
	"strings"

	"github.com/goliatone/go-hookqueue/core"
	"github.com/goliatone/go-hookqueue/processor"
)

const (
	EventNameContactCreated = "contact.created"
	EventNameContactUpdated = "contact.updated"
	EventNameContactDeleted = "contact.deleted"
	EventNameNoteCreated    = "note.created"
	EventNameNoteUpdated    = "note.updated"
	EventNameNoteDeleted    = "note.deleted"
)

// contactDetailKeys are the fields whose absence marks a webhook as id-only.
var contactDetailKeys = []string{"firstName", "lastName", "name", "fullName", "contactName", "email", "phone", "companyName"}

// Contacts processes the contacts queue.
type Contacts struct {
	deps Deps
}

func NewContacts(deps Deps) *Contacts {
	return &Contacts{deps: deps}
}

func (h *Contacts) Register(reg *processor.Registry) error {
	if err := h.deps.validate(); err != nil {
		return err
	}
	routes := map[string]processor.HandlerFunc{
		core.EventContactCreate:    h.create,
		core.EventContactUpdate:    h.update,
		core.EventContactDndUpdate: h.update,
		core.EventContactTagUpdate: h.update,
		core.EventContactDelete:    h.delete,
		core.EventNoteCreate:       h.noteCreate,
		core.EventNoteUpdate:       h.noteUpdate,
		core.EventNoteDelete:       h.noteDelete,
	}
	return registerAll(reg, routes)
}

func (h *Contacts) create(ctx context.Context, event core.Event) (core.Outcome, error) {
	return h.upsert(ctx, event, true)
}

func (h *Contacts) update(ctx context.Context, event core.Event) (core.Outcome, error) {
	return h.upsert(ctx, event, false)
}

// upsert overlays the fields present in the payload onto the stored contact.
// A missing contact takes the create path, enrichment included.
func (h *Contacts) upsert(ctx context.Context, event core.Event, created bool) (core.Outcome, error) {
	data := fields(event.Data)
	externalID, tenantID, err := identity(event, data, "id", "contactId")
	if err != nil {
		return core.Outcome{}, err
	}
	stores := h.deps.stores()

	contact, err := stores.Contacts.FindContact(ctx, externalID, tenantID)
	found := err == nil
	if err != nil && !isMissing(err) {
		return core.Outcome{}, err
	}
	if !found {
		contact = core.Contact{ExternalID: externalID, LocationID: tenantID}
		if !data.has(contactDetailKeys...) {
			if enriched, ok := h.enrich(ctx, event, tenantID, externalID); ok {
				data = overlay(enriched, data)
			} else {
				contact.NeedsEnrichment = true
			}
		}
	}
	applyContactFields(&contact, data)
	if data.has(contactDetailKeys...) {
		contact.NeedsEnrichment = false
	}
	if created {
		contact.Deleted = false
		contact.DeletedAt = nil
	}

	saved, _, err := stores.Contacts.UpsertContact(ctx, contact)
	if err != nil {
		return core.Outcome{}, err
	}

	eventName := EventNameContactUpdated
	if !found {
		eventName = EventNameContactCreated
	}
	summary := contactSummary(saved)
	outcome := core.Outcome{
		EntityID:      saved.ID,
		Notifications: []core.Notification{locationNotice(tenantID, eventName, saved.ID, summary)},
		Metadata:      map[string]any{"needs_enrichment": saved.NeedsEnrichment},
	}
	if saved.AssignedTo != "" {
		outcome.Notifications = append(outcome.Notifications, userNotice(saved.AssignedTo, eventName, saved.ID, summary))
	}
	return outcome, nil
}

func (h *Contacts) enrich(ctx context.Context, event core.Event, tenantID string, contactID string) (fields, bool) {
	if h.deps.Enricher == nil {
		return nil, false
	}
	logFields := map[string]any{
		"webhook_id":  event.WebhookID,
		"location_id": tenantID,
		"contact_id":  contactID,
	}
	location, err := h.deps.locations().GetLocation(ctx, tenantID)
	if err != nil {
		logFields["error"] = err.Error()
		h.deps.observer().LogWarn(ctx, "contact enrichment skipped", logFields)
		return nil, false
	}
	fetched, err := h.deps.Enricher.FetchContact(ctx, location, contactID)
	if err != nil {
		logFields["error"] = err.Error()
		h.deps.observer().LogWarn(ctx, "contact enrichment failed", logFields)
		return nil, false
	}
	return fields(fetched), true
}

func (h *Contacts) delete(ctx context.Context, event core.Event) (core.Outcome, error) {
	data := fields(event.Data)
	externalID, tenantID, err := identity(event, data, "id", "contactId")
	if err != nil {
		return core.Outcome{}, err
	}
	deleted, err := h.deps.stores().Contacts.SoftDeleteContact(ctx, externalID, tenantID, h.deps.now())
	if err != nil || !deleted {
		return core.Outcome{}, err
	}
	return core.Outcome{
		EntityID: externalID,
		Notifications: []core.Notification{
			locationNotice(tenantID, EventNameContactDeleted, externalID, map[string]any{"external_id": externalID}),
		},
	}, nil
}

func (h *Contacts) noteCreate(ctx context.Context, event core.Event) (core.Outcome, error) {
	return h.noteUpsert(ctx, event, EventNameNoteCreated)
}

func (h *Contacts) noteUpdate(ctx context.Context, event core.Event) (core.Outcome, error) {
	return h.noteUpsert(ctx, event, EventNameNoteUpdated)
}

func (h *Contacts) noteUpsert(ctx context.Context, event core.Event, eventName string) (core.Outcome, error) {
	data := fields(event.Data)
	externalID, tenantID, err := identity(event, data, "id", "noteId")
	if err != nil {
		return core.Outcome{}, err
	}
	stores := h.deps.stores()
	extContact := data.str("contactId")
	contactID, err := resolveContact(ctx, stores, extContact, tenantID)
	if err != nil {
		return core.Outcome{}, err
	}
	note, _, err := stores.Contacts.UpsertNote(ctx, core.Note{
		ExternalID: externalID,
		LocationID: tenantID,
		ContactID:  contactID,
		ExtContact: extContact,
		Body:       data.str("body"),
		UserID:     data.str("userId"),
	})
	if err != nil {
		return core.Outcome{}, err
	}
	return core.Outcome{
		EntityID: note.ID,
		Notifications: []core.Notification{
			locationNotice(tenantID, eventName, note.ID, map[string]any{
				"id":          note.ID,
				"external_id": note.ExternalID,
				"contact_id":  note.ExtContact,
			}),
		},
	}, nil
}

func (h *Contacts) noteDelete(ctx context.Context, event core.Event) (core.Outcome, error) {
	data := fields(event.Data)
	externalID, tenantID, err := identity(event, data, "id", "noteId")
	if err != nil {
		return core.Outcome{}, err
	}
	deleted, err := h.deps.stores().Contacts.SoftDeleteNote(ctx, externalID, tenantID, h.deps.now())
	if err != nil || !deleted {
		return core.Outcome{}, err
	}
	return core.Outcome{
		EntityID: externalID,
		Notifications: []core.Notification{
			locationNotice(tenantID, EventNameNoteDeleted, externalID, map[string]any{"external_id": externalID}),
		},
	}, nil
}

func applyContactFields(contact *core.Contact, data fields) {
	if data.has("firstName") {
		contact.FirstName = data.str("firstName")
	}
	if data.has("lastName") {
		contact.LastName = data.str("lastName")
	}
	if data.has("name", "fullName", "contactName") {
		contact.FullName = data.str("name", "fullName", "contactName")
	}
	if contact.FullName == "" {
		contact.FullName = strings.TrimSpace(contact.FirstName + " " + contact.LastName)
	}
	if data.has("email") {
		contact.Email = strings.ToLower(data.str("email"))
	}
	if data.has("phone") {
		contact.Phone = data.str("phone")
	}
	if data.has("companyName") {
		contact.CompanyName = data.str("companyName")
	}
	if data.has("source") {
		contact.Source = data.str("source")
	}
	if data.has("assignedTo") {
		contact.AssignedTo = data.str("assignedTo")
	}
	if data.has("tags") {
		contact.Tags = data.strings("tags")
	}
	if data.has("dnd") {
		contact.DND = data.flag("dnd")
	}
	if data.has("customFields", "customField") {
		contact.CustomFields = customFieldMap(data, "customFields", "customField")
	}
	if data.has("address1", "city", "state", "postalCode", "country") {
		address := map[string]any{}
		for _, key := range []string{"address1", "city", "state", "postalCode", "country"} {
			if value := data.str(key); value != "" {
				address[key] = value
			}
		}
		contact.Address = address
	}
}

// customFieldMap accepts both [{id, value}] lists and plain objects.
func customFieldMap(data fields, keys ...string) map[string]any {
	out := map[string]any{}
	if object := data.object(keys...); object != nil {
		for key, value := range object {
			out[key] = value
		}
		return out
	}
	for _, entry := range data.objects(keys...) {
		item := fields(entry)
		id := item.str("id", "key")
		if id == "" {
			continue
		}
		if value, ok := entry["value"]; ok {
			out[id] = value
			continue
		}
		out[id] = entry["field_value"]
	}
	return out
}

func contactSummary(contact core.Contact) map[string]any {
	return map[string]any{
		"id":               contact.ID,
		"external_id":      contact.ExternalID,
		"name":             contact.FullName,
		"email":            contact.Email,
		"needs_enrichment": contact.NeedsEnrichment,
	}
}

// overlay returns base with every key of top applied over it.
func overlay(base fields, top fields) fields {
	out := make(fields, len(base)+len(top))
	for key, value := range base {
		out[key] = value
	}
	for key, value := range top {
		out[key] = value
	}
	return out
}
