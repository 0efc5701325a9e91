package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-hookqueue/core"
	"github.com/goliatone/go-hookqueue/processor"
)

const (
	EventNameAppointmentCreated   = "appointment.created"
	EventNameAppointmentUpdated   = "appointment.updated"
	EventNameAppointmentDeleted   = "appointment.deleted"
	EventNameAppointmentScheduled = "appointment.scheduled"

	TimelineAppointmentScheduled = "appointment_scheduled"
)

// Appointments processes the appointments queue.
type Appointments struct {
	deps Deps
}

func NewAppointments(deps Deps) *Appointments {
	return &Appointments{deps: deps}
}

func (h *Appointments) Register(reg *processor.Registry) error {
	if err := h.deps.validate(); err != nil {
		return err
	}
	return registerAll(reg, map[string]processor.HandlerFunc{
		core.EventAppointmentCreate: h.create,
		core.EventAppointmentUpdate: h.update,
		core.EventAppointmentDelete: h.delete,
	})
}

// appointmentData unwraps the {appointment: {...}} shape some deliveries use.
func appointmentData(event core.Event) fields {
	data := fields(event.Data)
	if inner := data.object("appointment"); inner != nil {
		return inner
	}
	return data
}

func (h *Appointments) create(ctx context.Context, event core.Event) (core.Outcome, error) {
	data := appointmentData(event)
	externalID, tenantID, err := identity(event, data, "id", "appointmentId")
	if err != nil {
		return core.Outcome{}, err
	}

	var (
		saved   core.Appointment
		project core.Project
		created bool
		linked  bool
	)
	err = h.deps.UnitOfWork.RunInTx(ctx, func(ctx context.Context, tx core.Stores) error {
		appointment, err := h.build(ctx, tx, externalID, tenantID, data)
		if err != nil {
			return err
		}
		saved, created, err = tx.Appointments.UpsertAppointment(ctx, appointment)
		if err != nil {
			return err
		}
		if !created || saved.ExtContact == "" {
			return nil
		}
		project, err = tx.Projects.FindOpenProjectForContact(ctx, saved.ExtContact, tenantID)
		if err != nil {
			if isMissing(err) {
				return nil
			}
			return err
		}
		linked = true
		return tx.Projects.AppendTimeline(ctx, project.ID, timelineEntry(
			TimelineAppointmentScheduled,
			appointmentDescription(saved),
			"appointment",
			saved.ID,
			map[string]any{"start_time": timeValue(saved.StartTime), "status": saved.Status},
		))
	})
	if err != nil {
		return core.Outcome{}, err
	}

	summary := appointmentSummary(saved)
	outcome := core.Outcome{
		EntityID:      saved.ID,
		Notifications: []core.Notification{locationNotice(tenantID, EventNameAppointmentCreated, saved.ID, summary)},
	}
	if linked {
		outcome.Notifications = append(outcome.Notifications, projectNotice(project.ID, EventNameAppointmentScheduled, summary))
	}
	if created && saved.AssignedUserID != "" {
		outcome.Pushes = append(outcome.Pushes, core.PushNotification{
			UserID:   saved.AssignedUserID,
			EntityID: saved.ID,
			Event:    EventNameAppointmentScheduled,
			Message: core.PushMessage{
				Title: "New appointment",
				Body:  appointmentDescription(saved),
				Data:  summary,
			},
		})
	}
	return outcome, nil
}

// update falls back to create when the appointment was never stored.
func (h *Appointments) update(ctx context.Context, event core.Event) (core.Outcome, error) {
	data := appointmentData(event)
	externalID, tenantID, err := identity(event, data, "id", "appointmentId")
	if err != nil {
		return core.Outcome{}, err
	}
	stores := h.deps.stores()
	if _, err := stores.Appointments.FindAppointment(ctx, externalID, tenantID); err != nil {
		if isMissing(err) {
			return h.create(ctx, event)
		}
		return core.Outcome{}, err
	}
	appointment, err := h.build(ctx, stores, externalID, tenantID, data)
	if err != nil {
		return core.Outcome{}, err
	}
	saved, _, err := stores.Appointments.UpsertAppointment(ctx, appointment)
	if err != nil {
		return core.Outcome{}, err
	}
	return core.Outcome{
		EntityID: saved.ID,
		Notifications: []core.Notification{
			locationNotice(tenantID, EventNameAppointmentUpdated, saved.ID, appointmentSummary(saved)),
		},
	}, nil
}

func (h *Appointments) delete(ctx context.Context, event core.Event) (core.Outcome, error) {
	data := appointmentData(event)
	externalID, tenantID, err := identity(event, data, "id", "appointmentId")
	if err != nil {
		return core.Outcome{}, err
	}
	deleted, err := h.deps.stores().Appointments.SoftDeleteAppointment(ctx, externalID, tenantID, h.deps.now())
	if err != nil || !deleted {
		return core.Outcome{}, err
	}
	return core.Outcome{
		EntityID: externalID,
		Notifications: []core.Notification{
			locationNotice(tenantID, EventNameAppointmentDeleted, externalID, map[string]any{"external_id": externalID}),
		},
	}, nil
}

// build merges the payload over the stored appointment, if any.
func (h *Appointments) build(ctx context.Context, stores core.Stores, externalID string, tenantID string, data fields) (core.Appointment, error) {
	appointment, err := stores.Appointments.FindAppointment(ctx, externalID, tenantID)
	if err != nil {
		if !isMissing(err) {
			return core.Appointment{}, err
		}
		appointment = core.Appointment{ExternalID: externalID, LocationID: tenantID}
	}
	if data.has("contactId") {
		appointment.ExtContact = data.str("contactId")
		appointment.ContactID, err = resolveContact(ctx, stores, appointment.ExtContact, tenantID)
		if err != nil {
			return core.Appointment{}, err
		}
	}
	if data.has("calendarId") {
		appointment.CalendarID = data.str("calendarId")
	}
	if data.has("assignedUserId", "userId") {
		appointment.AssignedUserID = data.str("assignedUserId", "userId")
	}
	if data.has("title") {
		appointment.Title = truncate(data.str("title"), 255)
	}
	// The CRM API spells the status key "appoinmentStatus".
	if data.has("appointmentStatus", "appoinmentStatus", "status") {
		appointment.Status = data.str("appointmentStatus", "appoinmentStatus", "status")
	}
	if data.has("appointmentState") {
		appointment.AppointmentState = data.str("appointmentState")
	}
	if data.has("address") {
		appointment.Address = data.str("address")
	}
	if data.has("notes") {
		appointment.Notes = data.str("notes")
	}
	if start := data.time("startTime"); start != nil {
		appointment.StartTime = start
	}
	if end := data.time("endTime"); end != nil {
		appointment.EndTime = end
	}
	return appointment, nil
}

func appointmentDescription(appointment core.Appointment) string {
	title := firstNonEmpty(appointment.Title, "Appointment")
	if appointment.StartTime == nil {
		return title
	}
	return fmt.Sprintf("%s at %s", title, appointment.StartTime.UTC().Format(time.RFC3339))
}

func appointmentSummary(appointment core.Appointment) map[string]any {
	return map[string]any{
		"id":          appointment.ID,
		"external_id": appointment.ExternalID,
		"contact_id":  appointment.ExtContact,
		"title":       appointment.Title,
		"status":      appointment.Status,
		"start_time":  timeValue(appointment.StartTime),
	}
}

func timeValue(value *time.Time) string {
	if value == nil {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}
