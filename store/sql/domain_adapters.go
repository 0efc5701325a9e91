package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-hookqueue/core"
)

func newWorkItemRecord(item core.WorkItem) *workItemRecord {
	return &workItemRecord{
		ID:             item.ID,
		QueueType:      string(item.QueueType),
		Type:           item.Type,
		WebhookID:      item.WebhookID,
		TenantID:       item.TenantID,
		CompanyID:      item.CompanyID,
		Payload:        copyAnyMap(item.Payload),
		Priority:       item.Priority,
		Attempts:       item.Attempts,
		MaxAttempts:    item.MaxAttempts,
		Status:         string(item.Status),
		ClaimID:        item.ClaimID,
		LeaseExpiresAt: cloneTimePointer(item.LeaseExpiresAt),
		NextAttemptAt:  cloneTimePointer(item.NextAttemptAt),
		LastError:      item.LastError,
		DeadAt:         cloneTimePointer(item.DeadAt),
		CreatedAt:      item.CreatedAt.UTC(),
		UpdatedAt:      item.UpdatedAt.UTC(),
	}
}

func (r *workItemRecord) toDomain() core.WorkItem {
	return core.WorkItem{
		ID:             r.ID,
		QueueType:      core.QueueType(r.QueueType),
		Type:           r.Type,
		WebhookID:      r.WebhookID,
		TenantID:       r.TenantID,
		CompanyID:      r.CompanyID,
		Payload:        copyAnyMap(r.Payload),
		Priority:       r.Priority,
		Attempts:       r.Attempts,
		MaxAttempts:    r.MaxAttempts,
		Status:         core.WorkItemStatus(r.Status),
		ClaimID:        r.ClaimID,
		LeaseExpiresAt: cloneTimePointer(r.LeaseExpiresAt),
		NextAttemptAt:  cloneTimePointer(r.NextAttemptAt),
		LastError:      r.LastError,
		DeadAt:         cloneTimePointer(r.DeadAt),
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func newWebhookMetricRecord(metric core.WebhookMetric) *webhookMetricRecord {
	return &webhookMetricRecord{
		WebhookID:             metric.WebhookID,
		Type:                  metric.Type,
		QueueType:             string(metric.QueueType),
		TenantID:              metric.TenantID,
		Status:                string(metric.Status),
		Attempts:              metric.Attempts,
		ReceivedAt:            metric.ReceivedAt.UTC(),
		ProcessingStartedAt:   cloneTimePointer(metric.ProcessingStartedAt),
		ProcessingCompletedAt: cloneTimePointer(metric.ProcessingCompletedAt),
		QueueWaitMs:           metric.QueueWaitMs,
		ProcessingMs:          metric.ProcessingMs,
		TotalMs:               metric.TotalMs,
		SLATargetMs:           metric.SLATargetMs,
		ExceedsSLA:            metric.ExceedsSLA,
		ErrorReason:           metric.ErrorReason,
	}
}

func (r *webhookMetricRecord) toDomain() core.WebhookMetric {
	return core.WebhookMetric{
		WebhookID:             r.WebhookID,
		Type:                  r.Type,
		QueueType:             core.QueueType(r.QueueType),
		TenantID:              r.TenantID,
		Status:                core.MetricStatus(r.Status),
		Attempts:              r.Attempts,
		ReceivedAt:            r.ReceivedAt.UTC(),
		ProcessingStartedAt:   cloneTimePointer(r.ProcessingStartedAt),
		ProcessingCompletedAt: cloneTimePointer(r.ProcessingCompletedAt),
		QueueWaitMs:           r.QueueWaitMs,
		ProcessingMs:          r.ProcessingMs,
		TotalMs:               r.TotalMs,
		SLATargetMs:           r.SLATargetMs,
		ExceedsSLA:            r.ExceedsSLA,
		ErrorReason:           r.ErrorReason,
	}
}

func newLocationRecord(location core.Location) *locationRecord {
	return &locationRecord{
		ID:             location.ID,
		ExternalID:     location.ExternalID,
		CompanyID:      location.CompanyID,
		Name:           location.Name,
		Plan:           location.Plan,
		Status:         string(location.Status),
		AccessToken:    location.AccessToken,
		TokenExpiresAt: cloneTimePointer(location.TokenExpiresAt),
		Timezone:       location.Timezone,
		OwnerUserID:    location.OwnerUserID,
		Settings:       copyAnyMap(location.Settings),
		InstalledAt:    cloneTimePointer(location.InstalledAt),
		UninstalledAt:  cloneTimePointer(location.UninstalledAt),
		CreatedAt:      location.CreatedAt.UTC(),
		UpdatedAt:      location.UpdatedAt.UTC(),
	}
}

func (r *locationRecord) toDomain() core.Location {
	return core.Location{
		ID:             r.ID,
		ExternalID:     r.ExternalID,
		CompanyID:      r.CompanyID,
		Name:           r.Name,
		Plan:           r.Plan,
		Status:         core.LocationStatus(r.Status),
		AccessToken:    r.AccessToken,
		TokenExpiresAt: cloneTimePointer(r.TokenExpiresAt),
		Timezone:       r.Timezone,
		OwnerUserID:    r.OwnerUserID,
		Settings:       copyAnyMap(r.Settings),
		InstalledAt:    cloneTimePointer(r.InstalledAt),
		UninstalledAt:  cloneTimePointer(r.UninstalledAt),
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func newContactRecord(contact core.Contact) *contactRecord {
	return &contactRecord{
		ID:              contact.ID,
		ExternalID:      contact.ExternalID,
		LocationID:      contact.LocationID,
		FirstName:       contact.FirstName,
		LastName:        contact.LastName,
		FullName:        contact.FullName,
		Email:           contact.Email,
		Phone:           contact.Phone,
		CompanyName:     contact.CompanyName,
		Source:          contact.Source,
		AssignedTo:      contact.AssignedTo,
		Tags:            copyStrings(contact.Tags),
		DND:             contact.DND,
		CustomFields:    copyAnyMap(contact.CustomFields),
		Address:         copyAnyMap(contact.Address),
		NeedsEnrichment: contact.NeedsEnrichment,
		Deleted:         contact.Deleted,
		DeletedAt:       cloneTimePointer(contact.DeletedAt),
		CreatedAt:       contact.CreatedAt.UTC(),
		UpdatedAt:       contact.UpdatedAt.UTC(),
	}
}

func (r *contactRecord) toDomain() core.Contact {
	return core.Contact{
		ID:              r.ID,
		ExternalID:      r.ExternalID,
		LocationID:      r.LocationID,
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		FullName:        r.FullName,
		Email:           r.Email,
		Phone:           r.Phone,
		CompanyName:     r.CompanyName,
		Source:          r.Source,
		AssignedTo:      r.AssignedTo,
		Tags:            copyStrings(r.Tags),
		DND:             r.DND,
		CustomFields:    copyAnyMap(r.CustomFields),
		Address:         copyAnyMap(r.Address),
		NeedsEnrichment: r.NeedsEnrichment,
		Deleted:         r.Deleted,
		DeletedAt:       cloneTimePointer(r.DeletedAt),
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

func newNoteRecord(note core.Note) *noteRecord {
	return &noteRecord{
		ID:         note.ID,
		ExternalID: note.ExternalID,
		LocationID: note.LocationID,
		ContactID:  nullableString(note.ContactID),
		ExtContact: note.ExtContact,
		Body:       note.Body,
		UserID:     note.UserID,
		Deleted:    note.Deleted,
		DeletedAt:  cloneTimePointer(note.DeletedAt),
		CreatedAt:  note.CreatedAt.UTC(),
		UpdatedAt:  note.UpdatedAt.UTC(),
	}
}

func (r *noteRecord) toDomain() core.Note {
	return core.Note{
		ID:         r.ID,
		ExternalID: r.ExternalID,
		LocationID: r.LocationID,
		ContactID:  derefString(r.ContactID),
		ExtContact: r.ExtContact,
		Body:       r.Body,
		UserID:     r.UserID,
		Deleted:    r.Deleted,
		DeletedAt:  cloneTimePointer(r.DeletedAt),
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

func newAppointmentRecord(appointment core.Appointment) *appointmentRecord {
	return &appointmentRecord{
		ID:               appointment.ID,
		ExternalID:       appointment.ExternalID,
		LocationID:       appointment.LocationID,
		CalendarID:       appointment.CalendarID,
		ContactID:        nullableString(appointment.ContactID),
		ExtContact:       appointment.ExtContact,
		AssignedUserID:   appointment.AssignedUserID,
		Title:            appointment.Title,
		Status:           appointment.Status,
		AppointmentState: appointment.AppointmentState,
		Address:          appointment.Address,
		Notes:            appointment.Notes,
		StartTime:        cloneTimePointer(appointment.StartTime),
		EndTime:          cloneTimePointer(appointment.EndTime),
		Deleted:          appointment.Deleted,
		DeletedAt:        cloneTimePointer(appointment.DeletedAt),
		CreatedAt:        appointment.CreatedAt.UTC(),
		UpdatedAt:        appointment.UpdatedAt.UTC(),
	}
}

func (r *appointmentRecord) toDomain() core.Appointment {
	return core.Appointment{
		ID:               r.ID,
		ExternalID:       r.ExternalID,
		LocationID:       r.LocationID,
		CalendarID:       r.CalendarID,
		ContactID:        derefString(r.ContactID),
		ExtContact:       r.ExtContact,
		AssignedUserID:   r.AssignedUserID,
		Title:            r.Title,
		Status:           r.Status,
		AppointmentState: r.AppointmentState,
		Address:          r.Address,
		Notes:            r.Notes,
		StartTime:        cloneTimePointer(r.StartTime),
		EndTime:          cloneTimePointer(r.EndTime),
		Deleted:          r.Deleted,
		DeletedAt:        cloneTimePointer(r.DeletedAt),
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

func newInvoiceRecord(invoice core.Invoice) *invoiceRecord {
	kind := invoice.Kind
	if kind == "" {
		kind = core.InvoiceKindInvoice
	}
	return &invoiceRecord{
		ID:            invoice.ID,
		ExternalID:    invoice.ExternalID,
		LocationID:    invoice.LocationID,
		Kind:          string(kind),
		Number:        invoice.Number,
		Name:          invoice.Name,
		ContactID:     nullableString(invoice.ContactID),
		ExtContact:    invoice.ExtContact,
		OpportunityID: invoice.OpportunityID,
		Status:        invoice.Status,
		Currency:      invoice.Currency,
		Total:         invoice.Total,
		AmountPaid:    invoice.AmountPaid,
		AmountDue:     invoice.AmountDue,
		IssueDate:     cloneTimePointer(invoice.IssueDate),
		DueDate:       cloneTimePointer(invoice.DueDate),
		PaidAt:        cloneTimePointer(invoice.PaidAt),
		LineItems:     copyMapSlice(invoice.LineItems),
		Deleted:       invoice.Deleted,
		DeletedAt:     cloneTimePointer(invoice.DeletedAt),
		CreatedAt:     invoice.CreatedAt.UTC(),
		UpdatedAt:     invoice.UpdatedAt.UTC(),
	}
}

func (r *invoiceRecord) toDomain() core.Invoice {
	return core.Invoice{
		ID:            r.ID,
		ExternalID:    r.ExternalID,
		LocationID:    r.LocationID,
		Kind:          core.InvoiceKind(r.Kind),
		Number:        r.Number,
		Name:          r.Name,
		ContactID:     derefString(r.ContactID),
		ExtContact:    r.ExtContact,
		OpportunityID: r.OpportunityID,
		Status:        r.Status,
		Currency:      r.Currency,
		Total:         r.Total,
		AmountPaid:    r.AmountPaid,
		AmountDue:     r.AmountDue,
		IssueDate:     cloneTimePointer(r.IssueDate),
		DueDate:       cloneTimePointer(r.DueDate),
		PaidAt:        cloneTimePointer(r.PaidAt),
		LineItems:     copyMapSlice(r.LineItems),
		Deleted:       r.Deleted,
		DeletedAt:     cloneTimePointer(r.DeletedAt),
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

func newProjectRecord(project core.Project) *projectRecord {
	status := project.Status
	if status == "" {
		status = core.ProjectStatusOpen
	}
	return &projectRecord{
		ID:              project.ID,
		OpportunityID:   project.OpportunityID,
		LocationID:      project.LocationID,
		ContactID:       nullableString(project.ContactID),
		ExtContact:      project.ExtContact,
		Title:           project.Title,
		Status:          string(status),
		PipelineID:      project.PipelineID,
		PipelineStageID: project.PipelineStageID,
		MonetaryValue:   project.MonetaryValue,
		AssignedTo:      project.AssignedTo,
		Timeline:        copyTimeline(project.Timeline),
		Deleted:         project.Deleted,
		DeletedAt:       cloneTimePointer(project.DeletedAt),
		CreatedAt:       project.CreatedAt.UTC(),
		UpdatedAt:       project.UpdatedAt.UTC(),
	}
}

func (r *projectRecord) toDomain() core.Project {
	return core.Project{
		ID:              r.ID,
		OpportunityID:   r.OpportunityID,
		LocationID:      r.LocationID,
		ContactID:       derefString(r.ContactID),
		ExtContact:      r.ExtContact,
		Title:           r.Title,
		Status:          core.ProjectStatus(r.Status),
		PipelineID:      r.PipelineID,
		PipelineStageID: r.PipelineStageID,
		MonetaryValue:   r.MonetaryValue,
		AssignedTo:      r.AssignedTo,
		Timeline:        copyTimeline(r.Timeline),
		Deleted:         r.Deleted,
		DeletedAt:       cloneTimePointer(r.DeletedAt),
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

func newTaskRecord(task core.Task) *taskRecord {
	return &taskRecord{
		ID:         task.ID,
		ExternalID: task.ExternalID,
		LocationID: task.LocationID,
		ContactID:  nullableString(task.ContactID),
		ExtContact: task.ExtContact,
		ProjectID:  nullableString(task.ProjectID),
		Title:      task.Title,
		Body:       task.Body,
		AssignedTo: task.AssignedTo,
		DueDate:    cloneTimePointer(task.DueDate),
		Completed:  task.Completed,
		Deleted:    task.Deleted,
		DeletedAt:  cloneTimePointer(task.DeletedAt),
		CreatedAt:  task.CreatedAt.UTC(),
		UpdatedAt:  task.UpdatedAt.UTC(),
	}
}

func (r *taskRecord) toDomain() core.Task {
	return core.Task{
		ID:         r.ID,
		ExternalID: r.ExternalID,
		LocationID: r.LocationID,
		ContactID:  derefString(r.ContactID),
		ExtContact: r.ExtContact,
		ProjectID:  derefString(r.ProjectID),
		Title:      r.Title,
		Body:       r.Body,
		AssignedTo: r.AssignedTo,
		DueDate:    cloneTimePointer(r.DueDate),
		Completed:  r.Completed,
		Deleted:    r.Deleted,
		DeletedAt:  cloneTimePointer(r.DeletedAt),
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

func newMessageRecord(message core.Message) *messageRecord {
	return &messageRecord{
		ID:             message.ID,
		ExternalID:     message.ExternalID,
		LocationID:     message.LocationID,
		ConversationID: nullableString(message.ConversationID),
		ExtConv:        message.ExtConv,
		ContactID:      nullableString(message.ContactID),
		ExtContact:     message.ExtContact,
		Direction:      message.Direction,
		MessageType:    message.MessageType,
		Body:           message.Body,
		Status:         message.Status,
		Attachments:    copyStrings(message.Attachments),
		UserID:         message.UserID,
		SentAt:         cloneTimePointer(message.SentAt),
		Deleted:        message.Deleted,
		DeletedAt:      cloneTimePointer(message.DeletedAt),
		CreatedAt:      message.CreatedAt.UTC(),
		UpdatedAt:      message.UpdatedAt.UTC(),
	}
}

func (r *messageRecord) toDomain() core.Message {
	return core.Message{
		ID:             r.ID,
		ExternalID:     r.ExternalID,
		LocationID:     r.LocationID,
		ConversationID: derefString(r.ConversationID),
		ExtConv:        r.ExtConv,
		ContactID:      derefString(r.ContactID),
		ExtContact:     r.ExtContact,
		Direction:      r.Direction,
		MessageType:    r.MessageType,
		Body:           r.Body,
		Status:         r.Status,
		Attachments:    copyStrings(r.Attachments),
		UserID:         r.UserID,
		SentAt:         cloneTimePointer(r.SentAt),
		Deleted:        r.Deleted,
		DeletedAt:      cloneTimePointer(r.DeletedAt),
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func newConversationRecord(conversation core.Conversation) *conversationRecord {
	return &conversationRecord{
		ID:              conversation.ID,
		ExternalID:      conversation.ExternalID,
		LocationID:      conversation.LocationID,
		ContactID:       nullableString(conversation.ContactID),
		ExtContact:      conversation.ExtContact,
		AssignedTo:      conversation.AssignedTo,
		LastMessageBody: conversation.LastMessageBody,
		LastMessageType: conversation.LastMessageType,
		LastMessageAt:   cloneTimePointer(conversation.LastMessageAt),
		UnreadCount:     conversation.UnreadCount,
		Deleted:         conversation.Deleted,
		DeletedAt:       cloneTimePointer(conversation.DeletedAt),
		CreatedAt:       conversation.CreatedAt.UTC(),
		UpdatedAt:       conversation.UpdatedAt.UTC(),
	}
}

func (r *conversationRecord) toDomain() core.Conversation {
	return core.Conversation{
		ID:              r.ID,
		ExternalID:      r.ExternalID,
		LocationID:      r.LocationID,
		ContactID:       derefString(r.ContactID),
		ExtContact:      r.ExtContact,
		AssignedTo:      r.AssignedTo,
		LastMessageBody: r.LastMessageBody,
		LastMessageType: r.LastMessageType,
		LastMessageAt:   cloneTimePointer(r.LastMessageAt),
		UnreadCount:     r.UnreadCount,
		Deleted:         r.Deleted,
		DeletedAt:       cloneTimePointer(r.DeletedAt),
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

func newUserRecord(user core.UserRecord) *userRecord {
	return &userRecord{
		ID:         user.ID,
		ExternalID: user.ExternalID,
		LocationID: user.LocationID,
		Name:       user.Name,
		Email:      user.Email,
		Role:       user.Role,
		CreatedAt:  user.CreatedAt.UTC(),
		UpdatedAt:  user.UpdatedAt.UTC(),
	}
}

func (r *userRecord) toDomain() core.UserRecord {
	return core.UserRecord{
		ID:         r.ID,
		ExternalID: r.ExternalID,
		LocationID: r.LocationID,
		Name:       r.Name,
		Email:      r.Email,
		Role:       r.Role,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

// The record identity methods feed the generic upsert helpers.

func (r *contactRecord) identity() (string, time.Time)      { return r.ID, r.CreatedAt }
func (r *noteRecord) identity() (string, time.Time)         { return r.ID, r.CreatedAt }
func (r *appointmentRecord) identity() (string, time.Time)  { return r.ID, r.CreatedAt }
func (r *invoiceRecord) identity() (string, time.Time)      { return r.ID, r.CreatedAt }
func (r *projectRecord) identity() (string, time.Time)      { return r.ID, r.CreatedAt }
func (r *taskRecord) identity() (string, time.Time)         { return r.ID, r.CreatedAt }
func (r *messageRecord) identity() (string, time.Time)      { return r.ID, r.CreatedAt }
func (r *conversationRecord) identity() (string, time.Time) { return r.ID, r.CreatedAt }
func (r *userRecord) identity() (string, time.Time)         { return r.ID, r.CreatedAt }
func (r *locationRecord) identity() (string, time.Time)     { return r.ID, r.CreatedAt }

func (r *contactRecord) adopt(id string, createdAt time.Time)      { r.ID, r.CreatedAt = id, createdAt }
func (r *noteRecord) adopt(id string, createdAt time.Time)         { r.ID, r.CreatedAt = id, createdAt }
func (r *appointmentRecord) adopt(id string, createdAt time.Time)  { r.ID, r.CreatedAt = id, createdAt }
func (r *invoiceRecord) adopt(id string, createdAt time.Time)      { r.ID, r.CreatedAt = id, createdAt }
func (r *projectRecord) adopt(id string, createdAt time.Time)      { r.ID, r.CreatedAt = id, createdAt }
func (r *taskRecord) adopt(id string, createdAt time.Time)         { r.ID, r.CreatedAt = id, createdAt }
func (r *messageRecord) adopt(id string, createdAt time.Time)      { r.ID, r.CreatedAt = id, createdAt }
func (r *conversationRecord) adopt(id string, createdAt time.Time) { r.ID, r.CreatedAt = id, createdAt }
func (r *userRecord) adopt(id string, createdAt time.Time)         { r.ID, r.CreatedAt = id, createdAt }
func (r *locationRecord) adopt(id string, createdAt time.Time)     { r.ID, r.CreatedAt = id, createdAt }

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func copyStrings(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	return append([]string(nil), in...)
}

func copyMapSlice(in []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(in))
	for _, item := range in {
		out = append(out, copyAnyMap(item))
	}
	return out
}

func copyTimeline(in []core.TimelineEntry) []core.TimelineEntry {
	out := make([]core.TimelineEntry, 0, len(in))
	for _, entry := range in {
		entry.Metadata = copyAnyMap(entry.Metadata)
		out = append(out, entry)
	}
	return out
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil || input.IsZero() {
		return nil
	}
	value := input.UTC()
	return &value
}

func nullableString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
