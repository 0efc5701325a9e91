package handlers

import (
	"context"
	"fmt"

	"github.com/goliatone/go-hookqueue/core"
	"github.com/goliatone/go-hookqueue/processor"
)

const (
	EventNameInvoiceCreated       = "invoice.created"
	EventNameInvoiceUpdated       = "invoice.updated"
	EventNameInvoiceSent          = "invoice.sent"
	EventNameInvoicePaid          = "invoice.paid"
	EventNameInvoicePartiallyPaid = "invoice.partially_paid"
	EventNameInvoiceVoided        = "invoice.voided"
	EventNameInvoiceDeleted       = "invoice.deleted"
	EventNameOrderCreated         = "order.created"
	EventNameOrderUpdated         = "order.updated"

	TimelineInvoicePaid          = "invoice_paid"
	TimelineInvoicePartiallyPaid = "invoice_partially_paid"

	InvoiceStatusSent          = "sent"
	InvoiceStatusPaid          = "paid"
	InvoiceStatusPartiallyPaid = "partially_paid"
	InvoiceStatusVoid          = "void"
)

var invoiceIDKeys = []string{"_id", "id", "invoiceId", "orderId"}

// Financial processes invoices and orders.
type Financial struct {
	deps Deps
}

func NewFinancial(deps Deps) *Financial {
	return &Financial{deps: deps}
}

func (h *Financial) Register(reg *processor.Registry) error {
	if err := h.deps.validate(); err != nil {
		return err
	}
	return registerAll(reg, map[string]processor.HandlerFunc{
		core.EventInvoiceCreate: h.invoice(EventNameInvoiceCreated, core.InvoiceKindInvoice, ""),
		core.EventInvoiceUpdate: h.invoice(EventNameInvoiceUpdated, core.InvoiceKindInvoice, ""),
		core.EventInvoiceSent:   h.invoice(EventNameInvoiceSent, core.InvoiceKindInvoice, InvoiceStatusSent),
		core.EventInvoiceVoid:   h.invoice(EventNameInvoiceVoided, core.InvoiceKindInvoice, InvoiceStatusVoid),
		core.EventInvoicePaid: func(ctx context.Context, event core.Event) (core.Outcome, error) {
			return h.payment(ctx, event, InvoiceStatusPaid, TimelineInvoicePaid, EventNameInvoicePaid)
		},
		core.EventInvoicePartiallyPaid: func(ctx context.Context, event core.Event) (core.Outcome, error) {
			return h.payment(ctx, event, InvoiceStatusPartiallyPaid, TimelineInvoicePartiallyPaid, EventNameInvoicePartiallyPaid)
		},
		core.EventInvoiceDelete:     h.delete,
		core.EventOrderCreate:       h.invoice(EventNameOrderCreated, core.InvoiceKindOrder, ""),
		core.EventOrderStatusUpdate: h.invoice(EventNameOrderUpdated, core.InvoiceKindOrder, ""),
	})
}

// financialTenant falls back to altId, which invoice payloads carry in place
// of locationId.
func financialTenant(event core.Event, data fields) core.Event {
	if event.TenantID == "" {
		event.TenantID = data.str("altId")
	}
	return event
}

func (h *Financial) invoice(eventName string, kind core.InvoiceKind, status string) processor.HandlerFunc {
	return func(ctx context.Context, event core.Event) (core.Outcome, error) {
		data := fields(event.Data)
		event = financialTenant(event, data)
		externalID, tenantID, err := identity(event, data, invoiceIDKeys...)
		if err != nil {
			return core.Outcome{}, err
		}
		stores := h.deps.stores()
		invoice, _, err := h.build(ctx, stores, externalID, tenantID, kind, data)
		if err != nil {
			return core.Outcome{}, err
		}
		if status != "" {
			invoice.Status = status
		}
		saved, _, err := stores.Invoices.UpsertInvoice(ctx, invoice)
		if err != nil {
			return core.Outcome{}, err
		}
		return core.Outcome{
			EntityID: saved.ID,
			Notifications: []core.Notification{
				locationNotice(tenantID, eventName, saved.ID, invoiceSummary(saved)),
			},
		}, nil
	}
}

// payment records a payment and, when it changed the invoice, appends a
// timeline entry to the linked project in the same transaction.
func (h *Financial) payment(ctx context.Context, event core.Event, status string, timelineEvent string, eventName string) (core.Outcome, error) {
	data := fields(event.Data)
	event = financialTenant(event, data)
	externalID, tenantID, err := identity(event, data, invoiceIDKeys...)
	if err != nil {
		return core.Outcome{}, err
	}

	var (
		saved   core.Invoice
		project core.Project
		linked  bool
	)
	err = h.deps.UnitOfWork.RunInTx(ctx, func(ctx context.Context, tx core.Stores) error {
		invoice, previous, err := h.build(ctx, tx, externalID, tenantID, core.InvoiceKindInvoice, data)
		if err != nil {
			return err
		}
		if !data.has("status") || invoice.Status == "" {
			invoice.Status = status
		}
		if invoice.PaidAt == nil && status == InvoiceStatusPaid {
			paidAt := h.deps.now()
			if at := data.time("paidAt", "updatedAt"); at != nil {
				paidAt = *at
			}
			invoice.PaidAt = &paidAt
		}
		saved, _, err = tx.Invoices.UpsertInvoice(ctx, invoice)
		if err != nil {
			return err
		}
		if previous != nil && previous.Status == saved.Status && previous.AmountPaid == saved.AmountPaid {
			return nil
		}
		if saved.OpportunityID == "" {
			return nil
		}
		project, err = tx.Projects.FindProjectByOpportunity(ctx, saved.OpportunityID, tenantID)
		if err != nil {
			if isMissing(err) {
				return nil
			}
			return err
		}
		linked = true
		return tx.Projects.AppendTimeline(ctx, project.ID, timelineEntry(
			timelineEvent,
			fmt.Sprintf("Invoice %s: %.2f of %.2f %s paid", firstNonEmpty(saved.Number, saved.Name, saved.ExternalID), saved.AmountPaid, saved.Total, saved.Currency),
			"invoice",
			saved.ID,
			map[string]any{
				"amount_paid": saved.AmountPaid,
				"amount_due":  saved.AmountDue,
				"total":       saved.Total,
				"currency":    saved.Currency,
			},
		))
	})
	if err != nil {
		return core.Outcome{}, err
	}

	summary := invoiceSummary(saved)
	outcome := core.Outcome{
		EntityID:      saved.ID,
		Notifications: []core.Notification{locationNotice(tenantID, eventName, saved.ID, summary)},
	}
	if linked {
		outcome.Notifications = append(outcome.Notifications, projectNotice(project.ID, eventName, summary))
		if project.AssignedTo != "" {
			outcome.Pushes = append(outcome.Pushes, core.PushNotification{
				UserID:   project.AssignedTo,
				EntityID: saved.ID,
				Event:    eventName,
				Message: core.PushMessage{
					Title: "Payment received",
					Body:  fmt.Sprintf("%.2f %s received for %s", saved.AmountPaid, saved.Currency, firstNonEmpty(project.Title, saved.Name)),
					Data:  summary,
				},
			})
		}
	}
	return outcome, nil
}

func (h *Financial) delete(ctx context.Context, event core.Event) (core.Outcome, error) {
	data := fields(event.Data)
	event = financialTenant(event, data)
	externalID, tenantID, err := identity(event, data, invoiceIDKeys...)
	if err != nil {
		return core.Outcome{}, err
	}
	deleted, err := h.deps.stores().Invoices.SoftDeleteInvoice(ctx, externalID, tenantID, h.deps.now())
	if err != nil || !deleted {
		return core.Outcome{}, err
	}
	return core.Outcome{
		EntityID: externalID,
		Notifications: []core.Notification{
			locationNotice(tenantID, EventNameInvoiceDeleted, externalID, map[string]any{"external_id": externalID}),
		},
	}, nil
}

// build merges the payload over the stored invoice and also returns the
// stored copy, nil when the invoice is new.
func (h *Financial) build(ctx context.Context, stores core.Stores, externalID string, tenantID string, kind core.InvoiceKind, data fields) (core.Invoice, *core.Invoice, error) {
	var previous *core.Invoice
	invoice, err := stores.Invoices.FindInvoice(ctx, externalID, tenantID)
	if err != nil {
		if !isMissing(err) {
			return core.Invoice{}, nil, err
		}
		invoice = core.Invoice{ExternalID: externalID, LocationID: tenantID, Kind: kind}
	} else {
		stored := invoice
		previous = &stored
	}
	if invoice.Kind == "" {
		invoice.Kind = kind
	}

	contactDetails := data.object("contactDetails", "contactSnapshot")
	if extContact := firstNonEmpty(data.str("contactId"), contactDetails.str("id", "_id")); extContact != "" {
		invoice.ExtContact = extContact
		invoice.ContactID, err = resolveContact(ctx, stores, extContact, tenantID)
		if err != nil {
			return core.Invoice{}, nil, err
		}
	}
	if opportunityID := firstNonEmpty(data.str("opportunityId"), data.object("opportunityDetails").str("opportunityId", "id")); opportunityID != "" {
		invoice.OpportunityID = opportunityID
	}
	if data.has("invoiceNumber", "number") {
		invoice.Number = data.str("invoiceNumber", "number")
	}
	if data.has("name", "title") {
		invoice.Name = truncate(data.str("name", "title"), 255)
	}
	if data.has("status") {
		invoice.Status = data.str("status")
	}
	if data.has("currency") {
		invoice.Currency = data.str("currency")
	}
	if data.has("total", "amount") {
		invoice.Total = data.num("total", "amount")
	}
	if data.has("amountPaid") {
		invoice.AmountPaid = data.num("amountPaid")
	}
	if data.has("amountDue") {
		invoice.AmountDue = data.num("amountDue")
	} else if data.has("total", "amount", "amountPaid") {
		invoice.AmountDue = invoice.Total - invoice.AmountPaid
		if invoice.AmountDue < 0 {
			invoice.AmountDue = 0
		}
	}
	if issued := data.time("issueDate", "createdAt"); issued != nil {
		invoice.IssueDate = issued
	}
	if due := data.time("dueDate"); due != nil {
		invoice.DueDate = due
	}
	if items := data.objects("invoiceItems", "items", "lineItems"); items != nil {
		invoice.LineItems = items
	}
	return invoice, previous, nil
}

func invoiceSummary(invoice core.Invoice) map[string]any {
	return map[string]any{
		"id":             invoice.ID,
		"external_id":    invoice.ExternalID,
		"kind":           string(invoice.Kind),
		"number":         invoice.Number,
		"status":         invoice.Status,
		"total":          invoice.Total,
		"amount_paid":    invoice.AmountPaid,
		"amount_due":     invoice.AmountDue,
		"currency":       invoice.Currency,
		"opportunity_id": invoice.OpportunityID,
	}
}
