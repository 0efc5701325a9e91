package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-hookqueue/core"
	"github.com/goliatone/go-hookqueue/processor"
)

const (
	EventNameUserUpdated     = "user.updated"
	EventNameCampaignUpdated = "campaign.status_changed"

	metricEmailStats = "hookqueue.email_stats"
	metricUnhandled  = "hookqueue.unhandled_events"

	unhandledReason = "no handler registered"
)

// GeneralEventTypes are the event types the general queue handles by name;
// everything else routed there reaches the fallback.
var GeneralEventTypes = []string{
	core.EventUserCreate,
	core.EventUserUpdate,
	core.EventCampaignStatusUpdate,
	core.EventLCEmailStats,
}

// General processes low-priority events and records the ones nobody handles.
type General struct {
	deps Deps
}

func NewGeneral(deps Deps) *General {
	return &General{deps: deps}
}

func (h *General) Register(reg *processor.Registry) error {
	if err := h.deps.validate(); err != nil {
		return err
	}
	if reg == nil {
		return fmt.Errorf("handlers: registry is nil")
	}
	reg.Fallback = processor.HandlerFunc(h.unhandled)
	return registerAll(reg, map[string]processor.HandlerFunc{
		core.EventUserCreate:           h.user,
		core.EventUserUpdate:           h.user,
		core.EventCampaignStatusUpdate: h.campaign,
		core.EventLCEmailStats:         h.emailStats,
	})
}

func (h *General) user(ctx context.Context, event core.Event) (core.Outcome, error) {
	data := fields(event.Data)
	externalID, tenantID, err := identity(event, data, "id", "userId")
	if err != nil {
		return core.Outcome{}, err
	}
	role := data.str("role", "type")
	if roles := data.object("roles"); roles != nil {
		role = firstNonEmpty(roles.str("role"), role)
	}
	name := data.str("name")
	if name == "" {
		name = strings.TrimSpace(data.str("firstName") + " " + data.str("lastName"))
	}
	saved, _, err := h.deps.stores().Users.UpsertUser(ctx, core.UserRecord{
		ExternalID: externalID,
		LocationID: tenantID,
		Name:       truncate(name, 255),
		Email:      strings.ToLower(data.str("email")),
		Role:       role,
	})
	if err != nil {
		return core.Outcome{}, err
	}
	summary := map[string]any{
		"id":          saved.ID,
		"external_id": saved.ExternalID,
		"name":        saved.Name,
		"role":        saved.Role,
	}
	return core.Outcome{
		EntityID: saved.ID,
		Notifications: []core.Notification{
			locationNotice(tenantID, EventNameUserUpdated, saved.ID, summary),
		},
	}, nil
}

// campaign only forwards the status change; campaigns are not stored.
func (h *General) campaign(ctx context.Context, event core.Event) (core.Outcome, error) {
	data := fields(event.Data)
	campaignID, tenantID, err := identity(event, data, "campaignId", "id")
	if err != nil {
		return core.Outcome{}, err
	}
	return core.Outcome{
		EntityID: campaignID,
		Notifications: []core.Notification{
			locationNotice(tenantID, EventNameCampaignUpdated, campaignID+":"+data.str("status"), map[string]any{
				"campaign_id": campaignID,
				"status":      data.str("status"),
				"contact_id":  data.str("contactId"),
			}),
		},
	}, nil
}

// emailStats turns email delivery events into counters.
func (h *General) emailStats(ctx context.Context, event core.Event) (core.Outcome, error) {
	data := fields(event.Data)
	if strings.TrimSpace(event.TenantID) == "" {
		return core.Outcome{}, core.NewValidationError("locationId", "is required")
	}
	h.deps.observer().Count(ctx, metricEmailStats, 1, map[string]string{
		"location_id": event.TenantID,
		"event":       firstNonEmpty(data.str("event"), "unknown"),
		"email_type":  firstNonEmpty(data.str("email_type", "emailType"), "unknown"),
	})
	return core.Outcome{}, nil
}

// unhandled stores the event for later inspection and acknowledges it.
func (h *General) unhandled(ctx context.Context, event core.Event) (core.Outcome, error) {
	store := h.deps.stores().Unhandled
	if store == nil {
		return core.Outcome{}, core.NewInternalError(nil, "handlers: unhandled store is not configured")
	}
	route := core.RouteEvent(event.Type)
	if err := store.RecordUnhandled(ctx, core.UnhandledEvent{
		WebhookID: event.WebhookID,
		Type:      event.Type,
		TenantID:  event.TenantID,
		QueueType: route.QueueType,
		Payload:   event.Data,
		Reason:    unhandledReason,
		CreatedAt: h.deps.now(),
	}); err != nil {
		return core.Outcome{}, err
	}
	h.deps.observer().LogInfo(ctx, "unhandled event recorded", map[string]any{
		"webhook_id": event.WebhookID,
		"event_type": event.Type,
		"tenant_id":  event.TenantID,
	})
	h.deps.observer().Count(ctx, metricUnhandled, 1, map[string]string{"event_type": event.Type})
	return core.Outcome{}, nil
}
