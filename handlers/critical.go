package handlers

import (
	"context"
	"time"

	"github.com/goliatone/go-hookqueue/core"
	"github.com/goliatone/go-hookqueue/processor"
)

const (
	EventNameLocationInstalled   = "location.installed"
	EventNameLocationUninstalled = "location.uninstalled"
	EventNameLocationPlanChanged = "location.plan_changed"
	EventNameLocationUpdated     = "location.updated"
)

// Critical processes tenant lifecycle events: install, uninstall, plan and
// location profile changes.
type Critical struct {
	deps Deps
}

func NewCritical(deps Deps) *Critical {
	return &Critical{deps: deps}
}

func (h *Critical) Register(reg *processor.Registry) error {
	if err := h.deps.validate(); err != nil {
		return err
	}
	return registerAll(reg, map[string]processor.HandlerFunc{
		core.EventInstall:        h.install,
		core.EventUninstall:      h.uninstall,
		core.EventPlanChange:     h.planChange,
		core.EventLocationCreate: h.profile,
		core.EventLocationUpdate: h.profile,
	})
}

// tenant resolves the location id. Location profile events carry it as "id".
func (h *Critical) tenant(event core.Event, data fields, idFallback bool) (string, error) {
	tenantID := firstNonEmpty(event.TenantID, data.str("locationId"))
	if tenantID == "" && idFallback {
		tenantID = data.str("id")
	}
	if tenantID == "" {
		return "", core.NewValidationError("locationId", "is required")
	}
	return tenantID, nil
}

func (h *Critical) current(ctx context.Context, locations core.LocationStore, tenantID string) (core.Location, bool, error) {
	location, err := locations.GetLocation(ctx, tenantID)
	if err != nil {
		if isMissing(err) {
			return core.Location{ExternalID: tenantID}, false, nil
		}
		return core.Location{}, false, err
	}
	return location, true, nil
}

func (h *Critical) install(ctx context.Context, event core.Event) (core.Outcome, error) {
	data := fields(event.Data)
	tenantID, err := h.tenant(event, data, false)
	if err != nil {
		return core.Outcome{}, err
	}
	locations := h.deps.locations()
	location, _, err := h.current(ctx, locations, tenantID)
	if err != nil {
		return core.Outcome{}, err
	}
	installedAt := h.deps.now()
	if at := data.time("timestamp", "installedAt"); at != nil {
		installedAt = *at
	}
	location.Status = core.LocationStatusActive
	location.InstalledAt = &installedAt
	location.UninstalledAt = nil
	if companyID := firstNonEmpty(event.CompanyID, data.str("companyId")); companyID != "" {
		location.CompanyID = companyID
	}
	if data.has("planId") {
		location.Plan = data.str("planId")
	}
	if data.has("userId") {
		location.OwnerUserID = data.str("userId")
	}
	h.applyCredentials(&location, data)

	saved, err := locations.UpsertLocation(ctx, location)
	if err != nil {
		return core.Outcome{}, err
	}
	return core.Outcome{
		EntityID: saved.ID,
		Notifications: []core.Notification{
			locationNotice(tenantID, EventNameLocationInstalled, saved.ID, locationSummary(saved)),
		},
	}, nil
}

// uninstall marks the tenant uninstalled and purges its short-lived
// derivative records in one transaction. Business records stay.
func (h *Critical) uninstall(ctx context.Context, event core.Event) (core.Outcome, error) {
	data := fields(event.Data)
	tenantID, err := h.tenant(event, data, false)
	if err != nil {
		return core.Outcome{}, err
	}

	var (
		saved  core.Location
		report core.CleanupReport
	)
	err = h.deps.UnitOfWork.RunInTx(ctx, func(ctx context.Context, tx core.Stores) error {
		location, _, err := h.current(ctx, tx.Locations, tenantID)
		if err != nil {
			return err
		}
		uninstalledAt := h.deps.now()
		location.Status = core.LocationStatusUninstalled
		location.UninstalledAt = &uninstalledAt
		location.AccessToken = ""
		location.TokenExpiresAt = nil
		saved, err = tx.Locations.UpsertLocation(ctx, location)
		if err != nil {
			return err
		}
		report, err = tx.Cleanup.PurgeDerivatives(ctx, tenantID, event.ItemID, h.deps.cleanupLimit())
		return err
	})
	if err != nil {
		return core.Outcome{}, err
	}
	h.deps.invalidateLocation(ctx, tenantID)

	h.deps.observer().LogInfo(ctx, "location uninstalled", map[string]any{
		"location_id":      tenantID,
		"webhook_id":       event.WebhookID,
		"automation_rules": report.AutomationRules,
		"queued_jobs":      report.QueuedJobs,
		"sync_states":      report.SyncStates,
	})
	return core.Outcome{
		EntityID: saved.ID,
		Notifications: []core.Notification{
			locationNotice(tenantID, EventNameLocationUninstalled, saved.ID, locationSummary(saved)),
		},
		Metadata: map[string]any{"cleanup": report},
	}, nil
}

func (h *Critical) planChange(ctx context.Context, event core.Event) (core.Outcome, error) {
	data := fields(event.Data)
	tenantID, err := h.tenant(event, data, false)
	if err != nil {
		return core.Outcome{}, err
	}
	plan := data.str("newPlanId", "planId", "currentPlanId")
	if plan == "" {
		return core.Outcome{}, core.NewValidationError("newPlanId", "is required")
	}
	locations := h.deps.locations()
	location, _, err := h.current(ctx, locations, tenantID)
	if err != nil {
		return core.Outcome{}, err
	}
	previous := location.Plan
	location.Plan = plan
	if location.Status == "" {
		location.Status = core.LocationStatusActive
	}
	saved, err := locations.UpsertLocation(ctx, location)
	if err != nil {
		return core.Outcome{}, err
	}
	summary := locationSummary(saved)
	summary["previous_plan"] = previous
	return core.Outcome{
		EntityID: saved.ID,
		Notifications: []core.Notification{
			locationNotice(tenantID, EventNameLocationPlanChanged, saved.ID, summary),
		},
	}, nil
}

// profile merges location profile fields. It never changes the install
// status of a known location.
func (h *Critical) profile(ctx context.Context, event core.Event) (core.Outcome, error) {
	data := fields(event.Data)
	tenantID, err := h.tenant(event, data, true)
	if err != nil {
		return core.Outcome{}, err
	}
	locations := h.deps.locations()
	location, found, err := h.current(ctx, locations, tenantID)
	if err != nil {
		return core.Outcome{}, err
	}
	if !found {
		location.Status = core.LocationStatusActive
	}
	if companyID := firstNonEmpty(data.str("companyId"), event.CompanyID); companyID != "" {
		location.CompanyID = companyID
	}
	if data.has("name") {
		location.Name = truncate(data.str("name"), 255)
	}
	if data.has("timezone") {
		location.Timezone = data.str("timezone")
	}
	settings := copySettings(location.Settings)
	for _, key := range []string{"email", "phone", "website", "address", "city", "state", "country", "postalCode"} {
		if data.has(key) {
			settings[key] = data.str(key)
		}
	}
	location.Settings = settings

	saved, err := locations.UpsertLocation(ctx, location)
	if err != nil {
		return core.Outcome{}, err
	}
	return core.Outcome{
		EntityID: saved.ID,
		Notifications: []core.Notification{
			locationNotice(tenantID, EventNameLocationUpdated, saved.ID, locationSummary(saved)),
		},
	}, nil
}

func (h *Critical) applyCredentials(location *core.Location, data fields) {
	token := data.str("accessToken", "access_token")
	if token == "" {
		return
	}
	location.AccessToken = token
	location.TokenExpiresAt = nil
	if seconds, ok := data.integer("expiresIn", "expires_in"); ok && seconds > 0 {
		expires := h.deps.now().Add(time.Duration(seconds) * time.Second)
		location.TokenExpiresAt = &expires
	}
}

func copySettings(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func locationSummary(location core.Location) map[string]any {
	return map[string]any{
		"id":          location.ID,
		"location_id": location.ExternalID,
		"name":        location.Name,
		"plan":        location.Plan,
		"status":      string(location.Status),
	}
}
