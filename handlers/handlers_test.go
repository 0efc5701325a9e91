package handlers_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-hookqueue/core"
	"github.com/goliatone/go-hookqueue/handlers"
	hookqueuemigrations "github.com/goliatone/go-hookqueue/migrations"
	"github.com/goliatone/go-hookqueue/processor"
	sqlstore "github.com/goliatone/go-hookqueue/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testPersistenceConfig struct {
	server string
}

func (c testPersistenceConfig) GetDebug() bool { return false }
func (c testPersistenceConfig) GetDriver() string { return "sqlite3" }
func (c testPersistenceConfig) GetServer() string { return c.server }
func (c testPersistenceConfig) GetPingTimeout() time.Duration { return time.Second }
func (c testPersistenceConfig) GetOtelIdentifier() string { return "go-hookqueue-handler-tests" }

type captureNotifier struct {
	mu       sync.Mutex
	outcomes []core.Outcome
}

func (n *captureNotifier) Deliver(_ context.Context, outcome core.Outcome) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outcomes = append(n.outcomes, outcome)
	return nil
}

func (n *captureNotifier) pushes() []core.PushNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]core.PushNotification, 0)
	for _, outcome := range n.outcomes {
		out = append(out, outcome.Pushes...)
	}
	return out
}

type stubEnricher struct {
	contact map[string]any
	err     error
	calls   int
	token   string
}

func (e *stubEnricher) FetchContact(_ context.Context, location core.Location, _ string) (map[string]any, error) {
	e.calls++
	e.token = location.AccessToken
	if e.err != nil {
		return nil, e.err
	}
	return e.contact, nil
}

type harness struct {
	factory    *sqlstore.RepositoryFactory
	registries map[core.QueueType]*processor.Registry
	notifier   *captureNotifier
	deps       handlers.Deps
}

func newHarness(t *testing.T, configure func(*handlers.Deps)) *harness {
	t.Helper()
	client := newSQLiteClient(t)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	factory.WithClock(func() time.Time { return fixedNow })

	deps := handlers.Deps{
		UnitOfWork: factory,
		Now:        func() time.Time { return fixedNow },
	}
	if configure != nil {
		configure(&deps)
	}
	notifier := &captureNotifier{}
	registries, err := handlers.NewRegistries(deps, notifier)
	if err != nil {
		t.Fatalf("new registries: %v", err)
	}
	return &harness{factory: factory, registries: registries, notifier: notifier, deps: deps}
}

func (h *harness) handle(t *testing.T, itemID string, eventType string, payload map[string]any) error {
	t.Helper()
	route := core.RouteEvent(eventType)
	item := core.WorkItem{
		ID:        itemID,
		QueueType: route.QueueType,
		Type:      eventType,
		WebhookID: "wh-" + itemID,
		Payload:   payload,
		Status:    core.WorkItemProcessing,
		CreatedAt: fixedNow,
	}
	return h.registries[route.QueueType].Handle(context.Background(), item)
}

func (h *harness) mustHandle(t *testing.T, itemID string, eventType string, payload map[string]any) {
	t.Helper()
	if err := h.handle(t, itemID, eventType, payload); err != nil {
		t.Fatalf("handle %s (%s): %v", eventType, itemID, err)
	}
}

func (h *harness) seedLocation(t *testing.T, location core.Location) {
	t.Helper()
	if _, err := h.factory.Stores().Locations.UpsertLocation(context.Background(), location); err != nil {
		t.Fatalf("seed location: %v", err)
	}
}

func TestNewRegistries_CoverEveryRoutedEventType(t *testing.T) {
	h := newHarness(t, nil)
	for _, queueType := range core.QueueTypes() {
		reg, ok := h.registries[queueType]
		if !ok {
			t.Fatalf("expected registry for %s", queueType)
		}
		if err := reg.Validate(core.EventTypesFor(queueType)...); err != nil {
			t.Fatalf("registry %s: %v", queueType, err)
		}
	}
	if h.registries[core.QueueGeneral].Fallback == nil {
		t.Fatalf("expected general registry fallback")
	}
}

func TestNewRegistries_RequiresUnitOfWork(t *testing.T) {
	if _, err := handlers.NewRegistries(handlers.Deps{}, nil); err == nil {
		t.Fatalf("expected missing unit of work to fail")
	}
}

func TestContacts_CreateWithOnlyIDIsEnriched(t *testing.T) {
	enricher := &stubEnricher{contact: map[string]any{
		"id":        "ghl123",
		"firstName": "Ada",
		"lastName":  "Lovelace",
		"email":     "ADA@Example.com",
		"tags":      []any{"vip"},
	}}
	h := newHarness(t, func(deps *handlers.Deps) { deps.Enricher = enricher })
	h.seedLocation(t, core.Location{ExternalID: "loc-1", Status: core.LocationStatusActive, AccessToken: "tok-1"})

	h.mustHandle(t, "wi-1", core.EventContactCreate, map[string]any{
		"webhookPayload": map[string]any{"type": core.EventContactCreate, "id": "ghl123"},
		"tenantId":       "loc-1",
	})

	contact, err := h.factory.Stores().Contacts.FindContact(context.Background(), "ghl123", "loc-1")
	if err != nil {
		t.Fatalf("find contact: %v", err)
	}
	if contact.FullName != "Ada Lovelace" || contact.Email != "ada@example.com" {
		t.Fatalf("unexpected enriched contact: %+v", contact)
	}
	if contact.NeedsEnrichment {
		t.Fatalf("expected enriched contact to not need enrichment")
	}
	if enricher.calls != 1 || enricher.token != "tok-1" {
		t.Fatalf("expected one enrichment call with the tenant token, got calls=%d token=%q", enricher.calls, enricher.token)
	}
}

func TestContacts_EnrichmentFailureStoresStub(t *testing.T) {
	enricher := &stubEnricher{err: core.NewValidationError("access_token", "location has no usable credentials")}
	h := newHarness(t, func(deps *handlers.Deps) { deps.Enricher = enricher })
	h.seedLocation(t, core.Location{ExternalID: "loc-1", Status: core.LocationStatusActive})

	h.mustHandle(t, "wi-1", core.EventContactCreate, map[string]any{
		"type":       core.EventContactCreate,
		"locationId": "loc-1",
		"id":         "ghl123",
	})

	contact, err := h.factory.Stores().Contacts.FindContact(context.Background(), "ghl123", "loc-1")
	if err != nil {
		t.Fatalf("find contact: %v", err)
	}
	if !contact.NeedsEnrichment {
		t.Fatalf("expected stub contact flagged for enrichment: %+v", contact)
	}
}

func TestContacts_UpdateFallsBackToCreateAndOverlaysPresentFields(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.mustHandle(t, "wi-1", core.EventContactUpdate, map[string]any{
		"type":       core.EventContactUpdate,
		"locationId": "loc-1",
		"id":         "c-1",
		"firstName":  "Grace",
		"email":      "grace@example.com",
	})
	h.mustHandle(t, "wi-2", core.EventContactTagUpdate, map[string]any{
		"type":       core.EventContactTagUpdate,
		"locationId": "loc-1",
		"id":         "c-1",
		"tags":       []any{"lead", "warm"},
	})

	contact, err := h.factory.Stores().Contacts.FindContact(ctx, "c-1", "loc-1")
	if err != nil {
		t.Fatalf("find contact: %v", err)
	}
	if contact.Email != "grace@example.com" || contact.FirstName != "Grace" {
		t.Fatalf("expected earlier fields to survive a partial update: %+v", contact)
	}
	if len(contact.Tags) != 2 || contact.Tags[0] != "lead" {
		t.Fatalf("unexpected tags: %v", contact.Tags)
	}

	h.mustHandle(t, "wi-3", core.EventContactDelete, map[string]any{
		"type":       core.EventContactDelete,
		"locationId": "loc-1",
		"id":         "c-1",
	})
	contact, err = h.factory.Stores().Contacts.FindContact(ctx, "c-1", "loc-1")
	if err != nil {
		t.Fatalf("find soft deleted contact: %v", err)
	}
	if !contact.Deleted {
		t.Fatalf("expected soft delete")
	}
}

func TestContacts_MissingIdentityIsValidationError(t *testing.T) {
	h := newHarness(t, nil)

	err := h.handle(t, "wi-1", core.EventContactCreate, map[string]any{"type": core.EventContactCreate, "locationId": "loc-1"})
	if core.KindOf(err) != core.KindValidation {
		t.Fatalf("expected validation error for missing id, got %v", err)
	}
	err = h.handle(t, "wi-2", core.EventContactCreate, map[string]any{"type": core.EventContactCreate, "id": "c-1"})
	if core.KindOf(err) != core.KindValidation {
		t.Fatalf("expected validation error for missing tenant, got %v", err)
	}
}

func TestFinancial_InvoicePaidAppendsTimelineOnce(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.mustHandle(t, "wi-1", core.EventOpportunityCreate, map[string]any{
		"type":       core.EventOpportunityCreate,
		"locationId": "loc-1",
		"id":         "opp1",
		"name":       "Kitchen remodel",
		"contactId":  "c-1",
		"status":     "open",
		"assignedTo": "user-7",
	})
	paid := map[string]any{
		"type":               core.EventInvoicePaid,
		"altId":              "loc-1",
		"_id":                "inv-1",
		"invoiceNumber":      "1001",
		"currency":           "USD",
		"total":              250.0,
		"amountPaid":         250.0,
		"opportunityDetails": map[string]any{"opportunityId": "opp1"},
	}
	h.mustHandle(t, "wi-2", core.EventInvoicePaid, paid)
	h.mustHandle(t, "wi-2", core.EventInvoicePaid, paid)

	project, err := h.factory.Stores().Projects.FindProjectByOpportunity(ctx, "opp1", "loc-1")
	if err != nil {
		t.Fatalf("find project: %v", err)
	}
	if len(project.Timeline) != 1 || project.Timeline[0].Event != handlers.TimelineInvoicePaid {
		t.Fatalf("expected a single invoice_paid entry, got %+v", project.Timeline)
	}
	invoice, err := h.factory.Stores().Invoices.FindInvoice(ctx, "inv-1", "loc-1")
	if err != nil {
		t.Fatalf("find invoice: %v", err)
	}
	if invoice.Status != handlers.InvoiceStatusPaid || invoice.AmountDue != 0 || invoice.PaidAt == nil {
		t.Fatalf("unexpected invoice: %+v", invoice)
	}

	pushes := h.notifier.pushes()
	found := false
	for _, push := range pushes {
		if push.Event == handlers.EventNameInvoicePaid && push.UserID == "user-7" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected payment push to project owner, got %+v", pushes)
	}
}

func TestProjects_StageUpdateAppendsTimelineOnChangeOnly(t *testing.T) {
	h := newHarness(t, nil)
	stage := func(stageID string) map[string]any {
		return map[string]any{
			"type":            core.EventOpportunityStageUpdate,
			"locationId":      "loc-1",
			"id":              "opp1",
			"pipelineStageId": stageID,
		}
	}
	h.mustHandle(t, "wi-1", core.EventOpportunityStageUpdate, stage("s-1"))
	h.mustHandle(t, "wi-2", core.EventOpportunityStageUpdate, stage("s-2"))
	h.mustHandle(t, "wi-2", core.EventOpportunityStageUpdate, stage("s-2"))

	project, err := h.factory.Stores().Projects.FindProjectByOpportunity(context.Background(), "opp1", "loc-1")
	if err != nil {
		t.Fatalf("find project: %v", err)
	}
	if len(project.Timeline) != 2 {
		t.Fatalf("expected two stage entries, got %+v", project.Timeline)
	}
	if project.Timeline[1].Metadata["from"] != "s-1" || project.Timeline[1].Metadata["to"] != "s-2" {
		t.Fatalf("unexpected transition metadata: %+v", project.Timeline[1].Metadata)
	}
}

func TestAppointments_CreateLinksOpenProjectAndPushesAssignee(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.mustHandle(t, "wi-1", core.EventOpportunityCreate, map[string]any{
		"type":       core.EventOpportunityCreate,
		"locationId": "loc-1",
		"id":         "opp-won",
		"contactId":  "c-1",
		"status":     "won",
	})
	h.mustHandle(t, "wi-2", core.EventOpportunityCreate, map[string]any{
		"type":       core.EventOpportunityCreate,
		"locationId": "loc-1",
		"id":         "opp-open",
		"contactId":  "c-1",
		"status":     "open",
	})
	appointment := map[string]any{
		"type":       core.EventAppointmentCreate,
		"locationId": "loc-1",
		"appointment": map[string]any{
			"id":             "apt-1",
			"contactId":      "c-1",
			"title":          "Site visit",
			"assignedUserId": "user-3",
			"startTime":      "2026-03-02T15:00:00Z",
		},
	}
	h.mustHandle(t, "wi-3", core.EventAppointmentCreate, appointment)
	h.mustHandle(t, "wi-3", core.EventAppointmentCreate, appointment)

	open, err := h.factory.Stores().Projects.FindProjectByOpportunity(ctx, "opp-open", "loc-1")
	if err != nil {
		t.Fatalf("find open project: %v", err)
	}
	if len(open.Timeline) != 1 || open.Timeline[0].Event != handlers.TimelineAppointmentScheduled {
		t.Fatalf("expected one appointment_scheduled entry, got %+v", open.Timeline)
	}
	won, err := h.factory.Stores().Projects.FindProjectByOpportunity(ctx, "opp-won", "loc-1")
	if err != nil {
		t.Fatalf("find won project: %v", err)
	}
	if len(won.Timeline) != 0 {
		t.Fatalf("expected closed project untouched, got %+v", won.Timeline)
	}

	pushes := h.notifier.pushes()
	if len(pushes) != 1 || pushes[0].UserID != "user-3" {
		t.Fatalf("expected a single push to the assignee, got %+v", pushes)
	}
}

func TestAppointments_UpdateFallsBackToCreate(t *testing.T) {
	h := newHarness(t, nil)
	h.mustHandle(t, "wi-1", core.EventAppointmentUpdate, map[string]any{
		"type":              core.EventAppointmentUpdate,
		"locationId":        "loc-1",
		"id":                "apt-9",
		"appointmentStatus": "confirmed",
	})
	appointment, err := h.factory.Stores().Appointments.FindAppointment(context.Background(), "apt-9", "loc-1")
	if err != nil {
		t.Fatalf("expected update to create the appointment: %v", err)
	}
	if appointment.Status != "confirmed" {
		t.Fatalf("unexpected status %q", appointment.Status)
	}
}

func TestMessages_InboundIncrementsUnreadOncePerMessage(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	inbound := func(messageID string, body string) map[string]any {
		return map[string]any{
			"type":           core.EventInboundMessage,
			"locationId":     "loc-1",
			"messageId":      messageID,
			"conversationId": "conv-1",
			"contactId":      "c-1",
			"assignedTo":     "user-5",
			"body":           body,
			"messageType":    "SMS",
			"dateAdded":      "2026-03-01T11:00:00Z",
		}
	}

	h.mustHandle(t, "wi-1", core.EventInboundMessage, inbound("m-1", "hello"))
	h.mustHandle(t, "wi-1", core.EventInboundMessage, inbound("m-1", "hello"))
	h.mustHandle(t, "wi-2", core.EventInboundMessage, inbound("m-2", "are you there?"))

	conversation, err := h.factory.Stores().Messages.FindConversation(ctx, "conv-1", "loc-1")
	if err != nil {
		t.Fatalf("find conversation: %v", err)
	}
	if conversation.UnreadCount != 2 {
		t.Fatalf("expected unread count 2, got %d", conversation.UnreadCount)
	}
	if conversation.LastMessageBody != "are you there?" {
		t.Fatalf("unexpected last message %q", conversation.LastMessageBody)
	}
	if pushes := h.notifier.pushes(); len(pushes) != 2 {
		t.Fatalf("expected a push per new inbound message, got %d", len(pushes))
	}

	h.mustHandle(t, "wi-3", core.EventConversationUnreadUpdate, map[string]any{
		"type":        core.EventConversationUnreadUpdate,
		"locationId":  "loc-1",
		"id":          "conv-1",
		"unreadCount": 0,
	})
	conversation, err = h.factory.Stores().Messages.FindConversation(ctx, "conv-1", "loc-1")
	if err != nil {
		t.Fatalf("find conversation after read: %v", err)
	}
	if conversation.UnreadCount != 0 {
		t.Fatalf("expected unread reset, got %d", conversation.UnreadCount)
	}
}

func TestCritical_UninstallPurgesDerivativesAndInvalidatesCache(t *testing.T) {
	var cached *sqlstore.CachedLocationStore
	h := newHarness(t, func(deps *handlers.Deps) {
		cacheService, err := sqlstore.NewLocationCacheService(time.Minute)
		if err != nil {
			t.Fatalf("new cache service: %v", err)
		}
		store := deps.UnitOfWork.Stores().Locations
		cached, err = sqlstore.NewCachedLocationStore(store, cacheService)
		if err != nil {
			t.Fatalf("new cached store: %v", err)
		}
		deps.Locations = cached
	})
	ctx := context.Background()

	h.mustHandle(t, "wi-install", core.EventInstall, map[string]any{
		"type":        core.EventInstall,
		"locationId":  "loc-1",
		"companyId":   "co-1",
		"accessToken": "tok-1",
		"expiresIn":   3600,
	})
	location, err := cached.GetLocation(ctx, "loc-1")
	if err != nil || location.Status != core.LocationStatusActive || location.AccessToken != "tok-1" {
		t.Fatalf("unexpected installed location: %+v err=%v", location, err)
	}

	queue := h.factory.WorkItemStore()
	for _, id := range []string{"wi-uninstall", "wi-pending"} {
		if _, _, err := queue.Insert(ctx, core.WorkItem{
			ID:          id,
			QueueType:   core.QueueContacts,
			Type:        core.EventContactCreate,
			WebhookID:   "wh-" + id,
			TenantID:    "loc-1",
			Payload:     map[string]any{"id": id},
			MaxAttempts: 3,
			Status:      core.WorkItemPending,
			CreatedAt:   fixedNow,
		}); err != nil {
			t.Fatalf("seed work item: %v", err)
		}
	}
	if _, err := h.factory.DB().ExecContext(ctx, "INSERT INTO hookqueue_automation_rules (id, location_id, name) VALUES ('ar-1', 'loc-1', 'nurture')"); err != nil {
		t.Fatalf("seed automation rule: %v", err)
	}
	h.mustHandle(t, "wi-c", core.EventContactCreate, map[string]any{
		"type":       core.EventContactCreate,
		"locationId": "loc-1",
		"id":         "c-1",
		"email":      "kept@example.com",
	})

	h.mustHandle(t, "wi-uninstall", core.EventUninstall, map[string]any{"type": core.EventUninstall, "locationId": "loc-1"})

	location, err = cached.GetLocation(ctx, "loc-1")
	if err != nil {
		t.Fatalf("get location: %v", err)
	}
	if location.Status != core.LocationStatusUninstalled || location.AccessToken != "" || location.UninstalledAt == nil {
		t.Fatalf("expected uninstalled location through the cache, got %+v", location)
	}
	if _, err := queue.Get(ctx, "wi-uninstall"); err != nil {
		t.Fatalf("expected current item to survive: %v", err)
	}
	if _, err := queue.Get(ctx, "wi-pending"); !errors.Is(err, core.ErrWorkItemNotFound) {
		t.Fatalf("expected pending tenant item purged, got %v", err)
	}
	if _, err := h.factory.Stores().Contacts.FindContact(ctx, "c-1", "loc-1"); err != nil {
		t.Fatalf("expected contact preserved: %v", err)
	}
}

func TestGeneral_UnknownEventIsRecordedAndAcknowledged(t *testing.T) {
	h := newHarness(t, nil)
	h.mustHandle(t, "wi-1", "SomethingNew", map[string]any{
		"type":         "SomethingNew",
		"locationId":   "loc-1",
		"refreshToken": "should-not-persist",
	})

	events, total, err := h.factory.UnhandledStore().ListUnhandled(context.Background(), "loc-1", 10, 0)
	if err != nil {
		t.Fatalf("list unhandled: %v", err)
	}
	if total != 1 || events[0].Type != "SomethingNew" || events[0].QueueType != core.QueueGeneral {
		t.Fatalf("unexpected unhandled events: %+v", events)
	}
	if events[0].Payload["refreshToken"] != "[REDACTED]" {
		t.Fatalf("expected secrets redacted, got %+v", events[0].Payload)
	}
}

func TestGeneral_UserUpsert(t *testing.T) {
	h := newHarness(t, nil)
	payload := map[string]any{
		"type":       core.EventUserCreate,
		"locationId": "loc-1",
		"id":         "u-1",
		"firstName":  "Lin",
		"lastName":   "Park",
		"roles":      map[string]any{"role": "admin"},
	}
	h.mustHandle(t, "wi-1", core.EventUserCreate, payload)
	h.mustHandle(t, "wi-1", core.EventUserCreate, payload)

	var count int
	if err := h.factory.DB().QueryRowContext(context.Background(), "SELECT COUNT(*) FROM hookqueue_users WHERE external_id = 'u-1'").Scan(&count); err != nil {
		t.Fatalf("count users: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected idempotent user upsert, got %d rows", count)
	}
}

func newSQLiteClient(t *testing.T) *persistence.Client {
	t.Helper()
	dsn := fmt.Sprintf("file:hookqueue-handlers-%d?mode=memory&cache=shared&_foreign_keys=on", time.Now().UnixNano())
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	client, err := persistence.New(testPersistenceConfig{server: dsn}, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	_, err = hookqueuemigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != hookqueuemigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, hookqueuemigrations.WithValidationTargets(hookqueuemigrations.DialectSQLite))
	if err != nil {
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return client
}
