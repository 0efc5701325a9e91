package hookqueue_test

import (
	"context"
	"database/sql"
	"fmt"
	"errors"
	"io/fs"
	"sync/atomic"
	"testing"
	"time"

	hookqueue "github.com/goliatone/go-hookqueue"
	hqcommand "github.com/goliatone/go-hookqueue/command"
	"github.com/goliatone/go-hookqueue/core"
	hookqueuemigrations "github.com/goliatone/go-hookqueue/migrations"
	"github.com/goliatone/go-hookqueue/notify"
	hqquery "github.com/goliatone/go-hookqueue/query"
	sqlstore "github.com/goliatone/go-hookqueue/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	server string
}

func (c testPersistenceConfig) GetDebug() bool { return false }
func (c testPersistenceConfig) GetDriver() string { return "sqlite3" }
func (c testPersistenceConfig) GetServer() string { return c.server }
func (c testPersistenceConfig) GetPingTimeout() time.Duration { return time.Second }
func (c testPersistenceConfig) GetOtelIdentifier() string { return "go-hookqueue-runtime-tests" }

type runtimeFixture struct {
	runtime   *hookqueue.Runtime
	facade    *hookqueue.Facade
	factory   *sqlstore.RepositoryFactory
	publisher *notify.MemoryPublisher
}

type fixtureOption func(cfg *core.Config, deps *hookqueue.Dependencies)

func newRuntimeFixture(t *testing.T, opts ...fixtureOption) runtimeFixture {
	t.Helper()
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(newSQLiteClient(t))
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}

	cfg := hookqueue.DefaultConfig()
	cfg.Queue.MaxAttempts = 1
	cfg.Processor.MaxRuntime = 150 * time.Millisecond
	cfg.Processor.EmptyBackoff = 10 * time.Millisecond
	cfg.Processor.Concurrency = 1

	publisher := notify.NewMemoryPublisher()
	deps := hookqueue.Dependencies{
		Queue:      factory.WorkItemStore(),
		Markers:    factory.MarkerStore(),
		Metrics:    factory.MetricStore(),
		UnitOfWork: factory,
		Unhandled:  factory.UnhandledStore(),
		Publisher:  publisher,
		Push:       notify.NewMemoryPush(),
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	runtime, err := hookqueue.Setup(cfg, deps)
	if err != nil {
		t.Fatalf("setup runtime: %v", err)
	}
	facade, err := hookqueue.NewFacade(runtime)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	return runtimeFixture{runtime: runtime, facade: facade, factory: factory, publisher: publisher}
}

func TestRuntime_EnqueueRunAndSummarize(t *testing.T) {
	ctx := context.Background()
	fx := newRuntimeFixture(t)

	payload := map[string]any{
		"id":         "c_1",
		"locationId": "loc_1",
		"email":      "ann@example.com",
		"firstName":  "Ann",
	}
	for i := 0; i < 2; i++ {
		if err := fx.facade.Commands().EnqueueWebhook.Execute(ctx, hqcommand.EnqueueWebhookMessage{Request: core.EnqueueRequest{
			Type:      core.EventContactCreate,
			WebhookID: "wh_1",
			TenantID:  "loc_1",
			Payload:   payload,
		}}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	stats, err := fx.runtime.RunQueue(ctx, core.QueueContacts)
	if err != nil {
		t.Fatalf("run contacts: %v", err)
	}
	if stats.Processed != 1 || stats.Succeeded != 1 {
		t.Fatalf("expected the redelivered webhook processed once, got %#v", stats)
	}

	contact, err := fx.factory.Stores().Contacts.FindContact(ctx, "c_1", "loc_1")
	if err != nil {
		t.Fatalf("find contact: %v", err)
	}
	if contact.Email != "ann@example.com" {
		t.Fatalf("unexpected contact: %#v", contact)
	}
	if got := fx.publisher.Count(notify.LocationChannel("loc_1"), "contact.created"); got != 1 {
		t.Fatalf("expected one location notification, got %d", got)
	}

	summary, err := fx.facade.Queries().AnalyticsSummary.Query(ctx, hqquery.AnalyticsSummaryMessage{})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Total != 1 || summary.ErrorRate != 0 {
		t.Fatalf("unexpected summary: %#v", summary)
	}

	if _, err := fx.runtime.RunQueue(ctx, core.QueueType("bulk")); core.KindOf(err) != core.KindValidation {
		t.Fatalf("expected validation error for unknown queue, got %v", err)
	}
}

func TestRuntime_DeadLetterAndRequeue(t *testing.T) {
	ctx := context.Background()
	fx := newRuntimeFixture(t)

	item, err := fx.runtime.EnqueueWebhook(ctx, core.EnqueueRequest{
		Type:      core.EventInvoicePaid,
		WebhookID: "wh_bad",
		Payload:   map[string]any{"amountPaid": 10},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	stats, err := fx.runtime.RunQueue(ctx, core.QueueFinancial)
	if err != nil {
		t.Fatalf("run financial: %v", err)
	}
	if stats.Failed != 1 {
		t.Fatalf("expected one failed item, got %#v", stats)
	}

	dead, err := fx.facade.Queries().ListDeadLetters.Query(ctx, hqquery.ListDeadLettersMessage{
		Filter: core.DeadLetterFilter{QueueType: core.QueueFinancial},
	})
	if err != nil {
		t.Fatalf("list dead letters: %v", err)
	}
	if len(dead) != 1 || dead[0].ID != item.ID {
		t.Fatalf("expected the invalid invoice dead lettered, got %#v", dead)
	}

	if err := fx.facade.Commands().RequeueDeadLetter.Execute(ctx, hqcommand.RequeueDeadLetterMessage{ItemID: item.ID}); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	depth, err := fx.facade.Queries().QueueDepth.Query(ctx, hqquery.QueueDepthMessage{})
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	pending := 0
	for _, row := range depth {
		if row.QueueType == core.QueueFinancial && row.Status == core.WorkItemPending {
			pending += row.Count
		}
	}
	if pending != 1 {
		t.Fatalf("expected requeued item pending, got %#v", depth)
	}
}

// flakyTimelineUnit fails the first timeline append of each transaction
// until its failure budget is spent.
type flakyTimelineUnit struct {
	core.UnitOfWork
	failures atomic.Int32
	appends  atomic.Int32
}

func (u *flakyTimelineUnit) RunInTx(ctx context.Context, fn func(ctx context.Context, tx core.Stores) error) error {
	return u.UnitOfWork.RunInTx(ctx, func(ctx context.Context, tx core.Stores) error {
		tx.Projects = flakyProjects{ProjectStore: tx.Projects, unit: u}
		return fn(ctx, tx)
	})
}

type flakyProjects struct {
	core.ProjectStore
	unit *flakyTimelineUnit
}

func (p flakyProjects) AppendTimeline(ctx context.Context, projectID string, entry core.TimelineEntry) error {
	p.unit.appends.Add(1)
	if p.unit.failures.Add(-1) >= 0 {
		return errors.New("database is locked")
	}
	return p.ProjectStore.AppendTimeline(ctx, projectID, entry)
}

func TestRuntime_RetriedAppointmentCreateAppliesOnce(t *testing.T) {
	ctx := context.Background()
	unit := &flakyTimelineUnit{}
	fx := newRuntimeFixture(t, func(cfg *core.Config, deps *hookqueue.Dependencies) {
		cfg.Queue.MaxAttempts = 3
		cfg.Queue.InitialBackoff = time.Millisecond
		cfg.Queue.MaxBackoff = 5 * time.Millisecond
		unit.UnitOfWork = deps.UnitOfWork
		deps.UnitOfWork = unit
	})

	if _, err := fx.runtime.EnqueueWebhook(ctx, core.EnqueueRequest{
		Type:      core.EventOpportunityCreate,
		WebhookID: "wh_opp",
		TenantID:  "loc_1",
		Payload: map[string]any{
			"locationId": "loc_1",
			"id":         "opp_1",
			"contactId":  "c_1",
			"status":     "open",
		},
	}); err != nil {
		t.Fatalf("enqueue opportunity: %v", err)
	}
	if stats, err := fx.runtime.RunQueue(ctx, core.QueueProjects); err != nil || stats.Succeeded != 1 {
		t.Fatalf("run projects: %#v (%v)", stats, err)
	}

	unit.failures.Store(1)
	item, err := fx.runtime.EnqueueWebhook(ctx, core.EnqueueRequest{
		Type:      core.EventAppointmentCreate,
		WebhookID: "wh_apt",
		TenantID:  "loc_1",
		Payload: map[string]any{
			"locationId": "loc_1",
			"appointment": map[string]any{
				"id":        "apt_1",
				"contactId": "c_1",
				"title":     "Site visit",
				"startTime": "2026-03-02T15:00:00Z",
			},
		},
	})
	if err != nil {
		t.Fatalf("enqueue appointment: %v", err)
	}

	var failed, succeeded int
	for run := 0; run < 5 && succeeded == 0; run++ {
		stats, err := fx.runtime.RunQueue(ctx, core.QueueAppointments)
		if err != nil {
			t.Fatalf("run appointments: %v", err)
		}
		failed += stats.Failed
		succeeded += stats.Succeeded
	}
	if failed != 1 || succeeded != 1 {
		t.Fatalf("expected one failed then one successful attempt, got failed=%d succeeded=%d", failed, succeeded)
	}
	if got := unit.appends.Load(); got != 2 {
		t.Fatalf("expected the timeline append tried twice, got %d", got)
	}

	stores := fx.factory.Stores()
	if _, err := stores.Appointments.FindAppointment(ctx, "apt_1", "loc_1"); err != nil {
		t.Fatalf("find appointment: %v", err)
	}
	project, err := stores.Projects.FindProjectByOpportunity(ctx, "opp_1", "loc_1")
	if err != nil {
		t.Fatalf("find project: %v", err)
	}
	scheduled := 0
	for _, entry := range project.Timeline {
		if entry.Event == "appointment_scheduled" {
			scheduled++
		}
	}
	if scheduled != 1 {
		t.Fatalf("expected one appointment_scheduled entry, got %+v", project.Timeline)
	}

	depth, err := fx.runtime.Depth(ctx)
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	for _, row := range depth {
		if row.QueueType != core.QueueAppointments {
			continue
		}
		if row.Status != core.WorkItemComplete || row.Count != 1 {
			t.Fatalf("expected the appointment item complete, got %#v", depth)
		}
	}
	stored, err := fx.factory.WorkItemStore().Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("get work item: %v", err)
	}
	if stored.Status != core.WorkItemComplete || stored.Attempts != 1 {
		t.Fatalf("expected complete after one recorded failure, got %+v", stored)
	}
}

func TestRuntime_UnknownEventsAreListed(t *testing.T) {
	ctx := context.Background()
	fx := newRuntimeFixture(t)

	if _, err := fx.runtime.EnqueueWebhook(ctx, core.EnqueueRequest{
		Type:      "FormSubmitted",
		WebhookID: "wh_form",
		TenantID:  "loc_9",
		Payload:   map[string]any{"locationId": "loc_9", "formId": "f_1"},
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := fx.runtime.RunQueue(ctx, core.QueueGeneral); err != nil {
		t.Fatalf("run general: %v", err)
	}

	page, err := fx.facade.Queries().ListUnhandled.Query(ctx, hqquery.ListUnhandledMessage{TenantID: "loc_9", Limit: 10})
	if err != nil {
		t.Fatalf("list unhandled: %v", err)
	}
	if page.Total != 1 || page.Items[0].Type != "FormSubmitted" {
		t.Fatalf("unexpected unhandled page: %#v", page)
	}
}

func TestRuntime_RunAllStopsWithContext(t *testing.T) {
	fx := newRuntimeFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fx.runtime.RunAll(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run all: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("expected run all to stop after cancellation")
	}
}

func newSQLiteClient(t *testing.T) *persistence.Client {
	t.Helper()
	dsn := fmt.Sprintf("file:hookqueue-runtime-%d?mode=memory&cache=shared&_foreign_keys=on", time.Now().UnixNano())
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
