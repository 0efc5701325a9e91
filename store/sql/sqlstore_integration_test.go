package sqlstore_test

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
	hookqueuemigrations "github.com/goliatone/go-hookqueue/migrations"
	sqlstore "github.com/goliatone/go-hookqueue/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-hookqueue-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{"hookqueue_work_items", "hookqueue_dedup_markers", "hookqueue_projects"} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestWorkItemStore_InsertDedupesByWebhookID(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()
	store := factory.WorkItemStore()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first, created, err := store.Insert(ctx, newItem("wi-1", "wh-1", 5, now))
	if err != nil || !created {
		t.Fatalf("insert first: created=%t err=%v", created, err)
	}
	second, created, err := store.Insert(ctx, newItem("wi-2", "wh-1", 5, now))
	if err != nil {
		t.Fatalf("insert duplicate: %v", err)
	}
	if created {
		t.Fatalf("expected duplicate webhook id to be deduped")
	}
	if second.ID != first.ID {
		t.Fatalf("expected existing item %q, got %q", first.ID, second.ID)
	}
	if _, created, err := store.Insert(ctx, newItem("wi-3", "", 5, now)); err != nil || !created {
		t.Fatalf("insert without webhook id: created=%t err=%v", created, err)
	}
	if _, created, err := store.Insert(ctx, newItem("wi-4", "", 5, now)); err != nil || !created {
		t.Fatalf("second insert without webhook id: created=%t err=%v", created, err)
	}
}

func TestWorkItemStore_ClaimOrdersByPriorityWithoutOverlap(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()
	store := factory.WorkItemStore()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mustInsert(t, store, newItem("wi-low", "wh-low", 10, now))
	mustInsert(t, store, newItem("wi-old", "wh-old", 5, now))
	mustInsert(t, store, newItem("wi-new", "wh-new", 5, now.Add(time.Second)))
	mustInsert(t, store, newItem("wi-high", "wh-high", 1, now.Add(2*time.Second)))

	claimAt := now.Add(time.Minute)
	first, err := store.Claim(ctx, core.ClaimRequest{QueueType: core.QueueContacts, Limit: 2, ClaimID: "claim-a", Now: claimAt, LeaseTTL: 5 * time.Minute})
	if err != nil {
		t.Fatalf("claim first batch: %v", err)
	}
	if got := itemIDs(first); len(got) != 2 || got[0] != "wi-high" || got[1] != "wi-old" {
		t.Fatalf("expected [wi-high wi-old], got %v", got)
	}
	for _, item := range first {
		if item.Status != core.WorkItemProcessing || item.ClaimID != "claim-a" {
			t.Fatalf("expected processing item owned by claim-a, got %+v", item)
		}
		if item.LeaseExpiresAt == nil || !item.LeaseExpiresAt.Equal(claimAt.Add(5*time.Minute)) {
			t.Fatalf("expected lease expiry at claim+ttl, got %v", item.LeaseExpiresAt)
		}
	}

	second, err := store.Claim(ctx, core.ClaimRequest{QueueType: core.QueueContacts, Limit: 10, ClaimID: "claim-b", Now: claimAt, LeaseTTL: 5 * time.Minute})
	if err != nil {
		t.Fatalf("claim second batch: %v", err)
	}
	if got := itemIDs(second); len(got) != 2 || got[0] != "wi-new" || got[1] != "wi-low" {
		t.Fatalf("expected [wi-new wi-low], got %v", got)
	}

	third, err := store.Claim(ctx, core.ClaimRequest{QueueType: core.QueueContacts, Limit: 10, ClaimID: "claim-c", Now: claimAt, LeaseTTL: 5 * time.Minute})
	if err != nil {
		t.Fatalf("claim third batch: %v", err)
	}
	if len(third) != 0 {
		t.Fatalf("expected nothing claimable while leases are active, got %v", itemIDs(third))
	}

	reclaimed, err := store.Claim(ctx, core.ClaimRequest{QueueType: core.QueueContacts, Limit: 1, ClaimID: "claim-d", Now: claimAt.Add(6 * time.Minute), LeaseTTL: 5 * time.Minute})
	if err != nil {
		t.Fatalf("reclaim expired lease: %v", err)
	}
	if got := itemIDs(reclaimed); len(got) != 1 || got[0] != "wi-high" {
		t.Fatalf("expected expired wi-high to be reclaimed, got %v", got)
	}
	if reclaimed[0].ClaimID != "claim-d" {
		t.Fatalf("expected reclaimed item to carry the new claim id, got %q", reclaimed[0].ClaimID)
	}

	other, err := store.Claim(ctx, core.ClaimRequest{QueueType: core.QueueMessages, Limit: 10, ClaimID: "claim-e", Now: claimAt, LeaseTTL: time.Minute})
	if err != nil {
		t.Fatalf("claim other queue: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected queue types to be isolated, got %v", itemIDs(other))
	}
}

func TestWorkItemStore_ConcurrentClaimsNeverShareItems(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()
	store := factory.WorkItemStore()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		mustInsert(t, store, newItem(fmt.Sprintf("wi-%02d", i), fmt.Sprintf("wh-%02d", i), 5, now.Add(time.Duration(i)*time.Millisecond)))
	}

	var (
		mu   sync.Mutex
		seen = map[string]string{}
		wg   sync.WaitGroup
		errs = make(chan error, 4)
	)
	for worker := 0; worker < 4; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			claimID := fmt.Sprintf("claim-%d", worker)
			items, err := store.Claim(ctx, core.ClaimRequest{QueueType: core.QueueContacts, Limit: 5, ClaimID: claimID, Now: now.Add(time.Minute), LeaseTTL: time.Minute})
			if err != nil {
				errs <- err
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, item := range items {
				if owner, exists := seen[item.ID]; exists {
					errs <- fmt.Errorf("item %s claimed by %s and %s", item.ID, owner, claimID)
					return
				}
				seen[item.ID] = claimID
			}
		}(worker)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent claim: %v", err)
	}
	if len(seen) != 20 {
		t.Fatalf("expected all 20 items claimed exactly once, got %d", len(seen))
	}
}

func TestWorkItemStore_FailDeadAndRequeue(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()
	store := factory.WorkItemStore()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mustInsert(t, store, newItem("wi-1", "wh-1", 5, now))
	if _, err := store.Claim(ctx, core.ClaimRequest{QueueType: core.QueueContacts, Limit: 1, ClaimID: "c1", Now: now, LeaseTTL: time.Minute}); err != nil {
		t.Fatalf("claim: %v", err)
	}

	retryAt := now.Add(2 * time.Second)
	if err := store.Fail(ctx, "wi-1", core.FailUpdate{ClaimID: "c1", Reason: "boom", Attempts: 1, NextAttemptAt: &retryAt, Now: now}); err != nil {
		t.Fatalf("fail with retry: %v", err)
	}
	item, err := store.Get(ctx, "wi-1")
	if err != nil {
		t.Fatalf("get after fail: %v", err)
	}
	if item.Status != core.WorkItemPending || item.Attempts != 1 || item.LastError != "boom" {
		t.Fatalf("unexpected item after retryable failure: %+v", item)
	}

	early, err := store.Claim(ctx, core.ClaimRequest{QueueType: core.QueueContacts, Limit: 1, ClaimID: "c2", Now: now.Add(time.Second), LeaseTTL: time.Minute})
	if err != nil {
		t.Fatalf("claim before backoff: %v", err)
	}
	if len(early) != 0 {
		t.Fatalf("expected backoff to hold the item, got %v", itemIDs(early))
	}
	if _, err := store.Claim(ctx, core.ClaimRequest{QueueType: core.QueueContacts, Limit: 1, ClaimID: "c3", Now: retryAt, LeaseTTL: time.Minute}); err != nil {
		t.Fatalf("claim after backoff: %v", err)
	}

	if err := store.Fail(ctx, "wi-1", core.FailUpdate{ClaimID: "c3", Reason: "boom again", Attempts: 2, Dead: true, Now: retryAt}); err != nil {
		t.Fatalf("fail dead: %v", err)
	}
	dead, err := store.ListDead(ctx, core.DeadLetterFilter{QueueType: core.QueueContacts})
	if err != nil {
		t.Fatalf("list dead: %v", err)
	}
	if len(dead) != 1 || dead[0].ID != "wi-1" || dead[0].DeadAt == nil || dead[0].LastError != "boom again" || dead[0].Attempts != 2 {
		t.Fatalf("unexpected dead letters: %+v", dead)
	}
	if err := store.Complete(ctx, "wi-1", "c3", retryAt); !errors.Is(err, core.ErrInvalidStatusChange) {
		t.Fatalf("expected dead item completion to be rejected, got %v", err)
	}

	if err := store.Requeue(ctx, "wi-1", retryAt.Add(time.Minute)); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	item, err = store.Get(ctx, "wi-1")
	if err != nil {
		t.Fatalf("get after requeue: %v", err)
	}
	if item.Status != core.WorkItemPending || item.Attempts != 0 || item.DeadAt != nil {
		t.Fatalf("unexpected item after requeue: %+v", item)
	}
	if err := store.Requeue(ctx, "wi-1", retryAt.Add(time.Minute)); !errors.Is(err, core.ErrInvalidStatusChange) {
		t.Fatalf("expected requeue of pending item to be rejected, got %v", err)
	}

	if err := store.Complete(ctx, "wi-1", "c4", retryAt.Add(2*time.Minute)); !errors.Is(err, core.ErrLeaseLost) {
		t.Fatalf("expected completion of an unclaimed item to be rejected, got %v", err)
	}
	if _, err := store.Claim(ctx, core.ClaimRequest{QueueType: core.QueueContacts, Limit: 1, ClaimID: "c4", Now: retryAt.Add(2 * time.Minute), LeaseTTL: time.Minute}); err != nil {
		t.Fatalf("claim after requeue: %v", err)
	}
	if err := store.Complete(ctx, "wi-1", "c4", retryAt.Add(2*time.Minute)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := store.Complete(ctx, "wi-1", "c4", retryAt.Add(3*time.Minute)); err != nil {
		t.Fatalf("expected repeated completion to be a no-op, got %v", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, core.ErrWorkItemNotFound) {
		t.Fatalf("expected not found for missing item, got %v", err)
	}

	depth, err := store.Depth(ctx)
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if len(depth) != 1 || depth[0].Status != core.WorkItemComplete || depth[0].Count != 1 {
		t.Fatalf("unexpected depth: %+v", depth)
	}
}

func TestWorkItemStore_StaleClaimCannotFailOrComplete(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()
	store := factory.WorkItemStore()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mustInsert(t, store, newItem("wi-1", "wh-1", 5, now))
	first, err := store.Claim(ctx, core.ClaimRequest{QueueType: core.QueueContacts, Limit: 1, ClaimID: "claim-a", Now: now, LeaseTTL: time.Minute})
	if err != nil || len(first) != 1 {
		t.Fatalf("first claim: %d (%v)", len(first), err)
	}

	reclaimAt := now.Add(2 * time.Minute)
	second, err := store.Claim(ctx, core.ClaimRequest{QueueType: core.QueueContacts, Limit: 1, ClaimID: "claim-b", Now: reclaimAt, LeaseTTL: time.Minute})
	if err != nil || len(second) != 1 {
		t.Fatalf("reclaim after lease expiry: %d (%v)", len(second), err)
	}

	retryAt := reclaimAt.Add(time.Second)
	err = store.Fail(ctx, "wi-1", core.FailUpdate{ClaimID: "claim-a", Reason: "late failure", Attempts: 1, NextAttemptAt: &retryAt, Now: reclaimAt})
	if !errors.Is(err, core.ErrLeaseLost) {
		t.Fatalf("expected stale failure to be rejected, got %v", err)
	}
	if err := store.Complete(ctx, "wi-1", "claim-a", reclaimAt); !errors.Is(err, core.ErrLeaseLost) {
		t.Fatalf("expected stale completion to be rejected, got %v", err)
	}

	third, err := store.Claim(ctx, core.ClaimRequest{QueueType: core.QueueContacts, Limit: 1, ClaimID: "claim-c", Now: reclaimAt.Add(2 * time.Second), LeaseTTL: time.Minute})
	if err != nil {
		t.Fatalf("third claim: %v", err)
	}
	if len(third) != 0 {
		t.Fatalf("expected item to stay with the live claim, got %v", itemIDs(third))
	}
	item, err := store.Get(ctx, "wi-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if item.Status != core.WorkItemProcessing || item.ClaimID != "claim-b" || item.Attempts != 0 || item.LastError != "" {
		t.Fatalf("expected item untouched by the stale worker, got %+v", item)
	}

	if err := store.Complete(ctx, "wi-1", "claim-b", reclaimAt.Add(3*time.Second)); err != nil {
		t.Fatalf("complete with live claim: %v", err)
	}
}

func TestMarkerStore_WindowAndPrune(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()
	markers := factory.MarkerStore()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := markers.Acquire(ctx, "c-1", "contact.created", now, 5*time.Second); err != nil {
		t.Fatalf("acquire first: %v", err)
	}
	if err := markers.Acquire(ctx, "c-1", "contact.created", now.Add(1500*time.Millisecond), 5*time.Second); !errors.Is(err, core.ErrMarkerExists) {
		t.Fatalf("expected live marker to block, got %v", err)
	}
	if err := markers.Acquire(ctx, "c-1", "contact.updated", now.Add(time.Second), 5*time.Second); err != nil {
		t.Fatalf("expected different event type to pass, got %v", err)
	}
	if err := markers.Acquire(ctx, "c-1", "contact.created", now.Add(7500*time.Millisecond), 5*time.Second); err != nil {
		t.Fatalf("expected expired marker to be revived, got %v", err)
	}

	pruned, err := markers.PruneExpired(ctx, now.Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 2 {
		t.Fatalf("expected 2 expired markers pruned, got %d", pruned)
	}
}

func TestMetricStore_IdempotentReceiveAndLifecycle(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()
	metrics := factory.MetricStore()

	received := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	metric := core.WebhookMetric{
		WebhookID:   "wh-1",
		Type:        core.EventContactCreate,
		QueueType:   core.QueueContacts,
		TenantID:    "loc-1",
		Status:      core.MetricStatusReceived,
		ReceivedAt:  received,
		SLATargetMs: 60000,
	}
	if err := metrics.InsertReceived(ctx, metric); err != nil {
		t.Fatalf("insert received: %v", err)
	}
	metric.ReceivedAt = received.Add(time.Hour)
	if err := metrics.InsertReceived(ctx, metric); err != nil {
		t.Fatalf("repeat insert received: %v", err)
	}

	stored, err := metrics.Get(ctx, "wh-1")
	if err != nil {
		t.Fatalf("get metric: %v", err)
	}
	if !stored.ReceivedAt.Equal(received) {
		t.Fatalf("expected first received time to win, got %v", stored.ReceivedAt)
	}

	if err := metrics.MarkStarted(ctx, core.StartedUpdate{WebhookID: "wh-1", StartedAt: received.Add(2 * time.Second), QueueWaitMs: 2000}); err != nil {
		t.Fatalf("mark started: %v", err)
	}
	if err := metrics.MarkCompleted(ctx, core.CompletedUpdate{
		WebhookID:    "wh-1",
		Status:       core.MetricStatusSuccess,
		CompletedAt:  received.Add(3 * time.Second),
		ProcessingMs: 1000,
		TotalMs:      3000,
	}); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	stored, err = metrics.Get(ctx, "wh-1")
	if err != nil {
		t.Fatalf("get completed metric: %v", err)
	}
	if stored.Status != core.MetricStatusSuccess || stored.Attempts != 1 || stored.QueueWaitMs != 2000 || stored.TotalMs != 3000 {
		t.Fatalf("unexpected completed metric: %+v", stored)
	}

	if err := metrics.MarkStarted(ctx, core.StartedUpdate{WebhookID: "missing", StartedAt: received}); !errors.Is(err, core.ErrMetricNotFound) {
		t.Fatalf("expected metric not found, got %v", err)
	}

	listed, err := metrics.List(ctx, core.MetricFilter{QueueType: core.QueueContacts, From: received.Add(-time.Minute), To: received.Add(time.Minute)})
	if err != nil {
		t.Fatalf("list metrics: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected one metric in range, got %d", len(listed))
	}
	empty, err := metrics.List(ctx, core.MetricFilter{From: received.Add(time.Minute)})
	if err != nil {
		t.Fatalf("list metrics after range: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no metrics after range, got %d", len(empty))
	}
}

func TestContactStore_UpsertIsIdempotentAndSoftDeletes(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()
	contacts := factory.Stores().Contacts

	first, created, err := contacts.UpsertContact(ctx, core.Contact{
		ExternalID: "ghl123",
		LocationID: "loc-1",
		FirstName:  "Ada",
		Email:      "ada@example.com",
		Tags:       []string{"vip"},
	})
	if err != nil || !created {
		t.Fatalf("first upsert: created=%t err=%v", created, err)
	}
	second, created, err := contacts.UpsertContact(ctx, core.Contact{
		ExternalID: "ghl123",
		LocationID: "loc-1",
		FirstName:  "Ada",
		LastName:   "Lovelace",
		Email:      "ada@example.com",
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if created {
		t.Fatalf("expected second upsert to update in place")
	}
	if second.ID != first.ID {
		t.Fatalf("expected identity %q to survive, got %q", first.ID, second.ID)
	}

	found, err := contacts.FindContact(ctx, "ghl123", "loc-1")
	if err != nil {
		t.Fatalf("find contact: %v", err)
	}
	if found.LastName != "Lovelace" || len(found.Tags) != 0 {
		t.Fatalf("expected last write to overwrite fields, got %+v", found)
	}

	if _, err := contacts.FindContact(ctx, "ghl123", "loc-2"); !errors.Is(err, core.ErrEntityNotFound) {
		t.Fatalf("expected location scoping, got %v", err)
	}

	deletedAt := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	deleted, err := contacts.SoftDeleteContact(ctx, "ghl123", "loc-1", deletedAt)
	if err != nil || !deleted {
		t.Fatalf("soft delete: deleted=%t err=%v", deleted, err)
	}
	deleted, err = contacts.SoftDeleteContact(ctx, "ghl123", "loc-1", deletedAt)
	if err != nil || deleted {
		t.Fatalf("expected repeated soft delete to report false, got deleted=%t err=%v", deleted, err)
	}
	found, err = contacts.FindContact(ctx, "ghl123", "loc-1")
	if err != nil {
		t.Fatalf("find deleted contact: %v", err)
	}
	if !found.Deleted || found.DeletedAt == nil {
		t.Fatalf("expected soft deleted contact to be retained, got %+v", found)
	}

	if _, _, err := contacts.UpsertContact(ctx, core.Contact{LocationID: "loc-1"}); core.KindOf(err) != core.KindValidation {
		t.Fatalf("expected validation error for missing external id, got %v", err)
	}
}

func TestProjectStore_TimelineAppendIsTransactional(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	project, _, err := factory.Stores().Projects.UpsertProject(ctx, core.Project{
		OpportunityID: "opp1",
		LocationID:    "loc-1",
		ExtContact:    "ghl123",
		Title:         "Kitchen remodel",
		Status:        core.ProjectStatusOpen,
	})
	if err != nil {
		t.Fatalf("upsert project: %v", err)
	}

	err = factory.RunInTx(ctx, func(ctx context.Context, tx core.Stores) error {
		return tx.Projects.AppendTimeline(ctx, project.ID, core.TimelineEntry{Event: "invoice_paid", SourceType: "invoice", SourceID: "inv-1"})
	})
	if err != nil {
		t.Fatalf("append in tx: %v", err)
	}

	rollback := errors.New("rollback")
	err = factory.RunInTx(ctx, func(ctx context.Context, tx core.Stores) error {
		if err := tx.Projects.AppendTimeline(ctx, project.ID, core.TimelineEntry{Event: "discarded"}); err != nil {
			return err
		}
		return rollback
	})
	if !errors.Is(err, rollback) {
		t.Fatalf("expected rollback error, got %v", err)
	}

	if _, _, err := factory.Stores().Projects.UpsertProject(ctx, core.Project{
		OpportunityID: "opp1",
		LocationID:    "loc-1",
		ExtContact:    "ghl123",
		Title:         "Kitchen remodel v2",
		Status:        core.ProjectStatusOpen,
	}); err != nil {
		t.Fatalf("re-upsert project: %v", err)
	}

	stored, err := factory.Stores().Projects.FindProjectByOpportunity(ctx, "opp1", "loc-1")
	if err != nil {
		t.Fatalf("find project: %v", err)
	}
	if len(stored.Timeline) != 1 || stored.Timeline[0].Event != "invoice_paid" || stored.Timeline[0].ID == "" {
		t.Fatalf("expected one committed timeline entry kept across upserts, got %+v", stored.Timeline)
	}
	if stored.Title != "Kitchen remodel v2" {
		t.Fatalf("expected title overwrite, got %q", stored.Title)
	}

	open, err := factory.Stores().Projects.FindOpenProjectForContact(ctx, "ghl123", "loc-1")
	if err != nil || open.ID != project.ID {
		t.Fatalf("find open project: id=%q err=%v", open.ID, err)
	}
	if _, _, err := factory.Stores().Projects.UpsertProject(ctx, core.Project{
		OpportunityID: "opp1",
		LocationID:    "loc-1",
		ExtContact:    "ghl123",
		Status:        core.ProjectStatusWon,
	}); err != nil {
		t.Fatalf("close project: %v", err)
	}
	if _, err := factory.Stores().Projects.FindOpenProjectForContact(ctx, "ghl123", "loc-1"); !errors.Is(err, core.ErrEntityNotFound) {
		t.Fatalf("expected won project to be excluded, got %v", err)
	}
}

func TestMessageStore_UnreadCounterNeverNegative(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()
	messages := factory.Stores().Messages

	conversation, _, err := messages.UpsertConversation(ctx, core.Conversation{ExternalID: "conv-1", LocationID: "loc-1"})
	if err != nil {
		t.Fatalf("upsert conversation: %v", err)
	}
	if err := messages.IncrementUnread(ctx, conversation.ID, 2); err != nil {
		t.Fatalf("increment unread: %v", err)
	}
	if err := messages.IncrementUnread(ctx, conversation.ID, -5); err != nil {
		t.Fatalf("decrement unread: %v", err)
	}
	stored, err := messages.FindConversation(ctx, "conv-1", "loc-1")
	if err != nil {
		t.Fatalf("find conversation: %v", err)
	}
	if stored.UnreadCount != 0 {
		t.Fatalf("expected unread count clamped at 0, got %d", stored.UnreadCount)
	}
	if err := messages.IncrementUnread(ctx, "missing", 1); !errors.Is(err, core.ErrEntityNotFound) {
		t.Fatalf("expected missing conversation error, got %v", err)
	}
}

func TestCleanupStore_PurgesDerivativesOnly(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()
	db := factory.DB()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mustInsert(t, factory.WorkItemStore(), withTenant(newItem("wi-uninstall", "wh-u", 1, now), "loc-1"))
	mustInsert(t, factory.WorkItemStore(), withTenant(newItem("wi-pending", "wh-p", 5, now), "loc-1"))
	mustInsert(t, factory.WorkItemStore(), withTenant(newItem("wi-other", "wh-o", 5, now), "loc-2"))
	for _, stmt := range []string{
		"INSERT INTO hookqueue_automation_rules (id, location_id, name) VALUES ('ar-1', 'loc-1', 'follow up')",
		"INSERT INTO hookqueue_automation_rules (id, location_id, name) VALUES ('ar-2', 'loc-2', 'follow up')",
		"INSERT INTO hookqueue_sync_states (id, location_id, resource) VALUES ('ss-1', 'loc-1', 'contacts')",
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("seed derivative row: %v", err)
		}
	}
	if _, _, err := factory.Stores().Contacts.UpsertContact(ctx, core.Contact{ExternalID: "ghl123", LocationID: "loc-1"}); err != nil {
		t.Fatalf("seed contact: %v", err)
	}

	var report core.CleanupReport
	err := factory.RunInTx(ctx, func(ctx context.Context, tx core.Stores) error {
		var err error
		report, err = tx.Cleanup.PurgeDerivatives(ctx, "loc-1", "wi-uninstall", 100)
		return err
	})
	if err != nil {
		t.Fatalf("purge derivatives: %v", err)
	}
	if report.AutomationRules != 1 || report.QueuedJobs != 1 || report.SyncStates != 1 {
		t.Fatalf("unexpected cleanup report: %+v", report)
	}

	if _, err := factory.WorkItemStore().Get(ctx, "wi-uninstall"); err != nil {
		t.Fatalf("expected the uninstall item itself to survive: %v", err)
	}
	if _, err := factory.WorkItemStore().Get(ctx, "wi-other"); err != nil {
		t.Fatalf("expected other tenant item to survive: %v", err)
	}
	if _, err := factory.WorkItemStore().Get(ctx, "wi-pending"); !errors.Is(err, core.ErrWorkItemNotFound) {
		t.Fatalf("expected pending tenant item to be purged, got %v", err)
	}
	if _, err := factory.Stores().Contacts.FindContact(ctx, "ghl123", "loc-1"); err != nil {
		t.Fatalf("expected business records to survive cleanup: %v", err)
	}
	var remainingRules int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM hookqueue_automation_rules").Scan(&remainingRules); err != nil {
		t.Fatalf("count automation rules: %v", err)
	}
	if remainingRules != 1 {
		t.Fatalf("expected other tenant rule to survive, got %d rows", remainingRules)
	}
}

func TestCachedLocationStore_ReadThroughAndInvalidateOnWrite(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	base := factory.Stores().Locations
	cacheService, err := sqlstore.NewLocationCacheService(time.Minute)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	cached, err := sqlstore.NewCachedLocationStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached location store: %v", err)
	}

	if _, err := cached.UpsertLocation(ctx, core.Location{ExternalID: "loc-1", Name: "First", Status: core.LocationStatusActive}); err != nil {
		t.Fatalf("upsert location: %v", err)
	}
	location, err := cached.GetLocation(ctx, "loc-1")
	if err != nil || location.Name != "First" {
		t.Fatalf("get location: name=%q err=%v", location.Name, err)
	}

	if _, err := base.UpsertLocation(ctx, core.Location{ExternalID: "loc-1", Name: "Behind the cache", Status: core.LocationStatusActive}); err != nil {
		t.Fatalf("base upsert: %v", err)
	}
	location, err = cached.GetLocation(ctx, "loc-1")
	if err != nil || location.Name != "First" {
		t.Fatalf("expected cached read, got name=%q err=%v", location.Name, err)
	}

	if _, err := cached.UpsertLocation(ctx, core.Location{ExternalID: "loc-1", Name: "Second", Status: core.LocationStatusActive}); err != nil {
		t.Fatalf("cached upsert: %v", err)
	}
	location, err = cached.GetLocation(ctx, "loc-1")
	if err != nil || location.Name != "Second" {
		t.Fatalf("expected invalidated read, got name=%q err=%v", location.Name, err)
	}

	if _, err := cached.GetLocation(ctx, "missing"); !errors.Is(err, core.ErrLocationNotFound) {
		t.Fatalf("expected location not found, got %v", err)
	}
}

func TestUnhandledStore_RedactsAndLists(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	err := factory.Stores().Unhandled.RecordUnhandled(ctx, core.UnhandledEvent{
		WebhookID: "wh-1",
		Type:      core.EventCampaignStatusUpdate,
		TenantID:  "loc-1",
		QueueType: core.QueueGeneral,
		Payload:   map[string]any{"campaign": "c-1", "access_token": "secret-value"},
		Reason:    "no handler registered",
	})
	if err != nil {
		t.Fatalf("record unhandled: %v", err)
	}

	events, total, err := factory.UnhandledStore().ListUnhandled(ctx, "loc-1", 10, 0)
	if err != nil {
		t.Fatalf("list unhandled: %v", err)
	}
	if total != 1 || len(events) != 1 {
		t.Fatalf("expected one unhandled event, got total=%d len=%d", total, len(events))
	}
	if events[0].Payload["access_token"] != "[REDACTED]" || events[0].Payload["campaign"] != "c-1" {
		t.Fatalf("unexpected stored payload: %+v", events[0].Payload)
	}
}

func newFactory(t *testing.T) (*sqlstore.RepositoryFactory, func()) {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		cleanup()
		t.Fatalf("new repository factory: %v", err)
	}
	return factory, cleanup
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:hookqueue-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = hookqueuemigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != hookqueuemigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, hookqueuemigrations.WithValidationTargets(hookqueuemigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func newItem(id string, webhookID string, priority int, createdAt time.Time) core.WorkItem {
	return core.WorkItem{
		ID:          id,
		QueueType:   core.QueueContacts,
		Type:        core.EventContactCreate,
		WebhookID:   webhookID,
		TenantID:    "loc-1",
		Payload:     map[string]any{"id": id},
		Priority:    priority,
		MaxAttempts: 3,
		Status:      core.WorkItemPending,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func withTenant(item core.WorkItem, tenantID string) core.WorkItem {
	item.TenantID = tenantID
	return item
}

func mustInsert(t *testing.T, store *sqlstore.WorkItemStore, item core.WorkItem) {
	t.Helper()
	if _, _, err := store.Insert(context.Background(), item); err != nil {
		t.Fatalf("insert %s: %v", item.ID, err)
	}
}

func itemIDs(items []core.WorkItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}
