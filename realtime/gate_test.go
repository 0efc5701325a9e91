package realtime

import (
	"context"
	"errors"
	"testing"
	"time"
)

type failingMarkerStore struct {
	acquireErr error
	prunes     int
}

func (s *failingMarkerStore) Acquire(context.Context, string, string, time.Time, time.Duration) error {
	return s.acquireErr
}

func (s *failingMarkerStore) PruneExpired(context.Context, time.Time, int) (int, error) {
	s.prunes++
	return 0, nil
}

func TestGate_DedupWindow(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	gate := NewGate(NewMemoryMarkerStore(), 5000*time.Millisecond)
	gate.Now = func() time.Time { return now }
	ctx := context.Background()

	if !gate.ShouldPublish(ctx, "contact-1", "contact.updated") {
		t.Fatalf("expected first publish to pass")
	}
	now = now.Add(1500 * time.Millisecond)
	if gate.ShouldPublish(ctx, "contact-1", "contact.updated") {
		t.Fatalf("expected second publish inside the window to be suppressed")
	}
	if !gate.ShouldPublish(ctx, "contact-1", "contact.deleted") {
		t.Fatalf("expected a different event type to pass")
	}
	now = now.Add(4500 * time.Millisecond)
	if !gate.ShouldPublish(ctx, "contact-1", "contact.updated") {
		t.Fatalf("expected publish after 6000ms to pass")
	}
}

func TestGate_FailsOpenOnStoreError(t *testing.T) {
	store := &failingMarkerStore{acquireErr: errors.New("connection reset")}
	gate := NewGate(store, time.Second)

	if !gate.ShouldPublish(context.Background(), "entity", "event") {
		t.Fatalf("expected store errors to fail open")
	}
	if store.prunes != 0 {
		t.Fatalf("expected no prune after a failed insert")
	}
}

func TestGate_PrunesExpiredMarkers(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	store := NewMemoryMarkerStore()
	gate := NewGate(store, time.Second)
	gate.Now = func() time.Time { return now }
	ctx := context.Background()

	gate.ShouldPublish(ctx, "a", "evt")
	gate.ShouldPublish(ctx, "b", "evt")
	now = now.Add(2 * time.Second)
	gate.ShouldPublish(ctx, "c", "evt")

	if store.Len() != 1 {
		t.Fatalf("expected expired markers pruned, %d remain", store.Len())
	}
}

func TestGate_EmptyKeyAlwaysPublishes(t *testing.T) {
	gate := NewGate(NewMemoryMarkerStore(), time.Second)
	if !gate.ShouldPublish(context.Background(), "", "evt") || !gate.ShouldPublish(context.Background(), "", "evt") {
		t.Fatalf("expected empty entity ids to bypass dedup")
	}
	var nilGate *Gate
	if !nilGate.ShouldPublish(context.Background(), "a", "b") {
		t.Fatalf("expected nil gate to publish")
	}
}
