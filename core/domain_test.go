package core

import (
	"errors"
	"testing"
	"time"
)

func TestRouteEvent(t *testing.T) {
	cases := map[string]Route{
		EventInstall:           {QueueType: QueueCritical, Priority: 1},
		EventContactCreate:     {QueueType: QueueContacts, Priority: 5},
		EventInboundMessage:    {QueueType: QueueMessages, Priority: 2},
		EventAppointmentUpdate: {QueueType: QueueAppointments, Priority: 3},
		EventInvoicePaid:       {QueueType: QueueFinancial, Priority: 3},
		EventTaskCreate:        {QueueType: QueueProjects, Priority: 5},
		"SomethingNew":         {QueueType: QueueGeneral, Priority: 10},
	}
	for eventType, want := range cases {
		if got := RouteEvent(eventType); got != want {
			t.Fatalf("%s: expected %+v, got %+v", eventType, want, got)
		}
	}
}

func TestParseQueueType(t *testing.T) {
	got, err := ParseQueueType(" Critical ")
	if err != nil || got != QueueCritical {
		t.Fatalf("expected critical, got %q (%v)", got, err)
	}
	if _, err := ParseQueueType("bulk"); !errors.Is(err, ErrInvalidQueueType) {
		t.Fatalf("expected ErrInvalidQueueType, got %v", err)
	}
}

func TestWorkItem_Claimable(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	cases := []struct {
		name string
		item WorkItem
		want bool
	}{
		{"pending", WorkItem{Status: WorkItemPending}, true},
		{"pending backoff", WorkItem{Status: WorkItemPending, NextAttemptAt: &future}, false},
		{"pending due", WorkItem{Status: WorkItemPending, NextAttemptAt: &past}, true},
		{"leased", WorkItem{Status: WorkItemProcessing, LeaseExpiresAt: &future}, false},
		{"lease expired", WorkItem{Status: WorkItemProcessing, LeaseExpiresAt: &past}, true},
		{"complete", WorkItem{Status: WorkItemComplete}, false},
		{"dead", WorkItem{Status: WorkItemDead}, false},
	}
	for _, tc := range cases {
		if got := tc.item.Claimable(now); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestEventTypesFor_CoversRoutes(t *testing.T) {
	total := 0
	for _, queueType := range QueueTypes() {
		total += len(EventTypesFor(queueType))
	}
	if total != len(eventRoutes) {
		t.Fatalf("expected %d routed types, got %d", len(eventRoutes), total)
	}
	if len(EventTypesFor(QueueGeneral)) != 0 {
		t.Fatalf("general queue has no explicit routes")
	}
}

func TestLocation_HasCredentials(t *testing.T) {
	now := time.Now()
	expired := now.Add(-time.Hour)
	if (Location{}).HasCredentials(now) {
		t.Fatalf("expected missing token to report no credentials")
	}
	if (Location{AccessToken: "tok", TokenExpiresAt: &expired}).HasCredentials(now) {
		t.Fatalf("expected expired token to report no credentials")
	}
	if !(Location{AccessToken: "tok"}).HasCredentials(now) {
		t.Fatalf("expected token without expiry to be usable")
	}
}
