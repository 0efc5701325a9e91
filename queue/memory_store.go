package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-hookqueue/core"
)

// MemoryStore is a process-local core.QueueStore. A single mutex makes every
// claim atomic, mirroring the conditional update of the SQL store.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]core.WorkItem
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]core.WorkItem{}}
}

func (s *MemoryStore) Insert(_ context.Context, item core.WorkItem) (core.WorkItem, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.WebhookID != "" {
		for _, existing := range s.items {
			if existing.QueueType == item.QueueType && existing.WebhookID == item.WebhookID {
				return cloneItem(existing), false, nil
			}
		}
	}
	if _, exists := s.items[item.ID]; exists {
		return core.WorkItem{}, false, fmt.Errorf("queue: work item %q already exists", item.ID)
	}
	s.items[item.ID] = cloneItem(item)
	return cloneItem(item), true, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (core.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return core.WorkItem{}, core.ErrWorkItemNotFound
	}
	return cloneItem(item), nil
}

func (s *MemoryStore) Claim(_ context.Context, req core.ClaimRequest) ([]core.WorkItem, error) {
	if req.Limit <= 0 {
		return []core.WorkItem{}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]core.WorkItem, 0)
	for _, item := range s.items {
		if item.QueueType == req.QueueType && item.Claimable(req.Now) {
			candidates = append(candidates, item)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		}
		return candidates[i].ID < candidates[j].ID
	})
	if len(candidates) > req.Limit {
		candidates = candidates[:req.Limit]
	}

	leaseExpiresAt := req.Now.Add(req.LeaseTTL)
	claimed := make([]core.WorkItem, 0, len(candidates))
	for _, item := range candidates {
		lease := leaseExpiresAt
		item.Status = core.WorkItemProcessing
		item.ClaimID = req.ClaimID
		item.LeaseExpiresAt = &lease
		item.UpdatedAt = req.Now
		s.items[item.ID] = item
		claimed = append(claimed, cloneItem(item))
	}
	return claimed, nil
}

func (s *MemoryStore) Complete(_ context.Context, id string, claimID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, err := s.held(id, claimID, core.WorkItemComplete)
	if err != nil || item.Status == core.WorkItemComplete {
		return err
	}
	item.Status = core.WorkItemComplete
	item.LeaseExpiresAt = nil
	item.NextAttemptAt = nil
	item.UpdatedAt = now
	s.items[id] = item
	return nil
}

func (s *MemoryStore) Fail(_ context.Context, id string, update core.FailUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, err := s.held(id, update.ClaimID, "failed")
	if err != nil {
		return err
	}
	item.Attempts++
	item.LastError = update.Reason
	item.LeaseExpiresAt = nil
	item.UpdatedAt = update.Now
	if update.Dead {
		deadAt := update.Now
		item.Status = core.WorkItemDead
		item.DeadAt = &deadAt
		item.NextAttemptAt = nil
	} else {
		item.Status = core.WorkItemPending
		item.NextAttemptAt = update.NextAttemptAt
	}
	s.items[id] = item
	return nil
}

// held returns the item when claimID still holds it. An item that is already
// complete is returned as is when completing. Callers hold s.mu.
func (s *MemoryStore) held(id string, claimID string, target core.WorkItemStatus) (core.WorkItem, error) {
	item, ok := s.items[id]
	if !ok {
		return core.WorkItem{}, core.ErrWorkItemNotFound
	}
	switch {
	case target == core.WorkItemComplete && item.Status == core.WorkItemComplete:
		return item, nil
	case item.Status.Terminal():
		return core.WorkItem{}, fmt.Errorf("%w: %s -> %s", core.ErrInvalidStatusChange, item.Status, target)
	case item.Status != core.WorkItemProcessing || item.ClaimID != claimID:
		return core.WorkItem{}, fmt.Errorf("%w: %s held by %q, not %q", core.ErrLeaseLost, id, item.ClaimID, claimID)
	}
	return item, nil
}

func (s *MemoryStore) Requeue(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return core.ErrWorkItemNotFound
	}
	if item.Status != core.WorkItemDead {
		return fmt.Errorf("%w: %s -> %s", core.ErrInvalidStatusChange, item.Status, core.WorkItemPending)
	}
	item.Status = core.WorkItemPending
	item.Attempts = 0
	item.DeadAt = nil
	item.NextAttemptAt = nil
	item.ClaimID = ""
	item.UpdatedAt = now
	s.items[id] = item
	return nil
}

func (s *MemoryStore) ListDead(_ context.Context, filter core.DeadLetterFilter) ([]core.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.WorkItem, 0)
	for _, item := range s.items {
		if item.Status != core.WorkItemDead {
			continue
		}
		if filter.QueueType != "" && item.QueueType != filter.QueueType {
			continue
		}
		if filter.TenantID != "" && item.TenantID != filter.TenantID {
			continue
		}
		out = append(out, cloneItem(item))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []core.WorkItem{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Depth(context.Context) ([]core.QueueDepth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[core.QueueType]map[core.WorkItemStatus]int{}
	for _, item := range s.items {
		byStatus, ok := counts[item.QueueType]
		if !ok {
			byStatus = map[core.WorkItemStatus]int{}
			counts[item.QueueType] = byStatus
		}
		byStatus[item.Status]++
	}
	out := make([]core.QueueDepth, 0)
	for queueType, byStatus := range counts {
		for status, count := range byStatus {
			out = append(out, core.QueueDepth{QueueType: queueType, Status: status, Count: count})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QueueType != out[j].QueueType {
			return out[i].QueueType < out[j].QueueType
		}
		return out[i].Status < out[j].Status
	})
	return out, nil
}

func cloneItem(item core.WorkItem) core.WorkItem {
	if item.Payload != nil {
		payload := make(map[string]any, len(item.Payload))
		for key, value := range item.Payload {
			payload[key] = value
		}
		item.Payload = payload
	}
	if item.LeaseExpiresAt != nil {
		value := *item.LeaseExpiresAt
		item.LeaseExpiresAt = &value
	}
	if item.NextAttemptAt != nil {
		value := *item.NextAttemptAt
		item.NextAttemptAt = &value
	}
	if item.DeadAt != nil {
		value := *item.DeadAt
		item.DeadAt = &value
	}
	return item
}

var _ core.QueueStore = (*MemoryStore)(nil)
