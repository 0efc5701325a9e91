package analytics

import (
	"context"
	"sort"
	"sync"

	"github.com/goliatone/go-hookqueue/core"
)

// MemoryMetricStore is a process-local core.MetricStore.
type MemoryMetricStore struct {
	mu      sync.Mutex
	metrics map[string]core.WebhookMetric
}

func NewMemoryMetricStore() *MemoryMetricStore {
	return &MemoryMetricStore{metrics: map[string]core.WebhookMetric{}}
}

func (s *MemoryMetricStore) InsertReceived(_ context.Context, metric core.WebhookMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.metrics[metric.WebhookID]; exists {
		return nil
	}
	s.metrics[metric.WebhookID] = metric
	return nil
}

func (s *MemoryMetricStore) Get(_ context.Context, webhookID string) (core.WebhookMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	metric, ok := s.metrics[webhookID]
	if !ok {
		return core.WebhookMetric{}, core.ErrMetricNotFound
	}
	return metric, nil
}

func (s *MemoryMetricStore) MarkStarted(_ context.Context, update core.StartedUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	metric, ok := s.metrics[update.WebhookID]
	if !ok {
		return core.ErrMetricNotFound
	}
	startedAt := update.StartedAt
	metric.ProcessingStartedAt = &startedAt
	metric.QueueWaitMs = update.QueueWaitMs
	metric.Attempts++
	metric.Status = core.MetricStatusProcessing
	s.metrics[update.WebhookID] = metric
	return nil
}

func (s *MemoryMetricStore) MarkCompleted(_ context.Context, update core.CompletedUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	metric, ok := s.metrics[update.WebhookID]
	if !ok {
		return core.ErrMetricNotFound
	}
	completedAt := update.CompletedAt
	metric.ProcessingCompletedAt = &completedAt
	metric.Status = update.Status
	metric.ProcessingMs = update.ProcessingMs
	metric.TotalMs = update.TotalMs
	metric.ExceedsSLA = update.ExceedsSLA
	metric.ErrorReason = update.ErrorReason
	s.metrics[update.WebhookID] = metric
	return nil
}

func (s *MemoryMetricStore) List(_ context.Context, filter core.MetricFilter) ([]core.WebhookMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.WebhookMetric, 0, len(s.metrics))
	for _, metric := range s.metrics {
		if filter.QueueType != "" && metric.QueueType != filter.QueueType {
			continue
		}
		if filter.TenantID != "" && metric.TenantID != filter.TenantID {
			continue
		}
		if !filter.From.IsZero() && metric.ReceivedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !metric.ReceivedAt.Before(filter.To) {
			continue
		}
		out = append(out, metric)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReceivedAt.Before(out[j].ReceivedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

var _ core.MetricStore = (*MemoryMetricStore)(nil)
