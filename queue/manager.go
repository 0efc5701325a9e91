package queue

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goliatone/go-hookqueue/core"
	"github.com/google/uuid"
)

const (
	DefaultBatchSize   = 50
	DefaultLeaseTTL    = 5 * time.Minute
	DefaultMaxAttempts = 5
)

type Manager struct {
	Store       core.QueueStore
	RetryPolicy RetryPolicy
	Analytics   core.AnalyticsRecorder
	LeaseTTL    time.Duration
	MaxAttempts int
	Now         func() time.Time
	NewID       func() string

	observer *core.Observer
}

func NewManager(store core.QueueStore) *Manager {
	return &Manager{
		Store:       store,
		RetryPolicy: ExponentialRetryPolicy{},
		LeaseTTL:    DefaultLeaseTTL,
		MaxAttempts: DefaultMaxAttempts,
		Now: func() time.Time {
			return time.Now().UTC()
		},
		NewID:    uuid.NewString,
		observer: core.NewObserver("hookqueue.queue", nil, nil),
	}
}

// NewManagerFromConfig applies the queue section of cfg.
func NewManagerFromConfig(store core.QueueStore, cfg core.QueueConfig) *Manager {
	manager := NewManager(store)
	if cfg.LeaseTTL > 0 {
		manager.LeaseTTL = cfg.LeaseTTL
	}
	if cfg.MaxAttempts > 0 {
		manager.MaxAttempts = cfg.MaxAttempts
	}
	manager.RetryPolicy = ExponentialRetryPolicy{Initial: cfg.InitialBackoff, Max: cfg.MaxBackoff}
	return manager
}

func (m *Manager) WithObserver(observer *core.Observer) *Manager {
	if m != nil && observer != nil {
		m.observer = observer
	}
	return m
}

// Enqueue persists a pending work item routed by event type. A second
// enqueue of the same webhook id on the same queue type returns the
// existing item.
func (m *Manager) Enqueue(ctx context.Context, req core.EnqueueRequest) (core.WorkItem, error) {
	if err := m.ready(); err != nil {
		return core.WorkItem{}, err
	}
	eventType := strings.TrimSpace(req.Type)
	if eventType == "" {
		return core.WorkItem{}, core.NewValidationError("type", "event type is required")
	}
	route := core.RouteEvent(eventType)
	if req.QueueType != "" {
		queueType, err := core.ParseQueueType(string(req.QueueType))
		if err != nil {
			return core.WorkItem{}, core.NewValidationError("queue_type", err.Error())
		}
		route.QueueType = queueType
	}
	priority := route.Priority
	if req.Priority > 0 {
		priority = req.Priority
	}
	webhookID := strings.TrimSpace(req.WebhookID)
	if webhookID == "" {
		webhookID = m.newID()
	}
	payload := req.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	now := m.now()
	item := core.WorkItem{
		ID:          m.newID(),
		QueueType:   route.QueueType,
		Type:        eventType,
		WebhookID:   webhookID,
		TenantID:    strings.TrimSpace(req.TenantID),
		CompanyID:   strings.TrimSpace(req.CompanyID),
		Payload:     payload,
		Priority:    priority,
		MaxAttempts: m.maxAttempts(),
		Status:      core.WorkItemPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	stored, created, err := m.Store.Insert(ctx, item)
	m.observer.ObserveOperation(ctx, now, "enqueue", err, map[string]any{
		"queue_type": string(route.QueueType),
		"event_type": eventType,
		"webhook_id": webhookID,
		"created":    created,
	})
	if err != nil {
		return core.WorkItem{}, err
	}
	if created && m.Analytics != nil {
		if recErr := m.Analytics.RecordReceived(ctx, core.ReceivedInput{
			WebhookID:  stored.WebhookID,
			Type:       stored.Type,
			QueueType:  stored.QueueType,
			TenantID:   stored.TenantID,
			ReceivedAt: stored.CreatedAt,
		}); recErr != nil {
			m.observer.LogWarn(ctx, "analytics received record failed", map[string]any{
				"webhook_id": stored.WebhookID,
				"error":      recErr.Error(),
			})
		}
	}
	return stored, nil
}

// GetNextBatch claims up to batchSize claimable items of queueType in one
// conditional update. Items of other queue types are never returned.
func (m *Manager) GetNextBatch(ctx context.Context, queueType core.QueueType, batchSize int) ([]core.WorkItem, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	parsed, err := core.ParseQueueType(string(queueType))
	if err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	startedAt := time.Now()
	items, err := m.Store.Claim(ctx, core.ClaimRequest{
		QueueType: parsed,
		Limit:     batchSize,
		ClaimID:   m.newID(),
		Now:       m.now(),
		LeaseTTL:  m.leaseTTL(),
	})
	m.observer.ObserveOperation(ctx, startedAt, "get_next_batch", err, map[string]any{
		"queue_type": string(parsed),
		"claimed":    len(items),
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// MarkComplete finalizes an item claimed under claimID. A worker whose claim
// was taken over after its lease expired gets core.ErrLeaseLost.
func (m *Manager) MarkComplete(ctx context.Context, id string, claimID string) error {
	if err := m.ready(); err != nil {
		return err
	}
	id, claimID = strings.TrimSpace(id), strings.TrimSpace(claimID)
	if err := requireClaim(id, claimID); err != nil {
		return err
	}
	return m.Store.Complete(ctx, id, claimID, m.now())
}

// MarkFailed records a failed attempt. The item returns to pending with a
// backoff delay, or is dead-lettered once attempts reach the maximum. The
// payload is always preserved.
func (m *Manager) MarkFailed(ctx context.Context, id string, claimID string, reason string) (core.FailureOutcome, error) {
	if err := m.ready(); err != nil {
		return core.FailureOutcome{}, err
	}
	id, claimID = strings.TrimSpace(id), strings.TrimSpace(claimID)
	if err := requireClaim(id, claimID); err != nil {
		return core.FailureOutcome{}, err
	}
	item, err := m.Store.Get(ctx, id)
	if err != nil {
		return core.FailureOutcome{}, err
	}
	if item.Status.Terminal() {
		return core.FailureOutcome{}, fmt.Errorf("%w: %s -> failed", core.ErrInvalidStatusChange, item.Status)
	}
	if item.Status != core.WorkItemProcessing || item.ClaimID != claimID {
		return core.FailureOutcome{}, fmt.Errorf("%w: %s held by %q, not %q", core.ErrLeaseLost, id, item.ClaimID, claimID)
	}

	now := m.now()
	maxAttempts := item.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = m.maxAttempts()
	}
	attempts := item.Attempts + 1
	outcome := core.FailureOutcome{
		ID:       id,
		Attempts: attempts,
		Dead:     attempts >= maxAttempts,
	}
	if !outcome.Dead {
		next := now.Add(m.retryPolicy().NextDelay(attempts))
		outcome.NextAttemptAt = &next
	}
	err = m.Store.Fail(ctx, id, core.FailUpdate{
		ClaimID:       claimID,
		Reason:        truncateReason(reason),
		Attempts:      attempts,
		Dead:          outcome.Dead,
		NextAttemptAt: outcome.NextAttemptAt,
		Now:           now,
	})
	if err != nil {
		return core.FailureOutcome{}, err
	}
	if outcome.Dead {
		m.observer.LogWarn(ctx, "work item dead-lettered", map[string]any{
			"id":         id,
			"webhook_id": item.WebhookID,
			"queue_type": string(item.QueueType),
			"event_type": item.Type,
			"attempts":   attempts,
			"reason":     reason,
		})
		m.observer.Count(ctx, "hookqueue.dead_letter.total", 1, map[string]string{"queue_type": string(item.QueueType)})
	}
	return outcome, nil
}

func (m *Manager) ListDeadLetters(ctx context.Context, filter core.DeadLetterFilter) ([]core.WorkItem, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultBatchSize
	}
	return m.Store.ListDead(ctx, filter)
}

// Requeue replays a dead item with a fresh attempt budget.
func (m *Manager) Requeue(ctx context.Context, id string) error {
	if err := m.ready(); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.NewValidationError("id", "work item id is required")
	}
	return m.Store.Requeue(ctx, id, m.now())
}

func (m *Manager) Depth(ctx context.Context) ([]core.QueueDepth, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	return m.Store.Depth(ctx)
}

func (m *Manager) ready() error {
	if m == nil || m.Store == nil {
		return core.NewInternalError(nil, "queue: manager requires a store")
	}
	return nil
}

func (m *Manager) now() time.Time {
	if m != nil && m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *Manager) newID() string {
	if m != nil && m.NewID != nil {
		return m.NewID()
	}
	return uuid.NewString()
}

func (m *Manager) retryPolicy() RetryPolicy {
	if m != nil && m.RetryPolicy != nil {
		return m.RetryPolicy
	}
	return ExponentialRetryPolicy{}
}

func (m *Manager) leaseTTL() time.Duration {
	if m != nil && m.LeaseTTL > 0 {
		return m.LeaseTTL
	}
	return DefaultLeaseTTL
}

func (m *Manager) maxAttempts() int {
	if m != nil && m.MaxAttempts > 0 {
		return m.MaxAttempts
	}
	return DefaultMaxAttempts
}

func requireClaim(id string, claimID string) error {
	if id == "" {
		return core.NewValidationError("id", "work item id is required")
	}
	if claimID == "" {
		return core.NewValidationError("claim_id", "claim id is required")
	}
	return nil
}

const maxReasonLength = 1024

// truncateReason caps reason at maxReasonLength bytes without splitting a rune.
func truncateReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if len(reason) <= maxReasonLength {
		return reason
	}
	cut := maxReasonLength
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}

var _ core.QueueManager = (*Manager)(nil)
