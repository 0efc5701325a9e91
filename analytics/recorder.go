// Package analytics records per-webhook timing and SLA accounting.
//
// A metric is written at exactly three points: arrival, dequeue and
// completion. Nothing here feeds back into processing decisions.
package analytics

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-hookqueue/core"
)

type Recorder struct {
	Store   core.MetricStore
	Targets core.SLATargets
	Now     func() time.Time

	observer *core.Observer
}

func NewRecorder(store core.MetricStore, targets core.SLATargets) *Recorder {
	if targets == nil {
		targets = core.DefaultSLATargets()
	}
	return &Recorder{
		Store:   store,
		Targets: targets,
		Now: func() time.Time {
			return time.Now().UTC()
		},
		observer: core.NewObserver("hookqueue.analytics", nil, nil),
	}
}

func (r *Recorder) WithObserver(observer *core.Observer) *Recorder {
	if r != nil && observer != nil {
		r.observer = observer
	}
	return r
}

func (r *Recorder) RecordReceived(ctx context.Context, in core.ReceivedInput) error {
	if err := r.ready(); err != nil {
		return err
	}
	webhookID := strings.TrimSpace(in.WebhookID)
	if webhookID == "" {
		return core.NewValidationError("webhook_id", "webhook id is required")
	}
	receivedAt := in.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = r.now()
	}
	queueType := in.QueueType
	if queueType == "" {
		queueType = core.RouteEvent(in.Type).QueueType
	}
	return r.Store.InsertReceived(ctx, core.WebhookMetric{
		WebhookID:   webhookID,
		Type:        in.Type,
		QueueType:   queueType,
		TenantID:    in.TenantID,
		Status:      core.MetricStatusReceived,
		ReceivedAt:  receivedAt.UTC(),
		SLATargetMs: r.target(queueType).Milliseconds(),
	})
}

// RecordProcessingStarted stamps the latest start. Queue wait is measured
// from arrival to the first start only.
func (r *Recorder) RecordProcessingStarted(ctx context.Context, webhookID string) error {
	if err := r.ready(); err != nil {
		return err
	}
	metric, err := r.Store.Get(ctx, strings.TrimSpace(webhookID))
	if err != nil {
		return err
	}
	now := r.now()
	queueWait := metric.QueueWaitMs
	if metric.ProcessingStartedAt == nil {
		queueWait = nonNegativeMs(now.Sub(metric.ReceivedAt))
	}
	return r.Store.MarkStarted(ctx, core.StartedUpdate{
		WebhookID:   metric.WebhookID,
		StartedAt:   now,
		QueueWaitMs: queueWait,
	})
}

func (r *Recorder) RecordProcessingCompleted(ctx context.Context, webhookID string, success bool, reason string) error {
	if err := r.ready(); err != nil {
		return err
	}
	metric, err := r.Store.Get(ctx, strings.TrimSpace(webhookID))
	if err != nil {
		return err
	}
	update := Complete(metric, r.now(), success, reason, r.target(metric.QueueType))
	return r.Store.MarkCompleted(ctx, update)
}

// Complete derives the completion durations and SLA flag for metric.
func Complete(metric core.WebhookMetric, completedAt time.Time, success bool, reason string, target time.Duration) core.CompletedUpdate {
	if metric.SLATargetMs > 0 {
		target = time.Duration(metric.SLATargetMs) * time.Millisecond
	}
	status := core.MetricStatusSuccess
	if !success {
		status = core.MetricStatusFailed
	}
	var processing int64
	if metric.ProcessingStartedAt != nil {
		processing = nonNegativeMs(completedAt.Sub(*metric.ProcessingStartedAt))
	}
	total := nonNegativeMs(completedAt.Sub(metric.ReceivedAt))
	update := core.CompletedUpdate{
		WebhookID:    metric.WebhookID,
		Status:       status,
		CompletedAt:  completedAt,
		ProcessingMs: processing,
		TotalMs:      total,
		ExceedsSLA:   target > 0 && total > target.Milliseconds(),
	}
	if !success {
		update.ErrorReason = strings.TrimSpace(reason)
	}
	return update
}

func (r *Recorder) Summarize(ctx context.Context, filter core.MetricFilter) (core.AnalyticsSummary, error) {
	if err := r.ready(); err != nil {
		return core.AnalyticsSummary{}, err
	}
	metrics, err := r.Store.List(ctx, filter)
	if err != nil {
		return core.AnalyticsSummary{}, err
	}
	summary := Summarize(metrics, SummaryOptions{})
	summary.From = filter.From
	summary.To = filter.To
	return summary, nil
}

func (r *Recorder) ready() error {
	if r == nil || r.Store == nil {
		return core.NewInternalError(nil, "analytics: recorder requires a metric store")
	}
	return nil
}

func (r *Recorder) target(queueType core.QueueType) time.Duration {
	if r == nil || r.Targets == nil {
		return core.DefaultSLATargets().Target(queueType)
	}
	return r.Targets.Target(queueType)
}

func (r *Recorder) now() time.Time {
	if r != nil && r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func nonNegativeMs(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return d.Milliseconds()
}

var _ core.AnalyticsRecorder = (*Recorder)(nil)
