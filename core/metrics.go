package core

import (
	"context"
	"time"
)

type MetricStatus string

const (
	MetricStatusReceived   MetricStatus = "received"
	MetricStatusProcessing MetricStatus = "processing"
	MetricStatusSuccess    MetricStatus = "success"
	MetricStatusFailed     MetricStatus = "failed"
)

type WebhookMetric struct {
	WebhookID             string
	Type                  string
	QueueType             QueueType
	TenantID              string
	Status                MetricStatus
	Attempts              int
	ReceivedAt            time.Time
	ProcessingStartedAt   *time.Time
	ProcessingCompletedAt *time.Time
	QueueWaitMs           int64
	ProcessingMs          int64
	TotalMs               int64
	SLATargetMs           int64
	ExceedsSLA            bool
	ErrorReason           string
}

type ReceivedInput struct {
	WebhookID  string
	Type       string
	QueueType  QueueType
	TenantID   string
	ReceivedAt time.Time
}

type StartedUpdate struct {
	WebhookID   string
	StartedAt   time.Time
	QueueWaitMs int64
}

type CompletedUpdate struct {
	WebhookID    string
	Status       MetricStatus
	CompletedAt  time.Time
	ProcessingMs int64
	TotalMs      int64
	ExceedsSLA   bool
	ErrorReason  string
}

type MetricFilter struct {
	QueueType QueueType
	TenantID  string
	From      time.Time
	To        time.Time
	Limit     int
}

type DurationStats struct {
	Count int
	AvgMs float64
	MinMs int64
	MaxMs int64
}

type QueueTypeSummary struct {
	QueueType     QueueType
	Total         int
	Succeeded     int
	Failed        int
	Pending       int
	SLAViolations int
	SLATargetMs   int64
	QueueWait     DurationStats
	Processing    DurationStats
	TotalDuration DurationStats
}

type ErrorReasonCount struct {
	Reason string
	Count  int
}

type AnalyticsSummary struct {
	From          time.Time
	To            time.Time
	Total         int
	SLAViolations int
	ErrorRate     float64
	ByQueueType   []QueueTypeSummary
	TopErrors     []ErrorReasonCount
	Slowest       []WebhookMetric
}

// SLATargets maps queue types to their maximum acceptable total latency.
type SLATargets map[QueueType]time.Duration

func DefaultSLATargets() SLATargets {
	return SLATargets{
		QueueCritical:     5 * time.Second,
		QueueMessages:     2 * time.Second,
		QueueAppointments: 30 * time.Second,
		QueueContacts:     60 * time.Second,
		QueueFinancial:    30 * time.Second,
		QueueProjects:     60 * time.Second,
		QueueGeneral:      120 * time.Second,
	}
}

func (t SLATargets) Target(queueType QueueType) time.Duration {
	if target, ok := t[queueType]; ok && target > 0 {
		return target
	}
	if target, ok := DefaultSLATargets()[queueType]; ok {
		return target
	}
	return DefaultSLATargets()[QueueGeneral]
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
