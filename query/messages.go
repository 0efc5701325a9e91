package query

import (
	"github.com/goliatone/go-hookqueue/core"
)

const (
	TypeListDeadLetters  = "hookqueue.query.dead_letters.list"
	TypeQueueDepth       = "hookqueue.query.queue.depth"
	TypeAnalyticsSummary = "hookqueue.query.analytics.summary"
	TypeListUnhandled    = "hookqueue.query.unhandled.list"

	maxPageSize = 500
)

type ListDeadLettersMessage struct {
	Filter core.DeadLetterFilter
}

func (ListDeadLettersMessage) Type() string { return TypeListDeadLetters }

func (m ListDeadLettersMessage) Validate() error {
	if m.Filter.QueueType != "" && !knownQueueType(m.Filter.QueueType) {
		return queryValidationError("queue_type", "unknown queue type")
	}
	return validatePage(m.Filter.Limit, m.Filter.Offset)
}

type QueueDepthMessage struct{}

func (QueueDepthMessage) Type() string { return TypeQueueDepth }

func (QueueDepthMessage) Validate() error { return nil }

type AnalyticsSummaryMessage struct {
	Filter core.MetricFilter
}

func (AnalyticsSummaryMessage) Type() string { return TypeAnalyticsSummary }

func (m AnalyticsSummaryMessage) Validate() error {
	if m.Filter.QueueType != "" && !knownQueueType(m.Filter.QueueType) {
		return queryValidationError("queue_type", "unknown queue type")
	}
	if !m.Filter.From.IsZero() && !m.Filter.To.IsZero() && m.Filter.To.Before(m.Filter.From) {
		return queryValidationError("to", "must not be before from")
	}
	if m.Filter.Limit < 0 {
		return queryValidationError("limit", "must be >= 0")
	}
	return nil
}

type ListUnhandledMessage struct {
	TenantID string
	Limit    int
	Offset   int
}

func (ListUnhandledMessage) Type() string { return TypeListUnhandled }

func (m ListUnhandledMessage) Validate() error {
	return validatePage(m.Limit, m.Offset)
}

func validatePage(limit int, offset int) error {
	if limit < 0 || limit > maxPageSize {
		return queryValidationError("limit", "must be between 0 and 500")
	}
	if offset < 0 {
		return queryValidationError("offset", "must be >= 0")
	}
	return nil
}

func knownQueueType(queueType core.QueueType) bool {
	for _, known := range core.QueueTypes() {
		if known == queueType {
			return true
		}
	}
	return false
}
