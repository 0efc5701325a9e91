package query

import (
	"context"

	"github.com/goliatone/go-hookqueue/core"
)

type DeadLetterReader interface {
	ListDeadLetters(ctx context.Context, filter core.DeadLetterFilter) ([]core.WorkItem, error)
}

type DepthReader interface {
	Depth(ctx context.Context) ([]core.QueueDepth, error)
}

type SummaryReader interface {
	Summarize(ctx context.Context, filter core.MetricFilter) (core.AnalyticsSummary, error)
}

type UnhandledReader interface {
	ListUnhandled(ctx context.Context, tenantID string, limit int, offset int) ([]core.UnhandledEvent, int, error)
}

// UnhandledPage is one page of events no processor handled.
type UnhandledPage struct {
	Items  []core.UnhandledEvent
	Total  int
	Limit  int
	Offset int
}

type ListDeadLettersQuery struct {
	reader DeadLetterReader
}

func NewListDeadLettersQuery(reader DeadLetterReader) *ListDeadLettersQuery {
	return &ListDeadLettersQuery{reader: reader}
}

func (q *ListDeadLettersQuery) Query(ctx context.Context, msg ListDeadLettersMessage) ([]core.WorkItem, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: dead letter reader is required")
	}
	return q.reader.ListDeadLetters(ctx, msg.Filter)
}

type QueueDepthQuery struct {
	reader DepthReader
}

func NewQueueDepthQuery(reader DepthReader) *QueueDepthQuery {
	return &QueueDepthQuery{reader: reader}
}

func (q *QueueDepthQuery) Query(ctx context.Context, _ QueueDepthMessage) ([]core.QueueDepth, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: queue depth reader is required")
	}
	return q.reader.Depth(ctx)
}

type AnalyticsSummaryQuery struct {
	reader SummaryReader
}

func NewAnalyticsSummaryQuery(reader SummaryReader) *AnalyticsSummaryQuery {
	return &AnalyticsSummaryQuery{reader: reader}
}

func (q *AnalyticsSummaryQuery) Query(ctx context.Context, msg AnalyticsSummaryMessage) (core.AnalyticsSummary, error) {
	if q == nil || q.reader == nil {
		return core.AnalyticsSummary{}, queryDependencyError("query: analytics reader is required")
	}
	return q.reader.Summarize(ctx, msg.Filter)
}

type ListUnhandledQuery struct {
	reader UnhandledReader
}

func NewListUnhandledQuery(reader UnhandledReader) *ListUnhandledQuery {
	return &ListUnhandledQuery{reader: reader}
}

func (q *ListUnhandledQuery) Query(ctx context.Context, msg ListUnhandledMessage) (UnhandledPage, error) {
	if q == nil || q.reader == nil {
		return UnhandledPage{}, queryDependencyError("query: unhandled event reader is required")
	}
	items, total, err := q.reader.ListUnhandled(ctx, msg.TenantID, msg.Limit, msg.Offset)
	if err != nil {
		return UnhandledPage{}, err
	}
	return UnhandledPage{Items: items, Total: total, Limit: msg.Limit, Offset: msg.Offset}, nil
}
