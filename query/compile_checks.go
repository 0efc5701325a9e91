package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-hookqueue/core"
)

var (
	_ gocmd.Querier[ListDeadLettersMessage, []core.WorkItem]        = (*ListDeadLettersQuery)(nil)
	_ gocmd.Querier[QueueDepthMessage, []core.QueueDepth]           = (*QueueDepthQuery)(nil)
	_ gocmd.Querier[AnalyticsSummaryMessage, core.AnalyticsSummary] = (*AnalyticsSummaryQuery)(nil)
	_ gocmd.Querier[ListUnhandledMessage, UnhandledPage]            = (*ListUnhandledQuery)(nil)
)
