package hookqueue

import "github.com/goliatone/go-hookqueue/core"

type Config = core.Config

type EnqueueRequest = core.EnqueueRequest

type WorkItem = core.WorkItem

type QueueType = core.QueueType

type RunStats = core.RunStats

type DeadLetterFilter = core.DeadLetterFilter
type MetricFilter = core.MetricFilter
type AnalyticsSummary = core.AnalyticsSummary

var (
	NewCfgxConfigProvider = core.NewCfgxConfigProvider
	LoadConfig            = core.LoadConfig
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}
