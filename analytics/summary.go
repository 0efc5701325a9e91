package analytics

import (
	"sort"

	"github.com/goliatone/go-hookqueue/core"
)

type SummaryOptions struct {
	TopErrors int
	Slowest   int
}

func (o SummaryOptions) topErrors() int {
	if o.TopErrors > 0 {
		return o.TopErrors
	}
	return 5
}

func (o SummaryOptions) slowest() int {
	if o.Slowest > 0 {
		return o.Slowest
	}
	return 10
}

type durationAccumulator struct {
	count int
	sum   int64
	min   int64
	max   int64
}

func (a *durationAccumulator) add(value int64) {
	if a.count == 0 || value < a.min {
		a.min = value
	}
	if value > a.max {
		a.max = value
	}
	a.count++
	a.sum += value
}

func (a durationAccumulator) stats() core.DurationStats {
	if a.count == 0 {
		return core.DurationStats{}
	}
	return core.DurationStats{
		Count: a.count,
		AvgMs: float64(a.sum) / float64(a.count),
		MinMs: a.min,
		MaxMs: a.max,
	}
}

type queueAccumulator struct {
	summary    core.QueueTypeSummary
	queueWait  durationAccumulator
	processing durationAccumulator
	total      durationAccumulator
}

// Summarize aggregates metrics per queue type. Only completed metrics
// contribute to processing and total duration stats.
func Summarize(metrics []core.WebhookMetric, opts SummaryOptions) core.AnalyticsSummary {
	byQueue := map[core.QueueType]*queueAccumulator{}
	reasons := map[string]int{}
	completed := make([]core.WebhookMetric, 0, len(metrics))
	summary := core.AnalyticsSummary{}
	var succeeded, failed int

	for _, metric := range metrics {
		acc, ok := byQueue[metric.QueueType]
		if !ok {
			acc = &queueAccumulator{summary: core.QueueTypeSummary{
				QueueType:   metric.QueueType,
				SLATargetMs: metric.SLATargetMs,
			}}
			byQueue[metric.QueueType] = acc
		}
		acc.summary.Total++
		summary.Total++
		if metric.ProcessingStartedAt != nil {
			acc.queueWait.add(metric.QueueWaitMs)
		}
		switch metric.Status {
		case core.MetricStatusSuccess:
			acc.summary.Succeeded++
			succeeded++
		case core.MetricStatusFailed:
			acc.summary.Failed++
			failed++
			if metric.ErrorReason != "" {
				reasons[metric.ErrorReason]++
			}
		default:
			acc.summary.Pending++
			continue
		}
		acc.processing.add(metric.ProcessingMs)
		acc.total.add(metric.TotalMs)
		completed = append(completed, metric)
		if metric.ExceedsSLA {
			acc.summary.SLAViolations++
			summary.SLAViolations++
		}
	}

	for _, queueType := range core.QueueTypes() {
		acc, ok := byQueue[queueType]
		if !ok {
			continue
		}
		acc.summary.QueueWait = acc.queueWait.stats()
		acc.summary.Processing = acc.processing.stats()
		acc.summary.TotalDuration = acc.total.stats()
		summary.ByQueueType = append(summary.ByQueueType, acc.summary)
	}
	if succeeded+failed > 0 {
		summary.ErrorRate = float64(failed) / float64(succeeded+failed)
	}

	for reason, count := range reasons {
		summary.TopErrors = append(summary.TopErrors, core.ErrorReasonCount{Reason: reason, Count: count})
	}
	sort.Slice(summary.TopErrors, func(i, j int) bool {
		if summary.TopErrors[i].Count != summary.TopErrors[j].Count {
			return summary.TopErrors[i].Count > summary.TopErrors[j].Count
		}
		return summary.TopErrors[i].Reason < summary.TopErrors[j].Reason
	})
	if len(summary.TopErrors) > opts.topErrors() {
		summary.TopErrors = summary.TopErrors[:opts.topErrors()]
	}

	sort.Slice(completed, func(i, j int) bool {
		if completed[i].TotalMs != completed[j].TotalMs {
			return completed[i].TotalMs > completed[j].TotalMs
		}
		return completed[i].WebhookID < completed[j].WebhookID
	})
	if len(completed) > opts.slowest() {
		completed = completed[:opts.slowest()]
	}
	summary.Slowest = completed
	return summary
}
