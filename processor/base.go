// Package processor runs the time-boxed batch loop shared by every queue
// type: claim a batch, process it in fixed parallel windows, acknowledge
// each item independently.
package processor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-hookqueue/core"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type State string

const (
	StateCreated      State = "created"
	StateInitializing State = "initializing"
	StateRunning      State = "running"
	StateFetching     State = "fetching"
	StateProcessing   State = "processing"
	StateDraining     State = "draining"
	StateStopped      State = "stopped"
)

const (
	StopRuntimeExhausted = "runtime_exhausted"
	StopCancelled        = "cancelled"
	StopInitFailed       = "init_failed"
	StopFetchFailed      = "fetch_failed"
)

var ErrAlreadyRunning = errors.New("processor: run already in progress")

type Options struct {
	BatchSize         int
	Concurrency       int
	MaxRuntime        time.Duration
	EmptyBackoff      time.Duration
	YieldEvery        int
	YieldPause        time.Duration
	MaxItemsPerSecond float64
}

func DefaultOptions() Options {
	return Options{
		BatchSize:    50,
		Concurrency:  5,
		MaxRuntime:   50 * time.Second,
		EmptyBackoff: time.Second,
		YieldEvery:   100,
		YieldPause:   50 * time.Millisecond,
	}
}

func OptionsFromConfig(cfg core.ProcessorConfig) Options {
	opts := DefaultOptions()
	if cfg.BatchSize > 0 {
		opts.BatchSize = cfg.BatchSize
	}
	if cfg.Concurrency > 0 {
		opts.Concurrency = cfg.Concurrency
	}
	if cfg.MaxRuntime > 0 {
		opts.MaxRuntime = cfg.MaxRuntime
	}
	if cfg.EmptyBackoff > 0 {
		opts.EmptyBackoff = cfg.EmptyBackoff
	}
	if cfg.YieldEvery > 0 {
		opts.YieldEvery = cfg.YieldEvery
	}
	if cfg.YieldPause > 0 {
		opts.YieldPause = cfg.YieldPause
	}
	opts.MaxItemsPerSecond = cfg.MaxItemsPerSecond
	return opts
}

func (o Options) normalized() Options {
	defaults := DefaultOptions()
	if o.BatchSize <= 0 {
		o.BatchSize = defaults.BatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = defaults.Concurrency
	}
	if o.EmptyBackoff <= 0 {
		o.EmptyBackoff = defaults.EmptyBackoff
	}
	if o.YieldEvery <= 0 {
		o.YieldEvery = defaults.YieldEvery
	}
	if o.YieldPause < 0 {
		o.YieldPause = 0
	}
	return o
}

// Base drives one queue type. Run may be called again after it returns.
type Base struct {
	QueueType core.QueueType
	Queue     core.QueueManager
	Handler   ItemHandler
	Analytics core.AnalyticsRecorder
	Options   Options
	// Init runs once per Run before the first fetch. An error stops the run.
	Init  func(ctx context.Context) error
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	state    State
	observer *core.Observer
}

func NewBase(queueType core.QueueType, queue core.QueueManager, handler ItemHandler, opts Options) *Base {
	return &Base{
		QueueType: queueType,
		Queue:     queue,
		Handler:   handler,
		Options:   opts,
		state:     StateCreated,
		observer:  core.NewObserver("hookqueue.processor", nil, nil),
	}
}

func (b *Base) WithObserver(observer *core.Observer) *Base {
	if b != nil && observer != nil {
		b.observer = observer
	}
	return b
}

func (b *Base) State() State {
	if b == nil {
		return ""
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == "" {
		return StateCreated
	}
	return b.state
}

func (b *Base) setState(state State) {
	b.mu.Lock()
	b.state = state
	b.mu.Unlock()
}

type runCounters struct {
	succeeded atomic.Int64
	failed    atomic.Int64
}

func (c *runCounters) processed() int64 {
	return c.succeeded.Load() + c.failed.Load()
}

// Run loops until the runtime budget is spent or ctx is done. Only init and
// fetch errors end the run early; per-item errors are recorded and the loop
// continues. The batch in flight when the budget runs out always finishes.
func (b *Base) Run(ctx context.Context) (core.RunStats, error) {
	if b == nil || b.Queue == nil || b.Handler == nil {
		return core.RunStats{}, core.NewInternalError(nil, "processor: base requires a queue manager and handler")
	}
	b.mu.Lock()
	switch b.state {
	case StateInitializing, StateRunning, StateFetching, StateProcessing, StateDraining:
		b.mu.Unlock()
		return core.RunStats{}, ErrAlreadyRunning
	}
	b.state = StateInitializing
	b.mu.Unlock()

	opts := b.Options.normalized()
	startedAt := b.now()
	stats := core.RunStats{QueueType: b.QueueType, StartedAt: startedAt}
	counters := &runCounters{}
	var runErr error

	defer func() {
		b.setState(StateStopped)
	}()

	if b.Init != nil {
		if err := b.Init(ctx); err != nil {
			stats.StopReason = StopInitFailed
			runErr = fmt.Errorf("processor: %s init: %w", b.QueueType, err)
			b.finish(ctx, &stats, counters, runErr)
			return stats, runErr
		}
	}

	var limiter *rate.Limiter
	if opts.MaxItemsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.MaxItemsPerSecond), opts.Concurrency)
	}

	b.setState(StateRunning)
	b.observer.LogInfo(ctx, "processor run started", map[string]any{
		"queue_type":  string(b.QueueType),
		"batch_size":  opts.BatchSize,
		"concurrency": opts.Concurrency,
		"max_runtime": opts.MaxRuntime.String(),
	})

	var sinceYield int64
	for {
		if ctx.Err() != nil {
			stats.StopReason = StopCancelled
			break
		}
		if opts.MaxRuntime > 0 && b.now().Sub(startedAt) >= opts.MaxRuntime {
			stats.StopReason = StopRuntimeExhausted
			break
		}

		b.setState(StateFetching)
		batch, err := b.Queue.GetNextBatch(ctx, b.QueueType, opts.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				stats.StopReason = StopCancelled
				break
			}
			stats.StopReason = StopFetchFailed
			runErr = fmt.Errorf("processor: %s fetch: %w", b.QueueType, err)
			break
		}
		if len(batch) == 0 {
			if err := b.sleep(ctx, opts.EmptyBackoff); err != nil {
				stats.StopReason = StopCancelled
				break
			}
			continue
		}

		stats.Batches++
		b.setState(StateProcessing)
		sinceYield += b.processBatch(ctx, batch, opts, limiter, counters)
		if sinceYield >= int64(opts.YieldEvery) {
			sinceYield = 0
			if opts.YieldPause > 0 {
				_ = b.sleep(context.WithoutCancel(ctx), opts.YieldPause)
			}
		}
	}

	b.setState(StateDraining)
	b.finish(ctx, &stats, counters, runErr)
	return stats, runErr
}

// processBatch runs windows of opts.Concurrency items sequentially, items in
// a window in parallel. Items use a context detached from the run deadline so
// cancellation never interrupts an item midway.
func (b *Base) processBatch(ctx context.Context, batch []core.WorkItem, opts Options, limiter *rate.Limiter, counters *runCounters) int64 {
	itemCtx := context.WithoutCancel(ctx)
	var processed int64
	for start := 0; start < len(batch); start += opts.Concurrency {
		end := start + opts.Concurrency
		if end > len(batch) {
			end = len(batch)
		}
		var group errgroup.Group
		for _, item := range batch[start:end] {
			group.Go(func() error {
				if limiter != nil {
					_ = limiter.Wait(itemCtx)
				}
				if b.processItem(itemCtx, item) {
					counters.succeeded.Add(1)
				} else {
					counters.failed.Add(1)
				}
				return nil
			})
		}
		_ = group.Wait()
		processed += int64(end - start)
	}
	return processed
}

func (b *Base) processItem(ctx context.Context, item core.WorkItem) bool {
	startedAt := time.Now()
	if b.Analytics != nil {
		if err := b.Analytics.RecordProcessingStarted(ctx, item.WebhookID); err != nil {
			b.observer.LogDebug(ctx, "analytics start record failed", map[string]any{
				"webhook_id": item.WebhookID,
				"error":      err.Error(),
			})
		}
	}

	err := b.safeHandle(ctx, item)
	fields := map[string]any{
		"id":         item.ID,
		"webhook_id": item.WebhookID,
		"type":       item.Type,
		"queue_type": string(item.QueueType),
		"tenant_id":  item.TenantID,
		"attempts":   item.Attempts,
	}

	if err == nil {
		if ackErr := b.Queue.MarkComplete(ctx, item.ID, item.ClaimID); ackErr != nil {
			b.recordCompleted(ctx, item, false, core.ErrorReason(ackErr))
			fields["error"] = ackErr.Error()
			b.observer.LogError(ctx, "work item acknowledgement failed", fields)
			return false
		}
		b.recordCompleted(ctx, item, true, "")
		b.observer.Observe(ctx, "hookqueue.processor.item_ms", float64(time.Since(startedAt).Milliseconds()), map[string]string{
			"queue_type": string(item.QueueType),
			"status":     "success",
		})
		return true
	}

	reason := core.ErrorReason(err)
	b.recordCompleted(ctx, item, false, reason)
	fields["error"] = err.Error()
	fields["error_kind"] = string(core.KindOf(err))
	outcome, failErr := b.Queue.MarkFailed(ctx, item.ID, item.ClaimID, reason)
	if failErr != nil {
		fields["mark_failed_error"] = failErr.Error()
	} else {
		fields["attempts"] = outcome.Attempts
		fields["dead"] = outcome.Dead
	}
	b.observer.LogError(ctx, "work item processing failed", fields)
	b.observer.Observe(ctx, "hookqueue.processor.item_ms", float64(time.Since(startedAt).Milliseconds()), map[string]string{
		"queue_type": string(item.QueueType),
		"status":     "failure",
	})
	return false
}

func (b *Base) safeHandle(ctx context.Context, item core.WorkItem) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			b.observer.LogError(ctx, "handler panic recovered", map[string]any{
				"webhook_id": item.WebhookID,
				"type":       item.Type,
				"panic":      fmt.Sprint(recovered),
				"stack":      string(debug.Stack()),
			})
			err = core.NewValidationError("payload", fmt.Sprintf("handler panic: %v", recovered))
		}
	}()
	return b.Handler.Handle(ctx, item)
}

func (b *Base) recordCompleted(ctx context.Context, item core.WorkItem, success bool, reason string) {
	if b.Analytics == nil {
		return
	}
	if err := b.Analytics.RecordProcessingCompleted(ctx, item.WebhookID, success, reason); err != nil {
		b.observer.LogDebug(ctx, "analytics completion record failed", map[string]any{
			"webhook_id": item.WebhookID,
			"error":      err.Error(),
		})
	}
}

func (b *Base) finish(ctx context.Context, stats *core.RunStats, counters *runCounters, runErr error) {
	stats.FinishedAt = b.now()
	stats.Runtime = stats.FinishedAt.Sub(stats.StartedAt)
	stats.Succeeded = int(counters.succeeded.Load())
	stats.Failed = int(counters.failed.Load())
	stats.Processed = int(counters.processed())
	if seconds := stats.Runtime.Seconds(); seconds > 0 {
		stats.Throughput = float64(stats.Processed) / seconds
	}

	fields := map[string]any{
		"queue_type":  string(stats.QueueType),
		"processed":   stats.Processed,
		"succeeded":   stats.Succeeded,
		"errors":      stats.Failed,
		"batches":     stats.Batches,
		"runtime_ms":  stats.Runtime.Milliseconds(),
		"throughput":  stats.Throughput,
		"stop_reason": stats.StopReason,
	}
	tags := map[string]string{"queue_type": string(stats.QueueType)}
	b.observer.Count(ctx, "hookqueue.processor.processed", int64(stats.Processed), tags)
	b.observer.Count(ctx, "hookqueue.processor.errors", int64(stats.Failed), tags)
	b.observer.Observe(ctx, "hookqueue.processor.throughput", stats.Throughput, tags)
	if runErr != nil {
		fields["error"] = runErr.Error()
		b.observer.LogError(ctx, "processor run aborted", fields)
		return
	}
	b.observer.LogInfo(ctx, "processor run finished", fields)
}

func (b *Base) now() time.Time {
	if b != nil && b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b *Base) sleep(ctx context.Context, d time.Duration) error {
	if b != nil && b.Sleep != nil {
		return b.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
