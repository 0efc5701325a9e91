package hookqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-hookqueue/analytics"
	"github.com/goliatone/go-hookqueue/core"
	"github.com/goliatone/go-hookqueue/handlers"
	"github.com/goliatone/go-hookqueue/notify"
	"github.com/goliatone/go-hookqueue/processor"
	hqquery "github.com/goliatone/go-hookqueue/query"
	"github.com/goliatone/go-hookqueue/queue"
	"github.com/goliatone/go-hookqueue/realtime"
	"golang.org/x/sync/errgroup"
)

// Dependencies are the stores and outbound clients a Runtime is built on.
// Queue, Markers, Metrics and UnitOfWork are required.
type Dependencies struct {
	Queue      core.QueueStore
	Markers    core.MarkerStore
	Metrics    core.MetricStore
	UnitOfWork core.UnitOfWork
	// Locations serves tenant reads, usually cached. Optional.
	Locations core.LocationStore
	Unhandled hqquery.UnhandledReader
	Enricher  core.ContactEnricher
	Publisher core.Publisher
	Push      core.PushClient

	Logger         core.Logger
	LoggerProvider core.LoggerProvider
	MetricsSink    core.MetricsRecorder
	Now            func() time.Time
}

// Runtime owns the queue manager and one processor per enabled queue type.
type Runtime struct {
	config     core.Config
	manager    *queue.Manager
	recorder   *analytics.Recorder
	gate       *realtime.Gate
	fanout     *notify.Fanout
	markers    core.MarkerStore
	unhandled  hqquery.UnhandledReader
	registries map[core.QueueType]*processor.Registry
	processors map[core.QueueType]*processor.Base
	observer   *core.Observer
	now        func() time.Time
}

// Setup validates cfg and wires the pipeline.
func Setup(cfg core.Config, deps Dependencies) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Queue == nil || deps.Markers == nil || deps.Metrics == nil || deps.UnitOfWork == nil {
		return nil, fmt.Errorf("hookqueue: queue, marker, metric stores and unit of work are required")
	}
	targets, err := cfg.SLATargets()
	if err != nil {
		return nil, err
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	observe := func(component string) *core.Observer {
		name := cfg.ServiceName + "." + component
		logger := deps.Logger
		if deps.LoggerProvider != nil {
			logger = deps.LoggerProvider.GetLogger(name)
		}
		return core.NewObserver(name, logger, deps.MetricsSink)
	}

	recorder := analytics.NewRecorder(deps.Metrics, targets).WithObserver(observe("analytics"))
	recorder.Now = now

	manager := queue.NewManagerFromConfig(deps.Queue, cfg.Queue).WithObserver(observe("queue"))
	manager.Analytics = recorder
	manager.Now = now

	gate := realtime.NewGate(deps.Markers, cfg.Dedup.Window).WithObserver(observe("realtime"))
	gate.Now = now

	publisher := deps.Publisher
	if publisher == nil {
		publisher = notify.NewLogPublisher(observe("notify").Logger)
	}
	push := deps.Push
	if push == nil {
		push = notify.NewLogPush(observe("notify").Logger)
	}
	fanout := notify.NewFanout(publisher, push, gate).WithObserver(observe("notify"))

	registries, err := handlers.NewRegistries(handlers.Deps{
		UnitOfWork: deps.UnitOfWork,
		Locations:  deps.Locations,
		Enricher:   deps.Enricher,
		Now:        now,
		Observer:   observe("handlers"),
	}, fanout)
	if err != nil {
		return nil, err
	}

	opts := processor.OptionsFromConfig(cfg.Processor)
	processors := make(map[core.QueueType]*processor.Base, len(registries))
	for _, queueType := range cfg.EnabledQueueTypes() {
		registry, ok := registries[queueType]
		if !ok {
			return nil, fmt.Errorf("hookqueue: no registry for queue type %s", queueType)
		}
		base := processor.NewBase(queueType, manager, registry, opts).WithObserver(observe("processor"))
		base.Analytics = recorder
		base.Now = now
		processors[queueType] = base
	}

	return &Runtime{
		config:     cfg,
		manager:    manager,
		recorder:   recorder,
		gate:       gate,
		fanout:     fanout,
		markers:    deps.Markers,
		unhandled:  deps.Unhandled,
		registries: registries,
		processors: processors,
		observer:   observe("runtime"),
		now:        now,
	}, nil
}

func (r *Runtime) Config() core.Config {
	if r == nil {
		return core.Config{}
	}
	return r.config
}

func (r *Runtime) Manager() *queue.Manager {
	if r == nil {
		return nil
	}
	return r.manager
}

func (r *Runtime) Processor(queueType core.QueueType) (*processor.Base, bool) {
	if r == nil {
		return nil, false
	}
	base, ok := r.processors[queueType]
	return base, ok
}

func (r *Runtime) EnqueueWebhook(ctx context.Context, req core.EnqueueRequest) (core.WorkItem, error) {
	return r.manager.Enqueue(ctx, req)
}

func (r *Runtime) RequeueDeadLetter(ctx context.Context, id string) error {
	return r.manager.Requeue(ctx, id)
}

// RunQueue performs one time-boxed run of the queue type's processor.
func (r *Runtime) RunQueue(ctx context.Context, queueType core.QueueType) (core.RunStats, error) {
	base, ok := r.Processor(queueType)
	if !ok {
		return core.RunStats{}, core.NewValidationError("queue_type", fmt.Sprintf("queue type %q is not enabled", queueType))
	}
	return base.Run(ctx)
}

// RunAll keeps every enabled processor running until ctx is done. A run that
// ends early on an init or fetch error is retried after the empty backoff.
func (r *Runtime) RunAll(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	for queueType, base := range r.processors {
		group.Go(func() error {
			return r.loop(ctx, queueType, base)
		})
	}
	return group.Wait()
}

func (r *Runtime) loop(ctx context.Context, queueType core.QueueType, base *processor.Base) error {
	pause := r.config.Processor.EmptyBackoff
	if pause <= 0 {
		pause = time.Second
	}
	for ctx.Err() == nil {
		stats, err := base.Run(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		r.observer.LogWarn(ctx, "processor run ended early", map[string]any{
			"queue_type":  string(queueType),
			"stop_reason": stats.StopReason,
			"error":       err.Error(),
		})
		select {
		case <-ctx.Done():
		case <-time.After(pause):
		}
	}
	return nil
}

// PruneMarkers deletes expired dedup markers.
func (r *Runtime) PruneMarkers(ctx context.Context, limit int) (int, error) {
	return r.markers.PruneExpired(ctx, r.now(), limit)
}

func (r *Runtime) ListDeadLetters(ctx context.Context, filter core.DeadLetterFilter) ([]core.WorkItem, error) {
	return r.manager.ListDeadLetters(ctx, filter)
}

func (r *Runtime) Depth(ctx context.Context) ([]core.QueueDepth, error) {
	return r.manager.Depth(ctx)
}

func (r *Runtime) Summarize(ctx context.Context, filter core.MetricFilter) (core.AnalyticsSummary, error) {
	return r.recorder.Summarize(ctx, filter)
}

func (r *Runtime) ListUnhandled(ctx context.Context, tenantID string, limit int, offset int) ([]core.UnhandledEvent, int, error) {
	if r.unhandled == nil {
		return nil, 0, core.NewInternalError(nil, "hookqueue: unhandled event reader is not configured")
	}
	return r.unhandled.ListUnhandled(ctx, tenantID, limit, offset)
}
