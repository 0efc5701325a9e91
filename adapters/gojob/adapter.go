package gojob

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-hookqueue/core"
	workqueue "github.com/goliatone/go-hookqueue/queue"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDPrefix = "hookqueue.process."

	// DedupPolicyDrop drops a second message carrying the same webhook id.
	DedupPolicyDrop = "drop"

	paramType      = "type"
	paramWebhookID = "webhook_id"
	paramTenantID  = "tenant_id"
	paramCompanyID = "company_id"
	paramPriority  = "priority"
	paramQueueType = "queue_type"
	paramPayload   = "payload"
)

// JobID names the go-job job that feeds a queue type.
func JobID(queueType core.QueueType) string {
	return JobIDPrefix + string(queueType)
}

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// NackFor derives nack options from a failed ingest. Validation failures
// never succeed on redelivery and go straight to the dead letter queue.
func (p RetryPolicy) NackFor(err error, attempt int) queue.NackOptions {
	opts := queue.NackOptions{Requeue: true, Reason: core.ErrorReason(err)}
	switch core.KindOf(err) {
	case core.KindValidation:
		opts.Requeue = false
		opts.DeadLetter = true
	default:
		opts.Delay = backoff(attempt)
	}
	return p.NormalizeAttempt(opts, attempt)
}

func backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * time.Second
}

// ToExecutionMessage maps an enqueue request onto a go-job message. The
// webhook id doubles as the idempotency key.
func ToExecutionMessage(req core.EnqueueRequest) *job.ExecutionMessage {
	queueType := req.QueueType
	if queueType == "" {
		queueType = core.RouteEvent(req.Type).QueueType
	}
	params := map[string]any{
		paramType:      strings.TrimSpace(req.Type),
		paramWebhookID: strings.TrimSpace(req.WebhookID),
		paramTenantID:  strings.TrimSpace(req.TenantID),
		paramCompanyID: strings.TrimSpace(req.CompanyID),
		paramQueueType: string(queueType),
		paramPayload:   copyAnyMap(req.Payload),
	}
	if req.Priority > 0 {
		params[paramPriority] = req.Priority
	}
	msg := &job.ExecutionMessage{
		JobID:      JobID(queueType),
		ScriptPath: JobID(queueType),
		Parameters: params,
	}
	if key := strings.TrimSpace(req.WebhookID); key != "" {
		msg.IdempotencyKey = key
		msg.DedupPolicy = job.DeduplicationPolicy(DedupPolicyDrop)
	}
	return msg
}

// FromExecutionMessage maps a go-job message back into an enqueue request.
func FromExecutionMessage(msg *job.ExecutionMessage) (core.EnqueueRequest, error) {
	if msg == nil {
		return core.EnqueueRequest{}, core.NewValidationError("message", "execution message is required")
	}
	jobID := strings.TrimSpace(msg.JobID)
	if !strings.HasPrefix(jobID, JobIDPrefix) {
		return core.EnqueueRequest{}, core.NewValidationError("job_id", fmt.Sprintf("unsupported job %q", jobID))
	}
	params := msg.Parameters
	req := core.EnqueueRequest{
		Type:      stringParam(params, paramType),
		WebhookID: firstNonEmpty(stringParam(params, paramWebhookID), strings.TrimSpace(msg.IdempotencyKey)),
		TenantID:  stringParam(params, paramTenantID),
		CompanyID: stringParam(params, paramCompanyID),
		Priority:  intParam(params, paramPriority),
		QueueType: core.QueueType(firstNonEmpty(stringParam(params, paramQueueType), strings.TrimPrefix(jobID, JobIDPrefix))),
	}
	if req.Type == "" {
		return core.EnqueueRequest{}, core.NewValidationError(paramType, "event type is required")
	}
	payload, ok := params[paramPayload].(map[string]any)
	if !ok {
		return core.EnqueueRequest{}, core.NewValidationError(paramPayload, "payload must be an object")
	}
	req.Payload = copyAnyMap(payload)
	return req, nil
}

// Sink accepts webhooks drained from go-job into the durable work queue.
type Sink interface {
	Enqueue(ctx context.Context, req core.EnqueueRequest) (core.WorkItem, error)
}

// EnqueuerAdapter publishes webhooks onto a go-job queue.
type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, req core.EnqueueRequest) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if strings.TrimSpace(req.Type) == "" {
		return core.NewValidationError(paramType, "event type is required")
	}
	return a.enqueuer.Enqueue(ctx, ToExecutionMessage(req))
}

// Bridge drains go-job deliveries into the work queue. A delivery is acked
// once its work item is stored and nacked per RetryPolicy otherwise.
type Bridge struct {
	dequeuer queue.Dequeuer
	sink     Sink
	policy   RetryPolicy
	observer *core.Observer
	idle     time.Duration

	mu       sync.Mutex
	attempts map[string]int
}

func NewBridge(dequeuer queue.Dequeuer, sink Sink, policy RetryPolicy) *Bridge {
	return &Bridge{
		dequeuer: dequeuer,
		sink:     sink,
		policy:   policy,
		observer: core.NewObserver("gojob", nil, nil),
		idle:     time.Second,
		attempts: map[string]int{},
	}
}

func (b *Bridge) WithObserver(observer *core.Observer) *Bridge {
	if b != nil && observer != nil {
		b.observer = observer
	}
	return b
}

func (b *Bridge) WithIdleDelay(delay time.Duration) *Bridge {
	if b != nil && delay > 0 {
		b.idle = delay
	}
	return b
}

// Run drains deliveries until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	if b == nil || b.dequeuer == nil || b.sink == nil {
		return fmt.Errorf("gojob: bridge is not configured")
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := b.DrainOne(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.observer.LogWarn(ctx, "gojob dequeue failed", map[string]any{"error": err.Error()})
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(b.idle):
			}
		}
	}
}

// DrainOne moves a single delivery into the work queue. Only dequeue and
// ack/nack failures are returned; ingest failures are settled by nack.
func (b *Bridge) DrainOne(ctx context.Context) error {
	delivery, err := b.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}
	msg := delivery.Message()
	req, err := FromExecutionMessage(msg)
	if err == nil {
		var item core.WorkItem
		item, err = b.sink.Enqueue(ctx, req)
		if err == nil {
			b.settle(req.WebhookID)
			b.observer.Count(ctx, "hookqueue.gojob.ingested", 1, map[string]string{"queue_type": string(item.QueueType)})
			return delivery.Ack(ctx)
		}
	}

	key := deliveryKey(msg, req)
	opts := b.policy.NackFor(err, b.attempt(key))
	if !opts.Requeue {
		b.settle(key)
	}
	b.observer.LogWarn(ctx, "gojob ingest failed", map[string]any{
		"webhook_id":  req.WebhookID,
		"error":       err.Error(),
		"requeue":     opts.Requeue,
		"dead_letter": opts.DeadLetter,
	})
	return delivery.Nack(ctx, opts)
}

func (b *Bridge) attempt(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts[key]++
	return b.attempts[key]
}

func (b *Bridge) settle(key string) {
	b.mu.Lock()
	delete(b.attempts, key)
	b.mu.Unlock()
}

func deliveryKey(msg *job.ExecutionMessage, req core.EnqueueRequest) string {
	if req.WebhookID != "" {
		return req.WebhookID
	}
	if msg != nil {
		return msg.JobID + ":" + msg.IdempotencyKey
	}
	return ""
}

// WorkerHookAdapter reports go-job worker lifecycle events through an
// observer.
type WorkerHookAdapter struct {
	observer *core.Observer
}

func NewWorkerHookAdapter(observer *core.Observer) *WorkerHookAdapter {
	return &WorkerHookAdapter{observer: observer}
}

func (a *WorkerHookAdapter) OnStart(ctx context.Context, event worker.Event) {
	a.report(ctx, "start", event)
}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event worker.Event) {
	a.report(ctx, "success", event)
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event worker.Event) {
	a.report(ctx, "failure", event)
}

func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event worker.Event) {
	a.report(ctx, "retry", event)
}

func (a *WorkerHookAdapter) report(ctx context.Context, phase string, event worker.Event) {
	if a == nil || a.observer == nil {
		return
	}
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	jobID := ""
	if message != nil {
		jobID = message.JobID
	}
	fields := map[string]any{
		"job_id":  jobID,
		"phase":   phase,
		"attempt": event.Attempt,
	}
	if event.Delay > 0 {
		fields["delay_ms"] = event.Delay.Milliseconds()
	}
	if event.Duration > 0 {
		fields["duration_ms"] = event.Duration.Milliseconds()
	}
	if event.Err != nil {
		fields["error"] = event.Err.Error()
	}
	a.observer.Count(ctx, "hookqueue.gojob.worker", 1, map[string]string{"job_id": jobID, "phase": phase})
	if phase == "failure" {
		a.observer.LogError(ctx, "gojob worker failure", fields)
		return
	}
	a.observer.LogDebug(ctx, "gojob worker "+phase, fields)
}

func stringParam(params map[string]any, key string) string {
	value, _ := params[key].(string)
	return strings.TrimSpace(value)
}

func intParam(params map[string]any, key string) int {
	switch value := params[key].(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	default:
		return 0
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ worker.Hook = (*WorkerHookAdapter)(nil)
	_ Sink        = (*workqueue.Manager)(nil)
)
