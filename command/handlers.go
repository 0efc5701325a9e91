package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-hookqueue/core"
)

type MutatingService interface {
	EnqueueWebhook(ctx context.Context, req core.EnqueueRequest) (core.WorkItem, error)
	RequeueDeadLetter(ctx context.Context, id string) error
	RunQueue(ctx context.Context, queueType core.QueueType) (core.RunStats, error)
}

type MarkerMaintenanceService interface {
	PruneMarkers(ctx context.Context, limit int) (int, error)
}

type EnqueueWebhookCommand struct {
	service MutatingService
}

func NewEnqueueWebhookCommand(service MutatingService) *EnqueueWebhookCommand {
	return &EnqueueWebhookCommand{service: service}
}

func (c *EnqueueWebhookCommand) Execute(ctx context.Context, msg EnqueueWebhookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: enqueue service is required")
	}
	out, err := c.service.EnqueueWebhook(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RequeueDeadLetterCommand struct {
	service MutatingService
}

func NewRequeueDeadLetterCommand(service MutatingService) *RequeueDeadLetterCommand {
	return &RequeueDeadLetterCommand{service: service}
}

func (c *RequeueDeadLetterCommand) Execute(ctx context.Context, msg RequeueDeadLetterMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: requeue service is required")
	}
	return c.service.RequeueDeadLetter(ctx, msg.ItemID)
}

type RunQueueCommand struct {
	service MutatingService
}

func NewRunQueueCommand(service MutatingService) *RunQueueCommand {
	return &RunQueueCommand{service: service}
}

func (c *RunQueueCommand) Execute(ctx context.Context, msg RunQueueMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: queue runner is required")
	}
	stats, err := c.service.RunQueue(ctx, msg.QueueType)
	storeResult(ctx, stats)
	return err
}

type PruneMarkersCommand struct {
	service MarkerMaintenanceService
}

func NewPruneMarkersCommand(service MarkerMaintenanceService) *PruneMarkersCommand {
	return &PruneMarkersCommand{service: service}
}

func (c *PruneMarkersCommand) Execute(ctx context.Context, msg PruneMarkersMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: marker maintenance service is required")
	}
	pruned, err := c.service.PruneMarkers(ctx, msg.Limit)
	if err != nil {
		return err
	}
	storeResult(ctx, pruned)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
