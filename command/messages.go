package command

import (
	"strings"

	"github.com/goliatone/go-hookqueue/core"
)

const (
	TypeEnqueueWebhook    = "hookqueue.command.webhook.enqueue"
	TypeRequeueDeadLetter = "hookqueue.command.dead_letter.requeue"
	TypeRunQueue          = "hookqueue.command.queue.run"
	TypePruneMarkers      = "hookqueue.command.markers.prune"
)

type EnqueueWebhookMessage struct {
	Request core.EnqueueRequest
}

func (EnqueueWebhookMessage) Type() string { return TypeEnqueueWebhook }

func (m EnqueueWebhookMessage) Validate() error {
	if strings.TrimSpace(m.Request.Type) == "" {
		return commandValidationError("type", "event type is required")
	}
	if m.Request.Payload == nil {
		return commandValidationError("payload", "payload is required")
	}
	if m.Request.QueueType != "" && !validQueueType(m.Request.QueueType) {
		return commandValidationError("queue_type", "unknown queue type")
	}
	return nil
}

type RequeueDeadLetterMessage struct {
	ItemID string
}

func (RequeueDeadLetterMessage) Type() string { return TypeRequeueDeadLetter }

func (m RequeueDeadLetterMessage) Validate() error {
	if strings.TrimSpace(m.ItemID) == "" {
		return commandValidationError("item_id", "work item id is required")
	}
	return nil
}

// RunQueueMessage triggers one time-boxed processor run for a queue type.
type RunQueueMessage struct {
	QueueType core.QueueType
}

func (RunQueueMessage) Type() string { return TypeRunQueue }

func (m RunQueueMessage) Validate() error {
	if !validQueueType(m.QueueType) {
		return commandValidationError("queue_type", "unknown queue type")
	}
	return nil
}

type PruneMarkersMessage struct {
	Limit int
}

func (PruneMarkersMessage) Type() string { return TypePruneMarkers }

func (m PruneMarkersMessage) Validate() error {
	if m.Limit < 0 {
		return commandValidationError("limit", "must be >= 0")
	}
	return nil
}

func validQueueType(queueType core.QueueType) bool {
	for _, known := range core.QueueTypes() {
		if known == queueType {
			return true
		}
	}
	return false
}
