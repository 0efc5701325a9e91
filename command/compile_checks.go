package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[EnqueueWebhookMessage]    = (*EnqueueWebhookCommand)(nil)
	_ gocmd.Commander[RequeueDeadLetterMessage] = (*RequeueDeadLetterCommand)(nil)
	_ gocmd.Commander[RunQueueMessage]          = (*RunQueueCommand)(nil)
	_ gocmd.Commander[PruneMarkersMessage]      = (*PruneMarkersCommand)(nil)
)
