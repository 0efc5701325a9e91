package notify

import (
	"context"
	"strings"

	"github.com/goliatone/go-hookqueue/core"
)

// LogPublisher writes publishes to the logger. It backs local runs with no
// pub/sub transport configured.
type LogPublisher struct {
	observer *core.Observer
}

func NewLogPublisher(logger core.Logger) *LogPublisher {
	return &LogPublisher{observer: core.NewObserver("hookqueue.notify.log", logger, nil)}
}

func (p *LogPublisher) Channel(name string) core.Channel {
	return logChannel{publisher: p, name: strings.TrimSpace(name)}
}

type logChannel struct {
	publisher *LogPublisher
	name      string
}

func (c logChannel) Publish(ctx context.Context, eventName string, data any) error {
	if c.publisher == nil {
		return nil
	}
	c.publisher.observer.LogInfo(ctx, "realtime publish", map[string]any{
		"channel": c.name,
		"event":   eventName,
		"data":    data,
	})
	return nil
}

// LogPush is the push counterpart of LogPublisher.
type LogPush struct {
	observer *core.Observer
}

func NewLogPush(logger core.Logger) *LogPush {
	return &LogPush{observer: core.NewObserver("hookqueue.notify.log", logger, nil)}
}

func (p *LogPush) SendToUser(ctx context.Context, userID string, msg core.PushMessage) error {
	if p == nil {
		return nil
	}
	p.observer.LogInfo(ctx, "push notification", map[string]any{
		"user_id": userID,
		"title":   msg.Title,
	})
	return nil
}

var (
	_ core.Publisher  = (*LogPublisher)(nil)
	_ core.PushClient = (*LogPush)(nil)
)
