package notify

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/goliatone/go-hookqueue/core"
	"github.com/redis/go-redis/v9"
)

// PublishClient is the slice of redis.Cmdable the publisher needs.
type PublishClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type Frame struct {
	Channel string    `json:"channel"`
	Event   string    `json:"event"`
	Data    any       `json:"data,omitempty"`
	SentAt  time.Time `json:"sent_at"`
}

// RedisPublisher publishes JSON frames with PUBLISH. The caller owns the
// client lifecycle.
type RedisPublisher struct {
	Client PublishClient
	Prefix string
	Now    func() time.Time
}

func NewRedisPublisher(client PublishClient, prefix string) *RedisPublisher {
	return &RedisPublisher{
		Client: client,
		Prefix: strings.TrimSpace(prefix),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (p *RedisPublisher) Channel(name string) core.Channel {
	return redisChannel{publisher: p, name: strings.TrimSpace(name)}
}

func (p *RedisPublisher) topic(name string) string {
	if p.Prefix == "" {
		return name
	}
	return p.Prefix + ":" + name
}

type redisChannel struct {
	publisher *RedisPublisher
	name      string
}

func (c redisChannel) Publish(ctx context.Context, eventName string, data any) error {
	if c.publisher == nil || c.publisher.Client == nil {
		return core.NewNotificationError(nil, c.name, eventName)
	}
	now := time.Now().UTC()
	if c.publisher.Now != nil {
		now = c.publisher.Now()
	}
	payload, err := json.Marshal(Frame{
		Channel: c.name,
		Event:   eventName,
		Data:    data,
		SentAt:  now,
	})
	if err != nil {
		return core.NewNotificationError(err, c.name, eventName)
	}
	return c.publisher.Client.Publish(ctx, c.publisher.topic(c.name), payload).Err()
}

var _ core.Publisher = (*RedisPublisher)(nil)
