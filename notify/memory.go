package notify

import (
	"context"
	"strings"
	"sync"

	"github.com/goliatone/go-hookqueue/core"
)

type Published struct {
	Channel string
	Event   string
	Data    any
}

type Pushed struct {
	UserID  string
	Message core.PushMessage
}

// MemoryPublisher records publishes in process. Err, when set, is returned
// from every publish after recording.
type MemoryPublisher struct {
	mu        sync.Mutex
	published []Published
	Err       error
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Channel(name string) core.Channel {
	return memoryChannel{publisher: p, name: strings.TrimSpace(name)}
}

func (p *MemoryPublisher) Published() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Published(nil), p.published...)
}

// Count returns how many publishes carried the event on the channel.
func (p *MemoryPublisher) Count(channel string, event string) int {
	count := 0
	for _, item := range p.Published() {
		if item.Channel == channel && item.Event == event {
			count++
		}
	}
	return count
}

type memoryChannel struct {
	publisher *MemoryPublisher
	name      string
}

func (c memoryChannel) Publish(_ context.Context, eventName string, data any) error {
	c.publisher.mu.Lock()
	defer c.publisher.mu.Unlock()
	c.publisher.published = append(c.publisher.published, Published{Channel: c.name, Event: eventName, Data: data})
	return c.publisher.Err
}

type MemoryPush struct {
	mu     sync.Mutex
	pushed []Pushed
	Err    error
}

func NewMemoryPush() *MemoryPush {
	return &MemoryPush{}
}

func (p *MemoryPush) SendToUser(_ context.Context, userID string, msg core.PushMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed = append(p.pushed, Pushed{UserID: userID, Message: msg})
	return p.Err
}

func (p *MemoryPush) Pushed() []Pushed {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Pushed(nil), p.pushed...)
}

var (
	_ core.Publisher  = (*MemoryPublisher)(nil)
	_ core.PushClient = (*MemoryPush)(nil)
)
