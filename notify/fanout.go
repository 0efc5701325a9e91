package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/go-hookqueue/core"
)

const pushEventPrefix = "push."

// Fanout delivers an outcome's notifications. Each (entity, event) pair is
// checked against the dedup gate once, then published to every channel
// that carries it.
type Fanout struct {
	Publisher core.Publisher
	Push      core.PushClient
	Gate      core.DedupGate

	observer *core.Observer
}

func NewFanout(publisher core.Publisher, push core.PushClient, gate core.DedupGate) *Fanout {
	return &Fanout{
		Publisher: publisher,
		Push:      push,
		Gate:      gate,
		observer:  core.NewObserver("hookqueue.notify", nil, nil),
	}
}

func (f *Fanout) WithObserver(observer *core.Observer) *Fanout {
	if f != nil && observer != nil {
		f.observer = observer
	}
	return f
}

func (f *Fanout) Deliver(ctx context.Context, outcome core.Outcome) error {
	if f == nil {
		return nil
	}
	var errs []error
	admitted := map[string]bool{}

	for _, notification := range outcome.Notifications {
		entityID := firstNonEmpty(notification.EntityID, outcome.EntityID)
		eventName := strings.TrimSpace(notification.EventName)
		if eventName == "" || !ValidChannel(notification.Channel) {
			errs = append(errs, core.NewNotificationError(nil, notification.Channel, eventName))
			continue
		}
		if !f.admit(ctx, admitted, entityID, eventName) {
			continue
		}
		if f.Publisher == nil {
			continue
		}
		if err := f.Publisher.Channel(notification.Channel).Publish(ctx, eventName, notification.Data); err != nil {
			errs = append(errs, core.NewNotificationError(err, notification.Channel, eventName))
			continue
		}
		f.observer.Count(ctx, "hookqueue.notify.published", 1, map[string]string{"event_type": eventName})
	}

	for _, push := range outcome.Pushes {
		userID := strings.TrimSpace(push.UserID)
		if userID == "" || f.Push == nil {
			continue
		}
		entityID := firstNonEmpty(push.EntityID, outcome.EntityID)
		eventName := pushEventPrefix + firstNonEmpty(push.Event, "notification")
		if !f.admit(ctx, admitted, entityID+"|"+userID, eventName) {
			continue
		}
		if err := f.Push.SendToUser(ctx, userID, push.Message); err != nil {
			errs = append(errs, core.NewNotificationError(err, UserChannel(userID), eventName))
			continue
		}
		f.observer.Count(ctx, "hookqueue.notify.pushed", 1, map[string]string{"event_type": eventName})
	}
	if len(errs) == 1 {
		return errs[0]
	}
	return errors.Join(errs...)
}

func (f *Fanout) admit(ctx context.Context, admitted map[string]bool, entityID string, eventName string) bool {
	key := entityID + "\x00" + eventName
	if allowed, seen := admitted[key]; seen {
		return allowed
	}
	allowed := true
	if f.Gate != nil {
		allowed = f.Gate.ShouldPublish(ctx, entityID, eventName)
	}
	admitted[key] = allowed
	return allowed
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

var _ core.Notifier = (*Fanout)(nil)
