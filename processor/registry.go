package processor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-hookqueue/core"
)

// Handler applies one event and returns the notifications to emit once the
// apply phase has committed.
type Handler interface {
	Apply(ctx context.Context, event core.Event) (core.Outcome, error)
}

type HandlerFunc func(ctx context.Context, event core.Event) (core.Outcome, error)

func (f HandlerFunc) Apply(ctx context.Context, event core.Event) (core.Outcome, error) {
	return f(ctx, event)
}

// ItemHandler is what the run loop invokes per claimed item.
type ItemHandler interface {
	Handle(ctx context.Context, item core.WorkItem) error
}

// Registry maps event types to handlers and runs the two handler phases:
// apply, then notify. Notify errors are logged and never fail the item.
type Registry struct {
	QueueType core.QueueType
	Fallback  Handler
	Notifier  core.Notifier

	mu       sync.RWMutex
	handlers map[string]Handler
	observer *core.Observer
}

func NewRegistry(queueType core.QueueType) *Registry {
	return &Registry{
		QueueType: queueType,
		handlers:  map[string]Handler{},
		observer:  core.NewObserver("hookqueue.processor", nil, nil),
	}
}

func (r *Registry) WithObserver(observer *core.Observer) *Registry {
	if r != nil && observer != nil {
		r.observer = observer
	}
	return r
}

func (r *Registry) Register(eventType string, handler Handler) error {
	if r == nil {
		return fmt.Errorf("processor: registry is nil")
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return fmt.Errorf("processor: event type is required")
	}
	if handler == nil {
		return fmt.Errorf("processor: handler for %q is nil", eventType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = map[string]Handler{}
	}
	if _, exists := r.handlers[eventType]; exists {
		return fmt.Errorf("processor: handler for %q already registered", eventType)
	}
	r.handlers[eventType] = handler
	return nil
}

func (r *Registry) RegisterFunc(eventType string, fn func(ctx context.Context, event core.Event) (core.Outcome, error)) error {
	if fn == nil {
		return r.Register(eventType, nil)
	}
	return r.Register(eventType, HandlerFunc(fn))
}

func (r *Registry) EventTypes() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for eventType := range r.handlers {
		out = append(out, eventType)
	}
	sort.Strings(out)
	return out
}

// Validate fails when any required event type has no handler.
func (r *Registry) Validate(required ...string) error {
	if r == nil {
		return fmt.Errorf("processor: registry is nil")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	missing := make([]string, 0)
	for _, eventType := range required {
		if _, ok := r.handlers[eventType]; !ok {
			missing = append(missing, eventType)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s queue missing %s", core.ErrHandlerNotRegistered, r.QueueType, strings.Join(missing, ", "))
	}
	return nil
}

func (r *Registry) Handle(ctx context.Context, item core.WorkItem) error {
	if r == nil {
		return core.NewInternalError(nil, "processor: registry is nil")
	}
	event, err := NormalizeEvent(item)
	if err != nil {
		return err
	}
	handler := r.lookup(event.Type)
	if handler == nil {
		return core.NewValidationError("type", fmt.Sprintf("no handler registered for %q", event.Type))
	}

	outcome, err := handler.Apply(ctx, event)
	if err != nil {
		return err
	}
	r.notify(ctx, event, outcome)
	return nil
}

func (r *Registry) lookup(eventType string) Handler {
	r.mu.RLock()
	handler, ok := r.handlers[eventType]
	r.mu.RUnlock()
	if ok {
		return handler
	}
	return r.Fallback
}

func (r *Registry) notify(ctx context.Context, event core.Event, outcome core.Outcome) {
	if r.Notifier == nil || outcome.Empty() {
		return
	}
	if err := r.Notifier.Deliver(ctx, outcome); err != nil {
		r.observer.LogWarn(ctx, "notification fan-out failed", map[string]any{
			"webhook_id": event.WebhookID,
			"event_type": event.Type,
			"entity_id":  outcome.EntityID,
			"error":      err.Error(),
		})
		r.observer.Count(ctx, "hookqueue.notify.failures", 1, map[string]string{"event_type": event.Type})
	}
}

var _ ItemHandler = (*Registry)(nil)
