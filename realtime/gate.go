// Package realtime deduplicates derived real-time notifications.
package realtime

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-hookqueue/core"
)

const (
	DefaultWindow     = 5 * time.Second
	DefaultPruneLimit = 500
)

// Gate admits at most one publish per (entity, event type) within Window.
// Store errors other than a live marker fail open.
type Gate struct {
	Store      core.MarkerStore
	Window     time.Duration
	PruneLimit int
	Now        func() time.Time

	observer *core.Observer
}

func NewGate(store core.MarkerStore, window time.Duration) *Gate {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Gate{
		Store:      store,
		Window:     window,
		PruneLimit: DefaultPruneLimit,
		Now: func() time.Time {
			return time.Now().UTC()
		},
		observer: core.NewObserver("hookqueue.realtime", nil, nil),
	}
}

func (g *Gate) WithObserver(observer *core.Observer) *Gate {
	if g != nil && observer != nil {
		g.observer = observer
	}
	return g
}

func (g *Gate) ShouldPublish(ctx context.Context, entityID string, eventType string) bool {
	if g == nil || g.Store == nil {
		return true
	}
	entityID = strings.TrimSpace(entityID)
	eventType = strings.TrimSpace(eventType)
	if entityID == "" || eventType == "" {
		return true
	}

	now := g.now()
	err := g.Store.Acquire(ctx, entityID, eventType, now, g.window())
	if errors.Is(err, core.ErrMarkerExists) {
		g.observer.Count(ctx, "hookqueue.realtime.deduped", 1, map[string]string{"event_type": eventType})
		return false
	}
	if err != nil {
		g.observer.LogWarn(ctx, "dedup marker insert failed, publishing anyway", map[string]any{
			"entity_id":  entityID,
			"event_type": eventType,
			"error":      err.Error(),
		})
		return true
	}

	if _, pruneErr := g.Store.PruneExpired(ctx, now, g.pruneLimit()); pruneErr != nil {
		g.observer.LogDebug(ctx, "dedup marker prune failed", map[string]any{
			"error": pruneErr.Error(),
		})
	}
	return true
}

func (g *Gate) now() time.Time {
	if g != nil && g.Now != nil {
		return g.Now().UTC()
	}
	return time.Now().UTC()
}

func (g *Gate) window() time.Duration {
	if g != nil && g.Window > 0 {
		return g.Window
	}
	return DefaultWindow
}

func (g *Gate) pruneLimit() int {
	if g != nil && g.PruneLimit > 0 {
		return g.PruneLimit
	}
	return DefaultPruneLimit
}

var _ core.DedupGate = (*Gate)(nil)
