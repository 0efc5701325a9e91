package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-hookqueue/core"
)

type markerKey struct {
	entityID  string
	eventType string
}

// MemoryMarkerStore keeps dedup markers in process memory.
type MemoryMarkerStore struct {
	mu      sync.Mutex
	markers map[markerKey]time.Time
}

func NewMemoryMarkerStore() *MemoryMarkerStore {
	return &MemoryMarkerStore{markers: map[markerKey]time.Time{}}
}

func (s *MemoryMarkerStore) Acquire(_ context.Context, entityID string, eventType string, now time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := markerKey{entityID: entityID, eventType: eventType}
	if expiresAt, ok := s.markers[key]; ok && expiresAt.After(now) {
		return core.ErrMarkerExists
	}
	s.markers[key] = now.Add(ttl)
	return nil
}

func (s *MemoryMarkerStore) PruneExpired(_ context.Context, now time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pruned := 0
	for key, expiresAt := range s.markers {
		if limit > 0 && pruned >= limit {
			break
		}
		if !expiresAt.After(now) {
			delete(s.markers, key)
			pruned++
		}
	}
	return pruned, nil
}

func (s *MemoryMarkerStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.markers)
}

var _ core.MarkerStore = (*MemoryMarkerStore)(nil)
