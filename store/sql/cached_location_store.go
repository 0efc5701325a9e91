package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-hookqueue/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const locationCacheKeyPrefix = "go-hookqueue::location::v1"

// CachedLocationStore fronts a location store with a read-through cache.
// Writes go to the base store and then drop the cached entry.
type CachedLocationStore struct {
	base  core.LocationStore
	cache repositorycache.CacheService
}

func NewCachedLocationStore(base core.LocationStore, cacheService repositorycache.CacheService) (*CachedLocationStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base location store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: location cache service is required")
	}
	return &CachedLocationStore{base: base, cache: cacheService}, nil
}

// NewLocationCacheService builds the in-process cache used for location reads.
func NewLocationCacheService(ttl time.Duration) (repositorycache.CacheService, error) {
	config := repositorycache.DefaultConfig()
	if ttl > 0 {
		config.TTL = ttl
	}
	return repositorycache.NewCacheService(config)
}

// LocationCacheKey returns go-hookqueue::location::v1::<external_id> with the
// id URL-path escaped.
func LocationCacheKey(externalID string) (string, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return "", core.NewValidationError("location_id", "is required")
	}
	return locationCacheKeyPrefix + "::" + url.PathEscape(externalID), nil
}

func (s *CachedLocationStore) GetLocation(ctx context.Context, externalID string) (core.Location, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Location{}, fmt.Errorf("sqlstore: cached location store is not configured")
	}
	cacheKey, err := LocationCacheKey(externalID)
	if err != nil {
		return core.Location{}, err
	}
	location, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Location, error) {
		return s.base.GetLocation(ctx, strings.TrimSpace(externalID))
	})
	if err != nil {
		return core.Location{}, err
	}
	return cloneLocation(location), nil
}

func (s *CachedLocationStore) UpsertLocation(ctx context.Context, location core.Location) (core.Location, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Location{}, fmt.Errorf("sqlstore: cached location store is not configured")
	}
	saved, err := s.base.UpsertLocation(ctx, location)
	if err != nil {
		return core.Location{}, err
	}
	if err := s.Invalidate(ctx, saved.ExternalID); err != nil {
		return core.Location{}, err
	}
	return saved, nil
}

func (s *CachedLocationStore) Invalidate(ctx context.Context, externalID string) error {
	cacheKey, err := LocationCacheKey(externalID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func cloneLocation(location core.Location) core.Location {
	cloned := location
	cloned.Settings = copyAnyMap(location.Settings)
	cloned.TokenExpiresAt = cloneTimePointer(location.TokenExpiresAt)
	cloned.InstalledAt = cloneTimePointer(location.InstalledAt)
	cloned.UninstalledAt = cloneTimePointer(location.UninstalledAt)
	return cloned
}

var _ core.LocationStore = (*CachedLocationStore)(nil)
