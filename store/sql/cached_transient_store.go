package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-crm-connect/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const transientEntryCacheKeyPrefix = "go-crm-connect::transient_entry::v1"

var errTransientEntryMiss = errors.New("sqlstore: transient entry miss")

// BackingTransientStore is the contract the cached decorator reads through.
type BackingTransientStore interface {
	core.TransientStore
	core.TransientTaker
	core.TransientEntryReader
	core.TransientPurger
}

type CachedTransientStore struct {
	base  BackingTransientStore
	cache repositorycache.CacheService
	now   func() time.Time
}

func NewCachedTransientStore(
	base BackingTransientStore,
	cacheService repositorycache.CacheService,
) (*CachedTransientStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base transient store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: transient cache service is required")
	}
	return &CachedTransientStore{
		base:  base,
		cache: cacheService,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// TransientEntryCacheKey returns go-crm-connect::transient_entry::v1::<key>
// with the entry key URL-path escaped.
func TransientEntryCacheKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("sqlstore: transient key is required")
	}
	return transientEntryCacheKeyPrefix + "::" + url.PathEscape(key), nil
}

func (s *CachedTransientStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached transient store is not configured")
	}
	if err := s.base.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return s.invalidate(ctx, key)
}

func (s *CachedTransientStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, ok, err := s.Lookup(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	return entry.Value, true, nil
}

func (s *CachedTransientStore) Lookup(ctx context.Context, key string) (core.TransientEntry, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.TransientEntry{}, false, fmt.Errorf("sqlstore: cached transient store is not configured")
	}
	cacheKey, err := TransientEntryCacheKey(key)
	if err != nil {
		return core.TransientEntry{}, false, nil
	}
	key = strings.TrimSpace(key)

	entry, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.TransientEntry, error) {
		fetched, ok, fetchErr := s.base.Lookup(ctx, key)
		if fetchErr != nil {
			return core.TransientEntry{}, fetchErr
		}
		if !ok {
			return core.TransientEntry{}, errTransientEntryMiss
		}
		return cloneTransientEntry(fetched), nil
	})
	if err != nil {
		if errors.Is(err, errTransientEntryMiss) {
			return core.TransientEntry{}, false, nil
		}
		return core.TransientEntry{}, false, err
	}
	if entry.Expired(s.now()) {
		if err := s.cache.Delete(ctx, cacheKey); err != nil {
			return core.TransientEntry{}, false, err
		}
		return core.TransientEntry{}, false, nil
	}
	return cloneTransientEntry(entry), true, nil
}

func (s *CachedTransientStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached transient store is not configured")
	}
	if err := s.base.Delete(ctx, key); err != nil {
		return err
	}
	return s.invalidate(ctx, key)
}

// Take always goes to the backing store so single-use semantics hold
// regardless of what the cache holds.
func (s *CachedTransientStore) Take(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, false, fmt.Errorf("sqlstore: cached transient store is not configured")
	}
	value, ok, err := s.base.Take(ctx, key)
	if invalidateErr := s.invalidate(ctx, key); invalidateErr != nil && err == nil {
		err = invalidateErr
	}
	if err != nil {
		return nil, false, err
	}
	return value, ok, nil
}

func (s *CachedTransientStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	if s == nil || s.base == nil {
		return 0, fmt.Errorf("sqlstore: cached transient store is not configured")
	}
	return s.base.PurgeExpired(ctx, now)
}

func (s *CachedTransientStore) invalidate(ctx context.Context, key string) error {
	cacheKey, err := TransientEntryCacheKey(key)
	if err != nil {
		return nil
	}
	return s.cache.Delete(ctx, cacheKey)
}

func cloneTransientEntry(entry core.TransientEntry) core.TransientEntry {
	cloned := entry
	cloned.Value = append([]byte(nil), entry.Value...)
	cloned.ExpiresAt = entry.ExpiresAt.UTC()
	return cloned
}
