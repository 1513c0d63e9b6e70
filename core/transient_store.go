package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

const defaultMemoryTransientMaxEntries = 10000

type MemoryTransientStore struct {
	mu         sync.Mutex
	maxEntries int
	now        func() time.Time
	entries    map[string]memoryTransientEntry
}

type memoryTransientEntry struct {
	value     []byte
	createdAt time.Time
	expiresAt time.Time
}

func NewMemoryTransientStore() *MemoryTransientStore {
	return NewMemoryTransientStoreWithLimits(defaultMemoryTransientMaxEntries, nil)
}

func NewMemoryTransientStoreWithLimits(maxEntries int, now func() time.Time) *MemoryTransientStore {
	if maxEntries <= 0 {
		maxEntries = defaultMemoryTransientMaxEntries
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryTransientStore{
		maxEntries: maxEntries,
		now:        now,
		entries:    map[string]memoryTransientEntry{},
	}
}

func (s *MemoryTransientStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if s == nil {
		return fmt.Errorf("core: transient store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("core: transient key is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("core: transient ttl must be positive")
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(now)
	s.entries[key] = memoryTransientEntry{
		value:     append([]byte(nil), value...),
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
	s.evictLocked()
	return nil
}

func (s *MemoryTransientStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if s == nil {
		return nil, false, fmt.Errorf("core: transient store is not configured")
	}
	key = strings.TrimSpace(key)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !now.Before(entry.expiresAt) {
		delete(s.entries, key)
		return nil, false, nil
	}
	return append([]byte(nil), entry.value...), true, nil
}

func (s *MemoryTransientStore) Delete(_ context.Context, key string) error {
	if s == nil {
		return fmt.Errorf("core: transient store is not configured")
	}
	s.mu.Lock()
	delete(s.entries, strings.TrimSpace(key))
	s.mu.Unlock()
	return nil
}

// Take removes the key and returns its value if it was still live.
func (s *MemoryTransientStore) Take(_ context.Context, key string) ([]byte, bool, error) {
	if s == nil {
		return nil, false, fmt.Errorf("core: transient store is not configured")
	}
	key = strings.TrimSpace(key)
	now := s.now()

	s.mu.Lock()
	entry, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
	}
	s.mu.Unlock()

	if !ok || !now.Before(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (s *MemoryTransientStore) Lookup(_ context.Context, key string) (TransientEntry, bool, error) {
	if s == nil {
		return TransientEntry{}, false, fmt.Errorf("core: transient store is not configured")
	}
	key = strings.TrimSpace(key)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok || !now.Before(entry.expiresAt) {
		return TransientEntry{}, false, nil
	}
	return TransientEntry{
		Key:       key,
		Value:     append([]byte(nil), entry.value...),
		ExpiresAt: entry.expiresAt,
	}, true, nil
}

func (s *MemoryTransientStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("core: transient store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneLocked(now), nil
}

func (s *MemoryTransientStore) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryTransientStore) pruneLocked(now time.Time) int {
	removed := 0
	for key, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

func (s *MemoryTransientStore) evictLocked() {
	overflow := len(s.entries) - s.maxEntries
	if overflow <= 0 {
		return
	}
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return s.entries[keys[i]].createdAt.Before(s.entries[keys[j]].createdAt)
	})
	for _, key := range keys[:overflow] {
		delete(s.entries, key)
	}
}

var (
	_ TransientStore       = (*MemoryTransientStore)(nil)
	_ TransientTaker       = (*MemoryTransientStore)(nil)
	_ TransientEntryReader = (*MemoryTransientStore)(nil)
	_ TransientPurger      = (*MemoryTransientStore)(nil)
)
