package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

// NewTransientStoreFromPersistence builds a TransientStore on the bun db held
// by a go-persistence-bun client.
func NewTransientStoreFromPersistence(client *persistence.Client) (*TransientStore, error) {
	db, err := resolveBunDB(client)
	if err != nil {
		return nil, err
	}
	return NewTransientStore(db)
}

// NewCachedTransientStoreFromDB wraps a bun backed TransientStore with a
// read-through cache. A nil cache service gets the default configuration.
func NewCachedTransientStoreFromDB(candidate any, cacheService repositorycache.CacheService) (*CachedTransientStore, error) {
	db, err := resolveBunDB(candidate)
	if err != nil {
		return nil, err
	}
	base, err := NewTransientStore(db)
	if err != nil {
		return nil, err
	}
	if cacheService == nil {
		cacheService, err = repositorycache.NewCacheService(repositorycache.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("sqlstore: build transient cache: %w", err)
		}
	}
	return NewCachedTransientStore(base, cacheService)
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case *persistence.Client:
		if typed == nil {
			return nil, fmt.Errorf("sqlstore: persistence client is required")
		}
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
