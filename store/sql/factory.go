package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-ingress/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds the ledger stores over one bun database.
type RepositoryFactory struct {
	db          *bun.DB
	eventStore  *EventStore
	cachedStore *CachedEventStore
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	return newRepositoryFactory(client)
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	return newRepositoryFactory(db)
}

func newRepositoryFactory(candidate any) (*RepositoryFactory, error) {
	db, err := resolveBunDB(candidate)
	if err != nil {
		return nil, err
	}
	eventStore, err := NewEventStore(db)
	if err != nil {
		return nil, err
	}
	return &RepositoryFactory{db: db, eventStore: eventStore}, nil
}

// WithCache fronts the event store with a read-through cache for Check.
func (f *RepositoryFactory) WithCache(cacheService repositorycache.CacheService) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	cached, err := NewCachedEventStore(f.eventStore, cacheService)
	if err != nil {
		return err
	}
	f.cachedStore = cached
	return nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) EventStore() *EventStore {
	if f == nil {
		return nil
	}
	return f.eventStore
}

// IdempotencyStore returns the cached store when a cache is configured.
func (f *RepositoryFactory) IdempotencyStore() core.EventLedger {
	if f == nil {
		return nil
	}
	if f.cachedStore != nil {
		return f.cachedStore
	}
	return f.eventStore
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		if typed == nil {
			return nil, fmt.Errorf("sqlstore: bun db is required")
		}
		return typed, nil
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
