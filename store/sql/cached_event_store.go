package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-ingress/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const eventCacheKeyPrefix = "go-ingress::webhook_event::v1"

// CachedEventStore answers repeat Check calls for already committed events
// from a read-through cache. Only positive answers are kept; the unique key
// in the base store stays the source of truth.
type CachedEventStore struct {
	base  *EventStore
	cache repositorycache.CacheService
}

func NewCachedEventStore(base *EventStore, cacheService repositorycache.CacheService) (*CachedEventStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base event store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: event cache service is required")
	}
	return &CachedEventStore{base: base, cache: cacheService}, nil
}

// EventCacheKey is go-ingress::webhook_event::v1::<provider>::<event_id>
// with each segment path escaped.
func EventCacheKey(provider, eventID string) string {
	return strings.Join([]string{
		eventCacheKeyPrefix,
		url.PathEscape(normalizeProvider(provider)),
		url.PathEscape(strings.TrimSpace(eventID)),
	}, "::")
}

func (s *CachedEventStore) Check(ctx context.Context, provider, eventID string) (bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return false, fmt.Errorf("sqlstore: cached event store is not configured")
	}
	key := EventCacheKey(provider, eventID)
	seen, err := repositorycache.GetOrFetch(ctx, s.cache, key, func(ctx context.Context) (bool, error) {
		return s.base.Check(ctx, provider, eventID)
	})
	if err != nil {
		return false, err
	}
	if !seen {
		// A stale negative only costs a trip to the unique key on Record.
		_ = s.cache.Delete(ctx, key)
	}
	return seen, nil
}

func (s *CachedEventStore) RunInTx(ctx context.Context, opts core.TxOptions, fn func(ctx context.Context, tx core.EventTx) error) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached event store is not configured")
	}
	var recorded []string
	err := s.base.RunInTx(ctx, opts, func(ctx context.Context, tx core.EventTx) error {
		return fn(ctx, &recordingTx{EventTx: tx, recorded: &recorded})
	})
	if err != nil {
		return err
	}
	// The transaction is committed; eviction failures must not report it as
	// failed.
	for _, key := range recorded {
		_ = s.cache.Delete(ctx, key)
	}
	return nil
}

func (s *CachedEventStore) GetEventRecord(ctx context.Context, provider, eventID string) (core.WebhookEventRecord, error) {
	return s.base.GetEventRecord(ctx, provider, eventID)
}

func (s *CachedEventStore) ListEventRecords(ctx context.Context, filter core.EventRecordFilter) (core.EventRecordPage, error) {
	return s.base.ListEventRecords(ctx, filter)
}

func (s *CachedEventStore) PurgeEventRecords(ctx context.Context, before time.Time) (int, error) {
	return s.base.PurgeEventRecords(ctx, before)
}

type recordingTx struct {
	core.EventTx
	recorded *[]string
}

func (t *recordingTx) Record(ctx context.Context, in core.RecordInput) (string, error) {
	id, err := t.EventTx.Record(ctx, in)
	if err == nil {
		*t.recorded = append(*t.recorded, EventCacheKey(in.Provider, in.EventID))
	}
	return id, err
}
