// Package redisstore puts a shared Redis fast path in front of a ledger so
// several ingress instances can skip the database for known duplicates.
package redisstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-ingress/core"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultKeyPrefix = "ingress:seen"
	DefaultTTL       = 72 * time.Hour
)

// SeenCache marks committed (provider, event_id) keys in Redis. A miss or a
// Redis error falls through to the base store, which stays authoritative.
type SeenCache struct {
	base   core.IdempotencyStore
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

type Option func(*SeenCache)

func WithKeyPrefix(prefix string) Option {
	return func(c *SeenCache) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			c.prefix = trimmed
		}
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(c *SeenCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func NewSeenCache(base core.IdempotencyStore, client redis.UniversalClient, opts ...Option) (*SeenCache, error) {
	if base == nil {
		return nil, fmt.Errorf("redisstore: base store is required")
	}
	if client == nil {
		return nil, fmt.Errorf("redisstore: redis client is required")
	}
	cache := &SeenCache{base: base, client: client, prefix: DefaultKeyPrefix, ttl: DefaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(cache)
		}
	}
	return cache, nil
}

// NewClient parses a redis:// URL and checks connectivity.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

func (c *SeenCache) Key(provider, eventID string) string {
	return c.prefix + ":" + strings.ToLower(strings.TrimSpace(provider)) + ":" + strings.TrimSpace(eventID)
}

func (c *SeenCache) Check(ctx context.Context, provider, eventID string) (bool, error) {
	key := c.Key(provider, eventID)
	if n, err := c.client.Exists(ctx, key).Result(); err == nil && n > 0 {
		return true, nil
	}
	seen, err := c.base.Check(ctx, provider, eventID)
	if err != nil || !seen {
		return seen, err
	}
	_ = c.client.Set(ctx, key, "1", c.ttl).Err()
	return true, nil
}

// RunInTx marks recorded keys only after the base transaction commits.
func (c *SeenCache) RunInTx(ctx context.Context, opts core.TxOptions, fn func(ctx context.Context, tx core.EventTx) error) error {
	var recorded []string
	err := c.base.RunInTx(ctx, opts, func(ctx context.Context, tx core.EventTx) error {
		return fn(ctx, &markingTx{EventTx: tx, cache: c, recorded: &recorded})
	})
	if err != nil {
		return err
	}
	if len(recorded) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for _, key := range recorded {
		pipe.Set(ctx, key, "1", c.ttl)
	}
	_, _ = pipe.Exec(ctx)
	return nil
}

type markingTx struct {
	core.EventTx
	cache    *SeenCache
	recorded *[]string
}

func (t *markingTx) Record(ctx context.Context, in core.RecordInput) (string, error) {
	id, err := t.EventTx.Record(ctx, in)
	if err == nil {
		*t.recorded = append(*t.recorded, t.cache.Key(in.Provider, in.EventID))
	}
	return id, err
}

var _ core.IdempotencyStore = (*SeenCache)(nil)
