package sqlstore_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-ingress/core"
	ingressmigrations "github.com/goliatone/go-ingress/migrations"
	"github.com/goliatone/go-ingress/routing"
	sqlstore "github.com/goliatone/go-ingress/store/sql"
	"github.com/goliatone/go-ingress/webhooks"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-ingress-tests"
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf("file:ingress-test-%d?mode=memory&cache=shared&_foreign_keys=on", time.Now().UnixNano())
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	client, err := persistence.New(testPersistenceConfig{driver: "sqlite3", server: dsn}, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = ingressmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != ingressmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, ingressmigrations.WithValidationTargets(ingressmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}
	if _, err := client.DB().ExecContext(ctx, `CREATE TABLE deployments (event_id TEXT NOT NULL, ref TEXT NOT NULL)`); err != nil {
		_ = client.Close()
		t.Fatalf("create side table: %v", err)
	}
	return client, func() {
		_ = client.Close()
	}
}

func newEventStore(t *testing.T, client *persistence.Client) *sqlstore.EventStore {
	t.Helper()
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	return factory.EventStore()
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"webhook_events",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "webhook_events" {
		t.Fatalf("expected webhook_events table, got %q", tableName)
	}
}

func TestEventStore_RecordCommitAndDuplicate(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	store := newEventStore(t, client)

	var recordID string
	err := store.RunInTx(ctx, core.TxOptions{}, func(ctx context.Context, tx core.EventTx) error {
		id, err := tx.Record(ctx, core.RecordInput{Provider: "GitHub", EventID: "delivery-1", EventType: "push"})
		if err != nil {
			return err
		}
		recordID = id
		return tx.UpdateStatus(ctx, core.StatusUpdate{
			Provider: "github",
			EventID:  "delivery-1",
			Status:   core.EventStatusSuccess,
			Outcome:  core.EventOutcomeHandled,
		})
	})
	if err != nil {
		t.Fatalf("record transaction: %v", err)
	}

	seen, err := store.Check(ctx, "github", "delivery-1")
	if err != nil || !seen {
		t.Fatalf("expected committed event to be seen, got seen=%v err=%v", seen, err)
	}
	record, err := store.GetEventRecord(ctx, "github", "delivery-1")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if record.ID != recordID || record.Status != core.EventStatusSuccess || record.Outcome != core.EventOutcomeHandled {
		t.Fatalf("unexpected record %#v", record)
	}

	err = store.RunInTx(ctx, core.TxOptions{}, func(ctx context.Context, tx core.EventTx) error {
		_, err := tx.Record(ctx, core.RecordInput{Provider: "github", EventID: "delivery-1", EventType: "push"})
		return err
	})
	if !core.IsDuplicate(err) {
		t.Fatalf("expected duplicate record error, got %v", err)
	}
}

func TestEventStore_RollbackLeavesNoRow(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	store := newEventStore(t, client)

	boom := errors.New("handler exploded")
	err := store.RunInTx(ctx, core.TxOptions{}, func(ctx context.Context, tx core.EventTx) error {
		if _, err := tx.Record(ctx, core.RecordInput{Provider: "stripe", EventID: "evt_1"}); err != nil {
			return err
		}
		if _, err := tx.Tx().ExecContext(ctx, "INSERT INTO deployments (event_id, ref) VALUES (?, ?)", "evt_1", "main"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if seen, _ := store.Check(ctx, "stripe", "evt_1"); seen {
		t.Fatalf("expected rolled back ledger row to be absent")
	}
	var count int
	if err := client.DB().NewRaw("SELECT COUNT(*) FROM deployments").Scan(ctx, &count); err != nil {
		t.Fatalf("count side effects: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected handler side effect to roll back, got %d rows", count)
	}
}

func TestEventStore_UpdateStatusRequiresRow(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	store := newEventStore(t, client)

	err := store.RunInTx(ctx, core.TxOptions{}, func(ctx context.Context, tx core.EventTx) error {
		return tx.UpdateStatus(ctx, core.StatusUpdate{Provider: "github", EventID: "ghost", Status: core.EventStatusSuccess})
	})
	if !core.HasTextCode(err, core.ErrorRecordNotFound) {
		t.Fatalf("expected record not found, got %v", err)
	}
}

func TestEventStore_ListAndPurge(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	store := newEventStore(t, client)

	for _, eventID := range []string{"a", "b", "c"} {
		err := store.RunInTx(ctx, core.TxOptions{}, func(ctx context.Context, tx core.EventTx) error {
			if _, err := tx.Record(ctx, core.RecordInput{Provider: "github", EventID: eventID, EventType: "push"}); err != nil {
				return err
			}
			status, outcome := core.EventStatusSuccess, core.EventOutcomeHandled
			if eventID == "c" {
				status, outcome = core.EventStatusFailed, core.EventOutcomeRejected
			}
			return tx.UpdateStatus(ctx, core.StatusUpdate{Provider: "github", EventID: eventID, Status: status, Outcome: outcome})
		})
		if err != nil {
			t.Fatalf("record %s: %v", eventID, err)
		}
	}

	page, err := store.ListEventRecords(ctx, core.EventRecordFilter{Provider: "github"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 3 || len(page.Items) != 3 {
		t.Fatalf("expected three records, got %#v", page)
	}
	page, err = store.ListEventRecords(ctx, core.EventRecordFilter{Status: core.EventStatusFailed})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if page.Total != 1 || page.Items[0].EventID != "c" {
		t.Fatalf("expected one failed record, got %#v", page)
	}

	purged, err := store.PurgeEventRecords(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 3 {
		t.Fatalf("expected three purged records, got %d", purged)
	}
	if _, err := store.GetEventRecord(ctx, "github", "a"); !core.HasTextCode(err, core.ErrorRecordNotFound) {
		t.Fatalf("expected purged record to be gone, got %v", err)
	}
}

func TestEventStore_ProcessorEndToEnd(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	store := newEventStore(t, client)

	var (
		mu       sync.Mutex
		failNext = true
	)
	handler := core.EventHandlerFunc(func(ctx context.Context, inv core.HandlerInvocation) (core.HandlerResult, error) {
		if _, err := inv.Tx.ExecContext(ctx, "INSERT INTO deployments (event_id, ref) VALUES (?, ?)", inv.EventID, inv.Params["ref"]); err != nil {
			return core.HandlerResult{}, err
		}
		mu.Lock()
		defer mu.Unlock()
		if failNext {
			failNext = false
			return core.HandlerResult{}, errors.New("downstream timeout")
		}
		return core.HandlerResult{Success: true}, nil
	})

	cfg := core.DefaultConfig()
	cfg.Endpoints["github"] = core.WebhookConfig{
		Provider:  "github",
		SecretRef: "github_secret",
		Routes: map[string]core.EventRoute{
			"push": {Target: "sql:record_deployment", Mapping: map[string]string{"ref": "ref"}},
		},
	}
	secrets := core.SecretResolverFunc(func(context.Context, string) (string, error) { return "gh-secret", nil })
	processor := webhooks.NewProcessor(cfg, nil, secrets, store, routing.NewRouter(handler))

	body := []byte(`{"ref":"refs/heads/main"}`)
	mac := hmac.New(sha256.New, []byte("gh-secret"))
	_, _ = mac.Write(body)
	req := core.InboundRequest{
		Endpoint: "github",
		Body:     body,
		Headers: map[string]string{
			"X-Hub-Signature-256": "sha256=" + hex.EncodeToString(mac.Sum(nil)),
			"X-GitHub-Delivery":   "delivery-42",
			"X-GitHub-Event":      "push",
		},
	}

	if _, err := processor.Process(ctx, req); !core.HasTextCode(err, core.ErrorHandlerFailed) {
		t.Fatalf("expected first attempt to fail in the handler, got %v", err)
	}
	countDeployments := func() int {
		var count int
		if err := client.DB().NewRaw("SELECT COUNT(*) FROM deployments").Scan(ctx, &count); err != nil {
			t.Fatalf("count deployments: %v", err)
		}
		return count
	}
	if countDeployments() != 0 {
		t.Fatalf("expected failed attempt to leave no side effects")
	}

	result, err := processor.Process(ctx, req)
	if err != nil || result.State != core.DeliveryStateSucceeded {
		t.Fatalf("expected retry to succeed, got %#v err=%v", result, err)
	}
	result, err = processor.Process(ctx, req)
	if err != nil || result.State != core.DeliveryStateDuplicate {
		t.Fatalf("expected third attempt to dedupe, got %#v err=%v", result, err)
	}
	if countDeployments() != 1 {
		t.Fatalf("expected exactly one committed side effect")
	}
	record, err := store.GetEventRecord(ctx, "github", "delivery-42")
	if err != nil || record.Status != core.EventStatusSuccess {
		t.Fatalf("expected success record, got %#v err=%v", record, err)
	}
}

func TestCachedEventStore_CachesPositiveChecksOnly(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	cacheService, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	if err := factory.WithCache(cacheService); err != nil {
		t.Fatalf("with cache: %v", err)
	}
	store := factory.IdempotencyStore()

	seen, err := store.Check(ctx, "github", "delivery-1")
	if err != nil || seen {
		t.Fatalf("expected unseen event, got seen=%v err=%v", seen, err)
	}

	err = store.RunInTx(ctx, core.TxOptions{}, func(ctx context.Context, tx core.EventTx) error {
		_, err := tx.Record(ctx, core.RecordInput{Provider: "github", EventID: "delivery-1"})
		if err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, core.StatusUpdate{Provider: "github", EventID: "delivery-1", Status: core.EventStatusSuccess, Outcome: core.EventOutcomeHandled})
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	seen, err = store.Check(ctx, "github", "delivery-1")
	if err != nil || !seen {
		t.Fatalf("expected negative check not to be cached, got seen=%v err=%v", seen, err)
	}

	if _, err := client.DB().ExecContext(ctx, "DELETE FROM webhook_events"); err != nil {
		t.Fatalf("clear ledger: %v", err)
	}
	seen, err = store.Check(ctx, "github", "delivery-1")
	if err != nil || !seen {
		t.Fatalf("expected positive check to be served from cache, got seen=%v err=%v", seen, err)
	}
}

type failingDeleteCache struct {
	repositorycache.CacheService
	deletes int
}

func (c *failingDeleteCache) Delete(context.Context, string) error {
	c.deletes++
	return errors.New("cache unavailable")
}

func TestCachedEventStore_CommitSurvivesCacheDeleteFailure(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	inner, err := repositorycache.NewCacheService(repositorycache.DefaultConfig())
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	cacheService := &failingDeleteCache{CacheService: inner}
	if err := factory.WithCache(cacheService); err != nil {
		t.Fatalf("with cache: %v", err)
	}
	store := factory.IdempotencyStore()

	seen, err := store.Check(ctx, "stripe", "evt_1")
	if err != nil || seen {
		t.Fatalf("expected unseen event despite cache errors, got seen=%v err=%v", seen, err)
	}

	err = store.RunInTx(ctx, core.TxOptions{}, func(ctx context.Context, tx core.EventTx) error {
		_, err := tx.Record(ctx, core.RecordInput{Provider: "stripe", EventID: "evt_1"})
		return err
	})
	if err != nil {
		t.Fatalf("expected committed transaction to report success, got %v", err)
	}
	if cacheService.deletes < 2 {
		t.Fatalf("expected eviction attempts after check and commit, got %d", cacheService.deletes)
	}

	record, err := store.GetEventRecord(ctx, "stripe", "evt_1")
	if err != nil || record.EventID != "evt_1" {
		t.Fatalf("expected committed record, got %#v err=%v", record, err)
	}
}

func TestEventCacheKey(t *testing.T) {
	key := sqlstore.EventCacheKey(" GitHub ", "a/b")
	if key != "go-ingress::webhook_event::v1::github::a%2Fb" {
		t.Fatalf("unexpected cache key %q", key)
	}
}
