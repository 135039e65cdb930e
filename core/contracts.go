package core

import (
	"context"
	"database/sql"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// SecretResolver resolves a named secret reference. A missing secret must be
// reported with ErrSecretNotFound so it is treated as a configuration error.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

type SecretResolverFunc func(ctx context.Context, ref string) (string, error)

func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// Tx is the transaction handle exposed to handlers. *sql.Tx, *sql.DB and
// bun.Tx all satisfy it.
type Tx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type HandlerInvocation struct {
	Target    string
	Params    map[string]any
	Provider  string
	Endpoint  string
	EventID   string
	EventType string
	Tx        Tx
}

type HandlerResult struct {
	Success bool
	Message string
	Data    map[string]any
}

// EventHandler runs business logic for a routed event inside the open
// processing transaction. Returning an error rolls the transaction back.
// Returning a result with Success=false commits the event as failed.
type EventHandler interface {
	Handle(ctx context.Context, inv HandlerInvocation) (HandlerResult, error)
}

type EventHandlerFunc func(ctx context.Context, inv HandlerInvocation) (HandlerResult, error)

func (f EventHandlerFunc) Handle(ctx context.Context, inv HandlerInvocation) (HandlerResult, error) {
	return f(ctx, inv)
}

type TxOptions struct {
	Isolation IsolationLevel
}

// IdempotencyStore is the exactly-once ledger keyed by (provider, event_id).
type IdempotencyStore interface {
	Check(ctx context.Context, provider, eventID string) (bool, error)
	RunInTx(ctx context.Context, opts TxOptions, fn func(ctx context.Context, tx EventTx) error) error
}

// EventTx is the write side of the ledger bound to one open transaction.
// Record returns ErrEventAlreadyRecorded when the key already exists.
type EventTx interface {
	Record(ctx context.Context, in RecordInput) (string, error)
	UpdateStatus(ctx context.Context, in StatusUpdate) error
	Tx() Tx
}

type EventRecordReader interface {
	GetEventRecord(ctx context.Context, provider, eventID string) (WebhookEventRecord, error)
	ListEventRecords(ctx context.Context, filter EventRecordFilter) (EventRecordPage, error)
}

type EventRecordPurger interface {
	PurgeEventRecords(ctx context.Context, before time.Time) (int, error)
}

// EventLedger is a store that also serves operational reads and retention.
type EventLedger interface {
	IdempotencyStore
	EventRecordReader
	EventRecordPurger
}

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}
