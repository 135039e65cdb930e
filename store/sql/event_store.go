package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-ingress/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// EventStore is the webhook_events ledger. The unique (provider, event_id)
// constraint is what makes concurrent deliveries of one event collapse to a
// single committed row.
type EventStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookEventRecord]
	now  func() time.Time
}

func NewEventStore(db *bun.DB) (*EventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookEventRecord](db, webhookEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook event repository wiring: %w", err)
		}
	}
	return &EventStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *EventStore) Check(ctx context.Context, provider, eventID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: event store is not configured")
	}
	return s.db.NewSelect().
		Model((*webhookEventRecord)(nil)).
		Where("?TableAlias.provider = ?", normalizeProvider(provider)).
		Where("?TableAlias.event_id = ?", strings.TrimSpace(eventID)).
		Exists(ctx)
}

func (s *EventStore) RunInTx(ctx context.Context, opts core.TxOptions, fn func(ctx context.Context, tx core.EventTx) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: event store is not configured")
	}
	if fn == nil {
		return nil
	}
	var txOptions *sql.TxOptions
	if opts.Isolation.Valid() {
		txOptions = &sql.TxOptions{Isolation: opts.Isolation.SQL()}
	}
	return s.db.RunInTx(ctx, txOptions, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &eventTx{tx: tx, now: s.now})
	})
}

func (s *EventStore) GetEventRecord(ctx context.Context, provider, eventID string) (core.WebhookEventRecord, error) {
	if s == nil || s.repo == nil {
		return core.WebhookEventRecord{}, fmt.Errorf("sqlstore: event store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("provider", "=", normalizeProvider(provider)),
		repository.SelectBy("event_id", "=", strings.TrimSpace(eventID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.WebhookEventRecord{}, err
	}
	if len(records) == 0 {
		return core.WebhookEventRecord{}, core.ErrRecordNotFound(provider, eventID)
	}
	return records[0].toDomain(), nil
}

func (s *EventStore) ListEventRecords(ctx context.Context, filter core.EventRecordFilter) (core.EventRecordPage, error) {
	if s == nil || s.repo == nil {
		return core.EventRecordPage{}, fmt.Errorf("sqlstore: event store is not configured")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	selectors := []repository.SelectCriteria{
		repository.OrderBy("processed_at DESC"),
		repository.OrderBy("id DESC"),
		repository.SelectPaginate(limit, offset),
	}
	if provider := normalizeProvider(filter.Provider); provider != "" {
		selectors = append(selectors, repository.SelectBy("provider", "=", provider))
	}
	if status := strings.TrimSpace(string(filter.Status)); status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", status))
	}
	if outcome := strings.TrimSpace(string(filter.Outcome)); outcome != "" {
		selectors = append(selectors, repository.SelectBy("outcome", "=", outcome))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.EventRecordPage{}, err
	}
	items := make([]core.WebhookEventRecord, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDomain())
	}
	return core.EventRecordPage{Items: items, Total: total}, nil
}

// PurgeEventRecords deletes finished rows older than before. Pending rows
// belong to open transactions and are left alone.
func (s *EventStore) PurgeEventRecords(ctx context.Context, before time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: event store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*webhookEventRecord)(nil)).
		Where("processed_at < ?", before.UTC()).
		Where("status <> ?", string(core.EventStatusPending)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

type eventTx struct {
	tx  bun.Tx
	now func() time.Time
}

// Record inserts the pending row. A conflicting key inserts nothing and is
// reported as core.ErrEventAlreadyRecorded, as is a serialization failure
// raised by a concurrent insert of the same key.
func (t *eventTx) Record(ctx context.Context, in core.RecordInput) (string, error) {
	provider := normalizeProvider(in.Provider)
	eventID := strings.TrimSpace(in.EventID)
	if provider == "" || eventID == "" {
		return "", fmt.Errorf("sqlstore: provider and event id are required")
	}
	status := in.Status
	if status == "" {
		status = core.EventStatusPending
	}
	now := t.now()
	record := &webhookEventRecord{
		ID:          uuid.NewString(),
		Provider:    provider,
		EventID:     eventID,
		EventType:   strings.TrimSpace(in.EventType),
		Status:      string(status),
		ProcessedAt: now,
		UpdatedAt:   now,
	}
	res, err := t.tx.NewInsert().
		Model(record).
		On("CONFLICT (provider, event_id) DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	if err != nil {
		if isRecordConflict(err) {
			return "", core.ErrEventAlreadyRecorded
		}
		return "", err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if affected == 0 {
		return "", core.ErrEventAlreadyRecorded
	}
	return record.ID, nil
}

func (t *eventTx) UpdateStatus(ctx context.Context, in core.StatusUpdate) error {
	if !in.Status.Valid() {
		return fmt.Errorf("sqlstore: invalid event status %q", in.Status)
	}
	res, err := t.tx.NewUpdate().
		Model((*webhookEventRecord)(nil)).
		Set("status = ?", string(in.Status)).
		Set("outcome = ?", string(in.Outcome)).
		Set("error = ?", in.Error).
		Set("updated_at = ?", t.now()).
		Where("provider = ?", normalizeProvider(in.Provider)).
		Where("event_id = ?", strings.TrimSpace(in.EventID)).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.ErrRecordNotFound(in.Provider, in.EventID)
	}
	return nil
}

func (t *eventTx) Tx() core.Tx {
	return t.tx
}
