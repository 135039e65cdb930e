// Package memory provides an in-process idempotency ledger. It honours the
// same transactional contract as the SQL store: a record becomes visible only
// when its transaction commits, and a concurrent Record for a key held by an
// open transaction blocks until that transaction finishes.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-ingress/core"
	"github.com/google/uuid"
)

type Store struct {
	mu       sync.Mutex
	records  map[string]core.WebhookEventRecord
	inflight map[string]chan struct{}
	now      func() time.Time
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func NewStore(opts ...Option) *Store {
	store := &Store{
		records:  map[string]core.WebhookEventRecord{},
		inflight: map[string]chan struct{}{},
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

func (s *Store) Check(_ context.Context, provider, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[recordKey(provider, eventID)]
	return ok, nil
}

func (s *Store) RunInTx(ctx context.Context, _ core.TxOptions, fn func(ctx context.Context, tx core.EventTx) error) (err error) {
	if fn == nil {
		return nil
	}
	tx := &eventTx{store: s, pending: map[string]core.WebhookEventRecord{}}
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
		if err != nil {
			tx.rollback()
			return
		}
		tx.commit()
	}()
	return fn(ctx, tx)
}

func (s *Store) GetEventRecord(_ context.Context, provider, eventID string) (core.WebhookEventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[recordKey(provider, eventID)]
	if !ok {
		return core.WebhookEventRecord{}, core.ErrRecordNotFound(provider, eventID)
	}
	return record, nil
}

func (s *Store) ListEventRecords(_ context.Context, filter core.EventRecordFilter) (core.EventRecordPage, error) {
	s.mu.Lock()
	items := make([]core.WebhookEventRecord, 0, len(s.records))
	for _, record := range s.records {
		if filter.Provider != "" && record.Provider != normalize(filter.Provider) {
			continue
		}
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		if filter.Outcome != "" && record.Outcome != filter.Outcome {
			continue
		}
		items = append(items, record)
	}
	s.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].ProcessedAt.Equal(items[j].ProcessedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].ProcessedAt.After(items[j].ProcessedAt)
	})
	page := core.EventRecordPage{Total: len(items)}
	if filter.Offset > 0 {
		if filter.Offset >= len(items) {
			return page, nil
		}
		items = items[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(items) {
		items = items[:filter.Limit]
	}
	page.Items = items
	return page, nil
}

func (s *Store) PurgeEventRecords(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for key, record := range s.records {
		if record.Status == core.EventStatusPending {
			continue
		}
		if record.ProcessedAt.Before(before) {
			delete(s.records, key)
			purged++
		}
	}
	return purged, nil
}

type eventTx struct {
	store   *Store
	pending map[string]core.WebhookEventRecord
	claimed []string
}

// Record claims the key for this transaction. If another open transaction
// holds it, Record waits for that transaction to finish.
func (tx *eventTx) Record(ctx context.Context, in core.RecordInput) (string, error) {
	key := recordKey(in.Provider, in.EventID)
	if _, ok := tx.pending[key]; ok {
		return "", core.ErrEventAlreadyRecorded
	}
	s := tx.store
	for {
		s.mu.Lock()
		if _, ok := s.records[key]; ok {
			s.mu.Unlock()
			return "", core.ErrEventAlreadyRecorded
		}
		wait, busy := s.inflight[key]
		if !busy {
			s.inflight[key] = make(chan struct{})
			s.mu.Unlock()
			break
		}
		s.mu.Unlock()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-wait:
		}
	}

	status := in.Status
	if status == "" {
		status = core.EventStatusPending
	}
	now := s.now()
	record := core.WebhookEventRecord{
		ID:          uuid.NewString(),
		Provider:    normalize(in.Provider),
		EventID:     strings.TrimSpace(in.EventID),
		EventType:   strings.TrimSpace(in.EventType),
		Status:      status,
		ProcessedAt: now,
		UpdatedAt:   now,
	}
	tx.pending[key] = record
	tx.claimed = append(tx.claimed, key)
	return record.ID, nil
}

func (tx *eventTx) UpdateStatus(_ context.Context, in core.StatusUpdate) error {
	key := recordKey(in.Provider, in.EventID)
	record, ok := tx.pending[key]
	if !ok {
		return core.ErrRecordNotFound(in.Provider, in.EventID)
	}
	record.Status = in.Status
	record.Outcome = in.Outcome
	record.Error = in.Error
	record.UpdatedAt = tx.store.now()
	tx.pending[key] = record
	return nil
}

// Tx is nil: handlers running against the memory ledger get no SQL handle.
func (tx *eventTx) Tx() core.Tx {
	return nil
}

func (tx *eventTx) commit() {
	s := tx.store
	s.mu.Lock()
	for key, record := range tx.pending {
		s.records[key] = record
	}
	tx.release()
	s.mu.Unlock()
}

func (tx *eventTx) rollback() {
	s := tx.store
	s.mu.Lock()
	tx.release()
	s.mu.Unlock()
}

// release must be called with the store mutex held.
func (tx *eventTx) release() {
	for _, key := range tx.claimed {
		if wait, ok := tx.store.inflight[key]; ok {
			close(wait)
			delete(tx.store.inflight, key)
		}
	}
	tx.claimed = nil
	tx.pending = map[string]core.WebhookEventRecord{}
}

func recordKey(provider, eventID string) string {
	return normalize(provider) + "\x00" + strings.TrimSpace(eventID)
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

var _ core.EventLedger = (*Store)(nil)
