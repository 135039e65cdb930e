package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-ingress/core"
	"github.com/uptrace/bun"
)

type webhookEventRecord struct {
	bun.BaseModel `bun:"table:webhook_events,alias:we"`

	ID          string    `bun:"id,pk"`
	Provider    string    `bun:"provider,notnull"`
	EventID     string    `bun:"event_id,notnull"`
	EventType   string    `bun:"event_type,notnull"`
	Status      string    `bun:"status,notnull"`
	Outcome     string    `bun:"outcome,notnull"`
	Error       string    `bun:"error,notnull"`
	ProcessedAt time.Time `bun:"processed_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *webhookEventRecord) toDomain() core.WebhookEventRecord {
	if r == nil {
		return core.WebhookEventRecord{}
	}
	return core.WebhookEventRecord{
		ID:          r.ID,
		Provider:    r.Provider,
		EventID:     r.EventID,
		EventType:   r.EventType,
		Status:      core.EventStatus(r.Status),
		Outcome:     core.EventOutcome(r.Outcome),
		Error:       r.Error,
		ProcessedAt: r.ProcessedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
