package command

import (
	"strings"
	"time"

	"github.com/goliatone/go-ingress/core"
)

const (
	TypeProcessWebhook    = "ingress.command.webhook.process"
	TypePurgeEventRecords = "ingress.command.event_records.purge"

	defaultPurgeRetention = 30 * 24 * time.Hour
	minimumPurgeRetention = time.Hour
)

type ProcessWebhookMessage struct {
	Request core.InboundRequest
}

func (ProcessWebhookMessage) Type() string { return TypeProcessWebhook }

func (m ProcessWebhookMessage) Validate() error {
	if strings.TrimSpace(m.Request.Endpoint) == "" {
		return invalidMessage(TypeProcessWebhook, "endpoint", "endpoint is required")
	}
	return nil
}

// PurgeEventRecordsMessage removes finished records processed before Before.
// When Before is zero it is derived from OlderThan, which defaults to 30 days.
type PurgeEventRecordsMessage struct {
	Before    time.Time
	OlderThan time.Duration
}

func (PurgeEventRecordsMessage) Type() string { return TypePurgeEventRecords }

func (m PurgeEventRecordsMessage) Validate() error {
	if m.Before.IsZero() && m.OlderThan != 0 && m.OlderThan < minimumPurgeRetention {
		return invalidMessage(TypePurgeEventRecords, "older_than", "retention must be at least one hour")
	}
	return nil
}

// Cutoff resolves the purge boundary relative to now.
func (m PurgeEventRecordsMessage) Cutoff(now time.Time) time.Time {
	if !m.Before.IsZero() {
		return m.Before.UTC()
	}
	olderThan := m.OlderThan
	if olderThan <= 0 {
		olderThan = defaultPurgeRetention
	}
	return now.UTC().Add(-olderThan)
}

type PurgeResult struct {
	Before  time.Time
	Deleted int
}
