package command

import (
	"context"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-ingress/core"
)

type WebhookProcessor interface {
	Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error)
}

type ProcessWebhookCommand struct {
	processor WebhookProcessor
}

func NewProcessWebhookCommand(processor WebhookProcessor) *ProcessWebhookCommand {
	return &ProcessWebhookCommand{processor: processor}
}

// Execute stores the delivery result even when processing fails, so callers
// can read the status code and state next to the error.
func (c *ProcessWebhookCommand) Execute(ctx context.Context, msg ProcessWebhookMessage) error {
	if c == nil || c.processor == nil {
		return missingDependency(TypeProcessWebhook, "webhook processor")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.processor.Process(ctx, msg.Request)
	storeResult(ctx, out)
	return err
}

type PurgeEventRecordsCommand struct {
	purger core.EventRecordPurger
	now    func() time.Time
}

func NewPurgeEventRecordsCommand(purger core.EventRecordPurger) *PurgeEventRecordsCommand {
	return &PurgeEventRecordsCommand{
		purger: purger,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (c *PurgeEventRecordsCommand) Execute(ctx context.Context, msg PurgeEventRecordsMessage) error {
	if c == nil || c.purger == nil {
		return missingDependency(TypePurgeEventRecords, "event record purger")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if c.now != nil {
		now = c.now()
	}
	before := msg.Cutoff(now)
	deleted, err := c.purger.PurgeEventRecords(ctx, before)
	if err != nil {
		return core.ErrStorageFailed("purge", err)
	}
	storeResult(ctx, PurgeResult{Before: before, Deleted: deleted})
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
