package sqlstore

import "github.com/goliatone/go-ingress/core"

var (
	_ core.IdempotencyStore  = (*EventStore)(nil)
	_ core.EventRecordReader = (*EventStore)(nil)
	_ core.EventRecordPurger = (*EventStore)(nil)
	_ core.EventTx           = (*eventTx)(nil)

	_ core.IdempotencyStore  = (*CachedEventStore)(nil)
	_ core.EventRecordReader = (*CachedEventStore)(nil)
	_ core.EventRecordPurger = (*CachedEventStore)(nil)
)
