package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-ingress/core"
)

var (
	_ gocmd.Querier[GetEventRecordMessage, core.WebhookEventRecord] = (*GetEventRecordQuery)(nil)
	_ gocmd.Querier[ListEventRecordsMessage, core.EventRecordPage]  = (*ListEventRecordsQuery)(nil)
)
