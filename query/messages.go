package query

import (
	"strings"

	"github.com/goliatone/go-ingress/core"
)

const (
	TypeGetEventRecord   = "ingress.query.event_record.get"
	TypeListEventRecords = "ingress.query.event_records.list"

	maxListLimit = 500
)

type GetEventRecordMessage struct {
	Provider string
	EventID  string
}

func (GetEventRecordMessage) Type() string { return TypeGetEventRecord }

func (m GetEventRecordMessage) Validate() error {
	if strings.TrimSpace(m.Provider) == "" {
		return invalidFilter(TypeGetEventRecord, "provider", "provider is required")
	}
	if strings.TrimSpace(m.EventID) == "" {
		return invalidFilter(TypeGetEventRecord, "event_id", "event id is required")
	}
	return nil
}

type ListEventRecordsMessage struct {
	Filter core.EventRecordFilter
}

func (ListEventRecordsMessage) Type() string { return TypeListEventRecords }

func (m ListEventRecordsMessage) Validate() error {
	if m.Filter.Limit < 0 || m.Filter.Limit > maxListLimit {
		return invalidFilter(TypeListEventRecords, "limit", "limit must be between 0 and 500")
	}
	if m.Filter.Offset < 0 {
		return invalidFilter(TypeListEventRecords, "offset", "offset must be >= 0")
	}
	if m.Filter.Status != "" && !m.Filter.Status.Valid() {
		return invalidFilter(TypeListEventRecords, "status", "status must be pending, success or failed")
	}
	return nil
}
