package query

import (
	"context"

	"github.com/goliatone/go-ingress/core"
)

type GetEventRecordQuery struct {
	reader core.EventRecordReader
}

func NewGetEventRecordQuery(reader core.EventRecordReader) *GetEventRecordQuery {
	return &GetEventRecordQuery{reader: reader}
}

func (q *GetEventRecordQuery) Query(ctx context.Context, msg GetEventRecordMessage) (core.WebhookEventRecord, error) {
	if q == nil || q.reader == nil {
		return core.WebhookEventRecord{}, readerNotConfigured(TypeGetEventRecord)
	}
	if err := msg.Validate(); err != nil {
		return core.WebhookEventRecord{}, err
	}
	return q.reader.GetEventRecord(ctx, msg.Provider, msg.EventID)
}

type ListEventRecordsQuery struct {
	reader core.EventRecordReader
}

func NewListEventRecordsQuery(reader core.EventRecordReader) *ListEventRecordsQuery {
	return &ListEventRecordsQuery{reader: reader}
}

func (q *ListEventRecordsQuery) Query(ctx context.Context, msg ListEventRecordsMessage) (core.EventRecordPage, error) {
	if q == nil || q.reader == nil {
		return core.EventRecordPage{}, readerNotConfigured(TypeListEventRecords)
	}
	if err := msg.Validate(); err != nil {
		return core.EventRecordPage{}, err
	}
	return q.reader.ListEventRecords(ctx, msg.Filter)
}
