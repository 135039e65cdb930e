package core

import (
	"database/sql"
	"strings"
	"time"
)

type EventStatus string

const (
	EventStatusPending EventStatus = "pending"
	EventStatusSuccess EventStatus = "success"
	EventStatusFailed  EventStatus = "failed"
)

func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusPending, EventStatusSuccess, EventStatusFailed:
		return true
	default:
		return false
	}
}

// EventOutcome tells apart the ways a record reached its terminal status.
// Skips are stored with EventStatusSuccess.
type EventOutcome string

const (
	EventOutcomeNone             EventOutcome = ""
	EventOutcomeHandled          EventOutcome = "handled"
	EventOutcomeSkippedNoRoute   EventOutcome = "skipped_no_route"
	EventOutcomeSkippedCondition EventOutcome = "skipped_condition"
	EventOutcomeRejected         EventOutcome = "rejected"
)

func (o EventOutcome) Skipped() bool {
	return o == EventOutcomeSkippedNoRoute || o == EventOutcomeSkippedCondition
}

// Status maps a routing outcome onto the persisted ledger status.
func (o EventOutcome) Status() EventStatus {
	if o == EventOutcomeRejected {
		return EventStatusFailed
	}
	return EventStatusSuccess
}

type DeliveryState string

const (
	DeliveryStateReceived   DeliveryState = "received"
	DeliveryStateVerified   DeliveryState = "verified"
	DeliveryStateDuplicate  DeliveryState = "duplicate"
	DeliveryStateProcessing DeliveryState = "processing"
	DeliveryStateSucceeded  DeliveryState = "succeeded"
	DeliveryStateFailed     DeliveryState = "failed"
	DeliveryStateSkipped    DeliveryState = "skipped"
)

func (s DeliveryState) Terminal() bool {
	switch s {
	case DeliveryStateDuplicate, DeliveryStateSucceeded, DeliveryStateFailed, DeliveryStateSkipped:
		return true
	default:
		return false
	}
}

type IsolationLevel string

const (
	IsolationReadCommitted  IsolationLevel = "read_committed"
	IsolationRepeatableRead IsolationLevel = "repeatable_read"
	IsolationSerializable   IsolationLevel = "serializable"
)

func (l IsolationLevel) Valid() bool {
	switch l {
	case "", IsolationReadCommitted, IsolationRepeatableRead, IsolationSerializable:
		return true
	default:
		return false
	}
}

// SQL returns the database/sql level, read committed when unset.
func (l IsolationLevel) SQL() sql.IsolationLevel {
	switch IsolationLevel(strings.ToLower(strings.TrimSpace(string(l)))) {
	case IsolationRepeatableRead:
		return sql.LevelRepeatableRead
	case IsolationSerializable:
		return sql.LevelSerializable
	default:
		return sql.LevelReadCommitted
	}
}

type WebhookEventRecord struct {
	ID          string
	Provider    string
	EventID     string
	EventType   string
	Status      EventStatus
	Outcome     EventOutcome
	Error       string
	ProcessedAt time.Time
	UpdatedAt   time.Time
}

type RecordInput struct {
	Provider  string
	EventID   string
	EventType string
	Status    EventStatus
}

type StatusUpdate struct {
	Provider string
	EventID  string
	Status   EventStatus
	Outcome  EventOutcome
	Error    string
}

type EventRecordFilter struct {
	Provider string
	Status   EventStatus
	Outcome  EventOutcome
	Limit    int
	Offset   int
}

type EventRecordPage struct {
	Items []WebhookEventRecord
	Total int
}

// VerifiedRequest carries the material a verifier needs. It is never
// persisted.
type VerifiedRequest struct {
	Body      []byte
	Signature string
	Timestamp string
}

type InboundRequest struct {
	Endpoint string
	Headers  map[string]string
	Body     []byte
	Metadata map[string]any
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	State      DeliveryState
	RecordID   string
	Metadata   map[string]any
}
