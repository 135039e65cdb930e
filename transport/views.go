package transport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/goliatone/go-ingress/core"
)

type recordView struct {
	ID          string    `json:"id"`
	Provider    string    `json:"provider"`
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type,omitempty"`
	Status      string    `json:"status"`
	Outcome     string    `json:"outcome,omitempty"`
	Error       string    `json:"error,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newRecordView(record core.WebhookEventRecord) recordView {
	return recordView{
		ID:          record.ID,
		Provider:    record.Provider,
		EventID:     record.EventID,
		EventType:   record.EventType,
		Status:      string(record.Status),
		Outcome:     string(record.Outcome),
		Error:       record.Error,
		ProcessedAt: record.ProcessedAt,
		UpdatedAt:   record.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
