package inbound

import (
	"encoding/json"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ingress/core"
)

// Response is the body written for accepted deliveries.
type Response struct {
	Accepted bool           `json:"accepted"`
	State    string         `json:"state"`
	RecordID string         `json:"record_id,omitempty"`
	Deduped  bool           `json:"deduped,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func NewResponse(result core.InboundResult) Response {
	deduped, _ := result.Metadata["deduped"].(bool)
	metadata := map[string]any{}
	for _, key := range []string{"provider", "event_id", "event_type", "outcome"} {
		if value, ok := result.Metadata[key]; ok {
			metadata[key] = value
		}
	}
	return Response{
		Accepted: result.Accepted,
		State:    string(result.State),
		RecordID: result.RecordID,
		Deduped:  deduped,
		Metadata: metadata,
	}
}

// WriteResult writes the delivery outcome. When err is set the go-errors
// envelope is written with the mapped status code instead.
func WriteResult(w http.ResponseWriter, result core.InboundResult, err error, requestID string) {
	if err != nil {
		WriteError(w, err, requestID)
		return
	}
	status := result.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, NewResponse(result))
}

// WriteError writes {"error": {...}} using the go-errors response shape.
// Source errors, locations and stack traces stay out of the response.
func WriteError(w http.ResponseWriter, err error, requestID string) {
	mapped := core.MapError(err)
	if mapped == nil {
		mapped = core.MapError(goerrors.New("unknown error", goerrors.CategoryInternal))
	}
	envelope := mapped.Clone()
	envelope.Source = nil
	envelope.Location = nil
	if requestID != "" {
		envelope = envelope.WithRequestID(requestID)
	}
	if envelope.Code >= http.StatusInternalServerError {
		envelope.Metadata = nil
	}
	writeJSON(w, envelope.Code, envelope.ToErrorResponse(false, nil))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
