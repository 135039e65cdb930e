package inbound

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-ingress/core"
)

const DefaultMaxBodyBytes int64 = 1 << 20

// Processor is satisfied by *webhooks.Processor.
type Processor interface {
	Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error)
}

// ReadRequest reads at most maxBody bytes of r.Body. A larger body is
// rejected with 413 before anything is verified.
func ReadRequest(r *http.Request, endpoint string, maxBody int64) (core.InboundRequest, error) {
	if r == nil {
		return core.InboundRequest{}, inboundBadInput("inbound: request is required", nil)
	}
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return core.InboundRequest{}, inboundBadInput("inbound: endpoint is required", nil)
	}

	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(io.LimitReader(r.Body, maxBody+1))
		if err != nil {
			return core.InboundRequest{}, inboundWrapError(
				err,
				"inbound: read request body",
				http.StatusBadRequest,
				core.ErrorPayloadInvalid,
				map[string]any{"endpoint": endpoint},
			)
		}
	}
	if int64(len(body)) > maxBody {
		return core.InboundRequest{}, inboundPayloadTooLarge(endpoint, maxBody)
	}

	return core.InboundRequest{
		Endpoint: endpoint,
		Headers:  FlattenHeaders(r.Header),
		Body:     body,
		Metadata: map[string]any{
			"remote_addr": r.RemoteAddr,
			"received_at": time.Now().UTC(),
		},
	}, nil
}

// FlattenHeaders keeps the first value of every header under its canonical
// name. Signature headers are single valued.
func FlattenHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for key, values := range header {
		if len(values) == 0 {
			continue
		}
		out[http.CanonicalHeaderKey(key)] = values[0]
	}
	return out
}
