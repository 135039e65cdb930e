package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-ingress/core"
	"github.com/nats-io/nats.go"
)

// RoutedEvent is the JSON body published for a routed event.
type RoutedEvent struct {
	Provider  string         `json:"provider"`
	Endpoint  string         `json:"endpoint,omitempty"`
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	Params    map[string]any `json:"params"`
}

// NATSHandler publishes routed events. Targets look like "nats:<subject>".
// The publish is flushed before returning so a broken connection rolls the
// ledger transaction back. Messages carry Nats-Msg-Id = provider:event_id
// for JetStream de-duplication.
type NATSHandler struct {
	conn          *nats.Conn
	subjectPrefix string
	flushTimeout  time.Duration
}

type NATSOption func(*NATSHandler)

func WithSubjectPrefix(prefix string) NATSOption {
	return func(h *NATSHandler) {
		h.subjectPrefix = strings.Trim(strings.TrimSpace(prefix), ".")
	}
}

// WithFlushTimeout bounds the flush when the context carries no deadline.
func WithFlushTimeout(timeout time.Duration) NATSOption {
	return func(h *NATSHandler) {
		if timeout > 0 {
			h.flushTimeout = timeout
		}
	}
}

func NewNATSHandler(conn *nats.Conn, opts ...NATSOption) (*NATSHandler, error) {
	if conn == nil {
		return nil, fmt.Errorf("handlers: nats connection is required")
	}
	h := &NATSHandler{conn: conn, flushTimeout: 5 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// ConnectNATS dials url with reconnects enabled.
func ConnectNATS(url string, opts ...nats.Option) (*nats.Conn, error) {
	defaults := []nats.Option{
		nats.Name("go-ingress"),
		nats.MaxReconnects(-1),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return nc, nil
}

func (h *NATSHandler) Subject(target string) string {
	_, subject := SplitTarget(target)
	if h.subjectPrefix != "" {
		return h.subjectPrefix + "." + subject
	}
	return subject
}

func (h *NATSHandler) Handle(ctx context.Context, inv core.HandlerInvocation) (core.HandlerResult, error) {
	subject := h.Subject(inv.Target)
	if subject == "" || strings.HasSuffix(subject, ".") {
		return core.HandlerResult{}, core.ErrConfigInvalid(fmt.Sprintf("nats target %q has no subject", inv.Target))
	}
	data, err := json.Marshal(RoutedEvent{
		Provider:  inv.Provider,
		Endpoint:  inv.Endpoint,
		EventID:   inv.EventID,
		EventType: inv.EventType,
		Params:    inv.Params,
	})
	if err != nil {
		return core.HandlerResult{}, fmt.Errorf("handlers: encode routed event: %w", err)
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, inv.Provider+":"+inv.EventID)
	if err := h.conn.PublishMsg(msg); err != nil {
		return core.HandlerResult{}, fmt.Errorf("handlers: publish %s: %w", subject, err)
	}
	if err := h.flush(ctx); err != nil {
		return core.HandlerResult{}, fmt.Errorf("handlers: flush %s: %w", subject, err)
	}
	return core.HandlerResult{Success: true, Data: map[string]any{"subject": subject}}, nil
}

func (h *NATSHandler) flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); ok {
		return h.conn.FlushWithContext(ctx)
	}
	return h.conn.FlushTimeout(h.flushTimeout)
}

var _ core.EventHandler = (*NATSHandler)(nil)
