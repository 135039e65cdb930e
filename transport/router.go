// Package transport exposes the webhook processor over HTTP with chi.
package transport

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-ingress/command"
	"github.com/goliatone/go-ingress/core"
	"github.com/goliatone/go-ingress/inbound"
	"github.com/goliatone/go-ingress/query"
	glog "github.com/goliatone/go-logger/glog"
)

type Handler struct {
	process  *command.ProcessWebhookCommand
	getQuery *query.GetEventRecordQuery
	list     *query.ListEventRecordsQuery
	logger   core.Logger
	maxBody  int64
}

type Option func(*Handler)

func WithLogger(logger core.Logger) Option {
	return func(h *Handler) {
		h.logger = glog.Ensure(logger)
	}
}

func WithMaxBodyBytes(limit int64) Option {
	return func(h *Handler) {
		if limit > 0 {
			h.maxBody = limit
		}
	}
}

// WithRecordReader mounts the read-only /events routes.
func WithRecordReader(reader core.EventRecordReader) Option {
	return func(h *Handler) {
		if reader == nil {
			return
		}
		h.getQuery = query.NewGetEventRecordQuery(reader)
		h.list = query.NewListEventRecordsQuery(reader)
	}
}

// NewRouter builds the HTTP surface:
//
//	POST /webhooks/{endpoint}
//	GET  /events
//	GET  /events/{provider}/{event_id}
//	GET  /healthz
func NewRouter(processor inbound.Processor, opts ...Option) chi.Router {
	h := &Handler{
		process: command.NewProcessWebhookCommand(processor),
		logger:  glog.Nop(),
		maxBody: inbound.DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Post("/webhooks/{endpoint}", h.handleWebhook)
	if h.list != nil {
		r.Get("/events", h.handleListEvents)
		r.Get("/events/{provider}/{event_id}", h.handleGetEvent)
	}
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())
	req, err := inbound.ReadRequest(r, chi.URLParam(r, "endpoint"), h.maxBody)
	if err != nil {
		inbound.WriteError(w, err, requestID)
		return
	}
	req.Metadata["request_id"] = requestID

	collector := gocmd.NewResult[core.InboundResult]()
	ctx := gocmd.ContextWithResult(r.Context(), collector)
	err = h.process.Execute(ctx, command.ProcessWebhookMessage{Request: req})
	result, _ := collector.Load()
	inbound.WriteResult(w, result, err, requestID)
}

func (h *Handler) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	record, err := h.getQuery.Query(r.Context(), query.GetEventRecordMessage{
		Provider: chi.URLParam(r, "provider"),
		EventID:  chi.URLParam(r, "event_id"),
	})
	if err != nil {
		inbound.WriteError(w, err, middleware.GetReqID(r.Context()))
		return
	}
	writeJSON(w, http.StatusOK, newRecordView(record))
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	filter := core.EventRecordFilter{
		Provider: strings.TrimSpace(values.Get("provider")),
		Status:   core.EventStatus(strings.TrimSpace(values.Get("status"))),
		Outcome:  core.EventOutcome(strings.TrimSpace(values.Get("outcome"))),
		Limit:    atoiDefault(values.Get("limit"), 50),
		Offset:   atoiDefault(values.Get("offset"), 0),
	}
	page, err := h.list.Query(r.Context(), query.ListEventRecordsMessage{Filter: filter})
	if err != nil {
		inbound.WriteError(w, err, middleware.GetReqID(r.Context()))
		return
	}
	items := make([]recordView, 0, len(page.Items))
	for _, record := range page.Items {
		items = append(items, newRecordView(record))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": page.Total})
}

// loggingMiddleware logs request lines without payloads.
func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

func atoiDefault(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return value
}
