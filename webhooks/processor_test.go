package webhooks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-ingress/core"
	"github.com/goliatone/go-ingress/routing"
	"github.com/goliatone/go-ingress/store/memory"
)

type countingStore struct {
	*memory.Store
	checks int
	txs    int
}

func (s *countingStore) Check(ctx context.Context, provider, eventID string) (bool, error) {
	s.checks++
	return s.Store.Check(ctx, provider, eventID)
}

func (s *countingStore) RunInTx(ctx context.Context, opts core.TxOptions, fn func(ctx context.Context, tx core.EventTx) error) error {
	s.txs++
	return s.Store.RunInTx(ctx, opts, fn)
}

type stubHandler struct {
	calls  []core.HandlerInvocation
	result core.HandlerResult
	err    error
}

func (h *stubHandler) Handle(_ context.Context, inv core.HandlerInvocation) (core.HandlerResult, error) {
	h.calls = append(h.calls, inv)
	if h.err != nil {
		return core.HandlerResult{}, h.err
	}
	return h.result, nil
}

var processorNow = time.Unix(1_700_000_000, 0).UTC()

func testConfig() core.Config {
	cfg := core.DefaultConfig()
	cfg.Endpoints["github"] = core.WebhookConfig{
		Provider:  "github",
		SecretRef: "github_secret",
		Routes: map[string]core.EventRoute{
			"push": {
				Target:    "sql:handle_push",
				Condition: "ref == 'refs/heads/main'",
				Mapping:   map[string]string{"ref": "ref", "repo": "repository.name"},
			},
		},
	}
	cfg.Endpoints["stripe"] = core.WebhookConfig{
		Provider:  "stripe",
		SecretRef: "stripe_secret",
		Routes: map[string]core.EventRoute{
			"charge.succeeded": {Target: "job:charges"},
		},
	}
	return cfg
}

func newTestProcessor(t *testing.T, cfg core.Config, handler core.EventHandler, opts ...ProcessorOption) (*Processor, *countingStore) {
	t.Helper()
	store := &countingStore{Store: memory.NewStore()}
	secrets := core.SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		switch ref {
		case "github_secret":
			return "gh-secret", nil
		case "stripe_secret":
			return "whsec_test", nil
		default:
			return "", core.ErrSecretNotFound(ref)
		}
	})
	registry := NewProviderRegistry(WithRegistryClock(func() time.Time { return processorNow }))
	return NewProcessor(cfg, registry, secrets, store, routing.NewRouter(handler), opts...), store
}

func githubRequest(deliveryID, body string) core.InboundRequest {
	return core.InboundRequest{
		Endpoint: "github",
		Body:     []byte(body),
		Headers: map[string]string{
			"X-Hub-Signature-256": "sha256=" + signHex("gh-secret", []byte(body)),
			"X-GitHub-Delivery":   deliveryID,
			"X-GitHub-Event":      "push",
		},
	}
}

const pushBody = `{"ref":"refs/heads/main","repository":{"name":"ingress"}}`

func TestProcessor_HandlesThenDedupes(t *testing.T) {
	ctx := context.Background()
	handler := &stubHandler{result: core.HandlerResult{Success: true}}
	metrics := core.NewMemoryMetricsRecorder()
	processor, store := newTestProcessor(t, testConfig(), handler, WithProcessorMetrics(metrics))

	first, err := processor.Process(ctx, githubRequest("delivery-1", pushBody))
	if err != nil {
		t.Fatalf("process first delivery: %v", err)
	}
	if !first.Accepted || first.StatusCode != http.StatusOK || first.State != core.DeliveryStateSucceeded {
		t.Fatalf("unexpected first result %#v", first)
	}
	if first.RecordID == "" {
		t.Fatalf("expected ledger record id")
	}
	if len(handler.calls) != 1 {
		t.Fatalf("expected one handler call, got %d", len(handler.calls))
	}
	call := handler.calls[0]
	if call.Params["ref"] != "refs/heads/main" || call.Params["repo"] != "ingress" {
		t.Fatalf("unexpected mapped params %#v", call.Params)
	}
	if call.EventID != "delivery-1" || call.Endpoint != "github" {
		t.Fatalf("unexpected invocation identity %#v", call)
	}

	record, err := store.GetEventRecord(ctx, "github", "delivery-1")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if record.Status != core.EventStatusSuccess || record.Outcome != core.EventOutcomeHandled || record.EventType != "push" {
		t.Fatalf("unexpected ledger record %#v", record)
	}

	second, err := processor.Process(ctx, githubRequest("delivery-1", pushBody))
	if err != nil {
		t.Fatalf("process duplicate: %v", err)
	}
	if second.State != core.DeliveryStateDuplicate || second.Metadata["deduped"] != true || second.StatusCode != http.StatusOK {
		t.Fatalf("expected deduped duplicate, got %#v", second)
	}
	if len(handler.calls) != 1 {
		t.Fatalf("expected duplicate not to reach the handler")
	}

	if got := metrics.Counter(core.MetricDeliveryTotal, map[string]string{"provider": "github", "state": "succeeded"}); got != 1 {
		t.Fatalf("expected one succeeded delivery metric, got %d", got)
	}
	if got := metrics.Counter(core.MetricDeliveryTotal, map[string]string{"provider": "github", "state": "duplicate"}); got != 1 {
		t.Fatalf("expected one duplicate delivery metric, got %d", got)
	}
}

func TestProcessor_HandlerErrorRollsBackAndRetrySucceeds(t *testing.T) {
	ctx := context.Background()
	handler := &stubHandler{err: errors.New("deadlock detected")}
	processor, store := newTestProcessor(t, testConfig(), handler)

	result, err := processor.Process(ctx, githubRequest("delivery-2", pushBody))
	if !core.HasTextCode(err, core.ErrorHandlerFailed) {
		t.Fatalf("expected handler failure, got %v", err)
	}
	if result.Accepted || result.StatusCode != http.StatusInternalServerError || result.State != core.DeliveryStateFailed {
		t.Fatalf("unexpected failure result %#v", result)
	}
	if seen, _ := store.Check(ctx, "github", "delivery-2"); seen {
		t.Fatalf("expected rolled back delivery to leave no ledger record")
	}

	handler.err = nil
	handler.result = core.HandlerResult{Success: true}
	retry, err := processor.Process(ctx, githubRequest("delivery-2", pushBody))
	if err != nil {
		t.Fatalf("process retry: %v", err)
	}
	if retry.State != core.DeliveryStateSucceeded {
		t.Fatalf("expected retry to be processed fresh, got %#v", retry)
	}
	if len(handler.calls) != 2 {
		t.Fatalf("expected handler to run for the retry, got %d calls", len(handler.calls))
	}
}

func TestProcessor_HandlerRejectionCommitsFailed(t *testing.T) {
	ctx := context.Background()
	handler := &stubHandler{result: core.HandlerResult{Success: false, Message: "branch locked"}}
	processor, store := newTestProcessor(t, testConfig(), handler)

	result, err := processor.Process(ctx, githubRequest("delivery-3", pushBody))
	if !core.HasTextCode(err, core.ErrorHandlerRejected) {
		t.Fatalf("expected handler rejected, got %v", err)
	}
	if result.StatusCode != http.StatusUnprocessableEntity || result.State != core.DeliveryStateFailed {
		t.Fatalf("unexpected rejection result %#v", result)
	}

	record, err := store.GetEventRecord(ctx, "github", "delivery-3")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if record.Status != core.EventStatusFailed || record.Outcome != core.EventOutcomeRejected || record.Error != "branch locked" {
		t.Fatalf("unexpected rejected record %#v", record)
	}

	again, err := processor.Process(ctx, githubRequest("delivery-3", pushBody))
	if err != nil || again.State != core.DeliveryStateDuplicate {
		t.Fatalf("expected committed rejection to dedupe, got %#v err=%v", again, err)
	}
}

func TestProcessor_SkipsAreRecorded(t *testing.T) {
	ctx := context.Background()
	handler := &stubHandler{result: core.HandlerResult{Success: true}}
	processor, store := newTestProcessor(t, testConfig(), handler)

	branch := `{"ref":"refs/heads/feature","repository":{"name":"ingress"}}`
	result, err := processor.Process(ctx, githubRequest("delivery-4", branch))
	if err != nil {
		t.Fatalf("process condition skip: %v", err)
	}
	if result.State != core.DeliveryStateSkipped || result.StatusCode != http.StatusOK {
		t.Fatalf("expected skipped result, got %#v", result)
	}
	record, _ := store.GetEventRecord(ctx, "github", "delivery-4")
	if record.Status != core.EventStatusSuccess || record.Outcome != core.EventOutcomeSkippedCondition {
		t.Fatalf("unexpected condition skip record %#v", record)
	}

	req := githubRequest("delivery-5", pushBody)
	req.Headers["X-GitHub-Event"] = "issues"
	result, err = processor.Process(ctx, req)
	if err != nil || result.State != core.DeliveryStateSkipped {
		t.Fatalf("expected no route skip, got %#v err=%v", result, err)
	}
	record, _ = store.GetEventRecord(ctx, "github", "delivery-5")
	if record.Outcome != core.EventOutcomeSkippedNoRoute {
		t.Fatalf("expected skipped_no_route outcome, got %#v", record)
	}
	if len(handler.calls) != 0 {
		t.Fatalf("expected skips not to reach the handler")
	}
}

func TestProcessor_RejectsBeforeStorage(t *testing.T) {
	ctx := context.Background()
	handler := &stubHandler{result: core.HandlerResult{Success: true}}
	processor, store := newTestProcessor(t, testConfig(), handler)

	missing := githubRequest("delivery-6", pushBody)
	delete(missing.Headers, "X-Hub-Signature-256")

	forged := githubRequest("delivery-7", pushBody)
	forged.Headers["X-Hub-Signature-256"] = "sha256=" + signHex("wrong", []byte(pushBody))

	malformed := githubRequest("delivery-8", pushBody)
	malformed.Headers["X-Hub-Signature-256"] = signHex("gh-secret", []byte(pushBody))

	notJSON := githubRequest("delivery-9", `{"ref":`)

	noID := githubRequest("", pushBody)

	cases := []struct {
		name     string
		req      core.InboundRequest
		textCode string
		status   int
	}{
		{"missing signature", missing, core.ErrorSignatureMissing, http.StatusUnauthorized},
		{"forged signature", forged, core.ErrorSignatureMismatch, http.StatusUnauthorized},
		{"malformed signature", malformed, core.ErrorSignatureInvalidFormat, http.StatusUnauthorized},
		{"invalid json", notJSON, core.ErrorPayloadInvalid, http.StatusBadRequest},
		{"missing event id", noID, core.ErrorEventIDMissing, http.StatusBadRequest},
		{"unknown endpoint", core.InboundRequest{Endpoint: "bitbucket", Body: []byte(`{}`)}, core.ErrorEndpointNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		result, err := processor.Process(ctx, tc.req)
		if !core.HasTextCode(err, tc.textCode) {
			t.Fatalf("%s: expected %s, got %v", tc.name, tc.textCode, err)
		}
		if result.Accepted || result.StatusCode != tc.status {
			t.Fatalf("%s: unexpected result %#v", tc.name, result)
		}
		if result.Metadata["text_code"] != tc.textCode {
			t.Fatalf("%s: expected text_code metadata, got %#v", tc.name, result.Metadata)
		}
	}
	if store.checks != 0 || store.txs != 0 {
		t.Fatalf("expected no storage access, got %d checks and %d transactions", store.checks, store.txs)
	}
	if len(handler.calls) != 0 {
		t.Fatalf("expected rejected deliveries not to reach the handler")
	}
}

func TestProcessor_TimestampTolerance(t *testing.T) {
	ctx := context.Background()
	handler := &stubHandler{result: core.HandlerResult{Success: true}}
	cfg := testConfig()
	endpoint := cfg.Endpoints["stripe"]
	endpoint.Tolerance = 60 * time.Second
	cfg.Endpoints["stripe"] = endpoint
	processor, store := newTestProcessor(t, cfg, handler)

	stripeRequest := func(eventID string, signedAt int64) core.InboundRequest {
		body := fmt.Sprintf(`{"id":%q,"type":"charge.succeeded"}`, eventID)
		return core.InboundRequest{
			Endpoint: "stripe",
			Body:     []byte(body),
			Headers:  map[string]string{"Stripe-Signature": stripeHeader("whsec_test", signedAt, []byte(body))},
		}
	}

	result, err := processor.Process(ctx, stripeRequest("evt_edge", processorNow.Unix()-60))
	if err != nil || result.State != core.DeliveryStateSucceeded {
		t.Fatalf("expected boundary timestamp to be accepted, got %#v err=%v", result, err)
	}
	if result.Metadata["signed_at"] == nil {
		t.Fatalf("expected signed_at metadata for timestamped scheme")
	}

	checksBefore := store.checks
	_, err = processor.Process(ctx, stripeRequest("evt_stale", processorNow.Unix()-61))
	if !core.HasTextCode(err, core.ErrorTimestampExpired) {
		t.Fatalf("expected endpoint tolerance to reject 61s skew, got %v", err)
	}
	if store.checks != checksBefore {
		t.Fatalf("expected expired delivery not to reach storage")
	}
}

func TestProcessor_IdempotencyDisabled(t *testing.T) {
	ctx := context.Background()
	handler := &stubHandler{result: core.HandlerResult{Success: true}}
	cfg := testConfig()
	disabled := false
	endpoint := cfg.Endpoints["github"]
	endpoint.Idempotency = &disabled
	cfg.Endpoints["github"] = endpoint
	processor, store := newTestProcessor(t, cfg, handler)

	for i := 0; i < 2; i++ {
		result, err := processor.Process(ctx, githubRequest("delivery-10", pushBody))
		if err != nil || result.State != core.DeliveryStateSucceeded {
			t.Fatalf("attempt %d: expected success, got %#v err=%v", i, result, err)
		}
	}
	if len(handler.calls) != 2 {
		t.Fatalf("expected every delivery to reach the handler, got %d", len(handler.calls))
	}
	if store.checks != 0 {
		t.Fatalf("expected no ledger checks when idempotency is disabled")
	}
	if seen, _ := store.Store.Check(ctx, "github", "delivery-10"); seen {
		t.Fatalf("expected no ledger record when idempotency is disabled")
	}
}

func TestProcessor_SecretResolution(t *testing.T) {
	ctx := context.Background()
	handler := &stubHandler{result: core.HandlerResult{Success: true}}
	cfg := testConfig()
	store := memory.NewStore()

	failing := core.SecretResolverFunc(func(context.Context, string) (string, error) {
		return "", errors.New("vault sealed")
	})
	processor := NewProcessor(cfg, nil, failing, store, routing.NewRouter(handler))
	_, err := processor.Process(ctx, githubRequest("delivery-11", pushBody))
	if !core.HasTextCode(err, core.ErrorSecretUnavailable) {
		t.Fatalf("expected secret unavailable, got %v", err)
	}

	empty := core.SecretResolverFunc(func(context.Context, string) (string, error) { return "", nil })
	processor = NewProcessor(cfg, nil, empty, store, routing.NewRouter(handler))
	result, err := processor.Process(ctx, githubRequest("delivery-11", pushBody))
	if !core.HasTextCode(err, core.ErrorSecretNotFound) {
		t.Fatalf("expected secret not found, got %v", err)
	}
	if result.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected secret errors to be server side, got %d", result.StatusCode)
	}
}

func TestProcessor_UnknownScheme(t *testing.T) {
	cfg := testConfig()
	cfg.Endpoints["acme"] = core.WebhookConfig{Provider: "acme", SecretRef: "github_secret"}
	processor, _ := newTestProcessor(t, cfg, &stubHandler{})

	_, err := processor.Process(context.Background(), core.InboundRequest{
		Endpoint: "acme",
		Body:     []byte(`{}`),
		Headers:  map[string]string{"X-Acme-Signature": "abc"},
	})
	if !core.HasTextCode(err, core.ErrorProviderNotConfigured) {
		t.Fatalf("expected provider not configured, got %v", err)
	}
}
