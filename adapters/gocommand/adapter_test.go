package gocommand

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-command"
	ingress "github.com/goliatone/go-ingress"
	ingresscommand "github.com/goliatone/go-ingress/command"
	"github.com/goliatone/go-ingress/core"
	ingressquery "github.com/goliatone/go-ingress/query"
	"github.com/goliatone/go-ingress/security"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	glog "github.com/goliatone/go-logger/glog"
)

type invalidMessage struct{}

func (invalidMessage) Type() string { return "" }

type failingMessage struct{}

func (failingMessage) Type() string { return "ingress.command.fail" }

func (failingMessage) Validate() error { return errors.New("invalid payload") }

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(ingresscommand.PurgeEventRecordsMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(invalidMessage{}); err == nil {
		t.Fatalf("expected empty type to fail contract validation")
	}
	if err := ValidateMessageContract(failingMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
	if err := ValidateMessageContract(ingresscommand.ProcessWebhookMessage{}); err == nil {
		t.Fatalf("expected missing endpoint to fail validation")
	}
}

func newFacade(t *testing.T) *ingress.Facade {
	t.Helper()
	cfg := ingress.Config{Endpoints: map[string]ingress.WebhookConfig{
		"gitlab": {
			Provider:  "gitlab",
			SecretRef: "gitlab",
			Routes:    map[string]ingress.EventRoute{"Push Hook": {Target: "ci"}},
		},
	}}
	svc, err := ingress.New(cfg,
		ingress.WithLogger(glog.Nop()),
		ingress.WithSecretResolver(security.NewStaticSecretResolver(map[string]string{"gitlab": "token-1"})),
		ingress.WithTargetHandler("ci", core.EventHandlerFunc(func(context.Context, core.HandlerInvocation) (core.HandlerResult, error) {
			return core.HandlerResult{Success: true}, nil
		})),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	facade, err := ingress.NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	return facade
}

func TestRegisterFacade_DispatchAndQuery(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	subs, err := RegisterFacade(adapter, newFacade(t))
	if err != nil {
		t.Fatalf("register facade: %v", err)
	}
	t.Cleanup(subs.Unsubscribe)
	if len(subs) != 4 {
		t.Fatalf("expected four subscriptions, got %d", len(subs))
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	collector := command.NewResult[core.InboundResult]()
	ctx := command.ContextWithResult(context.Background(), collector)
	err = Dispatch(ctx, ingresscommand.ProcessWebhookMessage{Request: core.InboundRequest{
		Endpoint: "gitlab",
		Headers: map[string]string{
			"X-Gitlab-Token":      "token-1",
			"X-Gitlab-Event":      "Push Hook",
			"X-Gitlab-Event-Uuid": "uuid-1",
		},
		Body: []byte(`{"object_kind":"push"}`),
	}})
	if err != nil {
		t.Fatalf("dispatch process command: %v", err)
	}
	result, ok := collector.Load()
	if !ok || result.State != core.DeliveryStateSucceeded {
		t.Fatalf("expected succeeded result through the dispatcher, got %#v", result)
	}

	record, err := Query[ingressquery.GetEventRecordMessage, core.WebhookEventRecord](
		context.Background(),
		ingressquery.GetEventRecordMessage{Provider: "gitlab", EventID: "uuid-1"},
	)
	if err != nil {
		t.Fatalf("query record: %v", err)
	}
	if record.Status != core.EventStatusSuccess {
		t.Fatalf("expected success record, got %#v", record)
	}
}

func TestRegisterFacade_RequiresFacade(t *testing.T) {
	if _, err := RegisterFacade(NewRegistryAdapter(nil), nil); err == nil {
		t.Fatalf("expected nil facade to fail")
	}
}

func TestQueueResolverMirrorsIngressCommands(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()
	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if !adapter.HasResolver("queue") {
		t.Fatalf("expected queue resolver to be registered")
	}
	if err := adapter.RegisterCommand(command.CommandFunc[ingresscommand.PurgeEventRecordsMessage](
		func(context.Context, ingresscommand.PurgeEventRecordsMessage) error { return nil },
	)); err != nil {
		t.Fatalf("register purge command: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	if _, ok := queueRegistry.Get(ingresscommand.TypePurgeEventRecords); !ok {
		t.Fatalf("expected purge command mirrored into the queue registry")
	}
}
