package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-ingress/core"
	"github.com/goliatone/go-ingress/routing"

	goerrors "github.com/goliatone/go-errors"
)

// Processor runs one delivery through verification, the idempotency check
// and a single processing transaction.
type Processor struct {
	Config   core.Config
	Registry *ProviderRegistry
	Secrets  core.SecretResolver
	Store    core.IdempotencyStore
	Router   *routing.Router
	Observer core.DeliveryObserver
	Now      func() time.Time
}

type ProcessorOption func(*Processor)

func WithProcessorLogger(logger core.Logger) ProcessorOption {
	return func(p *Processor) {
		p.Observer = core.NewDeliveryObserver(logger, p.Observer.Metrics)
	}
}

func WithProcessorMetrics(metrics core.MetricsRecorder) ProcessorOption {
	return func(p *Processor) {
		p.Observer = core.NewDeliveryObserver(p.Observer.Logger, metrics)
	}
}

func WithProcessorClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		p.Now = now
	}
}

func NewProcessor(
	cfg core.Config,
	registry *ProviderRegistry,
	secrets core.SecretResolver,
	store core.IdempotencyStore,
	router *routing.Router,
	opts ...ProcessorOption,
) *Processor {
	if registry == nil {
		registry = NewProviderRegistry()
	}
	processor := &Processor{
		Config:   cfg,
		Registry: registry,
		Secrets:  secrets,
		Store:    store,
		Router:   router,
		Observer: core.NewDeliveryObserver(nil, nil),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(processor)
		}
	}
	return processor
}

func (p *Processor) Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if p == nil || p.Store == nil || p.Router == nil || p.Secrets == nil {
		return core.InboundResult{}, core.ErrConfigInvalid("webhooks: processor requires secrets, store and router")
	}
	startedAt := p.now()
	fields := map[string]any{"endpoint": strings.TrimSpace(req.Endpoint)}
	result, err := p.process(ctx, req, fields)
	if err != nil {
		fields["headers"] = core.RedactHeaders(req.Headers)
	}
	p.Observer.Observe(ctx, startedAt, result.State, err, fields)
	return result, err
}

func (p *Processor) process(ctx context.Context, req core.InboundRequest, fields map[string]any) (core.InboundResult, error) {
	endpoint, ok := p.Config.Endpoint(req.Endpoint)
	if !ok {
		return rejected(core.DeliveryStateReceived, fields, core.ErrEndpointNotFound(req.Endpoint))
	}
	provider := strings.ToLower(strings.TrimSpace(endpoint.Provider))
	fields["provider"] = provider

	verified, err := p.verify(ctx, endpoint, req, fields)
	if err != nil {
		return rejected(core.DeliveryStateReceived, fields, err)
	}

	payload, err := decodePayload(verified.Body)
	if err != nil {
		return rejected(core.DeliveryStateVerified, fields, err)
	}
	identity, err := ResolveIdentity(endpoint, req.Headers, payload)
	if err != nil {
		return rejected(core.DeliveryStateVerified, fields, err)
	}
	fields["event_id"] = identity.EventID
	fields["event_type"] = identity.EventType

	idempotent := endpoint.IdempotencyEnabled()
	if idempotent {
		seen, err := p.Store.Check(ctx, provider, identity.EventID)
		if err != nil {
			return rejected(core.DeliveryStateVerified, fields, core.ErrStorageFailed("check", err))
		}
		if seen {
			return duplicate(fields), nil
		}
	}

	routed, recordID, err := p.runTransaction(ctx, endpoint, provider, req.Endpoint, identity, payload)
	if err != nil {
		if core.IsDuplicate(err) {
			return duplicate(fields), nil
		}
		return rejected(core.DeliveryStateFailed, fields, err)
	}
	fields["outcome"] = string(routed.Outcome)
	fields["target"] = routed.Target

	result := core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		RecordID:   recordID,
		Metadata:   resultMetadata(fields),
	}
	switch {
	case routed.Outcome.Skipped():
		result.State = core.DeliveryStateSkipped
	case routed.Outcome == core.EventOutcomeRejected:
		rejectErr := core.ErrHandlerRejected(routed.Target, routed.Handler.Message)
		result.State = core.DeliveryStateFailed
		result.Accepted = false
		result.StatusCode = rejectErr.Code
		result.Metadata["text_code"] = rejectErr.TextCode
		return result, rejectErr
	default:
		result.State = core.DeliveryStateSucceeded
	}
	return result, nil
}

// verify authenticates the delivery. Nothing here touches the store.
func (p *Processor) verify(ctx context.Context, endpoint core.WebhookConfig, req core.InboundRequest, fields map[string]any) (core.VerifiedRequest, error) {
	verifier, err := p.Registry.Get(endpoint.SchemeName())
	if err != nil {
		return core.VerifiedRequest{}, err
	}
	if endpoint.Tolerance > 0 {
		if tolerant, ok := verifier.(TolerantVerifier); ok {
			verifier = tolerant.WithTolerance(endpoint.Tolerance)
		}
	}

	header := strings.TrimSpace(endpoint.SignatureHeader)
	if header == "" {
		header = verifier.Header()
	}
	signature := headerValue(req.Headers, header)
	if signature == "" {
		return core.VerifiedRequest{}, core.ErrSignatureMissing(header)
	}

	secret, err := p.resolveSecret(ctx, endpoint.SecretRef)
	if err != nil {
		return core.VerifiedRequest{}, err
	}

	timestampHeader := strings.TrimSpace(endpoint.TimestampHeader)
	if timestampHeader == "" {
		if withHeader, ok := verifier.(TimestampHeaderVerifier); ok {
			timestampHeader = withHeader.TimestampHeader()
		}
	}
	verified := core.VerifiedRequest{Body: req.Body, Signature: signature}
	if timestampHeader != "" {
		verified.Timestamp = headerValue(req.Headers, timestampHeader)
	}

	ok, err := verifier.Verify(verified.Body, verified.Signature, secret, verified.Timestamp)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return core.VerifiedRequest{}, err
		}
		return core.VerifiedRequest{}, core.ErrSignatureInvalidFormat(verifier.Name(), err.Error())
	}
	if !ok {
		return core.VerifiedRequest{}, core.ErrSignatureMismatch(verifier.Name())
	}
	if signedAt, ok := verifier.ExtractTimestamp(verified.Signature); ok {
		fields["signed_at"] = signedAt.Format(time.RFC3339)
	}
	return verified, nil
}

func (p *Processor) resolveSecret(ctx context.Context, ref string) (string, error) {
	secret, err := p.Secrets.ResolveSecret(ctx, ref)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return "", err
		}
		return "", core.ErrSecretUnavailable(ref, err)
	}
	if secret == "" {
		return "", core.ErrSecretNotFound(ref)
	}
	return secret, nil
}

// runTransaction inserts the pending record, routes the event and stores the
// final status in one transaction. Any error rolls all of it back.
func (p *Processor) runTransaction(
	ctx context.Context,
	endpoint core.WebhookConfig,
	provider string,
	endpointName string,
	identity EventIdentity,
	payload any,
) (routing.Result, string, error) {
	idempotent := endpoint.IdempotencyEnabled()
	var (
		routed   routing.Result
		recordID string
	)
	err := p.Store.RunInTx(ctx, core.TxOptions{Isolation: p.Config.Isolation}, func(ctx context.Context, tx core.EventTx) error {
		if idempotent {
			id, err := tx.Record(ctx, core.RecordInput{
				Provider:  provider,
				EventID:   identity.EventID,
				EventType: identity.EventType,
				Status:    core.EventStatusPending,
			})
			if err != nil {
				if core.IsDuplicate(err) {
					return core.ErrEventAlreadyRecorded
				}
				return core.ErrStorageFailed("record", err)
			}
			recordID = id
		}

		result, err := p.Router.Route(ctx, routing.Request{
			Provider:  provider,
			Endpoint:  strings.TrimSpace(endpointName),
			EventID:   identity.EventID,
			EventType: identity.EventType,
			Payload:   payload,
			Routes:    endpoint.Routes,
			Tx:        tx.Tx(),
		})
		if err != nil {
			return err
		}
		routed = result

		if idempotent {
			update := core.StatusUpdate{
				Provider: provider,
				EventID:  identity.EventID,
				Status:   result.Outcome.Status(),
				Outcome:  result.Outcome,
			}
			if result.Outcome == core.EventOutcomeRejected {
				update.Error = result.Handler.Message
			}
			if err := tx.UpdateStatus(ctx, update); err != nil {
				return core.ErrStorageFailed("update_status", err)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, core.ErrEventAlreadyRecorded) {
			return routing.Result{}, "", err
		}
		var richErr *goerrors.Error
		if !goerrors.As(err, &richErr) {
			err = core.ErrStorageFailed("transaction", err)
		}
		return routing.Result{}, "", err
	}
	return routed, recordID, nil
}

func decodePayload(body []byte) (any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, core.ErrPayloadInvalid(errors.New("empty body"))
	}
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var payload any
	if err := decoder.Decode(&payload); err != nil {
		return nil, core.ErrPayloadInvalid(err)
	}
	if _, err := decoder.Token(); err != io.EOF {
		return nil, core.ErrPayloadInvalid(errors.New("trailing data after JSON document"))
	}
	return payload, nil
}

func duplicate(fields map[string]any) core.InboundResult {
	metadata := resultMetadata(fields)
	metadata["deduped"] = true
	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		State:      core.DeliveryStateDuplicate,
		Metadata:   metadata,
	}
}

func rejected(state core.DeliveryState, fields map[string]any, err error) (core.InboundResult, error) {
	mapped := core.MapError(err)
	metadata := resultMetadata(fields)
	metadata["rejected"] = true
	metadata["text_code"] = mapped.TextCode
	return core.InboundResult{
		Accepted:   false,
		StatusCode: mapped.Code,
		State:      state,
		Metadata:   metadata,
	}, err
}

func resultMetadata(fields map[string]any) map[string]any {
	metadata := make(map[string]any, len(fields)+2)
	for key, value := range fields {
		metadata[key] = value
	}
	return metadata
}

func (p *Processor) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}
