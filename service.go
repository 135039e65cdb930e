package ingress

import (
	"context"
	"time"

	"github.com/goliatone/go-ingress/core"
	"github.com/goliatone/go-ingress/handlers"
	"github.com/goliatone/go-ingress/routing"
	"github.com/goliatone/go-ingress/security"
	"github.com/goliatone/go-ingress/store/memory"
	"github.com/goliatone/go-ingress/webhooks"

	glog "github.com/goliatone/go-logger/glog"
)

type Config = core.Config

type WebhookConfig = core.WebhookConfig

type EventRoute = core.EventRoute

type InboundRequest = core.InboundRequest

type InboundResult = core.InboundResult

type SecretResolver = core.SecretResolver

type EventHandler = core.EventHandler

type IdempotencyStore = core.IdempotencyStore

type Logger = core.Logger

type LoggerProvider = core.LoggerProvider

type MetricsRecorder = core.MetricsRecorder

type SignatureVerifier = webhooks.SignatureVerifier

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// Service is the assembled ingestion runtime: resolved configuration,
// verifier registry, ledger, handler mux and the processor that ties them
// together.
type Service struct {
	config         Config
	logger         Logger
	loggerProvider LoggerProvider
	metrics        MetricsRecorder
	registry       *webhooks.ProviderRegistry
	secrets        SecretResolver
	store          IdempotencyStore
	mux            *handlers.Mux
	handler        EventHandler
	processor      *webhooks.Processor
	hooks          *ExtensionHooks
}

type Option func(*serviceBuilder)

type serviceBuilder struct {
	runtimeConfig  Config
	logger         Logger
	loggerProvider LoggerProvider
	metrics        MetricsRecorder
	configProvider core.ConfigProvider
	resolver       core.OptionsResolver
	registry       *webhooks.ProviderRegistry
	verifiers      map[string]SignatureVerifier
	secrets        SecretResolver
	store          IdempotencyStore
	handler        EventHandler
	targets        map[string]EventHandler
	schemes        map[string]EventHandler
	hooks          *ExtensionHooks
	now            func() time.Time
}

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metrics = recorder
	}
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.resolver = resolver
	}
}

// WithRegistry replaces the default registry of built-in schemes.
func WithRegistry(registry *webhooks.ProviderRegistry) Option {
	return func(b *serviceBuilder) {
		b.registry = registry
	}
}

// WithVerifier registers an extra scheme under name.
func WithVerifier(name string, verifier SignatureVerifier) Option {
	return func(b *serviceBuilder) {
		b.verifiers[name] = verifier
	}
}

func WithSecretResolver(resolver SecretResolver) Option {
	return func(b *serviceBuilder) {
		b.secrets = resolver
	}
}

func WithIdempotencyStore(store IdempotencyStore) Option {
	return func(b *serviceBuilder) {
		b.store = store
	}
}

// WithEventHandler bypasses the target mux entirely.
func WithEventHandler(handler EventHandler) Option {
	return func(b *serviceBuilder) {
		b.handler = handler
	}
}

// WithTargetHandler binds an exact route target on the default mux.
func WithTargetHandler(target string, handler EventHandler) Option {
	return func(b *serviceBuilder) {
		b.targets[target] = handler
	}
}

// WithSchemeHandler binds every "scheme:name" target on the default mux.
func WithSchemeHandler(scheme string, handler EventHandler) Option {
	return func(b *serviceBuilder) {
		b.schemes[scheme] = handler
	}
}

func WithExtensionHooks(hooks *ExtensionHooks) Option {
	return func(b *serviceBuilder) {
		b.hooks = hooks
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.now = now
	}
}

// New resolves configuration and wires the runtime. cfg is layered over the
// loaded configuration as runtime overrides. Without a store the in-memory
// ledger is used; without a secret resolver secrets come from INGRESS_SECRET_*
// environment variables.
func New(cfg Config, opts ...Option) (*Service, error) {
	builder := serviceBuilder{
		runtimeConfig: cfg,
		verifiers:     map[string]SignatureVerifier{},
		targets:       map[string]EventHandler{},
		schemes:       map[string]EventHandler{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("ingress", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("ingress"); named != nil {
			logger = glog.Ensure(named)
		}
	}
	if builder.metrics == nil {
		builder.metrics = core.NopMetricsRecorder{}
	}
	if builder.now == nil {
		builder.now = func() time.Time {
			return time.Now().UTC()
		}
	}

	finalConfig, err := core.ResolveConfig(context.Background(), builder.configProvider, builder.resolver, builder.runtimeConfig)
	if err != nil {
		return nil, core.MapError(err)
	}
	if err := routing.ValidateConfig(finalConfig); err != nil {
		return nil, err
	}

	registry := builder.registry
	if registry == nil {
		registry = webhooks.NewProviderRegistry(
			webhooks.WithRegistryClock(builder.now),
			webhooks.WithRegistryTolerance(finalConfig.DefaultTolerance),
		)
	}
	for name, verifier := range builder.verifiers {
		if err := registry.Register(name, verifier); err != nil {
			return nil, err
		}
	}

	mux := handlers.NewMux()
	mux.RegisterScheme(handlers.SchemeSQL, handlers.NewStoredProcedureHandler())
	for scheme, handler := range builder.schemes {
		mux.RegisterScheme(scheme, handler)
	}
	for target, handler := range builder.targets {
		mux.Register(target, handler)
	}
	if builder.hooks != nil {
		if err := builder.hooks.ApplyVerifierPacks(registry); err != nil {
			return nil, err
		}
		if err := builder.hooks.ApplyHandlerPacks(mux); err != nil {
			return nil, err
		}
	}

	handler := builder.handler
	if handler == nil {
		handler = mux
	}
	if builder.secrets == nil {
		builder.secrets = security.NewEnvSecretResolver(security.DefaultEnvPrefix)
	}
	if builder.store == nil {
		logger.Warn("no idempotency store configured, using the in-memory ledger")
		builder.store = memory.NewStore(memory.WithClock(builder.now))
	}

	for _, name := range finalConfig.EndpointNames() {
		endpoint := finalConfig.Endpoints[name]
		if _, err := registry.Get(endpoint.SchemeName()); err != nil {
			logger.Warn("endpoint scheme is not registered", "endpoint", name, "scheme", endpoint.SchemeName())
		}
	}

	processor := webhooks.NewProcessor(
		finalConfig,
		registry,
		builder.secrets,
		builder.store,
		routing.NewRouter(handler),
		webhooks.WithProcessorLogger(logger),
		webhooks.WithProcessorMetrics(builder.metrics),
		webhooks.WithProcessorClock(builder.now),
	)

	return &Service{
		config:         finalConfig,
		logger:         logger,
		loggerProvider: provider,
		metrics:        builder.metrics,
		registry:       registry,
		secrets:        builder.secrets,
		store:          builder.store,
		mux:            mux,
		handler:        handler,
		processor:      processor,
		hooks:          builder.hooks,
	}, nil
}

func (s *Service) Process(ctx context.Context, req InboundRequest) (InboundResult, error) {
	if s == nil || s.processor == nil {
		return InboundResult{}, core.ErrConfigInvalid("ingress: service is not initialized")
	}
	return s.processor.Process(ctx, req)
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Logger() Logger {
	if s == nil {
		return glog.Nop()
	}
	return s.logger
}

func (s *Service) Registry() *webhooks.ProviderRegistry {
	if s == nil {
		return nil
	}
	return s.registry
}

func (s *Service) Store() IdempotencyStore {
	if s == nil {
		return nil
	}
	return s.store
}

// Mux returns the default target mux. It is not consulted when the service
// was built with WithEventHandler.
func (s *Service) Mux() *handlers.Mux {
	if s == nil {
		return nil
	}
	return s.mux
}

func (s *Service) Processor() *webhooks.Processor {
	if s == nil {
		return nil
	}
	return s.processor
}

// RecordReader exposes the ledger's read side when the store has one.
func (s *Service) RecordReader() (core.EventRecordReader, bool) {
	if s == nil || s.store == nil {
		return nil, false
	}
	reader, ok := s.store.(core.EventRecordReader)
	return reader, ok
}

func (s *Service) RecordPurger() (core.EventRecordPurger, bool) {
	if s == nil || s.store == nil {
		return nil, false
	}
	purger, ok := s.store.(core.EventRecordPurger)
	return purger, ok
}
