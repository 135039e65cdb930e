package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	ingress "github.com/goliatone/go-ingress"
	gologgeradapter "github.com/goliatone/go-ingress/adapters/gologger"
	"github.com/goliatone/go-ingress/core"
	"github.com/goliatone/go-ingress/handlers"
	"github.com/goliatone/go-ingress/security"
	redisstore "github.com/goliatone/go-ingress/store/redis"
	sqlstore "github.com/goliatone/go-ingress/store/sql"
	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// runtime owns every connection the daemon opens so they close together.
type runtime struct {
	settings       Settings
	loggerProvider glog.LoggerProvider
	logger         glog.Logger

	client  *persistence.Client
	dialect string
	redis   *redis.Client
	nats    *nats.Conn

	service *ingress.Service
	facade  *ingress.Facade
}

func openRuntime(settings Settings, logOut io.Writer) (*runtime, error) {
	provider := settings.LoggerProvider(logOut)
	rt := &runtime{
		settings:       settings,
		loggerProvider: provider,
		logger:         gologgeradapter.Named(provider, "daemon"),
	}
	client, dialect, err := openPersistence(settings)
	if err != nil {
		return nil, err
	}
	rt.client = client
	rt.dialect = dialect
	return rt, nil
}

// build wires the ledger, secrets and downstream handlers into a facade.
func (rt *runtime) build(ctx context.Context) error {
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(rt.client)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	if rt.settings.CacheEnabled {
		cacheConfig := repositorycache.DefaultConfig()
		if rt.settings.CacheTTL > 0 {
			cacheConfig.TTL = rt.settings.CacheTTL
		}
		cacheService, err := repositorycache.NewCacheService(cacheConfig)
		if err != nil {
			return fmt.Errorf("ledger cache: %w", err)
		}
		if err := factory.WithCache(cacheService); err != nil {
			return fmt.Errorf("ledger cache: %w", err)
		}
	}
	ledger := factory.IdempotencyStore()

	var store core.IdempotencyStore = ledger
	if rt.settings.RedisURL != "" {
		rt.redis, err = redisstore.NewClient(ctx, rt.settings.RedisURL)
		if err != nil {
			return err
		}
		seen, err := redisstore.NewSeenCache(ledger, rt.redis,
			redisstore.WithKeyPrefix(rt.settings.RedisKeyPrefix),
			redisstore.WithTTL(rt.settings.RedisTTL),
		)
		if err != nil {
			return err
		}
		store = seen
		rt.logger.Info("redis seen cache enabled", "prefix", rt.settings.RedisKeyPrefix)
	}

	secrets, err := rt.secretResolver()
	if err != nil {
		return err
	}

	opts := []ingress.Option{
		ingress.WithLoggerProvider(rt.loggerProvider),
		ingress.WithConfigProvider(core.NewCfgxConfigProvider(core.FileConfigLoader{
			Path:     rt.settings.ConfigFile,
			Required: rt.settings.ConfigRequired,
		})),
		ingress.WithOptionsResolver(core.GoOptionsResolver{}),
		ingress.WithIdempotencyStore(store),
		ingress.WithSecretResolver(secrets),
	}
	if rt.settings.NATSURL != "" {
		rt.nats, err = handlers.ConnectNATS(rt.settings.NATSURL)
		if err != nil {
			return err
		}
		natsHandler, err := ingress.NATSHandler(rt.nats, handlers.WithSubjectPrefix(rt.settings.NATSSubjectPrefix))
		if err != nil {
			return err
		}
		opts = append(opts, ingress.WithSchemeHandler(handlers.SchemeNATS, natsHandler))
		rt.logger.Info("nats publisher enabled", "url", rt.nats.ConnectedUrl())
	}

	service, err := ingress.New(ingress.Config{}, opts...)
	if err != nil {
		return err
	}
	facade, err := ingress.NewFacade(service,
		ingress.WithRecordReader(ledger),
		ingress.WithRecordPurger(ledger),
	)
	if err != nil {
		return err
	}
	rt.service = service
	rt.facade = facade
	return nil
}

// secretResolver reads INGRESS_SECRET_* variables and opens sealed values
// when app keys are configured.
func (rt *runtime) secretResolver() (core.SecretResolver, error) {
	base := security.NewEnvSecretResolver(rt.settings.SecretPrefix)
	ciphers, err := rt.settings.Ciphers()
	if err != nil {
		return nil, err
	}
	if len(ciphers) == 0 {
		return base, nil
	}
	return security.NewEncryptedSecretResolver(base, ciphers...)
}

func (rt *runtime) Close() error {
	if rt == nil {
		return nil
	}
	var errs []error
	if rt.nats != nil {
		if err := rt.nats.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("drain nats: %w", err))
		}
	}
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if rt.client != nil {
		if err := rt.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
