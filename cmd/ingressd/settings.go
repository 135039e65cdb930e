package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	gologgeradapter "github.com/goliatone/go-ingress/adapters/gologger"
	"github.com/goliatone/go-ingress/security"
	"github.com/goliatone/go-ingress/transport"
	glog "github.com/goliatone/go-logger/glog"
)

// Settings is the process configuration read from INGRESS_* variables.
// Endpoint definitions live in the config file, not in the environment.
type Settings struct {
	ConfigFile     string `env:"INGRESS_CONFIG" envDefault:"ingress.yaml"`
	ConfigRequired bool   `env:"INGRESS_CONFIG_REQUIRED" envDefault:"false"`

	DatabaseDriver string        `env:"INGRESS_DB_DRIVER" envDefault:"sqlite3"`
	DatabaseURL    string        `env:"INGRESS_DATABASE_URL" envDefault:"file:ingress.db?cache=shared&_foreign_keys=on"`
	DatabaseDebug  bool          `env:"INGRESS_DB_DEBUG" envDefault:"false"`
	PingTimeout    time.Duration `env:"INGRESS_DB_PING_TIMEOUT" envDefault:"5s"`

	CacheEnabled bool          `env:"INGRESS_CACHE_ENABLED" envDefault:"true"`
	CacheTTL     time.Duration `env:"INGRESS_CACHE_TTL" envDefault:"1m"`

	RedisURL       string        `env:"INGRESS_REDIS_URL"`
	RedisKeyPrefix string        `env:"INGRESS_REDIS_KEY_PREFIX" envDefault:"ingress:seen"`
	RedisTTL       time.Duration `env:"INGRESS_REDIS_TTL" envDefault:"72h"`

	NATSURL           string `env:"INGRESS_NATS_URL"`
	NATSSubjectPrefix string `env:"INGRESS_NATS_SUBJECT_PREFIX" envDefault:"ingress."`

	SecretPrefix string   `env:"INGRESS_SECRET_PREFIX" envDefault:"INGRESS_SECRET_"`
	AppKeys      []string `env:"INGRESS_APP_KEYS" envSeparator:","`

	MaxBodyBytes int64 `env:"INGRESS_MAX_BODY_BYTES" envDefault:"1048576"`

	LogLevel  string `env:"INGRESS_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"INGRESS_LOG_FORMAT" envDefault:"json"`

	HTTP transport.ServerConfig `envPrefix:"INGRESS_HTTP_"`
}

func LoadSettings() (Settings, error) {
	var settings Settings
	if err := env.Parse(&settings); err != nil {
		return Settings{}, fmt.Errorf("parse environment: %w", err)
	}
	settings.DatabaseDriver = strings.ToLower(strings.TrimSpace(settings.DatabaseDriver))
	return settings, nil
}

func (s Settings) LoggerProvider(w io.Writer) glog.LoggerProvider {
	return gologgeradapter.NewSlogProvider(w, s.LogFormat, gologgeradapter.ParseLevel(s.LogLevel))
}

// Ciphers builds one cipher per INGRESS_APP_KEYS entry. Entries are either
// raw key material or "kid:material".
func (s Settings) Ciphers() ([]*security.AppKeyCipher, error) {
	ciphers := make([]*security.AppKeyCipher, 0, len(s.AppKeys))
	for i, entry := range s.AppKeys {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		var opts []security.CipherOption
		if kid, material, ok := strings.Cut(entry, ":"); ok && kid != "" && material != "" {
			opts = append(opts, security.WithKeyID(kid))
			entry = material
		}
		c, err := security.NewAppKeyCipher([]byte(entry), opts...)
		if err != nil {
			return nil, fmt.Errorf("app key %d: %w", i, err)
		}
		ciphers = append(ciphers, c)
	}
	return ciphers, nil
}

// persistenceConfig adapts Settings to the go-persistence-bun config contract.
type persistenceConfig struct {
	settings Settings
}

func (c persistenceConfig) GetDebug() bool {
	return c.settings.DatabaseDebug
}

func (c persistenceConfig) GetDriver() string {
	return c.settings.DatabaseDriver
}

func (c persistenceConfig) GetServer() string {
	return c.settings.DatabaseURL
}

func (c persistenceConfig) GetPingTimeout() time.Duration {
	if c.settings.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.settings.PingTimeout
}

func (c persistenceConfig) GetOtelIdentifier() string {
	return "go-ingress"
}
