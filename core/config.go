package core

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const defaultTimestampTolerance = 5 * time.Minute

type EventRoute struct {
	Target    string            `koanf:"target" mapstructure:"target"`
	Mapping   map[string]string `koanf:"mapping" mapstructure:"mapping"`
	Condition string            `koanf:"condition" mapstructure:"condition"`
}

// WebhookConfig describes one inbound endpoint. Scheme selects the verifier
// from the provider registry and defaults to Provider.
type WebhookConfig struct {
	Provider        string                `koanf:"provider" mapstructure:"provider"`
	SecretRef       string                `koanf:"secret_ref" mapstructure:"secret_ref"`
	Scheme          string                `koanf:"scheme" mapstructure:"scheme"`
	SignatureHeader string                `koanf:"signature_header" mapstructure:"signature_header"`
	TimestampHeader string                `koanf:"timestamp_header" mapstructure:"timestamp_header"`
	Tolerance       time.Duration         `koanf:"tolerance" mapstructure:"tolerance"`
	Idempotency     *bool                 `koanf:"idempotency" mapstructure:"idempotency"`
	EventIDHeader   string                `koanf:"event_id_header" mapstructure:"event_id_header"`
	EventIDPath     string                `koanf:"event_id_path" mapstructure:"event_id_path"`
	EventTypeHeader string                `koanf:"event_type_header" mapstructure:"event_type_header"`
	EventTypePath   string                `koanf:"event_type_path" mapstructure:"event_type_path"`
	Routes          map[string]EventRoute `koanf:"routes" mapstructure:"routes"`
}

func (c WebhookConfig) IdempotencyEnabled() bool {
	return c.Idempotency == nil || *c.Idempotency
}

func (c WebhookConfig) SchemeName() string {
	if scheme := strings.TrimSpace(c.Scheme); scheme != "" {
		return strings.ToLower(scheme)
	}
	return strings.ToLower(strings.TrimSpace(c.Provider))
}

type Config struct {
	ServiceName      string                   `koanf:"service_name" mapstructure:"service_name"`
	Isolation        IsolationLevel           `koanf:"isolation" mapstructure:"isolation"`
	DefaultTolerance time.Duration            `koanf:"default_tolerance" mapstructure:"default_tolerance"`
	Endpoints        map[string]WebhookConfig `koanf:"endpoints" mapstructure:"endpoints"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:      "ingress",
		Isolation:        IsolationReadCommitted,
		DefaultTolerance: defaultTimestampTolerance,
		Endpoints:        map[string]WebhookConfig{},
	}
}

// Endpoint returns the endpoint config with the default tolerance applied.
func (c Config) Endpoint(name string) (WebhookConfig, bool) {
	endpoint, ok := c.Endpoints[strings.TrimSpace(name)]
	if !ok {
		return WebhookConfig{}, false
	}
	if endpoint.Tolerance <= 0 {
		endpoint.Tolerance = c.DefaultTolerance
	}
	return endpoint, true
}

func (c Config) EndpointNames() []string {
	names := make([]string, 0, len(c.Endpoints))
	for name := range c.Endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if !c.Isolation.Valid() {
		return fmt.Errorf("core: unsupported isolation level %q", c.Isolation)
	}
	if c.DefaultTolerance < 0 {
		return fmt.Errorf("core: default_tolerance must not be negative")
	}
	for _, name := range c.EndpointNames() {
		if err := c.Endpoints[name].validate(name); err != nil {
			return err
		}
	}
	return nil
}

func (c WebhookConfig) validate(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("core: endpoint name is required")
	}
	if strings.TrimSpace(c.Provider) == "" {
		return fmt.Errorf("core: endpoint %s: provider is required", name)
	}
	if strings.TrimSpace(c.SecretRef) == "" {
		return fmt.Errorf("core: endpoint %s: secret_ref is required", name)
	}
	if c.Tolerance < 0 {
		return fmt.Errorf("core: endpoint %s: tolerance must not be negative", name)
	}
	if strings.TrimSpace(c.EventIDHeader) != "" && strings.TrimSpace(c.EventIDPath) != "" {
		return fmt.Errorf("core: endpoint %s: event_id_header and event_id_path are exclusive", name)
	}
	for eventType, route := range c.Routes {
		if strings.TrimSpace(route.Target) == "" {
			return fmt.Errorf("core: endpoint %s: route %s: target is required", name, eventType)
		}
		for param, path := range route.Mapping {
			if strings.TrimSpace(param) == "" || strings.TrimSpace(path) == "" {
				return fmt.Errorf("core: endpoint %s: route %s: mapping entries need a name and a path", name, eventType)
			}
		}
	}
	return nil
}
