package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
	"gopkg.in/yaml.v3"
)

type StaticConfigLoader struct {
	Values map[string]any
}

func (l StaticConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// FileConfigLoader reads a YAML or TOML document selected by file extension.
// A missing file yields an empty map unless Required is set.
type FileConfigLoader struct {
	Path     string
	Required bool
}

func (l FileConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	path := strings.TrimSpace(l.Path)
	if path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !l.Required {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("core: read config %s: %w", path, err)
	}

	out := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &out); err != nil {
			return nil, fmt.Errorf("core: decode toml config %s: %w", path, err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("core: decode yaml config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("core: unsupported config format %q", filepath.Ext(path))
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver layers defaults, loaded and runtime configuration with
// go-options. Later layers win per key; endpoints merge by name.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// ResolveConfig loads configuration through provider and layers runtime
// overrides on top with resolver.
func ResolveConfig(ctx context.Context, provider ConfigProvider, resolver OptionsResolver, runtime Config) (Config, error) {
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	defaults := DefaultConfig()
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || strings.TrimSpace(string(cfg.Isolation)) != "" {
		layer["isolation"] = string(cfg.Isolation)
	}
	if includeZero || cfg.DefaultTolerance > 0 {
		layer["default_tolerance"] = cfg.DefaultTolerance
	}
	if includeZero || len(cfg.Endpoints) > 0 {
		endpoints := make(map[string]any, len(cfg.Endpoints))
		for name, endpoint := range cfg.Endpoints {
			endpoints[name] = endpointToLayerMap(endpoint)
		}
		layer["endpoints"] = endpoints
	}
	return layer
}

func endpointToLayerMap(endpoint WebhookConfig) map[string]any {
	out := map[string]any{
		"provider":          endpoint.Provider,
		"secret_ref":        endpoint.SecretRef,
		"scheme":            endpoint.Scheme,
		"signature_header":  endpoint.SignatureHeader,
		"timestamp_header":  endpoint.TimestampHeader,
		"tolerance":         endpoint.Tolerance,
		"event_id_header":   endpoint.EventIDHeader,
		"event_id_path":     endpoint.EventIDPath,
		"event_type_header": endpoint.EventTypeHeader,
		"event_type_path":   endpoint.EventTypePath,
	}
	if endpoint.Idempotency != nil {
		out["idempotency"] = *endpoint.Idempotency
	}
	routes := make(map[string]any, len(endpoint.Routes))
	for eventType, route := range endpoint.Routes {
		mapping := make(map[string]any, len(route.Mapping))
		for param, path := range route.Mapping {
			mapping[param] = path
		}
		routes[eventType] = map[string]any{
			"target":    route.Target,
			"mapping":   mapping,
			"condition": route.Condition,
		}
	}
	out["routes"] = routes
	return out
}
