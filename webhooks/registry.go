package webhooks

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-ingress/core"
)

// ProviderRegistry maps scheme names to verifiers. Registration is
// last-write-wins and entries are never removed.
type ProviderRegistry struct {
	mu        sync.RWMutex
	verifiers map[string]SignatureVerifier
}

type RegistryOption func(*registryOptions)

type registryOptions struct {
	now       func() time.Time
	tolerance time.Duration
}

func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(o *registryOptions) {
		o.now = now
	}
}

func WithRegistryTolerance(tolerance time.Duration) RegistryOption {
	return func(o *registryOptions) {
		o.tolerance = tolerance
	}
}

func NewProviderRegistry(opts ...RegistryOption) *ProviderRegistry {
	options := registryOptions{tolerance: DefaultTimestampTolerance}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	registry := &ProviderRegistry{verifiers: map[string]SignatureVerifier{}}
	for _, verifier := range BuiltinVerifiers(options.now, options.tolerance) {
		registry.verifiers[verifier.Name()] = verifier
	}
	return registry
}

// BuiltinVerifiers returns the schemes available in every new registry.
func BuiltinVerifiers(now func() time.Time, tolerance time.Duration) []SignatureVerifier {
	return []SignatureVerifier{
		HMACVerifier{SchemeName: "github", SignatureHeader: "X-Hub-Signature-256", Prefix: "sha256="},
		GenericHMACVerifier{SchemeName: "github-sha1", SignatureHeader: "X-Hub-Signature", Algorithm: "sha1", Prefix: "sha1="},
		HMACVerifier{SchemeName: "meta", SignatureHeader: "X-Hub-Signature-256", Prefix: "sha256="},
		TimestampedHMACVerifier{SchemeName: "stripe", SignatureHeader: "Stripe-Signature", Tolerance: tolerance, Now: now},
		Base64HMACVerifier{SchemeName: "shopify", SignatureHeader: "X-Shopify-Hmac-Sha256"},
		TokenVerifier{SchemeName: "gitlab", SignatureHeader: "X-Gitlab-Token"},
		GenericHMACVerifier{SchemeName: "pinterest", SignatureHeader: "X-Pinterest-Hmac-Sha256", Algorithm: "sha256", Encoding: "hex", Now: now},
	}
}

func (r *ProviderRegistry) Register(name string, verifier SignatureVerifier) error {
	key := normalizeName(name)
	if key == "" {
		return core.ErrConfigInvalid("webhooks: verifier name is required")
	}
	if verifier == nil {
		return core.ErrConfigInvalid("webhooks: verifier is nil")
	}
	r.mu.Lock()
	r.verifiers[key] = verifier
	r.mu.Unlock()
	return nil
}

func (r *ProviderRegistry) Get(name string) (SignatureVerifier, error) {
	key := normalizeName(name)
	r.mu.RLock()
	verifier, ok := r.verifiers[key]
	r.mu.RUnlock()
	if !ok {
		return nil, core.ErrProviderNotConfigured(name)
	}
	return verifier, nil
}

func (r *ProviderRegistry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.verifiers))
	for name := range r.verifiers {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
