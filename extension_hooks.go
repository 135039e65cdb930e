package ingress

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-ingress/handlers"
	"github.com/goliatone/go-ingress/webhooks"
)

// VerifierPack contributes signature schemes, keyed by scheme name.
type VerifierPack struct {
	Name      string
	Verifiers map[string]SignatureVerifier
}

// HandlerPack contributes route targets. Targets are exact route targets;
// Schemes bind every "scheme:name" target for a scheme.
type HandlerPack struct {
	Name    string
	Targets map[string]EventHandler
	Schemes map[string]EventHandler
}

type CommandQueryBundleFactory func(facade *Facade) (any, error)

type ExtensionHooks struct {
	mu sync.RWMutex

	verifierPacks map[string]VerifierPack
	handlerPacks  map[string]HandlerPack
	bundles       map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		verifierPacks: map[string]VerifierPack{},
		handlerPacks:  map[string]HandlerPack{},
		bundles:       map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterVerifierPack(pack VerifierPack) error {
	if h == nil {
		return fmt.Errorf("ingress: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("ingress: verifier pack name is required")
	}
	if len(pack.Verifiers) == 0 {
		return fmt.Errorf("ingress: verifier pack %q has no verifiers", name)
	}

	normalized := VerifierPack{Name: name, Verifiers: make(map[string]SignatureVerifier, len(pack.Verifiers))}
	for scheme, verifier := range pack.Verifiers {
		if verifier == nil {
			return fmt.Errorf("ingress: verifier pack %q contains nil verifier for %q", name, scheme)
		}
		normalized.Verifiers[scheme] = verifier
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.verifierPacks[name]; exists {
		return fmt.Errorf("ingress: verifier pack %q already registered", name)
	}
	h.verifierPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterHandlerPack(pack HandlerPack) error {
	if h == nil {
		return fmt.Errorf("ingress: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("ingress: handler pack name is required")
	}
	if len(pack.Targets) == 0 && len(pack.Schemes) == 0 {
		return fmt.Errorf("ingress: handler pack %q has no handlers", name)
	}

	normalized := HandlerPack{
		Name:    name,
		Targets: make(map[string]EventHandler, len(pack.Targets)),
		Schemes: make(map[string]EventHandler, len(pack.Schemes)),
	}
	for target, handler := range pack.Targets {
		if handler == nil {
			return fmt.Errorf("ingress: handler pack %q contains nil handler for %q", name, target)
		}
		normalized.Targets[target] = handler
	}
	for scheme, handler := range pack.Schemes {
		if handler == nil {
			return fmt.Errorf("ingress: handler pack %q contains nil handler for scheme %q", name, scheme)
		}
		normalized.Schemes[scheme] = handler
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.handlerPacks[name]; exists {
		return fmt.Errorf("ingress: handler pack %q already registered", name)
	}
	h.handlerPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(name string, factory CommandQueryBundleFactory) error {
	if h == nil {
		return fmt.Errorf("ingress: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("ingress: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("ingress: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("ingress: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ApplyVerifierPacks registers pack schemes in pack name order, so a later
// pack overrides an earlier one for the same scheme.
func (h *ExtensionHooks) ApplyVerifierPacks(registry *webhooks.ProviderRegistry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("ingress: registry is required")
	}
	for _, pack := range h.VerifierPacks() {
		for _, scheme := range sortedKeys(pack.Verifiers) {
			if err := registry.Register(scheme, pack.Verifiers[scheme]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) ApplyHandlerPacks(mux *handlers.Mux) error {
	if h == nil {
		return nil
	}
	if mux == nil {
		return fmt.Errorf("ingress: handler mux is required")
	}
	h.mu.RLock()
	names := sortedKeys(h.handlerPacks)
	packs := make([]HandlerPack, 0, len(names))
	for _, name := range names {
		packs = append(packs, h.handlerPacks[name])
	}
	h.mu.RUnlock()

	for _, pack := range packs {
		for _, scheme := range sortedKeys(pack.Schemes) {
			mux.RegisterScheme(scheme, pack.Schemes[scheme])
		}
		for _, target := range sortedKeys(pack.Targets) {
			mux.Register(target, pack.Targets[target])
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(facade *Facade) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if facade == nil {
		return nil, fmt.Errorf("ingress: facade is required")
	}

	h.mu.RLock()
	names := sortedKeys(h.bundles)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](facade)
		if err != nil {
			return nil, fmt.Errorf("ingress: build bundle %q: %w", name, err)
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) VerifierPacks() []VerifierPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]VerifierPack, 0, len(h.verifierPacks))
	for _, name := range sortedKeys(h.verifierPacks) {
		pack := h.verifierPacks[name]
		verifiers := make(map[string]SignatureVerifier, len(pack.Verifiers))
		for scheme, verifier := range pack.Verifiers {
			verifiers[scheme] = verifier
		}
		out = append(out, VerifierPack{Name: pack.Name, Verifiers: verifiers})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return sortedKeys(h.bundles)
}

func sortedKeys[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
