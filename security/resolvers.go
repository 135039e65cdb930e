package security

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"unicode"

	"github.com/goliatone/go-ingress/core"
)

// StaticSecretResolver serves secrets from a fixed map, typically the
// secrets section of the config file.
type StaticSecretResolver struct {
	mu      sync.RWMutex
	secrets map[string]string
}

func NewStaticSecretResolver(secrets map[string]string) *StaticSecretResolver {
	copied := make(map[string]string, len(secrets))
	for ref, value := range secrets {
		copied[strings.TrimSpace(ref)] = value
	}
	return &StaticSecretResolver{secrets: copied}
}

func (r *StaticSecretResolver) Set(ref, value string) {
	r.mu.Lock()
	r.secrets[strings.TrimSpace(ref)] = value
	r.mu.Unlock()
}

func (r *StaticSecretResolver) ResolveSecret(_ context.Context, ref string) (string, error) {
	r.mu.RLock()
	value, ok := r.secrets[strings.TrimSpace(ref)]
	r.mu.RUnlock()
	if !ok || value == "" {
		return "", core.ErrSecretNotFound(ref)
	}
	return value, nil
}

const DefaultEnvPrefix = "INGRESS_SECRET_"

// EnvSecretResolver maps a reference such as "github-main" to the variable
// INGRESS_SECRET_GITHUB_MAIN.
type EnvSecretResolver struct {
	Prefix string
	Lookup func(key string) (string, bool)
}

func NewEnvSecretResolver(prefix string) EnvSecretResolver {
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultEnvPrefix
	}
	return EnvSecretResolver{Prefix: prefix, Lookup: os.LookupEnv}
}

func (r EnvSecretResolver) ResolveSecret(_ context.Context, ref string) (string, error) {
	lookup := r.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	key := r.VariableName(ref)
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return "", core.ErrSecretNotFound(ref)
	}
	return value, nil
}

func (r EnvSecretResolver) VariableName(ref string) string {
	var b strings.Builder
	b.WriteString(r.Prefix)
	for _, ch := range strings.TrimSpace(ref) {
		switch {
		case unicode.IsLetter(ch) || unicode.IsDigit(ch):
			b.WriteRune(unicode.ToUpper(ch))
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// EncryptedSecretResolver opens sealed values returned by Base. Values
// without the envelope prefix pass through unchanged.
type EncryptedSecretResolver struct {
	Base    core.SecretResolver
	Ciphers []*AppKeyCipher
}

func NewEncryptedSecretResolver(base core.SecretResolver, ciphers ...*AppKeyCipher) (*EncryptedSecretResolver, error) {
	if base == nil {
		return nil, fmt.Errorf("security: base secret resolver is required")
	}
	if len(ciphers) == 0 {
		return nil, fmt.Errorf("security: at least one cipher is required")
	}
	return &EncryptedSecretResolver{Base: base, Ciphers: ciphers}, nil
}

func (r *EncryptedSecretResolver) ResolveSecret(ctx context.Context, ref string) (string, error) {
	value, err := r.Base.ResolveSecret(ctx, ref)
	if err != nil {
		return "", err
	}
	if !IsSealed(value) {
		return value, nil
	}
	parsed, err := parseEnvelope(value)
	if err != nil {
		return "", core.ErrSecretUnavailable(ref, err)
	}
	for _, c := range r.Ciphers {
		if c == nil || (parsed.KeyID != "" && parsed.KeyID != c.KeyID()) {
			continue
		}
		plaintext, openErr := c.Open(value)
		if openErr != nil {
			return "", core.ErrSecretUnavailable(ref, openErr)
		}
		return plaintext, nil
	}
	return "", core.ErrSecretUnavailable(ref, fmt.Errorf("security: no cipher for key id %q", parsed.KeyID))
}

// ChainSecretResolver asks each resolver in order. A not-found answer moves
// on to the next one; any other error stops the chain.
type ChainSecretResolver []core.SecretResolver

func (c ChainSecretResolver) ResolveSecret(ctx context.Context, ref string) (string, error) {
	for _, resolver := range c {
		if resolver == nil {
			continue
		}
		value, err := resolver.ResolveSecret(ctx, ref)
		if err == nil && value != "" {
			return value, nil
		}
		if err != nil && !core.HasTextCode(err, core.ErrorSecretNotFound) {
			return "", err
		}
	}
	return "", core.ErrSecretNotFound(ref)
}

var (
	_ core.SecretResolver = (*StaticSecretResolver)(nil)
	_ core.SecretResolver = EnvSecretResolver{}
	_ core.SecretResolver = (*EncryptedSecretResolver)(nil)
	_ core.SecretResolver = ChainSecretResolver{}
)
