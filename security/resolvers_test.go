package security

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/goliatone/go-ingress/core"
)

func TestAppKeyCipher_SealAndOpen(t *testing.T) {
	c, err := NewAppKeyCipher([]byte("a not so secret application key"))
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	sealed, err := c.Seal("whsec_123")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if !strings.HasPrefix(sealed, EnvelopePrefix) || strings.Contains(sealed, "whsec_123") {
		t.Fatalf("expected sealed envelope without plaintext, got %q", sealed)
	}
	opened, err := c.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened != "whsec_123" {
		t.Fatalf("expected round trip, got %q", opened)
	}

	other, _ := NewAppKeyCipher([]byte("different key"), WithKeyID("app-key"))
	if _, err := other.Open(sealed); err == nil {
		t.Fatalf("expected wrong key material to fail")
	}
	if _, err := c.Open("whsec_123"); err == nil {
		t.Fatalf("expected unsealed value to be rejected")
	}
}

func TestStaticSecretResolver(t *testing.T) {
	resolver := NewStaticSecretResolver(map[string]string{"github_secret": "gh"})
	value, err := resolver.ResolveSecret(context.Background(), "github_secret")
	if err != nil || value != "gh" {
		t.Fatalf("expected static secret, got %q err=%v", value, err)
	}
	if _, err := resolver.ResolveSecret(context.Background(), "missing"); !core.HasTextCode(err, core.ErrorSecretNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	resolver.Set("missing", "now-set")
	if value, _ := resolver.ResolveSecret(context.Background(), "missing"); value != "now-set" {
		t.Fatalf("expected updated secret, got %q", value)
	}
}

func TestEnvSecretResolver(t *testing.T) {
	env := map[string]string{"INGRESS_SECRET_GITHUB_MAIN": "from-env"}
	resolver := NewEnvSecretResolver("")
	resolver.Lookup = func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}
	if name := resolver.VariableName("github-main"); name != "INGRESS_SECRET_GITHUB_MAIN" {
		t.Fatalf("unexpected variable name %q", name)
	}
	value, err := resolver.ResolveSecret(context.Background(), "github-main")
	if err != nil || value != "from-env" {
		t.Fatalf("expected env secret, got %q err=%v", value, err)
	}
	if _, err := resolver.ResolveSecret(context.Background(), "stripe"); !core.HasTextCode(err, core.ErrorSecretNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEncryptedSecretResolver(t *testing.T) {
	ctx := context.Background()
	current, _ := NewAppKeyCipher([]byte("current key"), WithKeyID("k2"))
	previous, _ := NewAppKeyCipher([]byte("previous key"), WithKeyID("k1"))
	sealedOld, err := previous.Seal("old-secret")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	base := NewStaticSecretResolver(map[string]string{
		"rotated": sealedOld,
		"plain":   "plain-secret",
	})
	resolver, err := NewEncryptedSecretResolver(base, current, previous)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	if value, err := resolver.ResolveSecret(ctx, "rotated"); err != nil || value != "old-secret" {
		t.Fatalf("expected previous key to open rotated secret, got %q err=%v", value, err)
	}
	if value, err := resolver.ResolveSecret(ctx, "plain"); err != nil || value != "plain-secret" {
		t.Fatalf("expected plain value to pass through, got %q err=%v", value, err)
	}

	only, _ := NewEncryptedSecretResolver(base, current)
	if _, err := only.ResolveSecret(ctx, "rotated"); !core.HasTextCode(err, core.ErrorSecretUnavailable) {
		t.Fatalf("expected unknown key id to be unavailable, got %v", err)
	}
}

func TestChainSecretResolver(t *testing.T) {
	ctx := context.Background()
	first := NewStaticSecretResolver(map[string]string{"a": "from-first"})
	second := NewStaticSecretResolver(map[string]string{"a": "shadowed", "b": "from-second"})
	chain := ChainSecretResolver{first, second}

	if value, _ := chain.ResolveSecret(ctx, "a"); value != "from-first" {
		t.Fatalf("expected first resolver to win, got %q", value)
	}
	if value, _ := chain.ResolveSecret(ctx, "b"); value != "from-second" {
		t.Fatalf("expected fall through on not found, got %q", value)
	}
	if _, err := chain.ResolveSecret(ctx, "c"); !core.HasTextCode(err, core.ErrorSecretNotFound) {
		t.Fatalf("expected not found at end of chain, got %v", err)
	}

	broken := core.SecretResolverFunc(func(context.Context, string) (string, error) {
		return "", errors.New("vault sealed")
	})
	chain = ChainSecretResolver{broken, second}
	if _, err := chain.ResolveSecret(ctx, "b"); err == nil || err.Error() != "vault sealed" {
		t.Fatalf("expected hard failure to stop the chain, got %v", err)
	}
}
