package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// EnvelopePrefix marks a secret value sealed by AppKeyCipher.
const EnvelopePrefix = "ingress.secret.v1:"

const envelopeAlgorithm = "aes-256-gcm"

type envelope struct {
	KeyID      string `json:"kid"`
	Algorithm  string `json:"alg"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// AppKeyCipher seals webhook secrets at rest with an application key so
// config files and environment variables never carry them in clear text.
type AppKeyCipher struct {
	key   []byte
	keyID string
}

type CipherOption func(*AppKeyCipher)

func WithKeyID(id string) CipherOption {
	return func(c *AppKeyCipher) {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			c.keyID = trimmed
		}
	}
}

func NewAppKeyCipher(keyMaterial []byte, opts ...CipherOption) (*AppKeyCipher, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	c := &AppKeyCipher{key: normalizeKey(key), keyID: "app-key"}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

func (c *AppKeyCipher) KeyID() string {
	if c == nil {
		return ""
	}
	return c.keyID
}

// Seal returns EnvelopePrefix followed by a JSON envelope.
func (c *AppKeyCipher) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("security: plaintext is required")
	}
	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("security: nonce generation failed: %w", err)
	}
	data, err := json.Marshal(envelope{
		KeyID:      c.keyID,
		Algorithm:  envelopeAlgorithm,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, []byte(plaintext), nil)),
	})
	if err != nil {
		return "", fmt.Errorf("security: encode envelope: %w", err)
	}
	return EnvelopePrefix + string(data), nil
}

func (c *AppKeyCipher) Open(sealed string) (string, error) {
	parsed, err := parseEnvelope(sealed)
	if err != nil {
		return "", err
	}
	if parsed.KeyID != "" && parsed.KeyID != c.keyID {
		return "", fmt.Errorf("security: key id mismatch: got %q want %q", parsed.KeyID, c.keyID)
	}
	nonce, err := base64.StdEncoding.DecodeString(parsed.Nonce)
	if err != nil {
		return "", fmt.Errorf("security: decode nonce: %w", err)
	}
	payload, err := base64.StdEncoding.DecodeString(parsed.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("security: decode ciphertext: %w", err)
	}
	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, nonce, payload, nil)
	if err != nil {
		return "", fmt.Errorf("security: decrypt secret: %w", err)
	}
	return string(plaintext), nil
}

func (c *AppKeyCipher) gcm() (cipher.AEAD, error) {
	if c == nil {
		return nil, fmt.Errorf("security: cipher is nil")
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return gcm, nil
}

// IsSealed reports whether value carries the envelope prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), EnvelopePrefix)
}

func parseEnvelope(sealed string) (envelope, error) {
	payload := strings.TrimSpace(sealed)
	if !strings.HasPrefix(payload, EnvelopePrefix) {
		return envelope{}, fmt.Errorf("security: invalid secret envelope prefix")
	}
	var parsed envelope
	if err := json.Unmarshal([]byte(strings.TrimPrefix(payload, EnvelopePrefix)), &parsed); err != nil {
		return envelope{}, fmt.Errorf("security: decode envelope: %w", err)
	}
	if alg := strings.ToLower(strings.TrimSpace(parsed.Algorithm)); alg != "" && alg != envelopeAlgorithm {
		return envelope{}, fmt.Errorf("security: unsupported envelope algorithm %q", parsed.Algorithm)
	}
	if parsed.Ciphertext == "" {
		return envelope{}, fmt.Errorf("security: envelope ciphertext is empty")
	}
	return parsed, nil
}

// normalizeKey keeps AES-sized keys and hashes anything else to 32 bytes.
func normalizeKey(value []byte) []byte {
	switch len(value) {
	case 16, 24, 32:
		return append([]byte(nil), value...)
	}
	sum := sha256.Sum256(value)
	return sum[:]
}
