package webhooks

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"hash"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-ingress/core"
)

const DefaultTimestampTolerance = 5 * time.Minute

// SignatureVerifier authenticates one delivery for one provider scheme.
// Verify returns false for a well-formed signature that does not match and
// an error for structural problems.
type SignatureVerifier interface {
	Name() string
	Header() string
	Verify(payload []byte, signature, secret, timestamp string) (bool, error)
	ExtractTimestamp(signature string) (time.Time, bool)
}

// TolerantVerifier is implemented by schemes with a freshness window that an
// endpoint may override.
type TolerantVerifier interface {
	WithTolerance(tolerance time.Duration) SignatureVerifier
}

// TimestampHeaderVerifier is implemented by schemes that read the signing
// timestamp from a separate header.
type TimestampHeaderVerifier interface {
	TimestampHeader() string
}

type HMACVerifier struct {
	SchemeName      string
	SignatureHeader string
	Prefix          string
}

func (v HMACVerifier) Name() string { return v.SchemeName }

func (v HMACVerifier) Header() string { return v.SignatureHeader }

func (v HMACVerifier) Verify(payload []byte, signature, secret, _ string) (bool, error) {
	prefix := v.Prefix
	if prefix == "" {
		prefix = "sha256="
	}
	if !strings.HasPrefix(signature, prefix) {
		return false, core.ErrSignatureInvalidFormat(v.SchemeName, "missing "+prefix+" prefix")
	}
	expected := hex.EncodeToString(computeMAC(sha256.New, secret, payload))
	return constantTimeEqual(expected, strings.TrimPrefix(signature, prefix)), nil
}

func (HMACVerifier) ExtractTimestamp(string) (time.Time, bool) { return time.Time{}, false }

// TimestampedHMACVerifier handles `t=<unix>,v1=<hex>` signatures where the
// MAC covers "<t>.<body>". Several v1 values may be present during secret
// rotation; any match is accepted.
type TimestampedHMACVerifier struct {
	SchemeName      string
	SignatureHeader string
	Tolerance       time.Duration
	Now             func() time.Time
}

func (v TimestampedHMACVerifier) Name() string { return v.SchemeName }

func (v TimestampedHMACVerifier) Header() string { return v.SignatureHeader }

func (v TimestampedHMACVerifier) WithTolerance(tolerance time.Duration) SignatureVerifier {
	v.Tolerance = tolerance
	return v
}

func (v TimestampedHMACVerifier) Verify(payload []byte, signature, secret, _ string) (bool, error) {
	parsed, err := parseTimestampedSignature(v.SchemeName, signature)
	if err != nil {
		return false, err
	}
	if err := checkFreshness(v.SchemeName, parsed.unix, v.now(), v.Tolerance); err != nil {
		return false, err
	}

	signed := make([]byte, 0, len(parsed.rawTimestamp)+1+len(payload))
	signed = append(signed, parsed.rawTimestamp...)
	signed = append(signed, '.')
	signed = append(signed, payload...)
	expected := hex.EncodeToString(computeMAC(sha256.New, secret, signed))

	matched := 0
	for _, candidate := range parsed.candidates {
		matched |= subtle.ConstantTimeCompare([]byte(expected), []byte(candidate))
	}
	return matched == 1, nil
}

func (v TimestampedHMACVerifier) ExtractTimestamp(signature string) (time.Time, bool) {
	parsed, err := parseTimestampedSignature(v.SchemeName, signature)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(parsed.unix, 0).UTC(), true
}

func (v TimestampedHMACVerifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

type Base64HMACVerifier struct {
	SchemeName      string
	SignatureHeader string
}

func (v Base64HMACVerifier) Name() string { return v.SchemeName }

func (v Base64HMACVerifier) Header() string { return v.SignatureHeader }

func (v Base64HMACVerifier) Verify(payload []byte, signature, secret, _ string) (bool, error) {
	if strings.TrimSpace(signature) == "" {
		return false, core.ErrSignatureInvalidFormat(v.SchemeName, "empty signature")
	}
	expected := base64.StdEncoding.EncodeToString(computeMAC(sha256.New, secret, payload))
	return constantTimeEqual(expected, signature), nil
}

func (Base64HMACVerifier) ExtractTimestamp(string) (time.Time, bool) { return time.Time{}, false }

// GenericHMACVerifier covers providers without a built-in scheme. When
// TimestampHeaderName is set the MAC covers "<timestamp>.<body>" and the
// timestamp must be fresh.
type GenericHMACVerifier struct {
	SchemeName          string
	SignatureHeader     string
	Algorithm           string // sha256 | sha1
	Prefix              string
	Encoding            string // hex | base64
	TimestampHeaderName string
	Tolerance           time.Duration
	Now                 func() time.Time
}

func (v GenericHMACVerifier) Name() string { return v.SchemeName }

func (v GenericHMACVerifier) Header() string { return v.SignatureHeader }

func (v GenericHMACVerifier) TimestampHeader() string { return v.TimestampHeaderName }

func (v GenericHMACVerifier) WithTolerance(tolerance time.Duration) SignatureVerifier {
	v.Tolerance = tolerance
	return v
}

func (v GenericHMACVerifier) Verify(payload []byte, signature, secret, timestamp string) (bool, error) {
	newHash, err := hashForAlgorithm(v.SchemeName, v.Algorithm)
	if err != nil {
		return false, err
	}
	if v.Prefix != "" && !strings.HasPrefix(signature, v.Prefix) {
		return false, core.ErrSignatureInvalidFormat(v.SchemeName, "missing "+v.Prefix+" prefix")
	}
	value := strings.TrimPrefix(signature, v.Prefix)
	if value == "" {
		return false, core.ErrSignatureInvalidFormat(v.SchemeName, "empty signature")
	}

	signed := payload
	if v.TimestampHeaderName != "" {
		timestamp = strings.TrimSpace(timestamp)
		if timestamp == "" {
			return false, core.ErrSignatureInvalidFormat(v.SchemeName, "missing timestamp")
		}
		unix, parseErr := strconv.ParseInt(timestamp, 10, 64)
		if parseErr != nil {
			return false, core.ErrSignatureInvalidFormat(v.SchemeName, "timestamp is not an integer")
		}
		if err := checkFreshness(v.SchemeName, unix, v.now(), v.Tolerance); err != nil {
			return false, err
		}
		signed = make([]byte, 0, len(timestamp)+1+len(payload))
		signed = append(signed, timestamp...)
		signed = append(signed, '.')
		signed = append(signed, payload...)
	}

	sum := computeMAC(newHash, secret, signed)
	var expected string
	switch strings.ToLower(strings.TrimSpace(v.Encoding)) {
	case "base64":
		expected = base64.StdEncoding.EncodeToString(sum)
	default:
		expected = hex.EncodeToString(sum)
	}
	return constantTimeEqual(expected, value), nil
}

func (GenericHMACVerifier) ExtractTimestamp(string) (time.Time, bool) { return time.Time{}, false }

func (v GenericHMACVerifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// TokenVerifier compares a shared token carried verbatim in a header.
type TokenVerifier struct {
	SchemeName      string
	SignatureHeader string
}

func (v TokenVerifier) Name() string { return v.SchemeName }

func (v TokenVerifier) Header() string { return v.SignatureHeader }

func (v TokenVerifier) Verify(_ []byte, signature, secret, _ string) (bool, error) {
	if strings.TrimSpace(signature) == "" {
		return false, core.ErrSignatureInvalidFormat(v.SchemeName, "empty token")
	}
	return constantTimeEqual(secret, signature), nil
}

func (TokenVerifier) ExtractTimestamp(string) (time.Time, bool) { return time.Time{}, false }

type timestampedSignature struct {
	rawTimestamp string
	unix         int64
	candidates   []string
}

func parseTimestampedSignature(scheme, signature string) (timestampedSignature, error) {
	out := timestampedSignature{}
	hasTimestamp := false
	for _, part := range strings.Split(signature, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "t":
			if hasTimestamp {
				continue
			}
			unix, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return timestampedSignature{}, core.ErrSignatureInvalidFormat(scheme, "timestamp is not an integer")
			}
			out.rawTimestamp = value
			out.unix = unix
			hasTimestamp = true
		case "v1":
			if value != "" {
				out.candidates = append(out.candidates, value)
			}
		}
	}
	if !hasTimestamp {
		return timestampedSignature{}, core.ErrSignatureInvalidFormat(scheme, "missing t field")
	}
	if len(out.candidates) == 0 {
		return timestampedSignature{}, core.ErrSignatureInvalidFormat(scheme, "missing v1 field")
	}
	return out, nil
}

// checkFreshness fails when |now - t| exceeds tolerance. The boundary itself
// is accepted.
func checkFreshness(scheme string, unix int64, now time.Time, tolerance time.Duration) error {
	if tolerance <= 0 {
		tolerance = DefaultTimestampTolerance
	}
	nowUnix := now.Unix()
	window := int64(tolerance / time.Second)
	if unix < nowUnix-window || unix > nowUnix+window {
		return core.ErrTimestampExpired(scheme, skewSeconds(nowUnix, unix))
	}
	return nil
}

// skewSeconds is |a - b|, saturating at math.MaxInt64.
func skewSeconds(a, b int64) int64 {
	if a < b {
		a, b = b, a
	}
	diff := a - b
	if diff < 0 {
		return math.MaxInt64
	}
	return diff
}

func hashForAlgorithm(scheme, algorithm string) (func() hash.Hash, error) {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "", "sha256", "sha-256":
		return sha256.New, nil
	case "sha1", "sha-1":
		return sha1.New, nil
	default:
		return nil, core.ErrConfigInvalid("unsupported hmac algorithm " + algorithm + " for " + scheme)
	}
}

func computeMAC(newHash func() hash.Hash, secret string, payload []byte) []byte {
	mac := hmac.New(newHash, []byte(secret))
	_, _ = mac.Write(payload)
	return mac.Sum(nil)
}

// constantTimeEqual compares encoded values. Lengths are not secret, so a
// length mismatch returns early without inspecting content.
func constantTimeEqual(expected, actual string) bool {
	return subtle.ConstantTimeCompare([]byte(expected), []byte(actual)) == 1
}
