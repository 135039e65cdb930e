package webhooks

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-ingress/core"
)

func signHex(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func signBase64(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func stripeHeader(secret string, unix int64, payload []byte) string {
	signed := fmt.Sprintf("%d.%s", unix, payload)
	return fmt.Sprintf("t=%d,v1=%s", unix, signHex(secret, []byte(signed)))
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestHMACVerifier(t *testing.T) {
	body := []byte(`{"zen":"keep it logically awesome"}`)
	verifier := HMACVerifier{SchemeName: "github", SignatureHeader: "X-Hub-Signature-256"}

	ok, err := verifier.Verify(body, "sha256="+signHex("s3cret", body), "s3cret", "")
	if err != nil || !ok {
		t.Fatalf("expected valid signature, got ok=%v err=%v", ok, err)
	}

	ok, err = verifier.Verify(body, "sha256="+signHex("other", body), "s3cret", "")
	if err != nil || ok {
		t.Fatalf("expected mismatch without error, got ok=%v err=%v", ok, err)
	}

	_, err = verifier.Verify(body, signHex("s3cret", body), "s3cret", "")
	if !core.HasTextCode(err, core.ErrorSignatureInvalidFormat) {
		t.Fatalf("expected invalid format without prefix, got %v", err)
	}

	tampered := append([]byte{}, body...)
	tampered[2] = 'Z'
	ok, _ = verifier.Verify(tampered, "sha256="+signHex("s3cret", body), "s3cret", "")
	if ok {
		t.Fatalf("expected tampered body to fail")
	}
}

func TestTimestampedHMACVerifier(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"id":"evt_1","type":"charge.succeeded"}`)
	verifier := TimestampedHMACVerifier{SchemeName: "stripe", SignatureHeader: "Stripe-Signature", Tolerance: 300 * time.Second, Now: fixedClock(now)}

	ok, err := verifier.Verify(body, stripeHeader("whsec", now.Unix(), body), "whsec", "")
	if err != nil || !ok {
		t.Fatalf("expected fresh signature to verify, got ok=%v err=%v", ok, err)
	}

	ok, err = verifier.Verify(body, stripeHeader("whsec", now.Unix()-300, body), "whsec", "")
	if err != nil || !ok {
		t.Fatalf("expected boundary skew to be accepted, got ok=%v err=%v", ok, err)
	}

	_, err = verifier.Verify(body, stripeHeader("whsec", now.Unix()-301, body), "whsec", "")
	if !core.HasTextCode(err, core.ErrorTimestampExpired) {
		t.Fatalf("expected timestamp expired, got %v", err)
	}

	_, err = verifier.Verify(body, stripeHeader("whsec", now.Unix()+301, body), "whsec", "")
	if !core.HasTextCode(err, core.ErrorTimestampExpired) {
		t.Fatalf("expected future timestamp to expire, got %v", err)
	}
}

func TestTimestampedHMACVerifier_FreshnessCheckedBeforeMAC(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	verifier := TimestampedHMACVerifier{SchemeName: "stripe", Now: fixedClock(now)}
	header := fmt.Sprintf("t=%d,v1=deadbeef", now.Unix()-3600)

	_, err := verifier.Verify([]byte(`{}`), header, "whsec", "")
	if !core.HasTextCode(err, core.ErrorTimestampExpired) {
		t.Fatalf("expected stale timestamp to fail before MAC comparison, got %v", err)
	}
}

func TestTimestampedHMACVerifier_RotationCandidates(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"id":"evt_2"}`)
	verifier := TimestampedHMACVerifier{SchemeName: "stripe", Now: fixedClock(now)}
	signed := fmt.Sprintf("%d.%s", now.Unix(), body)
	header := fmt.Sprintf("t=%d,v1=%s,v1=%s", now.Unix(), signHex("old", []byte(signed)), signHex("new", []byte(signed)))

	ok, err := verifier.Verify(body, header, "new", "")
	if err != nil || !ok {
		t.Fatalf("expected any candidate to match, got ok=%v err=%v", ok, err)
	}
	ok, _ = verifier.Verify(body, header, "other", "")
	if ok {
		t.Fatalf("expected no candidate to match other secret")
	}
}

func TestTimestampedHMACVerifier_MalformedHeaders(t *testing.T) {
	verifier := TimestampedHMACVerifier{SchemeName: "stripe", Now: fixedClock(time.Unix(1_700_000_000, 0))}
	for _, header := range []string{
		"v1=abc",
		"t=1700000000",
		"t=abc,v1=abc",
		"garbage",
	} {
		_, err := verifier.Verify([]byte(`{}`), header, "whsec", "")
		if !core.HasTextCode(err, core.ErrorSignatureInvalidFormat) {
			t.Fatalf("%q: expected invalid format, got %v", header, err)
		}
	}
}

func TestTimestampedHMACVerifier_DefaultToleranceAndOverride(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{}`)
	verifier := TimestampedHMACVerifier{SchemeName: "stripe", Now: fixedClock(now)}

	ok, err := verifier.Verify(body, stripeHeader("whsec", now.Unix()-299, body), "whsec", "")
	if err != nil || !ok {
		t.Fatalf("expected default tolerance to accept 299s skew, got ok=%v err=%v", ok, err)
	}

	narrowed := verifier.WithTolerance(10 * time.Second)
	_, err = narrowed.Verify(body, stripeHeader("whsec", now.Unix()-11, body), "whsec", "")
	if !core.HasTextCode(err, core.ErrorTimestampExpired) {
		t.Fatalf("expected narrowed tolerance to reject 11s skew, got %v", err)
	}
}

func TestTimestampedHMACVerifier_ExtractTimestamp(t *testing.T) {
	verifier := TimestampedHMACVerifier{SchemeName: "stripe"}
	at, ok := verifier.ExtractTimestamp("t=1700000000,v1=abc")
	if !ok || at.Unix() != 1_700_000_000 {
		t.Fatalf("expected extracted timestamp, got %v %v", at, ok)
	}
	if _, ok := verifier.ExtractTimestamp("v1=abc"); ok {
		t.Fatalf("expected no timestamp without t field")
	}
	if _, ok := (HMACVerifier{}).ExtractTimestamp("sha256=abc"); ok {
		t.Fatalf("expected plain hmac scheme to carry no timestamp")
	}
}

func TestBase64HMACVerifier(t *testing.T) {
	body := []byte(`{"id":1}`)
	verifier := Base64HMACVerifier{SchemeName: "shopify", SignatureHeader: "X-Shopify-Hmac-Sha256"}

	ok, err := verifier.Verify(body, signBase64("shop", body), "shop", "")
	if err != nil || !ok {
		t.Fatalf("expected base64 signature to verify, got ok=%v err=%v", ok, err)
	}
	ok, _ = verifier.Verify(body, signBase64("other", body), "shop", "")
	if ok {
		t.Fatalf("expected mismatch")
	}
}

func TestGenericHMACVerifier(t *testing.T) {
	body := []byte(`{"action":"opened"}`)
	mac := hmac.New(sha1.New, []byte("legacy"))
	_, _ = mac.Write(body)
	sha1Sig := "sha1=" + hex.EncodeToString(mac.Sum(nil))

	legacy := GenericHMACVerifier{SchemeName: "github-sha1", Algorithm: "sha1", Prefix: "sha1="}
	ok, err := legacy.Verify(body, sha1Sig, "legacy", "")
	if err != nil || !ok {
		t.Fatalf("expected sha1 signature to verify, got ok=%v err=%v", ok, err)
	}

	now := time.Unix(1_700_000_000, 0)
	stamped := GenericHMACVerifier{
		SchemeName:          "acme",
		Encoding:            "base64",
		TimestampHeaderName: "X-Acme-Timestamp",
		Tolerance:           time.Minute,
		Now:                 fixedClock(now),
	}
	timestamp := fmt.Sprintf("%d", now.Unix())
	signature := signBase64("acme", []byte(timestamp+"."+string(body)))
	ok, err = stamped.Verify(body, signature, "acme", timestamp)
	if err != nil || !ok {
		t.Fatalf("expected timestamped generic signature to verify, got ok=%v err=%v", ok, err)
	}

	_, err = stamped.Verify(body, signature, "acme", "")
	if !core.HasTextCode(err, core.ErrorSignatureInvalidFormat) {
		t.Fatalf("expected missing timestamp to be malformed, got %v", err)
	}

	stale := fmt.Sprintf("%d", now.Unix()-61)
	_, err = stamped.Verify(body, signBase64("acme", []byte(stale+"."+string(body))), "acme", stale)
	if !core.HasTextCode(err, core.ErrorTimestampExpired) {
		t.Fatalf("expected stale generic timestamp to expire, got %v", err)
	}

	_, err = GenericHMACVerifier{SchemeName: "x", Algorithm: "md5"}.Verify(body, "abc", "s", "")
	if !core.HasTextCode(err, core.ErrorConfigInvalid) {
		t.Fatalf("expected unsupported algorithm to be a config error, got %v", err)
	}
}

func TestTokenVerifier(t *testing.T) {
	verifier := TokenVerifier{SchemeName: "gitlab", SignatureHeader: "X-Gitlab-Token"}
	ok, err := verifier.Verify(nil, "token-1", "token-1", "")
	if err != nil || !ok {
		t.Fatalf("expected token to match, got ok=%v err=%v", ok, err)
	}
	ok, _ = verifier.Verify(nil, "token-2", "token-1", "")
	if ok {
		t.Fatalf("expected token mismatch")
	}
}

func TestVerifiers_ExtremeTimestampsExpire(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"id":"evt_1"}`)
	extremes := []int64{
		math.MinInt64 + now.Unix(),
		math.MinInt64,
		math.MaxInt64,
		now.Unix() + math.MaxInt64/2,
	}

	stripe := TimestampedHMACVerifier{SchemeName: "stripe", Tolerance: 300 * time.Second, Now: fixedClock(now)}
	generic := GenericHMACVerifier{
		SchemeName:          "acme",
		Encoding:            "base64",
		TimestampHeaderName: "X-Acme-Timestamp",
		Tolerance:           300 * time.Second,
		Now:                 fixedClock(now),
	}

	for _, unix := range extremes {
		ok, err := stripe.Verify(body, stripeHeader("whsec", unix, body), "whsec", "")
		if ok || !core.HasTextCode(err, core.ErrorTimestampExpired) {
			t.Fatalf("t=%d: expected timestamp expired, got ok=%v err=%v", unix, ok, err)
		}

		ts := strconv.FormatInt(unix, 10)
		signature := signBase64("whsec", []byte(ts+"."+string(body)))
		ok, err = generic.Verify(body, signature, "whsec", ts)
		if ok || !core.HasTextCode(err, core.ErrorTimestampExpired) {
			t.Fatalf("generic t=%d: expected timestamp expired, got ok=%v err=%v", unix, ok, err)
		}
	}
}

func TestSkewSeconds(t *testing.T) {
	cases := []struct {
		a, b int64
		want int64
	}{
		{100, 40, 60},
		{40, 100, 60},
		{1_700_000_000, math.MinInt64 + 1_700_000_000, math.MaxInt64},
		{math.MaxInt64, math.MinInt64, math.MaxInt64},
		{0, math.MinInt64 + 1, math.MaxInt64},
	}
	for _, tc := range cases {
		if got := skewSeconds(tc.a, tc.b); got != tc.want {
			t.Fatalf("skewSeconds(%d, %d) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

// flipEncodedChar swaps the character at idx for another character from the
// same hex/base64 alphabet so the signature stays well formed.
func flipEncodedChar(s string, idx int) string {
	replacement := byte('a')
	if s[idx] == 'a' {
		replacement = 'b'
	}
	return s[:idx] + string(replacement) + s[idx+1:]
}

func TestVerifiers_SingleByteMutationsFail(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"action":"opened","number":42}`)
	secret := "s3cret"
	ts := strconv.FormatInt(now.Unix(), 10)

	type scheme struct {
		name      string
		verifier  SignatureVerifier
		sign      func(payload []byte) string
		timestamp string
		sigOffset func(signature string) int
	}
	prefixed := func(prefix string) func(string) int {
		return func(string) int { return len(prefix) }
	}

	schemes := []scheme{
		{
			name:      "github",
			verifier:  HMACVerifier{SchemeName: "github"},
			sign:      func(p []byte) string { return "sha256=" + signHex(secret, p) },
			sigOffset: prefixed("sha256="),
		},
		{
			name:     "stripe",
			verifier: TimestampedHMACVerifier{SchemeName: "stripe", Tolerance: 300 * time.Second, Now: fixedClock(now)},
			sign:     func(p []byte) string { return stripeHeader(secret, now.Unix(), p) },
			sigOffset: func(signature string) int {
				return strings.Index(signature, "v1=") + len("v1=")
			},
		},
		{
			name:      "shopify",
			verifier:  Base64HMACVerifier{SchemeName: "shopify"},
			sign:      func(p []byte) string { return signBase64(secret, p) },
			sigOffset: prefixed(""),
		},
		{
			name:      "generic-hex",
			verifier:  GenericHMACVerifier{SchemeName: "generic-hex", Prefix: "sha256="},
			sign:      func(p []byte) string { return "sha256=" + signHex(secret, p) },
			sigOffset: prefixed("sha256="),
		},
		{
			name: "generic-base64",
			verifier: GenericHMACVerifier{
				SchemeName:          "generic-base64",
				Encoding:            "base64",
				TimestampHeaderName: "X-Acme-Timestamp",
				Tolerance:           time.Minute,
				Now:                 fixedClock(now),
			},
			sign:      func(p []byte) string { return signBase64(secret, []byte(ts+"."+string(p))) },
			timestamp: ts,
			sigOffset: prefixed(""),
		},
	}

	for _, sc := range schemes {
		t.Run(sc.name, func(t *testing.T) {
			signature := sc.sign(body)
			ok, err := sc.verifier.Verify(body, signature, secret, sc.timestamp)
			if err != nil || !ok {
				t.Fatalf("expected valid signature, got ok=%v err=%v", ok, err)
			}

			for i := range body {
				mutated := append([]byte{}, body...)
				mutated[i] ^= 0x01
				ok, err := sc.verifier.Verify(mutated, signature, secret, sc.timestamp)
				if err != nil || ok {
					t.Fatalf("body byte %d: expected false, nil; got ok=%v err=%v", i, ok, err)
				}
			}

			start := sc.sigOffset(signature)
			for _, idx := range []int{start, start + 1, start + 16} {
				mutated := flipEncodedChar(signature, idx)
				ok, err := sc.verifier.Verify(body, mutated, secret, sc.timestamp)
				if err != nil || ok {
					t.Fatalf("signature char %d: expected false, nil; got ok=%v err=%v", idx, ok, err)
				}
			}
		})
	}
}
