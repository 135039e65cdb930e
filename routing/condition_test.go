package routing

import (
	"testing"

	"github.com/goliatone/go-ingress/core"
)

func TestEvaluateCondition(t *testing.T) {
	payload := decodePayload(t, `{
		"amount": 1000,
		"ratio": 0.5,
		"status": "c",
		"name": "beta",
		"active": true,
		"deleted_at": null,
		"tags": ["x", "y"],
		"data": {"object": {"currency": "usd"}}
	}`)

	cases := []struct {
		expr string
		want bool
	}{
		{"amount > 500", true},
		{"amount >= 1000", true},
		{"amount < 1000", false},
		{"amount <= 1000.0", true},
		{"amount == 1000", true},
		{"amount == 1000.0", true},
		{"amount != 1000", false},
		{"ratio < 1", true},
		{"status in ['a','b']", false},
		{"status in ['a', 'c']", true},
		{`status in ["c"]`, true},
		{"amount in [10, 1000]", true},
		{"status in []", false},
		{"status == 'c'", true},
		{`status == "c"`, true},
		{"status != 'c'", false},
		{"name > 'alpha'", true},
		{"name < 'alpha'", false},
		{"active == true", true},
		{"active == TRUE", true},
		{"active != false", true},
		{"deleted_at == null", true},
		{"amount == null", false},
		{"amount == '1000'", false},
		{"amount != '1000'", true},
		{"status > 5", false},
		{"active > 0", false},
		{"tags == 'x'", false},
		{"data.object.currency == 'usd'", true},
		{"name == 'x in y'", false},
		{"name=='beta'", true},
	}
	for _, tc := range cases {
		got, err := EvaluateCondition(tc.expr, payload)
		if err != nil {
			t.Fatalf("%q: unexpected error %v", tc.expr, err)
		}
		if got != tc.want {
			t.Fatalf("%q: expected %v, got %v", tc.expr, tc.want, got)
		}
	}
}

func TestEvaluateCondition_MissingPathIsError(t *testing.T) {
	payload := decodePayload(t, `{"status": "a"}`)
	for _, expr := range []string{"missing == 'x'", "missing > 1", "missing in [1]"} {
		_, err := EvaluateCondition(expr, payload)
		if err == nil {
			t.Fatalf("%q: expected path not found error", expr)
		}
		if !core.HasTextCode(err, core.ErrorPathNotFound) {
			t.Fatalf("%q: expected %s, got %v", expr, core.ErrorPathNotFound, err)
		}
	}
}

func TestParseCondition_InvalidSyntax(t *testing.T) {
	for _, expr := range []string{
		"",
		"amount",
		"amount = 5",
		"amount ~ 5",
		"== 5",
		"amount >",
		"status == active",
		"status == 'open",
		"status in 'a'",
		"status in [1,,2]",
		"a b == 1",
	} {
		_, err := ParseCondition(expr)
		if err == nil {
			t.Fatalf("%q: expected syntax error", expr)
		}
		if !core.HasTextCode(err, core.ErrorConditionInvalidSyntax) {
			t.Fatalf("%q: expected %s, got %v", expr, core.ErrorConditionInvalidSyntax, err)
		}
	}
}

func TestParseCondition_LiteralOrder(t *testing.T) {
	cases := []struct {
		expr string
		want any
	}{
		{"a == '42'", "42"},
		{"a == 42", int64(42)},
		{"a == -7", int64(-7)},
		{"a == 4.5", 4.5},
		{"a == false", false},
		{"a == null", nil},
	}
	for _, tc := range cases {
		condition, err := ParseCondition(tc.expr)
		if err != nil {
			t.Fatalf("%q: parse: %v", tc.expr, err)
		}
		if condition.Value != tc.want {
			t.Fatalf("%q: expected literal %#v, got %#v", tc.expr, tc.want, condition.Value)
		}
	}
}

func TestValidateConfig_RejectsBadCondition(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Endpoints["github"] = core.WebhookConfig{
		Provider:  "github",
		SecretRef: "github_secret",
		Routes: map[string]core.EventRoute{
			"push": {Target: "sql:handle_push", Condition: "ref = 'main'"},
		},
	}
	if err := ValidateConfig(cfg); err == nil {
		t.Fatalf("expected invalid condition to fail validation")
	}

	cfg.Endpoints["github"].Routes["push"] = core.EventRoute{Target: "sql:handle_push", Condition: "ref == 'refs/heads/main'"}
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("expected valid condition, got %v", err)
	}
}
