package webhooks

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-ingress/core"
	"github.com/goliatone/go-ingress/routing"
)

// IdentityTemplate says where a provider carries the event id and type.
type IdentityTemplate struct {
	EventIDHeader   string
	EventIDPath     string
	EventTypeHeader string
	EventTypePath   string
}

type EventIdentity struct {
	EventID   string
	EventType string
}

var providerIdentityTemplates = map[string]IdentityTemplate{
	"github":    {EventIDHeader: "X-GitHub-Delivery", EventTypeHeader: "X-GitHub-Event"},
	"stripe":    {EventIDPath: "id", EventTypePath: "type"},
	"shopify":   {EventIDHeader: "X-Shopify-Webhook-Id", EventTypeHeader: "X-Shopify-Topic"},
	"gitlab":    {EventIDHeader: "X-Gitlab-Event-UUID", EventTypeHeader: "X-Gitlab-Event"},
	"meta":      {EventIDPath: "entry.0.id", EventTypePath: "object"},
	"pinterest": {EventIDHeader: "X-Pinterest-Delivery-Id", EventTypePath: "event_type"},
}

var fallbackIdentityTemplate = IdentityTemplate{EventIDPath: "id", EventTypePath: "type"}

// IdentityTemplateFor returns the provider defaults overlaid with any
// endpoint overrides.
func IdentityTemplateFor(cfg core.WebhookConfig) IdentityTemplate {
	template, ok := providerIdentityTemplates[strings.ToLower(strings.TrimSpace(cfg.Provider))]
	if !ok {
		template = fallbackIdentityTemplate
	}
	if header := strings.TrimSpace(cfg.EventIDHeader); header != "" {
		template.EventIDHeader, template.EventIDPath = header, ""
	}
	if path := strings.TrimSpace(cfg.EventIDPath); path != "" {
		template.EventIDPath, template.EventIDHeader = path, ""
	}
	if header := strings.TrimSpace(cfg.EventTypeHeader); header != "" {
		template.EventTypeHeader, template.EventTypePath = header, ""
	}
	if path := strings.TrimSpace(cfg.EventTypePath); path != "" {
		template.EventTypePath, template.EventTypeHeader = path, ""
	}
	return template
}

// ResolveIdentity extracts the event id and type from a verified delivery.
// A missing event type is allowed and routes to a skip.
func ResolveIdentity(cfg core.WebhookConfig, headers map[string]string, payload any) (EventIdentity, error) {
	template := IdentityTemplateFor(cfg)
	identity := EventIdentity{
		EventID:   identityValue(template.EventIDHeader, template.EventIDPath, headers, payload),
		EventType: identityValue(template.EventTypeHeader, template.EventTypePath, headers, payload),
	}
	if identity.EventID == "" {
		source := template.EventIDHeader
		if source == "" {
			source = template.EventIDPath
		}
		return EventIdentity{}, core.ErrEventIDMissing(source)
	}
	return identity, nil
}

func identityValue(header, path string, headers map[string]string, payload any) string {
	if header != "" {
		return headerValue(headers, header)
	}
	if path == "" {
		return ""
	}
	value, ok := routing.ExtractPath(payload, path)
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return typed.String()
	case map[string]any, []any:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(typed))
	}
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
