package ingress

import (
	"time"

	"github.com/goliatone/go-ingress/handlers"
	"github.com/goliatone/go-ingress/webhooks"
	"github.com/goliatone/go-job/queue"
	"github.com/nats-io/nats.go"
)

// GitHubStyleVerifier registers a "sha256=<hex>" scheme under a new name, for
// providers that copied GitHub's signature format onto another header.
func GitHubStyleVerifier(name, header string) SignatureVerifier {
	return webhooks.HMACVerifier{SchemeName: name, SignatureHeader: header, Prefix: "sha256="}
}

func StripeStyleVerifier(name, header string, tolerance time.Duration) SignatureVerifier {
	if tolerance <= 0 {
		tolerance = webhooks.DefaultTimestampTolerance
	}
	return webhooks.TimestampedHMACVerifier{SchemeName: name, SignatureHeader: header, Tolerance: tolerance}
}

func ShopifyStyleVerifier(name, header string) SignatureVerifier {
	return webhooks.Base64HMACVerifier{SchemeName: name, SignatureHeader: header}
}

func TokenHeaderVerifier(name, header string) SignatureVerifier {
	return webhooks.TokenVerifier{SchemeName: name, SignatureHeader: header}
}

func GenericVerifier(cfg webhooks.GenericHMACVerifier) SignatureVerifier {
	return cfg
}

func StoredProcedureHandler() EventHandler {
	return handlers.NewStoredProcedureHandler()
}

func JobHandler(enqueuer queue.Enqueuer) EventHandler {
	return handlers.NewJobHandler(enqueuer)
}

func NATSHandler(conn *nats.Conn, opts ...handlers.NATSOption) (EventHandler, error) {
	handler, err := handlers.NewNATSHandler(conn, opts...)
	if err != nil {
		return nil, err
	}
	return handler, nil
}
