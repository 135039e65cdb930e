// Package webhooks verifies inbound deliveries and drives them through the
// idempotency ledger.
//
// A delivery is authenticated before any storage access. Once verified, the
// ledger insert, the routed handler and the final status update share one
// transaction: a handler error rolls back all three, so the provider's retry
// is processed as a fresh delivery.
package webhooks
