// Package core holds the ingress domain: endpoint configuration, delivery
// and ledger types, the store and handler contracts, and the error envelopes
// every other package maps failures onto. It depends on no transport or
// storage adapter.
package core
