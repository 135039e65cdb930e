// Package inbound converts HTTP deliveries into core.InboundRequest values and
// writes processing results back as JSON. The body is read once, bounded, and
// passed through unmodified so signatures verify over the exact bytes sent.
package inbound
