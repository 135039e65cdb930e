// Package handlers provides the EventHandler implementations routed events
// are dispatched to: a target mux, a stored procedure caller, a go-job
// enqueuer and a NATS publisher.
package handlers

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-ingress/core"
)

const (
	SchemeSQL  = "sql"
	SchemeJob  = "job"
	SchemeNATS = "nats"
)

// SplitTarget splits "scheme:name" targets. Targets without a colon have an
// empty scheme.
func SplitTarget(target string) (scheme, name string) {
	target = strings.TrimSpace(target)
	idx := strings.Index(target, ":")
	if idx <= 0 {
		return "", target
	}
	return strings.ToLower(strings.TrimSpace(target[:idx])), strings.TrimSpace(target[idx+1:])
}

// Mux dispatches invocations by target. Exact target registrations win over
// scheme registrations.
type Mux struct {
	mu      sync.RWMutex
	exact   map[string]core.EventHandler
	schemes map[string]core.EventHandler
}

func NewMux() *Mux {
	return &Mux{
		exact:   map[string]core.EventHandler{},
		schemes: map[string]core.EventHandler{},
	}
}

func (m *Mux) Register(target string, handler core.EventHandler) *Mux {
	target = strings.TrimSpace(target)
	if target == "" || handler == nil {
		return m
	}
	m.mu.Lock()
	m.exact[target] = handler
	m.mu.Unlock()
	return m
}

func (m *Mux) RegisterFunc(target string, fn func(context.Context, core.HandlerInvocation) (core.HandlerResult, error)) *Mux {
	if fn == nil {
		return m
	}
	return m.Register(target, core.EventHandlerFunc(fn))
}

// RegisterScheme routes every "scheme:<name>" target to handler.
func (m *Mux) RegisterScheme(scheme string, handler core.EventHandler) *Mux {
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	if scheme == "" || handler == nil {
		return m
	}
	m.mu.Lock()
	m.schemes[scheme] = handler
	m.mu.Unlock()
	return m
}

func (m *Mux) Lookup(target string) (core.EventHandler, bool) {
	target = strings.TrimSpace(target)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if handler, ok := m.exact[target]; ok {
		return handler, true
	}
	if scheme, _ := SplitTarget(target); scheme != "" {
		handler, ok := m.schemes[scheme]
		return handler, ok
	}
	return nil, false
}

// Targets lists exact targets and scheme patterns, sorted.
func (m *Mux) Targets() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.exact)+len(m.schemes))
	for target := range m.exact {
		out = append(out, target)
	}
	for scheme := range m.schemes {
		out = append(out, scheme+":*")
	}
	sort.Strings(out)
	return out
}

func (m *Mux) Handle(ctx context.Context, inv core.HandlerInvocation) (core.HandlerResult, error) {
	handler, ok := m.Lookup(inv.Target)
	if !ok {
		return core.HandlerResult{}, core.ErrHandlerNotFound(inv.Target)
	}
	return handler.Handle(ctx, inv)
}

var _ core.EventHandler = (*Mux)(nil)
