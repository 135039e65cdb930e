package routing

import (
	"context"
	"strings"

	"github.com/goliatone/go-ingress/core"

	goerrors "github.com/goliatone/go-errors"
)

type Request struct {
	Provider  string
	Endpoint  string
	EventID   string
	EventType string
	Payload   any
	Routes    map[string]core.EventRoute
	Tx        core.Tx
}

type Result struct {
	Outcome core.EventOutcome
	Target  string
	Params  map[string]any
	Handler core.HandlerResult
}

// Router dispatches an event to its configured route. Missing routes and
// false conditions are skips, not errors.
type Router struct {
	Handler core.EventHandler
}

func NewRouter(handler core.EventHandler) *Router {
	return &Router{Handler: handler}
}

func (r *Router) Route(ctx context.Context, req Request) (Result, error) {
	route, ok := req.Routes[req.EventType]
	if !ok {
		return Result{Outcome: core.EventOutcomeSkippedNoRoute}, nil
	}
	target := strings.TrimSpace(route.Target)

	if condition := strings.TrimSpace(route.Condition); condition != "" {
		matched, err := EvaluateCondition(condition, req.Payload)
		if err != nil {
			return Result{Target: target}, err
		}
		if !matched {
			return Result{Outcome: core.EventOutcomeSkippedCondition, Target: target}, nil
		}
	}

	params, err := ApplyMapping(req.Payload, route.Mapping)
	if err != nil {
		return Result{Target: target}, err
	}

	if r == nil || r.Handler == nil {
		return Result{Target: target, Params: params}, core.ErrHandlerNotFound(target)
	}
	handled, err := r.Handler.Handle(ctx, core.HandlerInvocation{
		Target:    target,
		Params:    params,
		Provider:  req.Provider,
		Endpoint:  req.Endpoint,
		EventID:   req.EventID,
		EventType: req.EventType,
		Tx:        req.Tx,
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return Result{Target: target, Params: params}, err
		}
		return Result{Target: target, Params: params}, core.ErrHandlerFailed(target, err)
	}

	outcome := core.EventOutcomeHandled
	if !handled.Success {
		outcome = core.EventOutcomeRejected
	}
	return Result{Outcome: outcome, Target: target, Params: params, Handler: handled}, nil
}
