package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-ingress/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

// JobHandler turns a routed event into a go-job execution. Targets look like
// "job:<job id>". The idempotency key is provider:event_id so a redelivery
// after a rolled back transaction enqueues the same logical job.
type JobHandler struct {
	Enqueuer   queue.Enqueuer
	ScriptPath string
}

func NewJobHandler(enqueuer queue.Enqueuer) *JobHandler {
	return &JobHandler{Enqueuer: enqueuer}
}

func (h *JobHandler) Handle(ctx context.Context, inv core.HandlerInvocation) (core.HandlerResult, error) {
	if h == nil || h.Enqueuer == nil {
		return core.HandlerResult{}, core.ErrHandlerNotFound(inv.Target)
	}
	_, jobID := SplitTarget(inv.Target)
	if jobID == "" {
		return core.HandlerResult{}, core.ErrConfigInvalid(fmt.Sprintf("job target %q has no job id", inv.Target))
	}
	msg := ExecutionMessage(jobID, inv)
	msg.ScriptPath = strings.TrimSpace(h.ScriptPath)
	receipt, err := h.Enqueuer.Enqueue(ctx, msg)
	if err != nil {
		return core.HandlerResult{}, fmt.Errorf("handlers: enqueue %s: %w", jobID, err)
	}
	data := map[string]any{
		"job_id":          jobID,
		"idempotency_key": msg.IdempotencyKey,
	}
	if receipt.DispatchID != "" {
		data["dispatch_id"] = receipt.DispatchID
	}
	return core.HandlerResult{Success: true, Data: data}, nil
}

// ExecutionMessage builds the go-job message for one invocation. Mapped params
// are copied and the delivery identity is added under "webhook".
func ExecutionMessage(jobID string, inv core.HandlerInvocation) *job.ExecutionMessage {
	params := make(map[string]any, len(inv.Params)+1)
	for key, value := range inv.Params {
		params[key] = value
	}
	params["webhook"] = map[string]any{
		"provider":   inv.Provider,
		"endpoint":   inv.Endpoint,
		"event_id":   inv.EventID,
		"event_type": inv.EventType,
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(jobID),
		Parameters:     params,
		IdempotencyKey: inv.Provider + ":" + inv.EventID,
	}
}

var _ core.EventHandler = (*JobHandler)(nil)
