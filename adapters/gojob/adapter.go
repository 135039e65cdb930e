// Package gojob consumes the go-job executions enqueued by job route targets
// and schedules ledger retention as a job.
package gojob

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	gocmd "github.com/goliatone/go-command"
	ingresscommand "github.com/goliatone/go-ingress/command"
	"github.com/goliatone/go-ingress/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

const JobIDPurgeEventRecords = "ingress.event_records.purge"

// RetryPolicy bounds redelivery of failed executions.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt clamps the delay and turns a retry into a terminal
// disposition once attempt reaches MaxAttempts: dead_letter when
// DeadLetterOnMax is set, failed otherwise. An empty disposition is a retry.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Disposition == "" {
		out.Disposition = queue.NackDispositionRetry
	}
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.Disposition == queue.NackDispositionRetry && p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Disposition = queue.NackDispositionFailed
		if p.DeadLetterOnMax {
			out.Disposition = queue.NackDispositionDeadLetter
		}
	}
	if out.Disposition != queue.NackDispositionRetry {
		out.Delay = 0
	}
	return out
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 || attempt <= 0 {
		return 0
	}
	return p.BaseDelay * time.Duration(1<<min(attempt-1, 16))
}

// RoutedJob is the delivery carried by an execution message built for a
// "job:<id>" route target.
type RoutedJob struct {
	JobID          string
	Provider       string
	Endpoint       string
	EventID        string
	EventType      string
	IdempotencyKey string
	Params         map[string]any
}

// DecodeRoutedJob reverses handlers.ExecutionMessage.
func DecodeRoutedJob(msg *job.ExecutionMessage) (RoutedJob, error) {
	if msg == nil {
		return RoutedJob{}, fmt.Errorf("gojob: execution message is required")
	}
	params := make(map[string]any, len(msg.Parameters))
	for key, value := range msg.Parameters {
		params[key] = value
	}
	webhook, _ := params["webhook"].(map[string]any)
	delete(params, "webhook")
	routed := RoutedJob{
		JobID:          strings.TrimSpace(msg.JobID),
		Provider:       stringValue(webhook, "provider"),
		Endpoint:       stringValue(webhook, "endpoint"),
		EventID:        stringValue(webhook, "event_id"),
		EventType:      stringValue(webhook, "event_type"),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		Params:         params,
	}
	if routed.Provider == "" || routed.EventID == "" {
		return RoutedJob{}, fmt.Errorf("gojob: message %s carries no webhook identity", routed.JobID)
	}
	return routed, nil
}

// PurgeMessage schedules a retention run for records older than olderThan.
func PurgeMessage(olderThan time.Duration) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID:      JobIDPurgeEventRecords,
		Parameters: map[string]any{"older_than": olderThan.String()},
	}
}

// PurgeJob runs the purge command for a PurgeMessage execution.
func PurgeJob(cmd *ingresscommand.PurgeEventRecordsCommand, logger core.Logger) JobFunc {
	logger = glog.Ensure(logger)
	return func(ctx context.Context, msg *job.ExecutionMessage) error {
		purge := ingresscommand.PurgeEventRecordsMessage{}
		if raw := stringValue(msg.Parameters, "older_than"); raw != "" {
			olderThan, err := time.ParseDuration(raw)
			if err != nil {
				return fmt.Errorf("gojob: invalid older_than %q: %w", raw, err)
			}
			purge.OlderThan = olderThan
		}
		collector := gocmd.NewResult[ingresscommand.PurgeResult]()
		if err := cmd.Execute(gocmd.ContextWithResult(ctx, collector), purge); err != nil {
			return err
		}
		if result, ok := collector.Load(); ok {
			logger.Info("event records purged", "before", result.Before, "deleted", result.Deleted)
		}
		return nil
	}
}

type JobFunc func(ctx context.Context, msg *job.ExecutionMessage) error

// RoutedJobFunc adapts a handler of decoded routed jobs.
func RoutedJobFunc(fn func(ctx context.Context, routed RoutedJob) error) JobFunc {
	return func(ctx context.Context, msg *job.ExecutionMessage) error {
		routed, err := DecodeRoutedJob(msg)
		if err != nil {
			return err
		}
		return fn(ctx, routed)
	}
}

// Consumer pulls executions from a go-job dequeuer and runs the JobFunc
// registered for the message's job id. Attempts are counted per idempotency
// key, or per job id when the message has none.
type Consumer struct {
	dequeuer queue.Dequeuer
	policy   RetryPolicy
	hook     worker.Hook
	now      func() time.Time

	mu       sync.Mutex
	jobs     map[string]JobFunc
	attempts map[string]int
}

type ConsumerOption func(*Consumer)

func WithHook(hook worker.Hook) ConsumerOption {
	return func(c *Consumer) {
		c.hook = hook
	}
}

func WithConsumerClock(now func() time.Time) ConsumerOption {
	return func(c *Consumer) {
		c.now = now
	}
}

func NewConsumer(dequeuer queue.Dequeuer, policy RetryPolicy, opts ...ConsumerOption) *Consumer {
	consumer := &Consumer{
		dequeuer: dequeuer,
		policy:   policy,
		now:      time.Now,
		jobs:     map[string]JobFunc{},
		attempts: map[string]int{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(consumer)
		}
	}
	return consumer
}

func (c *Consumer) Handle(jobID string, fn JobFunc) {
	c.mu.Lock()
	c.jobs[strings.TrimSpace(jobID)] = fn
	c.mu.Unlock()
}

// RunOnce processes a single delivery. Handler failures are settled with a
// nack and not returned; only queue errors are.
func (c *Consumer) RunOnce(ctx context.Context) error {
	if c == nil || c.dequeuer == nil {
		return fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := c.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}
	msg := delivery.Message()
	if msg == nil {
		return delivery.Nack(ctx, queue.NackOptions{Disposition: queue.NackDispositionDeadLetter, Reason: "empty message"})
	}

	c.mu.Lock()
	fn, ok := c.jobs[strings.TrimSpace(msg.JobID)]
	c.mu.Unlock()
	if !ok {
		return delivery.Nack(ctx, queue.NackOptions{Disposition: queue.NackDispositionDeadLetter, Reason: "no handler for " + msg.JobID})
	}

	key := attemptKey(msg)
	attempt := c.nextAttempt(key)
	event := worker.Event{Message: msg, Delivery: delivery, Attempt: attempt, StartedAt: c.now()}
	c.onStart(ctx, event)

	runErr := fn(ctx, msg)
	event.Duration = c.now().Sub(event.StartedAt)
	if runErr == nil {
		c.reset(key)
		c.onSuccess(ctx, event)
		return delivery.Ack(ctx)
	}

	event.Err = runErr
	opts := c.policy.NormalizeAttempt(queue.NackOptions{
		Disposition: queue.NackDispositionRetry,
		Delay:       c.policy.delay(attempt),
		Reason:      runErr.Error(),
	}, attempt)
	event.Delay = opts.Delay
	if opts.Disposition == queue.NackDispositionRetry {
		c.onRetry(ctx, event)
	} else {
		c.reset(key)
		c.onFailure(ctx, event)
	}
	return delivery.Nack(ctx, opts)
}

// Run loops RunOnce until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := c.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (c *Consumer) nextAttempt(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts[key]++
	return c.attempts[key]
}

func (c *Consumer) reset(key string) {
	c.mu.Lock()
	delete(c.attempts, key)
	c.mu.Unlock()
}

func (c *Consumer) onStart(ctx context.Context, event worker.Event) {
	if c.hook != nil {
		c.hook.OnStart(ctx, event)
	}
}

func (c *Consumer) onSuccess(ctx context.Context, event worker.Event) {
	if c.hook != nil {
		c.hook.OnSuccess(ctx, event)
	}
}

func (c *Consumer) onFailure(ctx context.Context, event worker.Event) {
	if c.hook != nil {
		c.hook.OnFailure(ctx, event)
	}
}

func (c *Consumer) onRetry(ctx context.Context, event worker.Event) {
	if c.hook != nil {
		c.hook.OnRetry(ctx, event)
	}
}

// LoggingHook logs worker lifecycle events without message parameters.
type LoggingHook struct {
	logger core.Logger
}

func NewLoggingHook(logger core.Logger) *LoggingHook {
	return &LoggingHook{logger: glog.Ensure(logger)}
}

func (h *LoggingHook) OnStart(_ context.Context, event worker.Event) {
	h.logger.Debug("job started", eventFields(event)...)
}

func (h *LoggingHook) OnSuccess(_ context.Context, event worker.Event) {
	h.logger.Info("job succeeded", eventFields(event)...)
}

func (h *LoggingHook) OnFailure(_ context.Context, event worker.Event) {
	h.logger.Error("job failed", eventFields(event)...)
}

func (h *LoggingHook) OnRetry(_ context.Context, event worker.Event) {
	h.logger.Warn("job retry scheduled", eventFields(event)...)
}

func eventFields(event worker.Event) []any {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	fields := []any{"attempt", event.Attempt}
	if message != nil {
		fields = append(fields, "job_id", message.JobID, "idempotency_key", message.IdempotencyKey)
	}
	if event.Delay > 0 {
		fields = append(fields, "delay", event.Delay.String())
	}
	if event.Duration > 0 {
		fields = append(fields, "duration_ms", event.Duration.Milliseconds())
	}
	if event.Err != nil {
		fields = append(fields, "error", event.Err.Error())
	}
	return fields
}

func attemptKey(msg *job.ExecutionMessage) string {
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		return key
	}
	return strings.TrimSpace(msg.JobID)
}

func stringValue(values map[string]any, key string) string {
	if len(values) == 0 {
		return ""
	}
	raw, ok := values[key]
	if !ok || raw == nil {
		return ""
	}
	if text, ok := raw.(string); ok {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(fmt.Sprint(raw))
}

var _ worker.Hook = (*LoggingHook)(nil)
