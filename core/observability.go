package core

import (
	"context"
	"sort"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// DeliveryObserver logs and counts finished deliveries.
type DeliveryObserver struct {
	Logger  Logger
	Metrics MetricsRecorder
}

func NewDeliveryObserver(logger Logger, metrics MetricsRecorder) DeliveryObserver {
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}
	return DeliveryObserver{Logger: glog.Ensure(logger), Metrics: metrics}
}

func (o DeliveryObserver) Observe(
	ctx context.Context,
	startedAt time.Time,
	state DeliveryState,
	err error,
	fields map[string]any,
) {
	contextFields := RedactFields(fields)
	contextFields["state"] = string(state)
	contextFields["duration_ms"] = time.Since(startedAt).Milliseconds()

	tags := map[string]string{"state": string(state)}
	if provider, ok := contextFields["provider"].(string); ok && strings.TrimSpace(provider) != "" {
		tags["provider"] = provider
	}

	level := "info"
	if err != nil {
		mapped := MapError(err)
		contextFields["error"] = err.Error()
		contextFields["text_code"] = mapped.TextCode
		tags["text_code"] = mapped.TextCode
		level = levelForSeverity(mapped.Severity)
	}

	if o.Metrics != nil {
		o.Metrics.IncCounter(ctx, MetricDeliveryTotal, 1, cloneTags(tags))
		o.Metrics.ObserveHistogram(ctx, MetricDeliveryDuration, float64(time.Since(startedAt).Milliseconds()), cloneTags(tags))
	}

	message := "webhook delivery " + string(state)
	if err != nil {
		message = "webhook delivery rejected"
	}
	o.log(ctx, level, message, contextFields)
}

func levelForSeverity(severity goerrors.Severity) string {
	switch {
	case severity <= goerrors.SeverityInfo:
		return "info"
	case severity == goerrors.SeverityWarning:
		return "warn"
	default:
		return "error"
	}
}

func (o DeliveryObserver) log(ctx context.Context, level string, message string, fields map[string]any) {
	if o.Logger == nil {
		return
	}
	logger := o.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch level {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}
