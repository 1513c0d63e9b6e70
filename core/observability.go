package core

import (
	"context"
	"maps"
	"slices"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const metricPrefix = "crmconnect."

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// operation tracks one service call from start to finish. finish emits a
// counter, a duration histogram and a single structured log line.
type operation struct {
	svc     *Service
	ctx     context.Context
	name    string
	started time.Time
	fields  map[string]any
}

func (s *Service) begin(ctx context.Context, name string, id IdentityRef) *operation {
	op := &operation{
		svc:    s,
		ctx:    ctx,
		name:   operationName(name),
		fields: map[string]any{},
	}
	if s != nil {
		op.started = s.now()
		op.fields["provider_id"] = s.ProviderID()
	}
	op.identify(id)
	return op
}

func (op *operation) identify(id IdentityRef) {
	if id.UserID != "" {
		op.fields["user_id"] = id.UserID
	}
	if id.OrgID != "" {
		op.fields["org_id"] = id.OrgID
	}
}

func (op *operation) set(key string, value any) {
	op.fields[key] = value
}

func (op *operation) warn(message string, extra map[string]any) {
	fields := maps.Clone(extra)
	if fields == nil {
		fields = map[string]any{}
	}
	fields["event_type"] = op.name
	if provider, ok := op.fields["provider_id"]; ok {
		fields["provider_id"] = provider
	}
	op.svc.emit(op.ctx, "warn", message, fields)
}

func (op *operation) finish(err error) {
	if op == nil || op.svc == nil {
		return
	}
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeFailure
	}
	elapsed := op.svc.since(op.started)

	fields := maps.Clone(op.fields)
	fields["event_type"] = op.name
	fields["status"] = outcome
	fields["duration_ms"] = elapsed.Milliseconds()
	if err != nil {
		fields["error"] = err.Error()
		var rich *goerrors.Error
		if goerrors.As(err, &rich) {
			fields["error_category"] = rich.Category.String()
			fields["error_text_code"] = rich.TextCode
			fields["error_code"] = rich.Code
		}
	}

	tags := map[string]string{"operation": op.name, "status": outcome}
	for _, key := range []string{"provider_id", "org_id"} {
		if value, ok := fields[key].(string); ok && strings.TrimSpace(value) != "" {
			tags[key] = value
		}
	}
	if recorder := op.svc.metricsRecorder; recorder != nil {
		recorder.IncCounter(op.ctx, metricPrefix+op.name+".total", 1, tags)
		recorder.ObserveHistogram(op.ctx, metricPrefix+op.name+".duration_ms", float64(elapsed.Milliseconds()), cloneTags(tags))
	}

	if err != nil {
		op.svc.emit(op.ctx, "error", op.name+" failed", fields)
		return
	}
	op.svc.emit(op.ctx, "info", op.name+" succeeded", fields)
}

// emit redacts fields before handing them to the logger, both as bound
// fields when supported and as key/value pairs.
func (s *Service) emit(ctx context.Context, level string, message string, fields map[string]any) {
	if s == nil || s.logger == nil {
		return
	}
	fields = RedactSensitiveMap(fields)
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if bound, ok := logger.(FieldsLogger); ok {
		logger = bound.WithFields(maps.Clone(fields))
	}

	args := make([]any, 0, len(fields)*2)
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		args = append(args, key, fields[key])
	}
	switch level {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (s *Service) since(startedAt time.Time) time.Duration {
	if s.now == nil {
		return time.Since(startedAt)
	}
	return max(s.now().Sub(startedAt), 0)
}

func operationName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.NewReplacer(" ", "_", "-", "_").Replace(name)
	if name == "" {
		return "unknown"
	}
	return name
}
