// Package gojob runs the transient store purge as a go-job background task.
// The purge command is mirrored into a go-job command registry by the
// go-command bus; this package enqueues it and runs the worker that drains it.
package gojob

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-crm-connect/adapters/gologger"
	crmcommand "github.com/goliatone/go-crm-connect/command"
	"github.com/goliatone/go-crm-connect/core"
	"github.com/goliatone/go-job/queue"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	// PurgeCommandID is the queue command id the purge command is registered
	// under. go-command derives it from the message Type().
	PurgeCommandID = crmcommand.TypePurgeExpired

	DefaultPurgeWindow = time.Minute
	DefaultMaxAttempts = 3

	MetricJobStarted   = "crmconnect.job.started"
	MetricJobSucceeded = "crmconnect.job.succeeded"
	MetricJobFailed    = "crmconnect.job.failed"
	MetricJobRetried   = "crmconnect.job.retried"
	MetricJobDuration  = "crmconnect.job.duration_ms"
)

// PurgeIdempotencyKey returns the key shared by every purge enqueued in the
// window containing now.
func PurgeIdempotencyKey(now time.Time, window time.Duration) string {
	if window <= 0 {
		window = DefaultPurgeWindow
	}
	bucket := now.UTC().Truncate(window)
	return PurgeCommandID + ":" + strconv.FormatInt(bucket.Unix(), 10)
}

// EnqueuePurge enqueues one purge run. The registry must already hold the
// purge command.
func EnqueuePurge(
	ctx context.Context,
	enqueuer queue.Enqueuer,
	registry *jobqueuecommand.Registry,
	now time.Time,
	window time.Duration,
) (queue.EnqueueReceipt, error) {
	return jobqueuecommand.EnqueueWithOptions(ctx, enqueuer, registry, PurgeCommandID, nil, jobqueuecommand.EnqueueOptions{
		IdempotencyKey: PurgeIdempotencyKey(now, window),
	})
}

// DefaultRetryPolicy retries a failed purge with exponential backoff before
// dead lettering it.
func DefaultRetryPolicy() worker.DefaultRetryPolicy {
	return worker.DefaultRetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Backoff: worker.BackoffConfig{
			Strategy:    worker.BackoffExponential,
			Interval:    time.Second,
			MaxInterval: 30 * time.Second,
		},
	}
}

type WorkerConfig struct {
	Logger         glog.Logger
	LoggerProvider glog.LoggerProvider
	Metrics        core.MetricsRecorder
	RetryPolicy    worker.RetryPolicy
	Hooks          []worker.Hook
	Concurrency    int
}

// NewPurgeWorker builds a go-job worker that runs only the purge command
// from registry. Start and Stop are left to the caller.
func NewPurgeWorker(dequeuer queue.Dequeuer, registry *jobqueuecommand.Registry, cfg WorkerConfig) (*worker.Worker, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("gojob: command registry is required")
	}
	if _, ok := registry.Get(PurgeCommandID); !ok {
		return nil, fmt.Errorf("gojob: command %q is not registered", PurgeCommandID)
	}

	_, jobLogger := gologger.ResolveForJob("crmconnect.jobs", cfg.LoggerProvider, cfg.Logger)
	policy := cfg.RetryPolicy
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	hooks := append([]worker.Hook{NewMetricsHook(cfg.Metrics)}, cfg.Hooks...)

	opts := []worker.Option{
		worker.WithLogger(jobLogger),
		worker.WithRetryPolicy(policy),
		worker.WithHooks(hooks...),
	}
	if cfg.Concurrency > 0 {
		opts = append(opts, worker.WithConcurrency(cfg.Concurrency))
	}
	return jobqueuecommand.NewLocalWorker(dequeuer, registry, jobqueuecommand.LocalWorkerConfig{
		IDs:           []string{PurgeCommandID},
		WorkerOptions: opts,
	})
}

// MetricsHook records worker lifecycle events as counters and a duration
// histogram tagged with the job id.
type MetricsHook struct {
	metrics core.MetricsRecorder
}

func NewMetricsHook(metrics core.MetricsRecorder) *MetricsHook {
	if metrics == nil {
		metrics = core.NopMetricsRecorder{}
	}
	return &MetricsHook{metrics: metrics}
}

func (h *MetricsHook) OnStart(ctx context.Context, event worker.Event) {
	h.metrics.IncCounter(ctx, MetricJobStarted, 1, eventTags(event))
}

func (h *MetricsHook) OnSuccess(ctx context.Context, event worker.Event) {
	tags := eventTags(event)
	h.metrics.IncCounter(ctx, MetricJobSucceeded, 1, tags)
	h.metrics.ObserveHistogram(ctx, MetricJobDuration, float64(event.Duration.Milliseconds()), tags)
}

func (h *MetricsHook) OnFailure(ctx context.Context, event worker.Event) {
	tags := eventTags(event)
	h.metrics.IncCounter(ctx, MetricJobFailed, 1, tags)
	h.metrics.ObserveHistogram(ctx, MetricJobDuration, float64(event.Duration.Milliseconds()), tags)
}

func (h *MetricsHook) OnRetry(ctx context.Context, event worker.Event) {
	h.metrics.IncCounter(ctx, MetricJobRetried, 1, eventTags(event))
}

func eventTags(event worker.Event) map[string]string {
	tags := map[string]string{"attempt": strconv.Itoa(event.Attempt)}
	if event.Message != nil {
		tags["job_id"] = strings.TrimSpace(event.Message.JobID)
	}
	return tags
}

var _ worker.Hook = (*MetricsHook)(nil)
