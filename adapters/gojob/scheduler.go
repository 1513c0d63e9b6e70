package gojob

import (
	"context"
	"fmt"
	"time"

	gocmd "github.com/goliatone/go-command"
	gocron "github.com/goliatone/go-command/cron"
	"github.com/goliatone/go-job/queue"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// PurgeExpression is the cron expression that fires every interval.
func PurgeExpression(interval time.Duration) string {
	if interval <= 0 {
		interval = DefaultPurgeWindow
	}
	return "@every " + interval.String()
}

// SchedulePurges registers a cron entry on scheduler that enqueues a purge
// every interval. The scheduler must be started by the caller; cancel the
// returned handle to stop scheduling.
func SchedulePurges(
	scheduler *gocron.Scheduler,
	enqueuer queue.Enqueuer,
	registry *jobqueuecommand.Registry,
	interval time.Duration,
	now func() time.Time,
) (gocron.Handle, error) {
	if scheduler == nil {
		return nil, fmt.Errorf("gojob: scheduler is required")
	}
	if enqueuer == nil {
		return nil, fmt.Errorf("gojob: enqueuer is required")
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return scheduler.ScheduleCron(gocmd.HandlerConfig{Expression: PurgeExpression(interval)}, func() error {
		_, err := EnqueuePurge(context.Background(), enqueuer, registry, now(), interval)
		return err
	})
}
