package gojob

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	gocron "github.com/goliatone/go-command/cron"
	crmcommand "github.com/goliatone/go-crm-connect/command"
	"github.com/goliatone/go-crm-connect/core"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	"github.com/goliatone/go-job/queue/worker"
)

type stubPurger struct {
	mu      sync.Mutex
	calls   int
	removed int
	errs    []error
	always  error
}

func (p *stubPurger) PurgeExpired(context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.always != nil {
		return 0, p.always
	}
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		if err != nil {
			return 0, err
		}
	}
	return p.removed, nil
}

func (p *stubPurger) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type capturingHook struct {
	mu       sync.Mutex
	started  int
	success  int
	failures int
	retries  []worker.Event
}

func (h *capturingHook) OnStart(context.Context, worker.Event) {
	h.mu.Lock()
	h.started++
	h.mu.Unlock()
}

func (h *capturingHook) OnSuccess(context.Context, worker.Event) {
	h.mu.Lock()
	h.success++
	h.mu.Unlock()
}

func (h *capturingHook) OnFailure(context.Context, worker.Event) {
	h.mu.Lock()
	h.failures++
	h.mu.Unlock()
}

func (h *capturingHook) OnRetry(_ context.Context, event worker.Event) {
	h.mu.Lock()
	h.retries = append(h.retries, event)
	h.mu.Unlock()
}

func (h *capturingHook) snapshot() (started, success, failures int, retries []worker.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started, h.success, h.failures, append([]worker.Event(nil), h.retries...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func purgeRegistry(t *testing.T, purger crmcommand.PurgingService) *jobqueuecommand.Registry {
	t.Helper()
	registry := jobqueuecommand.NewRegistry()
	cmd := crmcommand.NewPurgeExpiredCommand(purger)
	if err := jobqueuecommand.RegisterCommand[crmcommand.PurgeExpiredMessage](registry, cmd); err != nil {
		t.Fatalf("register purge command: %v", err)
	}
	return registry
}

func purgeMessage(key string) *job.ExecutionMessage {
	return &job.ExecutionMessage{JobID: PurgeCommandID, ScriptPath: PurgeCommandID, IdempotencyKey: key}
}

func TestPurgeIdempotencyKey_Windowed(t *testing.T) {
	base := time.Date(2026, 1, 1, 10, 0, 5, 0, time.UTC)
	first := PurgeIdempotencyKey(base, time.Minute)
	second := PurgeIdempotencyKey(base.Add(30*time.Second), time.Minute)
	third := PurgeIdempotencyKey(base.Add(2*time.Minute), time.Minute)

	if !strings.HasPrefix(first, PurgeCommandID+":") {
		t.Fatalf("expected key scoped to the purge command, got %q", first)
	}
	if first != second {
		t.Fatalf("expected same window to share key, got %q and %q", first, second)
	}
	if first == third {
		t.Fatalf("expected later window to get a new key")
	}
}

func TestMemoryQueue_DropsDuplicateIdempotencyKeys(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	var dispatchIDs []string
	for range 3 {
		receipt, err := q.Enqueue(ctx, purgeMessage("purge:1"))
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		dispatchIDs = append(dispatchIDs, receipt.DispatchID)
	}
	if q.Len() != 1 {
		t.Fatalf("expected duplicate purge jobs to be dropped, got %d", q.Len())
	}
	if dispatchIDs[0] == "" || dispatchIDs[0] != dispatchIDs[2] {
		t.Fatalf("expected duplicates to share the waiting dispatch, got %v", dispatchIDs)
	}

	delivery, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if err := delivery.Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}
	status, err := q.GetDispatchStatus(ctx, dispatchIDs[0])
	if err != nil || status.State != queue.DispatchStateSucceeded {
		t.Fatalf("expected succeeded status, got %+v err=%v", status, err)
	}

	receipt, err := q.Enqueue(ctx, purgeMessage("purge:1"))
	if err != nil {
		t.Fatalf("enqueue after ack: %v", err)
	}
	if receipt.DispatchID == dispatchIDs[0] || q.Len() != 1 {
		t.Fatalf("expected key to be released after ack")
	}
	if _, err := q.Enqueue(ctx, &job.ExecutionMessage{}); err == nil {
		t.Fatalf("expected missing job id error")
	}
	if _, err := q.GetDispatchStatus(ctx, "missing"); !errors.Is(err, queue.ErrDispatchNotFound) {
		t.Fatalf("expected dispatch not found, got %v", err)
	}
}

func TestMemoryQueue_DequeueHonorsContext(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := q.Dequeue(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestMemoryQueue_NackDispositions(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	receipt, _ := q.Enqueue(ctx, purgeMessage(""))
	first, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if got := first.(interface{ Attempts() int }).Attempts(); got != 1 {
		t.Fatalf("expected first attempt, got %d", got)
	}
	if err := first.Nack(ctx, queue.NackOptions{}); err == nil {
		t.Fatalf("expected nack without disposition to be rejected")
	}
	if err := first.Nack(ctx, queue.NackOptions{Disposition: queue.NackDispositionRetry, Delay: 10 * time.Millisecond}); err != nil {
		t.Fatalf("nack retry: %v", err)
	}

	second, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue retry: %v", err)
	}
	if got := second.(interface{ Attempts() int }).Attempts(); got != 2 {
		t.Fatalf("expected second attempt, got %d", got)
	}
	if err := second.Nack(ctx, queue.NackOptions{Disposition: queue.NackDispositionDeadLetter, Reason: "gave up"}); err != nil {
		t.Fatalf("nack dead letter: %v", err)
	}
	if dead := q.DeadLetters(); len(dead) != 1 || dead[0].JobID != PurgeCommandID {
		t.Fatalf("expected purge job in dead letters, got %#v", dead)
	}
	status, _ := q.GetDispatchStatus(ctx, receipt.DispatchID)
	if status.State != queue.DispatchStateDeadLetter || status.TerminalReason != "gave up" || status.Attempt != 2 {
		t.Fatalf("unexpected terminal status %+v", status)
	}
}

func TestMemoryQueue_EnqueueAfterDelaysDelivery(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	started := time.Now()
	if _, err := q.EnqueueAfter(ctx, purgeMessage(""), 30*time.Millisecond); err != nil {
		t.Fatalf("enqueue after: %v", err)
	}
	if _, err := q.Dequeue(ctx); err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if elapsed := time.Since(started); elapsed < 30*time.Millisecond {
		t.Fatalf("expected delivery after delay, got %s", elapsed)
	}
	if _, err := q.EnqueueAfter(ctx, purgeMessage(""), -time.Second); err == nil {
		t.Fatalf("expected negative delay error")
	}
}

func TestPurgeWorker_RunsEnqueuedPurge(t *testing.T) {
	q := NewMemoryQueue()
	purger := &stubPurger{removed: 4}
	registry := purgeRegistry(t, purger)
	hook := &capturingHook{}
	metrics := core.NewMemoryMetricsRecorder()

	w, err := NewPurgeWorker(q, registry, WorkerConfig{Metrics: metrics, Hooks: []worker.Hook{hook}})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	receipt, err := EnqueuePurge(ctx, q, registry, time.Now(), time.Minute)
	if err != nil {
		t.Fatalf("enqueue purge: %v", err)
	}
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start worker: %v", err)
	}
	defer func() { _ = w.Stop(context.Background()) }()

	waitFor(t, 3*time.Second, func() bool {
		_, success, _, _ := hook.snapshot()
		return success == 1
	})
	if purger.callCount() != 1 {
		t.Fatalf("expected purge to run once, got %d", purger.callCount())
	}
	status, err := q.GetDispatchStatus(ctx, receipt.DispatchID)
	if err != nil || status.State != queue.DispatchStateSucceeded {
		t.Fatalf("expected succeeded dispatch, got %+v err=%v", status, err)
	}
	if totals := metrics.CounterTotals(); totals[MetricJobStarted] != 1 || totals[MetricJobSucceeded] != 1 {
		t.Fatalf("expected job metrics, got %#v", totals)
	}
}

func TestPurgeWorker_RetriesThenDeadLetters(t *testing.T) {
	q := NewMemoryQueue()
	failure := errors.New("db unavailable")
	purger := &stubPurger{always: failure}
	registry := purgeRegistry(t, purger)
	hook := &capturingHook{}

	w, err := NewPurgeWorker(q, registry, WorkerConfig{
		Hooks: []worker.Hook{hook},
		RetryPolicy: worker.DefaultRetryPolicy{
			MaxAttempts: 2,
			Backoff:     worker.BackoffConfig{Strategy: worker.BackoffFixed, Interval: 10 * time.Millisecond},
		},
	})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := EnqueuePurge(ctx, q, registry, time.Now(), time.Minute); err != nil {
		t.Fatalf("enqueue purge: %v", err)
	}
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start worker: %v", err)
	}
	defer func() { _ = w.Stop(context.Background()) }()

	waitFor(t, 3*time.Second, func() bool { return len(q.DeadLetters()) == 1 })

	_, success, failures, retries := hook.snapshot()
	if success != 0 || failures != 1 {
		t.Fatalf("expected one terminal failure, got success=%d failures=%d", success, failures)
	}
	if len(retries) != 1 || retries[0].Attempt != 1 {
		t.Fatalf("expected one retry for attempt 1, got %+v", retries)
	}
	if purger.callCount() != 2 {
		t.Fatalf("expected two purge attempts, got %d", purger.callCount())
	}
}

func TestNewPurgeWorker_RequiresDependencies(t *testing.T) {
	if _, err := NewPurgeWorker(nil, jobqueuecommand.NewRegistry(), WorkerConfig{}); err == nil {
		t.Fatalf("expected dequeuer error")
	}
	if _, err := NewPurgeWorker(NewMemoryQueue(), nil, WorkerConfig{}); err == nil {
		t.Fatalf("expected registry error")
	}
	if _, err := NewPurgeWorker(NewMemoryQueue(), jobqueuecommand.NewRegistry(), WorkerConfig{}); err == nil {
		t.Fatalf("expected missing purge command error")
	}
}

func TestSchedulePurges_EnqueuesOnCron(t *testing.T) {
	if got := PurgeExpression(90 * time.Second); got != "@every 1m30s" {
		t.Fatalf("unexpected expression %q", got)
	}
	if _, err := SchedulePurges(nil, NewMemoryQueue(), nil, time.Second, nil); err == nil {
		t.Fatalf("expected scheduler error")
	}

	q := NewMemoryQueue()
	registry := purgeRegistry(t, &stubPurger{})
	scheduler := gocron.NewScheduler()
	handle, err := SchedulePurges(scheduler, q, registry, time.Second, nil)
	if err != nil {
		t.Fatalf("schedule purges: %v", err)
	}
	defer handle.Cancel()
	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("start scheduler: %v", err)
	}
	defer func() { _ = scheduler.Stop(context.Background()) }()

	waitFor(t, 4*time.Second, func() bool { return q.Len() >= 1 })
}
