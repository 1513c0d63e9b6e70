package gojob

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

// MemoryQueue is an in-process go-job queue used by the single-binary
// deployment. A message whose idempotency key belongs to a dispatch that has
// not settled yet is dropped on enqueue and that dispatch receipt is returned.
type MemoryQueue struct {
	mu         sync.Mutex
	ready      []*queuedMessage
	delayed    []*queuedMessage
	keys       map[string]string
	statuses   map[string]queue.DispatchStatus
	deadLetter []*job.ExecutionMessage
	notify     chan struct{}
	now        func() time.Time
}

type queuedMessage struct {
	msg        *job.ExecutionMessage
	dispatchID string
	attempts   int
	readyAt    time.Time
}

type QueueOption func(*MemoryQueue)

func WithQueueClock(now func() time.Time) QueueOption {
	return func(q *MemoryQueue) {
		if now != nil {
			q.now = now
		}
	}
}

func NewMemoryQueue(opts ...QueueOption) *MemoryQueue {
	q := &MemoryQueue{
		keys:     map[string]string{},
		statuses: map[string]queue.DispatchStatus{},
		notify:   make(chan struct{}, 1),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q
}

func (q *MemoryQueue) Enqueue(_ context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	return q.enqueue(msg, time.Time{})
}

func (q *MemoryQueue) EnqueueAt(_ context.Context, msg *job.ExecutionMessage, at time.Time) (queue.EnqueueReceipt, error) {
	return q.enqueue(msg, at)
}

func (q *MemoryQueue) EnqueueAfter(_ context.Context, msg *job.ExecutionMessage, delay time.Duration) (queue.EnqueueReceipt, error) {
	if delay < 0 {
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: delay must be >= 0")
	}
	if q == nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: memory queue is not configured")
	}
	return q.enqueue(msg, q.now().Add(delay))
}

func (q *MemoryQueue) enqueue(msg *job.ExecutionMessage, at time.Time) (queue.EnqueueReceipt, error) {
	if q == nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: memory queue is not configured")
	}
	if err := queue.ValidateRequiredMessage(msg); err != nil {
		return queue.EnqueueReceipt{}, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	key := strings.TrimSpace(msg.IdempotencyKey)
	if key != "" {
		if dispatchID, waiting := q.keys[key]; waiting {
			status := q.statuses[dispatchID]
			return queue.EnqueueReceipt{DispatchID: dispatchID, EnqueuedAt: derefTime(status.EnqueuedAt)}, nil
		}
	}

	entry := &queuedMessage{msg: msg, dispatchID: uuid.NewString(), attempts: 1}
	if key != "" {
		q.keys[key] = entry.dispatchID
	}
	q.statuses[entry.dispatchID] = queue.DispatchStatus{
		DispatchID: entry.dispatchID,
		State:      queue.DispatchStateAccepted,
		Attempt:    entry.attempts,
		EnqueuedAt: timePtr(now),
		UpdatedAt:  timePtr(now),
	}
	if at.After(now) {
		entry.readyAt = at
		q.delayed = append(q.delayed, entry)
		q.setNextRunLocked(entry.dispatchID, at)
	} else {
		q.ready = append(q.ready, entry)
	}
	q.signal()
	return queue.EnqueueReceipt{DispatchID: entry.dispatchID, EnqueuedAt: now}, nil
}

// Dequeue blocks until a message is ready or ctx is done.
func (q *MemoryQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	if q == nil {
		return nil, fmt.Errorf("gojob: memory queue is not configured")
	}
	for {
		q.mu.Lock()
		q.promoteLocked()
		if len(q.ready) > 0 {
			entry := q.ready[0]
			q.ready = q.ready[1:]
			q.transitionLocked(entry, queue.DispatchStateRunning, "")
			q.mu.Unlock()
			return &memoryDelivery{queue: q, entry: entry}, nil
		}
		wait := q.nextWakeLocked()
		q.mu.Unlock()

		var (
			timer   *time.Timer
			timerCh <-chan time.Time
		)
		if wait > 0 {
			timer = time.NewTimer(wait)
			timerCh = timer.C
		}
		select {
		case <-ctx.Done():
			stopTimer(timer)
			return nil, ctx.Err()
		case <-q.notify:
		case <-timerCh:
		}
		stopTimer(timer)
	}
}

func (q *MemoryQueue) GetDispatchStatus(_ context.Context, dispatchID string) (queue.DispatchStatus, error) {
	if q == nil {
		return queue.DispatchStatus{}, fmt.Errorf("gojob: memory queue is not configured")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	status, ok := q.statuses[strings.TrimSpace(dispatchID)]
	if !ok {
		return queue.DispatchStatus{}, queue.ErrDispatchNotFound
	}
	return status, nil
}

// Len reports ready and delayed messages.
func (q *MemoryQueue) Len() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready) + len(q.delayed)
}

func (q *MemoryQueue) DeadLetters() []*job.ExecutionMessage {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*job.ExecutionMessage(nil), q.deadLetter...)
}

func (q *MemoryQueue) ack(entry *queuedMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.releaseKeyLocked(entry)
	q.transitionLocked(entry, queue.DispatchStateSucceeded, "")
}

func (q *MemoryQueue) nack(entry *queuedMessage, opts queue.NackOptions) {
	q.mu.Lock()
	defer q.mu.Unlock()
	switch opts.Disposition {
	case queue.NackDispositionRetry:
		entry.attempts++
		q.transitionLocked(entry, queue.DispatchStateRetrying, opts.Reason)
		if opts.Delay > 0 {
			entry.readyAt = q.now().Add(opts.Delay)
			q.delayed = append(q.delayed, entry)
			q.setNextRunLocked(entry.dispatchID, entry.readyAt)
		} else {
			q.ready = append(q.ready, entry)
		}
		q.signal()
	case queue.NackDispositionDeadLetter:
		q.releaseKeyLocked(entry)
		q.deadLetter = append(q.deadLetter, entry.msg)
		q.transitionLocked(entry, queue.DispatchStateDeadLetter, opts.Reason)
	case queue.NackDispositionCanceled:
		q.releaseKeyLocked(entry)
		q.transitionLocked(entry, queue.DispatchStateCanceled, opts.Reason)
	default:
		q.releaseKeyLocked(entry)
		q.transitionLocked(entry, queue.DispatchStateFailed, opts.Reason)
	}
}

func (q *MemoryQueue) releaseKeyLocked(entry *queuedMessage) {
	key := strings.TrimSpace(entry.msg.IdempotencyKey)
	if key != "" && q.keys[key] == entry.dispatchID {
		delete(q.keys, key)
	}
}

func (q *MemoryQueue) transitionLocked(entry *queuedMessage, state queue.DispatchState, reason string) {
	status, ok := q.statuses[entry.dispatchID]
	if !ok {
		return
	}
	status.Attempt = entry.attempts
	status.State = state
	status.UpdatedAt = timePtr(q.now())
	status.NextRunAt = nil
	switch state {
	case queue.DispatchStateFailed, queue.DispatchStateDeadLetter, queue.DispatchStateCanceled:
		status.TerminalReason = reason
	}
	q.statuses[entry.dispatchID] = status
}

func (q *MemoryQueue) setNextRunLocked(dispatchID string, at time.Time) {
	status, ok := q.statuses[dispatchID]
	if !ok {
		return
	}
	status.NextRunAt = timePtr(at)
	q.statuses[dispatchID] = status
}

func (q *MemoryQueue) promoteLocked() {
	if len(q.delayed) == 0 {
		return
	}
	now := q.now()
	remaining := q.delayed[:0]
	for _, entry := range q.delayed {
		if !now.Before(entry.readyAt) {
			q.ready = append(q.ready, entry)
			continue
		}
		remaining = append(remaining, entry)
	}
	q.delayed = remaining
}

func (q *MemoryQueue) nextWakeLocked() time.Duration {
	if len(q.delayed) == 0 {
		return 0
	}
	next := q.delayed[0].readyAt
	for _, entry := range q.delayed[1:] {
		if entry.readyAt.Before(next) {
			next = entry.readyAt
		}
	}
	wait := next.Sub(q.now())
	if wait <= 0 {
		return time.Millisecond
	}
	return wait
}

func (q *MemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func stopTimer(timer *time.Timer) {
	if timer != nil {
		timer.Stop()
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// memoryDelivery settles exactly once; later Ack or Nack calls are no-ops.
type memoryDelivery struct {
	queue *MemoryQueue
	entry *queuedMessage
	once  sync.Once
}

func (d *memoryDelivery) Message() *job.ExecutionMessage {
	return d.entry.msg
}

// Attempts is read by the go-job worker to drive its retry policy.
func (d *memoryDelivery) Attempts() int {
	return d.entry.attempts
}

func (d *memoryDelivery) Ack(context.Context) error {
	d.once.Do(func() { d.queue.ack(d.entry) })
	return nil
}

func (d *memoryDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	if err := queue.ValidateNackOptions(opts); err != nil {
		return err
	}
	d.once.Do(func() { d.queue.nack(d.entry, opts) })
	return nil
}

var (
	_ queue.ScheduledEnqueuer    = (*MemoryQueue)(nil)
	_ queue.Dequeuer             = (*MemoryQueue)(nil)
	_ queue.DispatchStatusReader = (*MemoryQueue)(nil)
	_ queue.Delivery             = (*memoryDelivery)(nil)
)
