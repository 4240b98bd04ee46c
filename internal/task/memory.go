package task

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Compile-time check that MemoryQueue implements Queue.
var _ Queue = (*MemoryQueue)(nil)

// MemoryQueue is an in-memory implementation of Queue: a mutex-guarded
// FIFO of task ids, a task record map, and cancellation markers with a
// short TTL. The destructive pop hands each id to exactly one consumer.
// Suitable for a single-host deployment; competing workers on separate
// hosts need a shared queue behind the same interface.
type MemoryQueue struct {
	mu      sync.Mutex
	tasks   map[string]*Task
	fifo    []string
	markers map[string]time.Time

	// notify wakes one blocked Next call after a push.
	notify chan struct{}

	markerTTL time.Duration
	mirror    Mirror
	logger    *slog.Logger
}

// QueueOption configures a MemoryQueue.
type QueueOption func(*MemoryQueue)

// WithMirror attaches a best-effort durable mirror for audit queries.
func WithMirror(m Mirror) QueueOption {
	return func(q *MemoryQueue) {
		q.mirror = m
	}
}

// WithLogger sets the queue logger.
func WithLogger(logger *slog.Logger) QueueOption {
	return func(q *MemoryQueue) {
		q.logger = logger
	}
}

// NewMemoryQueue creates an in-memory task queue. Cancellation markers
// expire after markerTTL.
func NewMemoryQueue(markerTTL time.Duration, opts ...QueueOption) *MemoryQueue {
	q := &MemoryQueue{
		tasks:     make(map[string]*Task),
		markers:   make(map[string]time.Time),
		notify:    make(chan struct{}, 1),
		markerTTL: markerTTL,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Submit persists a queued task and appends its id to the FIFO tail.
func (q *MemoryQueue) Submit(ctx context.Context, taskType string, kwargs Kwargs, opts ...SubmitOption) (string, error) {
	t := New(taskType, kwargs)
	for _, opt := range opts {
		opt(t)
	}

	q.mu.Lock()
	q.tasks[t.ID] = t
	q.fifo = append(q.fifo, t.ID)
	q.mu.Unlock()

	q.wake()
	q.mirrorSave(ctx, t)
	return t.ID, nil
}

// Get retrieves a task by id.
func (q *MemoryQueue) Get(_ context.Context, taskID string) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return t.Clone(), nil
}

// Next pops the head of the FIFO with a bounded wait.
func (q *MemoryQueue) Next(ctx context.Context, timeout time.Duration) (string, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		q.mu.Lock()
		if len(q.fifo) > 0 {
			id := q.fifo[0]
			q.fifo = q.fifo[1:]
			q.mu.Unlock()
			return id, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", ErrNoTask
		case <-q.notify:
		}
	}
}

// UpdateStatus applies a read-modify-write status transition.
func (q *MemoryQueue) UpdateStatus(ctx context.Context, taskID string, status Status, errMsg string) error {
	q.mu.Lock()
	t, ok := q.tasks[taskID]
	if !ok {
		q.mu.Unlock()
		return ErrTaskNotFound
	}
	if !canTransition(t.Status, status) {
		q.mu.Unlock()
		return ErrInvalidTransition
	}
	t.Status = status
	t.Error = errMsg
	t.UpdatedAt = time.Now()
	snapshot := t.Clone()
	q.mu.Unlock()

	q.mirrorSave(ctx, snapshot)
	return nil
}

// Cancel requests cancellation of a task.
func (q *MemoryQueue) Cancel(ctx context.Context, taskID string) (bool, error) {
	q.mu.Lock()
	t, ok := q.tasks[taskID]
	if !ok {
		q.mu.Unlock()
		return false, nil
	}

	switch t.Status {
	case StatusQueued:
		// Removing from the FIFO is idempotent: a no-op when the id was
		// already popped by a worker.
		q.removeFromFIFO(taskID)
		t.Status = StatusCancelled
		t.UpdatedAt = time.Now()
	case StatusProcessing:
		// An in-flight worker cannot be interrupted through the queue;
		// the marker gives it a side-channel signal at step boundaries.
		t.Status = StatusCancelled
		t.UpdatedAt = time.Now()
		q.markers[taskID] = time.Now().Add(q.markerTTL)
	default:
		q.mu.Unlock()
		return false, nil
	}

	snapshot := t.Clone()
	q.mu.Unlock()

	q.mirrorSave(ctx, snapshot)
	return true, nil
}

// IsCancelled reports whether the task is cancelled or a marker is live.
func (q *MemoryQueue) IsCancelled(_ context.Context, taskID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if t, ok := q.tasks[taskID]; ok && t.Status == StatusCancelled {
		return true, nil
	}
	if expiry, ok := q.markers[taskID]; ok {
		if time.Now().Before(expiry) {
			return true, nil
		}
		delete(q.markers, taskID)
	}
	return false, nil
}

// Requeue pushes a terminal task back onto the FIFO tail.
func (q *MemoryQueue) Requeue(ctx context.Context, taskID string) (bool, error) {
	q.mu.Lock()
	t, ok := q.tasks[taskID]
	if !ok {
		q.mu.Unlock()
		return false, nil
	}

	switch t.Status {
	case StatusProcessing:
		q.mu.Unlock()
		return false, nil
	case StatusQueued:
		// Usually an idempotent no-op. The exception is an id a worker
		// popped and then abandoned before marking it processing: still
		// queued, but absent from the FIFO. Re-push it so the operator
		// retry path can revive it.
		if q.inFIFO(taskID) {
			q.mu.Unlock()
			return true, nil
		}
		q.fifo = append(q.fifo, taskID)
		q.mu.Unlock()
		q.wake()
		return true, nil
	}

	delete(q.markers, taskID)
	t.Status = StatusQueued
	t.Error = ""
	t.UpdatedAt = time.Now()
	q.fifo = append(q.fifo, taskID)
	snapshot := t.Clone()
	q.mu.Unlock()

	q.wake()
	q.mirrorSave(ctx, snapshot)
	return true, nil
}

// inFIFO reports whether a task id is waiting in the pending list.
// Callers must hold the lock.
func (q *MemoryQueue) inFIFO(taskID string) bool {
	for _, id := range q.fifo {
		if id == taskID {
			return true
		}
	}
	return false
}

// removeFromFIFO deletes a task id from the pending list.
// Callers must hold the lock.
func (q *MemoryQueue) removeFromFIFO(taskID string) {
	for i, id := range q.fifo {
		if id == taskID {
			q.fifo = append(q.fifo[:i], q.fifo[i+1:]...)
			return
		}
	}
}

// wake signals one blocked Next call without blocking the caller.
func (q *MemoryQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// mirrorSave copies a task to the durable mirror. Mirror failure never
// blocks the primary transition.
func (q *MemoryQueue) mirrorSave(ctx context.Context, t *Task) {
	if q.mirror == nil {
		return
	}
	if err := q.mirror.SaveTask(ctx, t); err != nil {
		q.logger.Warn("task mirror write failed",
			slog.String("task_id", t.ID),
			slog.String("error", err.Error()),
		)
	}
}
