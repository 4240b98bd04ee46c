package task

import (
	"context"
	"errors"
	"time"
)

// Static errors for queue operations.
var (
	// ErrTaskNotFound is returned when a task cannot be found by id.
	ErrTaskNotFound = errors.New("task: not found")
	// ErrNoTask is returned by Next when the bounded wait elapses with
	// nothing to dequeue, so worker loops can re-check shutdown signals.
	ErrNoTask = errors.New("task: no task available")
)

// Queue defines the interface for task submission, dequeue, cancellation
// and retry-requeue. It acts as a port in the hexagonal architecture
// pattern; implementations provide a single logical FIFO with competing
// consumers and at-least-once delivery.
type Queue interface {
	// Submit persists a queued task and appends its id to the FIFO tail.
	Submit(ctx context.Context, taskType string, kwargs Kwargs, opts ...SubmitOption) (string, error)

	// Get retrieves a task by id. Returns ErrTaskNotFound if absent.
	Get(ctx context.Context, taskID string) (*Task, error)

	// Next pops the head of the FIFO, blocking up to timeout.
	// Returns ErrNoTask when the wait elapses, or ctx.Err() on shutdown.
	Next(ctx context.Context, timeout time.Duration) (string, error)

	// UpdateStatus applies a read-modify-write status transition with an
	// optional error message. Returns ErrInvalidTransition when the
	// current status does not permit the move.
	UpdateStatus(ctx context.Context, taskID string, status Status, errMsg string) error

	// Cancel requests cancellation of a task. A queued task is removed
	// from the FIFO and cancelled directly; a processing task is marked
	// cancelled and a short-TTL marker is written for the in-flight
	// worker. Returns false for absent or already-terminal tasks.
	Cancel(ctx context.Context, taskID string) (bool, error)

	// IsCancelled reports whether the task's stored status is cancelled
	// or a live cancellation marker exists. The marker is a fast side
	// channel so in-flight workers avoid re-reading the full record.
	IsCancelled(ctx context.Context, taskID string) (bool, error)

	// Requeue pushes a terminal task back onto the FIFO tail, clearing
	// any lingering cancellation marker. A still-queued task is a no-op
	// unless its id was popped and abandoned, in which case it is pushed
	// again. Returns false for tasks that are absent or currently
	// processing. Requeue is the only retry path; there is no automatic
	// whole-pipeline retry.
	Requeue(ctx context.Context, taskID string) (bool, error)
}

// SubmitOption configures a task at submission time.
type SubmitOption func(*Task)

// WithOwner tags the task with the submitting owner so it shows up in
// ownership queries against the durable history.
func WithOwner(ownerID string) SubmitOption {
	return func(t *Task) {
		t.OwnerID = ownerID
	}
}

// Mirror receives best-effort copies of task records for audit and
// ownership queries. Mirror failures must never block a queue transition.
type Mirror interface {
	// SaveTask inserts or replaces the durable copy of a task.
	SaveTask(ctx context.Context, t *Task) error
}

// History reads the durable task copies written through a Mirror. Reads
// go to the history only when the in-memory record is gone.
type History interface {
	// FindTask fetches the durable copy of a task by id. Returns
	// ErrTaskNotFound if absent.
	FindTask(ctx context.Context, taskID string) (*Task, error)

	// TasksByOwner returns the durable task copies for an owner,
	// newest first.
	TasksByOwner(ctx context.Context, ownerID string) ([]*Task, error)
}
