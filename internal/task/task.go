// Package task provides the background task queue: one Task record per
// submitted job, a FIFO ordering for competing consumers, and the
// cancellation markers that signal in-flight workers.
//
// A Task tracks the job lifecycle as seen by the queue. Pipeline progress
// for the referenced upload is tracked separately by pipeline.UploadState,
// so resubmitting a failed task resumes the same upload state rather than
// restarting it.
package task

import (
	"errors"
	"time"

	"github.com/slidecast/slidecast-api/internal/task/id"
)

// TypeProcessDocument is the task type for the document-to-video pipeline.
const TypeProcessDocument = "process_document"

// Status represents the current state of a Task as seen by the queue.
type Status string

const (
	// StatusQueued indicates the task is waiting in the FIFO.
	StatusQueued Status = "queued"
	// StatusProcessing indicates a worker is running the task.
	StatusProcessing Status = "processing"
	// StatusCompleted indicates the task finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the task encountered an error.
	StatusFailed Status = "failed"
	// StatusCancelled indicates the task was cancelled.
	StatusCancelled Status = "cancelled"
)

// IsTerminal returns true if the status represents a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ErrInvalidTransition is returned when an invalid status transition is attempted.
var ErrInvalidTransition = errors.New("task: invalid status transition")

// validTransitions defines which status transitions are allowed.
// Terminal statuses may move back to queued via Requeue only.
var validTransitions = map[Status][]Status{
	StatusQueued:     {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted:  {StatusQueued},
	StatusFailed:     {StatusQueued},
	StatusCancelled:  {StatusQueued},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Kwargs is the opaque parameter bag carried by a task. The queue never
// interprets it; the worker and orchestrator do.
type Kwargs map[string]any

// String returns the string value for a key, or "" when absent or not a string.
func (k Kwargs) String(key string) string {
	v, _ := k[key].(string)
	return v
}

// Bool returns the bool value for a key, or false when absent or not a bool.
func (k Kwargs) Bool(key string) bool {
	v, _ := k[key].(bool)
	return v
}

// Task represents one submitted background job.
type Task struct {
	// ID is the unique task identifier.
	ID string
	// Type identifies the kind of work, e.g. TypeProcessDocument.
	Type string
	// Status is the current queue-side status.
	Status Status
	// Kwargs is the opaque parameter bag (upload id, source path, flags).
	Kwargs Kwargs
	// OwnerID optionally identifies the submitting user.
	OwnerID string
	// Error contains the failure message if the task failed.
	Error string
	// CreatedAt is when the task was submitted.
	CreatedAt time.Time
	// UpdatedAt is when the task last changed.
	UpdatedAt time.Time
}

// New creates a queued task with a generated id.
func New(taskType string, kwargs Kwargs) *Task {
	now := time.Now()
	return &Task{
		ID:        id.Generate(),
		Type:      taskType,
		Status:    StatusQueued,
		Kwargs:    kwargs,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone creates a deep copy of the task for safe reads.
func (t *Task) Clone() *Task {
	kwargs := make(Kwargs, len(t.Kwargs))
	for k, v := range t.Kwargs {
		kwargs[k] = v
	}
	cp := *t
	cp.Kwargs = kwargs
	return &cp
}
