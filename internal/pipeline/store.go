package pipeline

import (
	"context"
	"errors"
)

// Static errors for state persistence.
var (
	// ErrStateNotFound is returned when no state exists for an upload id
	// (including states that expired past the retention TTL).
	ErrStateNotFound = errors.New("pipeline: upload state not found")
	// ErrActiveStateExists is returned when creating a state while a
	// non-terminal state already exists for the same upload id.
	ErrActiveStateExists = errors.New("pipeline: active state already exists for upload")
)

// StepUpdate describes a step record mutation.
type StepUpdate struct {
	// Status is the new step status.
	Status StepStatus
	// Payload is the step output, set when Status is StepCompleted.
	Payload *Payload
	// Error is the handler error message, set when Status is StepFailed.
	Error string
}

// Store defines the interface for upload state persistence.
// Every write refreshes the record's rolling retention TTL; a record with
// no writes for the full TTL interval silently disappears.
type Store interface {
	// Create initializes a state with all configured steps pending.
	// Returns ErrActiveStateExists if a non-terminal state is present.
	Create(ctx context.Context, uploadID string, cfg RunConfig) (*UploadState, error)

	// Get retrieves the state for an upload id.
	// Returns ErrStateNotFound if the state is absent or expired.
	Get(ctx context.Context, uploadID string) (*UploadState, error)

	// UpdateStep applies a snapshot read-modify-write of the step record,
	// updating CurrentStep and moving the upload status to processing for
	// non-terminal step statuses.
	UpdateStep(ctx context.Context, uploadID string, step StepName, update StepUpdate) error

	// MarkCompleted sets the terminal completed status.
	MarkCompleted(ctx context.Context, uploadID string) error

	// MarkFailed sets the terminal failed status.
	MarkFailed(ctx context.Context, uploadID string) error

	// AddError appends an entry to the upload's error log.
	AddError(ctx context.Context, uploadID string, step StepName, message string) error
}
