package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Static errors for orchestration.
var (
	// ErrCancelled signals that a run halted at a step boundary because
	// the owning task was cancelled. It is an orderly halt, not a step
	// failure, and adds no error-log entry.
	ErrCancelled = errors.New("pipeline: run cancelled")
	// ErrSkipStep may be returned by a handler to mark its step skipped
	// and continue with the next step.
	ErrSkipStep = errors.New("pipeline: step skipped")
	// ErrNoHandler is returned when a configured step has no registered handler.
	ErrNoHandler = errors.New("pipeline: no handler registered for step")
)

// ValidationError reports that a step's required prior-step data is
// missing or empty. It is non-retryable without operator intervention.
type ValidationError struct {
	// Step is the step whose input was invalid.
	Step StepName
	// Msg describes the missing or empty input.
	Msg string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("pipeline: step %s: %s", e.Step, e.Msg)
}

// Handler executes one pipeline step. Implementations must be safe to
// re-invoke: a step is only ever entered from pending or failed, and no
// handler may assume it runs exactly once.
type Handler interface {
	// Execute runs the step and returns its payload. The prior map holds
	// the payloads of every step completed so far this run; handlers pick
	// the inputs they declare and raise on unrecoverable failure.
	Execute(ctx context.Context, uploadID string, prior map[StepName]Payload, cfg RunConfig) (Payload, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, uploadID string, prior map[StepName]Payload, cfg RunConfig) (Payload, error)

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx context.Context, uploadID string, prior map[StepName]Payload, cfg RunConfig) (Payload, error) {
	return f(ctx, uploadID, prior, cfg)
}

// CancelCheck reports whether the owning task was cancelled. The
// orchestrator consults it at every step boundary; cancellation is never
// observed mid-handler.
type CancelCheck func(ctx context.Context) bool

// Cleaner removes temporary media files once a run completes.
// storage.Storage satisfies this interface.
type Cleaner interface {
	Cleanup(ctx context.Context, paths []string) error
}

// Orchestrator drives a single upload's ordered step list to completion
// or failure, persisting step status after each transition.
type Orchestrator struct {
	store    Store
	handlers map[StepName]Handler
	cleaner  Cleaner
	logger   *slog.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithCleaner enables best-effort temp media cleanup after successful runs.
func WithCleaner(c Cleaner) OrchestratorOption {
	return func(o *Orchestrator) {
		o.cleaner = c
	}
}

// NewOrchestrator creates an orchestrator with explicit dependencies.
// There is no ambient default store or handler set.
func NewOrchestrator(store Store, handlers map[StepName]Handler, logger *slog.Logger, opts ...OrchestratorOption) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		store:    store,
		handlers: handlers,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the pending and failed steps of an upload in order.
// It loads the existing state when present (resume) or creates one from
// cfg. The step order is computed once from the persisted configuration
// and not revisited mid-run.
//
// On handler failure the step, the error log, and the upload are all
// marked failed and the run halts; the next invocation resumes at the
// failed step. Cancellation is observed between steps only and returns
// ErrCancelled.
func (o *Orchestrator) Run(ctx context.Context, uploadID string, cfg RunConfig, cancelled CancelCheck) error {
	state, err := o.store.Get(ctx, uploadID)
	if errors.Is(err, ErrStateNotFound) {
		state, err = o.store.Create(ctx, uploadID, cfg)
	}
	if err != nil {
		return fmt.Errorf("load upload state: %w", err)
	}

	order := StepOrder(state.Config)
	prior := state.CompletedPayloads()

	for _, step := range order {
		if cancelled != nil && cancelled(ctx) {
			o.logger.Info("run cancelled at step boundary",
				slog.String("upload_id", uploadID),
				slog.String("step", string(step)),
			)
			if err := o.store.MarkFailed(ctx, uploadID); err != nil {
				return fmt.Errorf("mark cancelled upload failed: %w", err)
			}
			return ErrCancelled
		}

		if state.StepDone(step) {
			continue
		}

		if err := o.runStep(ctx, state, step, prior); err != nil {
			return err
		}

		if rec := state.Steps[step]; rec != nil && rec.Status == StepCompleted && rec.Payload != nil {
			prior[step] = *rec.Payload
		}
	}

	if err := o.store.MarkCompleted(ctx, uploadID); err != nil {
		return fmt.Errorf("mark upload completed: %w", err)
	}

	o.cleanup(ctx, uploadID, prior)

	o.logger.Info("upload pipeline completed",
		slog.String("upload_id", uploadID),
	)
	return nil
}

// runStep executes one step and persists the resulting transition.
// The local state copy is kept in sync with the store so the loop never
// re-reads the whole record between steps.
func (o *Orchestrator) runStep(ctx context.Context, state *UploadState, step StepName, prior map[StepName]Payload) error {
	uploadID := state.UploadID

	if err := o.store.UpdateStep(ctx, uploadID, step, StepUpdate{Status: StepProcessing}); err != nil {
		return fmt.Errorf("mark step %s processing: %w", step, err)
	}

	handler, ok := o.handlers[step]
	if !ok {
		err := fmt.Errorf("%w: %s", ErrNoHandler, step)
		return o.failStep(ctx, state, step, err)
	}

	o.logger.Info("executing step",
		slog.String("upload_id", uploadID),
		slog.String("step", string(step)),
	)

	payload, err := handler.Execute(ctx, uploadID, prior, state.Config)
	if errors.Is(err, ErrSkipStep) {
		if err := o.store.UpdateStep(ctx, uploadID, step, StepUpdate{Status: StepSkipped}); err != nil {
			return fmt.Errorf("mark step %s skipped: %w", step, err)
		}
		state.Steps[step] = &StepRecord{Status: StepSkipped}
		return nil
	}
	if err != nil {
		return o.failStep(ctx, state, step, err)
	}

	if err := o.store.UpdateStep(ctx, uploadID, step, StepUpdate{Status: StepCompleted, Payload: &payload}); err != nil {
		return fmt.Errorf("mark step %s completed: %w", step, err)
	}
	state.Steps[step] = &StepRecord{Status: StepCompleted, Payload: &payload}
	return nil
}

// failStep records a handler failure on the step, the error log, and the
// upload, then halts the run. There is no automatic skip-ahead.
func (o *Orchestrator) failStep(ctx context.Context, state *UploadState, step StepName, stepErr error) error {
	uploadID := state.UploadID

	o.logger.Error("step failed",
		slog.String("upload_id", uploadID),
		slog.String("step", string(step)),
		slog.String("error", stepErr.Error()),
	)

	if err := o.store.UpdateStep(ctx, uploadID, step, StepUpdate{Status: StepFailed, Error: stepErr.Error()}); err != nil {
		return fmt.Errorf("mark step %s failed: %w", step, err)
	}
	if err := o.store.AddError(ctx, uploadID, step, stepErr.Error()); err != nil {
		return fmt.Errorf("append error log: %w", err)
	}
	if err := o.store.MarkFailed(ctx, uploadID); err != nil {
		return fmt.Errorf("mark upload failed: %w", err)
	}
	return fmt.Errorf("step %s: %w", step, stepErr)
}

// cleanup removes per-slide temp media after a successful run. The final
// composed video is kept; failures are logged and ignored.
func (o *Orchestrator) cleanup(ctx context.Context, uploadID string, prior map[StepName]Payload) {
	if o.cleaner == nil {
		return
	}

	var paths []string
	for _, step := range []StepName{StepConvertToImages, StepGenerateAudio, StepGenerateAvatarVideos} {
		payload, ok := prior[step]
		if !ok {
			continue
		}
		switch payload.Kind {
		case KindImageRefs:
			var refs []string
			if err := payload.Decode(KindImageRefs, &refs); err == nil {
				paths = append(paths, refs...)
			}
		case KindAudioClips, KindAvatarClips:
			var clips []MediaClip
			if err := payload.Decode(payload.Kind, &clips); err == nil {
				for _, clip := range clips {
					paths = append(paths, clip.Path)
				}
			}
		}
	}
	if len(paths) == 0 {
		return
	}

	if err := o.cleaner.Cleanup(ctx, paths); err != nil {
		o.logger.Warn("temp media cleanup failed",
			slog.String("upload_id", uploadID),
			slog.String("error", err.Error()),
		)
	}
}
