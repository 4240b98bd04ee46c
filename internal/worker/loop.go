// Package worker provides the dequeue-then-run loop that pulls task ids
// from the queue and invokes the pipeline orchestrator once per task.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/slidecast/slidecast-api/internal/pipeline"
	"github.com/slidecast/slidecast-api/internal/task"
)

// Kwarg keys interpreted by the worker. The queue itself never reads them.
const (
	KwargUploadID          = "upload_id"
	KwargSourcePath        = "source_path"
	KwargAudioLanguage     = "audio_language"
	KwargSubtitleLanguage  = "subtitle_language"
	KwargGenerateAvatar    = "generate_avatar"
	KwargGenerateSubtitles = "generate_subtitles"
)

// ErrMissingUploadID is returned when a task carries no upload id.
var ErrMissingUploadID = errors.New("worker: task kwargs missing upload_id")

// Orchestrator is the slice of the pipeline orchestrator the loop needs.
type Orchestrator interface {
	Run(ctx context.Context, uploadID string, cfg pipeline.RunConfig, cancelled pipeline.CancelCheck) error
}

// Loop processes exactly one task to completion before dequeuing the
// next. There is no intra-process parallelism across uploads; horizontal
// throughput comes from running multiple worker processes as competing
// consumers of the same queue.
type Loop struct {
	queue        task.Queue
	orchestrator Orchestrator
	pollTimeout  time.Duration
	logger       *slog.Logger
}

// NewLoop creates a worker loop with explicit dependencies.
func NewLoop(queue task.Queue, orchestrator Orchestrator, pollTimeout time.Duration, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	return &Loop{
		queue:        queue,
		orchestrator: orchestrator,
		pollTimeout:  pollTimeout,
		logger:       logger,
	}
}

// Run blocks dequeuing and executing tasks until ctx is cancelled.
// A task failure never kills the loop; it is recorded on the task and
// the loop moves on to serve the next one.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("worker loop started",
		slog.Duration("poll_timeout", l.pollTimeout),
	)

	for {
		taskID, err := l.queue.Next(ctx, l.pollTimeout)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			l.logger.Info("worker loop stopping")
			return nil
		}
		if errors.Is(err, task.ErrNoTask) {
			continue
		}
		if err != nil {
			l.logger.Error("dequeue failed",
				slog.String("error", err.Error()),
			)
			continue
		}

		l.handleTask(ctx, taskID)
	}
}

// handleTask runs one dequeued task end to end and records the outcome
// on the Task record.
func (l *Loop) handleTask(ctx context.Context, taskID string) {
	t, err := l.queue.Get(ctx, taskID)
	if err != nil {
		l.logger.Error("dequeued task not found",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := l.queue.UpdateStatus(ctx, taskID, task.StatusProcessing, ""); err != nil {
		// A cancel that raced the pop leaves the task cancelled; skip it.
		l.logger.Warn("task not runnable",
			slog.String("task_id", taskID),
			slog.String("status", string(t.Status)),
			slog.String("error", err.Error()),
		)
		return
	}

	l.logger.Info("task started",
		slog.String("task_id", taskID),
		slog.String("task_type", t.Type),
		slog.String("upload_id", t.Kwargs.String(KwargUploadID)),
	)

	runErr := l.runTask(ctx, t)

	switch {
	case runErr == nil:
		l.finishTask(ctx, taskID, task.StatusCompleted, "")
		l.logger.Info("task completed", slog.String("task_id", taskID))
	case errors.Is(runErr, pipeline.ErrCancelled):
		// Cancel already set the terminal status; nothing to record.
		l.logger.Info("task cancelled", slog.String("task_id", taskID))
	default:
		l.finishTask(ctx, taskID, task.StatusFailed, runErr.Error())
		l.logger.Error("task failed",
			slog.String("task_id", taskID),
			slog.String("error", runErr.Error()),
		)
	}
}

// runTask invokes the orchestrator for the upload referenced by a task.
// Panics from step handlers are recovered and converted into a task
// failure so the loop stays alive for the next task.
func (l *Loop) runTask(ctx context.Context, t *task.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker: panic while running task %s: %v", t.ID, r)
		}
	}()

	uploadID := t.Kwargs.String(KwargUploadID)
	if uploadID == "" {
		return ErrMissingUploadID
	}

	cfg := pipeline.RunConfig{
		SourcePath:        t.Kwargs.String(KwargSourcePath),
		AudioLanguage:     t.Kwargs.String(KwargAudioLanguage),
		SubtitleLanguage:  t.Kwargs.String(KwargSubtitleLanguage),
		GenerateAvatar:    t.Kwargs.Bool(KwargGenerateAvatar),
		GenerateSubtitles: t.Kwargs.Bool(KwargGenerateSubtitles),
	}

	cancelled := func(ctx context.Context) bool {
		yes, checkErr := l.queue.IsCancelled(ctx, t.ID)
		if checkErr != nil {
			l.logger.Warn("cancellation check failed",
				slog.String("task_id", t.ID),
				slog.String("error", checkErr.Error()),
			)
			return false
		}
		return yes
	}

	return l.orchestrator.Run(ctx, uploadID, cfg, cancelled)
}

// finishTask records a terminal status, tolerating a cancel that won the
// race against the final step.
func (l *Loop) finishTask(ctx context.Context, taskID string, status task.Status, errMsg string) {
	if err := l.queue.UpdateStatus(ctx, taskID, status, errMsg); err != nil {
		if errors.Is(err, task.ErrInvalidTransition) {
			l.logger.Debug("task already terminal",
				slog.String("task_id", taskID),
				slog.String("wanted", string(status)),
			)
			return
		}
		l.logger.Error("record task outcome failed",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)
	}
}
