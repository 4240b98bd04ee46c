package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/slidecast/slidecast-api/internal/pipeline"
	"github.com/slidecast/slidecast-api/internal/storage"
	"github.com/slidecast/slidecast-api/internal/task"
	"github.com/slidecast/slidecast-api/internal/task/id"
	"github.com/slidecast/slidecast-api/internal/worker"
)

// Handlers contains the HTTP handlers for the API. Submission only
// enqueues; all processing happens in the worker processes.
type Handlers struct {
	queue            task.Queue
	states           pipeline.Store
	storage          storage.Storage
	history          task.History
	validator        *validator.Validate
	logger           *slog.Logger
	audioLanguage    string
	subtitleLanguage string
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithTaskHistory attaches the durable task history used for owner
// queries and for task reads that outlive the in-memory queue.
func WithTaskHistory(history task.History) HandlerOption {
	return func(h *Handlers) {
		h.history = history
	}
}

// WithDefaultLanguages sets the languages used when a submission omits them.
func WithDefaultLanguages(audio, subtitle string) HandlerOption {
	return func(h *Handlers) {
		h.audioLanguage = audio
		h.subtitleLanguage = subtitle
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(queue task.Queue, states pipeline.Store, store storage.Storage, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		queue:            queue,
		states:           states,
		storage:          store,
		validator:        validator.New(),
		logger:           logger,
		audioLanguage:    "en",
		subtitleLanguage: "en",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// SubmitUpload handles POST /uploads requests. It stores an inline
// document when one is carried, creates the processing task, and returns
// without waiting for any pipeline work.
func (h *Handlers) SubmitUpload(w http.ResponseWriter, r *http.Request) {
	var req SubmitUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	uploadID := id.WithPrefix("upload")

	sourcePath := req.SourcePath
	if req.DocumentBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(req.DocumentBase64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid document encoding", "INVALID_DOCUMENT")
			return
		}
		sourcePath, err = h.storage.SaveDocument(r.Context(), uploadID, bytes.NewReader(data))
		if err != nil {
			if errors.Is(err, storage.ErrEmptyDocument) {
				writeError(w, http.StatusBadRequest, "uploaded document is empty", "INVALID_DOCUMENT")
				return
			}
			h.logger.Error("failed to store uploaded document",
				slog.String("upload_id", uploadID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to store document", "DOCUMENT_STORE_FAILED")
			return
		}
	}

	audioLanguage := req.AudioLanguage
	if audioLanguage == "" {
		audioLanguage = h.audioLanguage
	}
	subtitleLanguage := req.SubtitleLanguage
	if subtitleLanguage == "" {
		subtitleLanguage = h.subtitleLanguage
	}

	var submitOpts []task.SubmitOption
	if req.OwnerID != "" {
		submitOpts = append(submitOpts, task.WithOwner(req.OwnerID))
	}

	taskID, err := h.queue.Submit(r.Context(), task.TypeProcessDocument, task.Kwargs{
		worker.KwargUploadID:          uploadID,
		worker.KwargSourcePath:        sourcePath,
		worker.KwargAudioLanguage:     audioLanguage,
		worker.KwargSubtitleLanguage:  subtitleLanguage,
		worker.KwargGenerateAvatar:    req.GenerateAvatar,
		worker.KwargGenerateSubtitles: req.GenerateSubtitles,
	}, submitOpts...)
	if err != nil {
		h.logger.Error("failed to submit task",
			slog.String("upload_id", uploadID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to submit task", "TASK_SUBMIT_FAILED")
		return
	}

	h.logger.Info("upload submitted",
		slog.String("task_id", taskID),
		slog.String("upload_id", uploadID),
		slog.String("audio_language", audioLanguage),
		slog.Bool("generate_avatar", req.GenerateAvatar),
	)

	writeJSON(w, http.StatusAccepted, SubmitUploadResponse{
		TaskID:   taskID,
		UploadID: uploadID,
		Status:   string(task.StatusQueued),
	})
}

// GetTask handles GET /tasks/{id} requests.
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")

	t, err := h.queue.Get(r.Context(), taskID)
	if errors.Is(err, task.ErrTaskNotFound) && h.history != nil {
		// The in-memory record may be gone after a restart; the durable
		// history still answers for it.
		t, err = h.history.FindTask(r.Context(), taskID)
	}
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found", "TASK_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get task",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get task", "TASK_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, taskResponse(t))
}

// taskResponse maps a task record onto its HTTP representation.
func taskResponse(t *task.Task) TaskResponse {
	return TaskResponse{
		ID:        t.ID,
		Type:      t.Type,
		Status:    string(t.Status),
		UploadID:  t.Kwargs.String(worker.KwargUploadID),
		OwnerID:   t.OwnerID,
		Error:     t.Error,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// OwnerTasks handles GET /owners/{id}/tasks requests, listing the
// owner's tasks from the durable history, newest first.
func (h *Handlers) OwnerTasks(w http.ResponseWriter, r *http.Request) {
	ownerID := r.PathValue("id")

	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "task history is not configured", "TASK_HISTORY_DISABLED")
		return
	}

	tasks, err := h.history.TasksByOwner(r.Context(), ownerID)
	if err != nil {
		h.logger.Error("failed to list owner tasks",
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list tasks", "TASK_FETCH_FAILED")
		return
	}

	resp := OwnerTasksResponse{OwnerID: ownerID, Tasks: []TaskResponse{}}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, taskResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CancelTask handles POST /tasks/{id}/cancel requests. A queued task is
// withdrawn from the queue; a processing task halts at the next step
// boundary. Cancelling an already-terminal task reports cancelled=false.
func (h *Handlers) CancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")

	if _, err := h.queue.Get(r.Context(), taskID); err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found", "TASK_NOT_FOUND")
			return
		}
	}

	cancelled, err := h.queue.Cancel(r.Context(), taskID)
	if err != nil {
		h.logger.Error("failed to cancel task",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to cancel task", "TASK_CANCEL_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, CancelResponse{
		ID:        taskID,
		Cancelled: cancelled,
		Status:    h.taskStatus(r, taskID),
	})
}

// RetryTask handles POST /tasks/{id}/retry requests. Retrying means
// requeuing the existing task; the upload state keeps completed steps, so
// the pipeline resumes at the first unfinished one.
func (h *Handlers) RetryTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")

	if _, err := h.queue.Get(r.Context(), taskID); err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found", "TASK_NOT_FOUND")
			return
		}
	}

	requeued, err := h.queue.Requeue(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found", "TASK_NOT_FOUND")
			return
		}
		h.logger.Error("failed to requeue task",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to requeue task", "TASK_RETRY_FAILED")
		return
	}
	if !requeued {
		writeError(w, http.StatusConflict, "task is currently processing", "TASK_NOT_RETRYABLE")
		return
	}

	writeJSON(w, http.StatusOK, RetryResponse{
		ID:       taskID,
		Requeued: true,
		Status:   string(task.StatusQueued),
	})
}

// GetProgress handles GET /uploads/{id}/progress requests.
func (h *Handlers) GetProgress(w http.ResponseWriter, r *http.Request) {
	uploadID := r.PathValue("id")

	state, err := h.states.Get(r.Context(), uploadID)
	if err != nil {
		if errors.Is(err, pipeline.ErrStateNotFound) {
			writeError(w, http.StatusNotFound, "upload not found", "UPLOAD_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get upload state",
			slog.String("upload_id", uploadID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get upload state", "STATE_FETCH_FAILED")
		return
	}

	resp := ProgressResponse{
		UploadID:    state.UploadID,
		Status:      string(state.Status),
		CurrentStep: string(state.CurrentStep),
	}
	for _, name := range pipeline.StepOrder(state.Config) {
		rec := state.Steps[name]
		if rec == nil {
			continue
		}
		resp.Steps = append(resp.Steps, StepProgress{
			Name:      string(name),
			Status:    string(rec.Status),
			Error:     rec.Error,
			UpdatedAt: rec.UpdatedAt,
		})
	}
	for _, e := range state.Errors {
		resp.Errors = append(resp.Errors, ProgressError{
			Step:      string(e.Step),
			Message:   e.Message,
			Timestamp: e.Timestamp,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetVideo handles GET /uploads/{id}/video requests. The composed video
// is served as an S3 URL when one exists, otherwise as base64 content.
func (h *Handlers) GetVideo(w http.ResponseWriter, r *http.Request) {
	uploadID := r.PathValue("id")

	state, err := h.states.Get(r.Context(), uploadID)
	if err != nil {
		if errors.Is(err, pipeline.ErrStateNotFound) {
			writeError(w, http.StatusNotFound, "upload not found", "UPLOAD_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get upload state",
			slog.String("upload_id", uploadID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get upload state", "STATE_FETCH_FAILED")
		return
	}

	if state.Status != pipeline.StatusCompleted {
		writeError(w, http.StatusConflict, "upload is not completed", "UPLOAD_NOT_COMPLETED")
		return
	}

	rec := state.Steps[pipeline.StepCompose]
	if rec == nil || rec.Payload == nil {
		writeError(w, http.StatusInternalServerError, "composed video record missing", "COMPOSITION_MISSING")
		return
	}
	var composition pipeline.Composition
	if err := rec.Payload.Decode(pipeline.KindComposition, &composition); err != nil {
		h.logger.Error("failed to decode composition payload",
			slog.String("upload_id", uploadID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "composed video record invalid", "COMPOSITION_INVALID")
		return
	}

	resp := VideoResponse{
		UploadID: uploadID,
		Status:   string(state.Status),
	}

	if composition.VideoURL != "" {
		resp.VideoURL = composition.VideoURL
	} else if composition.VideoPath != "" {
		videoData, err := os.ReadFile(composition.VideoPath) // #nosec G304 - path produced by the compose step
		if err != nil {
			h.logger.Error("failed to read composed video",
				slog.String("upload_id", uploadID),
				slog.String("path", composition.VideoPath),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "composed video unavailable", "VIDEO_READ_FAILED")
			return
		}
		resp.VideoBase64 = base64.StdEncoding.EncodeToString(videoData)
	}

	if composition.SubtitlePath != "" {
		// Best effort: a missing subtitle file does not fail the request.
		if subData, err := os.ReadFile(composition.SubtitlePath); err == nil { // #nosec G304 - path produced by the compose step
			resp.SubtitleBase64 = base64.StdEncoding.EncodeToString(subData)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// taskStatus fetches the current status string for response bodies,
// returning "" when the task cannot be read.
func (h *Handlers) taskStatus(r *http.Request, taskID string) string {
	t, err := h.queue.Get(r.Context(), taskID)
	if err != nil {
		return ""
	}
	return string(t.Status)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
