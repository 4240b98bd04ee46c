// Package server provides the HTTP API for the Slidecast service.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "time"

// SubmitUploadRequest is the HTTP request body for submitting a document
// for processing. The document is referenced by a path on shared storage
// or carried inline as base64.
type SubmitUploadRequest struct {
	// SourcePath is the path of the document on storage shared with the
	// workers. Required unless DocumentBase64 is set.
	SourcePath string `json:"source_path" validate:"required_without=DocumentBase64"`
	// DocumentBase64 is the base64-encoded document content.
	DocumentBase64 string `json:"document_base64" validate:"omitempty,base64"`
	// AudioLanguage is the narration language. Defaults from server config.
	AudioLanguage string `json:"audio_language"`
	// SubtitleLanguage is the subtitle language. Defaults from server config.
	SubtitleLanguage string `json:"subtitle_language"`
	// GenerateAvatar enables avatar presenter rendering.
	GenerateAvatar bool `json:"generate_avatar"`
	// GenerateSubtitles enables subtitle generation.
	GenerateSubtitles bool `json:"generate_subtitles"`
	// OwnerID optionally identifies the submitting user for audit
	// queries over the task history.
	OwnerID string `json:"owner_id"`
}

// SubmitUploadResponse is the HTTP response after submitting an upload.
type SubmitUploadResponse struct {
	// TaskID identifies the queued processing task.
	TaskID string `json:"task_id"`
	// UploadID identifies the upload across task retries.
	UploadID string `json:"upload_id"`
	// Status is the initial task status.
	Status string `json:"status"`
}

// TaskResponse is the HTTP response for getting task details.
type TaskResponse struct {
	// ID is the unique task identifier.
	ID string `json:"id"`
	// Type is the task type.
	Type string `json:"type"`
	// Status is the current task status.
	Status string `json:"status"`
	// UploadID is the upload the task processes.
	UploadID string `json:"upload_id,omitempty"`
	// OwnerID is the submitting user when one was given.
	OwnerID string `json:"owner_id,omitempty"`
	// Error contains any error message if the task failed.
	Error string `json:"error,omitempty"`
	// CreatedAt is when the task was submitted.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the task last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// CancelResponse is the HTTP response for a cancellation request.
type CancelResponse struct {
	// ID is the task identifier.
	ID string `json:"id"`
	// Cancelled reports whether the cancellation took effect.
	Cancelled bool `json:"cancelled"`
	// Status is the task status after the request.
	Status string `json:"status"`
}

// RetryResponse is the HTTP response for a retry request.
type RetryResponse struct {
	// ID is the task identifier.
	ID string `json:"id"`
	// Requeued reports whether the task is back on the queue.
	Requeued bool `json:"requeued"`
	// Status is the task status after the request.
	Status string `json:"status"`
}

// StepProgress is the per-step view within a progress response.
type StepProgress struct {
	// Name is the step name.
	Name string `json:"name"`
	// Status is the current step status.
	Status string `json:"status"`
	// Error contains the handler error message if the step failed.
	Error string `json:"error,omitempty"`
	// UpdatedAt is when the step record last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// ProgressError is one entry of an upload's error log.
type ProgressError struct {
	// Step is the step that produced the error.
	Step string `json:"step"`
	// Message is the recorded error message.
	Message string `json:"message"`
	// Timestamp is when the error was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// ProgressResponse is the HTTP response for upload progress.
type ProgressResponse struct {
	// UploadID identifies the upload.
	UploadID string `json:"upload_id"`
	// Status is the overall upload status.
	Status string `json:"status"`
	// CurrentStep is the most recently touched step.
	CurrentStep string `json:"current_step,omitempty"`
	// Steps lists every configured step in execution order.
	Steps []StepProgress `json:"steps"`
	// Errors is the upload's error log.
	Errors []ProgressError `json:"errors,omitempty"`
}

// VideoResponse is the HTTP response for retrieving the composed video.
type VideoResponse struct {
	// UploadID identifies the upload.
	UploadID string `json:"upload_id"`
	// Status is the overall upload status.
	Status string `json:"status"`
	// VideoBase64 is the base64-encoded video content when no S3 URL exists.
	VideoBase64 string `json:"video_base64,omitempty"`
	// VideoURL is the S3 URL of the composed video when uploaded.
	VideoURL string `json:"video_url,omitempty"`
	// SubtitleBase64 is the base64-encoded subtitle file when generated.
	SubtitleBase64 string `json:"subtitle_base64,omitempty"`
}

// OwnerTasksResponse is the HTTP response for an owner's task history.
type OwnerTasksResponse struct {
	// OwnerID identifies the owner.
	OwnerID string `json:"owner_id"`
	// Tasks lists the owner's tasks, newest first.
	Tasks []TaskResponse `json:"tasks"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
