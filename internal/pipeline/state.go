// Package pipeline provides the upload processing state machine.
// It includes the UploadState aggregate with per-step progress records,
// the Store port for state persistence, and the Orchestrator that drives
// the ordered step list to completion or failure.
package pipeline

import (
	"time"
)

// Status represents the overall lifecycle of an upload.
type Status string

const (
	// StatusUploaded indicates the upload is known but processing has not started.
	StatusUploaded Status = "uploaded"
	// StatusProcessing indicates the pipeline is actively running steps.
	StatusProcessing Status = "processing"
	// StatusCompleted indicates every configured step finished.
	StatusCompleted Status = "completed"
	// StatusFailed indicates a step failed or the run was cancelled.
	StatusFailed Status = "failed"
)

// IsTerminal returns true if the status represents a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StepStatus represents the lifecycle of a single pipeline step.
type StepStatus string

const (
	// StepPending indicates the step has not run yet.
	StepPending StepStatus = "pending"
	// StepProcessing indicates the step handler is executing.
	StepProcessing StepStatus = "processing"
	// StepCompleted indicates the step finished and its payload is persisted.
	StepCompleted StepStatus = "completed"
	// StepFailed indicates the step handler raised an unrecoverable error.
	StepFailed StepStatus = "failed"
	// StepSkipped indicates the step was intentionally bypassed for this run.
	StepSkipped StepStatus = "skipped"
)

// StepName identifies one stage of the pipeline.
type StepName string

// Pipeline steps in their baseline execution order.
const (
	StepExtract                 StepName = "extract"
	StepConvertToImages         StepName = "convert_to_images"
	StepAnalyzeImages           StepName = "analyze_images"
	StepGenerateScripts         StepName = "generate_scripts"
	StepReviewScripts           StepName = "review_scripts"
	StepGenerateSubtitleScripts StepName = "generate_subtitle_scripts"
	StepReviewSubtitleScripts   StepName = "review_subtitle_scripts"
	StepGenerateAudio           StepName = "generate_audio"
	StepGenerateAvatarVideos    StepName = "generate_avatar_videos"
	StepCompose                 StepName = "compose"
)

// RunConfig is the per-upload configuration captured at submission time.
// The configured step set is computed from it exactly once per run.
type RunConfig struct {
	// SourcePath is the uploaded document on shared storage.
	SourcePath string `json:"source_path"`
	// AudioLanguage is the narration language.
	AudioLanguage string `json:"audio_language"`
	// SubtitleLanguage is the subtitle language.
	SubtitleLanguage string `json:"subtitle_language"`
	// GenerateAvatar enables the avatar rendering step.
	GenerateAvatar bool `json:"generate_avatar"`
	// GenerateSubtitles enables subtitle generation.
	GenerateSubtitles bool `json:"generate_subtitles"`
}

// StepRecord tracks the persisted status and output of a single step.
type StepRecord struct {
	// Status is the current step status.
	Status StepStatus `json:"status"`
	// Payload is the step output, present once the step completed.
	Payload *Payload `json:"payload,omitempty"`
	// Error contains the handler error message if the step failed.
	Error string `json:"error,omitempty"`
	// UpdatedAt is when the record last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrorEntry is one append-only entry in an upload's error log.
type ErrorEntry struct {
	// Step is the step that produced the error.
	Step StepName `json:"step"`
	// Message is the recorded error message.
	Message string `json:"message"`
	// Timestamp is when the error was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// UploadState is the step-by-step progress record for one upload.
// It is mutated by the Orchestrator only; the design assumes at most one
// active writer per upload id at any time.
type UploadState struct {
	// UploadID identifies the upload this state belongs to.
	UploadID string `json:"upload_id"`
	// Status is the overall upload status.
	Status Status `json:"status"`
	// CurrentStep is the most recently touched step.
	CurrentStep StepName `json:"current_step,omitempty"`
	// Steps maps each configured step to its record. The key set is fixed
	// per run; ordering is recovered via StepOrder(Config).
	Steps map[StepName]*StepRecord `json:"steps"`
	// Config is the configuration the step set was computed from.
	Config RunConfig `json:"config"`
	// Errors is the append-only error log.
	Errors []ErrorEntry `json:"errors,omitempty"`
	// CreatedAt is when the state was first created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the state last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewUploadState creates a state with every configured step initialized
// to pending.
func NewUploadState(uploadID string, cfg RunConfig) *UploadState {
	now := time.Now()
	steps := make(map[StepName]*StepRecord)
	for _, name := range StepOrder(cfg) {
		steps[name] = &StepRecord{Status: StepPending, UpdatedAt: now}
	}
	return &UploadState{
		UploadID:  uploadID,
		Status:    StatusUploaded,
		Steps:     steps,
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// StepDone reports whether a step needs no further work this run.
func (s *UploadState) StepDone(name StepName) bool {
	rec, ok := s.Steps[name]
	if !ok {
		return false
	}
	return rec.Status == StepCompleted || rec.Status == StepSkipped
}

// CompletedPayloads returns the payloads of all completed steps, keyed by
// step name. Handlers receive this map and pick the inputs they declare.
func (s *UploadState) CompletedPayloads() map[StepName]Payload {
	out := make(map[StepName]Payload)
	for name, rec := range s.Steps {
		if rec.Status == StepCompleted && rec.Payload != nil {
			out[name] = *rec.Payload
		}
	}
	return out
}

// Clone creates a deep copy of the state for safe reads.
func (s *UploadState) Clone() *UploadState {
	steps := make(map[StepName]*StepRecord, len(s.Steps))
	for name, rec := range s.Steps {
		cp := *rec
		if rec.Payload != nil {
			p := *rec.Payload
			cp.Payload = &p
		}
		steps[name] = &cp
	}
	errs := make([]ErrorEntry, len(s.Errors))
	copy(errs, s.Errors)

	return &UploadState{
		UploadID:    s.UploadID,
		Status:      s.Status,
		CurrentStep: s.CurrentStep,
		Steps:       steps,
		Config:      s.Config,
		Errors:      errs,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

// StepOrder computes the ordered step list for a configuration.
// It is a pure function evaluated once before the first step of a run;
// the result is never revisited mid-run.
func StepOrder(cfg RunConfig) []StepName {
	steps := []StepName{
		StepExtract,
		StepConvertToImages,
		StepAnalyzeImages,
		StepGenerateScripts,
		StepReviewScripts,
	}
	if cfg.GenerateSubtitles && cfg.SubtitleLanguage != cfg.AudioLanguage {
		steps = append(steps, StepGenerateSubtitleScripts, StepReviewSubtitleScripts)
	}
	steps = append(steps, StepGenerateAudio)
	if cfg.GenerateAvatar {
		steps = append(steps, StepGenerateAvatarVideos)
	}
	return append(steps, StepCompose)
}
