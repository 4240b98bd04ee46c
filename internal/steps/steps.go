// Package steps binds the pipeline steps to their collaborators: document
// extraction, the language model, speech synthesis, avatar rendering, and
// composition. Each handler validates the prior-step payloads it declares
// and is safe to re-invoke.
package steps

import (
	"log/slog"
	"path/filepath"

	"github.com/slidecast/slidecast-api/internal/compose"
	"github.com/slidecast/slidecast-api/internal/document"
	"github.com/slidecast/slidecast-api/internal/llm"
	"github.com/slidecast/slidecast-api/internal/pipeline"
	"github.com/slidecast/slidecast-api/internal/providers"
	"github.com/slidecast/slidecast-api/internal/render"
	"github.com/slidecast/slidecast-api/internal/storage"
	"github.com/slidecast/slidecast-api/internal/tts"
)

// Deps carries the step handler collaborators.
type Deps struct {
	Extractor *document.Extractor
	LLM       llm.Client
	TTS       *providers.Chain[tts.Synthesizer]
	Render    *providers.Chain[render.Renderer]
	Composer  *compose.Composer
	Storage   storage.Storage
	TempDir   string
	Logger    *slog.Logger
}

// Registry builds the full step handler map for the orchestrator.
func Registry(deps Deps) map[pipeline.StepName]pipeline.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return map[pipeline.StepName]pipeline.Handler{
		pipeline.StepExtract:                 NewExtractHandler(deps.Extractor),
		pipeline.StepConvertToImages:         NewConvertImagesHandler(deps.Extractor, deps.TempDir),
		pipeline.StepAnalyzeImages:           NewAnalyzeImagesHandler(deps.LLM, logger),
		pipeline.StepGenerateScripts:         NewGenerateScriptsHandler(deps.LLM),
		pipeline.StepReviewScripts:           NewReviewScriptsHandler(deps.LLM),
		pipeline.StepGenerateSubtitleScripts: NewGenerateSubtitleScriptsHandler(deps.LLM),
		pipeline.StepReviewSubtitleScripts:   NewReviewSubtitleScriptsHandler(deps.LLM),
		pipeline.StepGenerateAudio:           NewGenerateAudioHandler(deps.TTS, deps.TempDir, logger),
		pipeline.StepGenerateAvatarVideos:    NewAvatarHandler(deps.Render, deps.TempDir, logger),
		pipeline.StepCompose:                 NewComposeHandler(deps.Composer, deps.Storage, deps.TempDir, logger),
	}
}

// uploadDir returns the per-upload working directory.
func uploadDir(tempDir, uploadID string, parts ...string) string {
	elems := append([]string{tempDir, uploadID}, parts...)
	return filepath.Join(elems...)
}

// requirePayload decodes a prior step's payload into dst, returning a
// ValidationError when the step has no payload or the decode fails.
func requirePayload(step pipeline.StepName, prior map[pipeline.StepName]pipeline.Payload, from pipeline.StepName, kind pipeline.PayloadKind, dst any) error {
	payload, ok := prior[from]
	if !ok {
		return &pipeline.ValidationError{Step: step, Msg: "missing " + string(from) + " payload"}
	}
	if err := payload.Decode(kind, dst); err != nil {
		return &pipeline.ValidationError{Step: step, Msg: err.Error()}
	}
	return nil
}
