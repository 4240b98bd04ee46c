package steps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/slidecast/slidecast-api/internal/pipeline"
	"github.com/slidecast/slidecast-api/internal/providers"
	"github.com/slidecast/slidecast-api/internal/tts"
)

var _ pipeline.Handler = (*GenerateAudioHandler)(nil)

// GenerateAudioHandler synthesizes one audio clip per slide from the
// reviewed narration. Providers are tried in chain order per clip; a
// slide whose synthesis fails on every provider is dropped, and the step
// fails only when no clip could be produced.
type GenerateAudioHandler struct {
	chain   *providers.Chain[tts.Synthesizer]
	tempDir string
	logger  *slog.Logger
}

// NewGenerateAudioHandler creates the speech synthesis handler.
func NewGenerateAudioHandler(chain *providers.Chain[tts.Synthesizer], tempDir string, logger *slog.Logger) *GenerateAudioHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerateAudioHandler{chain: chain, tempDir: tempDir, logger: logger}
}

// Execute synthesizes a clip for every non-empty script line. Slides with
// empty narration produce no clip; downstream composition treats the
// missing slide index as legitimately silent.
func (h *GenerateAudioHandler) Execute(ctx context.Context, uploadID string, prior map[pipeline.StepName]pipeline.Payload, cfg pipeline.RunConfig) (pipeline.Payload, error) {
	var scripts []pipeline.ScriptLine
	if err := requirePayload(pipeline.StepGenerateAudio, prior, pipeline.StepReviewScripts, pipeline.KindScripts, &scripts); err != nil {
		return pipeline.Payload{}, err
	}

	outDir := uploadDir(h.tempDir, uploadID, "audio")
	if err := os.MkdirAll(outDir, 0750); err != nil {
		return pipeline.Payload{}, fmt.Errorf("create audio dir: %w", err)
	}

	clips := make([]pipeline.MediaClip, 0, len(scripts))
	var attempted int
	var errs []error
	for _, line := range scripts {
		if strings.TrimSpace(line.Text) == "" {
			continue
		}
		attempted++

		audio, err := providers.Try(ctx, h.chain, func(ctx context.Context, s tts.Synthesizer) ([]byte, error) {
			return s.Synthesize(ctx, line.Text, cfg.AudioLanguage)
		})
		if err != nil {
			if ctx.Err() != nil {
				return pipeline.Payload{}, fmt.Errorf("synthesize slide %d: %w", line.Slide, err)
			}
			h.logger.Warn("audio synthesis failed for slide",
				slog.String("upload_id", uploadID),
				slog.Int("slide", line.Slide),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("slide %d: %w", line.Slide, err))
			continue
		}

		clipPath := filepath.Join(outDir, fmt.Sprintf("slide-%03d.wav", line.Slide))
		if err := os.WriteFile(clipPath, audio, 0600); err != nil {
			return pipeline.Payload{}, fmt.Errorf("write audio clip for slide %d: %w", line.Slide, err)
		}
		clips = append(clips, pipeline.MediaClip{Slide: line.Slide, Path: clipPath})
	}

	if attempted > 0 && len(clips) == 0 {
		return pipeline.Payload{}, fmt.Errorf("generate audio: all slides failed: %w", errors.Join(errs...))
	}

	return pipeline.NewPayload(pipeline.KindAudioClips, clips)
}
