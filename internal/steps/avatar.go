package steps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/slidecast/slidecast-api/internal/pipeline"
	"github.com/slidecast/slidecast-api/internal/providers"
	"github.com/slidecast/slidecast-api/internal/render"
)

var _ pipeline.Handler = (*AvatarHandler)(nil)

// AvatarHandler renders one presenter clip per narrated slide. Providers
// are tried in chain order per clip; slides whose rendering fails on
// every provider are dropped, and composition degrades those slides to
// image-plus-audio. The step fails only when every slide failed.
type AvatarHandler struct {
	chain   *providers.Chain[render.Renderer]
	tempDir string
	logger  *slog.Logger
}

// NewAvatarHandler creates the avatar rendering handler.
func NewAvatarHandler(chain *providers.Chain[render.Renderer], tempDir string, logger *slog.Logger) *AvatarHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AvatarHandler{chain: chain, tempDir: tempDir, logger: logger}
}

// Execute renders an avatar clip for every slide that has both an image
// and an audio clip. When no render provider is configured the step is
// skipped rather than failed.
func (h *AvatarHandler) Execute(ctx context.Context, uploadID string, prior map[pipeline.StepName]pipeline.Payload, cfg pipeline.RunConfig) (pipeline.Payload, error) {
	if h.chain == nil || h.chain.Len() == 0 {
		return pipeline.Payload{}, pipeline.ErrSkipStep
	}

	var refs []string
	if err := requirePayload(pipeline.StepGenerateAvatarVideos, prior, pipeline.StepConvertToImages, pipeline.KindImageRefs, &refs); err != nil {
		return pipeline.Payload{}, err
	}
	var audioClips []pipeline.MediaClip
	if err := requirePayload(pipeline.StepGenerateAvatarVideos, prior, pipeline.StepGenerateAudio, pipeline.KindAudioClips, &audioClips); err != nil {
		return pipeline.Payload{}, err
	}

	outDir := uploadDir(h.tempDir, uploadID, "avatar")
	if err := os.MkdirAll(outDir, 0750); err != nil {
		return pipeline.Payload{}, fmt.Errorf("create avatar dir: %w", err)
	}

	clips := make([]pipeline.MediaClip, 0, len(audioClips))
	var attempted int
	var errs []error
	for _, audio := range audioClips {
		if audio.Slide < 0 || audio.Slide >= len(refs) {
			continue
		}
		attempted++

		destPath := filepath.Join(outDir, fmt.Sprintf("slide-%03d.mp4", audio.Slide))
		_, err := providers.Try(ctx, h.chain, func(ctx context.Context, r render.Renderer) (struct{}, error) {
			return struct{}{}, r.RenderClip(ctx, refs[audio.Slide], audio.Path, destPath)
		})
		if err != nil {
			if ctx.Err() != nil {
				return pipeline.Payload{}, fmt.Errorf("render avatar for slide %d: %w", audio.Slide, err)
			}
			h.logger.Warn("avatar rendering failed for slide",
				slog.String("upload_id", uploadID),
				slog.Int("slide", audio.Slide),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("slide %d: %w", audio.Slide, err))
			continue
		}
		clips = append(clips, pipeline.MediaClip{Slide: audio.Slide, Path: destPath})
	}

	if attempted > 0 && len(clips) == 0 {
		return pipeline.Payload{}, fmt.Errorf("generate avatar videos: all slides failed: %w", errors.Join(errs...))
	}

	return pipeline.NewPayload(pipeline.KindAvatarClips, clips)
}
