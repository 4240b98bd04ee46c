package steps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/slidecast/slidecast-api/internal/compose"
	"github.com/slidecast/slidecast-api/internal/pipeline"
	"github.com/slidecast/slidecast-api/internal/storage"
)

var _ pipeline.Handler = (*ComposeHandler)(nil)

// ComposeHandler assembles the final video from whatever per-slide media
// the earlier steps produced. Each slide degrades independently: avatar
// clip, then slide image with narration, then the image alone.
type ComposeHandler struct {
	composer *compose.Composer
	storage  storage.Storage
	tempDir  string
	logger   *slog.Logger
}

// NewComposeHandler creates the composition handler.
func NewComposeHandler(composer *compose.Composer, store storage.Storage, tempDir string, logger *slog.Logger) *ComposeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ComposeHandler{composer: composer, storage: store, tempDir: tempDir, logger: logger}
}

// Execute composes the final video, writes the subtitle file when
// configured, and uploads the result when an S3 store is available. The
// S3 upload is best effort: a failed upload keeps the local artifact.
func (h *ComposeHandler) Execute(ctx context.Context, uploadID string, prior map[pipeline.StepName]pipeline.Payload, cfg pipeline.RunConfig) (pipeline.Payload, error) {
	var refs []string
	if err := requirePayload(pipeline.StepCompose, prior, pipeline.StepConvertToImages, pipeline.KindImageRefs, &refs); err != nil {
		return pipeline.Payload{}, err
	}
	if len(refs) == 0 {
		return pipeline.Payload{}, &pipeline.ValidationError{
			Step: pipeline.StepCompose,
			Msg:  "no slide images to compose",
		}
	}

	audioBySlide := clipsBySlide(prior, pipeline.StepGenerateAudio, pipeline.KindAudioClips)
	avatarBySlide := clipsBySlide(prior, pipeline.StepGenerateAvatarVideos, pipeline.KindAvatarClips)

	slides := make([]compose.SlideInput, len(refs))
	for i, ref := range refs {
		slides[i] = compose.SlideInput{ImagePath: ref}
		if clip, ok := audioBySlide[i]; ok {
			slides[i].AudioPath = clip.Path
		}
		if clip, ok := avatarBySlide[i]; ok {
			slides[i].AvatarPath = clip.Path
		}
	}

	outDir := uploadDir(h.tempDir, uploadID)
	videoPath := filepath.Join(outDir, "video.mp4")
	if err := h.composer.Compose(ctx, slides, filepath.Join(outDir, "segments"), videoPath); err != nil {
		return pipeline.Payload{}, fmt.Errorf("compose video: %w", err)
	}

	result := pipeline.Composition{VideoPath: videoPath}

	if cfg.GenerateSubtitles {
		subtitlePath, err := h.writeSubtitles(ctx, prior, slides, filepath.Join(outDir, "video.srt"))
		if err != nil {
			return pipeline.Payload{}, err
		}
		result.SubtitlePath = subtitlePath
	}

	if url := h.uploadVideo(ctx, uploadID, videoPath); url != "" {
		result.VideoURL = url
	}

	return pipeline.NewPayload(pipeline.KindComposition, result)
}

// writeSubtitles lays the subtitle texts along the composed timeline and
// writes an SRT file. Slide durations follow the same media the video
// segments were built from.
func (h *ComposeHandler) writeSubtitles(ctx context.Context, prior map[pipeline.StepName]pipeline.Payload, slides []compose.SlideInput, path string) (string, error) {
	texts := subtitleTexts(prior, len(slides))

	durations := make([]float64, len(slides))
	for i, slide := range slides {
		mediaPath := slide.AvatarPath
		if mediaPath == "" {
			mediaPath = slide.AudioPath
		}
		if mediaPath == "" {
			durations[i] = compose.StillDuration
			continue
		}
		d, err := h.composer.Duration(ctx, mediaPath)
		if err != nil {
			return "", fmt.Errorf("probe duration for slide %d: %w", i, err)
		}
		durations[i] = d
	}

	cues := compose.BuildCues(texts, durations)
	if len(cues) == 0 {
		return "", nil
	}
	if err := compose.WriteSRT(path, cues); err != nil {
		return "", err
	}
	return path, nil
}

// subtitleTexts picks the subtitle source: the translated and reviewed
// subtitles when that step ran, otherwise the reviewed narration.
func subtitleTexts(prior map[pipeline.StepName]pipeline.Payload, slideCount int) []string {
	lines := decodeLines(prior, pipeline.StepReviewSubtitleScripts, pipeline.KindSubtitleScripts)
	if lines == nil {
		lines = decodeLines(prior, pipeline.StepReviewScripts, pipeline.KindScripts)
	}

	texts := make([]string, slideCount)
	for _, line := range lines {
		if line.Slide >= 0 && line.Slide < slideCount {
			texts[line.Slide] = strings.TrimSpace(line.Text)
		}
	}
	return texts
}

// uploadVideo pushes the composed video to the artifact store. A missing
// S3 configuration is normal; any other failure is logged and ignored so
// the local artifact still serves the upload.
func (h *ComposeHandler) uploadVideo(ctx context.Context, uploadID, videoPath string) string {
	if h.storage == nil {
		return ""
	}

	f, err := os.Open(videoPath) // #nosec G304 - path produced by this handler
	if err != nil {
		h.logger.Warn("open composed video for upload failed",
			slog.String("upload_id", uploadID),
			slog.String("error", err.Error()),
		)
		return ""
	}
	defer func() { _ = f.Close() }()

	url, err := h.storage.PublishVideo(ctx, uploadID, f)
	if err != nil {
		if !errors.Is(err, storage.ErrS3NotConfigured) {
			h.logger.Warn("video upload failed",
				slog.String("upload_id", uploadID),
				slog.String("error", err.Error()),
			)
		}
		return ""
	}
	return url
}

// clipsBySlide decodes a fan-out step's clips indexed by slide number.
// Absent or skipped steps yield an empty map.
func clipsBySlide(prior map[pipeline.StepName]pipeline.Payload, step pipeline.StepName, kind pipeline.PayloadKind) map[int]pipeline.MediaClip {
	payload, ok := prior[step]
	if !ok {
		return map[int]pipeline.MediaClip{}
	}
	var clips []pipeline.MediaClip
	if err := payload.Decode(kind, &clips); err != nil {
		return map[int]pipeline.MediaClip{}
	}
	return pipeline.ClipBySlide(clips)
}

// decodeLines decodes a script payload, returning nil when the step is
// absent or the payload does not decode.
func decodeLines(prior map[pipeline.StepName]pipeline.Payload, step pipeline.StepName, kind pipeline.PayloadKind) []pipeline.ScriptLine {
	payload, ok := prior[step]
	if !ok {
		return nil
	}
	var lines []pipeline.ScriptLine
	if err := payload.Decode(kind, &lines); err != nil {
		return nil
	}
	return lines
}
