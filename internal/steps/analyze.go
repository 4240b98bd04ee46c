package steps

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/slidecast/slidecast-api/internal/llm"
	"github.com/slidecast/slidecast-api/internal/pipeline"
)

var _ pipeline.Handler = (*AnalyzeImagesHandler)(nil)

const analyzeSystemPrompt = "You describe presentation slides for a narration writer. " +
	"Summarize the visual content of the slide: charts, diagrams, images, and layout. " +
	"Do not transcribe body text. Answer in two or three sentences."

// AnalyzeImagesHandler describes each slide image with a vision-capable
// language model. One slide failing does not fail the step; the step
// fails only when no slide could be analyzed.
type AnalyzeImagesHandler struct {
	client llm.Client
	logger *slog.Logger
}

// NewAnalyzeImagesHandler creates the slide analysis handler.
func NewAnalyzeImagesHandler(client llm.Client, logger *slog.Logger) *AnalyzeImagesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyzeImagesHandler{client: client, logger: logger}
}

// Execute analyzes every slide image and returns one description per
// successfully analyzed slide.
func (h *AnalyzeImagesHandler) Execute(ctx context.Context, uploadID string, prior map[pipeline.StepName]pipeline.Payload, cfg pipeline.RunConfig) (pipeline.Payload, error) {
	var refs []string
	if err := requirePayload(pipeline.StepAnalyzeImages, prior, pipeline.StepConvertToImages, pipeline.KindImageRefs, &refs); err != nil {
		return pipeline.Payload{}, err
	}
	if len(refs) == 0 {
		return pipeline.Payload{}, &pipeline.ValidationError{
			Step: pipeline.StepAnalyzeImages,
			Msg:  "no slide images to analyze",
		}
	}

	analyses := make([]pipeline.SlideAnalysis, 0, len(refs))
	var errs []error
	for i, ref := range refs {
		description, err := h.analyzeSlide(ctx, ref)
		if err != nil {
			if ctx.Err() != nil {
				return pipeline.Payload{}, fmt.Errorf("analyze slide %d: %w", i, err)
			}
			h.logger.Warn("slide analysis failed",
				slog.String("upload_id", uploadID),
				slog.Int("slide", i),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("slide %d: %w", i, err))
			continue
		}
		analyses = append(analyses, pipeline.SlideAnalysis{Slide: i, Description: description})
	}

	if len(analyses) == 0 {
		return pipeline.Payload{}, fmt.Errorf("analyze images: all slides failed: %w", errors.Join(errs...))
	}

	return pipeline.NewPayload(pipeline.KindSlideAnalyses, analyses)
}

// analyzeSlide sends one slide image to the vision model.
func (h *AnalyzeImagesHandler) analyzeSlide(ctx context.Context, imagePath string) (string, error) {
	data, err := os.ReadFile(imagePath) // #nosec G304 - path produced by the conversion step
	if err != nil {
		return "", fmt.Errorf("read slide image: %w", err)
	}

	description, err := h.client.Complete(ctx, llm.CompletionRequest{
		System:      analyzeSystemPrompt,
		Prompt:      "Describe this slide.",
		ImageBase64: base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(description), nil
}
