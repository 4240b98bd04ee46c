package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/slidecast/slidecast-api/internal/llm"
	"github.com/slidecast/slidecast-api/internal/pipeline"
)

var (
	_ pipeline.Handler = (*GenerateSubtitleScriptsHandler)(nil)
	_ pipeline.Handler = (*ReviewSubtitleScriptsHandler)(nil)
)

const translateSystemPrompt = "You translate narration scripts for slide " +
	"presentations. Translate the narration faithfully into the requested " +
	"language, keeping a natural spoken register. Answer with the translation only."

const subtitleReviewSystemPrompt = "You review translated subtitles for slide " +
	"presentations. Fix grammar and unnatural phrasing while keeping the meaning " +
	"and the language unchanged. Answer with the corrected subtitle only."

// GenerateSubtitleScriptsHandler translates the reviewed narration into
// the subtitle language. The step only exists when the subtitle language
// differs from the narration language.
type GenerateSubtitleScriptsHandler struct {
	client llm.Client
}

// NewGenerateSubtitleScriptsHandler creates the subtitle translation handler.
func NewGenerateSubtitleScriptsHandler(client llm.Client) *GenerateSubtitleScriptsHandler {
	return &GenerateSubtitleScriptsHandler{client: client}
}

// Execute translates each reviewed script line into the subtitle language.
func (h *GenerateSubtitleScriptsHandler) Execute(ctx context.Context, uploadID string, prior map[pipeline.StepName]pipeline.Payload, cfg pipeline.RunConfig) (pipeline.Payload, error) {
	var scripts []pipeline.ScriptLine
	if err := requirePayload(pipeline.StepGenerateSubtitleScripts, prior, pipeline.StepReviewScripts, pipeline.KindScripts, &scripts); err != nil {
		return pipeline.Payload{}, err
	}

	translated := make([]pipeline.ScriptLine, 0, len(scripts))
	for _, line := range scripts {
		if strings.TrimSpace(line.Text) == "" {
			translated = append(translated, pipeline.ScriptLine{Slide: line.Slide})
			continue
		}
		text, err := h.client.Complete(ctx, llm.CompletionRequest{
			System: translateSystemPrompt,
			Prompt: fmt.Sprintf("Translate into %s:\n\n%s", cfg.SubtitleLanguage, line.Text),
		})
		if err != nil {
			return pipeline.Payload{}, fmt.Errorf("translate subtitle for slide %d: %w", line.Slide, err)
		}
		translated = append(translated, pipeline.ScriptLine{Slide: line.Slide, Text: strings.TrimSpace(text)})
	}

	return pipeline.NewPayload(pipeline.KindSubtitleScripts, translated)
}

// ReviewSubtitleScriptsHandler runs the translated subtitles through a
// correction pass.
type ReviewSubtitleScriptsHandler struct {
	client llm.Client
}

// NewReviewSubtitleScriptsHandler creates the subtitle review handler.
func NewReviewSubtitleScriptsHandler(client llm.Client) *ReviewSubtitleScriptsHandler {
	return &ReviewSubtitleScriptsHandler{client: client}
}

// Execute reviews each translated subtitle line and returns the
// corrected set.
func (h *ReviewSubtitleScriptsHandler) Execute(ctx context.Context, uploadID string, prior map[pipeline.StepName]pipeline.Payload, cfg pipeline.RunConfig) (pipeline.Payload, error) {
	var subtitles []pipeline.ScriptLine
	if err := requirePayload(pipeline.StepReviewSubtitleScripts, prior, pipeline.StepGenerateSubtitleScripts, pipeline.KindSubtitleScripts, &subtitles); err != nil {
		return pipeline.Payload{}, err
	}

	reviewed, err := reviewLines(ctx, h.client, subtitles, subtitleReviewSystemPrompt)
	if err != nil {
		return pipeline.Payload{}, err
	}
	return pipeline.NewPayload(pipeline.KindSubtitleScripts, reviewed)
}
