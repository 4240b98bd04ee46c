package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/slidecast/slidecast-api/internal/llm"
	"github.com/slidecast/slidecast-api/internal/pipeline"
)

var (
	_ pipeline.Handler = (*GenerateScriptsHandler)(nil)
	_ pipeline.Handler = (*ReviewScriptsHandler)(nil)
)

const generateSystemPrompt = "You write narration scripts for slide presentations. " +
	"Given the text of a slide and a description of its visuals, write what a " +
	"presenter would say for that slide. Speak naturally, do not enumerate bullet " +
	"points, and do not mention the slide itself. Answer with the narration only."

const reviewSystemPrompt = "You review narration scripts for slide presentations. " +
	"Fix grammar, awkward phrasing, and anything that would sound wrong when read " +
	"aloud by a speech synthesizer. Keep the meaning and the language unchanged. " +
	"Answer with the corrected narration only."

// GenerateScriptsHandler writes one narration script per slide from the
// extracted text and the visual analyses.
type GenerateScriptsHandler struct {
	client llm.Client
}

// NewGenerateScriptsHandler creates the script generation handler.
func NewGenerateScriptsHandler(client llm.Client) *GenerateScriptsHandler {
	return &GenerateScriptsHandler{client: client}
}

// Execute produces a narration script for every slide. A slide with no
// text and no analysis yields an empty script line so slide indexes stay
// aligned.
func (h *GenerateScriptsHandler) Execute(ctx context.Context, uploadID string, prior map[pipeline.StepName]pipeline.Payload, cfg pipeline.RunConfig) (pipeline.Payload, error) {
	var texts []string
	if err := requirePayload(pipeline.StepGenerateScripts, prior, pipeline.StepExtract, pipeline.KindSlideTexts, &texts); err != nil {
		return pipeline.Payload{}, err
	}
	if len(texts) == 0 {
		return pipeline.Payload{}, &pipeline.ValidationError{
			Step: pipeline.StepGenerateScripts,
			Msg:  "extracted document has no slides",
		}
	}

	descriptions := analysisBySlide(prior)

	scripts := make([]pipeline.ScriptLine, 0, len(texts))
	for i, text := range texts {
		description := descriptions[i]
		if strings.TrimSpace(text) == "" && description == "" {
			scripts = append(scripts, pipeline.ScriptLine{Slide: i})
			continue
		}

		prompt := buildScriptPrompt(text, description, cfg.AudioLanguage)
		narration, err := h.client.Complete(ctx, llm.CompletionRequest{
			System: generateSystemPrompt,
			Prompt: prompt,
		})
		if err != nil {
			return pipeline.Payload{}, fmt.Errorf("generate script for slide %d: %w", i, err)
		}
		scripts = append(scripts, pipeline.ScriptLine{Slide: i, Text: strings.TrimSpace(narration)})
	}

	return pipeline.NewPayload(pipeline.KindScripts, scripts)
}

// buildScriptPrompt assembles the per-slide generation prompt.
func buildScriptPrompt(text, description, language string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write the narration in %s.\n\n", language)
	if strings.TrimSpace(text) != "" {
		fmt.Fprintf(&b, "Slide text:\n%s\n\n", strings.TrimSpace(text))
	}
	if description != "" {
		fmt.Fprintf(&b, "Slide visuals:\n%s\n", description)
	}
	return b.String()
}

// analysisBySlide indexes slide descriptions by slide number. The
// analysis payload may cover only a subset of slides.
func analysisBySlide(prior map[pipeline.StepName]pipeline.Payload) map[int]string {
	out := make(map[int]string)
	payload, ok := prior[pipeline.StepAnalyzeImages]
	if !ok {
		return out
	}
	var analyses []pipeline.SlideAnalysis
	if err := payload.Decode(pipeline.KindSlideAnalyses, &analyses); err != nil {
		return out
	}
	for _, a := range analyses {
		out[a.Slide] = a.Description
	}
	return out
}

// ReviewScriptsHandler runs every generated script through a correction
// pass so the downstream speech synthesis reads cleanly.
type ReviewScriptsHandler struct {
	client llm.Client
}

// NewReviewScriptsHandler creates the script review handler.
func NewReviewScriptsHandler(client llm.Client) *ReviewScriptsHandler {
	return &ReviewScriptsHandler{client: client}
}

// Execute reviews each script line and returns the corrected set.
func (h *ReviewScriptsHandler) Execute(ctx context.Context, uploadID string, prior map[pipeline.StepName]pipeline.Payload, cfg pipeline.RunConfig) (pipeline.Payload, error) {
	var scripts []pipeline.ScriptLine
	if err := requirePayload(pipeline.StepReviewScripts, prior, pipeline.StepGenerateScripts, pipeline.KindScripts, &scripts); err != nil {
		return pipeline.Payload{}, err
	}

	reviewed, err := reviewLines(ctx, h.client, scripts, reviewSystemPrompt)
	if err != nil {
		return pipeline.Payload{}, err
	}
	return pipeline.NewPayload(pipeline.KindScripts, reviewed)
}

// reviewLines passes each non-empty line through the model with the
// given system instruction, preserving slide alignment.
func reviewLines(ctx context.Context, client llm.Client, lines []pipeline.ScriptLine, system string) ([]pipeline.ScriptLine, error) {
	out := make([]pipeline.ScriptLine, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line.Text) == "" {
			out = append(out, pipeline.ScriptLine{Slide: line.Slide})
			continue
		}
		revised, err := client.Complete(ctx, llm.CompletionRequest{
			System: system,
			Prompt: line.Text,
		})
		if err != nil {
			return nil, fmt.Errorf("review script for slide %d: %w", line.Slide, err)
		}
		out = append(out, pipeline.ScriptLine{Slide: line.Slide, Text: strings.TrimSpace(revised)})
	}
	return out, nil
}
