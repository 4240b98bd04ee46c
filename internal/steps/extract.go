package steps

import (
	"context"
	"fmt"

	"github.com/slidecast/slidecast-api/internal/document"
	"github.com/slidecast/slidecast-api/internal/pipeline"
)

// Compile-time check that ExtractHandler implements pipeline.Handler.
var _ pipeline.Handler = (*ExtractHandler)(nil)

// ExtractHandler pulls per-slide text out of the uploaded document.
type ExtractHandler struct {
	extractor *document.Extractor
}

// NewExtractHandler creates the text extraction handler.
func NewExtractHandler(extractor *document.Extractor) *ExtractHandler {
	return &ExtractHandler{extractor: extractor}
}

// Execute extracts the text of every page of the source document.
func (h *ExtractHandler) Execute(ctx context.Context, uploadID string, prior map[pipeline.StepName]pipeline.Payload, cfg pipeline.RunConfig) (pipeline.Payload, error) {
	if cfg.SourcePath == "" {
		return pipeline.Payload{}, &pipeline.ValidationError{
			Step: pipeline.StepExtract,
			Msg:  "no source document path in upload configuration",
		}
	}

	texts, err := h.extractor.ExtractText(ctx, cfg.SourcePath)
	if err != nil {
		return pipeline.Payload{}, fmt.Errorf("extract document text: %w", err)
	}

	return pipeline.NewPayload(pipeline.KindSlideTexts, texts)
}
