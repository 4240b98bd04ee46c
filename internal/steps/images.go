package steps

import (
	"context"
	"fmt"

	"github.com/slidecast/slidecast-api/internal/document"
	"github.com/slidecast/slidecast-api/internal/pipeline"
)

var _ pipeline.Handler = (*ConvertImagesHandler)(nil)

// ConvertImagesHandler renders each document page to a PNG image.
type ConvertImagesHandler struct {
	extractor *document.Extractor
	tempDir   string
}

// NewConvertImagesHandler creates the page-to-image conversion handler.
func NewConvertImagesHandler(extractor *document.Extractor, tempDir string) *ConvertImagesHandler {
	return &ConvertImagesHandler{extractor: extractor, tempDir: tempDir}
}

// Execute renders the source document's pages under the upload's working
// directory. Re-invocation overwrites any images from a previous attempt.
func (h *ConvertImagesHandler) Execute(ctx context.Context, uploadID string, prior map[pipeline.StepName]pipeline.Payload, cfg pipeline.RunConfig) (pipeline.Payload, error) {
	if cfg.SourcePath == "" {
		return pipeline.Payload{}, &pipeline.ValidationError{
			Step: pipeline.StepConvertToImages,
			Msg:  "no source document path in upload configuration",
		}
	}

	outDir := uploadDir(h.tempDir, uploadID, "slides")
	refs, err := h.extractor.RenderImages(ctx, cfg.SourcePath, outDir)
	if err != nil {
		return pipeline.Payload{}, fmt.Errorf("render document pages: %w", err)
	}

	return pipeline.NewPayload(pipeline.KindImageRefs, refs)
}
