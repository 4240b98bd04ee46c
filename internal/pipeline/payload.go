package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
)

// PayloadKind discriminates the shape of a step payload.
type PayloadKind string

// Payload kinds produced by the pipeline steps.
const (
	KindSlideTexts      PayloadKind = "slide_texts"
	KindImageRefs       PayloadKind = "image_refs"
	KindSlideAnalyses   PayloadKind = "slide_analyses"
	KindScripts         PayloadKind = "scripts"
	KindSubtitleScripts PayloadKind = "subtitle_scripts"
	KindAudioClips      PayloadKind = "audio_clips"
	KindAvatarClips     PayloadKind = "avatar_clips"
	KindComposition     PayloadKind = "composition"
)

// Static errors for payload handling.
var (
	// ErrPayloadEmpty is returned when decoding a payload with no body.
	ErrPayloadEmpty = errors.New("pipeline: payload body is empty")
	// ErrPayloadKindMismatch is returned when a payload's kind does not
	// match what the handler expects.
	ErrPayloadKindMismatch = errors.New("pipeline: payload kind mismatch")
)

// Payload is the tagged envelope persisted as a step's output.
// The Kind discriminator is validated at every handler boundary so a
// handler never interprets another step's data as its own.
type Payload struct {
	// Kind identifies the body shape.
	Kind PayloadKind `json:"kind"`
	// Body is the kind-specific JSON document.
	Body json.RawMessage `json:"body"`
}

// NewPayload encodes a value into a tagged payload.
func NewPayload(kind PayloadKind, v any) (Payload, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return Payload{}, fmt.Errorf("pipeline: encode %s payload: %w", kind, err)
	}
	return Payload{Kind: kind, Body: body}, nil
}

// Decode unmarshals the payload body into dst after checking the kind.
func (p Payload) Decode(kind PayloadKind, dst any) error {
	if p.Kind != kind {
		return fmt.Errorf("%w: have %q, want %q", ErrPayloadKindMismatch, p.Kind, kind)
	}
	if len(p.Body) == 0 {
		return fmt.Errorf("%w: kind %q", ErrPayloadEmpty, kind)
	}
	if err := json.Unmarshal(p.Body, dst); err != nil {
		return fmt.Errorf("pipeline: decode %s payload: %w", kind, err)
	}
	return nil
}

// SlideAnalysis is the vision model's description of one slide image.
type SlideAnalysis struct {
	// Slide is the zero-based slide index.
	Slide int `json:"slide"`
	// Description summarizes the slide's visual content.
	Description string `json:"description"`
}

// ScriptLine is one narration script entry, one per slide.
type ScriptLine struct {
	// Slide is the zero-based slide index.
	Slide int `json:"slide"`
	// Text is the narration text.
	Text string `json:"text"`
}

// MediaClip is one generated media file, one per slide.
// Fan-out steps persist only the clips that succeeded; downstream steps
// treat missing slide indexes as legitimately absent.
type MediaClip struct {
	// Slide is the zero-based slide index this clip belongs to.
	Slide int `json:"slide"`
	// Path is the local file path of the clip.
	Path string `json:"path"`
}

// Composition is the output of the final compose step.
type Composition struct {
	// VideoPath is the local path of the composed video.
	VideoPath string `json:"video_path"`
	// SubtitlePath is the local path of the subtitle file, if generated.
	SubtitlePath string `json:"subtitle_path,omitempty"`
	// VideoURL is the S3 URL of the composed video, if uploaded.
	VideoURL string `json:"video_url,omitempty"`
}

// ClipBySlide indexes clips by slide number for degrade decisions.
func ClipBySlide(clips []MediaClip) map[int]MediaClip {
	out := make(map[int]MediaClip, len(clips))
	for _, c := range clips {
		out[c.Slide] = c
	}
	return out
}
