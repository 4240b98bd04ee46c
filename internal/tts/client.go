// Package tts provides text-to-speech synthesis clients. Handlers wrap
// them in an ordered provider chain so a fallback voice service can take
// over when the primary fails.
package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Static errors for TTS operations.
var (
	// ErrEndpointRequired is returned when the endpoint URL is not provided.
	ErrEndpointRequired = errors.New("tts: endpoint is required")
	// ErrEmptyText is returned when there is no text to synthesize.
	ErrEmptyText = errors.New("tts: text is required")
	// ErrNoAudioReturned is returned when the response contains no audio.
	ErrNoAudioReturned = errors.New("tts: no audio in response")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("tts: request failed")
)

// Synthesizer defines the interface for speech synthesis providers.
type Synthesizer interface {
	// Synthesize renders text in the given language and returns the
	// encoded audio bytes (WAV).
	Synthesize(ctx context.Context, text, language string) ([]byte, error)
}

// HTTPSynthesizer is an HTTP implementation of Synthesizer for JSON
// speech APIs that return base64-encoded audio.
type HTTPSynthesizer struct {
	endpoint   string
	apiKey     string
	voice      string
	httpClient *http.Client
}

// SynthesizerOption is a function that configures an HTTPSynthesizer.
type SynthesizerOption func(*HTTPSynthesizer)

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) SynthesizerOption {
	return func(s *HTTPSynthesizer) {
		s.apiKey = key
	}
}

// WithVoice sets the voice preset sent with every request.
func WithVoice(voice string) SynthesizerOption {
	return func(s *HTTPSynthesizer) {
		s.voice = voice
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) SynthesizerOption {
	return func(s *HTTPSynthesizer) {
		s.httpClient = c
	}
}

// NewHTTPSynthesizer creates a synthesizer for the given endpoint.
func NewHTTPSynthesizer(endpoint string, opts ...SynthesizerOption) (*HTTPSynthesizer, error) {
	if endpoint == "" {
		return nil, ErrEndpointRequired
	}

	s := &HTTPSynthesizer{
		endpoint:   endpoint,
		voice:      "default",
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type synthesizeRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Voice    string `json:"voice"`
	Format   string `json:"format"`
}

type synthesizeResponse struct {
	AudioBase64 string `json:"audio_base64"`
	Error       string `json:"error,omitempty"`
}

// Synthesize renders text to WAV audio.
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	bodyBytes, err := json.Marshal(synthesizeRequest{
		Text:     text,
		Language: language,
		Voice:    s.voice,
		Format:   "wav",
	})
	if err != nil {
		return nil, fmt.Errorf("tts: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("tts: create request: %w", err)
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	var parsed synthesizeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("tts: unmarshal response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrRequestFailed, parsed.Error)
	}
	if parsed.AudioBase64 == "" {
		return nil, ErrNoAudioReturned
	}

	audio, err := base64.StdEncoding.DecodeString(parsed.AudioBase64)
	if err != nil {
		return nil, fmt.Errorf("tts: decode audio: %w", err)
	}
	return audio, nil
}
