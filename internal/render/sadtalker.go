package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Static errors for SadTalker endpoint operations.
var (
	// ErrEndpointRequired is returned when the endpoint URL is not provided.
	ErrEndpointRequired = errors.New("render: endpoint is required")
	// ErrAPIKeyNotSet is returned when no API key is provided.
	ErrAPIKeyNotSet = errors.New("render: API key is required")
	// ErrJobIDRequired is returned when the job ID is not provided.
	ErrJobIDRequired = errors.New("render: job ID is required")
	// ErrNoJobIDReturned is returned when the submit response contains no job ID.
	ErrNoJobIDReturned = errors.New("render: submit failed: no job ID returned")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("render: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("render: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("render: request failed")
	// ErrRenderFailed is returned when the provider reports a failed job.
	ErrRenderFailed = errors.New("render: job failed")
	// ErrPollBudgetExceeded is returned when a job stays non-terminal past
	// the bounded poll budget.
	ErrPollBudgetExceeded = errors.New("render: poll budget exceeded")
	// ErrNoVideoReturned is returned when a completed job has no video data.
	ErrNoVideoReturned = errors.New("render: no video in completed job")
)

// Compile-time check that SadTalkerClient implements Renderer.
var _ Renderer = (*SadTalkerClient)(nil)

// SadTalkerClient drives a serverless SadTalker endpoint: submit returns
// a job id, status polling returns the finished video inline as base64.
type SadTalkerClient struct {
	apiKey       string
	endpoint     string
	httpClient   *http.Client
	pollInterval time.Duration
	maxPolls     int
}

// SadTalkerOption is a function that configures a SadTalkerClient.
type SadTalkerOption func(*SadTalkerClient)

// WithSadTalkerAPIKey sets the API key for authentication.
func WithSadTalkerAPIKey(key string) SadTalkerOption {
	return func(c *SadTalkerClient) {
		c.apiKey = key
	}
}

// WithSadTalkerHTTPClient sets a custom HTTP client.
func WithSadTalkerHTTPClient(hc *http.Client) SadTalkerOption {
	return func(c *SadTalkerClient) {
		c.httpClient = hc
	}
}

// WithSadTalkerPollInterval sets the delay between status polls.
func WithSadTalkerPollInterval(d time.Duration) SadTalkerOption {
	return func(c *SadTalkerClient) {
		c.pollInterval = d
	}
}

// WithSadTalkerMaxPolls bounds the number of status polls per job.
func WithSadTalkerMaxPolls(n int) SadTalkerOption {
	return func(c *SadTalkerClient) {
		c.maxPolls = n
	}
}

// NewSadTalkerClient creates a client for a SadTalker render endpoint.
// The API key can be set via the option; if not provided, it is read from
// the environment variable RENDER_API_KEY.
func NewSadTalkerClient(endpoint string, opts ...SadTalkerOption) (*SadTalkerClient, error) {
	if endpoint == "" {
		return nil, ErrEndpointRequired
	}

	c := &SadTalkerClient{
		endpoint:     endpoint,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		pollInterval: 5 * time.Second,
		maxPolls:     120,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey == "" {
		c.apiKey = os.Getenv("RENDER_API_KEY")
	}
	if c.apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	return c, nil
}

type sadTalkerSubmitRequest struct {
	Input sadTalkerInput `json:"input"`
}

type sadTalkerInput struct {
	ImageBase64 string `json:"image_base64"`
	WavBase64   string `json:"wav_base64"`
	Still       bool   `json:"still"`
	Preprocess  string `json:"preprocess"`
}

type sadTalkerSubmitResponse struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

type sadTalkerStatusResponse struct {
	Status string `json:"status"`
	Output struct {
		Video string `json:"video"`
	} `json:"output"`
	Error string `json:"error,omitempty"`
}

// Submit sends a render job and returns the provider job id.
func (c *SadTalkerClient) Submit(ctx context.Context, imageB64, audioB64 string) (string, error) {
	bodyBytes, err := json.Marshal(sadTalkerSubmitRequest{
		Input: sadTalkerInput{
			ImageBase64: imageB64,
			WavBase64:   audioB64,
			Still:       true,
			Preprocess:  "full",
		},
	})
	if err != nil {
		return "", fmt.Errorf("render: marshal request: %w", err)
	}

	var resp sadTalkerSubmitResponse
	if err := c.doRequest(ctx, http.MethodPost, c.endpoint+"/run", bodyBytes, &resp); err != nil {
		return "", err
	}

	if resp.ID == "" {
		if resp.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrRenderFailed, resp.Error)
		}
		return "", ErrNoJobIDReturned
	}
	return resp.ID, nil
}

// Poll checks the status of a render job.
func (c *SadTalkerClient) Poll(ctx context.Context, jobID string) (PollResult, error) {
	if jobID == "" {
		return PollResult{}, ErrJobIDRequired
	}

	var resp sadTalkerStatusResponse
	if err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("%s/status/%s", c.endpoint, jobID), nil, &resp); err != nil {
		return PollResult{}, err
	}

	var mapped Status
	switch resp.Status {
	case "IN_QUEUE", "PENDING":
		mapped = StatusPending
	case "IN_PROGRESS", "RUNNING":
		mapped = StatusRunning
	case "COMPLETED":
		mapped = StatusCompleted
	case "FAILED":
		mapped = StatusFailed
	case "CANCELLED":
		mapped = StatusCancelled
	case "TIMED_OUT":
		mapped = StatusTimedOut
	default:
		mapped = Status(resp.Status)
	}

	result := PollResult{Status: mapped}
	switch mapped {
	case StatusCompleted:
		result.VideoBase64 = resp.Output.Video
	case StatusFailed:
		result.Error = resp.Error
	}
	return result, nil
}

// RenderClip animates a slide image with an audio clip, blocking through
// a bounded submit-poll cycle, and writes the video to destPath.
func (c *SadTalkerClient) RenderClip(ctx context.Context, imagePath, audioPath, destPath string) error {
	imageB64, err := encodeFile(imagePath)
	if err != nil {
		return err
	}
	audioB64, err := encodeFile(audioPath)
	if err != nil {
		return err
	}

	jobID, err := c.Submit(ctx, imageB64, audioB64)
	if err != nil {
		return err
	}

	for i := 0; i < c.maxPolls; i++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("render: context cancelled: %w", ctx.Err())
		case <-time.After(c.pollInterval):
		}

		result, err := c.Poll(ctx, jobID)
		if err != nil {
			return err
		}
		if !result.Status.IsTerminal() {
			continue
		}

		if result.Status != StatusCompleted {
			if result.Error != "" {
				return fmt.Errorf("%w: %s", ErrRenderFailed, result.Error)
			}
			return fmt.Errorf("%w: status %s", ErrRenderFailed, result.Status)
		}
		if result.VideoBase64 == "" {
			return ErrNoVideoReturned
		}
		return writeBase64(result.VideoBase64, destPath)
	}

	return fmt.Errorf("%w: job %s", ErrPollBudgetExceeded, jobID)
}

// doRequest performs a single HTTP request against the endpoint.
func (c *SadTalkerClient) doRequest(ctx context.Context, method, url string, body []byte, result any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("render: create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("render: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("render: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))
		}
		if resp.StatusCode == 429 {
			return fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))
		}
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("render: unmarshal response: %w", err)
		}
	}
	return nil
}
