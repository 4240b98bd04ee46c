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

// Static errors specific to the D-ID style provider.
var (
	// ErrTokenNotSet is returned when no API token is provided.
	ErrTokenNotSet = errors.New("render: token is required")
	// ErrNoOutputURL is returned when a completed job has no result URL.
	ErrNoOutputURL = errors.New("render: no output URL in completed job")
)

// Compile-time check that DIDClient implements Renderer.
var _ Renderer = (*DIDClient)(nil)

// DIDClient drives a D-ID style talks API: submit returns a talk id,
// polling a completed talk yields a result URL that must be downloaded.
type DIDClient struct {
	token        string
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	maxPolls     int
}

// DIDOption is a function that configures a DIDClient.
type DIDOption func(*DIDClient)

// WithDIDToken sets the API token for authentication.
func WithDIDToken(token string) DIDOption {
	return func(c *DIDClient) {
		c.token = token
	}
}

// WithDIDHTTPClient sets a custom HTTP client.
func WithDIDHTTPClient(hc *http.Client) DIDOption {
	return func(c *DIDClient) {
		c.httpClient = hc
	}
}

// WithDIDPollInterval sets the delay between status polls.
func WithDIDPollInterval(d time.Duration) DIDOption {
	return func(c *DIDClient) {
		c.pollInterval = d
	}
}

// WithDIDMaxPolls bounds the number of status polls per job.
func WithDIDMaxPolls(n int) DIDOption {
	return func(c *DIDClient) {
		c.maxPolls = n
	}
}

// NewDIDClient creates a client for a D-ID style talks endpoint.
// The token can be set via the option; if not provided, it is read from
// the environment variable RENDER_FALLBACK_API_KEY.
func NewDIDClient(baseURL string, opts ...DIDOption) (*DIDClient, error) {
	if baseURL == "" {
		return nil, ErrEndpointRequired
	}

	c := &DIDClient{
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		pollInterval: 5 * time.Second,
		maxPolls:     120,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.token == "" {
		c.token = os.Getenv("RENDER_FALLBACK_API_KEY")
	}
	if c.token == "" {
		return nil, ErrTokenNotSet
	}

	return c, nil
}

type didSubmitRequest struct {
	SourceImage string `json:"source_image"`
	AudioBase64 string `json:"audio_base64"`
}

type didSubmitResponse struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

type didStatusResponse struct {
	Status    string `json:"status"`
	ResultURL string `json:"result_url,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Submit sends a render job and returns the provider talk id.
func (c *DIDClient) Submit(ctx context.Context, imageB64, audioB64 string) (string, error) {
	bodyBytes, err := json.Marshal(didSubmitRequest{
		SourceImage: imageB64,
		AudioBase64: audioB64,
	})
	if err != nil {
		return "", fmt.Errorf("render: marshal request: %w", err)
	}

	var resp didSubmitResponse
	if err := c.doRequest(ctx, http.MethodPost, c.baseURL+"/talks", bodyBytes, &resp); err != nil {
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
func (c *DIDClient) Poll(ctx context.Context, jobID string) (PollResult, error) {
	if jobID == "" {
		return PollResult{}, ErrJobIDRequired
	}

	var resp didStatusResponse
	if err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("%s/talks/%s", c.baseURL, jobID), nil, &resp); err != nil {
		return PollResult{}, err
	}

	var mapped Status
	switch resp.Status {
	case "created", "pending":
		mapped = StatusPending
	case "started":
		mapped = StatusRunning
	case "done":
		mapped = StatusCompleted
	case "error", "rejected":
		mapped = StatusFailed
	default:
		mapped = Status(resp.Status)
	}

	result := PollResult{Status: mapped}
	switch mapped {
	case StatusCompleted:
		if resp.ResultURL != "" {
			result.VideoURL = resp.ResultURL
		} else {
			result.Error = "no result URL available"
		}
	case StatusFailed:
		result.Error = resp.Error
	}
	return result, nil
}

// DownloadOutput downloads the video from the result URL to destPath.
func (c *DIDClient) DownloadOutput(ctx context.Context, outputURL, destPath string) error {
	if outputURL == "" {
		return ErrNoOutputURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, outputURL, nil)
	if err != nil {
		return fmt.Errorf("render: create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("render: download request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("render: download failed with status %d", resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("render: create output file: %w", err)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("render: copy download data: %w", err)
	}
	return nil
}

// RenderClip animates a slide image with an audio clip, blocking through
// a bounded submit-poll cycle, then downloads the result to destPath.
func (c *DIDClient) RenderClip(ctx context.Context, imagePath, audioPath, destPath string) error {
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
		if result.VideoURL == "" {
			return ErrNoOutputURL
		}
		return c.DownloadOutput(ctx, result.VideoURL, destPath)
	}

	return fmt.Errorf("%w: job %s", ErrPollBudgetExceeded, jobID)
}

// doRequest performs a single HTTP request against the endpoint.
func (c *DIDClient) doRequest(ctx context.Context, method, url string, body []byte, result any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("render: create request: %w", err)
	}

	req.Header.Set("Authorization", "Basic "+c.token)
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
