// Package render provides avatar video rendering clients. Each provider
// animates a slide image with a narration audio clip and produces a short
// talking-head video; handlers wrap the providers in an ordered chain.
package render

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
)

// Status represents the status of a render job.
type Status string

// Common render job statuses across providers.
const (
	StatusPending   Status = "PENDING"   // Job submitted but not yet running
	StatusRunning   Status = "RUNNING"   // Job is currently processing
	StatusCompleted Status = "COMPLETED" // Job finished successfully
	StatusFailed    Status = "FAILED"    // Job failed with error
	StatusCancelled Status = "CANCELLED" // Job was cancelled upstream
	StatusTimedOut  Status = "TIMED_OUT" // Job exceeded the provider's time limit
)

// IsTerminal returns true if the status represents a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	default:
		return false
	}
}

// PollResult contains the result of polling a render job's status.
type PollResult struct {
	Status      Status // Current job status
	VideoBase64 string // Base64-encoded video (if completed and returned inline)
	VideoURL    string // URL to download the video (URL-returning providers)
	Error       string // Error message (if failed)
}

// Renderer defines the interface for avatar video providers.
// RenderClip blocks until the provider finishes or the bounded poll
// budget is exhausted; handlers impose no additional timeout.
type Renderer interface {
	// RenderClip animates imagePath with audioPath and writes the
	// resulting video to destPath.
	RenderClip(ctx context.Context, imagePath, audioPath, destPath string) error
}

// encodeFile reads a file and returns its base64 encoding.
func encodeFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("render: read %s: %w", path, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// writeBase64 decodes base64 video data to a file.
func writeBase64(encoded, destPath string) error {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("render: decode video: %w", err)
	}
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		return fmt.Errorf("render: write video: %w", err)
	}
	return nil
}
