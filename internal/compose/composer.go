package compose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Static errors for composition.
var (
	// ErrNoSlides is returned when there is nothing to compose.
	ErrNoSlides = errors.New("compose: no slides provided")
	// ErrNoVisual is returned when a slide has neither an avatar clip nor an image.
	ErrNoVisual = errors.New("compose: slide has no avatar clip and no image")
	// ErrFFprobeExecution is returned when ffprobe fails.
	ErrFFprobeExecution = errors.New("compose: ffprobe execution failed")
)

// StillDuration is how long a slide with no narration is shown, in seconds.
const StillDuration = 5.0

// SlideInput describes the media available for one slide. AvatarPath and
// AudioPath may be empty; composition degrades per slide to whatever is
// present.
type SlideInput struct {
	ImagePath  string
	AudioPath  string
	AvatarPath string
}

// Composer assembles per-slide media into a single video using the
// ffmpeg CLI.
type Composer struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
}

// NewComposer creates a Composer. If ffmpegPath is empty, it defaults
// to "ffmpeg" (found via PATH).
func NewComposer(ffmpegPath string) *Composer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Composer{ffmpegPath: ffmpegPath}
}

// Compose builds one video segment per slide under workDir and
// concatenates them into output. Each slide uses the richest media it
// has: an avatar clip as-is, otherwise the slide image narrated with
// the audio clip, otherwise the image alone for a fixed duration.
func (c *Composer) Compose(ctx context.Context, slides []SlideInput, workDir, output string) error {
	if len(slides) == 0 {
		return ErrNoSlides
	}
	if err := os.MkdirAll(workDir, 0750); err != nil {
		return fmt.Errorf("compose: create work dir: %w", err)
	}

	segments := make([]string, 0, len(slides))
	for i, slide := range slides {
		segPath := filepath.Join(workDir, fmt.Sprintf("segment-%03d.mp4", i+1))
		if err := c.buildSegment(ctx, slide, segPath); err != nil {
			return fmt.Errorf("compose: segment %d: %w", i+1, err)
		}
		segments = append(segments, segPath)
	}

	return c.JoinVideos(ctx, segments, output)
}

// buildSegment renders a single slide into a video segment at segPath.
func (c *Composer) buildSegment(ctx context.Context, slide SlideInput, segPath string) error {
	switch {
	case slide.AvatarPath != "":
		// Re-encode instead of copying so every segment shares codec
		// parameters and the final concat copy pass succeeds.
		return c.normalizeClip(ctx, slide.AvatarPath, segPath)
	case slide.ImagePath != "" && slide.AudioPath != "":
		return c.renderNarratedSlide(ctx, slide.ImagePath, slide.AudioPath, segPath)
	case slide.ImagePath != "":
		return c.renderStillSlide(ctx, slide.ImagePath, segPath)
	default:
		return ErrNoVisual
	}
}

// normalizeClip re-encodes an avatar clip with the shared segment codec
// settings.
func (c *Composer) normalizeClip(ctx context.Context, src, dst string) error {
	args := []string{
		"-y",
		"-i", src,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "128k",
		dst,
	}
	return c.runFFmpeg(ctx, args)
}

// renderNarratedSlide produces a segment showing the slide image for the
// full length of the audio clip.
func (c *Composer) renderNarratedSlide(ctx context.Context, imagePath, audioPath, dst string) error {
	args := []string{
		"-y",
		"-loop", "1", // Hold the image as a looping video source
		"-i", imagePath,
		"-i", audioPath,
		"-c:v", "libx264",
		"-preset", "fast",
		"-tune", "stillimage",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "128k",
		"-shortest", // Segment length follows the audio track
		dst,
	}
	return c.runFFmpeg(ctx, args)
}

// renderStillSlide produces a silent segment showing the slide image for
// a fixed duration. A silent audio track is generated so concatenation
// with narrated segments keeps a continuous audio stream.
func (c *Composer) renderStillSlide(ctx context.Context, imagePath, dst string) error {
	args := []string{
		"-y",
		"-loop", "1",
		"-i", imagePath,
		"-f", "lavfi",
		"-i", "anullsrc=channel_layout=stereo:sample_rate=44100",
		"-t", fmt.Sprintf("%.2f", StillDuration),
		"-c:v", "libx264",
		"-preset", "fast",
		"-tune", "stillimage",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "128k",
		dst,
	}
	return c.runFFmpeg(ctx, args)
}

// JoinVideos concatenates video files into a single output file. It
// first attempts a fast stream copy and falls back to re-encoding with
// libx264/aac if the copy fails.
func (c *Composer) JoinVideos(ctx context.Context, videoPaths []string, output string) error {
	if len(videoPaths) == 0 {
		return ErrNoSlides
	}

	if len(videoPaths) == 1 {
		return c.copyFile(videoPaths[0], output)
	}

	listFile, err := c.createConcatList(videoPaths)
	if err != nil {
		return fmt.Errorf("compose: create concat list: %w", err)
	}
	defer func() { _ = os.Remove(listFile) }()

	if err := c.joinWithCopy(ctx, listFile, output); err == nil {
		return nil
	}

	return c.joinWithReencode(ctx, listFile, output)
}

// joinWithCopy concatenates with stream copy (no re-encoding).
func (c *Composer) joinWithCopy(ctx context.Context, listFile, output string) error {
	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0", // Allow absolute paths in the list file
		"-i", listFile,
		"-c", "copy",
		output,
	}
	return c.runFFmpeg(ctx, args)
}

// joinWithReencode concatenates by re-encoding with libx264/aac.
func (c *Composer) joinWithReencode(ctx context.Context, listFile, output string) error {
	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "128k",
		output,
	}
	return c.runFFmpeg(ctx, args)
}

// createConcatList writes a temporary file list in the format required
// by ffmpeg's concat demuxer.
func (c *Composer) createConcatList(videoPaths []string) (string, error) {
	f, err := os.CreateTemp("", "compose-concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = f.Close() }()

	for _, path := range videoPaths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("get absolute path for %s: %w", path, err)
		}
		escapedPath := strings.ReplaceAll(absPath, "'", "'\\''")
		if _, err := fmt.Fprintf(f, "file '%s'\n", escapedPath); err != nil {
			return "", fmt.Errorf("write to concat list: %w", err)
		}
	}

	return f.Name(), nil
}

// copyFile copies a file from src to dst.
func (c *Composer) copyFile(src, dst string) error {
	input, err := os.ReadFile(src) // #nosec G304 - src is provided by trusted internal code
	if err != nil {
		return fmt.Errorf("read source file: %w", err)
	}
	if err := os.WriteFile(dst, input, 0600); err != nil {
		return fmt.Errorf("write destination file: %w", err)
	}
	return nil
}

// Duration returns the duration in seconds of a media file via ffprobe.
func (c *Composer) Duration(ctx context.Context, path string) (float64, error) {
	// #nosec G204 - path comes from trusted internal code
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return 0, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	var duration float64
	if _, err := fmt.Sscanf(strings.TrimSpace(stdout.String()), "%f", &duration); err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return duration, nil
}

// runFFmpeg executes ffmpeg with the given arguments and returns an
// error carrying stderr output if the command fails.
func (c *Composer) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return nil
}

// FFmpegError represents an error from running ffmpeg, including stderr.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
