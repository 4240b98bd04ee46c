package compose

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// skipIfNoFFmpeg skips the test if ffmpeg is not available.
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH, skipping test")
	}
}

// createTestImage creates a simple solid color image using ffmpeg.
func createTestImage(t *testing.T, path string) {
	t.Helper()
	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", "color=c=blue:s=64x64:d=1",
		"-frames:v", "1",
		path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test image: %v\noutput: %s", err, output)
	}
}

// createTestAudio creates a short silent audio clip using ffmpeg.
func createTestAudio(t *testing.T, path string, duration float64) {
	t.Helper()
	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=r=44100:cl=mono:d=%.1f", duration),
		path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test audio: %v\noutput: %s", err, output)
	}
}

func TestNewComposer(t *testing.T) {
	t.Run("default path", func(t *testing.T) {
		c := NewComposer("")
		if c.ffmpegPath != "ffmpeg" {
			t.Errorf("expected default path 'ffmpeg', got %q", c.ffmpegPath)
		}
	})

	t.Run("custom path", func(t *testing.T) {
		c := NewComposer("/usr/local/bin/ffmpeg")
		if c.ffmpegPath != "/usr/local/bin/ffmpeg" {
			t.Errorf("expected custom path, got %q", c.ffmpegPath)
		}
	})
}

func TestCompose_NoSlides(t *testing.T) {
	c := NewComposer("")

	err := c.Compose(context.Background(), nil, t.TempDir(), "out.mp4")
	if !errors.Is(err, ErrNoSlides) {
		t.Errorf("expected ErrNoSlides, got %v", err)
	}
}

func TestCompose_SlideWithoutVisual(t *testing.T) {
	c := NewComposer("")
	tmpDir := t.TempDir()

	err := c.Compose(context.Background(),
		[]SlideInput{{AudioPath: "audio.wav"}},
		tmpDir, filepath.Join(tmpDir, "out.mp4"))
	if !errors.Is(err, ErrNoVisual) {
		t.Errorf("expected ErrNoVisual, got %v", err)
	}
}

func TestCompose_StillSlides(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	imgPath := filepath.Join(tmpDir, "slide.png")
	createTestImage(t, imgPath)

	c := NewComposer("")
	output := filepath.Join(tmpDir, "out.mp4")
	slides := []SlideInput{
		{ImagePath: imgPath},
		{ImagePath: imgPath},
	}

	if err := c.Compose(context.Background(), slides, filepath.Join(tmpDir, "work"), output); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	info, err := os.Stat(output)
	if err != nil {
		t.Fatalf("expected output file: %v", err)
	}
	if info.Size() == 0 {
		t.Error("expected non-empty output file")
	}

	// Two fixed-length segments back to back.
	duration, err := c.Duration(context.Background(), output)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 2 * StillDuration
	if duration < want-1 || duration > want+1 {
		t.Errorf("expected duration near %.1fs, got %.2fs", want, duration)
	}
}

func TestCompose_NarratedSlide(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	imgPath := filepath.Join(tmpDir, "slide.png")
	audioPath := filepath.Join(tmpDir, "narration.wav")
	createTestImage(t, imgPath)
	createTestAudio(t, audioPath, 2.0)

	c := NewComposer("")
	output := filepath.Join(tmpDir, "out.mp4")
	slides := []SlideInput{{ImagePath: imgPath, AudioPath: audioPath}}

	if err := c.Compose(context.Background(), slides, filepath.Join(tmpDir, "work"), output); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Segment length follows the narration, not the still duration.
	duration, err := c.Duration(context.Background(), output)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if duration < 1.5 || duration > 3.0 {
		t.Errorf("expected duration near 2s, got %.2fs", duration)
	}
}

func TestJoinVideos_Empty(t *testing.T) {
	c := NewComposer("")

	err := c.JoinVideos(context.Background(), nil, "out.mp4")
	if !errors.Is(err, ErrNoSlides) {
		t.Errorf("expected ErrNoSlides, got %v", err)
	}
}

func TestJoinVideos_SingleFileCopies(t *testing.T) {
	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, "only.mp4")
	if err := os.WriteFile(src, []byte("video bytes"), 0600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c := NewComposer("")
	dst := filepath.Join(tmpDir, "out.mp4")
	if err := c.JoinVideos(context.Background(), []string{src}, dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "video bytes" {
		t.Error("expected destination to match source")
	}
}

func TestCreateConcatList(t *testing.T) {
	c := NewComposer("")

	listFile, err := c.createConcatList([]string{"/tmp/a.mp4", "/tmp/it's.mp4"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = os.Remove(listFile) }()

	data, err := os.ReadFile(listFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "file '/tmp/a.mp4'\n") {
		t.Errorf("expected plain entry, got:\n%s", content)
	}
	// Single quotes must be escaped for the concat demuxer.
	if !strings.Contains(content, `it'\''s.mp4`) {
		t.Errorf("expected escaped quote, got:\n%s", content)
	}
}

func TestDuration_MissingFile(t *testing.T) {
	skipIfNoFFmpeg(t)

	c := NewComposer("")
	_, err := c.Duration(context.Background(), "/nonexistent/file.mp4")
	if !errors.Is(err, ErrFFprobeExecution) {
		t.Errorf("expected ErrFFprobeExecution, got %v", err)
	}
}

func TestFFmpegError(t *testing.T) {
	cause := errors.New("exit status 1")
	err := &FFmpegError{Args: []string{"-y"}, Stderr: "boom", Err: cause}

	if !errors.Is(err, cause) {
		t.Error("expected Unwrap to expose the cause")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Error("expected stderr in message")
	}
}
