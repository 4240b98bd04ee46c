// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrLLMAPIKeyRequired is returned when LLM_API_KEY is not set.
	ErrLLMAPIKeyRequired = errors.New("config: LLM_API_KEY is required")
	// ErrTTSEndpointRequired is returned when TTS_ENDPOINT is not set.
	ErrTTSEndpointRequired = errors.New("config: TTS_ENDPOINT is required")
	// ErrStateTTLInvalid is returned when STATE_TTL is not positive.
	ErrStateTTLInvalid = errors.New("config: STATE_TTL must be positive")
	// ErrWorkerCountInvalid is returned when WORKER_COUNT is not positive.
	ErrWorkerCountInvalid = errors.New("config: WORKER_COUNT must be positive")
)

// Config holds all configuration for the server and worker binaries.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Pipeline state retention
	StateTTL        time.Duration `env:"STATE_TTL, default=24h" json:"state_ttl"`
	CancelMarkerTTL time.Duration `env:"CANCEL_MARKER_TTL, default=10m" json:"cancel_marker_ttl"`

	// Worker settings
	QueuePollTimeout time.Duration `env:"QUEUE_POLL_TIMEOUT, default=5s" json:"queue_poll_timeout"`
	WorkerCount      int           `env:"WORKER_COUNT, default=1" json:"worker_count"`

	// Task audit mirror (optional, disabled when empty)
	TaskMirrorPath string `env:"TASK_MIRROR_PATH" json:"task_mirror_path,omitempty"`

	// LLM settings (vision analysis, script generation and review)
	LLMEndpoint string `env:"LLM_ENDPOINT, default=https://api.openai.com/v1" json:"llm_endpoint"`
	LLMAPIKey   string `env:"LLM_API_KEY, required" json:"-"` // Masked in JSON
	LLMModel    string `env:"LLM_MODEL, default=gpt-4o" json:"llm_model"`

	// TTS settings (primary plus optional fallback provider)
	TTSEndpoint         string `env:"TTS_ENDPOINT, required" json:"tts_endpoint"`
	TTSAPIKey           string `env:"TTS_API_KEY" json:"-"`
	TTSFallbackEndpoint string `env:"TTS_FALLBACK_ENDPOINT" json:"tts_fallback_endpoint,omitempty"`
	TTSFallbackAPIKey   string `env:"TTS_FALLBACK_API_KEY" json:"-"`

	// Avatar render settings (primary plus optional fallback provider)
	RenderEndpoint         string `env:"RENDER_ENDPOINT" json:"render_endpoint,omitempty"`
	RenderAPIKey           string `env:"RENDER_API_KEY" json:"-"`
	RenderFallbackEndpoint string `env:"RENDER_FALLBACK_ENDPOINT" json:"render_fallback_endpoint,omitempty"`
	RenderFallbackAPIKey   string `env:"RENDER_FALLBACK_API_KEY" json:"-"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/slidecast" json:"temp_dir"`

	// Optional S3 settings for final artifact delivery
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// External tool paths (resolved via PATH when empty)
	FFmpegPath    string `env:"FFMPEG_PATH" json:"ffmpeg_path,omitempty"`
	PdfToTextPath string `env:"PDFTOTEXT_PATH" json:"pdftotext_path,omitempty"`
	PdfToPpmPath  string `env:"PDFTOPPM_PATH" json:"pdftoppm_path,omitempty"`

	// Defaults applied when a submission omits languages
	DefaultAudioLanguage    string `env:"DEFAULT_AUDIO_LANGUAGE, default=en" json:"default_audio_language"`
	DefaultSubtitleLanguage string `env:"DEFAULT_SUBTITLE_LANGUAGE, default=en" json:"default_subtitle_language"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// MirrorEnabled returns true if the durable task mirror is configured.
func (c *Config) MirrorEnabled() bool {
	return c.TaskMirrorPath != ""
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if required variables are not set.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "LLM_API_KEY") {
			return nil, ErrLLMAPIKeyRequired
		}
		if strings.Contains(err.Error(), "TTS_ENDPOINT") {
			return nil, ErrTTSEndpointRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.LLMAPIKey == "" {
		return ErrLLMAPIKeyRequired
	}
	if c.TTSEndpoint == "" {
		return ErrTTSEndpointRequired
	}
	if c.StateTTL <= 0 {
		return ErrStateTTLInvalid
	}
	if c.WorkerCount <= 0 {
		return ErrWorkerCountInvalid
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, StateTTL: %s, CancelMarkerTTL: %s, QueuePollTimeout: %s, TaskMirrorPath: %s, LLMEndpoint: %s, LLMModel: %s, TTSEndpoint: %s, TempDir: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.StateTTL,
		c.CancelMarkerTTL,
		c.QueuePollTimeout,
		c.TaskMirrorPath,
		c.LLMEndpoint,
		c.LLMModel,
		c.TTSEndpoint,
		c.TempDir,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
