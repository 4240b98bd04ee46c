// Package bootstrap provides dependency initialization for the Slidecast API.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/slidecast/slidecast-api/internal/compose"
	"github.com/slidecast/slidecast-api/internal/config"
	"github.com/slidecast/slidecast-api/internal/document"
	"github.com/slidecast/slidecast-api/internal/llm"
	"github.com/slidecast/slidecast-api/internal/pipeline"
	"github.com/slidecast/slidecast-api/internal/providers"
	"github.com/slidecast/slidecast-api/internal/render"
	"github.com/slidecast/slidecast-api/internal/steps"
	"github.com/slidecast/slidecast-api/internal/storage"
	"github.com/slidecast/slidecast-api/internal/task"
	"github.com/slidecast/slidecast-api/internal/tts"
	"github.com/slidecast/slidecast-api/internal/worker"
)

// Dependencies holds all initialized dependencies for the application.
type Dependencies struct {
	Queue   task.Queue
	States  pipeline.Store
	Storage storage.Storage
	History task.History
	Loop    *worker.Loop
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	queue, history, err := initQueue(cfg, logger)
	if err != nil {
		return nil, err
	}

	states := pipeline.NewMemoryStore(cfg.StateTTL)

	llmClient, err := llm.NewClient(
		llm.WithBaseURL(cfg.LLMEndpoint),
		llm.WithAPIKey(cfg.LLMAPIKey),
		llm.WithModel(cfg.LLMModel),
	)
	if err != nil {
		return nil, fmt.Errorf("create LLM client: %w", err)
	}

	ttsChain, err := initTTSChain(cfg, logger)
	if err != nil {
		return nil, err
	}

	renderChain, err := initRenderChain(cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := steps.Registry(steps.Deps{
		Extractor: document.NewExtractor(cfg.PdfToTextPath, cfg.PdfToPpmPath),
		LLM:       llmClient,
		TTS:       ttsChain,
		Render:    renderChain,
		Composer:  compose.NewComposer(cfg.FFmpegPath),
		Storage:   store,
		TempDir:   cfg.TempDir,
		Logger:    logger,
	})

	orchestrator := pipeline.NewOrchestrator(states, registry, logger, pipeline.WithCleaner(store))
	loop := worker.NewLoop(queue, orchestrator, cfg.QueuePollTimeout, logger)

	return &Dependencies{
		Queue:   queue,
		States:  states,
		Storage: store,
		History: history,
		Loop:    loop,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}

// initQueue creates the task queue with the optional durable mirror.
// The mirror doubles as the task history for owner queries; without it
// the history is nil and the owner endpoints report unavailable.
func initQueue(cfg *config.Config, logger *slog.Logger) (task.Queue, task.History, error) {
	opts := []task.QueueOption{task.WithLogger(logger)}
	var history task.History

	if cfg.MirrorEnabled() {
		mirror, err := task.OpenMirror(cfg.TaskMirrorPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open task mirror: %w", err)
		}
		opts = append(opts, task.WithMirror(mirror))
		history = mirror
		logger.Info("task mirror configured",
			slog.String("path", cfg.TaskMirrorPath),
		)
	}

	return task.NewMemoryQueue(cfg.CancelMarkerTTL, opts...), history, nil
}

// initTTSChain builds the speech synthesis provider chain: the required
// primary provider plus an optional fallback.
func initTTSChain(cfg *config.Config, logger *slog.Logger) (*providers.Chain[tts.Synthesizer], error) {
	primary, err := tts.NewHTTPSynthesizer(cfg.TTSEndpoint, tts.WithAPIKey(cfg.TTSAPIKey))
	if err != nil {
		return nil, fmt.Errorf("create TTS client: %w", err)
	}

	chainProviders := []providers.Provider[tts.Synthesizer]{
		{Name: "tts-primary", Impl: primary},
	}
	if cfg.TTSFallbackEndpoint != "" {
		fallback, err := tts.NewHTTPSynthesizer(cfg.TTSFallbackEndpoint, tts.WithAPIKey(cfg.TTSFallbackAPIKey))
		if err != nil {
			return nil, fmt.Errorf("create fallback TTS client: %w", err)
		}
		chainProviders = append(chainProviders, providers.Provider[tts.Synthesizer]{Name: "tts-fallback", Impl: fallback})
	}

	return providers.NewChain(logger, chainProviders...), nil
}

// initRenderChain builds the avatar render provider chain. With no render
// endpoints configured it returns nil, and the avatar step skips itself.
func initRenderChain(cfg *config.Config, logger *slog.Logger) (*providers.Chain[render.Renderer], error) {
	var chainProviders []providers.Provider[render.Renderer]

	if cfg.RenderEndpoint != "" {
		primary, err := render.NewSadTalkerClient(cfg.RenderEndpoint, render.WithSadTalkerAPIKey(cfg.RenderAPIKey))
		if err != nil {
			return nil, fmt.Errorf("create render client: %w", err)
		}
		chainProviders = append(chainProviders, providers.Provider[render.Renderer]{Name: "render-primary", Impl: primary})
	}
	if cfg.RenderFallbackEndpoint != "" {
		fallback, err := render.NewDIDClient(cfg.RenderFallbackEndpoint, render.WithDIDToken(cfg.RenderFallbackAPIKey))
		if err != nil {
			return nil, fmt.Errorf("create fallback render client: %w", err)
		}
		chainProviders = append(chainProviders, providers.Provider[render.Renderer]{Name: "render-fallback", Impl: fallback})
	}

	if len(chainProviders) == 0 {
		logger.Info("no avatar render providers configured")
		return nil, nil
	}
	return providers.NewChain(logger, chainProviders...), nil
}
