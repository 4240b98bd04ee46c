// Package main provides the entry point for the Slidecast API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/slidecast/slidecast-api/internal/bootstrap"
	"github.com/slidecast/slidecast-api/internal/config"
	"github.com/slidecast/slidecast-api/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting Slidecast API",
		slog.Int("port", cfg.Port),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("temp_dir", cfg.TempDir),
		slog.Int("worker_count", cfg.WorkerCount),
		slog.Duration("state_ttl", cfg.StateTTL),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
		slog.Bool("task_mirror_enabled", cfg.MirrorEnabled()),
	)

	// Initialize dependencies using bootstrap
	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	// Initialize HTTP handlers and router
	handlerOpts := []server.HandlerOption{
		server.WithDefaultLanguages(cfg.DefaultAudioLanguage, cfg.DefaultSubtitleLanguage),
	}
	if deps.History != nil {
		handlerOpts = append(handlerOpts, server.WithTaskHistory(deps.History))
	}
	handlers := server.NewHandlers(deps.Queue, deps.States, deps.Storage, logger, handlerOpts...)
	router := server.NewRouter(handlers, logger, server.DefaultConfig())

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // Allow for large composed videos
		IdleTimeout:  60 * time.Second,
	}

	// Start the worker pool: competing consumers of the shared queue
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	var wg sync.WaitGroup
	for i := 0; i < cfg.WorkerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := deps.Loop.Run(workerCtx); err != nil {
				logger.Error("worker loop exited with error",
					slog.String("error", err.Error()),
				)
			}
		}()
	}

	// Graceful shutdown handling
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal",
			slog.String("signal", sig.String()),
		)
	case err := <-errCh:
		stopWorkers()
		wg.Wait()
		return err
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	// Workers stop at the next step boundary or dequeue timeout
	stopWorkers()
	wg.Wait()

	logger.Info("server stopped gracefully")
	return nil
}
