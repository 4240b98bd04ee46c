package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	// Register routes with method-based patterns (Go 1.22+)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /uploads", h.SubmitUpload)
	mux.HandleFunc("GET /tasks/{id}", h.GetTask)
	mux.HandleFunc("POST /tasks/{id}/cancel", h.CancelTask)
	mux.HandleFunc("POST /tasks/{id}/retry", h.RetryTask)
	mux.HandleFunc("GET /uploads/{id}/progress", h.GetProgress)
	mux.HandleFunc("GET /uploads/{id}/video", h.GetVideo)
	mux.HandleFunc("GET /owners/{id}/tasks", h.OwnerTasks)

	// Request ids run outermost so recovery and logging can tag their
	// output with them.
	chain := ChainMiddleware(
		RequestIDMiddleware(),
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
