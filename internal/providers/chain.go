// Package providers implements the ordered provider chain used by step
// handlers that can fall back to an alternate external service. The chain
// is owned by each handler, never by the orchestrator.
package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNoProviders is returned when a chain has no providers configured.
var ErrNoProviders = errors.New("providers: no providers configured")

// Provider pairs an implementation with a name for error reporting.
type Provider[T any] struct {
	// Name identifies the provider in logs and aggregated errors.
	Name string
	// Impl is the provider implementation.
	Impl T
}

// Chain is an ordered list of alternate providers. Operations try each
// provider in sequence and return the first success; when every provider
// fails the errors are aggregated.
type Chain[T any] struct {
	providers []Provider[T]
	logger    *slog.Logger
}

// NewChain creates a chain over the given providers, tried in order.
func NewChain[T any](logger *slog.Logger, providers ...Provider[T]) *Chain[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain[T]{providers: providers, logger: logger}
}

// Len returns the number of configured providers.
func (c *Chain[T]) Len() int {
	return len(c.providers)
}

// Try runs fn against each provider in order and returns the first
// successful result. A provider failure is logged and the next provider
// is tried; when all fail, the errors are joined.
func Try[T, R any](ctx context.Context, c *Chain[T], fn func(context.Context, T) (R, error)) (R, error) {
	var zero R
	if c == nil || len(c.providers) == 0 {
		return zero, ErrNoProviders
	}

	var errs []error
	for _, p := range c.providers {
		result, err := fn(ctx, p.Impl)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, fmt.Errorf("providers: %s: %w", p.Name, err)
		}
		c.logger.Warn("provider failed, trying next",
			slog.String("provider", p.Name),
			slog.String("error", err.Error()),
		)
		errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
	}
	return zero, fmt.Errorf("providers: all providers failed: %w", errors.Join(errs...))
}
