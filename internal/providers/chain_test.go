package providers

import (
	"context"
	"errors"
	"testing"
)

type echo struct {
	out string
	err error
}

func call(ctx context.Context, e echo) (string, error) {
	return e.out, e.err
}

func TestTry_FirstSuccess(t *testing.T) {
	c := NewChain(nil,
		Provider[echo]{Name: "primary", Impl: echo{out: "primary"}},
		Provider[echo]{Name: "fallback", Impl: echo{out: "fallback"}},
	)

	got, err := Try(context.Background(), c, call)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "primary" {
		t.Errorf("expected primary, got %s", got)
	}
}

func TestTry_FallsBack(t *testing.T) {
	primaryErr := errors.New("primary down")
	c := NewChain(nil,
		Provider[echo]{Name: "primary", Impl: echo{err: primaryErr}},
		Provider[echo]{Name: "fallback", Impl: echo{out: "fallback"}},
	)

	got, err := Try(context.Background(), c, call)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "fallback" {
		t.Errorf("expected fallback, got %s", got)
	}
}

func TestTry_AllFail(t *testing.T) {
	primaryErr := errors.New("primary down")
	fallbackErr := errors.New("fallback down")
	c := NewChain(nil,
		Provider[echo]{Name: "primary", Impl: echo{err: primaryErr}},
		Provider[echo]{Name: "fallback", Impl: echo{err: fallbackErr}},
	)

	_, err := Try(context.Background(), c, call)
	if err == nil {
		t.Fatal("expected an error")
	}
	// Both causes survive in the aggregate.
	if !errors.Is(err, primaryErr) {
		t.Errorf("expected aggregate to contain primary error, got %v", err)
	}
	if !errors.Is(err, fallbackErr) {
		t.Errorf("expected aggregate to contain fallback error, got %v", err)
	}
}

func TestTry_NilChain(t *testing.T) {
	var c *Chain[echo]

	_, err := Try(context.Background(), c, call)
	if !errors.Is(err, ErrNoProviders) {
		t.Errorf("expected ErrNoProviders, got %v", err)
	}
}

func TestTry_EmptyChain(t *testing.T) {
	c := NewChain[echo](nil)

	_, err := Try(context.Background(), c, call)
	if !errors.Is(err, ErrNoProviders) {
		t.Errorf("expected ErrNoProviders, got %v", err)
	}
}

func TestTry_ContextCancelled_NoFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	c := NewChain(nil,
		Provider[echo]{Name: "primary", Impl: echo{}},
		Provider[echo]{Name: "fallback", Impl: echo{}},
	)

	_, err := Try(ctx, c, func(ctx context.Context, e echo) (string, error) {
		calls++
		if calls > 1 {
			t.Fatal("fallback tried after context cancellation")
		}
		cancel()
		return "", ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestChain_Len(t *testing.T) {
	c := NewChain(nil, Provider[echo]{Name: "only", Impl: echo{}})
	if c.Len() != 1 {
		t.Errorf("expected 1, got %d", c.Len())
	}
	if NewChain[echo](nil).Len() != 0 {
		t.Errorf("expected 0 for empty chain")
	}
}
