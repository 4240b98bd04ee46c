package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"
)

// countingHandlers builds a handler per configured step that records how
// many times it ran and returns a trivial payload.
func countingHandlers(cfg RunConfig, calls map[StepName]int) map[StepName]Handler {
	handlers := make(map[StepName]Handler)
	for _, step := range StepOrder(cfg) {
		step := step
		handlers[step] = HandlerFunc(func(ctx context.Context, uploadID string, prior map[StepName]Payload, cfg RunConfig) (Payload, error) {
			calls[step]++
			return NewPayload(KindSlideTexts, []string{string(step)})
		})
	}
	return handlers
}

func TestOrchestrator_Run_HappyPath(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	cfg := RunConfig{AudioLanguage: "en"}
	calls := make(map[StepName]int)

	o := NewOrchestrator(store, countingHandlers(cfg, calls), nil)

	if err := o.Run(context.Background(), "upload-1", cfg, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state, _ := store.Get(context.Background(), "upload-1")
	if state.Status != StatusCompleted {
		t.Errorf("expected upload completed, got %s", state.Status)
	}
	for _, step := range StepOrder(cfg) {
		if calls[step] != 1 {
			t.Errorf("step %s: expected 1 call, got %d", step, calls[step])
		}
		if state.Steps[step].Status != StepCompleted {
			t.Errorf("step %s: expected completed, got %s", step, state.Steps[step].Status)
		}
	}
}

func TestOrchestrator_Run_PriorPayloadsFlow(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	cfg := RunConfig{AudioLanguage: "en"}
	order := StepOrder(cfg)

	// The second step must see the first step's output in prior.
	var sawExtract bool
	handlers := countingHandlers(cfg, make(map[StepName]int))
	handlers[order[1]] = HandlerFunc(func(ctx context.Context, uploadID string, prior map[StepName]Payload, cfg RunConfig) (Payload, error) {
		_, sawExtract = prior[order[0]]
		return NewPayload(KindImageRefs, []string{})
	})

	o := NewOrchestrator(store, handlers, nil)
	if err := o.Run(context.Background(), "upload-1", cfg, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sawExtract {
		t.Error("expected first step payload in prior of second step")
	}
}

func TestOrchestrator_Run_HandlerFailure(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	cfg := RunConfig{AudioLanguage: "en"}
	calls := make(map[StepName]int)

	boom := errors.New("boom")
	handlers := countingHandlers(cfg, calls)
	handlers[StepAnalyzeImages] = HandlerFunc(func(ctx context.Context, uploadID string, prior map[StepName]Payload, cfg RunConfig) (Payload, error) {
		return Payload{}, boom
	})

	o := NewOrchestrator(store, handlers, nil)
	err := o.Run(context.Background(), "upload-1", cfg, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped handler error, got %v", err)
	}

	state, _ := store.Get(context.Background(), "upload-1")
	if state.Status != StatusFailed {
		t.Errorf("expected upload failed, got %s", state.Status)
	}
	if state.Steps[StepAnalyzeImages].Status != StepFailed {
		t.Errorf("expected step failed, got %s", state.Steps[StepAnalyzeImages].Status)
	}
	if state.Steps[StepAnalyzeImages].Error == "" {
		t.Error("expected step error message recorded")
	}
	if len(state.Errors) != 1 || state.Errors[0].Step != StepAnalyzeImages {
		t.Errorf("expected one error-log entry for %s, got %+v", StepAnalyzeImages, state.Errors)
	}
	// The run halts at the failed step.
	if calls[StepGenerateScripts] != 0 {
		t.Error("expected no steps after the failure to run")
	}
}

func TestOrchestrator_Run_ResumeSkipsCompleted(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	cfg := RunConfig{AudioLanguage: "en"}
	calls := make(map[StepName]int)

	boom := errors.New("boom")
	failing := true
	handlers := countingHandlers(cfg, calls)
	handlers[StepGenerateScripts] = HandlerFunc(func(ctx context.Context, uploadID string, prior map[StepName]Payload, cfg RunConfig) (Payload, error) {
		calls[StepGenerateScripts]++
		if failing {
			return Payload{}, boom
		}
		return NewPayload(KindScripts, []ScriptLine{})
	})

	o := NewOrchestrator(store, handlers, nil)

	if err := o.Run(context.Background(), "upload-1", cfg, nil); !errors.Is(err, boom) {
		t.Fatalf("expected first run to fail, got %v", err)
	}

	failing = false
	if err := o.Run(context.Background(), "upload-1", cfg, nil); err != nil {
		t.Fatalf("unexpected error on resume: %v", err)
	}

	// Steps before the failure ran in the first pass only.
	if calls[StepExtract] != 1 {
		t.Errorf("expected extract to run once, got %d", calls[StepExtract])
	}
	if calls[StepGenerateScripts] != 2 {
		t.Errorf("expected failed step to rerun, got %d calls", calls[StepGenerateScripts])
	}

	state, _ := store.Get(context.Background(), "upload-1")
	if state.Status != StatusCompleted {
		t.Errorf("expected upload completed after resume, got %s", state.Status)
	}
}

func TestOrchestrator_Run_SkipStep(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	cfg := RunConfig{AudioLanguage: "en", GenerateAvatar: true}
	calls := make(map[StepName]int)

	handlers := countingHandlers(cfg, calls)
	handlers[StepGenerateAvatarVideos] = HandlerFunc(func(ctx context.Context, uploadID string, prior map[StepName]Payload, cfg RunConfig) (Payload, error) {
		return Payload{}, ErrSkipStep
	})

	o := NewOrchestrator(store, handlers, nil)
	if err := o.Run(context.Background(), "upload-1", cfg, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state, _ := store.Get(context.Background(), "upload-1")
	if state.Steps[StepGenerateAvatarVideos].Status != StepSkipped {
		t.Errorf("expected skipped, got %s", state.Steps[StepGenerateAvatarVideos].Status)
	}
	if state.Status != StatusCompleted {
		t.Errorf("expected upload completed, got %s", state.Status)
	}
	// The step after the skipped one still runs.
	if calls[StepCompose] != 1 {
		t.Errorf("expected compose to run, got %d calls", calls[StepCompose])
	}
}

func TestOrchestrator_Run_CancelledAtBoundary(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	cfg := RunConfig{AudioLanguage: "en"}
	calls := make(map[StepName]int)

	// Cancel after the second step has completed.
	cancelled := func(ctx context.Context) bool {
		return calls[StepConvertToImages] > 0
	}

	o := NewOrchestrator(store, countingHandlers(cfg, calls), nil)
	err := o.Run(context.Background(), "upload-1", cfg, cancelled)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}

	state, _ := store.Get(context.Background(), "upload-1")
	if state.Status != StatusFailed {
		t.Errorf("expected upload failed after cancel, got %s", state.Status)
	}
	// An orderly halt adds no error-log entry and marks no step failed.
	if len(state.Errors) != 0 {
		t.Errorf("expected empty error log, got %+v", state.Errors)
	}
	if calls[StepAnalyzeImages] != 0 {
		t.Error("expected no step to run past the cancel boundary")
	}
	if state.Steps[StepConvertToImages].Status != StepCompleted {
		t.Errorf("expected completed work preserved, got %s", state.Steps[StepConvertToImages].Status)
	}
}

func TestOrchestrator_Run_NoHandler(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	cfg := RunConfig{AudioLanguage: "en"}

	o := NewOrchestrator(store, map[StepName]Handler{}, nil)
	err := o.Run(context.Background(), "upload-1", cfg, nil)
	if !errors.Is(err, ErrNoHandler) {
		t.Fatalf("expected ErrNoHandler, got %v", err)
	}

	state, _ := store.Get(context.Background(), "upload-1")
	if state.Status != StatusFailed {
		t.Errorf("expected upload failed, got %s", state.Status)
	}
}

type recordingCleaner struct {
	paths []string
}

func (c *recordingCleaner) Cleanup(_ context.Context, paths []string) error {
	c.paths = append(c.paths, paths...)
	return nil
}

func TestOrchestrator_Run_CleanupAfterCompletion(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	cfg := RunConfig{AudioLanguage: "en"}
	calls := make(map[StepName]int)

	handlers := countingHandlers(cfg, calls)
	handlers[StepConvertToImages] = HandlerFunc(func(ctx context.Context, uploadID string, prior map[StepName]Payload, cfg RunConfig) (Payload, error) {
		return NewPayload(KindImageRefs, []string{"/tmp/slide-1.png"})
	})
	handlers[StepGenerateAudio] = HandlerFunc(func(ctx context.Context, uploadID string, prior map[StepName]Payload, cfg RunConfig) (Payload, error) {
		return NewPayload(KindAudioClips, []MediaClip{{Slide: 0, Path: "/tmp/slide-1.wav"}})
	})

	cleaner := &recordingCleaner{}
	o := NewOrchestrator(store, handlers, nil, WithCleaner(cleaner))

	if err := o.Run(context.Background(), "upload-1", cfg, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]bool{"/tmp/slide-1.png": true, "/tmp/slide-1.wav": true}
	if len(cleaner.paths) != len(want) {
		t.Fatalf("expected %d cleanup paths, got %v", len(want), cleaner.paths)
	}
	for _, p := range cleaner.paths {
		if !want[p] {
			t.Errorf("unexpected cleanup path %s", p)
		}
	}
}
