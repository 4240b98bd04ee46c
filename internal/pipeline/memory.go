package pipeline

import (
	"context"
	"sync"
	"time"
)

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// stateEntry pairs a state with its retention deadline.
type stateEntry struct {
	state     *UploadState
	expiresAt time.Time
}

// MemoryStore is an in-memory implementation of Store with a rolling
// retention TTL per record. It uses a map with RWMutex for thread-safe
// access and clones on every read and write.
// Suitable for a single-host deployment; swap for a shared store when
// running competing workers on separate hosts.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]stateEntry
	ttl    time.Duration
}

// NewMemoryStore creates an in-memory state store. Records expire after
// ttl without writes; each write refreshes the deadline.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		states: make(map[string]stateEntry),
		ttl:    ttl,
	}
}

// Create initializes a state with all configured steps pending.
func (m *MemoryStore) Create(_ context.Context, uploadID string, cfg RunConfig) (*UploadState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.live(uploadID); ok && !existing.Status.IsTerminal() {
		return nil, ErrActiveStateExists
	}

	state := NewUploadState(uploadID, cfg)
	m.put(state)
	return state.Clone(), nil
}

// Get retrieves the state for an upload id.
func (m *MemoryStore) Get(_ context.Context, uploadID string) (*UploadState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.live(uploadID)
	if !ok {
		return nil, ErrStateNotFound
	}
	return state.Clone(), nil
}

// UpdateStep applies a snapshot read-modify-write of the step record.
func (m *MemoryStore) UpdateStep(_ context.Context, uploadID string, step StepName, update StepUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.live(uploadID)
	if !ok {
		return ErrStateNotFound
	}

	now := time.Now()
	next := state.Clone()
	rec, ok := next.Steps[step]
	if !ok {
		rec = &StepRecord{}
		next.Steps[step] = rec
	}
	rec.Status = update.Status
	rec.UpdatedAt = now
	if update.Payload != nil {
		p := *update.Payload
		rec.Payload = &p
	}
	rec.Error = update.Error

	// Any step write re-enters processing, including a resume of a
	// previously failed upload.
	next.CurrentStep = step
	next.Status = StatusProcessing
	next.UpdatedAt = now
	m.put(next)
	return nil
}

// MarkCompleted sets the terminal completed status.
func (m *MemoryStore) MarkCompleted(ctx context.Context, uploadID string) error {
	return m.setStatus(uploadID, StatusCompleted)
}

// MarkFailed sets the terminal failed status.
func (m *MemoryStore) MarkFailed(ctx context.Context, uploadID string) error {
	return m.setStatus(uploadID, StatusFailed)
}

// AddError appends an entry to the upload's error log.
func (m *MemoryStore) AddError(_ context.Context, uploadID string, step StepName, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.live(uploadID)
	if !ok {
		return ErrStateNotFound
	}

	next := state.Clone()
	next.Errors = append(next.Errors, ErrorEntry{
		Step:      step,
		Message:   message,
		Timestamp: time.Now(),
	})
	next.UpdatedAt = time.Now()
	m.put(next)
	return nil
}

func (m *MemoryStore) setStatus(uploadID string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.live(uploadID)
	if !ok {
		return ErrStateNotFound
	}

	next := state.Clone()
	next.Status = status
	next.UpdatedAt = time.Now()
	m.put(next)
	return nil
}

// live returns the stored state when present and not expired.
// Callers must hold at least the read lock.
func (m *MemoryStore) live(uploadID string) (*UploadState, bool) {
	entry, ok := m.states[uploadID]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.state, true
}

// put stores a state and refreshes its retention deadline.
// Callers must hold the write lock.
func (m *MemoryStore) put(state *UploadState) {
	m.states[state.UploadID] = stateEntry{
		state:     state.Clone(),
		expiresAt: time.Now().Add(m.ttl),
	}
}
