package review

import (
	"context"
	"sync"
	"time"
)

// WorkflowPatch is a partial WorkflowState for shallow-merge updates. Nil
// fields are left untouched; non-nil fields replace the stored value wholesale
// (Phases included, so append-style updates are read-modify-write at the
// caller).
type WorkflowPatch struct {
	Status       *Status
	CurrentPhase *string
	EndTime      *time.Time
	Phases       []PhaseResult
	FinalReport  *Report
	Error        *string
	CancelReason *string
}

// MergeWorkflowState applies patch onto state, replacing only the fields the
// patch sets. This is the single merge contract shared by every WorkflowStore
// implementation.
func MergeWorkflowState(state *WorkflowState, patch WorkflowPatch) {
	if patch.Status != nil {
		state.Status = *patch.Status
	}
	if patch.CurrentPhase != nil {
		state.CurrentPhase = *patch.CurrentPhase
	}
	if patch.EndTime != nil {
		state.EndTime = *patch.EndTime
	}
	if patch.Phases != nil {
		state.Phases = patch.Phases
	}
	if patch.FinalReport != nil {
		state.FinalReport = patch.FinalReport
	}
	if patch.Error != nil {
		state.Error = *patch.Error
	}
	if patch.CancelReason != nil {
		state.CancelReason = *patch.CancelReason
	}
}

// WorkflowStore persists workflow records.
//
// Implementations can use:
//   - In-memory storage (see MemoryStore)
//   - SQLite for single-node durability (see store.SQLiteStore)
//   - MySQL for shared deployments (see store.MySQLStore)
//
// Update is a shallow merge and is not atomic with respect to concurrent
// updates on the same id. The store does not enforce status monotonicity
// either; both are Orchestrator responsibilities, handled with a per-workflow
// lock.
type WorkflowStore interface {
	// Initialize creates a new record. Returns ErrWorkflowExists if the id
	// is already stored.
	Initialize(ctx context.Context, state WorkflowState) error

	// Get retrieves a workflow record by id. Returns ErrWorkflowNotFound
	// if the id is unknown.
	Get(ctx context.Context, id string) (WorkflowState, error)

	// Update shallow-merges patch into the stored record via
	// MergeWorkflowState. Returns ErrWorkflowNotFound if the id is unknown.
	Update(ctx context.Context, id string, patch WorkflowPatch) error

	// EvictOlderThan removes terminal records whose age now-StartTime
	// strictly exceeds maxAge, and returns how many were removed. Running
	// workflows are never evicted, so an unsynchronized sweep cannot
	// destroy a record mid-flight.
	EvictOlderThan(ctx context.Context, maxAge time.Duration, now time.Time) (int, error)

	// List returns all records whose StartTime is at or after since, in
	// unspecified order. A zero since returns every record.
	List(ctx context.Context, since time.Time) ([]WorkflowState, error)

	// Close releases any resources held by the store.
	Close() error
}

// MemoryStore is an in-memory implementation of WorkflowStore.
//
// Designed for:
//   - Testing and development
//   - Single-process deployments where durability isn't required
//
// MemoryStore is thread-safe and supports concurrent access. Data is lost
// when the process terminates; use a database-backed store for persistence.
type MemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]WorkflowState
}

// NewMemoryStore creates a new in-memory workflow store.
//
// Example:
//
//	store := review.NewMemoryStore()
//	orc, err := review.New(feature, codebase, analyzer, review.WithStore(store))
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows: make(map[string]WorkflowState),
	}
}

// Initialize creates a new workflow record.
func (m *MemoryStore) Initialize(_ context.Context, state WorkflowState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.workflows[state.ID]; exists {
		return ErrWorkflowExists
	}

	m.workflows[state.ID] = cloneState(state)
	return nil
}

// Get retrieves a workflow record by id.
func (m *MemoryStore) Get(_ context.Context, id string) (WorkflowState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, exists := m.workflows[id]
	if !exists {
		return WorkflowState{}, ErrWorkflowNotFound
	}
	return cloneState(state), nil
}

// Update shallow-merges patch into the stored record.
func (m *MemoryStore) Update(_ context.Context, id string, patch WorkflowPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, exists := m.workflows[id]
	if !exists {
		return ErrWorkflowNotFound
	}

	MergeWorkflowState(&state, patch)
	m.workflows[id] = state
	return nil
}

// EvictOlderThan removes terminal records older than maxAge.
func (m *MemoryStore) EvictOlderThan(_ context.Context, maxAge time.Duration, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for id, state := range m.workflows {
		if !state.Status.Terminal() {
			continue
		}
		if now.Sub(state.StartTime) > maxAge {
			delete(m.workflows, id)
			count++
		}
	}
	return count, nil
}

// List returns all records whose StartTime is at or after since.
func (m *MemoryStore) List(_ context.Context, since time.Time) ([]WorkflowState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]WorkflowState, 0, len(m.workflows))
	for _, state := range m.workflows {
		if !since.IsZero() && state.StartTime.Before(since) {
			continue
		}
		result = append(result, cloneState(state))
	}
	return result, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }

// cloneState copies the slices and maps a WorkflowState carries so stored
// records cannot be mutated through values handed to or from the store.
func cloneState(state WorkflowState) WorkflowState {
	if state.Phases != nil {
		phases := make([]PhaseResult, len(state.Phases))
		copy(phases, state.Phases)
		state.Phases = phases
	}
	if state.FocusAreas != nil {
		areas := make([]string, len(state.FocusAreas))
		copy(areas, state.FocusAreas)
		state.FocusAreas = areas
	}
	if state.Metadata != nil {
		meta := make(map[string]string, len(state.Metadata))
		for k, v := range state.Metadata {
			meta[k] = v
		}
		state.Metadata = meta
	}
	return state
}
