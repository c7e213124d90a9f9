package review

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// TestMergeWorkflowState verifies the shallow-merge contract shared by every
// store implementation: nil patch fields are left untouched, non-nil fields
// replace the stored value wholesale.
func TestMergeWorkflowState(t *testing.T) {
	base := func() WorkflowState {
		return WorkflowState{
			ID:           "pr-1-01HBASE",
			Status:       StatusRunning,
			CurrentPhase: PhaseFeatureUnderstanding,
			StartTime:    time.Date(2025, 6, 12, 9, 0, 0, 0, time.UTC),
			Phases:       []PhaseResult{{Name: PhaseFeatureUnderstanding, Status: PhaseCompleted}},
		}
	}

	status := StatusCompleted
	phase := PhaseCodeAnalysis
	end := time.Date(2025, 6, 12, 9, 5, 0, 0, time.UTC)
	report := &Report{Status: ReportComplete, HealthScore: 93}
	errMsg := "analysis timed out"
	reason := "superseded by newer push"

	tests := []struct {
		name  string
		patch WorkflowPatch
		check func(t *testing.T, s WorkflowState)
	}{
		{
			"empty patch changes nothing",
			WorkflowPatch{},
			func(t *testing.T, s WorkflowState) {
				if s.Status != StatusRunning || s.CurrentPhase != PhaseFeatureUnderstanding || len(s.Phases) != 1 {
					t.Errorf("state mutated by empty patch: %+v", s)
				}
			},
		},
		{
			"status only",
			WorkflowPatch{Status: &status},
			func(t *testing.T, s WorkflowState) {
				if s.Status != StatusCompleted {
					t.Errorf("Status = %q", s.Status)
				}
				if s.CurrentPhase != PhaseFeatureUnderstanding {
					t.Errorf("CurrentPhase changed: %q", s.CurrentPhase)
				}
			},
		},
		{
			"current phase only",
			WorkflowPatch{CurrentPhase: &phase},
			func(t *testing.T, s WorkflowState) {
				if s.CurrentPhase != PhaseCodeAnalysis {
					t.Errorf("CurrentPhase = %q", s.CurrentPhase)
				}
			},
		},
		{
			"end time only",
			WorkflowPatch{EndTime: &end},
			func(t *testing.T, s WorkflowState) {
				if !s.EndTime.Equal(end) {
					t.Errorf("EndTime = %v", s.EndTime)
				}
			},
		},
		{
			"phases replace wholesale",
			WorkflowPatch{Phases: []PhaseResult{
				{Name: PhaseFeatureUnderstanding, Status: PhaseCompleted},
				{Name: PhaseCodebaseLearning, Status: PhaseCompleted},
			}},
			func(t *testing.T, s WorkflowState) {
				if len(s.Phases) != 2 {
					t.Errorf("Phases = %d entries, want 2", len(s.Phases))
				}
			},
		},
		{
			"final report, error, and cancel reason",
			WorkflowPatch{FinalReport: report, Error: &errMsg, CancelReason: &reason},
			func(t *testing.T, s WorkflowState) {
				if s.FinalReport == nil || s.FinalReport.HealthScore != 93 {
					t.Errorf("FinalReport = %+v", s.FinalReport)
				}
				if s.Error != errMsg || s.CancelReason != reason {
					t.Errorf("Error = %q CancelReason = %q", s.Error, s.CancelReason)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := base()
			MergeWorkflowState(&state, tt.patch)
			tt.check(t, state)
		})
	}
}

// TestMemoryStore_InitializeAndGet verifies record creation, duplicate
// detection, and retrieval.
func TestMemoryStore_InitializeAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	state := testWorkflowState("pr-10-01HAAA", StatusRunning, time.Now())
	if err := store.Initialize(ctx, state); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	// Duplicate ids are refused.
	if err := store.Initialize(ctx, state); !errors.Is(err, ErrWorkflowExists) {
		t.Errorf("duplicate Initialize = %v, want ErrWorkflowExists", err)
	}

	got, err := store.Get(ctx, state.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != state.ID || got.Repository != state.Repository || got.PRNumber != state.PRNumber {
		t.Errorf("Get = %+v", got)
	}

	// Unknown ids return the sentinel.
	if _, err := store.Get(ctx, "pr-0-unknown"); !errors.Is(err, ErrWorkflowNotFound) {
		t.Errorf("Get unknown = %v, want ErrWorkflowNotFound", err)
	}
}

// TestMemoryStore_Update verifies the shallow merge through the store and the
// not-found sentinel for unknown ids.
func TestMemoryStore_Update(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	state := testWorkflowState("pr-11-01HBBB", StatusRunning, time.Now())
	if err := store.Initialize(ctx, state); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	status := StatusCompleted
	end := time.Now()
	if err := store.Update(ctx, state.ID, WorkflowPatch{Status: &status, EndTime: &end}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := store.Get(ctx, state.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if !got.EndTime.Equal(end) {
		t.Errorf("EndTime = %v, want %v", got.EndTime, end)
	}
	// Unpatched fields survive.
	if got.CurrentPhase != PhaseInitializing {
		t.Errorf("CurrentPhase = %q, want initializing", got.CurrentPhase)
	}

	if err := store.Update(ctx, "pr-0-unknown", WorkflowPatch{Status: &status}); !errors.Is(err, ErrWorkflowNotFound) {
		t.Errorf("Update unknown = %v, want ErrWorkflowNotFound", err)
	}
}

// TestMemoryStore_CloneIsolation verifies that records cannot be mutated
// through values handed to or returned from the store.
func TestMemoryStore_CloneIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	state := testWorkflowState("pr-12-01HCCC", StatusRunning, time.Now())
	state.Phases = []PhaseResult{{Name: PhaseFeatureUnderstanding, Status: PhaseCompleted}}
	state.FocusAreas = []string{"security"}
	state.Metadata = map[string]string{"team": "payments"}
	if err := store.Initialize(ctx, state); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	// Mutating the caller's copy after Initialize must not affect the store.
	state.Phases[0].Name = "mutated"
	state.FocusAreas[0] = "mutated"
	state.Metadata["team"] = "mutated"

	got, err := store.Get(ctx, "pr-12-01HCCC")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Phases[0].Name != PhaseFeatureUnderstanding {
		t.Errorf("stored phase mutated through caller copy: %q", got.Phases[0].Name)
	}
	if got.FocusAreas[0] != "security" || got.Metadata["team"] != "payments" {
		t.Errorf("stored hints mutated through caller copy: %v %v", got.FocusAreas, got.Metadata)
	}

	// Mutating a returned copy must not affect the store either.
	got.Phases[0].Name = "mutated again"
	again, err := store.Get(ctx, "pr-12-01HCCC")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if again.Phases[0].Name != PhaseFeatureUnderstanding {
		t.Errorf("stored phase mutated through returned copy: %q", again.Phases[0].Name)
	}
}

// TestMemoryStore_EvictOlderThan verifies the eviction rules: only terminal
// records are candidates, and age must strictly exceed the threshold.
func TestMemoryStore_EvictOlderThan(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2025, 6, 12, 12, 0, 0, 0, time.UTC)

	records := []WorkflowState{
		testWorkflowState("pr-1-old-done", StatusCompleted, now.Add(-2*time.Hour)),
		testWorkflowState("pr-2-old-failed", StatusFailed, now.Add(-3*time.Hour)),
		testWorkflowState("pr-3-old-running", StatusRunning, now.Add(-5*time.Hour)),
		testWorkflowState("pr-4-fresh-done", StatusCompleted, now.Add(-30*time.Minute)),
		testWorkflowState("pr-5-exact-age", StatusCompleted, now.Add(-time.Hour)),
	}
	for _, r := range records {
		if err := store.Initialize(ctx, r); err != nil {
			t.Fatalf("Initialize %s failed: %v", r.ID, err)
		}
	}

	evicted, err := store.EvictOlderThan(ctx, time.Hour, now)
	if err != nil {
		t.Fatalf("EvictOlderThan failed: %v", err)
	}
	// Only the two terminal records strictly older than one hour go. The
	// running record is never evicted and the exact-age record stays because
	// the comparison is strict.
	if evicted != 2 {
		t.Errorf("evicted = %d, want 2", evicted)
	}

	for _, tt := range []struct {
		id   string
		kept bool
	}{
		{"pr-1-old-done", false},
		{"pr-2-old-failed", false},
		{"pr-3-old-running", true},
		{"pr-4-fresh-done", true},
		{"pr-5-exact-age", true},
	} {
		_, err := store.Get(ctx, tt.id)
		if tt.kept && err != nil {
			t.Errorf("%s evicted, want kept", tt.id)
		}
		if !tt.kept && !errors.Is(err, ErrWorkflowNotFound) {
			t.Errorf("%s kept, want evicted", tt.id)
		}
	}
}

// TestMemoryStore_List verifies the since filter: zero means every record,
// otherwise records starting at or after the bound.
func TestMemoryStore_List(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2025, 6, 12, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		r := testWorkflowState(fmt.Sprintf("pr-%d-01HLIST", i), StatusCompleted, base.Add(time.Duration(i)*time.Hour))
		if err := store.Initialize(ctx, r); err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}
	}

	all, err := store.List(ctx, time.Time{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 5 {
		t.Errorf("List(zero) = %d records, want 5", len(all))
	}

	// The bound is inclusive: the record starting exactly at since is kept.
	recent, err := store.List(ctx, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(recent) != 3 {
		t.Errorf("List(since) = %d records, want 3", len(recent))
	}

	none, err := store.List(ctx, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("List(future) = %d records, want 0", len(none))
	}
}

// TestMemoryStore_ConcurrentAccess exercises the store from many goroutines.
// Run with -race.
func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("pr-%d-01HCONC", n)
			if err := store.Initialize(ctx, testWorkflowState(id, StatusRunning, now)); err != nil {
				t.Errorf("Initialize failed: %v", err)
				return
			}
			status := StatusCompleted
			for j := 0; j < 20; j++ {
				if err := store.Update(ctx, id, WorkflowPatch{Status: &status}); err != nil {
					t.Errorf("Update failed: %v", err)
				}
				if _, err := store.Get(ctx, id); err != nil {
					t.Errorf("Get failed: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	all, err := store.List(ctx, time.Time{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 10 {
		t.Errorf("List = %d records, want 10", len(all))
	}
}

// TestMemoryStore_InterfaceContract verifies the store satisfies
// WorkflowStore.
func TestMemoryStore_InterfaceContract(t *testing.T) {
	var _ WorkflowStore = NewMemoryStore()
	var _ WorkflowStore = (*MemoryStore)(nil)
}

// testWorkflowState builds a minimal workflow record for store tests.
func testWorkflowState(id string, status Status, start time.Time) WorkflowState {
	state := WorkflowState{
		ID:           id,
		Repository:   "acme/payments",
		PRNumber:     42,
		Status:       status,
		StartTime:    start,
		CurrentPhase: PhaseInitializing,
		Phases:       []PhaseResult{},
	}
	if status.Terminal() {
		state.EndTime = start.Add(time.Minute)
	}
	return state
}
