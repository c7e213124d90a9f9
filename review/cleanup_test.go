package review

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dshills/reviewflow-go/review/agent"
	"github.com/dshills/reviewflow-go/review/emit"
)

// TestCleanupOldWorkflows verifies a manual sweep: terminal records strictly
// older than the retention age are evicted, running records survive, and a
// cleanup_sweep event reports the count.
func TestCleanupOldWorkflows(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 12, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	emitter := emit.NewBufferedEmitter()

	orc, err := New(
		&agent.MockFeatureAnalyzer{},
		&agent.MockCodebaseLearner{},
		&agent.MockCodeAnalyzer{},
		WithClock(clock),
		WithEmitter(emitter),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	records := []WorkflowState{
		testWorkflowState("pr-1-old-done", StatusCompleted, now.Add(-48*time.Hour)),
		testWorkflowState("pr-2-old-cancelled", StatusCancelled, now.Add(-30*time.Hour)),
		testWorkflowState("pr-3-old-running", StatusRunning, now.Add(-72*time.Hour)),
		testWorkflowState("pr-4-fresh-done", StatusCompleted, now.Add(-time.Hour)),
	}
	for _, r := range records {
		if err := orc.store.Initialize(ctx, r); err != nil {
			t.Fatalf("Initialize %s failed: %v", r.ID, err)
		}
	}

	evicted, err := orc.CleanupOldWorkflows(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("CleanupOldWorkflows failed: %v", err)
	}
	if evicted != 2 {
		t.Errorf("evicted = %d, want 2", evicted)
	}

	if _, err := orc.store.Get(ctx, "pr-1-old-done"); !errors.Is(err, ErrWorkflowNotFound) {
		t.Error("pr-1-old-done survived the sweep")
	}
	if _, err := orc.store.Get(ctx, "pr-3-old-running"); err != nil {
		t.Error("running record was evicted")
	}
	if _, err := orc.store.Get(ctx, "pr-4-fresh-done"); err != nil {
		t.Error("fresh record was evicted")
	}

	// The sweep event reports the eviction count and the retention window.
	sweeps := emitter.GetHistoryWithFilter("", emit.HistoryFilter{Msg: "cleanup_sweep"})
	if len(sweeps) != 1 {
		t.Fatalf("cleanup_sweep events = %d, want 1", len(sweeps))
	}
	if sweeps[0].Meta["evicted"] != 2 || sweeps[0].Meta["max_age_ms"] != (24 * time.Hour).Milliseconds() {
		t.Errorf("cleanup_sweep meta = %v", sweeps[0].Meta)
	}
}

// TestCleanupOldWorkflows_Archive verifies archive-before-evict: each evicted
// record is copied into the archive store, and records already archived are
// tolerated.
func TestCleanupOldWorkflows_Archive(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 12, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	archive := NewMemoryStore()

	orc, err := New(
		&agent.MockFeatureAnalyzer{},
		&agent.MockCodebaseLearner{},
		&agent.MockCodeAnalyzer{},
		WithClock(clock),
		WithArchive(archive),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	old := testWorkflowState("pr-1-old-done", StatusCompleted, now.Add(-48*time.Hour))
	old.FinalReport = &Report{Status: ReportComplete, HealthScore: 88}
	if err := orc.store.Initialize(ctx, old); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	// Pre-archive the record: a second sweep finding it already archived
	// must not fail.
	if err := archive.Initialize(ctx, old); err != nil {
		t.Fatalf("archive Initialize failed: %v", err)
	}

	evicted, err := orc.CleanupOldWorkflows(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("CleanupOldWorkflows failed: %v", err)
	}
	if evicted != 1 {
		t.Errorf("evicted = %d, want 1", evicted)
	}

	// The record is gone from the primary store but retrievable from the
	// archive, report included.
	if _, err := orc.store.Get(ctx, old.ID); !errors.Is(err, ErrWorkflowNotFound) {
		t.Error("record survived in the primary store")
	}
	archived, err := archive.Get(ctx, old.ID)
	if err != nil {
		t.Fatalf("archive Get failed: %v", err)
	}
	if archived.FinalReport == nil || archived.FinalReport.HealthScore != 88 {
		t.Errorf("archived report = %+v", archived.FinalReport)
	}
}

// TestCleanupOldWorkflows_NothingToDo verifies that a sweep over young or
// running records evicts nothing.
func TestCleanupOldWorkflows_NothingToDo(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2025, 6, 12, 12, 0, 0, 0, time.UTC))

	orc, err := New(
		&agent.MockFeatureAnalyzer{},
		&agent.MockCodebaseLearner{},
		&agent.MockCodeAnalyzer{},
		WithClock(clock),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := orc.store.Initialize(ctx, testWorkflowState("pr-1-fresh", StatusCompleted, clock.Now())); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	evicted, err := orc.CleanupOldWorkflows(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("CleanupOldWorkflows failed: %v", err)
	}
	if evicted != 0 {
		t.Errorf("evicted = %d, want 0", evicted)
	}
}

// TestCleanupScheduler verifies the periodic sweep loop end to end with a
// short interval: old terminal records disappear without a manual trigger.
func TestCleanupScheduler(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2025, 6, 12, 12, 0, 0, 0, time.UTC))

	orc, err := New(
		&agent.MockFeatureAnalyzer{},
		&agent.MockCodebaseLearner{},
		&agent.MockCodeAnalyzer{},
		WithClock(clock),
		WithCleanupInterval(10*time.Millisecond),
		WithMaxWorkflowAge(time.Hour),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	old := testWorkflowState("pr-1-old-done", StatusCompleted, clock.Now().Add(-2*time.Hour))
	if err := orc.store.Initialize(ctx, old); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	scheduler := NewCleanupScheduler(orc)
	if scheduler.interval != 10*time.Millisecond || scheduler.maxAge != time.Hour {
		t.Fatalf("scheduler cadence = %v/%v", scheduler.interval, scheduler.maxAge)
	}

	scheduler.Start(ctx)
	defer scheduler.Stop()

	// Wait for a sweep to evict the record.
	deadline := time.After(2 * time.Second)
	for {
		if _, err := orc.store.Get(ctx, old.ID); errors.Is(err, ErrWorkflowNotFound) {
			break
		}
		select {
		case <-deadline:
			t.Fatal("record not evicted within 2s")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// TestCleanupScheduler_StartStop verifies idempotent Start and Stop.
func TestCleanupScheduler_StartStop(t *testing.T) {
	orc, err := New(
		&agent.MockFeatureAnalyzer{},
		&agent.MockCodebaseLearner{},
		&agent.MockCodeAnalyzer{},
		WithCleanupInterval(time.Hour),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	scheduler := NewCleanupScheduler(orc)

	// Stop before Start is a no-op.
	scheduler.Stop()

	ctx := context.Background()
	scheduler.Start(ctx)
	scheduler.Start(ctx) // second Start is a no-op

	scheduler.Stop()
	scheduler.Stop() // second Stop is a no-op

	// The scheduler can be restarted after a full stop.
	scheduler.Start(ctx)
	scheduler.Stop()
}

// TestClose verifies that Close releases both stores and reports the first
// failure.
func TestClose(t *testing.T) {
	t.Run("memory stores close cleanly", func(t *testing.T) {
		orc, err := New(
			&agent.MockFeatureAnalyzer{},
			&agent.MockCodebaseLearner{},
			&agent.MockCodeAnalyzer{},
			WithArchive(NewMemoryStore()),
		)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if err := orc.Close(); err != nil {
			t.Errorf("Close = %v, want nil", err)
		}
	})

	t.Run("store error wins over archive error", func(t *testing.T) {
		storeErr := errors.New("store close failed")
		archiveErr := errors.New("archive close failed")
		orc, err := New(
			&agent.MockFeatureAnalyzer{},
			&agent.MockCodebaseLearner{},
			&agent.MockCodeAnalyzer{},
			WithStore(&closeErrorStore{MemoryStore: NewMemoryStore(), closeErr: storeErr}),
			WithArchive(&closeErrorStore{MemoryStore: NewMemoryStore(), closeErr: archiveErr}),
		)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if err := orc.Close(); !errors.Is(err, storeErr) {
			t.Errorf("Close = %v, want the store error", err)
		}
	})

	t.Run("archive error surfaces when store closes cleanly", func(t *testing.T) {
		archiveErr := errors.New("archive close failed")
		orc, err := New(
			&agent.MockFeatureAnalyzer{},
			&agent.MockCodebaseLearner{},
			&agent.MockCodeAnalyzer{},
			WithArchive(&closeErrorStore{MemoryStore: NewMemoryStore(), closeErr: archiveErr}),
		)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if err := orc.Close(); !errors.Is(err, archiveErr) {
			t.Errorf("Close = %v, want the archive error", err)
		}
	})
}

// closeErrorStore wraps MemoryStore to inject a Close error.
type closeErrorStore struct {
	*MemoryStore
	closeErr error
}

func (c *closeErrorStore) Close() error { return c.closeErr }
