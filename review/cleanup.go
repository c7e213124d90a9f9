package review

import (
	"context"
	"sync"
	"time"

	"github.com/dshills/reviewflow-go/review/emit"
)

// CleanupScheduler periodically evicts old workflow records.
//
// The sweep runs on the Orchestrator's configured cleanup interval and
// retention age (see WithCleanupInterval and WithMaxWorkflowAge). It runs
// independently of in-flight reviews: eviction skips non-terminal workflows,
// so an unsynchronized sweep cannot destroy a record mid-review.
//
// Usage:
//
//	scheduler := review.NewCleanupScheduler(orc)
//	scheduler.Start(ctx)
//	defer scheduler.Stop()
type CleanupScheduler struct {
	orc      *Orchestrator
	interval time.Duration
	maxAge   time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCleanupScheduler creates a scheduler bound to the orchestrator's
// configured cadence and retention age.
func NewCleanupScheduler(orc *Orchestrator) *CleanupScheduler {
	return &CleanupScheduler{
		orc:      orc,
		interval: orc.cleanupInterval,
		maxAge:   orc.maxWorkflowAge,
	}
}

// Start launches the sweep loop. Calling Start on a running scheduler is a
// no-op. The loop stops when Stop is called or ctx is cancelled.
func (s *CleanupScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, s.done)
}

// Stop halts the sweep loop and waits for an in-progress sweep to finish.
// Calling Stop on a stopped scheduler is a no-op.
func (s *CleanupScheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *CleanupScheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.orc.CleanupOldWorkflows(ctx, s.maxAge); err != nil {
				s.orc.emitter.Emit(emit.Event{
					Msg:  "error",
					Meta: map[string]interface{}{"error": "cleanup sweep: " + err.Error()},
				})
			}
		}
	}
}
