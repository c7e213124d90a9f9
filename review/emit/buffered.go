package emit

import "sync"

// BufferedEmitter implements Emitter by storing events in memory.
//
// This emitter captures all events and provides query capabilities for
// execution history analysis. Events are organized by workflow ID for
// efficient retrieval and filtering.
//
// Features:
//   - Thread-safe concurrent access
//   - Query by workflow ID with optional filtering
//   - Filter by phase, message, sequence range
//   - Clear events by workflow ID or all events
//
// Warning: This emitter stores all events in memory. For production
// deployments with high review volume, consider using a persistent
// backend or clearing completed workflows periodically.
//
// Example usage:
//
//	emitter := emit.NewBufferedEmitter()
//	orc, _ := review.New(feature, codebase, analyzer, review.WithEmitter(emitter))
//
//	result, _ := orc.ReviewPR(ctx, pr)
//
//	// Query execution history
//	allEvents := emitter.GetHistory(result.WorkflowID)
//	errors := emitter.GetHistoryWithFilter(result.WorkflowID, emit.HistoryFilter{Msg: "error"})
//
//	// Clean up
//	emitter.Clear(result.WorkflowID)
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // workflowID -> events
}

// HistoryFilter specifies criteria for filtering execution history.
//
// All filter fields are optional. When multiple fields are set, they are
// combined with AND logic (all conditions must match).
//
// Fields:
//   - Phase: Filter by review phase
//   - Msg: Filter by message type (e.g., "phase_start", "error")
//   - MinSeq: Filter events with seq >= MinSeq (nil = no lower bound)
//   - MaxSeq: Filter events with seq <= MaxSeq (nil = no upper bound)
type HistoryFilter struct {
	Phase  string // Filter by phase (empty = no filter)
	Msg    string // Filter by message (empty = no filter)
	MinSeq *int   // Minimum sequence number (nil = no filter)
	MaxSeq *int   // Maximum sequence number (nil = no filter)
}

// NewBufferedEmitter creates a new BufferedEmitter.
//
// Returns a BufferedEmitter that stores all events in memory and provides
// query capabilities. Safe for concurrent use.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{
		events: make(map[string][]Event),
	}
}

// Emit stores an event in the buffer.
//
// Events are organized by workflow ID for efficient retrieval. This method
// is thread-safe and can be called concurrently from multiple goroutines.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events[event.WorkflowID] = append(b.events[event.WorkflowID], event)
}

// GetHistory retrieves all events for a specific workflow ID.
//
// Returns events in the order they were emitted. Returns an empty slice
// if no events exist for the given workflow ID.
//
// This method is thread-safe and returns a copy of the events to prevent
// concurrent modification issues.
func (b *BufferedEmitter) GetHistory(workflowID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[workflowID]
	if events == nil {
		return []Event{} // Return empty slice instead of nil
	}

	// Return a copy to prevent external modification
	result := make([]Event, len(events))
	copy(result, events)
	return result
}

// GetHistoryWithFilter retrieves filtered events for a specific workflow ID.
//
// Applies the provided filter criteria to select matching events. All
// filter conditions must match for an event to be included (AND logic).
//
// Returns events in the order they were emitted. Returns an empty slice if
// no events match the filter.
//
// Example:
//
//	// Get fallback events from the codebase learning phase
//	filter := emit.HistoryFilter{
//		Phase: "codebase_learning",
//		Msg:   "phase_fallback",
//	}
//	fallbacks := emitter.GetHistoryWithFilter("pr-42-01J3", filter)
func (b *BufferedEmitter) GetHistoryWithFilter(workflowID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[workflowID]
	if events == nil {
		return []Event{}
	}

	// If filter is empty, return all events
	if filter.Phase == "" && filter.Msg == "" && filter.MinSeq == nil && filter.MaxSeq == nil {
		result := make([]Event, len(events))
		copy(result, events)
		return result
	}

	// Apply filters
	var result []Event
	for _, event := range events {
		if !b.matchesFilter(event, filter) {
			continue
		}
		result = append(result, event)
	}

	if result == nil {
		return []Event{} // Return empty slice instead of nil
	}
	return result
}

// matchesFilter checks if an event matches the filter criteria.
func (b *BufferedEmitter) matchesFilter(event Event, filter HistoryFilter) bool {
	if filter.Phase != "" && event.Phase != filter.Phase {
		return false
	}

	if filter.Msg != "" && event.Msg != filter.Msg {
		return false
	}

	if filter.MinSeq != nil && event.Seq < *filter.MinSeq {
		return false
	}

	if filter.MaxSeq != nil && event.Seq > *filter.MaxSeq {
		return false
	}

	return true
}

// Clear removes stored events.
//
// If workflowID is non-empty, clears only events for that workflow.
// If workflowID is empty, clears all stored events across all workflows.
func (b *BufferedEmitter) Clear(workflowID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if workflowID == "" {
		b.events = make(map[string][]Event)
	} else {
		delete(b.events, workflowID)
	}
}
