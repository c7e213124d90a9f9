// Package store provides database-backed implementations of
// review.WorkflowStore.
//
// Two backends are available:
//   - SQLiteStore: single-file database for development and single-node use
//   - MySQLStore: shared database for multi-node deployments
//
// Both persist the full workflow record as a JSON document alongside the
// columns needed for lookups and retention sweeps (id, status, start time).
package store

import (
	"encoding/json"
	"fmt"

	"github.com/dshills/reviewflow-go/review"
)

// terminalStatusArgs returns the placeholder list and arguments for a
// status IN (...) clause matching every terminal workflow status.
func terminalStatusArgs() (string, []interface{}) {
	statuses := []review.Status{
		review.StatusCompleted,
		review.StatusFailed,
		review.StatusCancelled,
	}

	placeholders := ""
	args := make([]interface{}, len(statuses))
	for i, status := range statuses {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args[i] = string(status)
	}
	return placeholders, args
}

// encodeState serializes a workflow record for the state column.
func encodeState(state review.WorkflowState) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow state: %w", err)
	}
	return data, nil
}

// decodeState deserializes a workflow record from the state column.
func decodeState(data []byte) (review.WorkflowState, error) {
	var state review.WorkflowState
	if err := json.Unmarshal(data, &state); err != nil {
		return review.WorkflowState{}, fmt.Errorf("failed to unmarshal workflow state: %w", err)
	}
	return state, nil
}
