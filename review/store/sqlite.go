package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/dshills/reviewflow-go/review"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of review.WorkflowStore.
//
// It stores workflow records in a single-file database. Designed for:
//   - Development and testing with zero setup
//   - Single-process review services
//   - Local archives of completed reviews
//   - Prototyping before migrating to MySQL
//
// SQLiteStore uses WAL mode for concurrent reads and transactional
// read-merge-write updates.
//
// Schema:
//   - review_workflows: one row per workflow, full record as JSON plus the
//     columns retention sweeps and listings filter on
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore creates a new SQLite-backed workflow store.
//
// The path parameter specifies the database file location:
//   - "./reviews.db" - file in current directory
//   - "/var/lib/reviewflow/reviews.db" - absolute path
//   - ":memory:" - in-memory database (data lost on close)
//
// The store automatically:
//   - Creates the database file if it doesn't exist
//   - Creates required tables
//   - Enables WAL mode for concurrent reads
//   - Configures appropriate timeouts
//
// Example:
//
//	st, err := store.NewSQLiteStore("./reviews.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
//
//	orc, err := review.New(feature, codebase, analyzer, review.WithStore(st))
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	// Open database connection
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(1)    // SQLite supports one writer at a time
	db.SetMaxIdleConns(1)    // Keep connection open
	db.SetConnMaxLifetime(0) // No max lifetime for SQLite

	// Enable WAL mode for better concurrency
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close() // Ignore close error when returning pragma error
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close() // Ignore close error when returning pragma error
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Set busy timeout (wait up to 5 seconds for locks)
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close() // Ignore close error when returning pragma error
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		closed: false,
		path:   path,
	}

	// Create tables if they don't exist
	if err := store.createTables(ctx); err != nil {
		_ = db.Close() // Ignore close error when returning table creation error
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

// createTables creates the required database schema if it doesn't exist.
func (s *SQLiteStore) createTables(ctx context.Context) error {
	// review_workflows table: one row per workflow record
	workflowsTable := `
		CREATE TABLE IF NOT EXISTS review_workflows (
			id TEXT NOT NULL PRIMARY KEY,
			repository TEXT NOT NULL,
			pr_number INTEGER NOT NULL,
			status TEXT NOT NULL,
			start_time INTEGER NOT NULL,
			state TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := s.db.ExecContext(ctx, workflowsTable); err != nil {
		return fmt.Errorf("failed to create review_workflows table: %w", err)
	}

	// Create indexes for review_workflows
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_workflows_status_start ON review_workflows(status, start_time)"); err != nil {
		return fmt.Errorf("failed to create idx_workflows_status_start: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_workflows_start_time ON review_workflows(start_time)"); err != nil {
		return fmt.Errorf("failed to create idx_workflows_start_time: %w", err)
	}

	return nil
}

// Initialize creates a new workflow record (implements review.WorkflowStore).
//
// Returns review.ErrWorkflowExists if a record with the same id is already
// stored.
func (s *SQLiteStore) Initialize(ctx context.Context, state review.WorkflowState) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	stateJSON, err := encodeState(state)
	if err != nil {
		return err
	}

	query := `
		INSERT OR IGNORE INTO review_workflows (id, repository, pr_number, status, start_time, state)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		state.ID,
		state.Repository,
		state.PRNumber,
		string(state.Status),
		state.StartTime.UnixMilli(),
		string(stateJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize workflow: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check insert result: %w", err)
	}
	if affected == 0 {
		return review.ErrWorkflowExists
	}

	return nil
}

// Get retrieves a workflow record by id (implements review.WorkflowStore).
//
// Returns review.ErrWorkflowNotFound if the id is unknown.
func (s *SQLiteStore) Get(ctx context.Context, id string) (review.WorkflowState, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return review.WorkflowState{}, fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	query := `
		SELECT state
		FROM review_workflows
		WHERE id = ?
	`

	var stateJSON string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return review.WorkflowState{}, review.ErrWorkflowNotFound
	}
	if err != nil {
		return review.WorkflowState{}, fmt.Errorf("failed to load workflow: %w", err)
	}

	return decodeState([]byte(stateJSON))
}

// Update shallow-merges patch into the stored record (implements
// review.WorkflowStore).
//
// The read-merge-write runs inside a transaction so the row is never left
// half-written. Concurrent updates on the same id are the caller's problem,
// per the WorkflowStore contract.
func (s *SQLiteStore) Update(ctx context.Context, id string, patch review.WorkflowPatch) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Ensure rollback on error
	defer func() {
		if err != nil {
			_ = tx.Rollback() // Ignore rollback error when already returning error
		}
	}()

	var stateJSON string
	err = tx.QueryRowContext(ctx, "SELECT state FROM review_workflows WHERE id = ?", id).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		err = review.ErrWorkflowNotFound
		return err
	}
	if err != nil {
		err = fmt.Errorf("failed to load workflow: %w", err)
		return err
	}

	state, err := decodeState([]byte(stateJSON))
	if err != nil {
		return err
	}

	review.MergeWorkflowState(&state, patch)

	merged, err := encodeState(state)
	if err != nil {
		return err
	}

	updateQuery := `
		UPDATE review_workflows
		SET status = ?, state = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	_, err = tx.ExecContext(ctx, updateQuery, string(state.Status), string(merged), id)
	if err != nil {
		err = fmt.Errorf("failed to update workflow: %w", err)
		return err
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("failed to commit transaction: %w", err)
		return err
	}

	return nil
}

// EvictOlderThan removes terminal records whose age strictly exceeds maxAge
// (implements review.WorkflowStore).
//
// Running workflows are never evicted regardless of age.
func (s *SQLiteStore) EvictOlderThan(ctx context.Context, maxAge time.Duration, now time.Time) (int, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return 0, fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	placeholders, args := terminalStatusArgs()

	// age > maxAge is equivalent to start_time < now - maxAge
	cutoff := now.Add(-maxAge).UnixMilli()

	// #nosec G201 -- placeholders are not user input, just "?" marks for parameterized query
	query := fmt.Sprintf(`
		DELETE FROM review_workflows
		WHERE status IN (%s) AND start_time < ?
	`, placeholders)
	args = append(args, cutoff)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to evict workflows: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check eviction result: %w", err)
	}

	return int(affected), nil
}

// List returns all records whose StartTime is at or after since (implements
// review.WorkflowStore).
//
// A zero since returns every record. Results are ordered by start time.
func (s *SQLiteStore) List(ctx context.Context, since time.Time) ([]review.WorkflowState, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	query := `
		SELECT state
		FROM review_workflows
		WHERE start_time >= ?
		ORDER BY start_time ASC
	`

	var sinceMs int64
	if !since.IsZero() {
		sinceMs = since.UnixMilli()
	}

	rows, err := s.db.QueryContext(ctx, query, sinceMs)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var states []review.WorkflowState
	for rows.Next() {
		var stateJSON string
		if err := rows.Scan(&stateJSON); err != nil {
			return nil, fmt.Errorf("failed to scan workflow row: %w", err)
		}

		state, err := decodeState([]byte(stateJSON))
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow rows: %w", err)
	}

	return states, nil
}

// Close closes the database connection.
//
// After Close, all operations will return an error.
// Calling Close multiple times is safe (subsequent calls are no-ops).
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil // Double-close is a no-op
	}

	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive.
//
// Useful for health checks and connection validation.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	return s.db.PingContext(ctx)
}

// Path returns the database file path.
//
// This is useful for debugging and logging.
func (s *SQLiteStore) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}
