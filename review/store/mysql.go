package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/dshills/reviewflow-go/review"
	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of review.WorkflowStore.
//
// It stores workflow records in a relational database. Designed for:
//   - Production review services requiring persistence
//   - Deployments where several orchestrator processes share one archive
//   - Audit trails and compliance requirements
//
// MySQLStore uses connection pooling and transactions for reliability.
//
// Schema:
//   - review_workflows: one row per workflow, full record as JSON plus the
//     columns retention sweeps and listings filter on
type MySQLStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore creates a new MySQL-backed workflow store.
//
// The DSN (Data Source Name) format is:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
//
// Example DSNs:
//
//	user:password@tcp(localhost:3306)/reviews
//	user:password@tcp(127.0.0.1:3306)/reviews?parseTime=true
//	user:password@/reviews (uses localhost:3306)
//
// Security Warning:
//
//	NEVER hardcode credentials in your source code. Use environment variables:
//	    dsn := os.Getenv("MYSQL_DSN")
//	    if dsn == "" {
//	        log.Fatal("MYSQL_DSN environment variable not set")
//	    }
//	    st, err := store.NewMySQLStore(dsn)
//
// The store automatically:
//   - Creates required tables if they don't exist
//   - Configures connection pooling
//   - Sets appropriate timeouts
//
// Example:
//
//	st, err := store.NewMySQLStore("user:pass@tcp(localhost:3306)/reviews")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	// Open database connection
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)                  // Maximum open connections
	db.SetMaxIdleConns(5)                   // Keep idle connections for reuse
	db.SetConnMaxLifetime(5 * time.Minute)  // Max connection lifetime (prevent stale connections)
	db.SetConnMaxIdleTime(10 * time.Minute) // Max idle time before closing

	// Verify connection
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	store := &MySQLStore{
		db:     db,
		closed: false,
	}

	// Create tables if they don't exist
	if err := store.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

// createTables creates the required database schema if it doesn't exist.
func (m *MySQLStore) createTables(ctx context.Context) error {
	// review_workflows table: one row per workflow record
	workflowsTable := `
		CREATE TABLE IF NOT EXISTS review_workflows (
			id VARCHAR(128) NOT NULL PRIMARY KEY,
			repository VARCHAR(255) NOT NULL,
			pr_number INT NOT NULL,
			status VARCHAR(32) NOT NULL,
			start_time BIGINT NOT NULL,
			state JSON NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			INDEX idx_status_start (status, start_time),
			INDEX idx_start_time (start_time)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`

	if _, err := m.db.ExecContext(ctx, workflowsTable); err != nil {
		return fmt.Errorf("failed to create review_workflows table: %w", err)
	}

	return nil
}

// Initialize creates a new workflow record (implements review.WorkflowStore).
//
// Returns review.ErrWorkflowExists if a record with the same id is already
// stored.
func (m *MySQLStore) Initialize(ctx context.Context, state review.WorkflowState) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	stateJSON, err := encodeState(state)
	if err != nil {
		return err
	}

	query := `
		INSERT IGNORE INTO review_workflows (id, repository, pr_number, status, start_time, state)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := m.db.ExecContext(ctx, query,
		state.ID,
		state.Repository,
		state.PRNumber,
		string(state.Status),
		state.StartTime.UnixMilli(),
		stateJSON,
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
func (m *MySQLStore) Get(ctx context.Context, id string) (review.WorkflowState, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return review.WorkflowState{}, fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	query := `
		SELECT state
		FROM review_workflows
		WHERE id = ?
	`

	var stateJSON []byte
	err := m.db.QueryRowContext(ctx, query, id).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return review.WorkflowState{}, review.ErrWorkflowNotFound
	}
	if err != nil {
		return review.WorkflowState{}, fmt.Errorf("failed to load workflow: %w", err)
	}

	return decodeState(stateJSON)
}

// Update shallow-merges patch into the stored record (implements
// review.WorkflowStore).
//
// The read-merge-write runs inside a transaction so the row is never left
// half-written. Concurrent updates on the same id are the caller's problem,
// per the WorkflowStore contract.
func (m *MySQLStore) Update(ctx context.Context, id string, patch review.WorkflowPatch) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Ensure rollback on error
	defer func() {
		if err != nil {
			_ = tx.Rollback() // Ignore rollback error when already returning error
		}
	}()

	var stateJSON []byte
	err = tx.QueryRowContext(ctx, "SELECT state FROM review_workflows WHERE id = ? FOR UPDATE", id).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		err = review.ErrWorkflowNotFound
		return err
	}
	if err != nil {
		err = fmt.Errorf("failed to load workflow: %w", err)
		return err
	}

	state, err := decodeState(stateJSON)
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
		SET status = ?, state = ?
		WHERE id = ?
	`

	_, err = tx.ExecContext(ctx, updateQuery, string(state.Status), merged, id)
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
func (m *MySQLStore) EvictOlderThan(ctx context.Context, maxAge time.Duration, now time.Time) (int, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return 0, fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	placeholders, args := terminalStatusArgs()

	// age > maxAge is equivalent to start_time < now - maxAge
	cutoff := now.Add(-maxAge).UnixMilli()

	// #nosec G201 -- placeholders are not user input, just "?" marks for parameterized query
	query := fmt.Sprintf(`
		DELETE FROM review_workflows
		WHERE status IN (%s) AND start_time < ?
	`, placeholders)
	args = append(args, cutoff)

	result, err := m.db.ExecContext(ctx, query, args...)
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
func (m *MySQLStore) List(ctx context.Context, since time.Time) ([]review.WorkflowState, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

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

	rows, err := m.db.QueryContext(ctx, query, sinceMs)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var states []review.WorkflowState
	for rows.Next() {
		var stateJSON []byte
		if err := rows.Scan(&stateJSON); err != nil {
			return nil, fmt.Errorf("failed to scan workflow row: %w", err)
		}

		state, err := decodeState(stateJSON)
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
func (m *MySQLStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil // Double-close is a no-op
	}

	m.closed = true
	return m.db.Close()
}

// Ping verifies the database connection is alive.
//
// Useful for health checks and connection validation.
func (m *MySQLStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	return m.db.PingContext(ctx)
}
