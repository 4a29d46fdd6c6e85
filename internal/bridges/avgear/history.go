package avgear

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Routing change sources stored in the routing_history table.
const (
	// RouteSourceCommand marks changes executed via an MQTT command.
	RouteSourceCommand = "command"

	// RouteSourcePoll marks changes observed during a poll cycle, for
	// example front-panel operation.
	RouteSourcePoll = "poll"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// RouteEvent is one recorded routing change.
type RouteEvent struct {
	ID        int64
	MatrixID  string
	Output    int
	Input     int // 0 means the output was switched off
	Source    string
	ChangedAt time.Time
}

// SQLiteHistoryRepository implements HistoryRecorder using SQLite.
//
// It stores one row per observed routing change in the routing_history table.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a new SQLite routing history repository.
//
// Parameters:
//   - db: Open SQLite connection used for queries
//
// Returns:
//   - *SQLiteHistoryRepository: Repository instance ready for use
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

// RecordRoute inserts a new routing history entry.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - matrixID: Matrix identifier
//   - output: Output number (1-based)
//   - input: Input routed to the output; 0 means switched off
//   - source: Origin of the change (RouteSourceCommand, RouteSourcePoll)
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteHistoryRepository) RecordRoute(ctx context.Context, matrixID string, output, input int, source string) error {
	if matrixID == "" {
		return fmt.Errorf("matrix id is required")
	}
	if output < 1 {
		return fmt.Errorf("output must be positive, got %d", output)
	}
	if source == "" {
		source = RouteSourcePoll
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO routing_history (matrix_id, output, input, source, changed_at) VALUES (?, ?, ?, ?, ?)",
		matrixID,
		output,
		input,
		source,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting routing history: %w", err)
	}

	return nil
}

// GetHistory returns recent routing changes for a matrix, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - matrixID: Matrix identifier
//   - output: Filter to one output; 0 returns all outputs
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []RouteEvent: Entries ordered by changed_at DESC
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteHistoryRepository) GetHistory(ctx context.Context, matrixID string, output, limit int) ([]RouteEvent, error) {
	if matrixID == "" {
		return nil, fmt.Errorf("matrix id is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	query := `SELECT id, matrix_id, output, input, source, changed_at
		 FROM routing_history
		 WHERE matrix_id = ?`
	args := []any{matrixID}

	if output > 0 {
		query += " AND output = ?"
		args = append(args, output)
	}

	query += " ORDER BY changed_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying routing history: %w", err)
	}
	defer rows.Close()

	events := make([]RouteEvent, 0, limit)
	for rows.Next() {
		var event RouteEvent
		var changedAt string

		if err := rows.Scan(&event.ID, &event.MatrixID, &event.Output, &event.Input, &event.Source, &changedAt); err != nil {
			return nil, fmt.Errorf("scanning routing history: %w", err)
		}

		timestamp, err := time.Parse(time.RFC3339, changedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing changed_at: %w", err)
		}
		event.ChangedAt = timestamp

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating routing history: %w", err)
	}

	return events, nil
}

// Prune deletes history entries older than the given duration.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - olderThan: Duration to retain (entries older than now-olderThan are deleted)
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteHistoryRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM routing_history WHERE changed_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting routing history: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}
