package dbgate

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// sqlRunner is the subset of database/sql shared by *sql.DB and *sql.Tx that
// the executor needs. The coordinator hands the executor a transaction-scoped
// runner so the same read/write paths serve both standalone statements and
// batch operations.
type sqlRunner interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Executor runs validated statements against a raw handle and normalizes
// results into transport-safe shapes. It does not decide read versus write;
// the caller's chosen entry point does.
type Executor struct {
	timeout time.Duration
}

// NewExecutor creates an executor. A zero timeout disables the advisory
// deadline.
func NewExecutor(timeout time.Duration) *Executor {
	return &Executor{timeout: timeout}
}

// withDeadline applies the advisory statement timeout. The deadline is handed
// to the engine call, but interruption of an in-flight SQLite statement is
// best effort: on expiry the caller gets a timeout error while the underlying
// work may still complete inside the engine.
func (e *Executor) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.timeout)
}

// RunQuery prepares sql, binds params positionally, and returns all rows.
// Engine failures during prepare, bind, or run surface as Execution errors
// carrying the original cause; malformed SQL the validator did not catch is a
// runtime engine error, never a Validation one.
func (e *Executor) RunQuery(ctx context.Context, runner sqlRunner, sqlText string, params []any) (*QueryResult, error) {
	ctx, cancel := e.withDeadline(ctx)
	defer cancel()

	start := time.Now()

	stmt, err := runner.PrepareContext(ctx, sqlText)
	if err != nil {
		return nil, e.wrapEngineError("failed to prepare statement", err)
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, params...)
	if err != nil {
		return nil, e.wrapEngineError("query failed", err)
	}
	defer rows.Close()

	records, columns, err := scanRecords(rows)
	if err != nil {
		return nil, e.wrapEngineError("failed to read rows", err)
	}

	return &QueryResult{
		Rows:            records,
		RowCount:        len(records),
		ExecutionTimeMs: elapsedMs(start),
		Columns:         columns,
	}, nil
}

// RunExecute prepares sql, binds params positionally, and applies the write,
// returning the change count and last-inserted row identifier. The identity
// value is carried as a full 64-bit integer so it round-trips exactly across
// the process boundary.
func (e *Executor) RunExecute(ctx context.Context, runner sqlRunner, sqlText string, params []any) (*ExecuteResult, error) {
	ctx, cancel := e.withDeadline(ctx)
	defer cancel()

	start := time.Now()

	stmt, err := runner.PrepareContext(ctx, sqlText)
	if err != nil {
		return nil, e.wrapEngineError("failed to prepare statement", err)
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx, params...)
	if err != nil {
		return nil, e.wrapEngineError("execute failed", err)
	}

	changes, err := res.RowsAffected()
	if err != nil {
		return nil, e.wrapEngineError("failed to read change count", err)
	}
	lastID, err := res.LastInsertId()
	if err != nil {
		return nil, e.wrapEngineError("failed to read last insert id", err)
	}

	return &ExecuteResult{
		Changes:         changes,
		LastInsertRowID: RowID(lastID),
		ExecutionTimeMs: elapsedMs(start),
	}, nil
}

// wrapEngineError classifies an engine failure, distinguishing advisory
// timeouts from other execution errors.
func (e *Executor) wrapEngineError(msg string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapError(KindExecution, "statement timed out", ErrTimeout)
	}
	return WrapError(KindExecution, msg, err)
}

// scanRecords drains rows into transport-safe records. Byte slices are copied
// because the driver may reuse its buffers between Next calls.
func scanRecords(rows *sql.Rows) ([]Record, []string, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	records := make([]Record, 0)
	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return nil, nil, err
		}
		record := make(Record, len(columns))
		for i, col := range columns {
			switch v := values[i].(type) {
			case []byte:
				record[col] = append([]byte(nil), v...)
			default:
				record[col] = v
			}
		}
		records = append(records, record)
	}
	return records, columns, rows.Err()
}

// elapsedMs returns wall-clock milliseconds since start, never negative.
// Sub-millisecond statements may legitimately report zero.
func elapsedMs(start time.Time) float64 {
	ms := time.Since(start).Seconds() * 1000
	if ms < 0 {
		return 0
	}
	return ms
}
