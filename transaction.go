package dbgate

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// Coordinator runs an ordered batch of heterogeneous operations inside a
// single native transaction. The engine guarantees uncommitted work is
// invisible outside the scope and rolled back whole on failure; the
// coordinator's job is ordered dispatch and result aggregation.
type Coordinator struct {
	executor *Executor
	logger   logrus.FieldLogger
}

// NewCoordinator creates a coordinator dispatching through executor. A nil
// logger discards output.
func NewCoordinator(executor *Executor, logger logrus.FieldLogger) *Coordinator {
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}
	return &Coordinator{executor: executor, logger: logger}
}

// RunTransaction executes ops in input order inside one transaction. On
// success the result carries exactly one entry per operation plus the summed
// change count of execute entries and whole-batch timing. On any failure the
// transaction is rolled back, no partial results are exposed, and a single
// Execution error identifies the batch as failed with the per-statement
// failure preserved as its cause; callers must not infer how far the batch
// progressed.
func (c *Coordinator) RunTransaction(ctx context.Context, db *sql.DB, ops []Operation) (*TransactionResult, error) {
	start := time.Now()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, WrapError(KindExecution, "failed to begin transaction", err)
	}

	results := make([]OperationResult, 0, len(ops))
	var totalChanges int64

	for i, op := range ops {
		result, err := c.runOperation(ctx, tx, op)
		if err != nil {
			_ = tx.Rollback()
			// The failing index goes to the log only; the caller-facing
			// error identifies the batch as failed without exposing how far
			// it progressed.
			c.logger.WithFields(logrus.Fields{
				"operation": i,
				"error":     err.Error(),
			}).Error("transaction rolled back")
			return nil, WrapError(KindExecution, "transaction failed", causeOf(err))
		}
		results = append(results, result)
		if op.Kind == OpExecute && result.Execute != nil {
			totalChanges += result.Execute.Changes
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, WrapError(KindExecution, "failed to commit transaction", err)
	}

	return &TransactionResult{
		Results:         results,
		TotalChanges:    totalChanges,
		ExecutionTimeMs: elapsedMs(start),
	}, nil
}

// runOperation dispatches a single operation by its declared kind.
func (c *Coordinator) runOperation(ctx context.Context, tx *sql.Tx, op Operation) (OperationResult, error) {
	switch op.Kind {
	case OpQuery:
		qr, err := c.executor.RunQuery(ctx, tx, op.SQL, op.Params)
		if err != nil {
			return OperationResult{}, err
		}
		return OperationResult{Kind: OpQuery, Query: qr}, nil
	case OpExecute:
		er, err := c.executor.RunExecute(ctx, tx, op.SQL, op.Params)
		if err != nil {
			return OperationResult{}, err
		}
		return OperationResult{Kind: OpExecute, Execute: er}, nil
	default:
		// The validator rejects unknown kinds before dispatch; this is a
		// guard against misuse of the library API.
		return OperationResult{}, WrapError(KindExecution, "unknown operation kind", ErrUnknownOperationKind)
	}
}

// causeOf unwraps one classification layer so the transaction error carries
// the engine failure itself as its cause rather than a doubly wrapped
// gateway error.
func causeOf(err error) error {
	var ge *Error
	if errors.As(err, &ge) && ge.Err != nil {
		return ge.Err
	}
	return err
}
