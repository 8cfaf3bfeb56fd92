package dbgate

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// Options configures a Gateway.
type Options struct {
	// Limits bounds validator acceptance. Zero fields fall back to defaults.
	Limits Limits

	// StatementTimeout is the advisory per-statement deadline. Zero disables
	// it. The gateway does not guarantee the engine stops on expiry; it only
	// guarantees the caller gets a timeout error.
	StatementTimeout time.Duration

	// Logger receives gateway logs; security rejections are emitted as
	// distinct audit entries. Nil discards all output.
	Logger logrus.FieldLogger
}

// Gateway validates and runs database requests on behalf of an untrusted
// caller. Every request flows Validator -> Connection liveness -> Executor or
// Coordinator; no component calls back up the chain.
type Gateway struct {
	conn        Connection
	validator   *Validator
	executor    *Executor
	coordinator *Coordinator
	logger      logrus.FieldLogger
}

// NewGateway creates a gateway over conn. The connection is injected rather
// than owned globally so tests can substitute a fake.
func NewGateway(conn Connection, opts Options) *Gateway {
	limits := opts.Limits
	if limits.MaxSQLLength <= 0 {
		limits.MaxSQLLength = DefaultMaxSQLLength
	}
	if limits.MaxParams <= 0 {
		limits.MaxParams = DefaultMaxParams
	}
	if limits.MaxBatchSize <= 0 {
		limits.MaxBatchSize = DefaultMaxBatchSize
	}

	logger := opts.Logger
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}

	executor := NewExecutor(opts.StatementTimeout)
	return &Gateway{
		conn:        conn,
		validator:   NewValidator(limits),
		executor:    executor,
		coordinator: NewCoordinator(executor, logger),
		logger:      logger,
	}
}

// EnsureReady brings the connection to a usable state. Disconnected
// connections get one connect attempt; connected ones get a bounded health
// check. A live-but-unhealthy connection is reported as an Execution error
// without a reconnect attempt: reconnection happens only from the
// disconnected state, never by interrupting a degraded handle.
func (g *Gateway) EnsureReady(ctx context.Context) error {
	if !g.conn.Connected() {
		if err := g.conn.Connect(ctx); err != nil {
			return WrapError(KindExecution, "failed to connect to database", err)
		}
		g.logger.WithField("stats", g.conn.Stats()).Info("database connected")
		return nil
	}

	healthy, err := g.conn.HealthCheck(ctx)
	if err != nil {
		return WrapError(KindExecution, "database unhealthy", err)
	}
	if !healthy {
		return WrapError(KindExecution, "database unhealthy", ErrUnhealthy)
	}
	return nil
}

// Query validates and runs a read statement. The query channel always uses
// the read form regardless of what the SQL text looks like.
func (g *Gateway) Query(ctx context.Context, sqlText string, params []any) (*QueryResult, error) {
	if err := g.validate(sqlText, params); err != nil {
		return nil, err
	}
	if err := g.EnsureReady(ctx); err != nil {
		return nil, err
	}
	return g.executor.RunQuery(ctx, g.conn.Handle(), sqlText, params)
}

// Execute validates and runs a write statement. The execute channel always
// uses the write form regardless of what the SQL text looks like.
func (g *Gateway) Execute(ctx context.Context, sqlText string, params []any) (*ExecuteResult, error) {
	if err := g.validate(sqlText, params); err != nil {
		return nil, err
	}
	if err := g.EnsureReady(ctx); err != nil {
		return nil, err
	}
	return g.executor.RunExecute(ctx, g.conn.Handle(), sqlText, params)
}

// Transaction validates and runs an atomic batch of operations.
func (g *Gateway) Transaction(ctx context.Context, ops []Operation) (*TransactionResult, error) {
	if idx, err := g.validator.validateBatch(ops); err != nil {
		g.auditIfSecurity(err, batchPreview(ops, idx))
		return nil, err
	}
	if err := g.EnsureReady(ctx); err != nil {
		return nil, err
	}
	return g.coordinator.RunTransaction(ctx, g.conn.Handle(), ops)
}

// Stats reports the connection state snapshot without touching the database.
func (g *Gateway) Stats() ConnectionStats {
	return g.conn.Stats()
}

// Connection exposes the injected connection for lifecycle management by the
// process owner (startup connect, shutdown close).
func (g *Gateway) Connection() Connection {
	return g.conn
}

func (g *Gateway) validate(sqlText string, params []any) error {
	err := g.validator.ValidateStatement(sqlText, params)
	if err != nil {
		g.auditIfSecurity(err, sqlText)
	}
	return err
}

// auditIfSecurity emits a distinct audit log entry for security rejections.
// Ordinary validation failures are caller bugs and logged at debug only.
func (g *Gateway) auditIfSecurity(err error, sqlText string) {
	if IsSecurity(err) {
		g.logger.WithFields(logrus.Fields{
			"audit": true,
			"sql":   SanitizeForLog(sqlText),
		}).Warn("blocked statement rejected")
		return
	}
	g.logger.WithField("error", err.Error()).Debug("request rejected by validator")
}

// batchPreview picks the statement to attribute a batch rejection to: the
// failing operation when known, otherwise the first.
func batchPreview(ops []Operation, idx int) string {
	if len(ops) == 0 {
		return ""
	}
	if idx < 0 || idx >= len(ops) {
		idx = 0
	}
	return SanitizeForLog(ops[idx].SQL)
}
