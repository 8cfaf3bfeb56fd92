package dbgate

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // embedded SQLite engine
)

const (
	// sqliteDriverName is the database/sql driver name registered by
	// modernc.org/sqlite.
	sqliteDriverName = "sqlite"

	// defaultHealthCheckTimeout bounds a single health probe.
	defaultHealthCheckTimeout = 2 * time.Second
)

// Connection owns the lifecycle of a single database handle. Implementations
// must be safe for concurrent use; the gateway calls HealthCheck and Connect
// from concurrent request handlers.
type Connection interface {
	// Connected reports whether a handle is currently open.
	Connected() bool

	// Connect opens the handle. Calling Connect on an already open
	// connection is a no-op.
	Connect(ctx context.Context) error

	// Close releases the handle. Safe to call when disconnected.
	Close() error

	// HealthCheck probes the open handle with a bounded ping. It never
	// attempts to reconnect.
	HealthCheck(ctx context.Context) (bool, error)

	// Handle returns the raw database handle, or nil when disconnected.
	Handle() *sql.DB

	// Stats returns a connection state snapshot without side effects, even
	// while disconnected.
	Stats() ConnectionStats
}

// SQLiteConnection is the production Connection backed by an embedded SQLite
// database file (or an in-memory database for tests and ephemeral use).
// Lifecycle transitions are serialized behind a single mutex so concurrent
// reconnect attempts cannot race duplicate handles; statement-level
// concurrency is left to the engine.
type SQLiteConnection struct {
	mu       sync.Mutex
	db       *sql.DB
	path     string
	inMemory bool
	attempts uint64
}

// NewSQLiteConnection creates an unopened connection for the database file at
// path. The file is not touched until Connect.
func NewSQLiteConnection(path string) *SQLiteConnection {
	return &SQLiteConnection{path: path}
}

// NewInMemoryConnection creates an unopened connection to a private in-memory
// database.
func NewInMemoryConnection() *SQLiteConnection {
	return &SQLiteConnection{path: ":memory:", inMemory: true}
}

// Connected reports whether the handle is open.
func (c *SQLiteConnection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db != nil
}

// Connect opens the SQLite handle and verifies it with a ping. Already-open
// connections are left untouched.
func (c *SQLiteConnection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return nil
	}

	c.attempts++
	db, err := sql.Open(sqliteDriverName, c.path)
	if err != nil {
		return fmt.Errorf("dbgate: failed to open database %s: %w", c.path, err)
	}

	// SQLite allows a single writer; cap the pool so database/sql does not
	// hand out handles the engine would serialize anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("dbgate: failed to connect to database %s: %w", c.path, err)
	}

	c.db = db
	return nil
}

// Close releases the handle. Closing a disconnected connection is a no-op.
func (c *SQLiteConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	if err != nil {
		return fmt.Errorf("dbgate: failed to close database: %w", err)
	}
	return nil
}

// HealthCheck runs a bounded liveness probe against the open handle. A closed
// connection reports unhealthy without error classification; reconnecting is
// the caller's decision.
func (c *SQLiteConnection) HealthCheck(ctx context.Context) (bool, error) {
	c.mu.Lock()
	db := c.db
	c.mu.Unlock()

	if db == nil {
		return false, ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, defaultHealthCheckTimeout)
	defer cancel()

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return false, fmt.Errorf("dbgate: health check failed: %w", err)
	}
	return one == 1, nil
}

// Handle returns the raw handle, or nil when disconnected.
func (c *SQLiteConnection) Handle() *sql.DB {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db
}

// Stats returns the connection state snapshot.
func (c *SQLiteConnection) Stats() ConnectionStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnectionStats{
		IsConnected:        c.db != nil,
		ConnectionAttempts: c.attempts,
		FilePath:           c.path,
		InMemory:           c.inMemory,
	}
}
