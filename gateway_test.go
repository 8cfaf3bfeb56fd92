package dbgate

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConnection records lifecycle calls so tests can assert the database is
// never touched on validation or security failures.
type fakeConnection struct {
	connected    bool
	healthy      bool
	healthErr    error
	connectErr   error
	connectCalls int
	healthCalls  int
	handle       *sql.DB
}

func (f *fakeConnection) Connected() bool { return f.connected }

func (f *fakeConnection) Connect(context.Context) error {
	f.connectCalls++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeConnection) Close() error {
	f.connected = false
	return nil
}

func (f *fakeConnection) HealthCheck(context.Context) (bool, error) {
	f.healthCalls++
	return f.healthy, f.healthErr
}

func (f *fakeConnection) Handle() *sql.DB { return f.handle }

func (f *fakeConnection) Stats() ConnectionStats {
	return ConnectionStats{IsConnected: f.connected}
}

// newTestGateway returns a gateway over a live in-memory database with a
// users table.
func newTestGateway(t *testing.T) *Gateway {
	t.Helper()

	conn := NewInMemoryConnection()
	require.NoError(t, conn.Connect(context.Background()))
	t.Cleanup(func() { _ = conn.Close() })

	_, err := conn.Handle().Exec("CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL)")
	require.NoError(t, err)

	return NewGateway(conn, Options{})
}

func TestGatewayQuery(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t)
	ctx := context.Background()

	_, err := gw.Execute(ctx, "INSERT INTO users (id, name) VALUES (?, ?)", []any{1, "John"})
	require.NoError(t, err)

	result, err := gw.Query(ctx, "SELECT * FROM users WHERE id = ?", []any{1})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, int64(1), result.Rows[0]["id"])
	assert.Equal(t, "John", result.Rows[0]["name"])
	assert.Equal(t, 1, result.RowCount)
	assert.GreaterOrEqual(t, result.ExecutionTimeMs, 0.0)
}

func TestGatewayChannelDecidesReadWrite(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t)
	ctx := context.Background()

	// A SELECT sent down the execute channel runs in write mode and reports
	// zero changes; the gateway never sniffs the SQL text to pick a path.
	result, err := gw.Execute(ctx, "SELECT * FROM users", nil)
	require.NoError(t, err)
	assert.Zero(t, result.Changes)
}

func TestGatewayRejectsBeforeTouchingDatabase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		sql      string
		params   []any
		wantKind Kind
	}{
		{"security rejection", "DROP TABLE users", nil, KindSecurity},
		{"validation rejection", "", nil, KindValidation},
		{"param overflow", "SELECT ?", make([]any, DefaultMaxParams+1), KindValidation},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fake := &fakeConnection{}
			gw := NewGateway(fake, Options{})

			_, err := gw.Query(context.Background(), tt.sql, tt.params)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, KindOf(err))

			_, err = gw.Execute(context.Background(), tt.sql, tt.params)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, KindOf(err))

			assert.Zero(t, fake.connectCalls, "rejected request must not connect")
			assert.Zero(t, fake.healthCalls, "rejected request must not probe health")
		})
	}
}

func TestGatewayTransactionValidation(t *testing.T) {
	t.Parallel()

	fake := &fakeConnection{}
	gw := NewGateway(fake, Options{})
	ctx := context.Background()

	_, err := gw.Transaction(ctx, nil)
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = gw.Transaction(ctx, []Operation{{Kind: OperationKind(9), SQL: "SELECT 1"}})
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = gw.Transaction(ctx, []Operation{{Kind: OpExecute, SQL: "TRUNCATE users"}})
	assert.Equal(t, KindSecurity, KindOf(err))

	assert.Zero(t, fake.connectCalls, "nothing may execute when the batch is rejected")
}

func TestGatewayConnectFailure(t *testing.T) {
	t.Parallel()

	fake := &fakeConnection{connectErr: errors.New("file locked")}
	gw := NewGateway(fake, Options{})

	_, err := gw.Query(context.Background(), "SELECT 1", nil)
	require.Error(t, err)
	assert.Equal(t, KindExecution, KindOf(err))
	assert.Contains(t, err.Error(), "failed to connect")
}

func TestGatewayUnhealthyConnection(t *testing.T) {
	t.Parallel()

	// Connected but failing its health probe: the gateway reports an
	// execution error and does not attempt a reconnect.
	fake := &fakeConnection{connected: true, healthy: false}
	gw := NewGateway(fake, Options{})

	_, err := gw.Query(context.Background(), "SELECT 1", nil)
	require.Error(t, err)
	assert.Equal(t, KindExecution, KindOf(err))
	assert.Contains(t, err.Error(), "database unhealthy")
	assert.Zero(t, fake.connectCalls, "no reconnect from a live connection")
	assert.Equal(t, 1, fake.healthCalls)
}

func TestGatewayTransactionAtomicity(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t)
	ctx := context.Background()

	_, err := gw.Transaction(ctx, []Operation{
		{Kind: OpExecute, SQL: "INSERT INTO users (name) VALUES (?)", Params: []any{"John"}},
		{Kind: OpExecute, SQL: "INSERT INTO users (name) VALUES (?)", Params: []any{"Jane"}},
		{Kind: OpExecute, SQL: "INSERT INTO missing (x) VALUES (1)"},
	})
	require.Error(t, err)
	assert.Equal(t, KindExecution, KindOf(err))

	result, err := gw.Query(ctx, "SELECT COUNT(*) AS n FROM users", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Rows[0]["n"], "no operation of the failed batch may be visible")
}

func TestGatewayStats(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t)

	first := gw.Stats()
	assert.True(t, first.IsConnected)

	// Stats are a pure snapshot; repeated reads are identical.
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, gw.Stats())
	}
}

func TestGatewaySecurityAudit(t *testing.T) {
	t.Parallel()

	logger, hook := logrustest.NewNullLogger()
	gw := NewGateway(&fakeConnection{}, Options{Logger: logger})

	_, err := gw.Query(context.Background(), "DROP TABLE users", nil)
	require.True(t, IsSecurity(err))

	require.NotEmpty(t, hook.Entries)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, true, entry.Data["audit"])
	assert.Contains(t, entry.Data["sql"], "DROP TABLE")
}

func TestGatewaySecurityAuditNamesOffendingOperation(t *testing.T) {
	t.Parallel()

	logger, hook := logrustest.NewNullLogger()
	gw := NewGateway(&fakeConnection{}, Options{Logger: logger})

	// The blocked statement sits after an innocuous one; the audit entry must
	// carry the statement that triggered the rejection, not the batch head.
	_, err := gw.Transaction(context.Background(), []Operation{
		{Kind: OpQuery, SQL: "SELECT * FROM users"},
		{Kind: OpExecute, SQL: "TRUNCATE users"},
	})
	require.True(t, IsSecurity(err))

	require.NotEmpty(t, hook.Entries)
	entry := hook.LastEntry()
	assert.Equal(t, true, entry.Data["audit"])
	assert.Contains(t, entry.Data["sql"], "TRUNCATE")
	assert.NotContains(t, entry.Data["sql"], "SELECT")
}
