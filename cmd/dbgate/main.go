// Command dbgate serves the database access gateway over HTTP for a local
// front-end process. It owns the single embedded database handle and exposes
// the three gateway channels plus stats and health endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/flowlytix/dbgate"
	"github.com/flowlytix/dbgate/ipc"
)

type serverOptions struct {
	dbPath        string
	inMemory      bool
	listenAddr    string
	logLevel      string
	maxSQLLength  int
	maxParams     int
	maxBatchSize  int
	stmtTimeout   time.Duration
	connectWithin time.Duration
}

func main() {
	opts := &serverOptions{}

	cmd := &cobra.Command{
		Use:           "dbgate",
		Short:         "Database access gateway for an embedded SQLite database",
		Long:          "dbgate validates and runs query, execute, and transaction requests from an untrusted front-end process against an embedded SQLite database.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.dbPath, "db", "dbgate.db", "path to the SQLite database file")
	flags.BoolVar(&opts.inMemory, "in-memory", false, "use a private in-memory database instead of a file")
	flags.StringVar(&opts.listenAddr, "listen", "127.0.0.1:8089", "listen address for the gateway")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.IntVar(&opts.maxSQLLength, "max-sql-length", dbgate.DefaultMaxSQLLength, "maximum SQL text length in bytes")
	flags.IntVar(&opts.maxParams, "max-params", dbgate.DefaultMaxParams, "maximum bound parameters per statement")
	flags.IntVar(&opts.maxBatchSize, "max-batch-size", dbgate.DefaultMaxBatchSize, "maximum operations per transaction")
	flags.DurationVar(&opts.stmtTimeout, "statement-timeout", 0, "advisory per-statement timeout (0 disables)")
	flags.DurationVar(&opts.connectWithin, "connect-within", 30*time.Second, "how long to retry the initial database connection")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *serverOptions) error {
	logger := logrus.New()
	level, err := logrus.ParseLevel(opts.logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", opts.logLevel, err)
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.JSONFormatter{})

	var conn *dbgate.SQLiteConnection
	if opts.inMemory {
		conn = dbgate.NewInMemoryConnection()
	} else {
		conn = dbgate.NewSQLiteConnection(opts.dbPath)
	}

	// Retry the initial connect with exponential backoff so a slow disk or a
	// database still held by a previous process does not kill startup. Once
	// serving, reconnection is single-attempt per request via the gateway.
	connectCtx, cancel := context.WithTimeout(ctx, opts.connectWithin)
	defer cancel()
	policy := backoff.WithContext(backoff.NewExponentialBackOff(), connectCtx)
	if err := backoff.Retry(func() error {
		return conn.Connect(connectCtx)
	}, policy); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() { _ = conn.Close() }()
	logger.WithField("stats", conn.Stats()).Info("database connected")

	gateway := dbgate.NewGateway(conn, dbgate.Options{
		Limits: dbgate.Limits{
			MaxSQLLength: opts.maxSQLLength,
			MaxParams:    opts.maxParams,
			MaxBatchSize: opts.maxBatchSize,
		},
		StatementTimeout: opts.stmtTimeout,
		Logger:           logger,
	})

	server := ipc.NewServer(gateway, logger)
	if err := server.RegisterChannels(); err != nil {
		return fmt.Errorf("failed to register channels: %w", err)
	}
	defer server.UnregisterChannels()

	httpServer := &http.Server{
		Addr:              opts.listenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", opts.listenAddr).Info("gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("gateway server failed: %w", err)
	case sig := <-stop:
		logger.WithField("signal", sig.String()).Info("shutting down")
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down cleanly: %w", err)
	}
	return nil
}
