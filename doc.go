// Package dbgate is a database access gateway for an embedded SQLite
// database. It sits between an untrusted front-end process and the engine,
// validating query, execute, and transaction requests before running them on
// the caller's behalf.
//
// The gateway enforces three classes of invariant the caller cannot be
// trusted to uphold itself:
//
//   - Security: SQL text is scanned against a compiled blocklist of
//     statement shapes (schema/privilege mutation, PRAGMA, ATTACH DATABASE,
//     embedded comments) before anything touches the database. The blocklist
//     is a conservative pattern filter over normalized SQL, not a SQL parser.
//   - Resources: SQL length, parameter count, and transaction batch size are
//     bounded, and an advisory per-statement timeout can be configured.
//   - Atomicity: transaction batches run inside a single native transaction;
//     on any failure the whole batch is rolled back and no partial results
//     escape.
//
// Every failure crossing the gateway is classified as one of four kinds:
// validation, security, execution, or protocol. Raw engine errors never leave
// the gateway unwrapped.
//
// # Basic Usage
//
//	conn := dbgate.NewSQLiteConnection("app.db")
//	gw := dbgate.NewGateway(conn, dbgate.Options{})
//	defer conn.Close()
//
//	result, err := gw.Query(ctx, "SELECT * FROM users WHERE id = ?", []any{1})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.RowCount)
//
// Atomic batches mix reads and writes and preserve operation order:
//
//	tr, err := gw.Transaction(ctx, []dbgate.Operation{
//	    {Kind: dbgate.OpExecute, SQL: "INSERT INTO users (name) VALUES (?)", Params: []any{"John"}},
//	    {Kind: dbgate.OpQuery, SQL: "SELECT COUNT(*) AS n FROM users"},
//	})
//
// The ipc subpackage exposes the gateway across a process boundary as three
// named channels (db:query, db:execute, db:transaction); cmd/dbgate is the
// server binary. Result sets can be exported to CSV, TSV, or XLSX files with
// optional gzip, xz, or zstd compression via Exporter.
package dbgate
