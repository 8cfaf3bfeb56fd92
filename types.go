package dbgate

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Default resource limits enforced by the validator. All are overridable
// through GatewayOptions.
const (
	// DefaultMaxSQLLength is the maximum accepted SQL text length in bytes.
	DefaultMaxSQLLength = 10000

	// DefaultMaxParams is the maximum number of bound parameters per statement.
	DefaultMaxParams = 100

	// DefaultMaxBatchSize is the maximum number of operations per transaction.
	DefaultMaxBatchSize = 100
)

// maxSafeInteger is the largest integer a double-precision float can hold
// exactly. Row identifiers above it are string-encoded on the wire.
const maxSafeInteger = 1<<53 - 1

// OperationKind tags a transaction operation as a read or a write.
type OperationKind int

const (
	// OpQuery dispatches through the read path and returns rows.
	OpQuery OperationKind = iota
	// OpExecute dispatches through the write path and returns a change count.
	OpExecute
)

// String returns the wire name of the operation kind.
func (k OperationKind) String() string {
	switch k {
	case OpQuery:
		return "query"
	case OpExecute:
		return "execute"
	default:
		return fmt.Sprintf("OperationKind(%d)", int(k))
	}
}

// ParseOperationKind maps a wire name to an OperationKind.
func ParseOperationKind(s string) (OperationKind, error) {
	switch s {
	case "query":
		return OpQuery, nil
	case "execute":
		return OpExecute, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownOperationKind, s)
	}
}

// Operation is a single statement inside a transaction batch.
type Operation struct {
	Kind   OperationKind
	SQL    string
	Params []any
}

// Record is one result row keyed by column name.
type Record map[string]any

// RowID is a 64-bit row identifier that survives JSON serialization without
// precision loss. Values within the double-precision safe range marshal as
// plain numbers; larger values marshal as decimal strings.
type RowID int64

// MarshalJSON implements json.Marshaler.
func (id RowID) MarshalJSON() ([]byte, error) {
	v := int64(id)
	if v > maxSafeInteger || v < -maxSafeInteger {
		return json.Marshal(strconv.FormatInt(v, 10))
	}
	return json.Marshal(v)
}

// UnmarshalJSON implements json.Unmarshaler, accepting both numeric and
// string encodings.
func (id *RowID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("dbgate: invalid row id %q: %w", s, err)
		}
		*id = RowID(v)
		return nil
	}

	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*id = RowID(v)
	return nil
}

// QueryResult is the outcome of a read statement. Columns preserves the
// result column order for consumers that need it (exports); it is not part
// of the wire shape.
type QueryResult struct {
	Rows            []Record `json:"rows"`
	RowCount        int      `json:"rowCount"`
	ExecutionTimeMs float64  `json:"executionTime"`
	Columns         []string `json:"-"`
}

// ExecuteResult is the outcome of a write statement.
type ExecuteResult struct {
	Changes         int64   `json:"changes"`
	LastInsertRowID RowID   `json:"lastInsertRowid"`
	ExecutionTimeMs float64 `json:"executionTime"`
}

// OperationResult holds the outcome of one transaction operation. Exactly one
// of Query or Execute is set, matching the operation's declared kind.
type OperationResult struct {
	Kind    OperationKind
	Query   *QueryResult
	Execute *ExecuteResult
}

// MarshalJSON flattens the variant to its wire shape: a bare row array for
// reads, a change summary object for writes.
func (r OperationResult) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case OpQuery:
		if r.Query == nil {
			return json.Marshal([]Record{})
		}
		return json.Marshal(r.Query.Rows)
	case OpExecute:
		if r.Execute == nil {
			return json.Marshal(struct{}{})
		}
		return json.Marshal(struct {
			Changes         int64 `json:"changes"`
			LastInsertRowID RowID `json:"lastInsertRowid"`
		}{r.Execute.Changes, r.Execute.LastInsertRowID})
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownOperationKind, r.Kind)
	}
}

// TransactionResult is the outcome of an atomic batch. Results preserves the
// input operation order and always has exactly one entry per operation;
// TotalChanges sums changes across execute entries only.
type TransactionResult struct {
	Results         []OperationResult `json:"results"`
	TotalChanges    int64             `json:"totalChanges"`
	ExecutionTimeMs float64           `json:"executionTime"`
}

// ConnectionStats is a side-effect-free snapshot of the connection state.
type ConnectionStats struct {
	IsConnected        bool   `json:"isConnected"`
	ConnectionAttempts uint64 `json:"connectionAttempts"`
	FilePath           string `json:"filePath"`
	InMemory           bool   `json:"inMemory"`
}

// GatewayStats describes the gateway without touching the database.
type GatewayStats struct {
	IsConnected        bool            `json:"isConnected"`
	RegisteredChannels []string        `json:"registeredChannels"`
	Connection         ConnectionStats `json:"connectionStats"`
}
