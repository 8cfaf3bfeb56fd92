package dbgate

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a gateway failure by where it was raised.
type Kind string

const (
	// KindValidation indicates malformed or oversized input. Caller bug;
	// safe to report verbatim and retry after correction.
	KindValidation Kind = "validation"

	// KindSecurity indicates a blocklisted statement shape. Never retried
	// as-is; audit-logged distinctly from ordinary validation failures.
	KindSecurity Kind = "security"

	// KindExecution indicates an engine-level failure: connect failure,
	// unhealthy connection, prepare/bind/run failure, transaction abort,
	// or advisory timeout. May be transient; the whole operation can be
	// retried, never resumed.
	KindExecution Kind = "execution"

	// KindProtocol indicates a registration or boundary wiring failure.
	// Fatal to the gateway's availability rather than to a single request.
	KindProtocol Kind = "protocol"
)

// Sentinel errors for common gateway states.
var (
	// ErrSQLRequired indicates an empty or whitespace-only SQL string.
	ErrSQLRequired = errors.New("dbgate: SQL required")

	// ErrSQLTooLong indicates SQL text exceeding the maximum length.
	ErrSQLTooLong = errors.New("dbgate: SQL too long")

	// ErrTooManyParams indicates a parameter list exceeding the maximum count.
	ErrTooManyParams = errors.New("dbgate: too many parameters")

	// ErrEmptyBatch indicates a transaction with no operations.
	ErrEmptyBatch = errors.New("dbgate: transaction requires at least one operation")

	// ErrBatchTooLarge indicates a transaction exceeding the batch size limit.
	ErrBatchTooLarge = errors.New("dbgate: transaction batch too large")

	// ErrUnknownOperationKind indicates an operation kind outside query/execute.
	ErrUnknownOperationKind = errors.New("dbgate: unknown operation kind")

	// ErrBlockedStatement indicates SQL matching the security blocklist.
	ErrBlockedStatement = errors.New("dbgate: statement blocked by security policy")

	// ErrNotConnected indicates the database handle is not open.
	ErrNotConnected = errors.New("dbgate: database not connected")

	// ErrUnhealthy indicates a live connection that failed its health check.
	ErrUnhealthy = errors.New("dbgate: database unhealthy")

	// ErrTimeout indicates the advisory statement timeout elapsed. The
	// underlying engine call may still be in flight.
	ErrTimeout = errors.New("dbgate: statement timed out")

	// ErrChannelRegistered indicates a duplicate channel registration.
	ErrChannelRegistered = errors.New("dbgate: channel already registered")
)

// Error is a classified gateway error. Every error crossing the process
// boundary is one of these; raw engine errors are always wrapped.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dbgate: %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("dbgate: %s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error without a cause.
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// WrapError creates a classified error wrapping an underlying cause.
func WrapError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf reports the classification of err, or an empty Kind when err is not
// a gateway error.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// IsValidation reports whether err is classified as a validation failure.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsSecurity reports whether err is classified as a security violation.
func IsSecurity(err error) bool { return KindOf(err) == KindSecurity }

// IsExecution reports whether err is classified as an execution failure.
func IsExecution(err error) bool { return KindOf(err) == KindExecution }

// IsProtocol reports whether err is classified as a protocol failure.
func IsProtocol(err error) bool { return KindOf(err) == KindProtocol }

// SanitizeForLog prepares SQL text for audit logging. Statements touching
// obviously sensitive identifiers are redacted wholesale and long statements
// are truncated to keep log lines bounded.
func SanitizeForLog(sql string) string {
	sensitive := []string{"password", "passwd", "secret", "token", "credential"}
	lower := strings.ToLower(sql)
	for _, pattern := range sensitive {
		if strings.Contains(lower, pattern) {
			return "[REDACTED]"
		}
	}

	const maxLogLength = 200
	if len(sql) > maxLogLength {
		return sql[:maxLogLength] + "..."
	}
	return sql
}
