package dbgate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Limits bounds what the validator accepts before anything touches the
// database.
type Limits struct {
	MaxSQLLength int
	MaxParams    int
	MaxBatchSize int
}

// DefaultLimits returns the gateway's default resource limits.
func DefaultLimits() Limits {
	return Limits{
		MaxSQLLength: DefaultMaxSQLLength,
		MaxParams:    DefaultMaxParams,
		MaxBatchSize: DefaultMaxBatchSize,
	}
}

// blockedPatterns is the compiled security blocklist. It is a conservative
// allow-nothing-suspicious filter over normalized SQL text, not a SQL parser:
// schema/privilege mutation, engine pragmas, cross-database attachment, and
// embedded comments (which can smuggle statement terminators) are all
// rejected. The whole normalized text is scanned, not only the first token,
// so statements appended after a semicolon are still caught.
var blockedPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"DROP", regexp.MustCompile(`(?i)\bDROP\b`)},
	{"TRUNCATE", regexp.MustCompile(`(?i)\bTRUNCATE\b`)},
	{"ALTER", regexp.MustCompile(`(?i)\bALTER\b`)},
	{"GRANT", regexp.MustCompile(`(?i)\bGRANT\b`)},
	{"REVOKE", regexp.MustCompile(`(?i)\bREVOKE\b`)},
	{"CREATE USER", regexp.MustCompile(`(?i)\bCREATE\s+USER\b`)},
	{"DROP USER", regexp.MustCompile(`(?i)\bDROP\s+USER\b`)},
	{"PRAGMA", regexp.MustCompile(`(?i)\bPRAGMA\b`)},
	{"ATTACH DATABASE", regexp.MustCompile(`(?i)\bATTACH\s+DATABASE\b`)},
	{"line comment", regexp.MustCompile(`--`)},
	{"block comment", regexp.MustCompile(`/\*`)},
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// normalizeSQL trims and collapses whitespace so blocklist matching cannot be
// evaded with creative spacing.
func normalizeSQL(sql string) string {
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(sql), " ")
}

// Validator inspects SQL text and parameter lists before they reach the
// database. It is stateless apart from its limits.
type Validator struct {
	limits Limits
}

// NewValidator creates a validator enforcing the given limits.
func NewValidator(limits Limits) *Validator {
	return &Validator{limits: limits}
}

// ValidateStatement checks a single SQL string and parameter list. Checks run
// in a fixed order and fail fast: presence, length, parameter count, then the
// security blocklist. Blocklist hits are classified Security, everything else
// Validation.
func (v *Validator) ValidateStatement(sql string, params []any) error {
	if strings.TrimSpace(sql) == "" {
		return WrapError(KindValidation, "SQL required", ErrSQLRequired)
	}
	if len(sql) > v.limits.MaxSQLLength {
		return WrapError(KindValidation,
			fmt.Sprintf("SQL too long: %d bytes exceeds limit of %d", len(sql), v.limits.MaxSQLLength),
			ErrSQLTooLong)
	}
	if len(params) > v.limits.MaxParams {
		return WrapError(KindValidation,
			fmt.Sprintf("too many parameters: %d exceeds limit of %d", len(params), v.limits.MaxParams),
			ErrTooManyParams)
	}

	normalized := normalizeSQL(sql)
	for _, p := range blockedPatterns {
		if p.re.MatchString(normalized) {
			return WrapError(KindSecurity,
				fmt.Sprintf("statement contains blocked pattern: %s", p.name),
				ErrBlockedStatement)
		}
	}
	return nil
}

// ValidateBatch checks a transaction batch: the batch itself must be
// non-empty and within the size limit, each operation's kind must be known,
// and every constituent statement is validated with the same rules as a
// standalone one.
func (v *Validator) ValidateBatch(ops []Operation) error {
	_, err := v.validateBatch(ops)
	return err
}

// validateBatch reports the failing operation's index alongside the error so
// callers can attribute the rejection to the statement that caused it. The
// index is -1 for batch-level failures and on success.
func (v *Validator) validateBatch(ops []Operation) (int, error) {
	if len(ops) == 0 {
		return -1, WrapError(KindValidation, "transaction requires at least one operation", ErrEmptyBatch)
	}
	if len(ops) > v.limits.MaxBatchSize {
		return -1, WrapError(KindValidation,
			fmt.Sprintf("transaction batch too large: %d operations exceeds limit of %d", len(ops), v.limits.MaxBatchSize),
			ErrBatchTooLarge)
	}

	for i, op := range ops {
		if op.Kind != OpQuery && op.Kind != OpExecute {
			return i, WrapError(KindValidation,
				fmt.Sprintf("operation %d has unknown kind", i),
				ErrUnknownOperationKind)
		}
		if err := v.ValidateStatement(op.SQL, op.Params); err != nil {
			var ge *Error
			if errors.As(err, &ge) {
				return i, WrapError(ge.Kind, fmt.Sprintf("operation %d: %s", i, ge.Message), ge.Err)
			}
			return i, err
		}
	}
	return -1, nil
}
