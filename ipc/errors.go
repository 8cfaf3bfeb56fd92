package ipc

import (
	"errors"
	"net/http"

	"github.com/flowlytix/dbgate"
)

// Wire error codes. CodeBase is the fallback for errors that escaped
// classification, which should not happen; the server wraps everything.
const (
	CodeBase       = "DB_IPC_ERROR"
	CodeValidation = "DB_VALIDATION_ERROR"
	CodeSecurity   = "DB_SECURITY_ERROR"
	CodeExecution  = "DB_EXECUTION_ERROR"
	CodeProtocol   = "DB_PROTOCOL_ERROR"
)

// ErrUnknownChannel is returned when a request names a channel that is not
// registered.
var ErrUnknownChannel = errors.New("ipc: unknown channel")

// WireError is the JSON shape of a classified error crossing the boundary.
type WireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

// Error implements the error interface.
func (e *WireError) Error() string {
	return e.Code + ": " + e.Message
}

// codeFor maps a gateway error kind to its wire code.
func codeFor(kind dbgate.Kind) string {
	switch kind {
	case dbgate.KindValidation:
		return CodeValidation
	case dbgate.KindSecurity:
		return CodeSecurity
	case dbgate.KindExecution:
		return CodeExecution
	case dbgate.KindProtocol:
		return CodeProtocol
	default:
		return CodeBase
	}
}

// statusFor maps a wire code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeSecurity:
		return http.StatusForbidden
	case CodeExecution:
		return http.StatusInternalServerError
	case CodeProtocol:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// toWireError converts any error into its boundary shape. Classified gateway
// errors keep their kind and cause; anything else is wrapped under the base
// code so raw errors never cross unlabeled.
func toWireError(err error) *WireError {
	var ge *dbgate.Error
	if errors.As(err, &ge) {
		we := &WireError{
			Code:    codeFor(ge.Kind),
			Message: ge.Message,
		}
		if ge.Err != nil {
			we.Cause = ge.Err.Error()
		}
		return we
	}
	return &WireError{Code: CodeBase, Message: err.Error()}
}
