package ipc

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/flowlytix/dbgate"
)

// bytesTag keys the wire form of a byte-sequence parameter. JSON has no
// binary scalar, so callers send {"$base64": "..."} and the gateway binds the
// decoded bytes. Blob columns read back out as plain base64 strings, the
// encoding/json form of []byte.
const bytesTag = "$base64"

// StatementRequest is the wire shape of a db:query or db:execute call.
type StatementRequest struct {
	SQL    string            `json:"sql"`
	Params []json.RawMessage `json:"params,omitempty"`
}

// TransactionRequest is the wire shape of a db:transaction call.
type TransactionRequest struct {
	Operations []WireOperation `json:"operations"`
}

// WireOperation is one operation inside a transaction request. Type carries
// the declared kind as a wire string; unknown values are rejected by the
// validator, not the decoder, so the caller gets a classified error.
type WireOperation struct {
	SQL    string            `json:"sql"`
	Params []json.RawMessage `json:"params,omitempty"`
	Type   string            `json:"type"`
}

// errorEnvelope wraps a wire error for transport.
type errorEnvelope struct {
	Error *WireError `json:"error"`
}

// decodeScalar converts one JSON parameter into a gateway scalar. Numbers are
// decoded through json.Number so 64-bit integers survive without being forced
// through a float64; anything integral within int64 range stays an integer.
func decodeScalar(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("ipc: invalid parameter: %w", err)
	}

	switch value := v.(type) {
	case json.Number:
		if i, err := value.Int64(); err == nil {
			return i, nil
		}
		f, err := value.Float64()
		if err != nil {
			return nil, fmt.Errorf("ipc: invalid numeric parameter %q", value.String())
		}
		return f, nil
	case nil, bool, string:
		return value, nil
	case map[string]any:
		return decodeBytes(value)
	default:
		return nil, fmt.Errorf("ipc: unsupported parameter type %T", value)
	}
}

// decodeBytes converts a tagged parameter object into a []byte. Only the
// single-key {"$base64": "..."} form is accepted; any other object shape is
// rejected rather than guessed at.
func decodeBytes(obj map[string]any) ([]byte, error) {
	encoded, ok := obj[bytesTag].(string)
	if !ok || len(obj) != 1 {
		return nil, fmt.Errorf("ipc: unsupported parameter object; byte parameters use {%q: <base64>}", bytesTag)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("ipc: invalid byte parameter: %w", err)
	}
	return data, nil
}

// decodeParams converts a wire parameter list, tolerating an absent list as a
// no-arg call.
func decodeParams(raw []json.RawMessage) ([]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	params := make([]any, len(raw))
	for i, r := range raw {
		v, err := decodeScalar(r)
		if err != nil {
			return nil, fmt.Errorf("ipc: parameter %d: %w", i, err)
		}
		params[i] = v
	}
	return params, nil
}

// decodeOperations converts a wire transaction batch into gateway operations.
// Unknown type strings map to an out-of-range kind so the gateway validator
// rejects them with a Validation error.
func decodeOperations(ops []WireOperation) ([]dbgate.Operation, error) {
	decoded := make([]dbgate.Operation, len(ops))
	for i, op := range ops {
		params, err := decodeParams(op.Params)
		if err != nil {
			return nil, fmt.Errorf("ipc: operation %d: %w", i, err)
		}
		kind, err := dbgate.ParseOperationKind(op.Type)
		if err != nil {
			// Preserve the declared SQL and params; the validator reports
			// the unknown kind as a classified Validation failure.
			kind = dbgate.OperationKind(-1)
		}
		decoded[i] = dbgate.Operation{Kind: kind, SQL: op.SQL, Params: params}
	}
	return decoded, nil
}

// readRequest decodes a JSON body into dst, rejecting trailing garbage.
func readRequest(r io.Reader, dst any) error {
	dec := json.NewDecoder(r)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("ipc: malformed request body: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("ipc: trailing data after request body")
	}
	return nil
}
