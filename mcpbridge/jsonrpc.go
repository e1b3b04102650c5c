// Package mcpbridge translates between the JSON-RPC tool-invocation
// protocol spoken by AI assistants and the Rhino bridge command protocol.
// It owns the envelope, the error-code taxonomy, the capability dispatch
// table, and the two front-end transports (stdio and WebSocket).
package mcpbridge

import (
	"encoding/json"
	"fmt"
)

// Version is the JSON-RPC protocol version carried on every message.
const Version = "2.0"

// JSON-RPC error codes used by the bridge.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is an incoming JSON-RPC request or notification. The id is kept
// as raw JSON so caller-chosen ids (string or integer) are echoed back
// verbatim on success and failure alike.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id and therefore
// must never receive a response.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewError creates an error object with a formatted message.
func NewError(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Response is an outgoing JSON-RPC response. Result and Error are mutually
// exclusive. A nil ID marshals as null, which is what a response to an
// unparseable request carries.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// NewResponse creates a success response echoing the given id.
func NewResponse(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: Version, ID: id, Result: result}
}

// NewErrorResponse creates an error response echoing the given id.
func NewErrorResponse(id json.RawMessage, rpcErr *Error) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: rpcErr}
}

// Notification is an outgoing JSON-RPC notification (no id, no reply).
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewLogNotification creates a logging/message notification. The stdio
// adapter uses these to report non-fatal conditions without breaking the
// response stream.
func NewLogNotification(level, message string) *Notification {
	return &Notification{
		JSONRPC: Version,
		Method:  "logging/message",
		Params: map[string]any{
			"level": level,
			"data":  message,
		},
	}
}
