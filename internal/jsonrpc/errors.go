package jsonrpc

import "errors"

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

const (
	// ErrorCodeParseError indicates invalid JSON was received by the server.
	ErrorCodeParseError ErrorCode = -32700
	// ErrorCodeInvalidRequest indicates the JSON sent is not a valid Request object.
	ErrorCodeInvalidRequest ErrorCode = -32600
	// ErrorCodeMethodNotFound indicates the method does not exist / is not available.
	ErrorCodeMethodNotFound ErrorCode = -32601
	// ErrorCodeInvalidParams indicates invalid method parameters.
	ErrorCodeInvalidParams ErrorCode = -32602
	// ErrorCodeInternalError indicates an internal JSON-RPC error.
	ErrorCodeInternalError ErrorCode = -32603

	// ErrorCodeServerError is the generic implementation-defined server error.
	ErrorCodeServerError ErrorCode = -32000
	// ErrorCodeDuplicateRequestID indicates a request reused an id that is
	// still pending within the same session.
	ErrorCodeDuplicateRequestID ErrorCode = -32001
)

// ErrMalformedMessage is wrapped by every decode failure.
var ErrMalformedMessage = errors.New("malformed JSON-RPC message")
