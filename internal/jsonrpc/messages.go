package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the supported JSON-RPC protocol version.
const ProtocolVersion = "2.0"

// MessageType classifies a decoded message.
type MessageType string

const (
	TypeRequest      MessageType = "request"
	TypeNotification MessageType = "notification"
	TypeResponse     MessageType = "response"
)

// AnyMessage is a generic JSON-RPC message (request, notification, or response).
type AnyMessage struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method,omitempty"`
	Params         json.RawMessage `json:"params,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// Request represents a JSON-RPC request (with an ID) or notification (without ID).
type Request struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// IsNotification reports whether the request carries no id.
func (r *Request) IsNotification() bool {
	return r.ID.IsNil()
}

// Response represents a JSON-RPC response. The id is always encoded, as
// null when the originating request could not be identified.
type Response struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id"`
}

// AsAny widens the response into an AnyMessage.
func (r *Response) AsAny() *AnyMessage {
	return &AnyMessage{
		JSONRPCVersion: r.JSONRPCVersion,
		Result:         r.Result,
		Error:          r.Error,
		ID:             r.ID,
	}
}

// NewRequest builds a request with the given id and params.
func NewRequest(id *RequestID, method string, params any) (*Request, error) {
	req, err := NewNotification(method, params)
	if err != nil {
		return nil, err
	}
	req.ID = id
	return req, nil
}

// NewNotification builds a request without an id.
func NewNotification(method string, params any) (*Request, error) {
	req := &Request{
		JSONRPCVersion: ProtocolVersion,
		Method:         method,
	}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		req.Params = b
	}
	return req, nil
}

// NewResultResponse builds a successful JSON-RPC response object.
func NewResultResponse(id *RequestID, result any) (*Response, error) {
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Result:         resultBytes,
		ID:             id,
	}, nil
}

// NewErrorResponse builds an error JSON-RPC response with the given code.
// Data that cannot be marshalled is dropped.
func NewErrorResponse(id *RequestID, code ErrorCode, message string, data any) *Response {
	e := &Error{
		Code:    code,
		Message: message,
	}
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			e.Data = b
		}
	}
	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Error:          e,
		ID:             id,
	}
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    ErrorCode       `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// UnmarshalJSON implements custom JSON unmarshaling for AnyMessage.
// It enforces JSON-RPC 2.0 semantics and validates message structure.
func (m *AnyMessage) UnmarshalJSON(data []byte) error {
	type rawMessage struct {
		JSONRPCVersion string          `json:"jsonrpc"`
		Method         *string         `json:"method"`
		Params         json.RawMessage `json:"params"`
		Result         json.RawMessage `json:"result"`
		Error          json.RawMessage `json:"error"`
		ID             json.RawMessage `json:"id"`
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return fmt.Errorf("batch messages are not supported")
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("message must be a JSON object")
	}

	var raw rawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if raw.JSONRPCVersion != ProtocolVersion {
		return fmt.Errorf("invalid JSON-RPC version: expected %q, got %q", ProtocolVersion, raw.JSONRPCVersion)
	}

	hasMethod := raw.Method != nil
	hasResult := len(raw.Result) > 0
	hasError := len(raw.Error) > 0 && !isNull(raw.Error)

	var id *RequestID
	if len(raw.ID) > 0 && !isNull(raw.ID) {
		parsed, err := ParseRequestID(raw.ID)
		if err != nil {
			return err
		}
		id = parsed
	}

	var out AnyMessage
	out.JSONRPCVersion = raw.JSONRPCVersion
	out.ID = id

	if hasMethod {
		if *raw.Method == "" {
			return fmt.Errorf("method must be a non-empty string")
		}
		if hasResult || hasError {
			return fmt.Errorf("request message cannot have result or error fields")
		}
		if len(raw.ID) > 0 && isNull(raw.ID) {
			return fmt.Errorf("request id must not be null")
		}
		out.Method = *raw.Method
		if len(raw.Params) > 0 && !isNull(raw.Params) {
			if raw.Params[0] != '{' && raw.Params[0] != '[' {
				return fmt.Errorf("params must be an object or array")
			}
			params, err := compact(raw.Params)
			if err != nil {
				return err
			}
			out.Params = params
		}
	} else {
		if hasResult && hasError {
			return fmt.Errorf("response message cannot have both result and error fields")
		}
		if !hasResult && !hasError {
			return fmt.Errorf("response message must have either result or error field")
		}
		if len(raw.ID) == 0 {
			return fmt.Errorf("response message must have an id field")
		}
		if id == nil && !hasError {
			return fmt.Errorf("successful response must have a non-null id")
		}
		if hasResult {
			result, err := compact(raw.Result)
			if err != nil {
				return err
			}
			out.Result = result
		}
		if hasError {
			var e Error
			if err := json.Unmarshal(raw.Error, &e); err != nil {
				return fmt.Errorf("invalid error object: %w", err)
			}
			if len(e.Data) > 0 {
				if isNull(e.Data) {
					e.Data = nil
				} else {
					d, err := compact(e.Data)
					if err != nil {
						return err
					}
					e.Data = d
				}
			}
			out.Error = &e
		}
	}

	*m = out
	return nil
}

// Type classifies the message.
func (m *AnyMessage) Type() MessageType {
	if m.Method != "" {
		if m.ID.IsNil() {
			return TypeNotification
		}
		return TypeRequest
	}
	return TypeResponse
}

// AsRequest returns the message as a Request if it is a request message, otherwise nil
func (m *AnyMessage) AsRequest() *Request {
	if m.Method == "" {
		return nil
	}

	return &Request{
		JSONRPCVersion: m.JSONRPCVersion,
		Method:         m.Method,
		Params:         m.Params,
		ID:             m.ID,
	}
}

// AsResponse returns the message as a Response if it is a response message, otherwise nil
func (m *AnyMessage) AsResponse() *Response {
	if m.Method != "" {
		return nil
	}

	return &Response{
		JSONRPCVersion: m.JSONRPCVersion,
		Result:         m.Result,
		Error:          m.Error,
		ID:             m.ID,
	}
}

func isNull(b json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(b), []byte("null"))
}

func compact(b json.RawMessage) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
