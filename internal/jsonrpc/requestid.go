package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// RequestID represents a JSON-RPC ID that can be either a string or a number.
//
// The ID keeps the exact (compacted) JSON token it was decoded from so that
// numeric and string identifiers are echoed back byte-for-byte. Two IDs are
// equal only when their tokens are identical: 1, 1.0 and "1" are distinct.
type RequestID struct {
	raw json.RawMessage
}

// NewRequestID creates a RequestID from a string or number. Unsupported
// types yield nil.
func NewRequestID(value any) *RequestID {
	switch v := value.(type) {
	case string:
		b, _ := json.Marshal(v)
		return &RequestID{raw: b}
	case int:
		return &RequestID{raw: []byte(strconv.FormatInt(int64(v), 10))}
	case int32:
		return &RequestID{raw: []byte(strconv.FormatInt(int64(v), 10))}
	case int64:
		return &RequestID{raw: []byte(strconv.FormatInt(v, 10))}
	case uint64:
		return &RequestID{raw: []byte(strconv.FormatUint(v, 10))}
	case float64:
		return &RequestID{raw: []byte(strconv.FormatFloat(v, 'g', -1, 64))}
	case json.Number:
		return &RequestID{raw: []byte(v.String())}
	default:
		return nil
	}
}

// ParseRequestID validates and wraps a raw JSON id token.
func ParseRequestID(data []byte) (*RequestID, error) {
	id := new(RequestID)
	if err := id.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return id, nil
}

// String returns a human-readable form of the ID: the unquoted value for
// string IDs and the literal token for numeric IDs. Use Key for map keys.
func (id *RequestID) String() string {
	if id.IsNil() {
		return ""
	}
	if id.raw[0] == '"' {
		var s string
		if err := json.Unmarshal(id.raw, &s); err == nil {
			return s
		}
	}
	return string(id.raw)
}

// Key returns the raw token, suitable as a collision-free map key.
func (id *RequestID) Key() string {
	if id.IsNil() {
		return ""
	}
	return string(id.raw)
}

// IsString reports whether the ID was encoded as a JSON string.
func (id *RequestID) IsString() bool {
	return !id.IsNil() && id.raw[0] == '"'
}

// Raw returns a copy of the underlying JSON token.
func (id *RequestID) Raw() json.RawMessage {
	if id.IsNil() {
		return nil
	}
	return append(json.RawMessage(nil), id.raw...)
}

// Equal reports whether two IDs carry the same token.
func (id *RequestID) Equal(other *RequestID) bool {
	if id.IsNil() || other.IsNil() {
		return id.IsNil() && other.IsNil()
	}
	return bytes.Equal(id.raw, other.raw)
}

// IsNil returns true if the ID is nil/empty.
func (id *RequestID) IsNil() bool {
	return id == nil || len(id.raw) == 0
}

// MarshalJSON implements json.Marshaler.
func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id.IsNil() {
		return []byte("null"), nil
	}
	return id.raw, nil
}

// UnmarshalJSON implements json.Unmarshaler. Only JSON strings and numbers
// are accepted.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("JSON-RPC ID must be a string or number, got empty input")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("JSON-RPC ID must be a string or number: %w", err)
	}
	switch v.(type) {
	case string, json.Number:
	default:
		return fmt.Errorf("JSON-RPC ID must be a string or number, got: %s", string(trimmed))
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return fmt.Errorf("JSON-RPC ID must be a string or number: %w", err)
	}
	id.raw = buf.Bytes()
	return nil
}
