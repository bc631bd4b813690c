package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Decode parses a single JSON-RPC message. All failures wrap
// ErrMalformedMessage.
func Decode(data []byte) (*AnyMessage, error) {
	var msg AnyMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return &msg, nil
}

// Encode serializes a message. Responses always carry an id member, null
// when the id is unknown.
func Encode(m *AnyMessage) ([]byte, error) {
	if m == nil {
		return nil, errors.New("cannot encode nil message")
	}
	if m.Type() == TypeResponse {
		return json.Marshal(m.AsResponse())
	}
	return json.Marshal(m.AsRequest())
}

// Decoder reads a stream of JSON-RPC messages.
type Decoder struct {
	dec *json.Decoder
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: json.NewDecoder(r)}
}

// Next returns the next message. io.EOF is returned unwrapped at end of
// input. Once a malformed message is reported the stream is unusable.
func (d *Decoder) Next() (*AnyMessage, error) {
	var raw json.RawMessage
	if err := d.dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return Decode(raw)
}

// Encoder writes newline-delimited messages. It is safe for concurrent use
// and each message is written with a single call to the underlying writer.
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes v followed by a newline.
func (e *Encoder) Encode(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	b = append(b, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err = e.w.Write(b)
	return err
}
