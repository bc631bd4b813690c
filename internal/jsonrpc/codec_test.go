package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeClassifiesMessages(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want MessageType
	}{
		{"request", `{"jsonrpc":"2.0","id":1,"method":"ping"}`, TypeRequest},
		{"string id request", `{"jsonrpc":"2.0","id":"abc","method":"tools/list","params":{}}`, TypeRequest},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, TypeNotification},
		{"result response", `{"jsonrpc":"2.0","id":7,"result":{}}`, TypeResponse},
		{"error response null id", `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"parse error"}}`, TypeResponse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := Decode([]byte(tc.in))
			require.NoError(t, err)
			require.Equal(t, tc.want, msg.Type())
		})
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":            `hello`,
		"truncated":           `{"jsonrpc":"2.0","id":1`,
		"wrong version":       `{"jsonrpc":"1.0","id":1,"method":"ping"}`,
		"missing version":     `{"id":1,"method":"ping"}`,
		"batch":               `[{"jsonrpc":"2.0","id":1,"method":"ping"}]`,
		"scalar":              `42`,
		"bool id":             `{"jsonrpc":"2.0","id":true,"method":"ping"}`,
		"object id":           `{"jsonrpc":"2.0","id":{},"method":"ping"}`,
		"null request id":     `{"jsonrpc":"2.0","id":null,"method":"ping"}`,
		"empty method":        `{"jsonrpc":"2.0","id":1,"method":""}`,
		"scalar params":       `{"jsonrpc":"2.0","id":1,"method":"ping","params":3}`,
		"result and error":    `{"jsonrpc":"2.0","id":1,"result":{},"error":{"code":1,"message":"x"}}`,
		"neither":             `{"jsonrpc":"2.0","id":1}`,
		"response without id": `{"jsonrpc":"2.0","result":{}}`,
		"method with result":  `{"jsonrpc":"2.0","id":1,"method":"ping","result":{}}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(in))
			require.Error(t, err)
			require.ErrorIs(t, err, ErrMalformedMessage)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	inputs := []string{
		`{"jsonrpc":"2.0","id":1,"method":"ping"}`,
		`{"jsonrpc":"2.0","id":"req-1","method":"tools/call","params":{"name":"hello","arguments":{"name":"Ada"}}}`,
		`{"jsonrpc":"2.0","id":1.0,"method":"ping"}`,
		`{"jsonrpc":"2.0","method":"notifications/progress","params":{"progressToken":"t","progress":1,"total":5}}`,
		`{"jsonrpc":"2.0","id":3,"result":{"tools":[]}}`,
		`{"jsonrpc":"2.0","id":"x","error":{"code":-32602,"message":"invalid params","data":{"tool":"hello"}}}`,
		`{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"parse error"}}`,
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			m, err := Decode([]byte(in))
			require.NoError(t, err)

			b, err := Encode(m)
			require.NoError(t, err)

			again, err := Decode(b)
			require.NoError(t, err)
			require.Equal(t, m, again)
		})
	}
}

func TestIDsArePreservedByteForByte(t *testing.T) {
	for _, tok := range []string{`1`, `1.0`, `"1"`, `-0`, `1e3`, `"café"`} {
		m, err := Decode([]byte(`{"jsonrpc":"2.0","id":` + tok + `,"method":"ping"}`))
		require.NoError(t, err)

		resp, err := NewResultResponse(m.ID, struct{}{})
		require.NoError(t, err)
		b, err := json.Marshal(resp)
		require.NoError(t, err)
		require.Contains(t, string(b), `"id":`+tok)
	}
}

func TestRequestIDIdentity(t *testing.T) {
	one, err := ParseRequestID([]byte(`1`))
	require.NoError(t, err)
	oneFloat, err := ParseRequestID([]byte(`1.0`))
	require.NoError(t, err)
	oneString, err := ParseRequestID([]byte(`"1"`))
	require.NoError(t, err)

	require.False(t, one.Equal(oneFloat))
	require.False(t, one.Equal(oneString))
	require.NotEqual(t, one.Key(), oneString.Key())
	require.Equal(t, "1", oneString.String())
	require.True(t, oneString.IsString())
	require.True(t, one.Equal(NewRequestID(1)))
	require.True(t, oneString.Equal(NewRequestID("1")))
}

func TestErrorResponseAlwaysEncodesID(t *testing.T) {
	resp := NewErrorResponse(nil, ErrorCodeParseError, "parse error", nil)
	b, err := json.Marshal(resp)
	require.NoError(t, err)
	require.JSONEq(t, `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"parse error"}}`, string(b))
}

func TestDecoderStream(t *testing.T) {
	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`not json`,
	}, "\n")
	dec := NewDecoder(strings.NewReader(in))

	m, err := dec.Next()
	require.NoError(t, err)
	require.Equal(t, "initialize", m.Method)

	m, err = dec.Next()
	require.NoError(t, err)
	require.Equal(t, TypeNotification, m.Type())

	_, err = dec.Next()
	require.ErrorIs(t, err, ErrMalformedMessage)
}

func TestDecoderEOF(t *testing.T) {
	dec := NewDecoder(strings.NewReader(""))
	_, err := dec.Next()
	require.True(t, errors.Is(err, io.EOF))
}

func TestEncoderWritesWholeLines(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, _ := NewResultResponse(NewRequestID(i), map[string]int{"n": i})
			require.NoError(t, enc.Encode(resp))
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 50)
	for _, line := range lines {
		_, err := Decode([]byte(line))
		require.NoError(t, err)
	}
}
