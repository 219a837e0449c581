package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name string
		data string
		code int // 0 means success
	}{
		{"valid", `{"jsonrpc":"2.0","id":1,"method":"ping"}`, 0},
		{"surrounding whitespace", "  \n{\"id\":1,\"method\":\"ping\"}\n", 0},
		{"empty", ``, CodeParseError},
		{"truncated", `{"id":1,"method":`, CodeParseError},
		{"garbage", `not json`, CodeParseError},
		{"array of numbers", `[1,2,3]`, CodeInvalidRequest},
		{"string", `"ping"`, CodeInvalidRequest},
		{"wrong field type", `{"id":1,"method":42}`, CodeInvalidRequest},
		{"fractional id", `{"id":1.5,"method":"ping"}`, CodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, rpcErr := DecodeRequest([]byte(tt.data))
			if tt.code == 0 {
				assert.Nil(t, rpcErr)
				return
			}
			require.NotNil(t, rpcErr)
			assert.Equal(t, tt.code, rpcErr.Code)
		})
	}
}

func TestEncodeDecodeResponse(t *testing.T) {
	data, err := EncodeResponse(NewResponse(StringID("a"), json.RawMessage(`{"x":1}`)))
	require.NoError(t, err)

	resp, err := DecodeResponse(data)
	require.NoError(t, err)
	assert.Equal(t, StringID("a"), resp.ID)
	assert.Nil(t, resp.Error)
	assert.JSONEq(t, `{"x":1}`, string(resp.Result))

	data, err = EncodeResponse(NewErrorResponse(NumberID(2), NewParseError("bad")))
	require.NoError(t, err)
	resp, err = DecodeResponse(data)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeParseError, resp.Error.Code)
	assert.False(t, resp.HasResult())

	_, err = DecodeResponse([]byte(`{`))
	assert.Error(t, err)
}

func TestTransport_ReadMessage(t *testing.T) {
	input := strings.Join([]string{
		`{"id":1,"method":"ping"}`,
		``,
		`[{"id":2,"method":"ping"},{"id":3,"method":"tools/list"}]`,
		`{broken`,
		`[]`,
	}, "\n")
	tr := NewTransport(strings.NewReader(input), &bytes.Buffer{})

	msgs, err := tr.ReadMessage()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, NumberID(1), msgs[0].ID)

	msgs, err = tr.ReadMessage()
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "tools/list", msgs[1].Method)

	_, err = tr.ReadMessage()
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeParseError, rpcErr.Code)

	_, err = tr.ReadMessage()
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeInvalidRequest, rpcErr.Code)
}

func TestServer_ServeStdio(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocol_version":"2024-11-05","client_info":{"name":"cli","version":"1"}}}`,
		`{"jsonrpc":"2.0","method":"initialized"}`,
		`this is not json`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{"text":"hi"}}}`,
		`[{"jsonrpc":"2.0","id":3,"method":"ping"},{"jsonrpc":"2.0","id":4,"method":"nope"}]`,
	}, "\n") + "\n"

	var out bytes.Buffer
	require.NoError(t, srv.Serve(context.Background(), NewTransport(strings.NewReader(input), &out)))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)

	first, err := DecodeResponse([]byte(lines[0]))
	require.NoError(t, err)
	assert.Equal(t, NumberID(1), first.ID)
	assert.Nil(t, first.Error)

	ack, err := DecodeResponse([]byte(lines[1]))
	require.NoError(t, err)
	assert.True(t, ack.ID.IsNull())
	assert.Nil(t, ack.Error)

	parseErr, err := DecodeResponse([]byte(lines[2]))
	require.NoError(t, err)
	require.NotNil(t, parseErr.Error)
	assert.Equal(t, CodeParseError, parseErr.Error.Code)
	assert.True(t, parseErr.ID.IsNull())

	echo, err := DecodeResponse([]byte(lines[3]))
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":[{"type":"text","text":"hi"}]}`, string(echo.Result))

	var batch []Response
	require.NoError(t, json.Unmarshal([]byte(lines[4]), &batch))
	require.Len(t, batch, 2)
	assert.Equal(t, NumberID(3), batch[0].ID)
	require.NotNil(t, batch[1].Error)
	assert.Equal(t, CodeMethodNotFound, batch[1].Error.Code)
}

func TestServer_ServeStopsOnCancelledContext(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := srv.Serve(ctx, NewTransport(strings.NewReader(`{"id":1,"method":"ping"}`+"\n"), &out))
	assert.NoError(t, err)
	assert.Empty(t, out.String())
}
