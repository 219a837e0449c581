package mcp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID_JSON(t *testing.T) {
	tests := []struct {
		raw  string
		want RequestID
	}{
		{`42`, NumberID(42)},
		{`-1`, NumberID(-1)},
		{`"abc"`, StringID("abc")},
		{`""`, StringID("")},
		{`null`, NullID},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var id RequestID
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &id))
			assert.Equal(t, tt.want, id)

			out, err := json.Marshal(id)
			require.NoError(t, err)
			assert.Equal(t, tt.raw, string(out))
		})
	}
}

func TestRequestID_RejectsOtherTypes(t *testing.T) {
	for _, raw := range []string{`1.5`, `true`, `{}`, `[1]`} {
		var id RequestID
		assert.Error(t, json.Unmarshal([]byte(raw), &id), raw)
	}
}

func TestRequestID_Comparable(t *testing.T) {
	assert.True(t, NumberID(1) == NumberID(1))
	assert.False(t, NumberID(1) == StringID("1"), "number and string ids differ")
	assert.True(t, RequestID{} == NullID)
	assert.Equal(t, `"1"`, StringID("1").String())
	assert.Equal(t, "1", NumberID(1).String())
	assert.Equal(t, "null", NullID.String())
	assert.Equal(t, int64(7), NumberID(7).Value())
	assert.Nil(t, NullID.Value())
}

func TestRequest_MissingIDIsNotification(t *testing.T) {
	var req Request
	require.NoError(t, json.Unmarshal([]byte(`{"method":"initialized"}`), &req))
	assert.True(t, req.IsNotification())
}

func TestNewRequest(t *testing.T) {
	a, err := NewRequest("tools/list", nil)
	require.NoError(t, err)
	b, err := NewRequest("tools/list", nil)
	require.NoError(t, err)

	assert.False(t, a.ID.IsNull())
	assert.NotEqual(t, a.ID, b.ID, "each request gets a fresh id")
	assert.Equal(t, "2.0", a.JSONRPC)
	assert.Nil(t, a.Params)

	c, err := NewRequest("tools/call", CallToolRequest{Name: "echo", Arguments: map[string]any{"text": "x"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"echo","arguments":{"text":"x"}}`, string(c.Params))

	n, err := NewNotification("initialized", nil)
	require.NoError(t, err)
	assert.True(t, n.IsNotification())

	_, err = NewRequest("x", func() {})
	assert.Error(t, err)
}

func TestNewResponse_AlwaysCarriesResult(t *testing.T) {
	for _, result := range []json.RawMessage{nil, json.RawMessage(`null`), json.RawMessage(``)} {
		resp := NewResponse(NumberID(1), result)
		assert.True(t, resp.HasResult())
		assert.JSONEq(t, `{}`, string(resp.Result))
		assert.Nil(t, resp.Error)
	}
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(StringID("x"), NewMethodNotFound("foo"))
	assert.True(t, resp.IsError())
	assert.False(t, resp.HasResult())
	assert.Equal(t, "method not found: foo", resp.Error.Message)

	resp = NewErrorResponse(NullID, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInternalError, resp.Error.Code)
}

func TestResponse_DecodeResult(t *testing.T) {
	var out map[string]int
	ok := NewResponse(NumberID(1), json.RawMessage(`{"n":3}`))
	require.NoError(t, ok.DecodeResult(&out))
	assert.Equal(t, 3, out["n"])

	bad := NewErrorResponse(NumberID(1), NewInvalidParams("nope"))
	err := bad.DecodeResult(&out)
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeInvalidParams, rpcErr.Code)
}

func TestResponse_WireShape(t *testing.T) {
	data, err := json.Marshal(NewResponse(NumberID(5), json.RawMessage(`{"ok":true}`)))
	require.NoError(t, err)

	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, `"2.0"`, string(m["jsonrpc"]))
	assert.Equal(t, `5`, string(m["id"]))
	assert.JSONEq(t, `{"ok":true}`, string(m["result"]))
	assert.Equal(t, "null", string(m["error"]))
}

func TestError_WithData(t *testing.T) {
	base := NewInvalidParams("bad")
	withData := base.WithData(map[string]string{"field": "text"})
	assert.Nil(t, base.Data, "receiver is untouched")
	assert.JSONEq(t, `{"field":"text"}`, string(withData.Data))
	assert.Equal(t, "bad", withData.Error())
}

func TestContent_MarshalPerType(t *testing.T) {
	tests := []struct {
		name    string
		content Content
		want    string
	}{
		{"text", TextContent("hi"), `{"type":"text","text":"hi"}`},
		{"empty text", TextContent(""), `{"type":"text","text":""}`},
		{"image", ImageContent("aGk=", "image/png"), `{"type":"image","data":"aGk=","mime_type":"image/png"}`},
		{"resource", ResourceContent(Resource{URI: "file:///a", Name: "a"}, ""), `{"type":"resource","resource":{"uri":"file:///a","name":"a"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.content)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}

	_, err := json.Marshal(Content{Type: "video"})
	assert.Error(t, err)
}

func TestWireNamesAreSnakeCase(t *testing.T) {
	progress := true
	data, err := json.Marshal(CallToolResponse{Content: []Content{TextContent("x")}, IsProgress: &progress})
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":[{"type":"text","text":"x"}],"is_progress":true}`, string(data))

	data, err = json.Marshal(Tool{Name: "t", Description: "d", InputSchema: json.RawMessage(`{}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"t","description":"d","input_schema":{}}`, string(data))

	data, err = json.Marshal(InitializeRequest{ProtocolVersion: ProtocolVersion, ClientInfo: ClientInfo{Name: "c", Version: "1"}})
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Contains(t, m, "protocol_version")
	assert.Contains(t, m, "client_info")
}
