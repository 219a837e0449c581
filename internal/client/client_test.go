package client

import (
	"context"
	"encoding/json"
	"io"
	gohttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procdexeh/mcpcore/internal/mcp"
)

// replyWith serves every POST by passing the decoded request to fn.
func replyWith(t *testing.T, fn func(req mcp.Request) mcp.Response) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req mcp.Request
		require.NoError(t, json.Unmarshal(body, &req))

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(fn(req)))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestHTTPClient_Call(t *testing.T) {
	var seen mcp.Request
	ts := replyWith(t, func(req mcp.Request) mcp.Response {
		seen = req
		return mcp.NewResponse(req.ID, json.RawMessage(`{"tools":[{"name":"echo","description":"","input_schema":{}}]}`))
	})

	tools, err := New(NewHTTPClient(ts.URL)).ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name)

	assert.Equal(t, "tools/list", seen.Method)
	assert.Equal(t, "2.0", seen.JSONRPC)
	assert.False(t, seen.ID.IsNull())
}

func TestHTTPClient_RPCError(t *testing.T) {
	ts := replyWith(t, func(req mcp.Request) mcp.Response {
		return mcp.NewErrorResponse(req.ID, mcp.NewMethodNotFound(req.Method))
	})

	err := New(NewHTTPClient(ts.URL)).Call(context.Background(), "nope", nil, nil)
	var rpcErr *mcp.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, mcp.CodeMethodNotFound, rpcErr.Code)
}

func TestHTTPClient_MismatchedID(t *testing.T) {
	ts := replyWith(t, func(mcp.Request) mcp.Response {
		return mcp.NewResponse(mcp.StringID("someone-else"), nil)
	})

	err := New(NewHTTPClient(ts.URL)).Call(context.Background(), "ping", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}

func TestHTTPClient_BadStatus(t *testing.T) {
	ts := httptest.NewServer(gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		gohttp.Error(w, "boom", gohttp.StatusInternalServerError)
	}))
	defer ts.Close()

	req, err := mcp.NewRequest("ping", nil)
	require.NoError(t, err)
	_, err = NewHTTPClient(ts.URL).WithHTTPClient(ts.Client()).Send(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestCheckID(t *testing.T) {
	req := mcp.Request{ID: mcp.NumberID(1)}
	assert.NoError(t, checkID(req, mcp.Response{ID: mcp.NumberID(1)}))
	assert.NoError(t, checkID(req, mcp.Response{ID: mcp.NullID}), "parse errors come back with a null id")
	assert.Error(t, checkID(req, mcp.Response{ID: mcp.StringID("1")}))
}
