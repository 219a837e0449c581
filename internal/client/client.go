// Package client talks to an MCP server over HTTP or WebSocket.
package client

import (
	"context"
	"errors"
	"fmt"

	"procdexeh/mcpcore/internal/mcp"
)

// ErrNoResponse is returned by HTTPClient.Send when the server accepted a
// notification without answering it.
var ErrNoResponse = errors.New("server sent no response")

// maxResponseBytes bounds a single response read by either client.
const maxResponseBytes = 16 << 20

// Sender delivers one request and returns its response.
type Sender interface {
	Send(ctx context.Context, req mcp.Request) (mcp.Response, error)
}

// Client wraps a Sender with typed helpers for the common methods.
type Client struct {
	sender Sender
}

func New(s Sender) *Client {
	return &Client{sender: s}
}

// Call sends method with params and decodes the result into out. A JSON-RPC
// error in the response is returned as *mcp.Error.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	req, err := mcp.NewRequest(method, params)
	if err != nil {
		return err
	}
	resp, err := c.sender.Send(ctx, req)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out == nil {
		return nil
	}
	return resp.DecodeResult(out)
}

func (c *Client) Initialize(ctx context.Context, info mcp.ClientInfo) (*mcp.InitializeResponse, error) {
	var out mcp.InitializeResponse
	err := c.Call(ctx, "initialize", mcp.InitializeRequest{
		ProtocolVersion: mcp.ProtocolVersion,
		ClientInfo:      info,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	var out mcp.ListToolsResponse
	if err := c.Call(ctx, "tools/list", nil, &out); err != nil {
		return nil, err
	}
	return out.Tools, nil
}

// CallTool runs a tool and returns its content.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResponse, error) {
	var out mcp.CallToolResponse
	err := c.Call(ctx, "tools/call", mcp.CallToolRequest{Name: name, Arguments: args}, &out)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", name, err)
	}
	return &out, nil
}

func checkID(req mcp.Request, resp mcp.Response) error {
	if resp.ID.IsNull() || resp.ID == req.ID {
		return nil
	}
	return fmt.Errorf("response id %s does not match request id %s", resp.ID, req.ID)
}
