package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coder/websocket"

	"procdexeh/mcpcore/internal/mcp"
)

// WSClient holds one WebSocket connection. Send writes a request and waits
// for the next frame, so calls are serialized.
type WSClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Dial connects to a WebSocket endpoint such as ws://localhost:6969/mcp/ws.
func Dial(ctx context.Context, url string) (*WSClient, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(maxResponseBytes)
	return &WSClient{conn: conn}, nil
}

func (c *WSClient) Send(ctx context.Context, req mcp.Request) (mcp.Response, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return mcp.Response{}, fmt.Errorf("encode request: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return mcp.Response{}, fmt.Errorf("write frame: %w", err)
	}
	resp, err := c.read(ctx)
	if err != nil {
		return mcp.Response{}, err
	}
	return resp, checkID(req, resp)
}

// Notify writes a notification without waiting for an answer, for servers
// that follow strict JSON-RPC and never reply to one. Against a server that
// does reply, use Send instead so the reply is consumed.
func (c *WSClient) Notify(ctx context.Context, req mcp.Request) error {
	if !req.IsNotification() {
		return fmt.Errorf("request %s has an id; use Send", req.ID)
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// SendRaw writes a frame of the given type as-is and returns the server's
// answer. Useful for probing how the server handles bad input.
func (c *WSClient) SendRaw(ctx context.Context, typ websocket.MessageType, data []byte) (mcp.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.Write(ctx, typ, data); err != nil {
		return mcp.Response{}, fmt.Errorf("write frame: %w", err)
	}
	return c.read(ctx)
}

func (c *WSClient) read(ctx context.Context) (mcp.Response, error) {
	typ, data, err := c.conn.Read(ctx)
	if err != nil {
		return mcp.Response{}, fmt.Errorf("read frame: %w", err)
	}
	if typ != websocket.MessageText {
		return mcp.Response{}, fmt.Errorf("unexpected %v frame", typ)
	}
	return mcp.DecodeResponse(data)
}

func (c *WSClient) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
