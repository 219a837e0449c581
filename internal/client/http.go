package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	gohttp "net/http"
	"time"

	"procdexeh/mcpcore/internal/mcp"
)

// HTTPClient posts each request to a single endpoint, e.g.
// http://localhost:6969/mcp.
type HTTPClient struct {
	endpoint string
	http     *gohttp.Client
}

func NewHTTPClient(endpoint string) *HTTPClient {
	return &HTTPClient{
		endpoint: endpoint,
		http:     &gohttp.Client{Timeout: 60 * time.Second},
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func (c *HTTPClient) WithHTTPClient(hc *gohttp.Client) *HTTPClient {
	c.http = hc
	return c
}

func (c *HTTPClient) Send(ctx context.Context, req mcp.Request) (mcp.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return mcp.Response{}, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := gohttp.NewRequestWithContext(ctx, gohttp.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return mcp.Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return mcp.Response{}, fmt.Errorf("post %s: %w", c.endpoint, err)
	}
	defer httpResp.Body.Close()

	switch httpResp.StatusCode {
	case gohttp.StatusOK:
	case gohttp.StatusAccepted:
		return mcp.Response{}, ErrNoResponse
	default:
		return mcp.Response{}, fmt.Errorf("post %s: unexpected status %s", c.endpoint, httpResp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return mcp.Response{}, fmt.Errorf("read response: %w", err)
	}
	resp, err := mcp.DecodeResponse(data)
	if err != nil {
		return mcp.Response{}, err
	}
	return resp, checkID(req, resp)
}
