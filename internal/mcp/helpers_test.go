package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubTool is a Capability whose behaviour is set per test.
type stubTool struct {
	name     string
	timeout  time.Duration
	validate func(args map[string]any) error
	run      func(ctx context.Context, args map[string]any) (*CallToolResponse, error)
}

func (s *stubTool) Definition() Tool {
	return Tool{Name: s.name, Description: "stub " + s.name, InputSchema: json.RawMessage(`{"type":"object"}`)}
}

func (s *stubTool) ValidateArgs(args map[string]any) error {
	if s.validate == nil {
		return nil
	}
	return s.validate(args)
}

func (s *stubTool) Execute(ctx context.Context, args map[string]any) (*CallToolResponse, error) {
	if s.run == nil {
		return TextResult(s.name), nil
	}
	return s.run(ctx, args)
}

func (s *stubTool) Timeout() time.Duration { return s.timeout }

var echoSchema = `{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`

func newEchoTool(t *testing.T) *FuncTool {
	t.Helper()
	var schema jsonschema.Schema
	require.NoError(t, json.Unmarshal([]byte(echoSchema), &schema))
	tool, err := NewFuncTool("echo", "Echo back the input", &schema,
		func(_ context.Context, args map[string]any) (*CallToolResponse, error) {
			return TextResult(args["text"].(string)), nil
		}, 0)
	require.NoError(t, err)
	return tool
}

func rawRequest(t *testing.T, data string) Request {
	t.Helper()
	req, rpcErr := DecodeRequest([]byte(data))
	require.Nil(t, rpcErr)
	return req
}
