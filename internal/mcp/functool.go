package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

// ToolFunc is the body of a FuncTool.
type ToolFunc func(ctx context.Context, args map[string]any) (*CallToolResponse, error)

// FuncTool adapts a plain function and a JSON schema into a Capability.
// Arguments are validated against the schema before the function runs.
type FuncTool struct {
	def     Tool
	schema  *jsonschema.Resolved
	fn      ToolFunc
	timeout time.Duration
}

// NewFuncTool resolves schema and builds the tool. A zero timeout means the
// registry default applies.
func NewFuncTool(name, description string, schema *jsonschema.Schema, fn ToolFunc, timeout time.Duration) (*FuncTool, error) {
	if fn == nil {
		return nil, errors.New("tool function is required")
	}
	if schema == nil {
		schema = &jsonschema.Schema{Type: "object"}
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve schema for %s: %w", name, err)
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %s: %w", name, err)
	}
	return &FuncTool{
		def: Tool{
			Name:        name,
			Description: description,
			InputSchema: raw,
		},
		schema:  resolved,
		fn:      fn,
		timeout: timeout,
	}, nil
}

func (t *FuncTool) Definition() Tool { return t.def }

func (t *FuncTool) ValidateArgs(args map[string]any) error {
	// Validate wants a plain JSON value, not a typed nil map.
	var instance any = map[string]any{}
	if args != nil {
		instance = args
	}
	return t.schema.Validate(instance)
}

func (t *FuncTool) Execute(ctx context.Context, args map[string]any) (*CallToolResponse, error) {
	return t.fn(ctx, args)
}

func (t *FuncTool) Timeout() time.Duration { return t.timeout }
