package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"procdexeh/mcpcore/internal/mcp"
)

// Echo returns its text argument, optionally upper-cased.
type Echo struct{}

func (Echo) Definition() mcp.Tool {
	return mcp.Tool{
		Name:        "echo",
		Description: "Echo back the input text",
		InputSchema: json.RawMessage(`{
            "type": "object",
            "properties": {
                "text": {
                    "type": "string",
                    "description": "Text to echo back"
                },
                "uppercase": {
                    "type": "boolean",
                    "description": "Convert to uppercase",
                    "default": false
                }
            },
            "required": ["text"]
        }`),
	}
}

func (Echo) ValidateArgs(args map[string]any) error {
	text, ok := args["text"]
	if !ok {
		return errors.New("missing required 'text' argument")
	}
	if _, ok := text.(string); !ok {
		return errors.New("'text' must be a string")
	}
	if v, ok := args["uppercase"]; ok {
		if _, ok := v.(bool); !ok {
			return errors.New("'uppercase' must be a boolean")
		}
	}
	return nil
}

func (Echo) Execute(_ context.Context, args map[string]any) (*mcp.CallToolResponse, error) {
	text, ok := args["text"].(string)
	if !ok {
		return nil, errors.New("missing 'text' argument")
	}
	if upper, _ := args["uppercase"].(bool); upper {
		text = strings.ToUpper(text)
	}
	return mcp.TextResult(text), nil
}
