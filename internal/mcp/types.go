package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ProtocolVersion is the protocol revision this server speaks unless
// configured otherwise.
const ProtocolVersion = "2024-11-05"

// Request is a JSON-RPC 2.0 request or notification.
// ID is NullID for notifications.
type Request struct {
	JSONRPC string                     `json:"jsonrpc,omitempty"`
	ID      RequestID                  `json:"id"`
	Method  string                     `json:"method"`
	Params  json.RawMessage            `json:"params"`
	Meta    map[string]json.RawMessage `json:"meta"`
}

// IsNotification returns true if this message has no ID (notification).
func (r *Request) IsNotification() bool { return r.ID.IsNull() }

// NewRequest builds a request with a fresh string id.
func NewRequest(method string, params any) (Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return Request{}, err
	}
	return Request{JSONRPC: "2.0", ID: StringID(uuid.NewString()), Method: method, Params: raw}, nil
}

// NewNotification builds a request with the null id.
func NewNotification(method string, params any) (Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return Request{}, err
	}
	return Request{JSONRPC: "2.0", ID: NullID, Method: method, Params: raw}, nil
}

func marshalParams(params any) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		return data, nil
	}
}

// Response is a JSON-RPC 2.0 response.
// Exactly one of Result and Error is set; build it with NewResponse or
// NewErrorResponse.
type Response struct {
	JSONRPC string                     `json:"jsonrpc"`
	ID      RequestID                  `json:"id"`
	Result  json.RawMessage            `json:"result"`
	Error   *Error                     `json:"error"`
	Meta    map[string]json.RawMessage `json:"meta"`
}

// NewResponse creates a success response echoing the request ID.
// An empty or null result is sent as {} so the response always carries one.
func NewResponse(id RequestID, result json.RawMessage) Response {
	if isEmptyJSON(result) {
		result = json.RawMessage(`{}`)
	}
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}

// NewErrorResponse creates an error response echoing the request ID.
func NewErrorResponse(id RequestID, e *Error) Response {
	if e == nil {
		e = NewInternalError("unknown error")
	}
	return Response{JSONRPC: "2.0", ID: id, Error: e}
}

// IsError reports whether the response carries an error.
func (r *Response) IsError() bool { return r.Error != nil }

// HasResult reports whether the response carries a non-null result.
func (r *Response) HasResult() bool { return !isEmptyJSON(r.Result) }

// DecodeResult unmarshals the result into v, or returns the response error.
func (r *Response) DecodeResult(v any) error {
	if r.Error != nil {
		return r.Error
	}
	if !r.HasResult() {
		return fmt.Errorf("response %s has no result", r.ID)
	}
	return json.Unmarshal(r.Result, v)
}

func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

type SessionState int

const (
	StateUninitialized SessionState = iota
	StateInitialized
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type ToolCapabilities struct {
	ListChanged *bool `json:"list_changed,omitempty"`
}

type ResourceCapabilities struct {
	Subscribe   *bool `json:"subscribe,omitempty"`
	ListChanged *bool `json:"list_changed,omitempty"`
}

type PromptCapabilities struct {
	ListChanged *bool `json:"list_changed,omitempty"`
}

type LoggingCapabilities struct {
	Level string `json:"level,omitempty"`
}

// ServerCapabilities advertises which feature sets the server offers.
// A nil member means the feature is not offered.
type ServerCapabilities struct {
	Tools     *ToolCapabilities     `json:"tools,omitempty"`
	Resources *ResourceCapabilities `json:"resources,omitempty"`
	Prompts   *PromptCapabilities   `json:"prompts,omitempty"`
	Logging   *LoggingCapabilities  `json:"logging,omitempty"`
}

type ServerInfo struct {
	Name            string             `json:"name"`
	Version         string             `json:"version"`
	ProtocolVersion string             `json:"protocol_version"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      map[string]any     `json:"server_info,omitempty"`
}

type ClientCapabilities struct {
	Experimental map[string]json.RawMessage `json:"experimental,omitempty"`
}

type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type InitializeRequest struct {
	ProtocolVersion string             `json:"protocol_version"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      ClientInfo         `json:"client_info"`
}

type InitializeResponse struct {
	ProtocolVersion string             `json:"protocol_version"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ServerInfo         `json:"server_info"`
}

// Tool is the definition of a tool as advertised by tools/list.
type Tool struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	InputSchema  json.RawMessage `json:"input_schema"`
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
}

type Resource struct {
	URI         string         `json:"uri"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	MimeType    string         `json:"mime_type,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type PromptArgument struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Required    bool            `json:"required"`
	Default     json.RawMessage `json:"default,omitempty"`
}

type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Arguments   []PromptArgument `json:"arguments"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
}

const (
	ContentText     = "text"
	ContentImage    = "image"
	ContentResource = "resource"
)

// Content is one block of a tool result. Type selects which of the other
// fields are meaningful.
type Content struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	Data     string    `json:"data,omitempty"`
	MimeType string    `json:"mime_type,omitempty"`
	Resource *Resource `json:"resource,omitempty"`
}

func TextContent(text string) Content { return Content{Type: ContentText, Text: text} }

func ImageContent(data, mimeType string) Content {
	return Content{Type: ContentImage, Data: data, MimeType: mimeType}
}

func ResourceContent(r Resource, text string) Content {
	return Content{Type: ContentResource, Resource: &r, Text: text}
}

// MarshalJSON writes only the members belonging to the block's type, so an
// empty text block still carries "text".
func (c Content) MarshalJSON() ([]byte, error) {
	switch c.Type {
	case ContentText:
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{c.Type, c.Text})
	case ContentImage:
		return json.Marshal(struct {
			Type     string `json:"type"`
			Data     string `json:"data"`
			MimeType string `json:"mime_type"`
		}{c.Type, c.Data, c.MimeType})
	case ContentResource:
		return json.Marshal(struct {
			Type     string    `json:"type"`
			Resource *Resource `json:"resource"`
			Text     string    `json:"text,omitempty"`
		}{c.Type, c.Resource, c.Text})
	default:
		return nil, fmt.Errorf("unknown content type %q", c.Type)
	}
}

type CallToolRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type CallToolResponse struct {
	Content    []Content `json:"content"`
	IsProgress *bool     `json:"is_progress,omitempty"`
}

// TextResult is a CallToolResponse holding one text block.
func TextResult(text string) *CallToolResponse {
	return &CallToolResponse{Content: []Content{TextContent(text)}}
}

// ListRequest is the params of every */list method.
type ListRequest struct {
	Cursor string `json:"cursor,omitempty"`
}

type ListToolsResponse struct {
	Tools      []Tool `json:"tools"`
	NextCursor string `json:"next_cursor,omitempty"`
}

type ListResourcesResponse struct {
	Resources  []Resource `json:"resources"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

type ListPromptsResponse struct {
	Prompts    []Prompt `json:"prompts"`
	NextCursor string   `json:"next_cursor,omitempty"`
}
