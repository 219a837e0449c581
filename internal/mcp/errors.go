package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Error Codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// JSON-RPC 2.0 Error Object
// Used in a response when there's a protocol error
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// WithData returns a copy of e carrying v as its data member.
// If v cannot be marshalled the copy is returned without data.
func (e *Error) WithData(v any) *Error {
	c := *e
	if data, err := json.Marshal(v); err == nil {
		c.Data = data
	}
	return &c
}

func NewParseError(msg string) *Error {
	return &Error{Code: CodeParseError, Message: msg}
}

func NewInvalidRequest(msg string) *Error {
	return &Error{Code: CodeInvalidRequest, Message: msg}
}

func NewMethodNotFound(method string) *Error {
	return &Error{Code: CodeMethodNotFound, Message: "method not found: " + method}
}

func NewInvalidParams(msg string) *Error {
	return &Error{Code: CodeInvalidParams, Message: msg}
}

func NewInternalError(msg string) *Error {
	return &Error{Code: CodeInternalError, Message: msg}
}

// Registry errors. Every error returned by Registry matches one of these
// with errors.Is.
var (
	ErrToolExists    = errors.New("tool already registered")
	ErrToolNotFound  = errors.New("tool not found")
	ErrInvalidParams = errors.New("invalid params")
	ErrToolFailed    = errors.New("tool execution failed")
	ErrToolTimeout   = errors.New("tool execution timed out")
)

// ToolError describes a registry failure for a single tool.
type ToolError struct {
	Kind    error // one of the Err* sentinels above
	Tool    string
	Timeout time.Duration // set for ErrToolTimeout
	Err     error
}

func (e *ToolError) Error() string {
	switch e.Kind {
	case ErrToolExists:
		return fmt.Sprintf("tool '%s' already registered", e.Tool)
	case ErrToolNotFound:
		return fmt.Sprintf("tool '%s' not found", e.Tool)
	case ErrToolTimeout:
		return fmt.Sprintf("tool '%s' execution timed out after %s", e.Tool, e.Timeout)
	case ErrInvalidParams:
		return fmt.Sprintf("invalid arguments for tool '%s': %v", e.Tool, e.Err)
	default:
		return fmt.Sprintf("tool '%s' failed: %v", e.Tool, e.Err)
	}
}

func (e *ToolError) Is(target error) bool { return target == e.Kind }

func (e *ToolError) Unwrap() error { return e.Err }

// toRPCError maps a registry error onto the JSON-RPC error returned to the caller.
// Argument validation failures are the caller's fault; everything else is an
// internal error naming the tool.
func toRPCError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	if errors.Is(err, ErrInvalidParams) {
		return NewInvalidParams(err.Error())
	}
	return NewInternalError("tool execution failed: " + err.Error())
}
