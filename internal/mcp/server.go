package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ToolHandler is the boundary between protocol and business logic.
// Registry implements it.
type ToolHandler interface {
	List() []Tool
	Validate(name string, args map[string]any) error
	Execute(ctx context.Context, name string, args map[string]any) (*CallToolResponse, error)
}

// ToolExecutionRequest is a tool call handed off to a TaskRunner.
type ToolExecutionRequest struct {
	ToolName  string         `json:"tool_name"`
	Args      map[string]any `json:"args"`
	RequestID string         `json:"request_id"`
}

// TaskRunner takes tool calls off the request path. Submit returns an id the
// caller can later use to look the job up.
type TaskRunner interface {
	Submit(ctx context.Context, req ToolExecutionRequest) (string, error)
}

// MetaBackground is the request meta key that asks tools/call to run the
// tool through the TaskRunner instead of waiting for it.
const MetaBackground = "background"

type appContextKey struct{}

// WithAppContext attaches the host's application context to ctx.
func WithAppContext(ctx context.Context, app any) context.Context {
	return context.WithValue(ctx, appContextKey{}, app)
}

// AppContextFrom returns the host application context carried by ctx, if any.
// Tools receive it on every Execute call.
func AppContextFrom(ctx context.Context) any {
	return ctx.Value(appContextKey{})
}

// Config holds configuration for the protocol handler.
type Config struct {
	Info   ServerInfo
	Tools  ToolHandler
	Tasks  TaskRunner // optional
	Logger *slog.Logger

	// AppContext is passed through to tools untouched.
	AppContext any

	// StrictNotifications suppresses responses to null-id requests, as
	// JSON-RPC 2.0 prescribes. By default every request gets a response.
	StrictNotifications bool
}

// DefaultServerInfo advertises tools, resources, prompts and logging.
func DefaultServerInfo(name, version string) ServerInfo {
	no := false
	return ServerInfo{
		Name:            name,
		Version:         version,
		ProtocolVersion: ProtocolVersion,
		Capabilities: ServerCapabilities{
			Tools:     &ToolCapabilities{ListChanged: &no},
			Resources: &ResourceCapabilities{Subscribe: &no, ListChanged: &no},
			Prompts:   &PromptCapabilities{ListChanged: &no},
			Logging:   &LoggingCapabilities{Level: "info"},
		},
		ServerInfo: map[string]any{
			"framework": "mcpcore",
			"version":   version,
		},
	}
}

// Server is the protocol handler. It routes each request by method and always
// produces a response; it holds no per-connection state (see Session).
type Server struct {
	info       ServerInfo
	tools      ToolHandler
	tasks      TaskRunner
	logger     *slog.Logger
	appContext any
	strict     bool

	mu        sync.RWMutex // guards resources and prompts
	resources []Resource
	prompts   []Prompt
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Tools == nil {
		return nil, errors.New("tool handler is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	info := cfg.Info
	if info.Name == "" {
		info = DefaultServerInfo("mcpcore", "dev")
	}
	if info.ProtocolVersion == "" {
		info.ProtocolVersion = ProtocolVersion
	}
	return &Server{
		info:       info,
		tools:      cfg.Tools,
		tasks:      cfg.Tasks,
		logger:     logger,
		appContext: cfg.AppContext,
		strict:     cfg.StrictNotifications,
	}, nil
}

func (s *Server) Info() ServerInfo { return s.info }

// RegisterResource adds a resource to resources/list.
func (s *Server) RegisterResource(r Resource) error {
	if r.URI == "" {
		return errors.New("resource uri is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.resources {
		if existing.URI == r.URI {
			return fmt.Errorf("resource '%s' already registered", r.URI)
		}
	}
	s.resources = append(s.resources, r)
	s.logger.Info("registered resource", "uri", r.URI)
	return nil
}

// RegisterPrompt adds a prompt to prompts/list.
func (s *Server) RegisterPrompt(p Prompt) error {
	if p.Name == "" {
		return errors.New("prompt name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.prompts {
		if existing.Name == p.Name {
			return fmt.Errorf("prompt '%s' already registered", p.Name)
		}
	}
	s.prompts = append(s.prompts, p)
	s.logger.Info("registered prompt", "prompt", p.Name)
	return nil
}

// Handle dispatches one request. It returns nil only for notifications when
// StrictNotifications is set; otherwise it always returns a response, even
// if a handler panics.
func (s *Server) Handle(ctx context.Context, req Request) (resp *Response) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("request handler panicked", "method", req.Method, "id", req.ID.String(), "panic", p)
			r := NewErrorResponse(req.ID, NewInternalError("internal error while handling "+req.Method))
			resp = &r
		}
		if resp != nil && s.strict && req.IsNotification() {
			resp = nil
		}
	}()

	if s.appContext != nil {
		ctx = WithAppContext(ctx, s.appContext)
	}

	r := s.dispatch(ctx, req)
	return &r
}

// dispatch routes a request to its handler.
func (s *Server) dispatch(ctx context.Context, req Request) Response {
	s.logger.Debug("MCP request", "method", req.Method, "id", req.ID.String())

	switch req.Method {
	case "":
		return NewErrorResponse(req.ID, NewInvalidRequest("method is required"))
	case "initialize":
		return s.handleInitialize(req)
	case "initialized", "notifications/initialized":
		return NewResponse(req.ID, json.RawMessage(`{}`))
	case "ping":
		return NewResponse(req.ID, json.RawMessage(`{}`))
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "resources/list":
		return s.handleResourcesList(req)
	case "resources/read":
		return NewErrorResponse(req.ID, &Error{Code: CodeMethodNotFound, Message: "resource reading not implemented"})
	case "prompts/list":
		return s.handlePromptsList(req)
	case "prompts/get":
		return NewErrorResponse(req.ID, &Error{Code: CodeMethodNotFound, Message: "prompt generation not implemented"})
	default:
		return NewErrorResponse(req.ID, NewMethodNotFound(req.Method))
	}
}

// result marshals v into a success response, or an internal error if v
// cannot be encoded.
func (s *Server) result(id RequestID, v any) Response {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encode result", "id", id.String(), "error", err)
		return NewErrorResponse(id, NewInternalError(err.Error()))
	}
	return NewResponse(id, data)
}

func (s *Server) handleInitialize(req Request) Response {
	if isEmptyJSON(req.Params) {
		return NewErrorResponse(req.ID, NewInvalidParams("invalid initialize request: missing parameters"))
	}
	var params InitializeRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return NewErrorResponse(req.ID, NewInvalidParams("invalid initialize request: "+err.Error()))
	}

	if params.ProtocolVersion != s.info.ProtocolVersion {
		s.logger.Warn("rejected initialize",
			"client", params.ClientInfo.Name,
			"protocol_version", params.ProtocolVersion,
		)
		return NewErrorResponse(req.ID, NewInvalidRequest(fmt.Sprintf(
			"unsupported protocol version %q (server supports %q)",
			params.ProtocolVersion, s.info.ProtocolVersion,
		)))
	}

	s.logger.Info("MCP session initialized",
		"client", params.ClientInfo.Name,
		"client_version", params.ClientInfo.Version,
		"protocol_version", params.ProtocolVersion,
	)

	return s.result(req.ID, InitializeResponse{
		ProtocolVersion: s.info.ProtocolVersion,
		Capabilities:    s.info.Capabilities,
		ServerInfo:      s.info,
	})
}

// parseList checks the optional cursor params shared by the */list methods.
// Results are never paginated, so the cursor itself is ignored.
func parseList(req Request) *Error {
	if isEmptyJSON(req.Params) {
		return nil
	}
	var params ListRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return NewInvalidParams(fmt.Sprintf("invalid %s request: %v", req.Method, err))
	}
	return nil
}

func (s *Server) handleToolsList(req Request) Response {
	if rpcErr := parseList(req); rpcErr != nil {
		return NewErrorResponse(req.ID, rpcErr)
	}
	tools := s.tools.List()
	s.logger.Debug("tools/list", "count", len(tools))
	return s.result(req.ID, ListToolsResponse{Tools: tools})
}

func (s *Server) handleToolsCall(ctx context.Context, req Request) Response {
	if isEmptyJSON(req.Params) {
		return NewErrorResponse(req.ID, NewInvalidParams("invalid call tool request: missing parameters"))
	}
	var params CallToolRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return NewErrorResponse(req.ID, NewInvalidParams("invalid call tool request: "+err.Error()))
	}
	if params.Name == "" {
		return NewErrorResponse(req.ID, NewInvalidParams("tool name is required"))
	}
	if params.Arguments == nil {
		params.Arguments = map[string]any{}
	}

	if s.tasks != nil && metaBool(req.Meta, MetaBackground) {
		return s.submitToolCall(ctx, req, params)
	}

	start := time.Now()
	result, err := s.tools.Execute(ctx, params.Name, params.Arguments)
	if err != nil {
		s.logger.Warn("tool call failed",
			"tool", params.Name,
			"id", req.ID.String(),
			"elapsed", time.Since(start),
			"error", err,
		)
		return NewErrorResponse(req.ID, toRPCError(err))
	}

	s.logger.Debug("tools/call complete", "tool", params.Name, "id", req.ID.String(), "elapsed", time.Since(start))
	return s.result(req.ID, result)
}

// submitToolCall validates the call now and runs it later on the TaskRunner.
// The response is a progress result naming the job.
func (s *Server) submitToolCall(ctx context.Context, req Request, params CallToolRequest) Response {
	if err := s.tools.Validate(params.Name, params.Arguments); err != nil {
		return NewErrorResponse(req.ID, toRPCError(err))
	}
	jobID, err := s.tasks.Submit(ctx, ToolExecutionRequest{
		ToolName:  params.Name,
		Args:      params.Arguments,
		RequestID: req.ID.String(),
	})
	if err != nil {
		s.logger.Error("enqueue tool call", "tool", params.Name, "error", err)
		return NewErrorResponse(req.ID, NewInternalError("failed to enqueue tool call: "+err.Error()))
	}

	s.logger.Info("tool call queued", "tool", params.Name, "job_id", jobID)

	body, err := json.Marshal(map[string]string{"job_id": jobID, "status": "pending"})
	if err != nil {
		return NewErrorResponse(req.ID, NewInternalError(err.Error()))
	}
	progress := true
	return s.result(req.ID, CallToolResponse{
		Content:    []Content{TextContent(string(body))},
		IsProgress: &progress,
	})
}

func (s *Server) handleResourcesList(req Request) Response {
	if rpcErr := parseList(req); rpcErr != nil {
		return NewErrorResponse(req.ID, rpcErr)
	}
	s.mu.RLock()
	resources := append([]Resource{}, s.resources...)
	s.mu.RUnlock()
	return s.result(req.ID, ListResourcesResponse{Resources: resources})
}

func (s *Server) handlePromptsList(req Request) Response {
	if rpcErr := parseList(req); rpcErr != nil {
		return NewErrorResponse(req.ID, rpcErr)
	}
	s.mu.RLock()
	prompts := append([]Prompt{}, s.prompts...)
	s.mu.RUnlock()
	return s.result(req.ID, ListPromptsResponse{Prompts: prompts})
}

func metaBool(meta map[string]json.RawMessage, key string) bool {
	raw, ok := meta[key]
	if !ok {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false
	}
	return b
}

// Session tracks the lifecycle of one connection (Uninitialized ->
// Initialized -> Closed). Dispatch never depends on it; it exists for
// logging and introspection.
type Session struct {
	ID     string
	server *Server
	logger *slog.Logger

	mu    sync.Mutex
	state SessionState
}

func (s *Server) NewSession(id string) *Session {
	return &Session{
		ID:     id,
		server: s,
		logger: s.logger.With("conn_id", id),
		state:  StateUninitialized,
	}
}

// Handle dispatches req through the server and records lifecycle changes.
func (ss *Session) Handle(ctx context.Context, req Request) *Response {
	resp := ss.server.Handle(ctx, req)
	if req.Method == "initialize" && resp != nil && !resp.IsError() {
		ss.mu.Lock()
		prev := ss.state
		ss.state = StateInitialized
		ss.mu.Unlock()
		if prev != StateInitialized {
			ss.logger.Debug("session state changed", "from", prev.String(), "to", StateInitialized.String())
		}
	}
	return resp
}

func (ss *Session) State() SessionState {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.state
}

func (ss *Session) Close() {
	ss.mu.Lock()
	ss.state = StateClosed
	ss.mu.Unlock()
}
