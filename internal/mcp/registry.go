package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// DefaultToolTimeout bounds a tool call when the tool does not declare its own.
const DefaultToolTimeout = 30 * time.Second

// Capability is the contract every tool implementation satisfies.
// Implementations are shared between concurrent calls and must be safe for
// concurrent use.
type Capability interface {
	Definition() Tool
	Execute(ctx context.Context, args map[string]any) (*CallToolResponse, error)
	ValidateArgs(args map[string]any) error
}

// Timeouter is implemented by tools that need a bound other than the
// registry default.
type Timeouter interface {
	Timeout() time.Duration
}

// Registry maps tool names to implementations. Lookups and executions take
// the read lock only; Register and Unregister take the write lock.
// It implements ToolHandler.
type Registry struct {
	mu             sync.RWMutex
	tools          map[string]Capability
	defaultTimeout time.Duration
	logger         *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:          make(map[string]Capability),
		defaultTimeout: DefaultToolTimeout,
		logger:         logger,
	}
}

// SetDefaultTimeout changes the bound used for tools without a Timeout method.
// Non-positive values restore DefaultToolTimeout.
func (r *Registry) SetDefaultTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultToolTimeout
	}
	r.mu.Lock()
	r.defaultTimeout = d
	r.mu.Unlock()
}

// Register stores tool under the name from its definition.
func (r *Registry) Register(tool Capability) error {
	return r.RegisterAs(tool.Definition().Name, tool)
}

// RegisterAs stores tool under name. It fails with ErrToolExists if the name
// is taken; the existing tool is left untouched.
func (r *Registry) RegisterAs(name string, tool Capability) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("tool name is required")
	}
	if tool == nil {
		return fmt.Errorf("tool '%s': implementation is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return &ToolError{Kind: ErrToolExists, Tool: name}
	}
	r.tools[name] = tool
	r.logger.Debug("registered tool", "tool", name)
	return nil
}

// Unregister removes a tool. It reports whether the tool existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tools[name]
	delete(r.tools, name)
	return ok
}

func (r *Registry) Lookup(name string) (Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns the definitions of all registered tools ordered by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defs := make([]Tool, 0, len(r.tools))
	for name, t := range r.tools {
		def := t.Definition()
		def.Name = name
		defs = append(defs, def)
	}
	r.mu.RUnlock()

	slices.SortFunc(defs, func(a, b Tool) int { return strings.Compare(a.Name, b.Name) })
	return defs
}

func (r *Registry) Contains(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Validate runs the lookup and argument checks of Execute without running
// the tool.
func (r *Registry) Validate(name string, args map[string]any) error {
	_, err := r.prepare(name, args)
	return err
}

func (r *Registry) prepare(name string, args map[string]any) (Capability, error) {
	tool, ok := r.Lookup(name)
	if !ok {
		return nil, &ToolError{Kind: ErrToolNotFound, Tool: name}
	}
	if err := tool.ValidateArgs(args); err != nil {
		return nil, &ToolError{Kind: ErrInvalidParams, Tool: name, Err: err}
	}
	return tool, nil
}

type toolOutcome struct {
	resp *CallToolResponse
	err  error
}

// Execute validates args and runs the named tool under its timeout.
// When the timeout fires first the caller gets ErrToolTimeout immediately;
// the tool's context is cancelled and whatever it returns later is dropped.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (*CallToolResponse, error) {
	if args == nil {
		args = map[string]any{}
	}
	tool, err := r.prepare(name, args)
	if err != nil {
		return nil, err
	}

	timeout := r.timeoutFor(tool)
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Buffered so a tool finishing after the timeout never blocks.
	done := make(chan toolOutcome, 1)
	start := time.Now()

	go func() {
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("tool panicked", "tool", name, "panic", p)
				done <- toolOutcome{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		resp, err := tool.Execute(ctx, args)
		done <- toolOutcome{resp: resp, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if parent.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, &ToolError{Kind: ErrToolTimeout, Tool: name, Timeout: timeout, Err: out.err}
			}
			return nil, &ToolError{Kind: ErrToolFailed, Tool: name, Err: out.err}
		}
		if out.resp == nil {
			out.resp = &CallToolResponse{Content: []Content{}}
		}
		r.logger.Debug("tool completed", "tool", name, "elapsed", time.Since(start))
		return out.resp, nil

	case <-ctx.Done():
		if err := parent.Err(); err != nil {
			return nil, &ToolError{Kind: ErrToolFailed, Tool: name, Err: err}
		}
		r.logger.Warn("tool timed out", "tool", name, "timeout", timeout)
		return nil, &ToolError{Kind: ErrToolTimeout, Tool: name, Timeout: timeout, Err: ctx.Err()}
	}
}

func (r *Registry) timeoutFor(tool Capability) time.Duration {
	if t, ok := tool.(Timeouter); ok {
		if d := t.Timeout(); d > 0 {
			return d
		}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultTimeout
}
