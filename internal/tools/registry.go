package tools

import (
	"fmt"
	"log/slog"

	"procdexeh/mcpcore/internal/jobs"
	"procdexeh/mcpcore/internal/mcp"
)

// AppContext is what the host hands to tool constructors and, through
// mcp.Config.AppContext, to every tool call.
type AppContext struct {
	Environment string
	Logger      *slog.Logger
	Jobs        *jobs.Queue // nil when background jobs are disabled
}

// Builtins returns the reference tools plus, when a job queue is configured,
// the job inspection tools.
func Builtins(app *AppContext) ([]mcp.Capability, error) {
	caps := []mcp.Capability{Echo{}, Calculate{}}
	if app != nil && app.Jobs != nil {
		jt := &jobTools{queue: app.Jobs}
		defs, err := jt.definitions()
		if err != nil {
			return nil, fmt.Errorf("job tools: %w", err)
		}
		caps = append(caps, defs...)
	}
	return caps, nil
}

// RegisterBuiltins adds Builtins to reg.
func RegisterBuiltins(reg *mcp.Registry, app *AppContext) error {
	caps, err := Builtins(app)
	if err != nil {
		return err
	}
	for _, c := range caps {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("register %s: %w", c.Definition().Name, err)
		}
	}
	return nil
}
