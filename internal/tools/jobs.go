package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"procdexeh/mcpcore/internal/db"
	"procdexeh/mcpcore/internal/jobs"
	"procdexeh/mcpcore/internal/mcp"
)

func resultJSON(v any) (*mcp.CallToolResponse, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.TextResult(string(data)), nil
}

func ptr[T any](v T) *T { return &v }

var jobStatuses = []any{
	db.StatusPending, db.StatusInProgress, db.StatusCompleted, db.StatusFailed, db.StatusCancelled,
}

// jobTools exposes the background queue to callers.
type jobTools struct {
	queue *jobs.Queue
}

func (t *jobTools) jobStatus(ctx context.Context, args map[string]any) (*mcp.CallToolResponse, error) {
	id, _ := args["id"].(string)
	job, err := t.queue.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return resultJSON(job)
}

func (t *jobTools) listJobs(ctx context.Context, args map[string]any) (*mcp.CallToolResponse, error) {
	var opts db.ListOpts
	if status, ok := args["status"].(string); ok {
		opts.Status = &status
	}
	if tool, ok := args["tool"].(string); ok {
		opts.ToolName = &tool
	}
	if limit, ok := args["limit"].(float64); ok {
		opts.Limit = int(limit)
	}
	list, err := t.queue.List(ctx, opts)
	if err != nil {
		return nil, err
	}
	return resultJSON(list)
}

func (t *jobTools) cancelJob(ctx context.Context, args map[string]any) (*mcp.CallToolResponse, error) {
	id, _ := args["id"].(string)
	if err := t.queue.Cancel(ctx, id); err != nil {
		return nil, fmt.Errorf("cancel job: %w", err)
	}
	return resultJSON(map[string]string{"id": id, "status": db.StatusCancelled})
}

func (t *jobTools) deleteJob(ctx context.Context, args map[string]any) (*mcp.CallToolResponse, error) {
	id, _ := args["id"].(string)
	if err := t.queue.Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("delete job: %w", err)
	}
	return resultJSON(map[string]string{"id": id, "status": "deleted"})
}

func (t *jobTools) definitions() ([]mcp.Capability, error) {
	idSchema := func() *jsonschema.Schema {
		return &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"id": {Type: "string", Description: "Job ID returned by a background tools/call"},
			},
			Required: []string{"id"},
		}
	}

	specs := []struct {
		name, description string
		schema            *jsonschema.Schema
		fn                mcp.ToolFunc
	}{
		{"job_status", "Get a background job by ID", idSchema(), t.jobStatus},
		{"list_jobs", "List background jobs with optional filters", &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"status": {Type: "string", Description: "Filter by status", Enum: jobStatuses},
				"tool":   {Type: "string", Description: "Filter by tool name"},
				"limit":  {Type: "integer", Description: "Maximum number of jobs to return", Minimum: ptr(1.0)},
			},
		}, t.listJobs},
		{"cancel_job", "Cancel a background job that has not started", idSchema(), t.cancelJob},
		{"delete_job", "Delete a finished background job", idSchema(), t.deleteJob},
	}

	caps := make([]mcp.Capability, 0, len(specs))
	for _, s := range specs {
		tool, err := mcp.NewFuncTool(s.name, s.description, s.schema, s.fn, 0)
		if err != nil {
			return nil, err
		}
		caps = append(caps, tool)
	}
	return caps, nil
}
