// Package mcpserver exposes the Todoist tool catalog to the agent runtime
// over MCP stdio transport: one JSON object per line in, one correlated
// response per line out.
package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jpoliachik/jpos-agent/internal/todoist"
)

// API is the slice of the Todoist client the tools need. Narrow so tests can
// substitute a request-counting stub.
type API interface {
	ListTasks(ctx context.Context, filter todoist.TaskFilter) (json.RawMessage, error)
	CreateTask(ctx context.Context, task todoist.Task) (json.RawMessage, error)
	CompleteTask(ctx context.Context, taskID string) (json.RawMessage, error)
	ListProjects(ctx context.Context) (json.RawMessage, error)
}

// Server wraps the MCP server with the Todoist tools.
type Server struct {
	mcp *server.MCPServer
	api API
}

// New creates an MCP server with the full tool catalog registered. The
// catalog is static: capability negotiation advertises exactly these four
// tools and nothing is added at runtime.
func New(api API) *Server {
	s := &Server{api: api}

	s.mcp = server.NewMCPServer(
		"todoist-mcp",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s.mcp.AddTool(mcp.NewTool("todoist_list_tasks",
		mcp.WithDescription("List tasks from Todoist. Optionally filter by project or label."),
		mcp.WithString("project_id", mcp.Description("Filter by project ID")),
		mcp.WithString("label", mcp.Description("Filter by label name")),
		mcp.WithString("filter", mcp.Description("Todoist filter query (e.g., 'today', 'overdue')")),
	), s.listTasks)

	s.mcp.AddTool(mcp.NewTool("todoist_create_task",
		mcp.WithDescription("Create a new task in Todoist"),
		mcp.WithString("content", mcp.Required(), mcp.Description("Task title/content")),
		mcp.WithString("description", mcp.Description("Task description")),
		mcp.WithString("due_string", mcp.Description("Due date (e.g., 'tomorrow', 'next monday')")),
		mcp.WithNumber("priority", mcp.Description("Priority 1-4 (4 is highest)")),
		mcp.WithString("project_id", mcp.Description("Project ID to add task to")),
		mcp.WithArray("labels", mcp.Description("Labels to add"), mcp.Items(map[string]any{"type": "string"})),
	), s.createTask)

	s.mcp.AddTool(mcp.NewTool("todoist_complete_task",
		mcp.WithDescription("Mark a task as complete"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task ID to complete")),
	), s.completeTask)

	s.mcp.AddTool(mcp.NewTool("todoist_list_projects",
		mcp.WithDescription("List all projects in Todoist"),
	), s.listProjects)

	return s
}

// ServeStdio starts the server on stdin/stdout. The loop survives malformed
// input lines: a bad line yields an error response with a null id and the
// next line is processed normally.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := todoist.TaskFilter{
		ProjectID: req.GetString("project_id", ""),
		Label:     req.GetString("label", ""),
		Filter:    req.GetString("filter", ""),
	}
	out, err := s.api.ListTasks(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(out), nil
}

func (s *Server) createTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		// Client-input error: rejected here, never forwarded to the API.
		return mcp.NewToolResultError(err.Error()), nil
	}

	task := todoist.Task{
		Content:     content,
		Description: req.GetString("description", ""),
		DueString:   req.GetString("due_string", ""),
		Priority:    req.GetInt("priority", 0),
		ProjectID:   req.GetString("project_id", ""),
		Labels:      req.GetStringSlice("labels", nil),
	}
	out, err := s.api.CreateTask(ctx, task)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(out), nil
}

func (s *Server) completeTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := req.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := s.api.CompleteTask(ctx, taskID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(out), nil
}

func (s *Server) listProjects(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := s.api.ListProjects(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(out), nil
}

// jsonResult re-indents the raw API payload for readability in the agent's
// tool transcript.
func jsonResult(raw json.RawMessage) *mcp.CallToolResult {
	var buf any
	if err := json.Unmarshal(raw, &buf); err != nil {
		return mcp.NewToolResultText(string(raw))
	}
	pretty, err := json.MarshalIndent(buf, "", "  ")
	if err != nil {
		return mcp.NewToolResultText(string(raw))
	}
	return mcp.NewToolResultText(string(pretty))
}
