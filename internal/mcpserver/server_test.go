package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jpoliachik/jpos-agent/internal/todoist"
)

// countingAPI records calls and returns canned payloads, so tests can assert
// that input errors never reach the remote API.
type countingAPI struct {
	calls    int
	lastTask todoist.Task
	fail     error
}

func (a *countingAPI) ListTasks(_ context.Context, _ todoist.TaskFilter) (json.RawMessage, error) {
	a.calls++
	if a.fail != nil {
		return nil, a.fail
	}
	return json.RawMessage(`[{"id":"1","content":"buy milk"}]`), nil
}

func (a *countingAPI) CreateTask(_ context.Context, task todoist.Task) (json.RawMessage, error) {
	a.calls++
	a.lastTask = task
	if a.fail != nil {
		return nil, a.fail
	}
	return json.RawMessage(`{"id":"2","content":"` + task.Content + `"}`), nil
}

func (a *countingAPI) CompleteTask(_ context.Context, _ string) (json.RawMessage, error) {
	a.calls++
	if a.fail != nil {
		return nil, a.fail
	}
	return json.RawMessage(`{"success":true}`), nil
}

func (a *countingAPI) ListProjects(_ context.Context) (json.RawMessage, error) {
	a.calls++
	if a.fail != nil {
		return nil, a.fail
	}
	return json.RawMessage(`[{"id":"p1","name":"Inbox"}]`), nil
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error
	switch name {
	case "todoist_list_tasks":
		result, err = srv.listTasks(ctx, req)
	case "todoist_create_task":
		result, err = srv.createTask(ctx, req)
	case "todoist_complete_task":
		result, err = srv.completeTask(ctx, req)
	case "todoist_list_projects":
		result, err = srv.listProjects(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListTasksForwardsFilter(t *testing.T) {
	api := &countingAPI{}
	srv := New(api)

	r := callTool(t, srv, "todoist_list_tasks", map[string]any{"filter": "today"})
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(r))
	}
	if api.calls != 1 {
		t.Errorf("api calls = %d, want 1", api.calls)
	}
	if !strings.Contains(resultText(r), "buy milk") {
		t.Errorf("result = %q", resultText(r))
	}
}

func TestCreateTaskMissingContent(t *testing.T) {
	api := &countingAPI{}
	srv := New(api)

	r := callTool(t, srv, "todoist_create_task", map[string]any{})
	if !r.IsError {
		t.Fatal("missing content should be an input error")
	}
	if api.calls != 0 {
		t.Errorf("input error reached the API: %d calls", api.calls)
	}
}

func TestCreateTaskForwardsOptionalFields(t *testing.T) {
	api := &countingAPI{}
	srv := New(api)

	r := callTool(t, srv, "todoist_create_task", map[string]any{
		"content":    "call dentist",
		"due_string": "tomorrow",
		"priority":   float64(4),
		"labels":     []any{"health"},
	})
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(r))
	}
	if api.lastTask.Content != "call dentist" || api.lastTask.DueString != "tomorrow" {
		t.Errorf("task = %+v", api.lastTask)
	}
	if api.lastTask.Priority != 4 {
		t.Errorf("priority = %d, want 4", api.lastTask.Priority)
	}
	if len(api.lastTask.Labels) != 1 || api.lastTask.Labels[0] != "health" {
		t.Errorf("labels = %v", api.lastTask.Labels)
	}
}

func TestCompleteTaskRequiresID(t *testing.T) {
	api := &countingAPI{}
	srv := New(api)

	r := callTool(t, srv, "todoist_complete_task", map[string]any{})
	if !r.IsError || api.calls != 0 {
		t.Errorf("missing task_id: isError=%v calls=%d", r.IsError, api.calls)
	}
}

func TestRemoteErrorBecomesToolError(t *testing.T) {
	api := &countingAPI{fail: fmt.Errorf("todoist API error: 503 Service Unavailable")}
	srv := New(api)

	r := callTool(t, srv, "todoist_list_projects", nil)
	if !r.IsError {
		t.Fatal("remote failure should surface as tool error")
	}
	if !strings.Contains(resultText(r), "503") {
		t.Errorf("error text = %q", resultText(r))
	}
}

func TestUnknownMethodOverProtocol(t *testing.T) {
	srv := New(&countingAPI{})

	resp := srv.MCPServer().HandleMessage(context.Background(),
		json.RawMessage(`{"jsonrpc":"2.0","id":7,"method":"bogus/method"}`))

	errResp, ok := resp.(mcp.JSONRPCError)
	if !ok {
		t.Fatalf("response type = %T, want JSONRPCError", resp)
	}
	if errResp.Error.Code != mcp.METHOD_NOT_FOUND {
		t.Errorf("code = %d, want %d", errResp.Error.Code, mcp.METHOD_NOT_FOUND)
	}
}

func TestUnknownToolOverProtocol(t *testing.T) {
	api := &countingAPI{}
	srv := New(api)

	resp := srv.MCPServer().HandleMessage(context.Background(),
		json.RawMessage(`{"jsonrpc":"2.0","id":8,"method":"tools/call","params":{"name":"nonexistent"}}`))

	errResp, ok := resp.(mcp.JSONRPCError)
	if !ok {
		t.Fatalf("response type = %T, want JSONRPCError", resp)
	}
	if errResp.Error.Code != mcp.INVALID_PARAMS {
		t.Errorf("code = %d, want %d", errResp.Error.Code, mcp.INVALID_PARAMS)
	}
	if api.calls != 0 {
		t.Errorf("API calls = %d, want 0 for unknown tool", api.calls)
	}
}

func TestMalformedLineGetsNullIDError(t *testing.T) {
	srv := New(&countingAPI{})

	resp := srv.MCPServer().HandleMessage(context.Background(),
		json.RawMessage(`{this is not json`))
	if resp == nil {
		t.Fatal("malformed input must still produce a response")
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"id":null`) {
		t.Errorf("response = %s, want null id", data)
	}
	if !strings.Contains(string(data), `"error"`) {
		t.Errorf("response = %s, want error shape", data)
	}
}

func TestToolsListCatalog(t *testing.T) {
	srv := New(&countingAPI{})

	resp := srv.MCPServer().HandleMessage(context.Background(),
		json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{
		"todoist_list_tasks", "todoist_create_task",
		"todoist_complete_task", "todoist_list_projects",
	} {
		if !strings.Contains(string(data), name) {
			t.Errorf("catalog missing %s: %s", name, data)
		}
	}
}
