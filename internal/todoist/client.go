// Package todoist is a minimal client for the Todoist REST v2 API, covering
// the surface the tool-protocol server exposes.
package todoist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// DefaultBaseURL is the production REST v2 endpoint.
const DefaultBaseURL = "https://api.todoist.com/rest/v2"

// Client talks to the Todoist REST API with a bearer credential.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a Client. A nil httpClient defaults to http.DefaultClient
// and an empty baseURL to DefaultBaseURL.
func NewClient(token, baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

// APIError is a non-2xx response from the remote API, carrying the status
// so callers can distinguish client mistakes from outages.
type APIError struct {
	StatusCode int
	Status     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("todoist API error: %s", e.Status)
}

// TaskFilter narrows ListTasks. Zero values are omitted from the query.
type TaskFilter struct {
	ProjectID string
	Label     string
	// Filter is a Todoist filter expression, e.g. "today" or "overdue".
	Filter string
}

// Task is a task creation payload. Content is the only required field.
type Task struct {
	Content     string   `json:"content"`
	Description string   `json:"description,omitempty"`
	DueString   string   `json:"due_string,omitempty"`
	Priority    int      `json:"priority,omitempty"`
	ProjectID   string   `json:"project_id,omitempty"`
	Labels      []string `json:"labels,omitempty"`
}

// ListTasks returns the raw JSON for tasks matching the filter.
func (c *Client) ListTasks(ctx context.Context, filter TaskFilter) (json.RawMessage, error) {
	q := url.Values{}
	if filter.ProjectID != "" {
		q.Set("project_id", filter.ProjectID)
	}
	if filter.Label != "" {
		q.Set("label", filter.Label)
	}
	if filter.Filter != "" {
		q.Set("filter", filter.Filter)
	}
	endpoint := "/tasks"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	return c.do(ctx, http.MethodGet, endpoint, nil)
}

// CreateTask creates a task and returns the created resource.
func (c *Client) CreateTask(ctx context.Context, task Task) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/tasks", task)
}

// CompleteTask closes the task with the given id.
func (c *Client) CompleteTask(ctx context.Context, taskID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(taskID)+"/close", nil)
}

// ListProjects returns the raw JSON for all projects.
func (c *Client) ListProjects(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/projects", nil)
}

// do issues one request. A 204 is a generic success marker, not a body to
// parse. Any other non-2xx status becomes an *APIError.
func (c *Client) do(ctx context.Context, method, endpoint string, body any) (json.RawMessage, error) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("todoist: marshal request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, payload)
	if err != nil {
		return nil, fmt.Errorf("todoist: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("todoist: %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	if resp.StatusCode == http.StatusNoContent {
		return json.RawMessage(`{"success":true}`), nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("todoist: read response: %w", err)
	}
	return json.RawMessage(data), nil
}
