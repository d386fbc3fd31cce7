package todoist

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// recorded captures the last request the stub server saw.
type recorded struct {
	count  int
	method string
	path   string
	query  string
	auth   string
	body   []byte
}

func stubServer(t *testing.T, status int, response string) (*Client, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.count++
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.query = r.URL.RawQuery
		rec.auth = r.Header.Get("Authorization")
		rec.body, _ = io.ReadAll(r.Body)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return NewClient("secret-token", srv.URL, srv.Client()), rec
}

func TestListTasksWithFilter(t *testing.T) {
	c, rec := stubServer(t, http.StatusOK, `[{"id":"1","content":"buy milk"}]`)

	out, err := c.ListTasks(context.Background(), TaskFilter{Filter: "today", Label: "errand"})
	if err != nil {
		t.Fatal(err)
	}
	if rec.method != http.MethodGet || rec.path != "/tasks" {
		t.Errorf("request = %s %s", rec.method, rec.path)
	}
	if rec.query != "filter=today&label=errand" {
		t.Errorf("query = %q", rec.query)
	}
	if rec.auth != "Bearer secret-token" {
		t.Errorf("auth = %q", rec.auth)
	}

	var tasks []map[string]any
	if err := json.Unmarshal(out, &tasks); err != nil || len(tasks) != 1 {
		t.Errorf("unexpected payload %s", out)
	}
}

func TestCreateTaskPayload(t *testing.T) {
	c, rec := stubServer(t, http.StatusOK, `{"id":"2"}`)

	_, err := c.CreateTask(context.Background(), Task{
		Content:   "call dentist",
		DueString: "tomorrow",
		Priority:  3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.method != http.MethodPost || rec.path != "/tasks" {
		t.Errorf("request = %s %s", rec.method, rec.path)
	}

	var got map[string]any
	if err := json.Unmarshal(rec.body, &got); err != nil {
		t.Fatal(err)
	}
	if got["content"] != "call dentist" || got["due_string"] != "tomorrow" {
		t.Errorf("body = %s", rec.body)
	}
	if _, ok := got["description"]; ok {
		t.Error("empty optional field was serialized")
	}
}

func TestCompleteTaskNoContent(t *testing.T) {
	c, rec := stubServer(t, http.StatusNoContent, "")

	out, err := c.CompleteTask(context.Background(), "42")
	if err != nil {
		t.Fatal(err)
	}
	if rec.path != "/tasks/42/close" {
		t.Errorf("path = %q", rec.path)
	}

	// 204 is a success marker, not a parse attempt.
	var ok struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(out, &ok); err != nil || !ok.Success {
		t.Errorf("204 result = %s", out)
	}
}

func TestNon2xxBecomesAPIError(t *testing.T) {
	c, _ := stubServer(t, http.StatusForbidden, `{"error":"denied"}`)

	_, err := c.ListProjects(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", apiErr.StatusCode)
	}
}
