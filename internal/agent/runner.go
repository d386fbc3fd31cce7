// Package agent orchestrates interactions with the external agent runtime:
// session continuity in, prompt out, streamed progress back, and a vault
// reconciliation after every run.
package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
)

// ProgressEvent is a user-facing progress notification emitted while the
// runtime works.
type ProgressEvent struct {
	Type     string // start, tool_call, done
	ToolName string
	Message  string
}

// Request is one prompt for the runtime. SessionID, when set, resumes a
// prior conversation.
type Request struct {
	Prompt        string
	SystemContext string
	SessionID     string
	OnProgress    func(ProgressEvent)
}

// Response carries the runtime's final text and the session handle to store
// for the next turn.
type Response struct {
	Result    string
	SessionID string
}

// Runner invokes the agent runtime. The CLI implementation is the production
// one; tests inject fakes.
type Runner interface {
	Run(ctx context.Context, req Request) (Response, error)
}

// friendlyToolNames maps runtime tool identifiers to short progress labels.
var friendlyToolNames = map[string]string{
	"Read":      "Reading files",
	"Write":     "Writing files",
	"Edit":      "Editing files",
	"Bash":      "Running commands",
	"Glob":      "Searching files",
	"Grep":      "Searching code",
	"WebSearch": "Searching the web",
	"WebFetch":  "Fetching web content",

	"mcp__todoist__todoist_create_task":   "Creating Todoist task",
	"mcp__todoist__todoist_list_tasks":    "Checking Todoist tasks",
	"mcp__todoist__todoist_complete_task": "Completing Todoist task",
	"mcp__todoist__todoist_list_projects": "Listing Todoist projects",
}

func friendlyToolName(name string) string {
	if friendly, ok := friendlyToolNames[name]; ok {
		return friendly
	}
	return name
}

// CLIRunner executes the agent runtime binary in print mode with
// line-delimited JSON events on stdout.
type CLIRunner struct {
	Command string
	Args    []string
	Workdir string
}

// streamEvent is one line of the runtime's JSON event stream.
type streamEvent struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`
	Result    string `json:"result"`
	Message   *struct {
		Content []contentBlock `json:"content"`
	} `json:"message"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Name string `json:"name"`
}

// Run executes one runtime invocation and folds its event stream into a
// Response. The final "result" event wins; the last assistant text block is
// the fallback when the stream ends without one.
func (r *CLIRunner) Run(ctx context.Context, req Request) (Response, error) {
	prompt := req.Prompt
	if req.SystemContext != "" {
		prompt = req.SystemContext + "\n\n" + req.Prompt
	}

	args := append([]string{}, r.Args...)
	args = append(args, "-p", "--output-format", "stream-json", "--verbose")
	if req.SessionID != "" {
		args = append(args, "--resume", req.SessionID)
	}
	args = append(args, prompt)

	cmd := exec.CommandContext(ctx, r.Command, args...)
	cmd.Dir = r.Workdir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Response{}, fmt.Errorf("agent: stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return Response{}, fmt.Errorf("agent: start %s: %w", r.Command, err)
	}

	resp, parseErr := parseStream(stdout, req.OnProgress)

	if err := cmd.Wait(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return Response{}, fmt.Errorf("agent: %s: %w", r.Command, err)
		}
		return Response{}, fmt.Errorf("agent: %s: %w: %s", r.Command, err, msg)
	}
	if parseErr != nil {
		return Response{}, parseErr
	}
	if resp.SessionID == "" {
		return Response{}, fmt.Errorf("agent: no session id received from runtime")
	}
	return resp, nil
}

// parseStream consumes line-delimited JSON events. Unparseable lines are
// logged and skipped so a single noisy line cannot sink the run.
func parseStream(r io.Reader, onProgress func(ProgressEvent)) (Response, error) {
	var resp Response

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev streamEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			slog.Debug("skipping unparseable runtime event", slog.String("error", err.Error()))
			continue
		}

		switch ev.Type {
		case "system":
			if ev.Subtype == "init" && ev.SessionID != "" {
				resp.SessionID = ev.SessionID
				emit(onProgress, ProgressEvent{Type: "start", Message: "Processing..."})
			}
		case "assistant":
			if ev.Message == nil {
				continue
			}
			for _, block := range ev.Message.Content {
				switch block.Type {
				case "text":
					resp.Result = block.Text
				case "tool_use":
					slog.Debug("runtime tool call", slog.String("tool", block.Name))
					emit(onProgress, ProgressEvent{
						Type:     "tool_call",
						ToolName: block.Name,
						Message:  friendlyToolName(block.Name),
					})
				}
			}
		case "result":
			if ev.Result != "" {
				resp.Result = ev.Result
			}
			emit(onProgress, ProgressEvent{Type: "done", Message: "Complete"})
		}
	}
	if err := scanner.Err(); err != nil {
		return Response{}, fmt.Errorf("agent: read event stream: %w", err)
	}
	return resp, nil
}

func emit(onProgress func(ProgressEvent), ev ProgressEvent) {
	if onProgress != nil {
		onProgress(ev)
	}
}
