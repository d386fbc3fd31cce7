package agent

import (
	"strings"
	"testing"
)

func TestParseStreamCapturesSessionAndResult(t *testing.T) {
	stream := strings.Join([]string{
		`{"type":"system","subtype":"init","session_id":"sess-9"}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"thinking..."}]}}`,
		`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"mcp__todoist__todoist_create_task"}]}}`,
		`{"type":"result","subtype":"success","result":"Task created."}`,
	}, "\n") + "\n"

	var events []ProgressEvent
	resp, err := parseStream(strings.NewReader(stream), func(ev ProgressEvent) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.SessionID != "sess-9" {
		t.Errorf("session = %q", resp.SessionID)
	}
	if resp.Result != "Task created." {
		t.Errorf("result = %q", resp.Result)
	}

	if len(events) != 3 {
		t.Fatalf("events = %v", events)
	}
	if events[0].Type != "start" || events[2].Type != "done" {
		t.Errorf("event order = %v", events)
	}
	if events[1].Message != "Creating Todoist task" {
		t.Errorf("tool progress = %q, want friendly name", events[1].Message)
	}
}

func TestParseStreamFallsBackToAssistantText(t *testing.T) {
	stream := `{"type":"system","subtype":"init","session_id":"s"}` + "\n" +
		`{"type":"assistant","message":{"content":[{"type":"text","text":"partial answer"}]}}` + "\n"

	resp, err := parseStream(strings.NewReader(stream), nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Result != "partial answer" {
		t.Errorf("result = %q", resp.Result)
	}
}

func TestParseStreamSkipsGarbageLines(t *testing.T) {
	stream := "not json at all\n" +
		`{"type":"system","subtype":"init","session_id":"s"}` + "\n" +
		`{"type":"result","result":"fine"}` + "\n"

	resp, err := parseStream(strings.NewReader(stream), nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.SessionID != "s" || resp.Result != "fine" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestFriendlyToolNamePassthrough(t *testing.T) {
	if got := friendlyToolName("Bash"); got != "Running commands" {
		t.Errorf("Bash = %q", got)
	}
	if got := friendlyToolName("SomethingNew"); got != "SomethingNew" {
		t.Errorf("unknown tool = %q, want passthrough", got)
	}
}
