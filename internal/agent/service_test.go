package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jpoliachik/jpos-agent/internal/session"
	"github.com/jpoliachik/jpos-agent/internal/vault"
)

type fakeRunner struct {
	lastReq Request
	resp    Response
	err     error
}

func (f *fakeRunner) Run(_ context.Context, req Request) (Response, error) {
	f.lastReq = req
	return f.resp, f.err
}

type fakeSyncer struct {
	outcome vault.SyncOutcome
	calls   int
}

func (f *fakeSyncer) EnsureSynced(context.Context) vault.SyncOutcome {
	f.calls++
	return f.outcome
}

func testService(t *testing.T, runner Runner, syncer VaultSyncer) (*Service, *session.Store) {
	t.Helper()
	sessions := session.NewStore(time.Hour, time.Hour, nil)
	t.Cleanup(sessions.Stop)
	return NewService(runner, sessions, syncer, 0), sessions
}

func TestHandleRecordsSession(t *testing.T) {
	runner := &fakeRunner{resp: Response{Result: "hi there", SessionID: "sess-1"}}
	syncer := &fakeSyncer{outcome: vault.SyncOutcome{Status: vault.SyncAlreadyClean}}
	svc, sessions := testService(t, runner, syncer)

	out, err := svc.Handle(context.Background(), "telegram:42", "hello", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if out != "hi there" {
		t.Errorf("result = %q", out)
	}
	if h, ok := sessions.Resolve("telegram:42"); !ok || h != "sess-1" {
		t.Errorf("stored session = %q, %v", h, ok)
	}
	if runner.lastReq.SessionID != "" {
		t.Errorf("first turn resumed session %q", runner.lastReq.SessionID)
	}
}

func TestHandleResumesSession(t *testing.T) {
	runner := &fakeRunner{resp: Response{Result: "ok", SessionID: "sess-2"}}
	syncer := &fakeSyncer{outcome: vault.SyncOutcome{Status: vault.SyncAlreadyClean}}
	svc, sessions := testService(t, runner, syncer)
	sessions.Record("telegram:42", "sess-1")

	if _, err := svc.Handle(context.Background(), "telegram:42", "again", "", nil); err != nil {
		t.Fatal(err)
	}
	if runner.lastReq.SessionID != "sess-1" {
		t.Errorf("resumed session = %q, want sess-1", runner.lastReq.SessionID)
	}
	// Handle stores the refreshed handle.
	if h, _ := sessions.Resolve("telegram:42"); h != "sess-2" {
		t.Errorf("stored session = %q, want sess-2", h)
	}
}

func TestHandleRunsSafetyNet(t *testing.T) {
	runner := &fakeRunner{resp: Response{Result: "done", SessionID: "s"}}
	syncer := &fakeSyncer{outcome: vault.SyncOutcome{Status: vault.SyncPushed, Actions: []string{"stage", "commit", "push"}}}
	svc, _ := testService(t, runner, syncer)

	out, err := svc.Handle(context.Background(), "api:default", "x", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if syncer.calls != 1 {
		t.Errorf("EnsureSynced calls = %d, want 1", syncer.calls)
	}
	if out != "done" {
		t.Errorf("successful sync should not annotate the reply: %q", out)
	}
}

func TestHandleAppendsSyncWarning(t *testing.T) {
	runner := &fakeRunner{resp: Response{Result: "done", SessionID: "s"}}
	syncer := &fakeSyncer{outcome: vault.SyncOutcome{Status: vault.SyncFailed, Err: "vault push: remote hung up"}}
	svc, _ := testService(t, runner, syncer)

	out, err := svc.Handle(context.Background(), "api:default", "x", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "done") {
		t.Errorf("reply lost: %q", out)
	}
	if !strings.Contains(out, "Vault sync failed") || !strings.Contains(out, "remote hung up") {
		t.Errorf("missing warning annotation: %q", out)
	}
}

func TestHandleRunnerErrorSkipsRecord(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("runtime crashed")}
	syncer := &fakeSyncer{outcome: vault.SyncOutcome{Status: vault.SyncAlreadyClean}}
	svc, sessions := testService(t, runner, syncer)

	if _, err := svc.Handle(context.Background(), "u1", "x", "", nil); err == nil {
		t.Fatal("expected error")
	}
	if sessions.Len() != 0 {
		t.Error("failed run recorded a session")
	}
	// The runtime may have touched the vault before failing.
	if syncer.calls != 1 {
		t.Errorf("EnsureSynced calls = %d, want 1 even on failure", syncer.calls)
	}
}

func TestReset(t *testing.T) {
	svc, sessions := testService(t, &fakeRunner{}, &fakeSyncer{})
	sessions.Record("u1", "h1")
	svc.Reset("u1")
	if _, ok := sessions.Resolve("u1"); ok {
		t.Error("session survived reset")
	}
}
