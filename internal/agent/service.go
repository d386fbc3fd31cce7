package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpoliachik/jpos-agent/internal/session"
	"github.com/jpoliachik/jpos-agent/internal/vault"
)

// VaultSyncer is the safety-net slice of the vault synchronizer.
type VaultSyncer interface {
	EnsureSynced(ctx context.Context) vault.SyncOutcome
}

// Service ties one interaction together: resolve the session for the
// external actor, run the runtime, record the returned session handle, and
// reconcile the vault before the reply is finalized. Every front-end
// (Telegram, HTTP API, cron) goes through here.
type Service struct {
	runner   Runner
	sessions *session.Store
	vault    VaultSyncer
	timeout  time.Duration
}

// NewService creates the orchestration service. timeout bounds one runtime
// invocation; zero means no limit.
func NewService(runner Runner, sessions *session.Store, syncer VaultSyncer, timeout time.Duration) *Service {
	return &Service{
		runner:   runner,
		sessions: sessions,
		vault:    syncer,
		timeout:  timeout,
	}
}

// Handle runs one interaction for externalID and returns the reply text.
// When the trailing vault reconciliation fails, the reply carries a visible
// warning instead of the whole interaction failing: the user's answer
// already exists and losing it over a push error would be worse.
func (s *Service) Handle(ctx context.Context, externalID, prompt, systemContext string, onProgress func(ProgressEvent)) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	sessionID, _ := s.sessions.Resolve(externalID)

	resp, runErr := s.runner.Run(ctx, Request{
		Prompt:        prompt,
		SystemContext: systemContext,
		SessionID:     sessionID,
		OnProgress:    onProgress,
	})
	if runErr == nil {
		s.sessions.Record(externalID, resp.SessionID)
	}

	// Safety net: the runtime may have written vault files through its own
	// tools without committing them, even on a run that ultimately failed.
	// Reconcile regardless of which path (if any) touched the vault, on a
	// fresh context so an interaction timeout cannot interrupt a git step
	// midway.
	syncCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	out := s.vault.EnsureSynced(syncCtx)
	if out.Status == vault.SyncFailed {
		slog.Warn("vault sync failed after interaction",
			slog.String("external_id", externalID),
			slog.String("error", out.Err))
	}

	if runErr != nil {
		return "", runErr
	}

	result := resp.Result
	if out.Status == vault.SyncFailed {
		result += fmt.Sprintf("\n\n⚠️ Vault sync failed: %s", out.Err)
	}
	return result, nil
}

// Reset drops the stored session for externalID so the next interaction
// starts a fresh conversation.
func (s *Service) Reset(externalID string) {
	s.sessions.Clear(externalID)
}
