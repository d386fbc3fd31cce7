// Package vault keeps a local working copy of the remote note repository in
// sync: clone-or-pull readiness, append-style writes with duplicate
// suppression, and a safety-net reconciliation that never leaves the copy
// dirty after a logical operation.
package vault

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Sync outcome statuses reported by EnsureSynced.
const (
	SyncAlreadyClean = "already_clean"
	SyncPushed       = "pushed"
	SyncFailed       = "failed"
)

// AutoSyncMessage is the commit message used when the safety net finds
// uncommitted changes it cannot attribute to a specific operation.
const AutoSyncMessage = "auto-sync: vault changes"

// Config describes the remote repository and local working copy.
type Config struct {
	RemoteURL string
	Path      string
	Branch    string
	NotesDir  string
	Timezone  string

	// Token authenticates HTTPS remotes. When empty and SSHKeyB64 is set, the
	// key is installed for SSH access and KnownHost is registered before the
	// first clone.
	Token     string
	SSHKeyB64 string
	KnownHost string
}

// SyncStatus reports the working copy's divergence from its upstream.
type SyncStatus struct {
	Dirty bool // uncommitted changes present
	Ahead int  // commits not yet pushed
}

// Clean reports whether there is nothing to commit or push.
func (s SyncStatus) Clean() bool { return !s.Dirty && s.Ahead == 0 }

// SyncOutcome is the structured result of EnsureSynced. It is a value, never
// an error: callers degrade gracefully (warn in the reply) rather than abort.
type SyncOutcome struct {
	Status  string   `json:"status"`
	Actions []string `json:"actions,omitempty"`
	Err     string   `json:"error,omitempty"`
}

// Synchronizer manages one working copy. It holds no internal locking: the
// deployment is single-actor and all vault-mutating flows are expected to be
// low-concurrency. A multi-actor deployment must serialize calls externally.
type Synchronizer struct {
	cfg  Config
	loc  *time.Location
	run  Runner
	home string

	scanHost func(ctx context.Context, host string) ([]byte, error)
	now      func() time.Time
}

// New creates a Synchronizer. The configured timezone is resolved once here;
// all date partitioning and time rendering uses it, never the host zone.
func New(cfg Config, run Runner) (*Synchronizer, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("vault: load timezone %q: %w", cfg.Timezone, err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("vault: resolve home dir: %w", err)
	}
	if run == nil {
		run = NewGitRunner()
	}
	return &Synchronizer{
		cfg:      cfg,
		loc:      loc,
		run:      run,
		home:     home,
		scanHost: scanHostKey,
		now:      time.Now,
	}, nil
}

// Path returns the working copy directory.
func (s *Synchronizer) Path() string { return s.cfg.Path }

// EnsureReady guarantees a current working copy: clones on first use,
// otherwise pulls with rebase so remote history folds in without a merge
// commit. Must run before any read or write that depends on current content.
func (s *Synchronizer) EnsureReady(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(s.cfg.Path, ".git")); err == nil {
		return s.Pull(ctx)
	}

	if err := s.setupAuth(ctx); err != nil {
		return err
	}

	slog.Info("cloning vault", slog.String("path", s.cfg.Path))
	args := []string{"clone"}
	if s.cfg.Branch != "" {
		args = append(args, "--branch", s.cfg.Branch)
	}
	args = append(args, s.cloneURL(), s.cfg.Path)
	if _, err := s.run.Run(ctx, "", args...); err != nil {
		return fmt.Errorf("vault clone: %w", err)
	}
	return nil
}

// Pull rebases the working copy onto the remote tracking branch.
func (s *Synchronizer) Pull(ctx context.Context) error {
	if _, err := s.run.Run(ctx, s.cfg.Path, "pull", "--rebase"); err != nil {
		return fmt.Errorf("vault pull: %w", err)
	}
	return nil
}

// CommitAndPush stages everything, commits with message, and pushes. Each
// step is a discrete git call and the error names the step that failed, so
// "nothing happened" is distinguishable from "committed but not pushed".
func (s *Synchronizer) CommitAndPush(ctx context.Context, message string) error {
	if _, err := s.run.Run(ctx, s.cfg.Path, "add", "-A"); err != nil {
		return fmt.Errorf("vault stage: %w", err)
	}
	if _, err := s.run.Run(ctx, s.cfg.Path, "commit", "-m", message); err != nil {
		return fmt.Errorf("vault commit: %w", err)
	}
	if _, err := s.run.Run(ctx, s.cfg.Path, "push"); err != nil {
		return fmt.Errorf("vault push: %w", err)
	}
	return nil
}

// Status reports uncommitted changes and unpushed commits relative to the
// upstream tracking ref.
func (s *Synchronizer) Status(ctx context.Context) (SyncStatus, error) {
	out, err := s.run.Run(ctx, s.cfg.Path, "status", "--porcelain")
	if err != nil {
		return SyncStatus{}, fmt.Errorf("vault status: %w", err)
	}
	st := SyncStatus{Dirty: strings.TrimSpace(out) != ""}

	out, err = s.run.Run(ctx, s.cfg.Path, "rev-list", "--count", "@{u}..HEAD")
	if err != nil {
		return SyncStatus{}, fmt.Errorf("vault rev-list: %w", err)
	}
	ahead, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return SyncStatus{}, fmt.Errorf("vault rev-list: parse %q: %w", out, err)
	}
	st.Ahead = ahead
	return st, nil
}

// EnsureSynced is the safety net run after any interaction that might have
// touched the vault, including writes made by the agent runtime outside this
// package. A clean copy is reported as-is with no git mutation. Otherwise
// uncommitted changes are committed under AutoSyncMessage and a push is
// always attempted. Failures are reported in the outcome, never returned:
// the caller appends a warning to the user-visible reply instead of aborting.
func (s *Synchronizer) EnsureSynced(ctx context.Context) SyncOutcome {
	st, err := s.Status(ctx)
	if err != nil {
		return SyncOutcome{Status: SyncFailed, Err: err.Error()}
	}
	if st.Clean() {
		return SyncOutcome{Status: SyncAlreadyClean}
	}

	var actions []string
	if st.Dirty {
		if _, err := s.run.Run(ctx, s.cfg.Path, "add", "-A"); err != nil {
			return SyncOutcome{Status: SyncFailed, Actions: actions, Err: fmt.Sprintf("vault stage: %v", err)}
		}
		actions = append(actions, "stage")
		if _, err := s.run.Run(ctx, s.cfg.Path, "commit", "-m", AutoSyncMessage); err != nil {
			return SyncOutcome{Status: SyncFailed, Actions: actions, Err: fmt.Sprintf("vault commit: %v", err)}
		}
		actions = append(actions, "commit")
	}

	if _, err := s.run.Run(ctx, s.cfg.Path, "push"); err != nil {
		return SyncOutcome{Status: SyncFailed, Actions: actions, Err: fmt.Sprintf("vault push: %v", err)}
	}
	actions = append(actions, "push")

	slog.Info("vault reconciled", slog.String("actions", strings.Join(actions, ",")))
	return SyncOutcome{Status: SyncPushed, Actions: actions}
}

// cloneURL returns the remote URL, with the HTTPS token spliced into the
// userinfo position when one is configured.
func (s *Synchronizer) cloneURL() string {
	if s.cfg.Token == "" || !strings.HasPrefix(s.cfg.RemoteURL, "https://") {
		return s.cfg.RemoteURL
	}
	u, err := url.Parse(s.cfg.RemoteURL)
	if err != nil {
		return s.cfg.RemoteURL
	}
	u.User = url.UserPassword("x-access-token", s.cfg.Token)
	return u.String()
}

// setupAuth provisions SSH key material before the first clone when no HTTPS
// token is configured: the base64-encoded private key lands in ~/.ssh with
// restrictive permissions and the remote host's public key is registered in
// known_hosts so the first connection is non-interactive.
func (s *Synchronizer) setupAuth(ctx context.Context) error {
	if s.cfg.Token != "" || s.cfg.SSHKeyB64 == "" {
		return nil
	}

	key, err := base64.StdEncoding.DecodeString(s.cfg.SSHKeyB64)
	if err != nil {
		return fmt.Errorf("vault: decode ssh key: %w", err)
	}

	sshDir := filepath.Join(s.home, ".ssh")
	if err := os.MkdirAll(sshDir, 0o700); err != nil {
		return fmt.Errorf("vault: create ssh dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(sshDir, "id_ed25519"), key, 0o600); err != nil {
		return fmt.Errorf("vault: write ssh key: %w", err)
	}

	if s.cfg.KnownHost == "" {
		return nil
	}
	hostKeys, err := s.scanHost(ctx, s.cfg.KnownHost)
	if err != nil {
		return fmt.Errorf("vault: register host key: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(sshDir, "known_hosts"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("vault: open known_hosts: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(hostKeys); err != nil {
		return fmt.Errorf("vault: write known_hosts: %w", err)
	}
	return nil
}
