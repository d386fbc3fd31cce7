package vault

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes a git subcommand in dir and returns its stdout. It is the
// only seam between the synchronizer and the git binary, so reconciliation
// logic can be tested against a fake.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// gitRunner shells out to the git binary.
type gitRunner struct{}

// NewGitRunner returns a Runner backed by the system git binary.
func NewGitRunner() Runner { return gitRunner{} }

func (gitRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("git %s: %w", args[0], err)
		}
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, msg)
	}
	return stdout.String(), nil
}

// scanHostKey collects the SSH host key for host via ssh-keyscan, for
// registration into known_hosts before the first clone over SSH.
func scanHostKey(ctx context.Context, host string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "ssh-keyscan", host)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("ssh-keyscan %s: %w", host, err)
		}
		return nil, fmt.Errorf("ssh-keyscan %s: %w: %s", host, err, msg)
	}
	return stdout.Bytes(), nil
}
