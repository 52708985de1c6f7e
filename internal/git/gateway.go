// Package git wraps the git subcommands cwt relies on. It issues a fixed,
// narrow set of invocations and treats their output as a machine-readable
// protocol; every failure is returned as a value, never raised.
package git

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	log "github.com/chmouel/cwt/internal/log"
)

// GitError reports a git subprocess exiting non-zero. It carries the raw
// standard-error text so callers can surface it verbatim.
type GitError struct {
	Args   []string
	Stderr string
	Code   int
}

func (e *GitError) Error() string {
	detail := strings.TrimSpace(e.Stderr)
	if detail == "" {
		detail = fmt.Sprintf("exit %d", e.Code)
	}
	return fmt.Sprintf("git %s: %s", strings.Join(e.Args, " "), detail)
}

// Runner executes git with the given arguments in dir and returns stdout.
// It is a field on Gateway so tests can substitute a fake.
type Runner func(ctx context.Context, dir string, args ...string) (string, error)

func execRunner(ctx context.Context, dir string, args ...string) (string, error) {
	// #nosec G204 -- arguments are assembled from internal logic, never shell interpolated
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return string(out), &GitError{
				Args:   args,
				Stderr: string(exitErr.Stderr),
				Code:   exitErr.ExitCode(),
			}
		}
		return string(out), err
	}
	return string(out), nil
}

// Gateway issues git subcommands for cwt.
type Gateway struct {
	run Runner
}

// NewGateway constructs a Gateway backed by the real git binary.
func NewGateway() *Gateway {
	return &Gateway{run: execRunner}
}

// NewGatewayWithRunner constructs a Gateway with a custom runner. Meant for
// tests.
func NewGatewayWithRunner(run Runner) *Gateway {
	return &Gateway{run: run}
}

func (g *Gateway) git(ctx context.Context, dir string, args ...string) (string, error) {
	out, err := g.run(ctx, dir, args...)
	if err != nil {
		log.Printf("git: %s (dir=%s): %v", strings.Join(args, " "), dir, err)
		return out, err
	}
	log.Printf("git: %s (dir=%s): ok", strings.Join(args, " "), dir)
	return out, nil
}

// ListedWorktree is one record parsed from `git worktree list --porcelain`.
type ListedWorktree struct {
	Path   string
	Branch string // empty for a detached HEAD
	SHA    string // empty for a record without a HEAD line
}

// ListWorktrees lists the worktrees of the repository rooted at repoRoot.
func (g *Gateway) ListWorktrees(ctx context.Context, repoRoot string) ([]ListedWorktree, error) {
	out, err := g.git(ctx, repoRoot, "--no-optional-locks", "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parseWorktreeList(out), nil
}

// parseWorktreeList parses porcelain worktree output. Records are separated
// by blank lines; a trailing record without a terminating blank line is still
// emitted.
func parseWorktreeList(out string) []ListedWorktree {
	var entries []ListedWorktree
	var cur *ListedWorktree

	flush := func() {
		if cur != nil {
			entries = append(entries, *cur)
			cur = nil
		}
	}

	for line := range strings.SplitSeq(out, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "worktree "):
			flush()
			cur = &ListedWorktree{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "HEAD "):
			if cur != nil {
				cur.SHA = strings.TrimPrefix(line, "HEAD ")
			}
		case strings.HasPrefix(line, "branch "):
			if cur != nil {
				branch := strings.TrimPrefix(line, "branch ")
				branch = strings.TrimPrefix(branch, "refs/heads/")
				cur.Branch = branch
			}
		}
	}
	flush()
	return entries
}

// Status reports whether the worktree at path has uncommitted changes.
func (g *Gateway) Status(ctx context.Context, path string) (bool, error) {
	out, err := g.git(ctx, path, "--no-optional-locks", "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// CommitAges batch-resolves commit ids to human-relative ages. Ids that git
// cannot resolve are absent from the result.
func (g *Gateway) CommitAges(ctx context.Context, repoRoot string, shas []string) (map[string]string, error) {
	if len(shas) == 0 {
		return map[string]string{}, nil
	}
	args := append([]string{"--no-optional-locks", "show", "-s", "--format=%H|%cr"}, shas...)
	out, err := g.git(ctx, repoRoot, args...)
	if err != nil {
		return nil, err
	}

	ages := make(map[string]string, len(shas))
	for line := range strings.SplitSeq(out, "\n") {
		sha, age, ok := strings.Cut(strings.TrimSpace(line), "|")
		if !ok || sha == "" {
			continue
		}
		ages[sha] = age
	}
	return ages, nil
}

// AddWorktree creates a worktree at path bound to a brand-new branch.
func (g *Gateway) AddWorktree(ctx context.Context, repoRoot, branch, path string) error {
	_, err := g.git(ctx, repoRoot, "worktree", "add", "-b", branch, path)
	return err
}

// RemoveWorktree removes the worktree at path.
func (g *Gateway) RemoveWorktree(ctx context.Context, repoRoot, path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	_, err := g.git(ctx, repoRoot, args...)
	return err
}

// DeleteBranch deletes a local branch, safely (-d) unless force (-D).
func (g *Gateway) DeleteBranch(ctx context.Context, repoRoot, name string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	_, err := g.git(ctx, repoRoot, "branch", flag, name)
	return err
}

// Prune removes stale worktree administrative entries.
func (g *Gateway) Prune(ctx context.Context, repoRoot string) error {
	_, err := g.git(ctx, repoRoot, "worktree", "prune")
	return err
}

// CommonDir resolves the absolute git common directory for path. Works from
// inside a worktree, not just the main tree.
func (g *Gateway) CommonDir(ctx context.Context, path string) (string, error) {
	out, err := g.git(ctx, path, "rev-parse", "--path-format=absolute", "--git-common-dir")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
