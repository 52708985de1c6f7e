// Package worktree orchestrates the session lifecycle: creating worktrees
// with a setup-marker protocol, resuming them through setup hooks or default
// environment linking, and removing them through the many partial-failure
// branches real repositories produce.
package worktree

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/chmouel/cwt/internal/config"
	"github.com/chmouel/cwt/internal/git"
	log "github.com/chmouel/cwt/internal/log"
	"github.com/chmouel/cwt/internal/models"
)

const (
	dirPerms    = 0o750
	markerPerms = 0o600
)

// HookError reports a setup or teardown hook exiting non-zero.
type HookError struct {
	Hook string // hook path
	Err  error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("hook %s failed: %v", e.Hook, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// PartialRemovalError reports a removal where the worktree directory is gone
// but branch deletion failed for a reason other than the branch not existing.
type PartialRemovalError struct {
	Branch string
	Err    error
}

func (e *PartialRemovalError) Error() string {
	return fmt.Sprintf("worktree removed but branch %q survives: %v", e.Branch, e.Err)
}

func (e *PartialRemovalError) Unwrap() error { return e.Err }

var nameSanitizer = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SanitizeName restricts a session name to [A-Za-z0-9_-], replacing anything
// collision-prone with underscores.
func SanitizeName(name string) string {
	return nameSanitizer.ReplaceAllString(name, "_")
}

// Manager drives worktree lifecycle operations through the git gateway.
type Manager struct {
	gw *git.Gateway
}

// NewManager constructs a Manager.
func NewManager(gw *git.Gateway) *Manager {
	return &Manager{gw: gw}
}

// List rebuilds the worktree set for every repository from git state. Each
// repository that fails to list contributes an error but does not hide the
// others.
func (m *Manager) List(ctx context.Context, repos []*models.Repository) ([]*models.Worktree, error) {
	var worktrees []*models.Worktree
	var errs []error
	for _, repo := range repos {
		listed, err := m.gw.ListWorktrees(ctx, repo.Root)
		if err != nil {
			errs = append(errs, fmt.Errorf("listing %s: %w", repo.DisplayName(), err))
			continue
		}
		for _, entry := range listed {
			worktrees = append(worktrees, &models.Worktree{
				Repo:   repo,
				Path:   entry.Path,
				Branch: entry.Branch,
				SHA:    entry.SHA,
				IsMain: entry.Path == repo.Root,
			})
		}
	}
	return worktrees, errors.Join(errs...)
}

// Create adds a worktree named after the sanitized session name, bound to a
// brand-new branch of the same name, and marks it as needing setup. The SHA
// stays empty until the next list refresh.
func (m *Manager) Create(ctx context.Context, repo *models.Repository, name string) (*models.Worktree, error) {
	name = SanitizeName(name)
	if name == "" {
		return nil, fmt.Errorf("empty session name")
	}

	dir := repo.WorktreesDir()
	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return nil, fmt.Errorf("creating worktrees directory: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := m.gw.AddWorktree(ctx, repo.Root, name, path); err != nil {
		return nil, err
	}

	wt := &models.Worktree{Repo: repo, Path: path, Branch: name}
	if err := os.WriteFile(wt.MarkerPath(), nil, markerPerms); err != nil {
		log.Printf("worktree: writing setup marker for %s: %v", path, err)
	}
	return wt, nil
}

// NeedsSetup reports whether the worktree still carries the setup marker.
func (m *Manager) NeedsSetup(wt *models.Worktree) bool {
	_, err := os.Stat(wt.MarkerPath())
	return err == nil
}

// ResumeOptions wires the interactive surface into Resume. The setup hook
// runs visibly on Stdout/Stderr; ConfirmHookFailure is consulted when it
// exits non-zero and decides whether the session proceeds anyway.
type ResumeOptions struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// ConfirmHookFailure is called with the hook failure; returning true
	// acknowledges it and clears the setup marker, false aborts the resume
	// and keeps the marker for the next attempt.
	ConfirmHookFailure func(err error) bool
}

// Resume prepares a worktree for use. The first resume after creation runs
// the repository's setup hook (when present and executable) with the marker
// protocol; otherwise the configured default resources are linked in.
func (m *Manager) Resume(ctx context.Context, wt *models.Worktree, opts ResumeOptions) error {
	hook := wt.Repo.HookPath(models.SetupHookName)
	if m.NeedsSetup(wt) && isExecutable(hook) {
		if err := m.runHook(ctx, hook, wt, opts); err != nil {
			if opts.ConfirmHookFailure == nil || !opts.ConfirmHookFailure(err) {
				return err
			}
		}
		if err := os.Remove(wt.MarkerPath()); err != nil {
			log.Printf("worktree: clearing setup marker for %s: %v", wt.Path, err)
		}
		return nil
	}

	// No setup hook (or setup already done): fall back to linking the
	// default resources. Link failures are logged, not fatal.
	if err := m.linkDefaults(wt); err != nil {
		log.Printf("worktree: linking defaults into %s: %v", wt.Path, err)
	}
	if m.NeedsSetup(wt) {
		if err := os.Remove(wt.MarkerPath()); err != nil {
			log.Printf("worktree: clearing setup marker for %s: %v", wt.Path, err)
		}
	}
	return nil
}

// runHook executes a hook with the worktree as working directory and the
// project root exposed through the environment.
func (m *Manager) runHook(ctx context.Context, hook string, wt *models.Worktree, opts ResumeOptions) error {
	log.Printf("worktree: running hook %s in %s", hook, wt.Path)
	// #nosec G204 -- hook path is fixed under the repository's .cwt directory
	cmd := exec.CommandContext(ctx, hook)
	cmd.Dir = wt.Path
	cmd.Env = append(os.Environ(), models.ProjectRootEnv+"="+wt.Repo.ProjectRoot)
	cmd.Stdin = opts.Stdin
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr
	if err := cmd.Run(); err != nil {
		return &HookError{Hook: hook, Err: err}
	}
	return nil
}

// Remove deletes a worktree and its session branch. It returns a warning for
// outcomes that succeed with a caveat (an unmerged branch kept behind) and an
// error for outcomes that do not resolve to a removed session.
func (m *Manager) Remove(ctx context.Context, wt *models.Worktree, force bool) (warning string, err error) {
	repoRoot := wt.Repo.Root
	dirExists := false
	if _, statErr := os.Stat(wt.Path); statErr == nil {
		dirExists = true
	}

	if dirExists {
		hook := wt.Repo.HookPath(models.TeardownHookName)
		if isExecutable(hook) {
			if hookErr := m.runTeardown(ctx, hook, wt); hookErr != nil {
				if !force {
					return "", fmt.Errorf("%w; force-delete to remove anyway", hookErr)
				}
				log.Printf("worktree: teardown hook failed, forced removal continues: %v", hookErr)
			}
		}

		// Linked resources must never block removal; failures here are
		// deliberately discarded.
		_ = m.unlinkDefaults(wt)

		if rmErr := m.gw.RemoveWorktree(ctx, repoRoot, wt.Path, force); rmErr != nil {
			return "", rmErr
		}
	} else {
		// Phantom branch: the directory was deleted out-of-band. Prune the
		// stale administrative entry so the name can be reused.
		if pruneErr := m.gw.Prune(ctx, repoRoot); pruneErr != nil {
			log.Printf("worktree: prune after phantom %s: %v", wt.Path, pruneErr)
		}
	}

	branch := filepath.Base(wt.Path)
	delErr := m.gw.DeleteBranch(ctx, repoRoot, branch, force)
	switch {
	case delErr == nil:
		return "", nil
	case force && branchNotFound(delErr):
		// Deleting an already-gone branch is a success; removal is idempotent.
		return "", nil
	case force:
		return "", &PartialRemovalError{Branch: branch, Err: delErr}
	default:
		return fmt.Sprintf("worktree removed; branch %q kept (unmerged?). Force-delete to remove it.", branch), nil
	}
}

func (m *Manager) runTeardown(ctx context.Context, hook string, wt *models.Worktree) error {
	log.Printf("worktree: running hook %s in %s", hook, wt.Path)
	// #nosec G204 -- hook path is fixed under the repository's .cwt directory
	cmd := exec.CommandContext(ctx, hook)
	cmd.Dir = wt.Path
	cmd.Env = append(os.Environ(), models.ProjectRootEnv+"="+wt.Repo.ProjectRoot)
	out, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if detail != "" {
			return &HookError{Hook: hook, Err: fmt.Errorf("%s: %w", detail, err)}
		}
		return &HookError{Hook: hook, Err: err}
	}
	return nil
}

func branchNotFound(err error) bool {
	var gitErr *git.GitError
	if errors.As(err, &gitErr) {
		return strings.Contains(gitErr.Stderr, "not found")
	}
	return false
}

// linkDefaults symlinks each configured resource into the worktree. Sources
// that do not exist are skipped; existing targets are never overwritten.
func (m *Manager) linkDefaults(wt *models.Worktree) error {
	var errs []error
	for _, rule := range wt.Repo.Config().Symlinks {
		src := resolveSource(wt.Repo, rule)
		if src == "" {
			continue
		}
		target := filepath.Join(wt.Path, rule.Name)
		if _, err := os.Lstat(target); err == nil {
			continue
		}
		if err := os.Symlink(src, target); err != nil {
			errs = append(errs, fmt.Errorf("linking %s: %w", rule.Name, err))
			continue
		}
		log.Printf("worktree: linked %s -> %s", target, src)
	}
	return errors.Join(errs...)
}

// unlinkDefaults removes the linked resources from a worktree before its
// directory is handed to git for removal.
func (m *Manager) unlinkDefaults(wt *models.Worktree) error {
	var errs []error
	for _, rule := range wt.Repo.Config().Symlinks {
		target := filepath.Join(wt.Path, rule.Name)
		info, err := os.Lstat(target)
		if err != nil {
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 {
			err = os.Remove(target)
		} else {
			err = os.RemoveAll(target)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// resolveSource locates the link source for a rule per its strategy:
// local under the repository root, parent under the project root, nearest
// walking from the repository root up to and including the project root.
// Returns "" when no source exists.
func resolveSource(repo *models.Repository, rule config.SymlinkRule) string {
	exists := func(p string) bool {
		_, err := os.Stat(p)
		return err == nil
	}

	switch rule.Strategy {
	case config.StrategyLocal:
		if p := filepath.Join(repo.Root, rule.Name); exists(p) {
			return p
		}
	case config.StrategyParent:
		if p := filepath.Join(repo.ProjectRoot, rule.Name); exists(p) {
			return p
		}
	default: // nearest
		dir := repo.Root
		for {
			if p := filepath.Join(dir, rule.Name); exists(p) {
				return p
			}
			if dir == repo.ProjectRoot {
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	return ""
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Mode()&0o111 != 0
}
