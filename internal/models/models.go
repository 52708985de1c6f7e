// Package models defines the data objects shared across cwt packages.
package models

import (
	"path/filepath"
	"sync"

	"github.com/chmouel/cwt/internal/config"
)

// On-disk protocol: these names are part of cwt's external contract and must
// survive process restarts, so they live on the filesystem rather than in
// memory.
const (
	// WorktreesDirName holds session worktrees under a repository root.
	WorktreesDirName = ".worktrees"
	// ConfigDirName holds per-repository configuration and hooks.
	ConfigDirName = ".cwt"
	// ConfigFileName is the repository configuration file inside ConfigDirName.
	ConfigFileName = "config.json"
	// SetupHookName is the optional executable run on first resume.
	SetupHookName = "setup"
	// TeardownHookName is the optional executable run before removal.
	TeardownHookName = "teardown"
	// NeedsSetupMarker is a zero-byte file inside a worktree signaling that
	// the first-resume setup has not run yet.
	NeedsSetupMarker = ".cwt_needs_setup"
	// ProjectRootEnv exposes the project root to hook processes.
	ProjectRootEnv = "CWT_PROJECT_ROOT"
)

// Repository represents one git repository managed by cwt.
type Repository struct {
	// Root is the absolute path of the repository working tree.
	Root string
	// ProjectRoot is the absolute path of the topmost ancestor owning cwt
	// configuration. Identical across a repository and all its nested
	// repositories.
	ProjectRoot string
	// Parent is set iff this repository is nested inside another one. It is
	// a back-reference only; the parent does not own its children.
	Parent *Repository

	cfgOnce sync.Once
	cfg     *config.RepoConfig
}

// Config returns the repository configuration, loading it on first use.
// Missing or malformed configuration degrades to defaults.
func (r *Repository) Config() *config.RepoConfig {
	r.cfgOnce.Do(func() {
		r.cfg = config.LoadRepoConfig(r.Root)
	})
	return r.cfg
}

// SetConfig overrides the lazily loaded configuration. Meant for tests.
func (r *Repository) SetConfig(cfg *config.RepoConfig) {
	r.cfgOnce.Do(func() {})
	r.cfg = cfg
}

// Nested reports whether this repository lives inside a parent repository.
func (r *Repository) Nested() bool {
	return r.Parent != nil
}

// DisplayName is the repository name relative to its project root, or the
// base name when the repository is the project root itself.
func (r *Repository) DisplayName() string {
	if r.ProjectRoot != "" && r.ProjectRoot != r.Root {
		if rel, err := filepath.Rel(r.ProjectRoot, r.Root); err == nil {
			return rel
		}
	}
	return filepath.Base(r.Root)
}

// WorktreesDir is the directory holding this repository's session worktrees.
func (r *Repository) WorktreesDir() string {
	return filepath.Join(r.Root, WorktreesDirName)
}

// HookPath returns the path of a named hook under the config directory.
func (r *Repository) HookPath(name string) string {
	return filepath.Join(r.Root, ConfigDirName, name)
}

// Worktree represents one checked-out working directory bound to a branch.
// Instances are rebuilt wholesale from `git worktree list` on every refresh;
// only Dirty and LastCommitAge are patched in place, by fetch results.
type Worktree struct {
	// Repo is a non-owning back-reference to the owning repository.
	Repo *Repository
	// Path is the absolute worktree directory.
	Path string
	// Branch is the checked-out branch, empty for a detached HEAD.
	Branch string
	// SHA is the HEAD commit id, empty until the first list refresh.
	SHA string
	// Dirty reports uncommitted changes. Refreshed asynchronously.
	Dirty bool
	// LastCommitAge is a human-relative age string ("2 days ago").
	// Refreshed asynchronously.
	LastCommitAge string
	// IsMain is true iff this is the repository's root checkout.
	IsMain bool
}

// Name is the worktree directory base name, which doubles as the session
// branch name for worktrees created by cwt.
func (w *Worktree) Name() string {
	return filepath.Base(w.Path)
}

// MarkerPath is the setup-needed marker file location for this worktree.
func (w *Worktree) MarkerPath() string {
	return filepath.Join(w.Path, NeedsSetupMarker)
}
