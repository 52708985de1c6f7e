// Package discover locates the repositories cwt manages: the enclosing
// repository for a starting path, the topmost project root owning cwt
// configuration, and nested repositories below it.
package discover

import (
	"context"
	"os"
	"path/filepath"

	"github.com/chmouel/cwt/internal/git"
	log "github.com/chmouel/cwt/internal/log"
	"github.com/chmouel/cwt/internal/models"
	"github.com/chmouel/cwt/internal/utils"
)

// Discoverer finds repositories through the git gateway.
type Discoverer struct {
	gw *git.Gateway
}

// New constructs a Discoverer.
func New(gw *git.Gateway) *Discoverer {
	return &Discoverer{gw: gw}
}

// Discover resolves the repository enclosing path. It returns nil (and no
// error) when path is not inside a git repository.
func (d *Discoverer) Discover(ctx context.Context, path string) (*models.Repository, error) {
	commonDir, err := d.gw.CommonDir(ctx, utils.Canonicalize(path))
	if err != nil {
		// Exit 128 means "not a repository"; any git failure here just means
		// there is nothing to manage.
		log.Printf("discover: no repository at %s: %v", path, err)
		return nil, nil
	}
	if commonDir == "" {
		return nil, nil
	}

	root := commonDir
	if filepath.Base(root) == ".git" {
		root = filepath.Dir(root)
	}
	root = utils.Canonicalize(root)
	return &models.Repository{Root: root, ProjectRoot: root}, nil
}

// FindProjectRoot walks ancestor directories upward from root and returns the
// topmost one containing the cwt configuration directory. The search
// continues past the first match all the way to the filesystem root; the
// highest match wins. ok is false when no ancestor carries the marker.
func FindProjectRoot(root string) (projectRoot string, ok bool) {
	dir := root
	for {
		marker := filepath.Join(dir, models.ConfigDirName)
		if info, err := os.Stat(marker); err == nil && info.IsDir() {
			projectRoot, ok = dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return projectRoot, ok
		}
		dir = parent
	}
}

// DiscoverAll resolves the full repository set for a starting path: the
// project-root repository first (when one exists above the starting
// repository), then every nested repository. The starting repository is
// always part of the result.
func (d *Discoverer) DiscoverAll(ctx context.Context, path string) ([]*models.Repository, error) {
	primary, err := d.Discover(ctx, path)
	if err != nil || primary == nil {
		return nil, err
	}

	projectRoot, ok := FindProjectRoot(primary.Root)
	if !ok {
		projectRoot = primary.Root
	}
	primary.ProjectRoot = projectRoot

	if projectRoot == primary.Root {
		return append([]*models.Repository{primary}, d.NestedRepositories(primary)...), nil
	}

	parent := &models.Repository{Root: projectRoot, ProjectRoot: projectRoot}
	primary.Parent = parent

	repos := append([]*models.Repository{parent}, d.NestedRepositories(parent)...)
	for _, repo := range repos {
		if repo.Root == primary.Root {
			return repos, nil
		}
	}
	// The starting repository was not reachable through configuration or
	// auto-discovery (hidden directory, disabled discovery); keep it anyway.
	return append(repos, primary), nil
}

// NestedRepositories enumerates the repositories nested directly under repo:
// the configured explicit paths, plus (when auto-discovery is on) every
// non-hidden immediate subdirectory that is git-managed. Results are
// deduplicated by absolute path and inherit the project root.
func (d *Discoverer) NestedRepositories(repo *models.Repository) []*models.Repository {
	cfg := repo.Config()
	seen := make(map[string]bool)
	var nested []*models.Repository

	add := func(root string) {
		root = utils.Canonicalize(root)
		if seen[root] || root == repo.Root {
			return
		}
		seen[root] = true
		nested = append(nested, &models.Repository{
			Root:        root,
			ProjectRoot: repo.ProjectRoot,
			Parent:      repo,
		})
	}

	for _, p := range cfg.Nested.Paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(repo.Root, p)
		}
		if isGitManaged(p) {
			add(p)
		} else {
			log.Printf("discover: configured nested path %s is not a repository", p)
		}
	}

	if cfg.AutoDiscover() {
		entries, err := os.ReadDir(repo.Root)
		if err != nil {
			log.Printf("discover: reading %s: %v", repo.Root, err)
			return nested
		}
		for _, entry := range entries {
			name := entry.Name()
			if !entry.IsDir() || name[0] == '.' || name == models.WorktreesDirName {
				continue
			}
			candidate := filepath.Join(repo.Root, name)
			if isGitManaged(candidate) {
				add(candidate)
			}
		}
	}

	return nested
}

// isGitManaged reports whether dir is a directory carrying a git marker
// (a .git directory or, for worktrees and submodules, a .git file).
func isGitManaged(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	_, err = os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}
