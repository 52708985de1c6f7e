// Package state holds the presentation-independent application state and the
// dispatcher that turns user intents into state transitions and commands.
// Exactly one goroutine (the host loop's) may touch a Model; everything
// asynchronous reaches it as immutable fetch results.
package state

import (
	"slices"
	"strings"

	"github.com/chmouel/cwt/internal/fetch"
	"github.com/chmouel/cwt/internal/models"
)

// Mode is the dispatcher's interaction mode.
type Mode int

// Interaction modes.
const (
	ModeNormal Mode = iota
	ModeCreating
	ModeFiltering
	ModeSelectingRepo
)

// Model is the application state. The first repository is the primary one.
type Model struct {
	Repositories []*models.Repository
	// Worktrees is the cache, rebuilt wholesale on every refresh. Only the
	// Dirty and LastCommitAge fields are patched in place, by Apply.
	Worktrees []*models.Worktree

	SelectionIndex        int
	Mode                  Mode
	InputBuffer           string
	FilterQuery           string
	StatusMessage         string
	FetchGeneration       uint64
	ShowAllRepositories   bool
	TargetRepositoryIndex int
	Running               bool

	// filterBeforeEdit restores the query when Filtering is cancelled.
	filterBeforeEdit string
}

// New constructs a Model over the discovered repositories.
func New(repos []*models.Repository, showAll bool) *Model {
	return &Model{
		Repositories:        repos,
		ShowAllRepositories: showAll,
		Running:             true,
	}
}

// PrimaryRepository is the first discovered repository, nil when none exist.
func (m *Model) PrimaryRepository() *models.Repository {
	if len(m.Repositories) == 0 {
		return nil
	}
	return m.Repositories[0]
}

// TargetRepository is the repository new sessions are created in.
func (m *Model) TargetRepository() *models.Repository {
	if len(m.Repositories) == 0 {
		return nil
	}
	if m.TargetRepositoryIndex < 0 || m.TargetRepositoryIndex >= len(m.Repositories) {
		return m.Repositories[0]
	}
	return m.Repositories[m.TargetRepositoryIndex]
}

// SetWorktrees replaces the cache wholesale and clamps the selection.
func (m *Model) SetWorktrees(wts []*models.Worktree) {
	m.Worktrees = wts
	m.clampSelection()
}

// NextGeneration advances the fetch generation, invalidating every
// outstanding result from earlier rounds.
func (m *Model) NextGeneration() uint64 {
	m.FetchGeneration++
	return m.FetchGeneration
}

// Apply patches a fetch result into the cache. Results stamped with a
// generation other than the current one are dropped; that mismatch is the
// engine's sole cancellation mechanism.
func (m *Model) Apply(res fetch.Result) bool {
	path, generation := res.Stamp()
	if generation != m.FetchGeneration {
		return false
	}
	for _, wt := range m.Worktrees {
		if wt.Path != path {
			continue
		}
		switch r := res.(type) {
		case fetch.DirtyResult:
			wt.Dirty = r.Dirty
		case fetch.AgeResult:
			wt.LastCommitAge = r.Age
		}
		return true
	}
	return false
}

// FetchSnapshot captures the immutable view of the cache handed to workers
// when a round starts.
func (m *Model) FetchSnapshot() []fetch.Snapshot {
	snaps := make([]fetch.Snapshot, 0, len(m.Worktrees))
	for _, wt := range m.Worktrees {
		snaps = append(snaps, fetch.Snapshot{
			Path:     wt.Path,
			SHA:      wt.SHA,
			RepoRoot: wt.Repo.Root,
		})
	}
	return snaps
}

// Visible derives the filtered, sorted worktree list the selection moves in:
// filter by substring over path, branch, and repository name, then order
// parent repositories before their nested children and each repository's
// root checkout before its session worktrees.
func (m *Model) Visible() []*models.Worktree {
	visible := make([]*models.Worktree, 0, len(m.Worktrees))
	primary := m.PrimaryRepository()
	for _, wt := range m.Worktrees {
		if !m.ShowAllRepositories && wt.Repo != primary {
			continue
		}
		if m.FilterQuery != "" && !matchesFilter(wt, m.FilterQuery) {
			continue
		}
		visible = append(visible, wt)
	}

	slices.SortFunc(visible, compareWorktrees)
	return visible
}

// Selected is the worktree under the cursor, nil when the list is empty.
func (m *Model) Selected() *models.Worktree {
	visible := m.Visible()
	if m.SelectionIndex < 0 || m.SelectionIndex >= len(visible) {
		return nil
	}
	return visible[m.SelectionIndex]
}

func (m *Model) clampSelection() {
	n := len(m.Visible())
	if n == 0 {
		m.SelectionIndex = 0
		return
	}
	if m.SelectionIndex >= n {
		m.SelectionIndex = n - 1
	}
	if m.SelectionIndex < 0 {
		m.SelectionIndex = 0
	}
}

func matchesFilter(wt *models.Worktree, query string) bool {
	return strings.Contains(wt.Path, query) ||
		strings.Contains(wt.Branch, query) ||
		strings.Contains(wt.Repo.DisplayName(), query)
}

// compareWorktrees orders by the composite key (repository family, nested
// flag, repository name, main-first flag, worktree name).
func compareWorktrees(a, b *models.Worktree) int {
	if c := strings.Compare(familyName(a.Repo), familyName(b.Repo)); c != 0 {
		return c
	}
	if c := boolToInt(a.Repo.Nested()) - boolToInt(b.Repo.Nested()); c != 0 {
		return c
	}
	if c := strings.Compare(a.Repo.DisplayName(), b.Repo.DisplayName()); c != 0 {
		return c
	}
	if c := boolToInt(!a.IsMain) - boolToInt(!b.IsMain); c != 0 {
		return c
	}
	return strings.Compare(a.Name(), b.Name())
}

// familyName groups a nested repository with its parent so families sort
// contiguously.
func familyName(repo *models.Repository) string {
	if repo.Parent != nil {
		return repo.Parent.DisplayName()
	}
	return repo.DisplayName()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
