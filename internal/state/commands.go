package state

import "github.com/chmouel/cwt/internal/models"

// Command is a side-effecting intent the dispatcher hands back to the host
// loop. Commands are pure data; execution belongs to the host.
type Command interface {
	command()
}

// Quit asks the host loop to terminate.
type Quit struct{}

func (Quit) command() {}

// CreateWorktree asks for a new session worktree in Repository.
type CreateWorktree struct {
	Repository *models.Repository
	Name       string
}

func (CreateWorktree) command() {}

// DeleteWorktree asks for removal of a worktree, optionally forced.
type DeleteWorktree struct {
	Worktree *models.Worktree
	Force    bool
}

func (DeleteWorktree) command() {}

// RefreshList asks for a wholesale rebuild of the worktree cache.
type RefreshList struct{}

func (RefreshList) command() {}

// ResumeWorktree asks the host to suspend the interactive surface and run the
// resume protocol for Worktree.
type ResumeWorktree struct {
	Worktree *models.Worktree
}

func (ResumeWorktree) command() {}

// StartBackgroundFetch asks for a fresh fetch round over the current cache.
type StartBackgroundFetch struct{}

func (StartBackgroundFetch) command() {}

// Intent is one user intention delivered to the dispatcher. The host loop
// owns the mapping from input events to intents.
type Intent interface {
	intent()
}

// MoveSelection moves the selection within the visible list by Delta.
type MoveSelection struct{ Delta int }

func (MoveSelection) intent() {}

// StartCreating enters Creating mode with a fresh input buffer.
type StartCreating struct{}

func (StartCreating) intent() {}

// StartFiltering enters Filtering mode, preserving the current query.
type StartFiltering struct{}

func (StartFiltering) intent() {}

// StartSelectingRepo enters SelectingRepo mode.
type StartSelectingRepo struct{}

func (StartSelectingRepo) intent() {}

// CycleTargetRepository advances the create-target repository while Creating.
type CycleTargetRepository struct{}

func (CycleTargetRepository) intent() {}

// TypeRune appends one character to the active text buffer.
type TypeRune struct{ Rune rune }

func (TypeRune) intent() {}

// Backspace removes the last character from the active text buffer.
type Backspace struct{}

func (Backspace) intent() {}

// Submit confirms the current mode's pending action.
type Submit struct{}

func (Submit) intent() {}

// Cancel abandons the current mode.
type Cancel struct{}

func (Cancel) intent() {}

// ToggleShowAll flips between primary-only and all-repositories views.
type ToggleShowAll struct{}

func (ToggleShowAll) intent() {}

// RequestDelete asks to remove the selected worktree.
type RequestDelete struct{ Force bool }

func (RequestDelete) intent() {}

// RequestResume asks to resume the selected worktree.
type RequestResume struct{}

func (RequestResume) intent() {}

// RequestRefresh asks for a list refresh plus a fresh fetch round.
type RequestRefresh struct{}

func (RequestRefresh) intent() {}

// RequestQuit asks to leave the application.
type RequestQuit struct{}

func (RequestQuit) intent() {}
