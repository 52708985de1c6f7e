package state

import "strings"

// Update applies one intent to the model and returns the commands the host
// loop must execute. Unknown combinations (an intent that does not apply in
// the current mode) are no-ops, never errors.
func (m *Model) Update(intent Intent) []Command {
	switch m.Mode {
	case ModeCreating:
		return m.updateCreating(intent)
	case ModeFiltering:
		return m.updateFiltering(intent)
	case ModeSelectingRepo:
		return m.updateSelectingRepo(intent)
	default:
		return m.updateNormal(intent)
	}
}

func (m *Model) updateNormal(intent Intent) []Command {
	switch it := intent.(type) {
	case MoveSelection:
		m.moveSelection(it.Delta)
	case StartCreating:
		// The target index survives across creates so a repository chosen in
		// SelectingRepo stays the default.
		m.Mode = ModeCreating
		m.InputBuffer = ""
	case StartFiltering:
		m.Mode = ModeFiltering
		m.filterBeforeEdit = m.FilterQuery
	case StartSelectingRepo:
		if len(m.Repositories) > 1 {
			m.Mode = ModeSelectingRepo
		}
	case ToggleShowAll:
		m.ShowAllRepositories = !m.ShowAllRepositories
		m.SelectionIndex = 0
	case RequestRefresh:
		return []Command{RefreshList{}, StartBackgroundFetch{}}
	case RequestDelete:
		if wt := m.Selected(); wt != nil {
			return []Command{DeleteWorktree{Worktree: wt, Force: it.Force}}
		}
	case RequestResume:
		if wt := m.Selected(); wt != nil {
			return []Command{ResumeWorktree{Worktree: wt}}
		}
	case RequestQuit:
		m.Running = false
		return []Command{Quit{}}
	}
	return nil
}

func (m *Model) updateCreating(intent Intent) []Command {
	switch it := intent.(type) {
	case TypeRune:
		m.InputBuffer += string(it.Rune)
	case Backspace:
		m.InputBuffer = trimLastRune(m.InputBuffer)
	case CycleTargetRepository:
		if n := len(m.Repositories); n > 0 {
			m.TargetRepositoryIndex = (m.TargetRepositoryIndex + 1) % n
		}
	case Submit:
		name := strings.TrimSpace(m.InputBuffer)
		m.Mode = ModeNormal
		if name == "" {
			m.StatusMessage = "Session name cannot be empty"
			return nil
		}
		return []Command{CreateWorktree{Repository: m.TargetRepository(), Name: name}}
	case Cancel:
		m.Mode = ModeNormal
		m.InputBuffer = ""
	case RequestQuit:
		m.Running = false
		return []Command{Quit{}}
	}
	return nil
}

func (m *Model) updateFiltering(intent Intent) []Command {
	switch it := intent.(type) {
	case TypeRune:
		m.FilterQuery += string(it.Rune)
		m.SelectionIndex = 0
	case Backspace:
		m.FilterQuery = trimLastRune(m.FilterQuery)
		m.SelectionIndex = 0
	case Submit:
		m.Mode = ModeNormal
		m.SelectionIndex = 0
	case Cancel:
		m.Mode = ModeNormal
		m.FilterQuery = m.filterBeforeEdit
		m.SelectionIndex = 0
	case RequestQuit:
		m.Running = false
		return []Command{Quit{}}
	}
	return nil
}

func (m *Model) updateSelectingRepo(intent Intent) []Command {
	switch it := intent.(type) {
	case MoveSelection:
		if n := len(m.Repositories); n > 0 {
			m.TargetRepositoryIndex = ((m.TargetRepositoryIndex+it.Delta)%n + n) % n
		}
	case Submit, Cancel:
		m.Mode = ModeNormal
	case RequestQuit:
		m.Running = false
		return []Command{Quit{}}
	}
	return nil
}

// moveSelection clamps movement to the visible list; out-of-range deltas are
// no-ops, not errors.
func (m *Model) moveSelection(delta int) {
	n := len(m.Visible())
	if n == 0 {
		m.SelectionIndex = 0
		return
	}
	idx := m.SelectionIndex + delta
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	m.SelectionIndex = idx
}

func trimLastRune(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	return string(runes[:len(runes)-1])
}
