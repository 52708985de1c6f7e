package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/chmouel/cwt/internal/state"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	dirtyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	cleanStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
	branchStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	ageStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	repoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	mainStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	title := "cwt"
	if m.refreshing {
		title = m.spinner.View() + " " + title
	}
	b.WriteString(titleStyle.Render(title))
	if !m.st.ShowAllRepositories {
		if primary := m.st.PrimaryRepository(); primary != nil {
			b.WriteString(dimStyle.Render("  [" + primary.DisplayName() + " only]"))
		}
	}
	b.WriteString("\n\n")

	visible := m.st.Visible()
	if len(visible) == 0 {
		b.WriteString(dimStyle.Render("  no sessions"))
		b.WriteString("\n")
	}
	for i, wt := range visible {
		cursor := "  "
		if i == m.st.SelectionIndex {
			cursor = "> "
		}

		marker := cleanStyle.Render("✓")
		if wt.Dirty {
			marker = dirtyStyle.Render("~")
		}

		name := wt.Name()
		if wt.IsMain {
			name = mainStyle.Render(name + " (main)")
		}

		line := fmt.Sprintf("%s%s %s  %s  %s  %s",
			cursor,
			marker,
			name,
			branchStyle.Render(wt.Branch),
			ageStyle.Render(wt.LastCommitAge),
			repoStyle.Render(wt.Repo.DisplayName()),
		)
		if m.width > 0 {
			line = truncate.String(line, uint(m.width)) //nolint:gosec
		}
		if i == m.st.SelectionIndex {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.footer())
	return b.String()
}

// footer renders the mode-specific bottom lines: input prompts for the text
// modes, the repository picker, or the status message plus short help.
func (m *Model) footer() string {
	switch m.st.Mode {
	case state.ModeCreating:
		target := ""
		if repo := m.st.TargetRepository(); repo != nil {
			target = dimStyle.Render("  (in " + repo.DisplayName() + ", tab to change)")
		}
		return promptStyle.Render("New session: ") + m.st.InputBuffer + "█" + target

	case state.ModeFiltering:
		return promptStyle.Render("Filter: ") + m.st.FilterQuery + "█"

	case state.ModeSelectingRepo:
		var b strings.Builder
		b.WriteString(promptStyle.Render("Target repository:"))
		b.WriteString("\n")
		for i, repo := range m.st.Repositories {
			cursor := "  "
			if i == m.st.TargetRepositoryIndex {
				cursor = "> "
			}
			b.WriteString(cursor + repo.DisplayName() + "\n")
		}
		return b.String()
	}

	var lines []string
	if m.st.StatusMessage != "" {
		lines = append(lines, statusStyle.Render(m.st.StatusMessage))
	}
	if m.st.FilterQuery != "" {
		lines = append(lines, dimStyle.Render("filter: "+m.st.FilterQuery))
	}
	lines = append(lines, m.help.View(m.keys))
	return strings.Join(lines, "\n")
}
