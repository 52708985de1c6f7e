package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the Normal-mode bindings. Creating/Filtering/SelectingRepo
// handle their keys directly since most input there is free text.
type keyMap struct {
	Up          key.Binding
	Down        key.Binding
	Create      key.Binding
	Delete      key.Binding
	ForceDelete key.Binding
	Resume      key.Binding
	Refresh     key.Binding
	Filter      key.Binding
	SelectRepo  key.Binding
	ToggleAll   key.Binding
	Quit        key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("↓/j", "down"),
		),
		Create: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "new session"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete"),
		),
		ForceDelete: key.NewBinding(
			key.WithKeys("D"),
			key.WithHelp("D", "force delete"),
		),
		Resume: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "resume"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Filter: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "filter"),
		),
		SelectRepo: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "select repo"),
		),
		ToggleAll: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "all repos"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Create, k.Resume, k.Delete, k.Filter, k.Refresh, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Resume},
		{k.Create, k.Delete, k.ForceDelete},
		{k.Filter, k.SelectRepo, k.ToggleAll},
		{k.Refresh, k.Quit},
	}
}
