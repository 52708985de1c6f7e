// Package ui hosts the interactive loop: a Bubble Tea shell over the
// presentation-independent state machine. It maps keys to intents, executes
// the commands the dispatcher emits, and feeds fetch results back into the
// model one bounded drain per loop iteration.
package ui

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/chmouel/cwt/internal/config"
	"github.com/chmouel/cwt/internal/fetch"
	"github.com/chmouel/cwt/internal/git"
	log "github.com/chmouel/cwt/internal/log"
	"github.com/chmouel/cwt/internal/models"
	"github.com/chmouel/cwt/internal/state"
	"github.com/chmouel/cwt/internal/worktree"
)

// drainBound caps how many queued fetch results are applied per loop
// iteration; the state thread never waits for one to exist.
const drainBound = 64

type (
	worktreesLoadedMsg struct {
		worktrees []*models.Worktree
		err       error
	}
	fetchResultMsg struct {
		result fetch.Result
	}
	resumeFinishedMsg struct {
		err error
	}
	watchEventMsg struct{}
)

// Model is the Bubble Tea host around the application state.
type Model struct {
	cfg    *config.AppConfig
	gw     *git.Gateway
	mgr    *worktree.Manager
	engine *fetch.Engine
	st     *state.Model

	keys    keyMap
	help    help.Model
	spinner spinner.Model
	watcher *Watcher

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	width, height int
	refreshing    bool
	fetchQueued   bool
	quitting      bool
}

// New constructs the host model over the discovered repositories.
func New(cfg *config.AppConfig, repos []*models.Repository, gw *git.Gateway) *Model {
	ctx, cancel := context.WithCancel(context.Background())

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := &Model{
		cfg:     cfg,
		gw:      gw,
		mgr:     worktree.NewManager(gw),
		engine:  fetch.NewEngine(gw),
		st:      state.New(repos, cfg.ShowAllRepositories),
		keys:    defaultKeyMap(),
		help:    help.New(),
		spinner: sp,
		ctx:     ctx,
		cancel:  cancel,
	}

	if cfg.AutoRefresh {
		m.startWatcher()
	}
	return m
}

// State exposes the dispatcher model. Meant for tests and the host binary.
func (m *Model) State() *state.Model {
	return m.st
}

// Close releases the engine, the watcher, and any in-flight subprocesses.
// Safe to call more than once.
func (m *Model) Close() {
	m.closeOnce.Do(func() {
		m.cancel()
		m.engine.Close()
		if m.watcher != nil {
			m.watcher.Stop()
		}
	})
}

func (m *Model) startWatcher() {
	primary := m.st.PrimaryRepository()
	if primary == nil {
		return
	}
	commonDir, err := m.gw.CommonDir(m.ctx, primary.Root)
	if err != nil {
		return
	}
	extra := make([]string, 0, len(m.st.Repositories))
	for _, repo := range m.st.Repositories {
		extra = append(extra, repo.WorktreesDir())
	}
	watcher, err := NewWatcher(commonDir, extra)
	if err != nil {
		log.Printf("ui: watcher disabled: %v", err)
		return
	}
	m.watcher = watcher
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.spinner.Tick,
		m.refreshWorktrees(),
		m.awaitFetchResult(),
	}
	m.refreshing = true
	m.fetchQueued = true
	if m.watcher != nil {
		cmds = append(cmds, m.awaitWatchEvent())
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model. This is the only goroutine that touches the
// state model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case worktreesLoadedMsg:
		return m, m.handleWorktreesLoaded(msg)

	case fetchResultMsg:
		m.st.Apply(msg.result)
		for _, res := range m.engine.Drain(drainBound) {
			m.st.Apply(res)
		}
		return m, m.awaitFetchResult()

	case resumeFinishedMsg:
		return m, m.handleResumeFinished(msg)

	case watchEventMsg:
		var cmds []tea.Cmd
		if m.watcher != nil {
			if m.watcher.ShouldRefresh(time.Now()) && !m.refreshing {
				cmds = append(cmds, m.executeCommands([]state.Command{
					state.RefreshList{}, state.StartBackgroundFetch{},
				}))
			}
			cmds = append(cmds, m.awaitWatchEvent())
		}
		return m, tea.Batch(cmds...)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// handleKey maps key events to dispatcher intents. Text-entry modes consume
// printable runes; Normal mode goes through the key map.
func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch m.st.Mode {
	case state.ModeCreating:
		switch msg.Type {
		case tea.KeyEnter:
			return m.dispatch(state.Submit{})
		case tea.KeyEscape:
			return m.dispatch(state.Cancel{})
		case tea.KeyTab:
			return m.dispatch(state.CycleTargetRepository{})
		case tea.KeyBackspace:
			return m.dispatch(state.Backspace{})
		case tea.KeyRunes, tea.KeySpace:
			return m.typeRunes(msg)
		case tea.KeyCtrlC:
			return m.dispatch(state.RequestQuit{})
		}
		return nil

	case state.ModeFiltering:
		switch msg.Type {
		case tea.KeyEnter:
			return m.dispatch(state.Submit{})
		case tea.KeyEscape:
			return m.dispatch(state.Cancel{})
		case tea.KeyBackspace:
			return m.dispatch(state.Backspace{})
		case tea.KeyRunes, tea.KeySpace:
			return m.typeRunes(msg)
		case tea.KeyCtrlC:
			return m.dispatch(state.RequestQuit{})
		}
		return nil

	case state.ModeSelectingRepo:
		switch {
		case msg.Type == tea.KeyEnter:
			return m.dispatch(state.Submit{})
		case msg.Type == tea.KeyEscape:
			return m.dispatch(state.Cancel{})
		case key.Matches(msg, m.keys.Up):
			return m.dispatch(state.MoveSelection{Delta: -1})
		case key.Matches(msg, m.keys.Down):
			return m.dispatch(state.MoveSelection{Delta: 1})
		case key.Matches(msg, m.keys.Quit):
			return m.dispatch(state.RequestQuit{})
		}
		return nil
	}

	switch {
	case key.Matches(msg, m.keys.Up):
		return m.dispatch(state.MoveSelection{Delta: -1})
	case key.Matches(msg, m.keys.Down):
		return m.dispatch(state.MoveSelection{Delta: 1})
	case key.Matches(msg, m.keys.Create):
		return m.dispatch(state.StartCreating{})
	case key.Matches(msg, m.keys.Delete):
		return m.dispatch(state.RequestDelete{})
	case key.Matches(msg, m.keys.ForceDelete):
		return m.dispatch(state.RequestDelete{Force: true})
	case key.Matches(msg, m.keys.Resume):
		return m.dispatch(state.RequestResume{})
	case key.Matches(msg, m.keys.Refresh):
		return m.dispatch(state.RequestRefresh{})
	case key.Matches(msg, m.keys.Filter):
		return m.dispatch(state.StartFiltering{})
	case key.Matches(msg, m.keys.SelectRepo):
		return m.dispatch(state.StartSelectingRepo{})
	case key.Matches(msg, m.keys.ToggleAll):
		return m.dispatch(state.ToggleShowAll{})
	case key.Matches(msg, m.keys.Quit):
		return m.dispatch(state.RequestQuit{})
	}
	return nil
}

func (m *Model) typeRunes(msg tea.KeyMsg) tea.Cmd {
	var cmds []tea.Cmd
	runes := msg.Runes
	if msg.Type == tea.KeySpace {
		runes = []rune{' '}
	}
	for _, r := range runes {
		if cmd := m.dispatch(state.TypeRune{Rune: r}); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return tea.Batch(cmds...)
}

func (m *Model) dispatch(intent state.Intent) tea.Cmd {
	return m.executeCommands(m.st.Update(intent))
}

// executeCommands runs the dispatcher's commands. Create, delete, and
// refresh-list execute synchronously and feed their outcome back into the
// status message before control returns; resume suspends the terminal.
func (m *Model) executeCommands(commands []state.Command) tea.Cmd {
	var cmds []tea.Cmd
	for _, command := range commands {
		switch c := command.(type) {
		case state.Quit:
			m.quitting = true
			m.Close()
			cmds = append(cmds, tea.Quit)

		case state.CreateWorktree:
			wt, err := m.mgr.Create(m.ctx, c.Repository, c.Name)
			if err != nil {
				m.st.StatusMessage = fmt.Sprintf("Create failed: %v", err)
				break
			}
			m.st.StatusMessage = fmt.Sprintf("Created session %s", wt.Name())
			cmds = append(cmds, m.executeCommands([]state.Command{
				state.RefreshList{}, state.StartBackgroundFetch{},
			}))

		case state.DeleteWorktree:
			warning, err := m.mgr.Remove(m.ctx, c.Worktree, c.Force)
			switch {
			case err != nil:
				m.st.StatusMessage = fmt.Sprintf("Delete failed: %v", err)
			case warning != "":
				m.st.StatusMessage = warning
			default:
				m.st.StatusMessage = fmt.Sprintf("Deleted session %s", c.Worktree.Name())
			}
			cmds = append(cmds, m.executeCommands([]state.Command{
				state.RefreshList{}, state.StartBackgroundFetch{},
			}))

		case state.RefreshList:
			m.refreshing = true
			cmds = append(cmds, m.refreshWorktrees(), m.spinner.Tick)

		case state.StartBackgroundFetch:
			if m.refreshing {
				// Snapshot after the reload lands, not before.
				m.fetchQueued = true
			} else {
				m.startFetchRound()
			}

		case state.ResumeWorktree:
			cmds = append(cmds, m.resumeCmd(c.Worktree))
		}
	}
	return tea.Batch(cmds...)
}

func (m *Model) refreshWorktrees() tea.Cmd {
	repos := m.st.Repositories
	return func() tea.Msg {
		wts, err := m.mgr.List(m.ctx, repos)
		return worktreesLoadedMsg{worktrees: wts, err: err}
	}
}

func (m *Model) handleWorktreesLoaded(msg worktreesLoadedMsg) tea.Cmd {
	m.refreshing = false
	if msg.err != nil {
		m.st.StatusMessage = fmt.Sprintf("Refresh: %v", msg.err)
	}
	m.st.SetWorktrees(msg.worktrees)
	if m.fetchQueued {
		m.fetchQueued = false
		m.startFetchRound()
	}
	return nil
}

// startFetchRound advances the generation and hands an immutable snapshot to
// the pool; results from any earlier round are now stale.
func (m *Model) startFetchRound() {
	generation := m.st.NextGeneration()
	m.engine.StartRound(m.ctx, generation, m.st.FetchSnapshot())
}

func (m *Model) awaitFetchResult() tea.Cmd {
	return func() tea.Msg {
		res, ok := <-m.engine.Results()
		if !ok {
			return nil
		}
		return fetchResultMsg{result: res}
	}
}

func (m *Model) awaitWatchEvent() tea.Cmd {
	watcher := m.watcher
	return func() tea.Msg {
		if _, ok := <-watcher.Events; !ok {
			return nil
		}
		return watchEventMsg{}
	}
}

func (m *Model) resumeCmd(wt *models.Worktree) tea.Cmd {
	runner := &resumeRunner{ctx: m.ctx, mgr: m.mgr, wt: wt}
	return tea.Exec(runner, func(err error) tea.Msg {
		return resumeFinishedMsg{err: err}
	})
}

func (m *Model) handleResumeFinished(msg resumeFinishedMsg) tea.Cmd {
	if msg.err != nil {
		m.st.StatusMessage = fmt.Sprintf("Resume: %v", msg.err)
	} else {
		m.st.StatusMessage = "Session resumed"
	}
	return m.executeCommands([]state.Command{
		state.RefreshList{}, state.StartBackgroundFetch{},
	})
}
