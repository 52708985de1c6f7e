package ui

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	log "github.com/chmouel/cwt/internal/log"
)

// watchDebounce is the minimum gap between watcher-driven refreshes.
const watchDebounce = 600 * time.Millisecond

// Watcher coalesces filesystem activity under the git common directory and
// the session directories into refresh signals.
type Watcher struct {
	Events chan struct{}

	watcher     *fsnotify.Watcher
	roots       []string
	done        chan struct{}
	mu          sync.Mutex
	paths       map[string]struct{}
	lastRefresh time.Time
}

// NewWatcher watches refs, logs, and worktree metadata under commonDir plus
// any extra directories (the repositories' session directories).
func NewWatcher(commonDir string, extra []string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		Events:  make(chan struct{}, 1),
		watcher: fsw,
		done:    make(chan struct{}),
		paths:   make(map[string]struct{}),
	}
	w.roots = []string{
		filepath.Join(commonDir, "refs"),
		filepath.Join(commonDir, "logs"),
		filepath.Join(commonDir, "worktrees"),
	}
	w.roots = append(w.roots, extra...)

	w.addWatchDir(commonDir)
	for _, root := range w.roots {
		w.addWatchTree(root)
	}

	go w.run()
	return w, nil
}

// Stop closes the watcher. Events is closed once the run loop exits.
func (w *Watcher) Stop() {
	close(w.done)
	_ = w.watcher.Close()
}

// ShouldRefresh applies the debounce window to a received event.
func (w *Watcher) ShouldRefresh(now time.Time) bool {
	if !w.lastRefresh.IsZero() && now.Sub(w.lastRefresh) < watchDebounce {
		return false
	}
	w.lastRefresh = now
	return true
}

func (w *Watcher) run() {
	defer close(w.Events)
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				w.maybeWatchNewDir(event.Name)
			}
			w.signal()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("watch: %v", err)
		}
	}
}

func (w *Watcher) signal() {
	select {
	case <-w.done:
		return
	default:
	}
	select {
	case w.Events <- struct{}{}:
	default:
	}
}

// maybeWatchNewDir registers directories created under a watch root so
// activity inside fresh worktrees keeps triggering refreshes.
func (w *Watcher) maybeWatchNewDir(path string) {
	if !w.isUnderRoot(path) {
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	w.addWatchDir(path)
}

func (w *Watcher) isUnderRoot(path string) bool {
	if path == "" {
		return false
	}
	for _, root := range w.roots {
		if root == "" {
			continue
		}
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (w *Watcher) addWatchDir(path string) {
	if path == "" {
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.paths[path]; ok {
		return
	}
	if err := w.watcher.Add(path); err != nil {
		log.Printf("watch: add %s: %v", path, err)
		return
	}
	w.paths[path] = struct{}{}
}

func (w *Watcher) addWatchTree(root string) {
	if root == "" {
		return
	}
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		w.addWatchDir(path)
		return nil
	})
}
