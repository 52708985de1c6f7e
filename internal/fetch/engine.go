// Package fetch recomputes per-worktree dirty status and commit age in the
// background. Every round is stamped with a generation number; results from
// superseded rounds are never applied, which is the engine's only
// cancellation mechanism: running work is ignored, not interrupted.
package fetch

import (
	"context"
	"sync"

	log "github.com/chmouel/cwt/internal/log"
)

// WorkerCount is the fixed size of the status worker pool.
const WorkerCount = 4

const resultBuffer = 64

// StatusClient is the subset of the git gateway the engine needs.
type StatusClient interface {
	Status(ctx context.Context, path string) (bool, error)
	CommitAges(ctx context.Context, repoRoot string, shas []string) (map[string]string, error)
}

// Snapshot is the immutable view of one worktree taken by the state-owning
// thread when a round starts; workers never read application state directly.
type Snapshot struct {
	Path     string
	SHA      string
	RepoRoot string
}

// Task is one unit of status work handed to the pool.
type Task struct {
	ctx        context.Context
	Path       string
	Generation uint64
}

// Result is a generation-stamped fetch outcome. Exactly two variants exist:
// DirtyResult and AgeResult.
type Result interface {
	// Stamp returns the worktree path and round generation used to decide
	// whether the result still applies.
	Stamp() (path string, generation uint64)
}

// DirtyResult carries a recomputed dirty flag.
type DirtyResult struct {
	Path       string
	Generation uint64
	Dirty      bool
}

// Stamp implements Result.
func (r DirtyResult) Stamp() (string, uint64) { return r.Path, r.Generation }

// AgeResult carries a recomputed human-relative commit age.
type AgeResult struct {
	Path       string
	Generation uint64
	Age        string
}

// Stamp implements Result.
func (r AgeResult) Stamp() (string, uint64) { return r.Path, r.Generation }

// Engine owns the worker pool and the single inbound results channel.
// Shutdown is signalled through done so that no goroutine ever sends on a
// closed channel: round feeders may still be mid-send when Close runs.
type Engine struct {
	client    StatusClient
	tasks     chan Task
	results   chan Result
	done      chan struct{}
	closeOnce sync.Once
}

// NewEngine constructs an Engine and starts its workers.
func NewEngine(client StatusClient) *Engine {
	e := &Engine{
		client:  client,
		tasks:   make(chan Task),
		results: make(chan Result, resultBuffer),
		done:    make(chan struct{}),
	}
	for i := 0; i < WorkerCount; i++ {
		go e.worker()
	}
	return e
}

// Results is the single inbound channel consumed by the state-owning thread.
func (e *Engine) Results() <-chan Result {
	return e.results
}

// Close stops the worker pool and unblocks any in-flight round feeders.
// Safe to call more than once and concurrently with StartRound.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.done)
	})
}

// StartRound dispatches one status task per worktree plus a single helper
// task that batch-resolves commit ages, all stamped with generation. It never
// blocks the caller: task feeding happens on its own goroutine.
func (e *Engine) StartRound(ctx context.Context, generation uint64, snapshot []Snapshot) {
	go func() {
		for _, snap := range snapshot {
			select {
			case e.tasks <- Task{ctx: ctx, Path: snap.Path, Generation: generation}:
			case <-ctx.Done():
				return
			case <-e.done:
				return
			}
		}
	}()

	go e.fetchAges(ctx, generation, snapshot)
}

func (e *Engine) worker() {
	for {
		var task Task
		select {
		case task = <-e.tasks:
		case <-e.done:
			return
		}

		dirty, err := e.client.Status(task.ctx, task.Path)
		if err != nil {
			log.Printf("fetch: status %s: %v", task.Path, err)
			continue
		}
		select {
		case e.results <- DirtyResult{Path: task.Path, Generation: task.Generation, Dirty: dirty}:
		case <-e.done:
			return
		}
	}
}

// fetchAges groups the snapshot by repository, batch-queries commit ages, and
// emits one result per worktree whose commit id resolved.
func (e *Engine) fetchAges(ctx context.Context, generation uint64, snapshot []Snapshot) {
	byRepo := make(map[string][]Snapshot)
	for _, snap := range snapshot {
		if snap.SHA == "" {
			continue
		}
		byRepo[snap.RepoRoot] = append(byRepo[snap.RepoRoot], snap)
	}

	for repoRoot, snaps := range byRepo {
		shas := make([]string, 0, len(snaps))
		for _, snap := range snaps {
			shas = append(shas, snap.SHA)
		}
		ages, err := e.client.CommitAges(ctx, repoRoot, shas)
		if err != nil {
			log.Printf("fetch: commit ages for %s: %v", repoRoot, err)
			continue
		}
		for _, snap := range snaps {
			age, ok := ages[snap.SHA]
			if !ok {
				continue
			}
			select {
			case e.results <- AgeResult{Path: snap.Path, Generation: generation, Age: age}:
			case <-ctx.Done():
				return
			case <-e.done:
				return
			}
		}
	}
}

// Drain collects up to max pending results without blocking. The state-owning
// thread uses it for its bounded once-per-iteration drain.
func (e *Engine) Drain(max int) []Result {
	var drained []Result
	for len(drained) < max {
		select {
		case r := <-e.results:
			drained = append(drained, r)
		default:
			return drained
		}
	}
	return drained
}
