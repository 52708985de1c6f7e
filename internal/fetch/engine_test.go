package fetch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubClient answers status and age queries from fixed maps.
type stubClient struct {
	mu    sync.Mutex
	dirty map[string]bool
	ages  map[string]string
	calls int
}

func (s *stubClient) Status(_ context.Context, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.dirty[path], nil
}

func (s *stubClient) CommitAges(_ context.Context, _ string, shas []string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string)
	for _, sha := range shas {
		if age, ok := s.ages[sha]; ok {
			out[sha] = age
		}
	}
	return out, nil
}

func collect(t *testing.T, e *Engine, n int) []Result {
	t.Helper()
	var results []Result
	timeout := time.After(5 * time.Second)
	for len(results) < n {
		select {
		case r := <-e.Results():
			results = append(results, r)
		case <-timeout:
			t.Fatalf("timed out after %d of %d results", len(results), n)
		}
	}
	return results
}

func TestStartRoundEmitsDirtyAndAgeResults(t *testing.T) {
	client := &stubClient{
		dirty: map[string]bool{"/repo/.worktrees/a": true, "/repo": false},
		ages:  map[string]string{"aaa": "2 days ago", "bbb": "5 weeks ago"},
	}
	e := NewEngine(client)
	defer e.Close()

	snapshot := []Snapshot{
		{Path: "/repo", SHA: "aaa", RepoRoot: "/repo"},
		{Path: "/repo/.worktrees/a", SHA: "bbb", RepoRoot: "/repo"},
	}
	e.StartRound(context.Background(), 1, snapshot)

	// Two dirty results plus two age results.
	results := collect(t, e, 4)

	dirtyByPath := make(map[string]bool)
	ageByPath := make(map[string]string)
	for _, r := range results {
		path, gen := r.Stamp()
		assert.Equal(t, uint64(1), gen)
		switch v := r.(type) {
		case DirtyResult:
			dirtyByPath[path] = v.Dirty
		case AgeResult:
			ageByPath[path] = v.Age
		}
	}
	assert.Equal(t, map[string]bool{"/repo": false, "/repo/.worktrees/a": true}, dirtyByPath)
	assert.Equal(t, map[string]string{"/repo": "2 days ago", "/repo/.worktrees/a": "5 weeks ago"}, ageByPath)
}

func TestStartRoundSkipsEmptySHAForAges(t *testing.T) {
	client := &stubClient{dirty: map[string]bool{}, ages: map[string]string{}}
	e := NewEngine(client)
	defer e.Close()

	e.StartRound(context.Background(), 7, []Snapshot{{Path: "/fresh", RepoRoot: "/repo"}})

	results := collect(t, e, 1)
	_, ok := results[0].(DirtyResult)
	assert.True(t, ok, "a worktree without a commit id only yields a dirty result")
}

func TestGenerationStampsSurviveAcrossRounds(t *testing.T) {
	client := &stubClient{
		dirty: map[string]bool{"/repo": true},
		ages:  map[string]string{},
	}
	e := NewEngine(client)
	defer e.Close()

	snapshot := []Snapshot{{Path: "/repo", RepoRoot: "/repo"}}
	e.StartRound(context.Background(), 1, snapshot)
	first := collect(t, e, 1)
	_, gen := first[0].Stamp()
	assert.Equal(t, uint64(1), gen)

	e.StartRound(context.Background(), 2, snapshot)
	second := collect(t, e, 1)
	_, gen = second[0].Stamp()
	assert.Equal(t, uint64(2), gen, "each round carries its own stamp; consumers drop mismatches")
}

func TestDrainNeverBlocks(t *testing.T) {
	client := &stubClient{dirty: map[string]bool{"/repo": true}}
	e := NewEngine(client)
	defer e.Close()

	assert.Empty(t, e.Drain(16), "empty queue drains to nothing immediately")

	e.StartRound(context.Background(), 1, []Snapshot{{Path: "/repo", RepoRoot: "/repo"}})
	// Wait for the result to land, then drain it without blocking.
	deadline := time.Now().Add(5 * time.Second)
	var drained []Result
	for len(drained) == 0 && time.Now().Before(deadline) {
		drained = e.Drain(16)
		time.Sleep(10 * time.Millisecond)
	}
	require.Len(t, drained, 1)
}

func TestDrainRespectsBound(t *testing.T) {
	client := &stubClient{dirty: map[string]bool{}}
	e := NewEngine(client)
	defer e.Close()

	snapshot := make([]Snapshot, 10)
	for i := range snapshot {
		snapshot[i] = Snapshot{Path: string(rune('a' + i)), RepoRoot: "/repo"}
	}
	e.StartRound(context.Background(), 1, snapshot)

	total := 0
	deadline := time.Now().Add(5 * time.Second)
	for total < 10 && time.Now().Before(deadline) {
		batch := e.Drain(3)
		assert.LessOrEqual(t, len(batch), 3)
		total += len(batch)
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, 10, total)
}

func TestCancelledContextStopsFeeding(t *testing.T) {
	client := &stubClient{dirty: map[string]bool{}}
	e := NewEngine(client)
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.StartRound(ctx, 1, []Snapshot{{Path: "/repo", RepoRoot: "/repo"}})

	// The round may emit nothing at all; it must not wedge the engine.
	time.Sleep(50 * time.Millisecond)
	e.StartRound(context.Background(), 2, []Snapshot{{Path: "/repo", RepoRoot: "/repo"}})
	results := collect(t, e, 1)
	_, gen := results[0].Stamp()
	assert.GreaterOrEqual(t, gen, uint64(1))
}

func TestCloseDuringActiveRound(t *testing.T) {
	// Quitting the host mid-fetch cancels the round context and closes the
	// engine while the feeder goroutine is still sending tasks. The feeder
	// must exit cleanly instead of panicking on a dead channel.
	client := &stubClient{dirty: map[string]bool{}}

	snapshot := make([]Snapshot, 512)
	for i := range snapshot {
		snapshot[i] = Snapshot{Path: fmt.Sprintf("/repo/.worktrees/wt%03d", i), RepoRoot: "/repo"}
	}

	for round := 0; round < 100; round++ {
		e := NewEngine(client)
		ctx, cancel := context.WithCancel(context.Background())
		e.StartRound(ctx, uint64(round+1), snapshot)
		cancel()
		e.Close()
	}

	// Give the orphaned feeders and workers a moment; any send on a closed
	// channel would crash the test binary here.
	time.Sleep(100 * time.Millisecond)
}

func TestCloseIsIdempotent(t *testing.T) {
	e := NewEngine(&stubClient{dirty: map[string]bool{}})
	e.Close()
	assert.NotPanics(t, func() { e.Close() })
}

func TestCloseUnblocksSaturatedWorkers(t *testing.T) {
	// With nobody reading results, workers eventually block on the results
	// send once its buffer fills. Close must release them.
	client := &stubClient{dirty: map[string]bool{}}
	e := NewEngine(client)

	snapshot := make([]Snapshot, resultBuffer*4)
	for i := range snapshot {
		snapshot[i] = Snapshot{Path: fmt.Sprintf("/repo/.worktrees/wt%03d", i), RepoRoot: "/repo"}
	}
	e.StartRound(context.Background(), 1, snapshot)

	// Wait until the buffer is full so at least one worker sits in the send.
	deadline := time.Now().Add(5 * time.Second)
	for len(e.results) < resultBuffer && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, resultBuffer, len(e.results), "results buffer never filled")

	e.Close()

	// Workers stop producing once released; the queue length settles.
	time.Sleep(100 * time.Millisecond)
	settled := len(e.results)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, settled, len(e.results))
}
