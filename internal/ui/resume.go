package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chmouel/cwt/internal/models"
	"github.com/chmouel/cwt/internal/worktree"
)

// resumeRunner drives the resume protocol while the interactive surface is
// suspended. The setup hook's output goes straight to the real terminal, and
// a failed hook is acknowledged with a plain y/N prompt.
type resumeRunner struct {
	ctx context.Context
	mgr *worktree.Manager
	wt  *models.Worktree

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func (r *resumeRunner) SetStdin(in io.Reader)   { r.stdin = in }
func (r *resumeRunner) SetStdout(out io.Writer) { r.stdout = out }
func (r *resumeRunner) SetStderr(err io.Writer) { r.stderr = err }

// Run implements tea.ExecCommand.
func (r *resumeRunner) Run() error {
	return r.mgr.Resume(r.ctx, r.wt, worktree.ResumeOptions{
		Stdin:              r.stdin,
		Stdout:             r.stdout,
		Stderr:             r.stderr,
		ConfirmHookFailure: r.confirmHookFailure,
	})
}

func (r *resumeRunner) confirmHookFailure(err error) bool {
	fmt.Fprintf(r.stderr, "Setup hook failed: %v\n", err)
	fmt.Fprint(r.stderr, "Continue and clear the setup marker? [y/N] ")

	answer, readErr := bufio.NewReader(r.stdin).ReadString('\n')
	if readErr != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
