// Package main provides CLI command definitions for cwt.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"

	urfavecli "github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/chmouel/cwt/internal/git"
	"github.com/chmouel/cwt/internal/log"
	"github.com/chmouel/cwt/internal/models"
	"github.com/chmouel/cwt/internal/worktree"
)

// createCommand returns the create subcommand definition.
func createCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:      "create",
		Usage:     "Create a new session worktree",
		ArgsUsage: "<name>",
		Action: func(ctx context.Context, cmd *urfavecli.Command) error {
			return handleCreateAction(ctx, cmd)
		},
		Flags: []urfavecli.Flag{
			&urfavecli.StringFlag{
				Name:  "repo",
				Usage: "Target repository name (defaults to the enclosing repository)",
			},
		},
	}
}

func deleteCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:      "delete",
		Usage:     "Delete a session worktree and its branch",
		ArgsUsage: "<name-or-path>",
		Action: func(ctx context.Context, cmd *urfavecli.Command) error {
			return handleDeleteAction(ctx, cmd)
		},
		Flags: []urfavecli.Flag{
			&urfavecli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "Remove despite teardown failures and delete unmerged branches",
			},
		},
	}
}

func listCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List worktrees across the discovered repositories",
		Action: func(ctx context.Context, cmd *urfavecli.Command) error {
			return handleListAction(ctx, cmd)
		},
		Flags: []urfavecli.Flag{
			&urfavecli.BoolFlag{
				Name:    "pristine",
				Aliases: []string{"p"},
				Usage:   "Output paths only (one per line, suitable for scripting)",
			},
			&urfavecli.BoolFlag{
				Name:  "json",
				Usage: "Output as JSON",
			},
		},
	}
}

// handleCreateAction handles the create subcommand action.
func handleCreateAction(ctx context.Context, cmd *urfavecli.Command) error {
	defer func() { _ = log.Close() }()

	if cmd.NArg() == 0 {
		return fmt.Errorf("missing session name")
	}
	name := cmd.Args().Get(0)

	_, gw, repos, err := setup(ctx, cmd)
	if err != nil {
		return err
	}

	repo := repos[0]
	if want := cmd.String("repo"); want != "" {
		repo = nil
		for _, r := range repos {
			if r.DisplayName() == want {
				repo = r
				break
			}
		}
		if repo == nil {
			return fmt.Errorf("unknown repository %q", want)
		}
	}

	wt, err := worktree.NewManager(gw).Create(ctx, repo, name)
	if err != nil {
		return err
	}
	fmt.Println(wt.Path)
	return nil
}

// handleDeleteAction handles the delete subcommand action.
func handleDeleteAction(ctx context.Context, cmd *urfavecli.Command) error {
	defer func() { _ = log.Close() }()

	if cmd.NArg() == 0 {
		return fmt.Errorf("missing worktree name or path")
	}
	target := cmd.Args().Get(0)
	force := cmd.Bool("force")

	_, gw, repos, err := setup(ctx, cmd)
	if err != nil {
		return err
	}

	mgr := worktree.NewManager(gw)
	worktrees, err := mgr.List(ctx, repos)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}

	wt := findWorktree(worktrees, target)
	if wt == nil {
		return fmt.Errorf("no worktree matches %q", target)
	}
	if wt.IsMain {
		return fmt.Errorf("refusing to delete the main checkout %s", wt.Path)
	}

	warning, err := mgr.Remove(ctx, wt, force)
	if err != nil {
		return err
	}
	if warning != "" {
		fmt.Fprintln(os.Stderr, warning)
	}
	return nil
}

// findWorktree matches a worktree by exact path, cleaned path, or name.
func findWorktree(worktrees []*models.Worktree, target string) *models.Worktree {
	cleaned := filepath.Clean(target)
	for _, wt := range worktrees {
		if wt.Path == target || wt.Path == cleaned {
			return wt
		}
	}
	for _, wt := range worktrees {
		if !wt.IsMain && wt.Name() == target {
			return wt
		}
	}
	return nil
}

// worktreeJSON is the JSON output shape for one worktree.
type worktreeJSON struct {
	Path       string `json:"path"`
	Name       string `json:"name"`
	Branch     string `json:"branch"`
	Repository string `json:"repository"`
	IsMain     bool   `json:"is_main"`
	Dirty      bool   `json:"dirty"`
	LastCommit string `json:"last_commit,omitempty"`
}

// handleListAction handles the list subcommand action.
func handleListAction(ctx context.Context, cmd *urfavecli.Command) error {
	defer func() { _ = log.Close() }()

	pristine := cmd.Bool("pristine")
	jsonOutput := cmd.Bool("json")
	if pristine && jsonOutput {
		return fmt.Errorf("--pristine and --json are mutually exclusive")
	}

	_, gw, repos, err := setup(ctx, cmd)
	if err != nil {
		return err
	}

	worktrees, err := worktree.NewManager(gw).List(ctx, repos)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
	slices.SortFunc(worktrees, func(a, b *models.Worktree) int {
		return strings.Compare(a.Path, b.Path)
	})

	if pristine {
		for _, wt := range worktrees {
			fmt.Println(wt.Path)
		}
		return nil
	}

	annotate(ctx, gw, worktrees)

	if jsonOutput {
		return outputListJSON(worktrees)
	}
	return outputListTable(worktrees)
}

// annotate fills in dirty status and commit ages, one batch per repository.
func annotate(ctx context.Context, gw *git.Gateway, worktrees []*models.Worktree) {
	byRepo := make(map[string][]*models.Worktree)
	for _, wt := range worktrees {
		if dirty, err := gw.Status(ctx, wt.Path); err == nil {
			wt.Dirty = dirty
		}
		if wt.SHA != "" {
			byRepo[wt.Repo.Root] = append(byRepo[wt.Repo.Root], wt)
		}
	}
	for root, wts := range byRepo {
		shas := make([]string, 0, len(wts))
		for _, wt := range wts {
			shas = append(shas, wt.SHA)
		}
		ages, err := gw.CommitAges(ctx, root, shas)
		if err != nil {
			continue
		}
		for _, wt := range wts {
			wt.LastCommitAge = ages[wt.SHA]
		}
	}
}

func outputListJSON(worktrees []*models.Worktree) error {
	output := make([]worktreeJSON, 0, len(worktrees))
	for _, wt := range worktrees {
		output = append(output, worktreeJSON{
			Path:       wt.Path,
			Name:       wt.Name(),
			Branch:     wt.Branch,
			Repository: wt.Repo.DisplayName(),
			IsMain:     wt.IsMain,
			Dirty:      wt.Dirty,
			LastCommit: wt.LastCommitAge,
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

func outputListTable(worktrees []*models.Worktree) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tREPO\tBRANCH\tSTATUS\tLAST COMMIT\tPATH")

	for _, wt := range worktrees {
		status := "✓"
		if wt.Dirty {
			status = "~"
		}
		name := wt.Name()
		if wt.IsMain {
			name += " (main)"
		}
		path := wt.Path
		if width := terminalWidth(); width > 0 {
			path = shortenPath(path, width)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			name, wt.Repo.DisplayName(), wt.Branch, status, wt.LastCommitAge, path)
	}
	return w.Flush()
}

func terminalWidth() int {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 0
	}
	return width
}

// shortenPath abbreviates long paths with the home prefix so the table stays
// within narrow terminals.
func shortenPath(path string, width int) string {
	if home, err := os.UserHomeDir(); err == nil && strings.HasPrefix(path, home) {
		path = "~" + strings.TrimPrefix(path, home)
	}
	if len(path) > width/2 {
		parts := strings.Split(path, string(filepath.Separator))
		if len(parts) > 3 {
			path = "…" + string(filepath.Separator) +
				filepath.Join(parts[len(parts)-2], parts[len(parts)-1])
		}
	}
	return path
}
