// Package main is the entry point for the cwt application.
package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	urfavecli "github.com/urfave/cli/v3"

	"github.com/chmouel/cwt/internal/config"
	"github.com/chmouel/cwt/internal/discover"
	"github.com/chmouel/cwt/internal/git"
	"github.com/chmouel/cwt/internal/log"
	"github.com/chmouel/cwt/internal/models"
	"github.com/chmouel/cwt/internal/ui"
	"github.com/chmouel/cwt/internal/utils"
)

var version = "dev"

func main() {
	root := &urfavecli.Command{
		Name:    "cwt",
		Usage:   "Concurrent worktree sessions for git repositories",
		Version: version,

		Flags: globalFlags(),

		Commands: []*urfavecli.Command{
			createCommand(),
			deleteCommand(),
			listCommand(),
		},

		Action: runTUI,
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func globalFlags() []urfavecli.Flag {
	return []urfavecli.Flag{
		&urfavecli.StringFlag{
			Name:  "debug-log",
			Usage: "Write debug logs to this file",
		},
		&urfavecli.StringFlag{
			Name:  "config-file",
			Usage: "Path to the configuration file",
		},
		&urfavecli.StringFlag{
			Name:    "chdir",
			Aliases: []string{"C"},
			Usage:   "Run as if started in this directory",
		},
		&urfavecli.BoolFlag{
			Name:    "all",
			Aliases: []string{"a"},
			Usage:   "Show worktrees from all discovered repositories",
		},
	}
}

// setup loads the configuration, wires debug logging, and discovers the
// repository set for the working directory. Shared by the TUI and the
// subcommands.
func setup(ctx context.Context, cmd *urfavecli.Command) (*config.AppConfig, *git.Gateway, []*models.Repository, error) {
	if debugLog := cmd.String("debug-log"); debugLog != "" {
		expanded, err := utils.ExpandPath(debugLog)
		if err != nil {
			expanded = debugLog
		}
		if err := log.SetFile(expanded); err != nil {
			fmt.Fprintf(os.Stderr, "Error opening debug log file %q: %v\n", expanded, err)
		}
	}

	cfg, err := config.LoadConfig(cmd.String("config-file"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		cfg = config.DefaultConfig()
	}

	if cmd.String("debug-log") == "" {
		if cfg.DebugLog != "" {
			path := cfg.DebugLog
			if expanded, err := utils.ExpandPath(path); err == nil {
				path = expanded
			}
			if err := log.SetFile(path); err != nil {
				fmt.Fprintf(os.Stderr, "Error opening debug log file from config %q: %v\n", path, err)
			}
		} else {
			_ = log.SetFile("")
		}
	}

	if cmd.IsSet("all") {
		cfg.ShowAllRepositories = cmd.Bool("all")
	}

	dir := cmd.String("chdir")
	if dir == "" {
		dir, err = os.Getwd()
		if err != nil {
			return nil, nil, nil, err
		}
	} else if dir, err = utils.ExpandPath(dir); err != nil {
		return nil, nil, nil, err
	}

	gw := git.NewGateway()
	repos, err := discover.New(gw).DiscoverAll(ctx, dir)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(repos) == 0 {
		return nil, nil, nil, fmt.Errorf("not inside a git repository: %s", dir)
	}
	return cfg, gw, repos, nil
}

// runTUI is the default action when no subcommand is given.
func runTUI(ctx context.Context, cmd *urfavecli.Command) error {
	cfg, gw, repos, err := setup(ctx, cmd)
	if err != nil {
		_ = log.Close()
		return err
	}

	model := ui.New(cfg, repos, gw)
	p := tea.NewProgram(model, tea.WithAltScreen())

	_, err = p.Run()
	model.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running app: %v\n", err)
		_ = log.Close()
		return err
	}

	if err := log.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing debug log: %v\n", err)
	}
	return nil
}
