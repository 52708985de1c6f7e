// Package config loads cwt configuration: the global application config from
// YAML and per-repository configuration from .cwt/config.json.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	log "github.com/chmouel/cwt/internal/log"
)

// Symlink strategies decide where a shared resource is sourced from when it
// is linked into a worktree.
const (
	// StrategyNearest walks from the repository root up to the project root
	// and links the first existing source.
	StrategyNearest = "nearest"
	// StrategyLocal links from the owning repository root.
	StrategyLocal = "local"
	// StrategyParent links from the project root.
	StrategyParent = "parent"
)

// SymlinkRule names one resource to link into new worktrees and the strategy
// used to locate its source.
type SymlinkRule struct {
	Name     string `json:"name"`
	Strategy string `json:"strategy"`
}

// NestedConfig controls nested-repository discovery under a repository root.
type NestedConfig struct {
	// Paths lists explicit nested repository paths, relative to the root
	// unless absolute.
	Paths []string `json:"paths"`
	// AutoDiscover enables scanning immediate subdirectories for
	// repositories. Defaults to true when unset.
	AutoDiscover *bool `json:"auto_discover"`
}

// RepoConfig is the per-repository configuration stored at
// <root>/.cwt/config.json. The file may contain JSONC comments and trailing
// commas.
type RepoConfig struct {
	Symlinks []SymlinkRule `json:"symlinks"`
	Nested   NestedConfig  `json:"nested_repositories"`
}

// AutoDiscover reports whether nested repositories should be auto-detected.
func (c *RepoConfig) AutoDiscover() bool {
	if c.Nested.AutoDiscover == nil {
		return true
	}
	return *c.Nested.AutoDiscover
}

// DefaultRepoConfig returns the built-in repository defaults: link the
// project's .env and the dependency cache into each new worktree.
func DefaultRepoConfig() *RepoConfig {
	return &RepoConfig{
		Symlinks: []SymlinkRule{
			{Name: ".env", Strategy: StrategyNearest},
			{Name: "node_modules", Strategy: StrategyLocal},
		},
	}
}

// LoadRepoConfig reads <root>/.cwt/config.json. A missing or malformed file
// degrades to DefaultRepoConfig with a logged warning; it never fails the
// caller.
func LoadRepoConfig(root string) *RepoConfig {
	path := filepath.Join(root, ".cwt", "config.json")
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("config: reading %s: %v (using defaults)", path, err)
		}
		return DefaultRepoConfig()
	}

	cfg := &RepoConfig{}
	if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
		log.Printf("config: parsing %s: %v (using defaults)", path, err)
		return DefaultRepoConfig()
	}

	defaults := DefaultRepoConfig()
	if len(cfg.Symlinks) == 0 {
		cfg.Symlinks = defaults.Symlinks
	}
	for i, rule := range cfg.Symlinks {
		switch rule.Strategy {
		case StrategyNearest, StrategyLocal, StrategyParent:
		case "":
			cfg.Symlinks[i].Strategy = StrategyNearest
		default:
			log.Printf("config: %s: unknown symlink strategy %q for %q (using %q)",
				path, rule.Strategy, rule.Name, StrategyNearest)
			cfg.Symlinks[i].Strategy = StrategyNearest
		}
	}
	return cfg
}

// AppConfig defines the global cwt configuration options.
type AppConfig struct {
	// DebugLog is a file path for debug logging; empty disables it.
	DebugLog string `yaml:"debug_log"`
	// AutoRefresh enables the filesystem watcher that refreshes the list
	// when the repository changes on disk.
	AutoRefresh bool `yaml:"auto_refresh"`
	// ShowAllRepositories starts with nested repositories visible.
	ShowAllRepositories bool `yaml:"show_all_repositories"`
}

// DefaultConfig returns the default global configuration values.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		AutoRefresh:         true,
		ShowAllRepositories: true,
	}
}

// DefaultConfigPath is the global configuration location.
func DefaultConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cwt", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "cwt", "config.yaml")
}

// LoadConfig reads the global configuration from path, or from
// DefaultConfigPath when path is empty. A missing file yields defaults.
func LoadConfig(path string) (*AppConfig, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), err
	}
	return cfg, nil
}
