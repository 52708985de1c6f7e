package discover

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chmouel/cwt/internal/config"
	"github.com/chmouel/cwt/internal/git"
	"github.com/chmouel/cwt/internal/models"
	"github.com/chmouel/cwt/internal/utils"
)

// gitDirRunner fakes `rev-parse --git-common-dir` by answering <dir>/.git for
// any directory carrying a .git marker.
func gitDirRunner(t *testing.T) git.Runner {
	t.Helper()
	return func(_ context.Context, dir string, args ...string) (string, error) {
		require.Equal(t, []string{"rev-parse", "--path-format=absolute", "--git-common-dir"}, args)
		gitDir := filepath.Join(dir, ".git")
		if _, err := os.Stat(gitDir); err != nil {
			return "", &git.GitError{Args: args, Stderr: "fatal: not a git repository", Code: 128}
		}
		return gitDir + "\n", nil
	}
}

func mkRepoDir(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(path, ".git"), 0o750))
}

func TestDiscoverStripsGitDir(t *testing.T) {
	root := utils.Canonicalize(t.TempDir())
	mkRepoDir(t, root)
	d := New(git.NewGatewayWithRunner(gitDirRunner(t)))

	repo, err := d.Discover(context.Background(), root)
	require.NoError(t, err)
	require.NotNil(t, repo)
	assert.Equal(t, root, repo.Root)
}

func TestDiscoverOutsideRepositoryReturnsNil(t *testing.T) {
	d := New(git.NewGatewayWithRunner(gitDirRunner(t)))

	repo, err := d.Discover(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, repo)
}

func TestFindProjectRootPicksTopmost(t *testing.T) {
	top := t.TempDir()
	mid := filepath.Join(top, "mid")
	leaf := filepath.Join(mid, "leaf")
	require.NoError(t, os.MkdirAll(filepath.Join(top, models.ConfigDirName), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(mid, models.ConfigDirName), 0o750))
	require.NoError(t, os.MkdirAll(leaf, 0o750))

	got, ok := FindProjectRoot(leaf)
	require.True(t, ok)
	assert.Equal(t, top, got, "the highest ancestor with a config dir wins")
}

func TestFindProjectRootMissing(t *testing.T) {
	_, ok := FindProjectRoot(t.TempDir())
	assert.False(t, ok)
}

func TestDiscoverAllFromNestedRepository(t *testing.T) {
	project := utils.Canonicalize(t.TempDir())
	mkRepoDir(t, project)
	require.NoError(t, os.MkdirAll(filepath.Join(project, models.ConfigDirName), 0o750))

	svc := filepath.Join(project, "svc")
	mkRepoDir(t, svc)

	d := New(git.NewGatewayWithRunner(gitDirRunner(t)))
	repos, err := d.DiscoverAll(context.Background(), svc)
	require.NoError(t, err)

	require.NotEmpty(t, repos)
	assert.Equal(t, project, repos[0].Root, "project root repository comes first")

	var found *models.Repository
	for _, repo := range repos {
		if repo.Root == svc {
			found = repo
		}
	}
	require.NotNil(t, found, "starting repository must be in the result")
	assert.Equal(t, project, found.ProjectRoot)
	require.NotNil(t, found.Parent)
	assert.Equal(t, project, found.Parent.Root)
}

func TestDiscoverAllStandaloneRepository(t *testing.T) {
	root := utils.Canonicalize(t.TempDir())
	mkRepoDir(t, root)

	d := New(git.NewGatewayWithRunner(gitDirRunner(t)))
	repos, err := d.DiscoverAll(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, root, repos[0].Root)
	assert.Equal(t, root, repos[0].ProjectRoot)
	assert.Nil(t, repos[0].Parent)
}

func TestNestedRepositories(t *testing.T) {
	project := utils.Canonicalize(t.TempDir())
	mkRepoDir(t, project)

	mkRepoDir(t, filepath.Join(project, "api"))
	mkRepoDir(t, filepath.Join(project, "web"))
	mkRepoDir(t, filepath.Join(project, ".hidden"))
	require.NoError(t, os.MkdirAll(filepath.Join(project, "docs"), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(project, models.WorktreesDirName, "x"), 0o750))

	repo := &models.Repository{Root: project, ProjectRoot: project}
	repo.SetConfig(&config.RepoConfig{
		// "api" both configured and auto-discovered: must appear once.
		Nested: config.NestedConfig{Paths: []string{"api"}},
	})

	d := New(git.NewGatewayWithRunner(gitDirRunner(t)))
	nested := d.NestedRepositories(repo)

	var roots []string
	for _, r := range nested {
		roots = append(roots, filepath.Base(r.Root))
		assert.Equal(t, project, r.ProjectRoot)
		assert.Equal(t, repo, r.Parent)
	}
	assert.ElementsMatch(t, []string{"api", "web"}, roots)
}

func TestNestedRepositoriesAutoDiscoverDisabled(t *testing.T) {
	project := utils.Canonicalize(t.TempDir())
	mkRepoDir(t, project)
	mkRepoDir(t, filepath.Join(project, "api"))
	mkRepoDir(t, filepath.Join(project, "web"))

	off := false
	repo := &models.Repository{Root: project, ProjectRoot: project}
	repo.SetConfig(&config.RepoConfig{Nested: config.NestedConfig{
		Paths:        []string{"api"},
		AutoDiscover: &off,
	}})

	d := New(git.NewGatewayWithRunner(gitDirRunner(t)))
	nested := d.NestedRepositories(repo)
	require.Len(t, nested, 1)
	assert.Equal(t, filepath.Join(project, "api"), nested[0].Root)
}
