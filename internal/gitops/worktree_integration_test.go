package gitops

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RevCBH/kyco/internal/testutil"
)

// initTestRepo creates a temp git repository with one commit and returns
// a GitOps rooted at it, using the real git binary.
func initTestRepo(t *testing.T) *GitOps {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	if os.Geteuid() == 0 {
		t.Skip("worktree creation refuses to run as root")
	}
	testutil.UnsetGitEnv()

	repo := t.TempDir()
	mustGit(t, repo, "init", "-b", "main")
	mustGit(t, repo, "config", "user.email", "test@example.com")
	mustGit(t, repo, "config", "user.name", "Test")
	require.NoError(t, os.WriteFile(filepath.Join(repo, "README.md"), []byte("hello\n"), 0o644))
	mustGit(t, repo, "add", ".")
	mustGit(t, repo, "commit", "-m", "initial")

	return New(repo, filepath.Join(repo, ".kyco", "worktrees"), nil)
}

func mustGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %s: %s", strings.Join(args, " "), out)
	return string(out)
}

func TestCreateWorktree_RealGit(t *testing.T) {
	g := initTestRepo(t)

	info, err := g.CreateWorktree(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, "main", info.BaseBranch)
	assert.Equal(t, "kyco/job-1", info.BranchName)
	assert.Equal(t, "job-1", filepath.Base(info.Path))

	stat, err := os.Stat(info.Path)
	require.NoError(t, err)
	assert.True(t, stat.IsDir())

	// The committed file was cloned into the worktree.
	_, err = os.Stat(filepath.Join(info.Path, "README.md"))
	assert.NoError(t, err)
}

func TestCreateWorktree_CollisionAllocatesSuffix(t *testing.T) {
	g := initTestRepo(t)

	require.NoError(t, os.MkdirAll(filepath.Join(g.WorktreesDir, "job-42"), 0o755))

	info, err := g.CreateWorktree(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "job-42-1", filepath.Base(info.Path))
	assert.Equal(t, "kyco/job-42-1", info.BranchName)
}

func TestRemoveWorktree_RestoresGitState(t *testing.T) {
	g := initTestRepo(t)
	ctx := context.Background()

	before := mustGit(t, g.RepoRoot, "branch", "--list")

	info, err := g.CreateWorktree(ctx, 7)
	require.NoError(t, err)

	g.RemoveWorktreeByPath(ctx, info.Path, nil)

	after := mustGit(t, g.RepoRoot, "branch", "--list")
	assert.Equal(t, before, after, "branch list restored")
	_, statErr := os.Stat(info.Path)
	assert.True(t, os.IsNotExist(statErr), "worktree directory removed")
}

func TestApplyChanges_RealGitMerge(t *testing.T) {
	g := initTestRepo(t)
	ctx := context.Background()

	info, err := g.CreateWorktree(ctx, 3)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(info.Path, "new.go"), []byte("package main\n"), 0o644))

	require.NoError(t, g.ApplyChanges(ctx, info, "add new file\n\nlonger body"))

	// Base branch has the change committed; HEAD is back on main.
	head := strings.TrimSpace(mustGit(t, g.RepoRoot, "rev-parse", "--abbrev-ref", "HEAD"))
	assert.Equal(t, "main", head)
	_, err = os.Stat(filepath.Join(g.RepoRoot, "new.go"))
	assert.NoError(t, err)

	subject := strings.TrimSpace(mustGit(t, g.RepoRoot, "log", "--format=%s", "-2"))
	assert.Contains(t, subject, "add new file")
}
