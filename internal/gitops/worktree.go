package gitops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const maxWorktreeRetries = 10

// CreateWorktree creates a worktree for a job with collision-proof
// suffix retry: "job-{id}" first, then "job-{id}-{s}" for s >= 1, each
// on a branch "kyco/{dir_name}", giving up after ten attempts.
func (g *GitOps) CreateWorktree(ctx context.Context, jobID uint64) (WorktreeInfo, error) {
	if err := g.checkWorktreePreconditions(); err != nil {
		return WorktreeInfo{}, err
	}

	baseBranch, err := g.currentBranch(ctx)
	if err != nil {
		return WorktreeInfo{}, fmt.Errorf("determine base branch: %w", err)
	}

	if err := os.MkdirAll(g.WorktreesDir, 0o755); err != nil {
		return WorktreeInfo{}, fmt.Errorf("create worktrees dir: %w", err)
	}

	existingDirs, err := existingWorktreeDirNames(g.WorktreesDir)
	if err != nil {
		existingDirs = map[string]bool{}
	}
	existingBranches := g.existingKycoBranches(ctx)

	baseName := fmt.Sprintf("job-%d", jobID)

	for attempt := 0; attempt < maxWorktreeRetries; attempt++ {
		dirName := baseName
		if attempt > 0 {
			dirName = fmt.Sprintf("%s-%d", baseName, attempt)
		}

		if existingDirs[dirName] {
			continue
		}

		worktreePath := filepath.Join(g.WorktreesDir, dirName)
		if _, err := os.Stat(worktreePath); err == nil {
			existingDirs[dirName] = true
			continue
		}

		branchName := "kyco/" + dirName
		if existingBranches[branchName] {
			continue
		}

		branchRes := g.run(ctx, g.RepoRoot, "branch", branchName)
		if !branchRes.Success() {
			if strings.Contains(branchRes.Stderr, "already exists") {
				continue
			}
			return WorktreeInfo{}, fmt.Errorf("create branch: %s", strings.TrimSpace(branchRes.Stderr))
		}

		addRes := g.run(ctx, g.RepoRoot, "worktree", "add", worktreePath, branchName)
		if addRes.Success() {
			return WorktreeInfo{Path: worktreePath, BaseBranch: baseBranch, BranchName: branchName}, nil
		}

		// Worktree creation failed: always clean up the branch we just created.
		g.run(ctx, g.RepoRoot, "branch", "-D", branchName)

		stderr := addRes.Stderr
		if strings.Contains(stderr, "already exists") || strings.Contains(stderr, "is already checked out") {
			existingDirs[dirName] = true
			existingBranches[branchName] = true
			continue
		}
		return WorktreeInfo{}, fmt.Errorf("create worktree: %s", strings.TrimSpace(stderr))
	}

	return WorktreeInfo{}, fmt.Errorf(
		"failed to create worktree for job %d after %d attempts - all suffixes in use",
		jobID, maxWorktreeRetries)
}

// checkWorktreePreconditions: the repository must have at least one
// commit, the process must not run as root, and the worktrees directory
// must not be root-owned.
func (g *GitOps) checkWorktreePreconditions() error {
	hasCommits, err := g.hasCommits(context.Background())
	if err != nil {
		return fmt.Errorf("check repository history: %w", err)
	}
	if !hasCommits {
		return fmt.Errorf("cannot create worktree: repository has no commits; make an initial commit first, or disable use_worktree in config")
	}

	if runtime.GOOS != "windows" && os.Geteuid() == 0 {
		return fmt.Errorf("cannot create worktree: running as root would create files that cannot be modified later; run as a normal user")
	}

	if info, err := os.Stat(g.WorktreesDir); err == nil {
		if isRootOwned(info) && os.Geteuid() != 0 {
			return fmt.Errorf("cannot create worktree: %s is owned by root; fix ownership first", g.WorktreesDir)
		}
	}

	return nil
}

func (g *GitOps) hasCommits(ctx context.Context) (bool, error) {
	res := g.run(ctx, g.RepoRoot, "rev-parse", "--verify", "HEAD")
	return res.Success(), nil
}

func (g *GitOps) currentBranch(ctx context.Context) (string, error) {
	res := g.run(ctx, g.RepoRoot, "rev-parse", "--abbrev-ref", "HEAD")
	if !res.Success() {
		return "", res.AsError([]string{"rev-parse", "--abbrev-ref", "HEAD"})
	}
	return strings.TrimSpace(res.Stdout), nil
}

func (g *GitOps) existingKycoBranches(ctx context.Context) map[string]bool {
	out := map[string]bool{}
	res := g.run(ctx, g.RepoRoot, "for-each-ref", "--format=%(refname:short)", "refs/heads/kyco")
	if !res.Success() {
		return out
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out[line] = true
		}
	}
	return out
}

func existingWorktreeDirNames(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := map[string]bool{}
	for _, e := range entries {
		out[e.Name()] = true
	}
	return out, nil
}

// RemoveWorktreeByPath runs `git worktree remove --force` then deletes
// the matching kyco/ branch. Failures on either step are warnings, not
// errors.
func (g *GitOps) RemoveWorktreeByPath(ctx context.Context, path string, warn func(string)) {
	dirName := filepath.Base(path)
	branchName := "kyco/" + dirName
	g.removeWorktreeByPathAndBranch(ctx, path, branchName, warn)
}

func (g *GitOps) removeWorktreeByPathAndBranch(ctx context.Context, path, branchName string, warn func(string)) {
	if _, err := os.Stat(path); err == nil {
		res := g.run(ctx, g.RepoRoot, "worktree", "remove", "--force", path)
		if !res.Success() && warn != nil {
			warn(fmt.Sprintf("failed to remove worktree: %s", strings.TrimSpace(res.Stderr)))
		}
	}

	res := g.run(ctx, g.RepoRoot, "branch", "-D", branchName)
	if !res.Success() && warn != nil {
		warn(fmt.Sprintf("failed to delete branch: %s", strings.TrimSpace(res.Stderr)))
	}
}

// ChangedFiles returns the union of modified and untracked files in a
// worktree, as relative paths.
func (g *GitOps) ChangedFiles(ctx context.Context, worktree string) ([]string, error) {
	var files []string

	modified := g.run(ctx, worktree, "diff", "--name-only", "HEAD")
	if !modified.Success() {
		return nil, fmt.Errorf("git diff failed: %s", strings.TrimSpace(modified.Stderr))
	}
	files = append(files, splitNonEmptyLines(modified.Stdout)...)

	untracked := g.run(ctx, worktree, "ls-files", "--others", "--exclude-standard")
	if untracked.Success() {
		files = append(files, splitNonEmptyLines(untracked.Stdout)...)
	}
	return files, nil
}

// UntrackedFiles returns untracked files in a worktree/repo.
func (g *GitOps) UntrackedFiles(ctx context.Context, worktree string) ([]string, error) {
	res := g.run(ctx, worktree, "ls-files", "--others", "--exclude-standard")
	if !res.Success() {
		return nil, fmt.Errorf("git ls-files failed: %s", strings.TrimSpace(res.Stderr))
	}
	return splitNonEmptyLines(res.Stdout), nil
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}
