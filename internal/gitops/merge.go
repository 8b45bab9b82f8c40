package gitops

import (
	"context"
	"fmt"
	"strings"
)

// ApplyChanges merges a job's worktree branch back into baseBranch:
// commit any uncommitted worktree changes first (subject
// + optional body from commitMessage), then merge the branch into
// baseBranch on the main repo, leaving the main worktree on baseBranch at
// completion. Returns an error with no partial commit on baseBranch on
// conflict — the merge attempt is aborted before returning.
func (g *GitOps) ApplyChanges(ctx context.Context, info WorktreeInfo, commitMessage string) error {
	if err := g.commitWorktreeChanges(ctx, info.Path, commitMessage); err != nil {
		return fmt.Errorf("commit worktree changes: %w", err)
	}

	checkout := g.run(ctx, g.RepoRoot, "checkout", info.BaseBranch)
	if !checkout.Success() {
		return checkout.AsError([]string{"checkout", info.BaseBranch})
	}

	merge := g.run(ctx, g.RepoRoot, "merge", "--no-ff", "-m",
		mergeCommitMessage(info.BranchName, commitMessage), info.BranchName)
	if !merge.Success() {
		g.run(ctx, g.RepoRoot, "merge", "--abort")
		return fmt.Errorf("merge %s into %s: %s", info.BranchName, info.BaseBranch, strings.TrimSpace(merge.Stderr))
	}

	return nil
}

// commitWorktreeChanges stages and commits every change in the worktree,
// using commitMessage's subject/optional body. A clean worktree (nothing
// to commit) is not an error.
func (g *GitOps) commitWorktreeChanges(ctx context.Context, worktree, commitMessage string) error {
	add := g.run(ctx, worktree, "add", "-A")
	if !add.Success() {
		return add.AsError([]string{"add", "-A"})
	}

	status := g.run(ctx, worktree, "status", "--porcelain")
	if !status.Success() {
		return status.AsError([]string{"status", "--porcelain"})
	}
	if strings.TrimSpace(status.Stdout) == "" {
		return nil // nothing to commit
	}

	subject, body, _ := strings.Cut(commitMessage, "\n\n")
	args := []string{"commit", "-m", subject}
	if body != "" {
		args = append(args, "-m", body)
	}
	commit := g.run(ctx, worktree, args...)
	if !commit.Success() {
		return commit.AsError(args)
	}
	return nil
}

func mergeCommitMessage(branchName, commitMessage string) string {
	subject, _, _ := strings.Cut(commitMessage, "\n\n")
	if subject == "" {
		subject = "merge " + branchName
	}
	return subject
}
